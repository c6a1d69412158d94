package types

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ConditionKind selects which quantity a condition compares.
type ConditionKind string

const (
	// ConditionValue compares the current sampled value.
	ConditionValue ConditionKind = "value"
	// ConditionChangePercent compares the absolute percent change from the
	// previous sample.
	ConditionChangePercent ConditionKind = "change_percent"
)

// CompareOp is a comparison operator from the closed condition grammar.
type CompareOp string

const (
	OpLess         CompareOp = "<"
	OpGreater      CompareOp = ">"
	OpLessEqual    CompareOp = "<="
	OpGreaterEqual CompareOp = ">="
	OpEqual        CompareOp = "=="
)

// Condition is a parsed trigger condition: a tagged comparison rather than
// an executable expression. Only two forms exist:
//
//	value <op> <threshold>
//	change_percent > <threshold>
type Condition struct {
	Kind      ConditionKind
	Op        CompareOp
	Threshold float64
}

// ParseCondition parses a condition string against the closed grammar.
// Anything outside the two accepted forms is rejected, so malformed
// conditions surface at mission load time rather than mid-cycle.
func ParseCondition(s string) (Condition, error) {
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return Condition{}, fmt.Errorf("condition %q: want 3 tokens (subject op threshold), got %d", s, len(fields))
	}

	threshold, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return Condition{}, fmt.Errorf("condition %q: threshold %q is not numeric", s, fields[2])
	}

	op := CompareOp(fields[1])
	switch op {
	case OpLess, OpGreater, OpLessEqual, OpGreaterEqual, OpEqual:
	default:
		return Condition{}, fmt.Errorf("condition %q: unknown operator %q", s, fields[1])
	}

	switch fields[0] {
	case string(ConditionValue):
		return Condition{Kind: ConditionValue, Op: op, Threshold: threshold}, nil
	case string(ConditionChangePercent):
		if op != OpGreater {
			return Condition{}, fmt.Errorf("condition %q: change_percent only supports >", s)
		}
		return Condition{Kind: ConditionChangePercent, Op: op, Threshold: threshold}, nil
	default:
		return Condition{}, fmt.Errorf("condition %q: unknown subject %q", s, fields[0])
	}
}

// Eval reports whether the condition holds for the current sample. previous
// is nil until the agent has completed one cycle; a change_percent condition
// cannot fire without a usable (non-nil, non-zero) baseline.
func (c Condition) Eval(current float64, previous *float64) bool {
	switch c.Kind {
	case ConditionChangePercent:
		if previous == nil || *previous == 0 {
			return false
		}
		change := math.Abs((current-*previous) / *previous) * 100
		return change > c.Threshold
	case ConditionValue:
		return compare(current, c.Op, c.Threshold)
	default:
		return false
	}
}

func compare(v float64, op CompareOp, threshold float64) bool {
	switch op {
	case OpLess:
		return v < threshold
	case OpGreater:
		return v > threshold
	case OpLessEqual:
		return v <= threshold
	case OpGreaterEqual:
		return v >= threshold
	case OpEqual:
		return v == threshold
	default:
		return false
	}
}
