// Package types defines the core domain types shared between the mission
// agent, the communications pipeline, and the orchestrator.
//
// # Design Principles
//
// 1. Simplicity: Types represent the domain model directly, no ORM abstractions
// 2. Serialization: All types are JSON-serializable for transport and YAML-loadable from profile files
// 3. Immutability: A profile loaded into an agent is never mutated; replacing it requires an explicit reload
// 4. Validation: Types include Validate() methods for business rule enforcement
package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidMission marks a malformed mission profile or trigger set.
// It is raised at load time and is fatal to that load call only.
var ErrInvalidMission = errors.New("invalid mission")

// =============================================================================
// AGENT STATE
// =============================================================================

// AgentState is the mission agent lifecycle state.
type AgentState string

const (
	// StateIdle means no mission is loaded.
	StateIdle AgentState = "IDLE"
	// StateMonitoring means the agent is sampling and evaluating triggers.
	StateMonitoring AgentState = "MONITORING"
	// StateReporting is transient, held only while a report is assembled and sent.
	StateReporting AgentState = "REPORTING"
)

// =============================================================================
// MISSION PROFILE
// =============================================================================

// ReportLevel is the severity tag attached to a fired trigger. The set is
// open; these are the levels the stock mission profiles use.
type ReportLevel string

const (
	LevelCritical ReportLevel = "CRITICAL"
	LevelWarning  ReportLevel = "WARNING"
	LevelInfo     ReportLevel = "INFO"
)

// Destination selects the delivery class for a report.
type Destination string

const (
	// DestinationLocal delivers the relay-tagged payload in the clear.
	DestinationLocal Destination = "local"
	// DestinationRemote obfuscates and encrypts before delivery.
	DestinationRemote Destination = "remote"
)

// MissionProfile is a declarative monitoring+alerting configuration assigned
// to one agent. It is immutable for the duration of a mission.
type MissionProfile struct {
	MissionID     string `json:"mission_id" yaml:"mission_id"`
	AgentIDTarget string `json:"agent_id_target" yaml:"agent_id_target"`
	FunctionName  string `json:"function_name" yaml:"function_name"`

	// Priority ranks missions when a scheduler must choose between them.
	// Lower value means higher priority.
	Priority int  `json:"priority" yaml:"priority"`
	Active   bool `json:"active" yaml:"active"`

	Parameters MissionParameters `json:"parameters" yaml:"parameters"`

	// Triggers are evaluated in declared order; the first eligible firing
	// trigger wins a cycle and the rest wait for the next one.
	Triggers []TriggerSpec `json:"triggers" yaml:"triggers"`

	Communication CommSpec `json:"communication" yaml:"communication"`
}

// MissionParameters holds the sampling configuration for a mission.
type MissionParameters struct {
	ValueToMonitor            string  `json:"value_to_monitor" yaml:"value_to_monitor"`
	MonitoringIntervalSeconds float64 `json:"monitoring_interval_seconds" yaml:"monitoring_interval_seconds"`
}

// MonitoringInterval returns the sampling interval as a duration.
func (p MissionParameters) MonitoringInterval() time.Duration {
	return time.Duration(p.MonitoringIntervalSeconds * float64(time.Second))
}

// TriggerSpec is a named condition-cooldown-severity rule evaluated each
// monitoring cycle.
type TriggerSpec struct {
	TriggerName     string      `json:"trigger_name" yaml:"trigger_name"`
	Condition       string      `json:"condition" yaml:"condition"`
	ReportLevel     ReportLevel `json:"report_level" yaml:"report_level"`
	CooldownSeconds float64     `json:"cooldown_seconds" yaml:"cooldown_seconds"`
}

// Cooldown returns the minimum elapsed time between consecutive firings.
func (t TriggerSpec) Cooldown() time.Duration {
	return time.Duration(t.CooldownSeconds * float64(time.Second))
}

// CommSpec describes how an agent's reports leave the device.
type CommSpec struct {
	Protocol    string      `json:"protocol" yaml:"protocol"`
	Target      string      `json:"target" yaml:"target"`
	Destination Destination `json:"destination" yaml:"destination"`
}

// Validate checks that the profile can be loaded into an agent. All
// violations are wrapped with ErrInvalidMission so callers can test with
// errors.Is.
func (m *MissionProfile) Validate() error {
	if m.MissionID == "" {
		return fmt.Errorf("%w: mission_id is required", ErrInvalidMission)
	}
	if m.FunctionName == "" {
		return fmt.Errorf("%w: function_name is required", ErrInvalidMission)
	}
	if m.Parameters.ValueToMonitor == "" {
		return fmt.Errorf("%w: parameters.value_to_monitor is required", ErrInvalidMission)
	}
	if m.Parameters.MonitoringIntervalSeconds <= 0 {
		return fmt.Errorf("%w: parameters.monitoring_interval_seconds must be positive", ErrInvalidMission)
	}
	if len(m.Triggers) == 0 {
		return fmt.Errorf("%w: at least one trigger is required", ErrInvalidMission)
	}

	seen := make(map[string]bool, len(m.Triggers))
	for i, trig := range m.Triggers {
		if trig.TriggerName == "" {
			return fmt.Errorf("%w: trigger %d has no name", ErrInvalidMission, i)
		}
		if seen[trig.TriggerName] {
			return fmt.Errorf("%w: duplicate trigger name %q", ErrInvalidMission, trig.TriggerName)
		}
		seen[trig.TriggerName] = true

		if trig.CooldownSeconds < 0 {
			return fmt.Errorf("%w: trigger %q has negative cooldown", ErrInvalidMission, trig.TriggerName)
		}
		if _, err := ParseCondition(trig.Condition); err != nil {
			return fmt.Errorf("%w: trigger %q: %v", ErrInvalidMission, trig.TriggerName, err)
		}
	}

	switch m.Communication.Destination {
	case "", DestinationLocal, DestinationRemote:
	default:
		return fmt.Errorf("%w: unknown communication destination %q", ErrInvalidMission, m.Communication.Destination)
	}

	return nil
}

// =============================================================================
// REPORT PACKET
// =============================================================================

// ReportPacket is emitted once per firing trigger. It is created fresh,
// never mutated, and not retained by the agent beyond logging.
type ReportPacket struct {
	ReportID        string      `json:"report_id"`
	Timestamp       time.Time   `json:"timestamp"`
	AgentID         string      `json:"agent_id"`
	MissionID       string      `json:"mission_id"`
	TriggerFired    string      `json:"trigger_fired"`
	ReportLevel     ReportLevel `json:"report_level"`
	MeasuredValue   float64     `json:"measured_value"`
	MissionFunction string      `json:"mission_function"`
}

// =============================================================================
// TRANSPORT ENVELOPE
// =============================================================================

// Envelope is the tagged, possibly-encrypted unit handed to a transport.
// For secured envelopes Payload is the base64 token (IV || ciphertext); for
// plain envelopes it is the relay-tagged payload bytes.
type Envelope struct {
	Protocol string `json:"protocol"`
	Payload  []byte `json:"payload"`
}
