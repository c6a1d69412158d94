// Package orchestrator assigns mission profiles to agents and consumes the
// reports they emit.
//
// # Role
//
// The orchestrator records which mission each agent should run; it does not
// drive execution. External schedulers (or the demo driver) call
// LoadMission and RunCycle on the matching agent instance. Assignments are
// last-write-wins per agent ID.
//
// Inbound report volume is bounded here, at the orchestrator boundary:
// reports beyond the configured rate are dropped and counted rather than
// queued.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/gridsense/fieldlink/internal/cache"
	"github.com/gridsense/fieldlink/internal/comms"
	"github.com/gridsense/fieldlink/pkg/types"
)

// Assignment records the intent that one agent run one mission.
type Assignment struct {
	AssignmentID string                `json:"assignment_id"`
	AgentID      string                `json:"agent_id"`
	Profile      *types.MissionProfile `json:"profile"`
	AssignedAt   time.Time             `json:"assigned_at"`

	// LastStatus is "ASSIGNED" until the first report, then
	// "REPORTED_<level>".
	LastStatus   string     `json:"last_status"`
	LastReportAt *time.Time `json:"last_report_at,omitempty"`
}

// Config wires an orchestrator.
type Config struct {
	// Gateway decodes inbound envelopes (required for HandleEnvelope).
	Gateway *comms.Gateway

	// StatusCache publishes last-known agent status (optional).
	StatusCache *cache.StatusCache

	// ReportsPerSecond bounds inbound report handling (default: 50).
	ReportsPerSecond float64
	// ReportBurst is the rate limiter burst (default: 100).
	ReportBurst int

	// OnCritical is invoked for every CRITICAL report that passes the rate
	// bound (optional). Escalation logic — load shedding, operator paging —
	// lives behind this hook, not in the orchestrator.
	OnCritical func(ctx context.Context, packet types.ReportPacket)

	Logger *slog.Logger
}

// Orchestrator is the mission assignment registry plus the inbound report
// sink.
type Orchestrator struct {
	gateway    *comms.Gateway
	statuses   *cache.StatusCache
	limiter    *rate.Limiter
	onCritical func(ctx context.Context, packet types.ReportPacket)
	logger     *slog.Logger

	mu          sync.RWMutex
	assignments map[string]*Assignment

	statsMu sync.Mutex
	handled int64
	dropped int64
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rps := cfg.ReportsPerSecond
	if rps <= 0 {
		rps = 50
	}
	burst := cfg.ReportBurst
	if burst <= 0 {
		burst = 100
	}

	return &Orchestrator{
		gateway:     cfg.Gateway,
		statuses:    cfg.StatusCache,
		limiter:     rate.NewLimiter(rate.Limit(rps), burst),
		onCritical:  cfg.OnCritical,
		logger:      logger.With("component", "orchestrator"),
		assignments: make(map[string]*Assignment),
	}
}

// AssignMission associates a profile with an agent ID. The profile is
// validated eagerly so planners hear about malformed missions at assignment
// time, not when the agent loads. Re-assigning an agent overwrites the
// previous assignment.
func (o *Orchestrator) AssignMission(agentID string, profile *types.MissionProfile) (*Assignment, error) {
	if agentID == "" {
		return nil, fmt.Errorf("agent ID is required")
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	assignment := &Assignment{
		AssignmentID: uuid.New().String(),
		AgentID:      agentID,
		Profile:      profile,
		AssignedAt:   time.Now(),
		LastStatus:   "ASSIGNED",
	}

	o.mu.Lock()
	o.assignments[agentID] = assignment
	o.mu.Unlock()

	o.logger.Info("mission assigned",
		"agent_id", agentID,
		"mission_id", profile.MissionID,
		"assignment_id", assignment.AssignmentID)
	return assignment, nil
}

// Assignment returns the current assignment for an agent, if any.
func (o *Orchestrator) Assignment(agentID string) (*Assignment, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	a, ok := o.assignments[agentID]
	if !ok {
		return nil, false
	}
	copied := *a
	return &copied, true
}

// Assignments returns a snapshot of all current assignments.
func (o *Orchestrator) Assignments() []Assignment {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]Assignment, 0, len(o.assignments))
	for _, a := range o.assignments {
		out = append(out, *a)
	}
	return out
}

// HandleEnvelope decodes an inbound transport envelope into a report packet
// and handles it. This is the receive side of the layered pipeline:
// decrypt, deobfuscate, strip the relay tag, then parse.
func (o *Orchestrator) HandleEnvelope(ctx context.Context, env *types.Envelope) error {
	if o.gateway == nil {
		return fmt.Errorf("no gateway configured")
	}

	payload, err := o.gateway.Receive(env)
	if err != nil {
		return fmt.Errorf("decoding envelope: %w", err)
	}

	var packet types.ReportPacket
	if err := json.Unmarshal(payload, &packet); err != nil {
		return fmt.Errorf("parsing report packet: %w", err)
	}

	o.HandleReport(ctx, packet)
	return nil
}

// HandleReport processes one inbound report. Reports beyond the configured
// rate are dropped and counted; everything else updates the assignment
// status, publishes to the status cache, and escalates CRITICAL reports.
func (o *Orchestrator) HandleReport(ctx context.Context, packet types.ReportPacket) {
	if !o.limiter.Allow() {
		o.statsMu.Lock()
		o.dropped++
		o.statsMu.Unlock()
		o.logger.Warn("report rate bound exceeded, dropping",
			"agent_id", packet.AgentID,
			"trigger", packet.TriggerFired)
		return
	}

	o.statsMu.Lock()
	o.handled++
	o.statsMu.Unlock()

	now := time.Now()
	status := "REPORTED_" + string(packet.ReportLevel)

	o.mu.Lock()
	assignment, known := o.assignments[packet.AgentID]
	if known {
		assignment.LastStatus = status
		assignment.LastReportAt = &now
	}
	o.mu.Unlock()

	if !known {
		o.logger.Warn("report from unassigned agent",
			"agent_id", packet.AgentID,
			"mission_id", packet.MissionID)
	}

	switch packet.ReportLevel {
	case types.LevelCritical:
		o.logger.Error("critical report received",
			"agent_id", packet.AgentID,
			"trigger", packet.TriggerFired,
			"value", packet.MeasuredValue,
			"function", packet.MissionFunction)
		if o.onCritical != nil {
			o.onCritical(ctx, packet)
		}
	case types.LevelWarning:
		o.logger.Warn("warning report received",
			"agent_id", packet.AgentID,
			"trigger", packet.TriggerFired,
			"value", packet.MeasuredValue)
	default:
		o.logger.Info("report received",
			"agent_id", packet.AgentID,
			"trigger", packet.TriggerFired,
			"level", packet.ReportLevel,
			"value", packet.MeasuredValue)
	}

	if o.statuses != nil {
		snapshot := map[string]any{
			"agent_id":       packet.AgentID,
			"mission_id":     packet.MissionID,
			"last_status":    status,
			"last_trigger":   packet.TriggerFired,
			"last_value":     packet.MeasuredValue,
			"last_report_at": now,
		}
		if err := o.statuses.SetStatus(ctx, packet.AgentID, snapshot); err != nil {
			o.logger.Warn("failed to publish agent status", "error", err)
		}
	}
}

// Stats summarizes orchestrator activity.
type Stats struct {
	Assignments    int   `json:"assignments"`
	ReportsHandled int64 `json:"reports_handled"`
	ReportsDropped int64 `json:"reports_dropped"`
}

// Stats returns a point-in-time activity summary.
func (o *Orchestrator) Stats() Stats {
	o.mu.RLock()
	assignments := len(o.assignments)
	o.mu.RUnlock()

	o.statsMu.Lock()
	defer o.statsMu.Unlock()
	return Stats{
		Assignments:    assignments,
		ReportsHandled: o.handled,
		ReportsDropped: o.dropped,
	}
}
