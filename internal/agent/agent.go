// Package agent implements the mission agent state machine.
//
// # Lifecycle
//
//	IDLE ──LoadMission──▶ MONITORING ──trigger fires──▶ REPORTING
//	                          ▲                            │
//	                          └────────report sent─────────┘
//
// REPORTING is transient: it is held only while a report packet is built
// and handed to the transport, then the agent returns to MONITORING. There
// is no transition from REPORTING back to IDLE; Unload is the only way out
// of a mission.
//
// # Cycle Semantics
//
// Each cycle samples the configured quantity once and walks the mission's
// triggers in declared order. The first eligible trigger whose condition
// holds fires and short-circuits the cycle; later triggers wait for the
// next one. That tie-break is deliberate. Cooldowns gate eligibility, and
// the previous sample is updated at the end of every cycle so
// change-percent triggers have a baseline from the second cycle onward.
//
// # Failure Semantics
//
// Malformed profiles are rejected at LoadMission; nothing about a bad load
// touches agent state. A failed sensor read skips the cycle. A failed send
// is logged and the cooldown is NOT recorded, so the next cycle retries.
// No cycle error crashes the agent.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gridsense/fieldlink/internal/comms"
	"github.com/gridsense/fieldlink/internal/sensor"
	"github.com/gridsense/fieldlink/pkg/types"
)

// Agent is an autonomous sensor agent executing one mission at a time.
// RunCycle is not re-entrant; callers serialize per agent (one loop per
// agent, which Run provides).
type Agent struct {
	id        string
	gateway   *comms.Gateway
	transport comms.Transport
	reader    sensor.Reader
	logger    *slog.Logger

	// now is injectable for cooldown tests.
	now func() time.Time

	mu         sync.Mutex
	state      types.AgentState
	mission    *types.MissionProfile
	conditions []types.Condition // parsed at load, index-aligned with mission.Triggers

	// lastFired is the cooldown ledger: trigger name → last report time.
	// Entries are created on first fire and never pruned for the agent's
	// lifetime.
	lastFired map[string]time.Time
	previous  *float64
}

// Config wires an agent's collaborators.
type Config struct {
	ID        string
	Gateway   *comms.Gateway
	Transport comms.Transport
	Reader    sensor.Reader
	Logger    *slog.Logger

	// Now overrides the clock (optional, for tests).
	Now func() time.Time
}

// New creates an agent in the IDLE state.
func New(cfg Config) *Agent {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Agent{
		id:        cfg.ID,
		gateway:   cfg.Gateway,
		transport: cfg.Transport,
		reader:    cfg.Reader,
		logger:    logger.With("component", "agent", "agent_id", cfg.ID),
		now:       now,
		state:     types.StateIdle,
		lastFired: make(map[string]time.Time),
	}
}

// ID returns the agent identifier.
func (a *Agent) ID() string { return a.id }

// State returns the current lifecycle state.
func (a *Agent) State() types.AgentState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Mission returns the loaded mission profile, or nil when IDLE.
func (a *Agent) Mission() *types.MissionProfile {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mission
}

// LoadMission validates and installs a mission profile, clearing the
// cooldown ledger and previous-value memory, and transitions to MONITORING.
// A rejected profile leaves the agent exactly as it was.
func (a *Agent) LoadMission(profile *types.MissionProfile) error {
	if profile == nil {
		return fmt.Errorf("%w: profile is nil", types.ErrInvalidMission)
	}
	if err := profile.Validate(); err != nil {
		return err
	}

	// Conditions were checked by Validate; parse again to cache them.
	conditions := make([]types.Condition, len(profile.Triggers))
	for i, trig := range profile.Triggers {
		cond, err := types.ParseCondition(trig.Condition)
		if err != nil {
			return fmt.Errorf("%w: trigger %q: %v", types.ErrInvalidMission, trig.TriggerName, err)
		}
		conditions[i] = cond
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.mission = profile
	a.conditions = conditions
	a.lastFired = make(map[string]time.Time)
	a.previous = nil
	a.state = types.StateMonitoring

	a.logger.Info("mission loaded",
		"mission_id", profile.MissionID,
		"function", profile.FunctionName,
		"triggers", len(profile.Triggers),
		"interval", profile.Parameters.MonitoringInterval())
	return nil
}

// Unload drops the current mission and returns the agent to IDLE.
func (a *Agent) Unload() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.mission == nil {
		return
	}
	a.logger.Info("mission unloaded", "mission_id", a.mission.MissionID)
	a.mission = nil
	a.conditions = nil
	a.lastFired = make(map[string]time.Time)
	a.previous = nil
	a.state = types.StateIdle
}

// RunCycle executes one monitoring cycle: sample, evaluate triggers in
// declared order, report on the first firing trigger. It is a no-op unless
// the agent is MONITORING with a loaded mission. The return value reports
// whether a trigger fired and its report was sent.
func (a *Agent) RunCycle(ctx context.Context) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != types.StateMonitoring || a.mission == nil {
		return false
	}

	quantity := a.mission.Parameters.ValueToMonitor
	current, err := a.reader.Read(ctx, quantity)
	if err != nil {
		// Skipped cycle: state and previous value untouched.
		a.logger.Warn("sensor read failed, skipping cycle",
			"quantity", quantity,
			"error", err)
		return false
	}

	fired := false
	for i, trig := range a.mission.Triggers {
		if !a.cooldownPassed(trig) {
			continue
		}
		if !a.conditions[i].Eval(current, a.previous) {
			continue
		}
		fired = a.report(ctx, trig, current)
		break
	}

	v := current
	a.previous = &v
	return fired
}

// cooldownPassed reports whether the trigger is eligible to fire again.
// Eligibility requires strictly more than the cooldown to have elapsed.
func (a *Agent) cooldownPassed(trig types.TriggerSpec) bool {
	last, ok := a.lastFired[trig.TriggerName]
	if !ok {
		return true
	}
	return a.now().Sub(last) > trig.Cooldown()
}

// report builds and sends a report packet for a fired trigger. The
// cooldown timestamp is recorded only on a successful send; a failed send
// leaves the ledger untouched so the next cycle retries. Returns whether
// the report went out.
func (a *Agent) report(ctx context.Context, trig types.TriggerSpec, value float64) bool {
	a.state = types.StateReporting
	defer func() { a.state = types.StateMonitoring }()

	packet := types.ReportPacket{
		ReportID:        uuid.New().String(),
		Timestamp:       a.now(),
		AgentID:         a.id,
		MissionID:       a.mission.MissionID,
		TriggerFired:    trig.TriggerName,
		ReportLevel:     trig.ReportLevel,
		MeasuredValue:   value,
		MissionFunction: a.mission.FunctionName,
	}

	payload, err := json.Marshal(packet)
	if err != nil {
		a.logger.Error("failed to marshal report", "error", err)
		return false
	}

	dest := a.mission.Communication.Destination
	if dest == "" {
		dest = types.DestinationRemote
	}

	env, err := a.gateway.Forward(payload, dest)
	if err != nil {
		a.logger.Error("failed to build envelope",
			"trigger", trig.TriggerName,
			"error", err)
		return false
	}

	if err := a.transport.Send(ctx, env); err != nil {
		a.logger.Warn("report send failed, will retry next cycle",
			"trigger", trig.TriggerName,
			"protocol", a.transport.Protocol(),
			"error", err)
		return false
	}

	a.lastFired[trig.TriggerName] = a.now()

	a.logger.Info("event reported",
		"trigger", trig.TriggerName,
		"level", packet.ReportLevel,
		"value", value,
		"protocol", a.transport.Protocol())
	return true
}

// Run executes monitoring cycles at the mission's configured interval until
// the context is cancelled. A mission must already be loaded.
func (a *Agent) Run(ctx context.Context) error {
	mission := a.Mission()
	if mission == nil {
		return fmt.Errorf("%w: no mission loaded", types.ErrInvalidMission)
	}

	interval := mission.Parameters.MonitoringInterval()
	a.logger.Info("starting monitoring loop", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run immediately on start.
	a.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("stopping monitoring loop")
			return ctx.Err()
		case <-ticker.C:
			a.RunCycle(ctx)
		}
	}
}
