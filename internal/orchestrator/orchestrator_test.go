package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gridsense/fieldlink/internal/comms"
	"github.com/gridsense/fieldlink/internal/secrets"
	"github.com/gridsense/fieldlink/internal/security"
	"github.com/gridsense/fieldlink/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testGateway(t *testing.T) *comms.Gateway {
	t.Helper()
	mat, err := secrets.Generate()
	if err != nil {
		t.Fatal(err)
	}
	sec, err := security.NewContext(mat)
	if err != nil {
		t.Fatal(err)
	}
	return comms.NewGateway(sec, testLogger())
}

func testProfile(missionID string) *types.MissionProfile {
	return &types.MissionProfile{
		MissionID:    missionID,
		FunctionName: "voltage_stability_monitoring",
		Active:       true,
		Parameters: types.MissionParameters{
			ValueToMonitor:            "voltage_rms",
			MonitoringIntervalSeconds: 10,
		},
		Triggers: []types.TriggerSpec{
			{TriggerName: "overvoltage", Condition: "value > 245", ReportLevel: types.LevelCritical, CooldownSeconds: 300},
		},
		Communication: types.CommSpec{Protocol: "BLE", Destination: types.DestinationLocal},
	}
}

func TestAssignMission(t *testing.T) {
	o := New(Config{Logger: testLogger()})

	assignment, err := o.AssignMission("ace-pz-04", testProfile("M-1"))
	if err != nil {
		t.Fatalf("AssignMission: %v", err)
	}
	if assignment.AssignmentID == "" {
		t.Error("missing assignment ID")
	}
	if assignment.LastStatus != "ASSIGNED" {
		t.Errorf("status = %q", assignment.LastStatus)
	}

	got, ok := o.Assignment("ace-pz-04")
	if !ok {
		t.Fatal("assignment not found")
	}
	if got.Profile.MissionID != "M-1" {
		t.Errorf("mission = %q", got.Profile.MissionID)
	}
}

func TestAssignMission_LastWriteWins(t *testing.T) {
	o := New(Config{Logger: testLogger()})

	first, err := o.AssignMission("ace-pz-04", testProfile("M-1"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := o.AssignMission("ace-pz-04", testProfile("M-2"))
	if err != nil {
		t.Fatal(err)
	}
	if first.AssignmentID == second.AssignmentID {
		t.Error("re-assignment reused the assignment ID")
	}

	got, _ := o.Assignment("ace-pz-04")
	if got.Profile.MissionID != "M-2" {
		t.Fatalf("current mission = %q, want M-2", got.Profile.MissionID)
	}
	if len(o.Assignments()) != 1 {
		t.Fatalf("got %d assignments, want 1", len(o.Assignments()))
	}
}

func TestAssignMission_RejectsInvalid(t *testing.T) {
	o := New(Config{Logger: testLogger()})

	bad := testProfile("M-1")
	bad.Triggers = nil

	if _, err := o.AssignMission("ace-pz-04", bad); !errors.Is(err, types.ErrInvalidMission) {
		t.Fatalf("expected ErrInvalidMission, got %v", err)
	}
	if _, ok := o.Assignment("ace-pz-04"); ok {
		t.Fatal("invalid profile was recorded")
	}

	if _, err := o.AssignMission("", testProfile("M-1")); err == nil {
		t.Fatal("empty agent ID accepted")
	}
}

func TestHandleReport_UpdatesStatusAndEscalates(t *testing.T) {
	var critical []types.ReportPacket
	o := New(Config{
		Logger: testLogger(),
		OnCritical: func(ctx context.Context, packet types.ReportPacket) {
			critical = append(critical, packet)
		},
	})
	if _, err := o.AssignMission("ace-pz-04", testProfile("M-1")); err != nil {
		t.Fatal(err)
	}

	o.HandleReport(context.Background(), types.ReportPacket{
		ReportID:      "r1",
		Timestamp:     time.Now(),
		AgentID:       "ace-pz-04",
		MissionID:     "M-1",
		TriggerFired:  "overvoltage",
		ReportLevel:   types.LevelCritical,
		MeasuredValue: 251.8,
	})

	got, _ := o.Assignment("ace-pz-04")
	if got.LastStatus != "REPORTED_CRITICAL" {
		t.Errorf("status = %q", got.LastStatus)
	}
	if got.LastReportAt == nil {
		t.Error("missing last report time")
	}
	if len(critical) != 1 || critical[0].ReportID != "r1" {
		t.Fatalf("critical hook calls = %v", critical)
	}

	// A WARNING report does not escalate.
	o.HandleReport(context.Background(), types.ReportPacket{
		ReportID:    "r2",
		AgentID:     "ace-pz-04",
		ReportLevel: types.LevelWarning,
	})
	if len(critical) != 1 {
		t.Fatal("warning report reached the critical hook")
	}
	got, _ = o.Assignment("ace-pz-04")
	if got.LastStatus != "REPORTED_WARNING" {
		t.Errorf("status = %q", got.LastStatus)
	}
}

func TestHandleReport_UnassignedAgentTolerated(t *testing.T) {
	o := New(Config{Logger: testLogger()})

	// Must not panic or record anything.
	o.HandleReport(context.Background(), types.ReportPacket{
		AgentID:     "stranger",
		ReportLevel: types.LevelInfo,
	})
	if len(o.Assignments()) != 0 {
		t.Fatal("report from unassigned agent created an assignment")
	}
	if o.Stats().ReportsHandled != 1 {
		t.Fatal("report not counted")
	}
}

func TestHandleReport_RateBound(t *testing.T) {
	o := New(Config{
		Logger:           testLogger(),
		ReportsPerSecond: 1,
		ReportBurst:      2,
	})

	for i := 0; i < 5; i++ {
		o.HandleReport(context.Background(), types.ReportPacket{
			AgentID:     "ace-pz-04",
			ReportLevel: types.LevelInfo,
		})
	}

	stats := o.Stats()
	if stats.ReportsHandled != 2 {
		t.Errorf("handled = %d, want 2 (the burst)", stats.ReportsHandled)
	}
	if stats.ReportsDropped != 3 {
		t.Errorf("dropped = %d, want 3", stats.ReportsDropped)
	}
}

func TestHandleEnvelope_EndToEnd(t *testing.T) {
	gateway := testGateway(t)
	o := New(Config{Gateway: gateway, Logger: testLogger()})
	if _, err := o.AssignMission("ace-pz-04", testProfile("M-1")); err != nil {
		t.Fatal(err)
	}

	packet := types.ReportPacket{
		ReportID:      "r1",
		AgentID:       "ace-pz-04",
		MissionID:     "M-1",
		TriggerFired:  "overvoltage",
		ReportLevel:   types.LevelCritical,
		MeasuredValue: 251.8,
	}
	payload, err := json.Marshal(packet)
	if err != nil {
		t.Fatal(err)
	}

	// The secured path: the same gateway that encrypted can decode.
	env, err := gateway.Forward(payload, types.DestinationRemote)
	if err != nil {
		t.Fatal(err)
	}
	if err := o.HandleEnvelope(context.Background(), env); err != nil {
		t.Fatalf("HandleEnvelope: %v", err)
	}

	got, _ := o.Assignment("ace-pz-04")
	if got.LastStatus != "REPORTED_CRITICAL" {
		t.Fatalf("status = %q", got.LastStatus)
	}
}

func TestHandleEnvelope_RejectsGarbage(t *testing.T) {
	o := New(Config{Gateway: testGateway(t), Logger: testLogger()})

	env := &types.Envelope{Protocol: "GibberLink+AES256", Payload: []byte("not a token")}
	if err := o.HandleEnvelope(context.Background(), env); err == nil {
		t.Fatal("garbage envelope accepted")
	}

	// Decodes fine but is not a report packet.
	gateway := testGateway(t)
	o2 := New(Config{Gateway: gateway, Logger: testLogger()})
	env, err := gateway.Forward([]byte("free text"), types.DestinationLocal)
	if err != nil {
		t.Fatal(err)
	}
	if err := o2.HandleEnvelope(context.Background(), env); err == nil {
		t.Fatal("non-JSON payload accepted")
	}
}

func TestStats(t *testing.T) {
	o := New(Config{Logger: testLogger()})
	if _, err := o.AssignMission("a1", testProfile("M-1")); err != nil {
		t.Fatal(err)
	}
	if _, err := o.AssignMission("a2", testProfile("M-2")); err != nil {
		t.Fatal(err)
	}
	o.HandleReport(context.Background(), types.ReportPacket{AgentID: "a1", ReportLevel: types.LevelInfo})

	stats := o.Stats()
	if stats.Assignments != 2 {
		t.Errorf("assignments = %d", stats.Assignments)
	}
	if stats.ReportsHandled != 1 {
		t.Errorf("handled = %d", stats.ReportsHandled)
	}
}
