package types

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// validProfile returns a minimal profile that passes validation.
func validProfile() *MissionProfile {
	return &MissionProfile{
		MissionID:     "M-VOLT-001",
		AgentIDTarget: "ace-pz-04",
		FunctionName:  "voltage_stability_monitoring",
		Priority:      1,
		Active:        true,
		Parameters: MissionParameters{
			ValueToMonitor:            "voltage_rms",
			MonitoringIntervalSeconds: 10,
		},
		Triggers: []TriggerSpec{
			{TriggerName: "overvoltage", Condition: "value > 245.0", ReportLevel: LevelCritical, CooldownSeconds: 300},
		},
		Communication: CommSpec{Protocol: "BLE", Target: "hub-01", Destination: DestinationRemote},
	}
}

func TestMissionProfile_Validate(t *testing.T) {
	if err := validProfile().Validate(); err != nil {
		t.Fatalf("valid profile rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*MissionProfile)
	}{
		{"missing mission_id", func(m *MissionProfile) { m.MissionID = "" }},
		{"missing function_name", func(m *MissionProfile) { m.FunctionName = "" }},
		{"missing value_to_monitor", func(m *MissionProfile) { m.Parameters.ValueToMonitor = "" }},
		{"zero interval", func(m *MissionProfile) { m.Parameters.MonitoringIntervalSeconds = 0 }},
		{"empty trigger list", func(m *MissionProfile) { m.Triggers = nil }},
		{"unnamed trigger", func(m *MissionProfile) { m.Triggers[0].TriggerName = "" }},
		{"negative cooldown", func(m *MissionProfile) { m.Triggers[0].CooldownSeconds = -1 }},
		{"malformed condition", func(m *MissionProfile) { m.Triggers[0].Condition = "value >" }},
		{"unknown destination", func(m *MissionProfile) { m.Communication.Destination = "broadcast" }},
		{"duplicate trigger names", func(m *MissionProfile) {
			m.Triggers = append(m.Triggers, TriggerSpec{
				TriggerName: "overvoltage", Condition: "value < 190", ReportLevel: LevelWarning,
			})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validProfile()
			tt.mutate(m)
			err := m.Validate()
			if err == nil {
				t.Fatal("expected validation error, got none")
			}
			if !errors.Is(err, ErrInvalidMission) {
				t.Fatalf("error %v is not ErrInvalidMission", err)
			}
		})
	}
}

func TestMissionParameters_MonitoringInterval(t *testing.T) {
	p := MissionParameters{MonitoringIntervalSeconds: 2.5}
	if got, want := p.MonitoringInterval(), 2500*time.Millisecond; got != want {
		t.Fatalf("MonitoringInterval() = %v, want %v", got, want)
	}
}

func TestLoadProfile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mission.yaml")
	data := `
mission_id: M-VOLT-001
agent_id_target: ace-pz-04
function_name: voltage_stability_monitoring
priority: 1
active: true
parameters:
  value_to_monitor: voltage_rms
  monitoring_interval_seconds: 10
triggers:
  - trigger_name: overvoltage
    condition: "value > 245.0"
    report_level: CRITICAL
    cooldown_seconds: 300
  - trigger_name: sudden_change
    condition: "change_percent > 15"
    report_level: WARNING
    cooldown_seconds: 60
communication:
  protocol: BLE
  target: hub-01
  destination: remote
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	profile, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if profile.MissionID != "M-VOLT-001" {
		t.Errorf("mission_id = %q", profile.MissionID)
	}
	if len(profile.Triggers) != 2 {
		t.Fatalf("got %d triggers, want 2", len(profile.Triggers))
	}
	if profile.Triggers[1].TriggerName != "sudden_change" {
		t.Errorf("trigger order not preserved: %q", profile.Triggers[1].TriggerName)
	}
	if profile.Communication.Destination != DestinationRemote {
		t.Errorf("destination = %q", profile.Communication.Destination)
	}
}

func TestLoadProfile_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mission.json")
	data := `{
		"mission_id": "M-W-002",
		"agent_id_target": "ace-w-01",
		"function_name": "water_level_monitoring",
		"active": true,
		"parameters": {"value_to_monitor": "water_level_cm", "monitoring_interval_seconds": 30},
		"triggers": [
			{"trigger_name": "flood", "condition": "value > 350", "report_level": "CRITICAL", "cooldown_seconds": 600}
		],
		"communication": {"protocol": "LoRaWAN", "target": "basin-hub", "destination": "remote"}
	}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	profile, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if profile.FunctionName != "water_level_monitoring" {
		t.Errorf("function_name = %q", profile.FunctionName)
	}
}

func TestLoadProfile_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	// Duplicate trigger names must fail validation at load.
	data := `{
		"mission_id": "M-X",
		"function_name": "f",
		"parameters": {"value_to_monitor": "v", "monitoring_interval_seconds": 1},
		"triggers": [
			{"trigger_name": "x", "condition": "value > 1"},
			{"trigger_name": "x", "condition": "value < 1"}
		]
	}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadProfile(path)
	if !errors.Is(err, ErrInvalidMission) {
		t.Fatalf("expected ErrInvalidMission, got %v", err)
	}
}
