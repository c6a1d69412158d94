package types

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadProfile reads and validates a mission profile from a YAML or JSON
// file. The format is chosen by extension; anything that isn't .yaml/.yml is
// treated as JSON, which is the wire shape planners produce.
func LoadProfile(path string) (*MissionProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mission profile: %w", err)
	}

	var profile MissionProfile
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parsing mission profile %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parsing mission profile %s: %w", path, err)
		}
	}

	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return &profile, nil
}
