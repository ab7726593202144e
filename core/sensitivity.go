package core

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SensitivityPolicy lists actions and resource types that always receive
// elevated scrutiny regardless of anomaly score. It can be declared inline
// in configuration or loaded from a standalone YAML policy file.
type SensitivityPolicy struct {
	Actions   []string `yaml:"actions"`
	Resources []string `yaml:"resources"`
}

// LoadSensitivityPolicy reads a YAML policy file.
func LoadSensitivityPolicy(path string) (*SensitivityPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sensitivity policy: %w", err)
	}
	var policy SensitivityPolicy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse sensitivity policy: %w", err)
	}
	return &policy, nil
}

// SensitivityIndex answers sensitive-action and sensitive-resource lookups.
// It is built once at startup and read-only afterwards, so lookups need no
// locking.
type SensitivityIndex struct {
	actions   map[string]struct{}
	resources map[string]struct{}
}

// NewSensitivityIndex builds an index from one or more policies. Later
// policies add to, never remove from, earlier ones.
func NewSensitivityIndex(policies ...*SensitivityPolicy) *SensitivityIndex {
	idx := &SensitivityIndex{
		actions:   make(map[string]struct{}),
		resources: make(map[string]struct{}),
	}
	for _, p := range policies {
		if p == nil {
			continue
		}
		for _, a := range p.Actions {
			idx.actions[a] = struct{}{}
		}
		for _, r := range p.Resources {
			idx.resources[r] = struct{}{}
		}
	}
	return idx
}

// SensitiveAction reports whether the action is in the sensitive list.
func (idx *SensitivityIndex) SensitiveAction(action string) bool {
	_, ok := idx.actions[action]
	return ok
}

// SensitiveResource reports whether the resource type is in the sensitive
// list.
func (idx *SensitivityIndex) SensitiveResource(resourceType string) bool {
	_, ok := idx.resources[resourceType]
	return ok
}
