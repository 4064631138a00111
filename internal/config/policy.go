package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// StatusFilled is the terminal status set by the hire backfill; it is never remapped.
const StatusFilled = "filled"

// PlanDefaults are the headcount and budget used when creating a headcount plan
type PlanDefaults struct {
	Headcount int     `yaml:"headcount"`
	Budget    float64 `yaml:"budget"`
}

// SyncPolicy is the optional YAML file controlling plan creation and status propagation
type SyncPolicy struct {
	PlanDefaults PlanDefaults            `yaml:"planDefaults"`
	Departments  map[string]PlanDefaults `yaml:"departments"`
	StatusMap    map[string]string       `yaml:"statusMap"`
}

// DefaultSyncPolicy returns the policy used when no file is configured
func DefaultSyncPolicy() SyncPolicy {
	return SyncPolicy{
		PlanDefaults: PlanDefaults{Headcount: DefaultPlanHeadcount, Budget: DefaultPlanBudget},
	}
}

// LoadSyncPolicy reads path over the defaults. An empty path yields the defaults.
func LoadSyncPolicy(path string) (SyncPolicy, error) {
	policy := DefaultSyncPolicy()
	if path == "" {
		return policy, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return policy, fmt.Errorf("failed to read sync policy %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return policy, fmt.Errorf("failed to parse sync policy %s: %w", path, err)
	}

	return policy, nil
}

// PlanDefaultsFor returns the department override, or the base defaults.
func (p SyncPolicy) PlanDefaultsFor(department string) PlanDefaults {
	if d, ok := p.Departments[department]; ok {
		return d
	}
	for name, d := range p.Departments {
		if strings.EqualFold(name, department) {
			return d
		}
	}
	return p.PlanDefaults
}

// PlanStatus maps a requisition status onto the headcount plan status.
func (p SyncPolicy) PlanStatus(status string) string {
	if strings.EqualFold(status, StatusFilled) {
		return status
	}
	if mapped, ok := p.StatusMap[status]; ok {
		return mapped
	}
	for from, to := range p.StatusMap {
		if strings.EqualFold(from, status) {
			return to
		}
	}
	return status
}

func (p SyncPolicy) validate() error {
	check := func(scope string, d PlanDefaults) error {
		if d.Headcount < 0 {
			return fmt.Errorf("%s headcount must not be negative", scope)
		}
		if d.Budget < 0 {
			return fmt.Errorf("%s budget must not be negative", scope)
		}
		return nil
	}

	if err := check("plan default", p.PlanDefaults); err != nil {
		return err
	}
	for name, d := range p.Departments {
		if err := check("department "+name, d); err != nil {
			return err
		}
	}
	return nil
}
