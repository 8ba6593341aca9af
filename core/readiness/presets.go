package readiness

import (
	_ "embed"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed presets/default_criteria.yaml
var defaultCriteriaYAML []byte

type criteriaPreset struct {
	Criteria []NewCriterion `yaml:"criteria"`
}

// DefaultCriteria returns the criteria a tenant starts with.
func DefaultCriteria() ([]NewCriterion, error) {
	return ParseCriteriaPreset(defaultCriteriaYAML)
}

// ParseCriteriaPreset reads a YAML list of criteria under a top-level `criteria` key.
func ParseCriteriaPreset(data []byte) ([]NewCriterion, error) {
	var preset criteriaPreset
	if err := yaml.Unmarshal(data, &preset); err != nil {
		return nil, errors.Wrap(err, "parsing criteria preset")
	}
	return preset.Criteria, nil
}
