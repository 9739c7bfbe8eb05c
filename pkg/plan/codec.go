package plan

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseJSON loads a plan from JSON and validates it.
func ParseJSON(data []byte) (*Plan, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON payload")
	}
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse json plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// ParseYAML loads a plan from YAML and validates it.
func ParseYAML(data []byte) (*Plan, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty YAML payload")
	}
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse yaml plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// MarshalJSON serializes a plan to JSON. Use pretty for indented output.
func MarshalJSON(p *Plan, pretty bool) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("plan is nil")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if pretty {
		return json.MarshalIndent(p, "", "  ")
	}
	return json.Marshal(p)
}

// MarshalYAML serializes a plan to YAML.
func MarshalYAML(p *Plan) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("plan is nil")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return yaml.Marshal(p)
}
