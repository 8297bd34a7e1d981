package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Category is the router's classification of a user request.
type Category string

const (
	CategoryFeatureImportance Category = "feature_importance_analysis"
	CategoryTimeSeries        Category = "time_series"
	CategoryFrequencySpectrum Category = "frequency_spectrum"
	CategoryIrrelevant        Category = "irrelevant_request"
	CategoryConversation      Category = "normal_conversation"
)

// TargetSensor is one (name, type) target. The router emits it as a two
// element array where either element may be null; an object form
// {"name":..,"type":..} is accepted too.
type TargetSensor struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func (t *TargetSensor) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var pair []*string
		if err := json.Unmarshal(data, &pair); err != nil {
			return err
		}
		if len(pair) > 2 {
			return fmt.Errorf("target sensor: expected [name, type], got %d elements", len(pair))
		}
		*t = TargetSensor{}
		if len(pair) > 0 && pair[0] != nil {
			t.Name = strings.TrimSpace(*pair[0])
		}
		if len(pair) > 1 && pair[1] != nil {
			t.Type = strings.TrimSpace(*pair[1])
		}
		return nil
	}
	type plain TargetSensor
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = TargetSensor(p)
	return nil
}

// AnalysisConfig carries the parameters of a feature importance request.
type AnalysisConfig struct {
	TargetSensors []TargetSensor `json:"target_sensors"`
	Algorithm     string         `json:"algorithm"`
}

// VisualConfig carries the parameters of a plot request.
type VisualConfig struct {
	TargetSensors []TargetSensor `json:"target_sensors"`
	Subset        string         `json:"subset"`
	Condition     string         `json:"condition"`
	LabelDetail   string         `json:"label_detail"`
	AcquisitionID string         `json:"acquisition_id"`
}

// Intent is the decoded router output.
type Intent struct {
	Category   Category `json:"category"`
	IsVague    bool     `json:"is_vague"`
	Reasoning  string   `json:"reasoning,omitempty"`
	Parameters struct {
		Analysis AnalysisConfig `json:"analysis_config"`
		Visual   VisualConfig   `json:"visual_config"`
	} `json:"parameters"`
}

// ParseIntent decodes router JSON. Undecodable input, or input without a
// category, is treated as normal conversation.
func ParseIntent(raw []byte) Intent {
	var in Intent
	if err := json.Unmarshal(raw, &in); err != nil {
		return Intent{Category: CategoryConversation}
	}
	if in.Category == "" {
		in.Category = CategoryConversation
	}
	if in.Parameters.Analysis.Algorithm == "" {
		in.Parameters.Analysis.Algorithm = "rf"
	}
	return in
}
