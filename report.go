package remix

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// MaterialReport records the outcome for one source material.
type MaterialReport struct {
	Name       string            `json:"name"`
	Family     string            `json:"family"`
	Parameters map[string]string `json:"parameters,omitempty"`
	Skipped    bool              `json:"skipped,omitempty"`
	SkipReason string            `json:"skip_reason,omitempty"`
	Warnings   []string          `json:"warnings,omitempty"`
}

// TextureReport records the outcome for one texture conversion.
type TextureReport struct {
	Source   string `json:"source"`
	Output   string `json:"output"`
	Process  string `json:"process"`
	SizeTier string `json:"size_tier,omitempty"`
	Fallback bool   `json:"fallback,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ConversionReport summarizes one conversion run.
type ConversionReport struct {
	Timestamp      string           `json:"timestamp"`
	Input          string           `json:"input"`
	Output         string           `json:"output"`
	Pattern        string           `json:"pattern"`
	Interpolation  string           `json:"interpolation,omitempty"`
	ExternalRefs   bool             `json:"external_refs,omitempty"`
	GenerateUVs    bool             `json:"generate_uvs,omitempty"`
	InstanceGroups int              `json:"instance_groups"`
	Instances      int              `json:"instances"`
	UniqueObjects  int              `json:"unique_objects"`
	Materials      []MaterialReport `json:"materials"`
	Textures       []TextureReport  `json:"textures,omitempty"`
	Warnings       []string         `json:"warnings,omitempty"`
}

// WriteFile writes the report as indented JSON.
func (report *ConversionReport) WriteFile(path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

func newConversionReport(input, output string, pattern InstancingPattern) *ConversionReport {
	return &ConversionReport{
		Timestamp: time.Now().Format(time.RFC3339),
		Input:     input,
		Output:    output,
		Pattern:   pattern.String(),
	}
}

// stringifyParameters renders authored parameter values the way the output
// document does, keyed by parameter name.
func stringifyParameters(params TargetParameterSet) map[string]string {
	out := make(map[string]string, len(params))
	for name, value := range params {
		if name[0] == '_' {
			continue
		}
		switch v := value.(type) {
		case Color:
			out[name] = v.String()
		default:
			out[name] = fmt.Sprint(v)
		}
	}
	return out
}

// sizeTierLabel buckets a source texture by the same thresholds that pick
// its conversion timeout.
func sizeTierLabel(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return ""
	}
	switch {
	case info.Size() < 1<<20:
		return "small"
	case info.Size() < 10<<20:
		return "medium"
	default:
		return "large"
	}
}
