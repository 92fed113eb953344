package validator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SampleResult is one self-test sample's observed outcome.
type SampleResult struct {
	Path     string `json:"path"`
	Expected bool   `json:"expected"`
	Got      bool   `json:"got"`
	Findings []string `json:"findings,omitempty"`
}

// SelfTestReport is the aggregate result of running SelfTest.
type SelfTestReport struct {
	Results []SampleResult
}

// OK reports whether every sample matched its expected classification.
func (r *SelfTestReport) OK() bool {
	for _, res := range r.Results {
		if res.Expected != res.Got {
			return false
		}
	}
	return true
}

// Misclassified returns every sample whose observed outcome disagreed with
// its directory's expected classification.
func (r *SelfTestReport) Misclassified() []SampleResult {
	var out []SampleResult
	for _, res := range r.Results {
		if res.Expected != res.Got {
			out = append(out, res)
		}
	}
	return out
}

// Classify decodes one sample file (a raw JSON document) and reports
// whether the validator under test accepts it.
type Classify func(path string, raw map[string]json.RawMessage) (accepted bool, findings []string, err error)

// SelfTest runs classify over every *.json file under sampleRoot/positive
// and sampleRoot/negative, asserting positives are accepted and negatives
// are rejected, per spec §4.4: "self-test mode takes a directory layout
// <sample_root>/{positive,negative}/*.json and asserts: every positive
// must be accepted by the validator, every negative must be rejected."
func SelfTest(sampleRoot string, classify Classify) (*SelfTestReport, error) {
	report := &SelfTestReport{}

	for _, group := range []struct {
		dir      string
		expected bool
	}{
		{"positive", true},
		{"negative", false},
	} {
		matches, err := filepath.Glob(filepath.Join(sampleRoot, group.dir, "*.json"))
		if err != nil {
			return nil, fmt.Errorf("glob %s samples: %w", group.dir, err)
		}

		for _, path := range matches {
			data, readErr := os.ReadFile(path)
			if readErr != nil {
				return nil, fmt.Errorf("read sample %s: %w", path, readErr)
			}
			var raw map[string]json.RawMessage
			if unmarshalErr := json.Unmarshal(data, &raw); unmarshalErr != nil {
				return nil, fmt.Errorf("decode sample %s: %w", path, unmarshalErr)
			}

			accepted, findings, classifyErr := classify(path, raw)
			if classifyErr != nil {
				return nil, fmt.Errorf("classify sample %s: %w", path, classifyErr)
			}

			report.Results = append(report.Results, SampleResult{
				Path:     path,
				Expected: group.expected,
				Got:      accepted,
				Findings: findings,
			})
		}
	}

	return report, nil
}
