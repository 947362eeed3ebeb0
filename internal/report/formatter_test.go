package report

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/alevsk/driftwatch/internal/types"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantType Type
		wantErr  bool
	}{
		{"json", "json", TypeJSON, false},
		{"yaml", "yaml", TypeYAML, false},
		{"table", "table", TypeTable, false},
		{"unknown", "unknown", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotType, err := ParseType(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseType() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if gotType != tt.wantType {
				t.Errorf("ParseType() gotType = %v, want %v", gotType, tt.wantType)
			}
		})
	}
}

func TestNewFormatter(t *testing.T) {
	for _, ft := range []Type{TypeJSON, TypeYAML, TypeTable} {
		f, err := NewFormatter(ft)
		if err != nil {
			t.Errorf("NewFormatter(%s) error = %v", ft, err)
		}
		if f == nil {
			t.Errorf("NewFormatter(%s) returned nil", ft)
		}
	}

	if _, err := NewFormatter("csv"); err == nil {
		t.Error("NewFormatter(csv) expected error")
	}
}

func sampleReport() *types.Report {
	findings := []types.Finding{
		{
			ID:          "b2c3d4e5f6a1",
			Kind:        types.FindingClusterDrift,
			Locator:     "core/v1/Pod/production/debug-pod",
			Description: "live resource has no declared manifest",
			Severity:    types.SeverityCritical,
			Remediation: "delete the resource or add it to the manifest source",
		},
		{
			ID:          "a1b2c3d4e5f6",
			Kind:        types.FindingSpecDrift,
			Locator:     "apps/v1/Deployment/production/api",
			FieldPath:   "spec.replicas",
			Description: "declared value differs from live value",
			Expected:    float64(3),
			Actual:      float64(5),
			Severity:    types.SeverityWarning,
		},
	}
	return Aggregate(findings, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
}

func TestJSONFormat(t *testing.T) {
	out, err := (&JSON{}).Format(sampleReport())
	if err != nil {
		t.Fatalf("Format() error: %v", err)
	}

	var decoded types.Report
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Summary.Critical != 1 || decoded.Summary.Warning != 1 {
		t.Errorf("summary = %+v, want 1 critical, 1 warning", decoded.Summary)
	}
	if !strings.Contains(out, `"CRITICAL"`) {
		t.Error("severity should render by name in JSON output")
	}
}

func TestYAMLFormat(t *testing.T) {
	out, err := (&YAML{}).Format(sampleReport())
	if err != nil {
		t.Fatalf("Format() error: %v", err)
	}
	if !strings.Contains(out, "debug-pod") {
		t.Error("YAML output missing finding locator")
	}
}

func TestTableFormat(t *testing.T) {
	out, err := (&Table{}).Format(sampleReport())
	if err != nil {
		t.Fatalf("Format() error: %v", err)
	}

	for _, want := range []string{
		"AUDIT SUMMARY",
		"FINDINGS",
		"ClusterDrift",
		"core/v1/Pod/production/debug-pod",
		"spec.replicas",
		"Result: FAILED",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q", want)
		}
	}

	// Critical findings render before warnings.
	if strings.Index(out, "debug-pod") > strings.Index(out, "Deployment/production/api") {
		t.Error("findings are not ordered by severity")
	}
}

func TestTableFormatPassedVerdict(t *testing.T) {
	r := Aggregate(nil, time.Now())
	out, err := (&Table{}).Format(r)
	if err != nil {
		t.Fatalf("Format() error: %v", err)
	}
	if !strings.Contains(out, "Result: PASSED") {
		t.Error("empty report should render PASSED")
	}
}
