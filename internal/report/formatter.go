package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/alevsk/driftwatch/internal/types"
)

// Formatter renders a report for output.
type Formatter interface {
	Format(r *types.Report) (string, error)
}

// Type represents the type of formatter
type Type string

const (
	// TypeJSON formats the report as JSON
	TypeJSON Type = "json"
	// TypeYAML formats the report as YAML
	TypeYAML Type = "yaml"
	// TypeTable formats the report as a table
	TypeTable Type = "table"
)

// JSON implements JSON formatting
type JSON struct{}

// YAML implements YAML formatting
type YAML struct{}

// Table implements table formatting
type Table struct{}

// Format formats the report as JSON
func (j *JSON) Format(r *types.Report) (string, error) {
	bytes, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("error formatting as JSON: %w", err)
	}
	return string(bytes), nil
}

// Format formats the report as YAML
func (y *YAML) Format(r *types.Report) (string, error) {
	bytes, err := yaml.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("error formatting as YAML: %w", err)
	}
	return string(bytes), nil
}

// Format formats the report as tables using go-pretty/v6/table. Findings
// arrive pre-sorted from Aggregate, so no table-level sorting is applied.
func (t *Table) Format(r *types.Report) (string, error) {
	summaryTable := table.NewWriter()
	summaryTable.SetOutputMirror(nil)
	summaryTable.SetStyle(table.StyleLight)
	summaryTable.Style().Options.SeparateColumns = true
	summaryTable.SetTitle("AUDIT SUMMARY")

	summaryTable.AppendHeader(table.Row{
		"CHECK",
		"CRITICAL",
		"WARNING",
		"INFO",
	})
	for _, kind := range []types.FindingKind{
		types.FindingClusterDrift,
		types.FindingSpecDrift,
		types.FindingCodeViolation,
		types.FindingUnparseable,
		types.FindingIncompleteInventory,
	} {
		count, ok := r.Summary.ByKind[kind]
		if !ok {
			continue
		}
		summaryTable.AppendRow(table.Row{
			string(kind),
			count.Critical,
			count.Warning,
			count.Info,
		})
	}
	summaryTable.AppendFooter(table.Row{
		"TOTAL",
		r.Summary.Critical,
		r.Summary.Warning,
		r.Summary.Info,
	})

	findingsTable := table.NewWriter()
	findingsTable.SetOutputMirror(nil)
	findingsTable.SetStyle(table.StyleLight)
	findingsTable.Style().Options.SeparateColumns = true
	findingsTable.SetTitle("FINDINGS")

	findingsTable.AppendHeader(table.Row{
		"SEVERITY",
		"KIND",
		"LOCATOR",
		"FIELD",
		"DESCRIPTION",
	})
	for _, f := range r.Findings {
		findingsTable.AppendRow(table.Row{
			f.Severity.String(),
			string(f.Kind),
			f.Locator,
			f.FieldPath,
			f.Description,
		})
	}

	verdict := "PASSED"
	if !r.Passed {
		verdict = "FAILED"
	}

	var sb strings.Builder
	sb.WriteString(summaryTable.Render())
	sb.WriteString("\n\n")
	sb.WriteString(findingsTable.Render())
	sb.WriteString("\n\nResult: " + verdict + "\n")
	return sb.String(), nil
}

// ParseType converts a string to a Type
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeJSON, TypeYAML, TypeTable:
		return Type(s), nil
	default:
		return "", fmt.Errorf("unknown formatter type: %s", s)
	}
}

// NewFormatter creates a new formatter of the specified type
func NewFormatter(t Type) (Formatter, error) {
	switch t {
	case TypeJSON:
		return &JSON{}, nil
	case TypeYAML:
		return &YAML{}, nil
	case TypeTable:
		return &Table{}, nil
	default:
		return nil, fmt.Errorf("unknown formatter type: %s", t)
	}
}
