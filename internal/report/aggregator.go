// Package report merges classified findings into the terminal report
// artifact and renders it for output.
package report

import (
	"sort"
	"time"

	"github.com/alevsk/driftwatch/internal/types"
)

// Exit codes for the audit command.
const (
	// ExitClean means no findings above INFO severity.
	ExitClean = 0
	// ExitWarning means at least one WARNING finding but no CRITICAL.
	ExitWarning = 1
	// ExitCritical means at least one CRITICAL finding.
	ExitCritical = 2
	// ExitFatal means the audit could not complete an acquisition phase.
	ExitFatal = 3
)

// Aggregate merges classified findings into a Report. Findings are stably
// sorted by severity (descending), locator, kind, then field path, so
// identical inputs always render byte-identical — worker completion order
// upstream is non-deterministic and this sort is where determinism is
// re-established. The field-path key matters: spec-drift findings for one
// resource share severity, locator and kind and differ only by field.
func Aggregate(findings []types.Finding, now time.Time) *types.Report {
	sorted := make([]types.Finding, len(findings))
	copy(sorted, findings)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Severity != sorted[j].Severity {
			return sorted[i].Severity > sorted[j].Severity
		}
		if sorted[i].Locator != sorted[j].Locator {
			return sorted[i].Locator < sorted[j].Locator
		}
		if sorted[i].Kind != sorted[j].Kind {
			return sorted[i].Kind < sorted[j].Kind
		}
		return sorted[i].FieldPath < sorted[j].FieldPath
	})

	summary := types.Summary{
		Total:  len(sorted),
		ByKind: make(map[types.FindingKind]types.SeverityCount),
	}
	for _, f := range sorted {
		count := summary.ByKind[f.Kind]
		switch f.Severity {
		case types.SeverityCritical:
			summary.Critical++
			count.Critical++
		case types.SeverityWarning:
			summary.Warning++
			count.Warning++
		case types.SeverityInfo:
			summary.Info++
			count.Info++
		}
		summary.ByKind[f.Kind] = count
	}

	return &types.Report{
		GeneratedAt: now,
		Summary:     summary,
		Findings:    sorted,
		Passed:      summary.Critical == 0,
	}
}

// ExitCode maps a report to the audit command's exit code. Fatal acquisition
// failures never reach aggregation, so ExitFatal is assigned by the caller.
func ExitCode(r *types.Report) int {
	if r.Summary.Critical > 0 {
		return ExitCritical
	}
	if r.Summary.Warning > 0 {
		return ExitWarning
	}
	return ExitClean
}
