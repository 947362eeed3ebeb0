// Package types defines the shared data model for the audit pipeline:
// resource identities, findings, exception rules and the final report.
package types

import (
	"crypto/sha512"
	"fmt"
	"time"
)

// ResourceKey uniquely identifies a Kubernetes-style object across both the
// live cluster and the rendered manifest stream.
type ResourceKey struct {
	Group     string `json:"group"`
	Version   string `json:"version"`
	Kind      string `json:"kind"`
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// String returns the canonical locator form of the key. Cluster-scoped
// resources render with an empty namespace segment so the form stays stable.
func (k ResourceKey) String() string {
	group := k.Group
	if group == "" {
		group = "core"
	}
	return fmt.Sprintf("%s/%s/%s/%s/%s", group, k.Version, k.Kind, k.Namespace, k.Name)
}

// LiveResource is a normalized record of an object enumerated from the
// cluster. SpecHash is the canonical hash of Object after noise stripping.
type LiveResource struct {
	Key      ResourceKey            `json:"key"`
	SpecHash string                 `json:"specHash"`
	Object   map[string]interface{} `json:"object,omitempty"`
}

// ManifestEntry is the declared-state counterpart of LiveResource, sourced
// from the rendered manifest stream. Two records sharing a ResourceKey are
// logically the same object.
type ManifestEntry struct {
	Key      ResourceKey            `json:"key"`
	SpecHash string                 `json:"specHash"`
	Object   map[string]interface{} `json:"object,omitempty"`
}

// FindingKind categorizes what an individual finding reports.
type FindingKind string

const (
	// FindingClusterDrift marks a live resource with no declared manifest.
	FindingClusterDrift FindingKind = "ClusterDrift"
	// FindingSpecDrift marks a declared field whose live value differs.
	FindingSpecDrift FindingKind = "SpecDrift"
	// FindingCodeViolation marks an imperative-mutation or embedded-manifest
	// hit in application source code.
	FindingCodeViolation FindingKind = "CodeViolation"
	// FindingUnparseable marks a rendered document that could not be indexed.
	FindingUnparseable FindingKind = "Unparseable"
	// FindingIncompleteInventory marks a namespace/kind listing that failed
	// or timed out, leaving the inventory partial.
	FindingIncompleteInventory FindingKind = "IncompleteInventory"
)

// Severity is the classified importance of a finding.
type Severity int

const (
	SeverityUnknown Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityCritical
)

// String implements fmt.Stringer for Severity.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return ""
	}
}

// MarshalJSON renders severities by name so reports stay readable.
func (s Severity) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", s.String())), nil
}

// UnmarshalJSON parses a severity name back into its enum value.
func (s *Severity) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"INFO"`:
		*s = SeverityInfo
	case `"WARNING"`:
		*s = SeverityWarning
	case `"CRITICAL"`:
		*s = SeverityCritical
	case `""`:
		*s = SeverityUnknown
	default:
		return fmt.Errorf("unknown severity: %s", data)
	}
	return nil
}

// Classification tags for CodeViolation findings. The scanner assigns the
// tag; severity policy for each tag lives in the classifier.
const (
	ClassificationViolation        = "violation"
	ClassificationOperatorEligible = "operator-exception-eligible"
)

// Finding is one detected compliance issue. Severity is zero until the
// classifier assigns it; findings are never mutated after classification.
type Finding struct {
	ID             string      `json:"id"`
	Kind           FindingKind `json:"kind"`
	Locator        string      `json:"locator"`
	Description    string      `json:"description"`
	FieldPath      string      `json:"fieldPath,omitempty"`
	Expected       interface{} `json:"expected,omitempty"`
	Actual         interface{} `json:"actual,omitempty"`
	Classification string      `json:"classification,omitempty"`
	Severity       Severity    `json:"severity"`
	Remediation    string      `json:"remediation,omitempty"`
}

// FindingID derives a stable identifier from the fields that make a finding
// unique, so identical inputs always produce identical reports.
func FindingID(kind FindingKind, locator, fieldPath string) string {
	sum := sha512.Sum512([]byte(string(kind) + "|" + locator + "|" + fieldPath))
	return fmt.Sprintf("%x", sum[:6])
}

// ExceptionRule downgrades matching findings to INFO until it expires.
// Selector is a glob matched against the finding locator. If FieldPath is
// set the finding's field path must equal it exactly.
type ExceptionRule struct {
	Selector  string    `json:"selector" mapstructure:"selector"`
	FieldPath string    `json:"field_path,omitempty" mapstructure:"field_path"`
	Reason    string    `json:"reason" mapstructure:"reason"`
	ExpiresAt time.Time `json:"expires_at" mapstructure:"expires_at"`
}

// Expired reports whether the rule is past its expiry at the given instant.
// Expired rules are treated as absent so suppression never outlives its
// review date.
func (r ExceptionRule) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// SeverityCount holds per-severity totals for one finding kind.
type SeverityCount struct {
	Critical int `json:"critical"`
	Warning  int `json:"warning"`
	Info     int `json:"info"`
}

// Summary aggregates finding counts for the report header.
type Summary struct {
	Total    int                           `json:"total"`
	Critical int                           `json:"critical"`
	Warning  int                           `json:"warning"`
	Info     int                           `json:"info"`
	ByKind   map[FindingKind]SeverityCount `json:"byKind"`
}

// Report is the terminal artifact of an audit run.
type Report struct {
	GeneratedAt time.Time `json:"generatedAt"`
	Summary     Summary   `json:"summary"`
	Findings    []Finding `json:"findings"`
	Passed      bool      `json:"passed"`
}
