// Package severity assigns severities to raw findings. The default table is
// fixed policy; exception rules from config can downgrade matching findings
// to INFO until the rule expires.
package severity

import (
	"fmt"
	"time"

	"github.com/gobwas/glob"

	"github.com/alevsk/driftwatch/internal/logger"
	"github.com/alevsk/driftwatch/internal/types"
)

// compiledRule pairs an exception rule with its compiled selector glob.
type compiledRule struct {
	rule     types.ExceptionRule
	selector glob.Glob
}

// Classifier maps raw findings to classified findings using the default
// severity table and a set of exception rules.
type Classifier struct {
	rules []compiledRule
}

// NewClassifier compiles the exception allowlist. Selector globs use '/' as
// the path separator so a pattern like "apps/v1/Deployment/staging/*" matches
// one locator segment at a time.
func NewClassifier(rules []types.ExceptionRule) (*Classifier, error) {
	c := &Classifier{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		g, err := glob.Compile(r.Selector, '/')
		if err != nil {
			return nil, fmt.Errorf("compiling exception selector %q: %w", r.Selector, err)
		}
		c.rules = append(c.rules, compiledRule{rule: r, selector: g})
	}
	return c, nil
}

// Classify returns a copy of findings with severities populated. Findings
// matched by an unexpired exception rule are forced to INFO; expired rules
// are treated as absent so expiry never silently suppresses.
func (c *Classifier) Classify(findings []types.Finding, now time.Time) []types.Finding {
	out := make([]types.Finding, len(findings))
	for i, f := range findings {
		f.Severity = defaultSeverity(f)
		if rule, ok := c.match(f, now); ok {
			logger.Debug().
				Str("finding", f.ID).
				Str("selector", rule.Selector).
				Str("reason", rule.Reason).
				Msg("finding downgraded by exception rule")
			f.Severity = types.SeverityInfo
		}
		out[i] = f
	}
	return out
}

// match returns the first unexpired rule matching the finding.
func (c *Classifier) match(f types.Finding, now time.Time) (types.ExceptionRule, bool) {
	for _, cr := range c.rules {
		if !cr.selector.Match(f.Locator) {
			continue
		}
		if cr.rule.FieldPath != "" && cr.rule.FieldPath != f.FieldPath {
			continue
		}
		if cr.rule.Expired(now) {
			logger.Warn().
				Str("selector", cr.rule.Selector).
				Time("expired_at", cr.rule.ExpiresAt).
				Msg("exception rule expired, finding keeps its default severity")
			continue
		}
		return cr.rule, true
	}
	return types.ExceptionRule{}, false
}

// defaultSeverity implements the fixed policy table.
func defaultSeverity(f types.Finding) types.Severity {
	switch f.Kind {
	case types.FindingClusterDrift:
		return types.SeverityCritical
	case types.FindingSpecDrift:
		return types.SeverityWarning
	case types.FindingCodeViolation:
		if f.Classification == types.ClassificationOperatorEligible {
			return types.SeverityWarning
		}
		return types.SeverityCritical
	case types.FindingUnparseable:
		return types.SeverityWarning
	case types.FindingIncompleteInventory:
		return types.SeverityInfo
	default:
		return types.SeverityUnknown
	}
}
