// Package drift compares live cluster records against the manifest index
// and emits cluster-drift and spec-drift findings.
package drift

import (
	"fmt"

	"github.com/alevsk/driftwatch/internal/canonical"
	"github.com/alevsk/driftwatch/internal/logger"
	"github.com/alevsk/driftwatch/internal/types"
)

// Detect classifies every live resource against the declared set.
//
// A live key with no declared entry is cluster drift. A key present on both
// sides with differing spec hashes yields one spec-drift finding per
// differing leaf field. Declared keys absent from the cluster are
// deliberately not reported: declared-but-undeployed is routine for
// feature-flagged rollouts and outside this engine's scope.
func Detect(live []types.LiveResource, declared []types.ManifestEntry) []types.Finding {
	declaredByKey := make(map[types.ResourceKey]types.ManifestEntry, len(declared))
	for _, entry := range declared {
		declaredByKey[entry.Key] = entry
	}

	var findings []types.Finding
	for _, resource := range live {
		entry, isDeclared := declaredByKey[resource.Key]
		if !isDeclared {
			findings = append(findings, types.Finding{
				ID:          types.FindingID(types.FindingClusterDrift, resource.Key.String(), ""),
				Kind:        types.FindingClusterDrift,
				Locator:     resource.Key.String(),
				Description: fmt.Sprintf("%s %s exists in the cluster but is not declared in git", resource.Key.Kind, resource.Key.Name),
				Remediation: "add the resource to the git repository or delete it from the cluster",
			})
			continue
		}

		if resource.SpecHash == entry.SpecHash {
			continue
		}

		diffs := canonical.Diff(entry.Object, resource.Object)
		if len(diffs) == 0 {
			// Hashes disagreed but the walk found nothing; should not happen
			// since both sides use the same canonical form.
			logger.Warn().Str("resource", resource.Key.String()).Msg("spec hash mismatch with empty field diff")
			continue
		}
		for _, diff := range diffs {
			findings = append(findings, types.Finding{
				ID:          types.FindingID(types.FindingSpecDrift, resource.Key.String(), diff.Path),
				Kind:        types.FindingSpecDrift,
				Locator:     resource.Key.String(),
				Description: fmt.Sprintf("field %s of %s diverges from the declared value", diff.Path, resource.Key),
				FieldPath:   diff.Path,
				Expected:    diff.Expected,
				Actual:      diff.Actual,
				Remediation: "sync the cluster from git or update the manifest to match",
			})
		}
	}
	return findings
}
