// Package manifestindex normalizes the rendered manifest stream into
// declared-state records keyed identically to the cluster inventory.
package manifestindex

import (
	"fmt"

	"github.com/alevsk/driftwatch/internal/canonical"
	"github.com/alevsk/driftwatch/internal/logger"
	"github.com/alevsk/driftwatch/internal/renderer"
	"github.com/alevsk/driftwatch/internal/types"
)

// Index parses the rendered documents into ManifestEntry records using the
// same canonicalization and hashing as the cluster inventory.
//
// Documents that carry none of the resource identity fields are skipped
// silently; rendered output legitimately contains non-resource content.
// Documents that look like resources but have malformed identity fields
// produce an Unparseable finding and are excluded. Duplicate keys produce an
// Unparseable finding and the last-seen entry wins.
func Index(manifests []*renderer.Manifest, ignoreFields []string) ([]types.ManifestEntry, []types.Finding) {
	var findings []types.Finding
	byKey := make(map[types.ResourceKey]types.ManifestEntry)
	var order []types.ResourceKey

	for _, manifest := range manifests {
		obj := manifest.Content
		if obj == nil {
			continue
		}

		if !looksLikeResource(obj) {
			logger.Debug().Str("manifest", manifest.Name).Msg("skipping non-resource document")
			continue
		}

		key, err := canonical.KeyFromObject(obj)
		if err != nil {
			findings = append(findings, unparseable(manifest.Name,
				fmt.Sprintf("document %q has malformed resource identity: %v", manifest.Name, err)))
			continue
		}

		canon, err := canonical.Canonicalize(obj, ignoreFields)
		if err != nil {
			findings = append(findings, unparseable(key.String(),
				fmt.Sprintf("failed to canonicalize %s: %v", key, err)))
			continue
		}
		hash, err := canonical.Hash(canon)
		if err != nil {
			findings = append(findings, unparseable(key.String(),
				fmt.Sprintf("failed to hash %s: %v", key, err)))
			continue
		}

		if _, duplicate := byKey[key]; duplicate {
			findings = append(findings, types.Finding{
				ID:          types.FindingID(types.FindingUnparseable, key.String(), "duplicate"),
				Kind:        types.FindingUnparseable,
				Locator:     key.String(),
				Description: fmt.Sprintf("duplicate manifest for %s; last rendered entry wins", key),
				Remediation: "ensure only one template renders this object",
			})
		} else {
			order = append(order, key)
		}

		byKey[key] = types.ManifestEntry{Key: key, SpecHash: hash, Object: canon}
	}

	entries := make([]types.ManifestEntry, 0, len(order))
	for _, key := range order {
		entries = append(entries, byKey[key])
	}
	return entries, findings
}

// looksLikeResource reports whether the document carries the identity fields
// every Kubernetes resource must have. Documents without them are rendered
// noise, not errors.
func looksLikeResource(obj map[string]interface{}) bool {
	if _, ok := obj["apiVersion"]; !ok {
		return false
	}
	if _, ok := obj["kind"]; !ok {
		return false
	}
	metadata, ok := obj["metadata"].(map[string]interface{})
	if !ok {
		return false
	}
	_, ok = metadata["name"]
	return ok
}

func unparseable(locator, description string) types.Finding {
	return types.Finding{
		ID:          types.FindingID(types.FindingUnparseable, locator, ""),
		Kind:        types.FindingUnparseable,
		Locator:     locator,
		Description: description,
		Remediation: "fix the manifest template so it renders a valid resource",
	}
}
