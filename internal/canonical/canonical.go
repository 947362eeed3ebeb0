// Package canonical normalizes Kubernetes objects so that live and declared
// copies of the same resource hash and diff identically. Both the cluster
// inventory and the manifest index must use this package; the drift detector
// relies on that symmetry.
package canonical

import (
	"crypto/sha512"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/alevsk/driftwatch/internal/types"
)

// lastAppliedAnnotation is written by kubectl on every apply and never
// represents declared state.
const lastAppliedAnnotation = "kubectl.kubernetes.io/last-applied-configuration"

// DefaultIgnorePaths returns the dotted field paths stripped before hashing.
// These fields are runtime-generated and must never trigger drift. The list
// is a default, not an authority: deployments can extend it via the
// ignore_fields config key.
func DefaultIgnorePaths() []string {
	return []string{
		"metadata.resourceVersion",
		"metadata.managedFields",
		"metadata.creationTimestamp",
		"metadata.generation",
		"metadata.uid",
		"metadata.selfLink",
		"status",
	}
}

// Canonicalize deep-copies obj, strips the default noise fields plus any
// extra dotted paths, and normalizes all scalar types through a JSON round
// trip so YAML-decoded and API-server-decoded objects compare equal.
func Canonicalize(obj map[string]interface{}, extraIgnore []string) (map[string]interface{}, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize object: %w", err)
	}

	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to normalize object: %w", err)
	}

	for _, path := range DefaultIgnorePaths() {
		removePath(out, strings.Split(path, "."))
	}
	for _, path := range extraIgnore {
		removePath(out, strings.Split(path, "."))
	}

	// The last-applied annotation key contains dots, so it cannot be
	// expressed as a dotted path.
	if metadata, ok := out["metadata"].(map[string]interface{}); ok {
		if annotations, ok := metadata["annotations"].(map[string]interface{}); ok {
			delete(annotations, lastAppliedAnnotation)
			if len(annotations) == 0 {
				delete(metadata, "annotations")
			}
		}
	}

	return out, nil
}

// Hash returns the canonical spec hash of an already-canonicalized object.
// JSON marshaling sorts map keys, so the digest is stable across runs.
func Hash(canonical map[string]interface{}) (string, error) {
	data, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("failed to hash object: %w", err)
	}
	sum := sha512.Sum512(data)
	return fmt.Sprintf("sha512:%x", sum), nil
}

// KeyFromObject extracts the ResourceKey identity fields from a decoded
// object. It returns an error when any identity field is present but not a
// string; callers decide whether a missing field means skip or finding.
func KeyFromObject(obj map[string]interface{}) (types.ResourceKey, error) {
	apiVersion, ok := obj["apiVersion"].(string)
	if !ok || apiVersion == "" {
		return types.ResourceKey{}, fmt.Errorf("missing or invalid apiVersion")
	}

	kind, ok := obj["kind"].(string)
	if !ok || kind == "" {
		return types.ResourceKey{}, fmt.Errorf("missing or invalid kind")
	}

	metadata, ok := obj["metadata"].(map[string]interface{})
	if !ok {
		return types.ResourceKey{}, fmt.Errorf("missing or invalid metadata")
	}

	name, ok := metadata["name"].(string)
	if !ok || name == "" {
		return types.ResourceKey{}, fmt.Errorf("missing or invalid metadata.name")
	}

	namespace := ""
	if ns, present := metadata["namespace"]; present {
		namespace, ok = ns.(string)
		if !ok {
			return types.ResourceKey{}, fmt.Errorf("invalid metadata.namespace")
		}
	}

	key := types.ResourceKey{Version: apiVersion, Kind: kind, Namespace: namespace, Name: name}
	if group, version, found := strings.Cut(apiVersion, "/"); found {
		key.Group = group
		key.Version = version
	}
	return key, nil
}

// FieldDiff is one differing leaf field between declared and live copies of
// a resource.
type FieldDiff struct {
	Path     string
	Expected interface{}
	Actual   interface{}
}

// Diff walks both canonicalized objects and returns one entry per differing
// leaf field path, in lexical path order so repeated runs over the same
// objects always produce the same sequence. Arrays are diffed by index
// position; there is no semantic list matching.
func Diff(expected, actual map[string]interface{}) []FieldDiff {
	var diffs []FieldDiff
	diffValue("", expected, actual, &diffs)
	return diffs
}

func diffValue(path string, expected, actual interface{}, diffs *[]FieldDiff) {
	switch exp := expected.(type) {
	case map[string]interface{}:
		act, ok := actual.(map[string]interface{})
		if !ok {
			*diffs = append(*diffs, FieldDiff{Path: path, Expected: expected, Actual: actual})
			return
		}
		// Map iteration order is randomized; walk the union of keys sorted.
		keys := make([]string, 0, len(exp))
		for key := range exp {
			keys = append(keys, key)
		}
		for key := range act {
			if _, present := exp[key]; !present {
				keys = append(keys, key)
			}
		}
		sort.Strings(keys)
		for _, key := range keys {
			expVal, inExpected := exp[key]
			actVal, inActual := act[key]
			switch {
			case !inActual:
				*diffs = append(*diffs, FieldDiff{Path: joinPath(path, key), Expected: expVal, Actual: nil})
			case !inExpected:
				*diffs = append(*diffs, FieldDiff{Path: joinPath(path, key), Expected: nil, Actual: actVal})
			default:
				diffValue(joinPath(path, key), expVal, actVal, diffs)
			}
		}
	case []interface{}:
		act, ok := actual.([]interface{})
		if !ok {
			*diffs = append(*diffs, FieldDiff{Path: path, Expected: expected, Actual: actual})
			return
		}
		longest := len(exp)
		if len(act) > longest {
			longest = len(act)
		}
		for i := 0; i < longest; i++ {
			indexPath := path + "[" + strconv.Itoa(i) + "]"
			switch {
			case i >= len(exp):
				*diffs = append(*diffs, FieldDiff{Path: indexPath, Expected: nil, Actual: act[i]})
			case i >= len(act):
				*diffs = append(*diffs, FieldDiff{Path: indexPath, Expected: exp[i], Actual: nil})
			default:
				diffValue(indexPath, exp[i], act[i], diffs)
			}
		}
	default:
		if expected != actual {
			*diffs = append(*diffs, FieldDiff{Path: path, Expected: expected, Actual: actual})
		}
	}
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func removePath(obj map[string]interface{}, segments []string) {
	if len(segments) == 0 {
		return
	}
	if len(segments) == 1 {
		delete(obj, segments[0])
		return
	}
	child, ok := obj[segments[0]].(map[string]interface{})
	if !ok {
		return
	}
	removePath(child, segments[1:])
}
