package canonical

import (
	"sort"
	"testing"

	"gopkg.in/yaml.v3"
)

func deployment(replicas interface{}, resourceVersion string) map[string]interface{} {
	obj := map[string]interface{}{
		"apiVersion": "apps/v1",
		"kind":       "Deployment",
		"metadata": map[string]interface{}{
			"name":      "api-service",
			"namespace": "production",
		},
		"spec": map[string]interface{}{
			"replicas": replicas,
		},
	}
	if resourceVersion != "" {
		obj["metadata"].(map[string]interface{})["resourceVersion"] = resourceVersion
		obj["status"] = map[string]interface{}{"readyReplicas": replicas}
	}
	return obj
}

func TestCanonicalizeStripsRuntimeFields(t *testing.T) {
	obj := deployment(3, "12345")
	obj["metadata"].(map[string]interface{})["managedFields"] = []interface{}{"x"}
	obj["metadata"].(map[string]interface{})["uid"] = "abc-123"
	obj["metadata"].(map[string]interface{})["annotations"] = map[string]interface{}{
		lastAppliedAnnotation: "{}",
		"team":                "platform",
	}

	got, err := Canonicalize(obj, nil)
	if err != nil {
		t.Fatalf("Canonicalize() error: %v", err)
	}

	metadata := got["metadata"].(map[string]interface{})
	for _, field := range []string{"resourceVersion", "managedFields", "uid"} {
		if _, present := metadata[field]; present {
			t.Errorf("metadata.%s not stripped", field)
		}
	}
	if _, present := got["status"]; present {
		t.Error("status not stripped")
	}

	annotations := metadata["annotations"].(map[string]interface{})
	if _, present := annotations[lastAppliedAnnotation]; present {
		t.Error("last-applied annotation not stripped")
	}
	if annotations["team"] != "platform" {
		t.Error("user annotation lost during canonicalization")
	}
}

func TestCanonicalizeExtraIgnorePaths(t *testing.T) {
	obj := deployment(3, "")
	obj["spec"].(map[string]interface{})["revisionHistoryLimit"] = 10

	got, err := Canonicalize(obj, []string{"spec.revisionHistoryLimit"})
	if err != nil {
		t.Fatalf("Canonicalize() error: %v", err)
	}
	if _, present := got["spec"].(map[string]interface{})["revisionHistoryLimit"]; present {
		t.Error("configured ignore path not stripped")
	}
}

// Hashes must match across sources even though yaml.v3 decodes numbers as
// int while the API server decodes them as int64.
func TestHashSymmetryAcrossDecoders(t *testing.T) {
	var declared map[string]interface{}
	doc := "apiVersion: apps/v1\nkind: Deployment\nmetadata:\n  name: api-service\n  namespace: production\nspec:\n  replicas: 3\n"
	if err := yaml.Unmarshal([]byte(doc), &declared); err != nil {
		t.Fatalf("yaml.Unmarshal() error: %v", err)
	}

	live := deployment(int64(3), "98765")

	canonDeclared, err := Canonicalize(declared, nil)
	if err != nil {
		t.Fatalf("Canonicalize(declared) error: %v", err)
	}
	canonLive, err := Canonicalize(live, nil)
	if err != nil {
		t.Fatalf("Canonicalize(live) error: %v", err)
	}

	hashDeclared, err := Hash(canonDeclared)
	if err != nil {
		t.Fatalf("Hash(declared) error: %v", err)
	}
	hashLive, err := Hash(canonLive)
	if err != nil {
		t.Fatalf("Hash(live) error: %v", err)
	}

	if hashDeclared != hashLive {
		t.Errorf("hashes differ: declared=%s live=%s", hashDeclared, hashLive)
	}
}

func TestKeyFromObject(t *testing.T) {
	tests := []struct {
		name    string
		obj     map[string]interface{}
		want    string
		wantErr bool
	}{
		{
			name: "grouped resource",
			obj:  deployment(1, ""),
			want: "apps/v1/Deployment/production/api-service",
		},
		{
			name: "core group resource",
			obj: map[string]interface{}{
				"apiVersion": "v1",
				"kind":       "Service",
				"metadata":   map[string]interface{}{"name": "web", "namespace": "default"},
			},
			want: "core/v1/Service/default/web",
		},
		{
			name: "missing name",
			obj: map[string]interface{}{
				"apiVersion": "v1",
				"kind":       "Service",
				"metadata":   map[string]interface{}{},
			},
			wantErr: true,
		},
		{
			name: "non-string namespace",
			obj: map[string]interface{}{
				"apiVersion": "v1",
				"kind":       "Service",
				"metadata":   map[string]interface{}{"name": "web", "namespace": 42},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := KeyFromObject(tt.obj)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("KeyFromObject() error: %v", err)
			}
			if key.String() != tt.want {
				t.Errorf("key = %q, want %q", key.String(), tt.want)
			}
		})
	}
}

func TestDiff(t *testing.T) {
	declared, _ := Canonicalize(deployment(3, ""), nil)
	liveObj := deployment(int64(5), "")
	liveObj["spec"].(map[string]interface{})["paused"] = true
	live, _ := Canonicalize(liveObj, nil)

	diffs := Diff(declared, live)

	paths := make([]string, 0, len(diffs))
	for _, d := range diffs {
		paths = append(paths, d.Path)
	}
	sort.Strings(paths)

	want := []string{"spec.paused", "spec.replicas"}
	if len(paths) != len(want) {
		t.Fatalf("diff paths = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Fatalf("diff paths = %v, want %v", paths, want)
		}
	}
}

func TestDiffOrderedByPath(t *testing.T) {
	declared := map[string]interface{}{
		"spec": map[string]interface{}{
			"replicas":               float64(3),
			"paused":                 false,
			"minReadySeconds":        float64(10),
			"progressDeadline":       float64(600),
			"revisionHistoryLimit":   float64(5),
			"terminationGracePeriod": float64(30),
		},
	}
	live := map[string]interface{}{
		"spec": map[string]interface{}{
			"replicas":               float64(5),
			"paused":                 true,
			"minReadySeconds":        float64(20),
			"progressDeadline":       float64(300),
			"revisionHistoryLimit":   float64(2),
			"terminationGracePeriod": float64(60),
		},
	}

	want := []string{
		"spec.minReadySeconds",
		"spec.paused",
		"spec.progressDeadline",
		"spec.replicas",
		"spec.revisionHistoryLimit",
		"spec.terminationGracePeriod",
	}
	for run := 0; run < 10; run++ {
		diffs := Diff(declared, live)
		if len(diffs) != len(want) {
			t.Fatalf("run %d: got %d diffs, want %d", run, len(diffs), len(want))
		}
		for i, d := range diffs {
			if d.Path != want[i] {
				t.Fatalf("run %d: diff %d path = %q, want %q", run, i, d.Path, want[i])
			}
		}
	}
}

func TestDiffArraysByIndex(t *testing.T) {
	declared := map[string]interface{}{
		"spec": map[string]interface{}{
			"args": []interface{}{"--verbose", "--port=8080"},
		},
	}
	live := map[string]interface{}{
		"spec": map[string]interface{}{
			"args": []interface{}{"--verbose", "--port=9090", "--debug"},
		},
	}

	diffs := Diff(declared, live)
	if len(diffs) != 2 {
		t.Fatalf("got %d diffs, want 2: %+v", len(diffs), diffs)
	}
	if diffs[0].Path != "spec.args[1]" || diffs[1].Path != "spec.args[2]" {
		t.Errorf("unexpected diff paths: %+v", diffs)
	}
}

func TestDiffIdenticalObjects(t *testing.T) {
	declared, _ := Canonicalize(deployment(3, ""), nil)
	live, _ := Canonicalize(deployment(int64(3), "555"), nil)

	if diffs := Diff(declared, live); len(diffs) != 0 {
		t.Errorf("expected no diffs, got %+v", diffs)
	}
}
