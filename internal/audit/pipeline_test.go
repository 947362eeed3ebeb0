package audit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/alevsk/driftwatch/internal/config"
	"github.com/alevsk/driftwatch/internal/inventory"
	"github.com/alevsk/driftwatch/internal/report"
	"github.com/alevsk/driftwatch/internal/types"
)

var deploymentsGVR = schema.GroupVersionResource{Group: "apps", Version: "v1", Resource: "deployments"}

type stubLister struct {
	resources  []inventory.APIResource
	namespaces []string
	objects    map[string][]unstructured.Unstructured
}

func (s *stubLister) ListableResources(ctx context.Context) ([]inventory.APIResource, error) {
	return s.resources, nil
}

func (s *stubLister) Namespaces(ctx context.Context) ([]string, error) {
	return s.namespaces, nil
}

func (s *stubLister) List(ctx context.Context, resource schema.GroupVersionResource, namespace string) (*unstructured.UnstructuredList, error) {
	list := &unstructured.UnstructuredList{}
	list.Items = append(list.Items, s.objects[namespace+"/"+resource.Resource]...)
	return list, nil
}

func liveDeployment(name string, replicas int64) unstructured.Unstructured {
	return unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "apps/v1",
		"kind":       "Deployment",
		"metadata": map[string]interface{}{
			"name":            name,
			"namespace":       "production",
			"resourceVersion": "42",
			"uid":             "uid-" + name,
		},
		"spec":   map[string]interface{}{"replicas": replicas},
		"status": map[string]interface{}{"readyReplicas": replicas},
	}}
}

const declaredAPIService = `apiVersion: apps/v1
kind: Deployment
metadata:
  name: api-service
  namespace: production
spec:
  replicas: 3
`

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifests.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func timeFarFuture() time.Time {
	return time.Now().Add(24 * time.Hour)
}

func pipelineConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Namespaces = []string{"production"}
	cfg.MaxConcurrency = 4
	return cfg
}

func productionLister(objects []unstructured.Unstructured) *stubLister {
	return &stubLister{
		resources: []inventory.APIResource{
			{GVR: deploymentsGVR, Kind: "Deployment", Namespaced: true},
		},
		namespaces: []string{"production"},
		objects: map[string][]unstructured.Unstructured{
			"production/deployments": objects,
		},
	}
}

// The undeclared debug-pod is the canonical cluster-drift case: exactly one
// CRITICAL finding for it, none for the declared api-service.
func TestRunClusterDrift(t *testing.T) {
	lister := productionLister([]unstructured.Unstructured{
		liveDeployment("api-service", 3),
		liveDeployment("debug-pod", 1),
	})

	runner, err := NewRunner(pipelineConfig(), lister)
	if err != nil {
		t.Fatal(err)
	}
	rep, err := runner.Run(context.Background(), writeManifest(t, declaredAPIService))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(rep.Findings) != 1 {
		t.Fatalf("got %d findings, want 1: %+v", len(rep.Findings), rep.Findings)
	}
	finding := rep.Findings[0]
	if finding.Kind != types.FindingClusterDrift {
		t.Errorf("kind = %s, want %s", finding.Kind, types.FindingClusterDrift)
	}
	if want := "apps/v1/Deployment/production/debug-pod"; finding.Locator != want {
		t.Errorf("locator = %s, want %s", finding.Locator, want)
	}
	if finding.Severity != types.SeverityCritical {
		t.Errorf("severity = %s, want CRITICAL", finding.Severity)
	}
	if rep.Passed {
		t.Error("passed = true with a critical finding")
	}
	if got := report.ExitCode(rep); got != report.ExitCritical {
		t.Errorf("exit code = %d, want %d", got, report.ExitCritical)
	}
}

func TestRunCleanCluster(t *testing.T) {
	lister := productionLister([]unstructured.Unstructured{
		liveDeployment("api-service", 3),
	})

	runner, err := NewRunner(pipelineConfig(), lister)
	if err != nil {
		t.Fatal(err)
	}
	rep, err := runner.Run(context.Background(), writeManifest(t, declaredAPIService))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(rep.Findings) != 0 {
		t.Fatalf("expected clean report, got %+v", rep.Findings)
	}
	if !rep.Passed {
		t.Error("passed = false for clean cluster")
	}
	if got := report.ExitCode(rep); got != report.ExitClean {
		t.Errorf("exit code = %d, want %d", got, report.ExitClean)
	}
}

func TestRunSpecDrift(t *testing.T) {
	lister := productionLister([]unstructured.Unstructured{
		liveDeployment("api-service", 5),
	})

	runner, err := NewRunner(pipelineConfig(), lister)
	if err != nil {
		t.Fatal(err)
	}
	rep, err := runner.Run(context.Background(), writeManifest(t, declaredAPIService))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(rep.Findings) != 1 {
		t.Fatalf("got %d findings, want 1: %+v", len(rep.Findings), rep.Findings)
	}
	finding := rep.Findings[0]
	if finding.Kind != types.FindingSpecDrift {
		t.Errorf("kind = %s, want %s", finding.Kind, types.FindingSpecDrift)
	}
	if finding.FieldPath != "spec.replicas" {
		t.Errorf("fieldPath = %s, want spec.replicas", finding.FieldPath)
	}
	if finding.Severity != types.SeverityWarning {
		t.Errorf("severity = %s, want WARNING", finding.Severity)
	}
	if !rep.Passed {
		t.Error("passed = false with warnings only")
	}
	if got := report.ExitCode(rep); got != report.ExitWarning {
		t.Errorf("exit code = %d, want %d", got, report.ExitWarning)
	}
}

func TestRunExceptionDowngradesDrift(t *testing.T) {
	lister := productionLister([]unstructured.Unstructured{
		liveDeployment("api-service", 3),
		liveDeployment("debug-pod", 1),
	})

	cfg := pipelineConfig()
	cfg.AllowedExceptions = []types.ExceptionRule{{
		Selector:  "apps/v1/Deployment/production/debug-pod",
		Reason:    "incident debugging",
		ExpiresAt: timeFarFuture(),
	}}

	runner, err := NewRunner(cfg, lister)
	if err != nil {
		t.Fatal(err)
	}
	rep, err := runner.Run(context.Background(), writeManifest(t, declaredAPIService))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(rep.Findings) != 1 {
		t.Fatalf("got %d findings, want 1: %+v", len(rep.Findings), rep.Findings)
	}
	if rep.Findings[0].Severity != types.SeverityInfo {
		t.Errorf("severity = %s, want INFO", rep.Findings[0].Severity)
	}
	if !rep.Passed {
		t.Error("passed = false after exception downgrade")
	}
}

func TestRunWithCodeScan(t *testing.T) {
	lister := productionLister([]unstructured.Unstructured{
		liveDeployment("api-service", 3),
	})

	codeRoot := t.TempDir()
	script := filepath.Join(codeRoot, "deploy.sh")
	if err := os.WriteFile(script, []byte("kubectl apply -f manifests/\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := pipelineConfig()
	cfg.CodeScanPaths = []string{codeRoot}

	runner, err := NewRunner(cfg, lister)
	if err != nil {
		t.Fatal(err)
	}
	rep, err := runner.Run(context.Background(), writeManifest(t, declaredAPIService))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(rep.Findings) != 1 {
		t.Fatalf("got %d findings, want 1: %+v", len(rep.Findings), rep.Findings)
	}
	if rep.Findings[0].Kind != types.FindingCodeViolation {
		t.Errorf("kind = %s, want %s", rep.Findings[0].Kind, types.FindingCodeViolation)
	}
	if rep.Findings[0].Severity != types.SeverityCritical {
		t.Errorf("severity = %s, want CRITICAL", rep.Findings[0].Severity)
	}
}

func TestRunFatalRenderError(t *testing.T) {
	runner, err := NewRunner(pipelineConfig(), productionLister(nil))
	if err != nil {
		t.Fatal(err)
	}

	_, err = runner.Run(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing manifest source")
	}
	var acquisition *AcquisitionError
	if !errors.As(err, &acquisition) {
		t.Fatalf("error = %v, want AcquisitionError", err)
	}
	if acquisition.Phase != "render" {
		t.Errorf("phase = %s, want render", acquisition.Phase)
	}
}

func TestRunMalformedDocumentDegrades(t *testing.T) {
	manifests := declaredAPIService + "---\n{not: [valid\n"
	lister := productionLister([]unstructured.Unstructured{
		liveDeployment("api-service", 3),
	})

	runner, err := NewRunner(pipelineConfig(), lister)
	if err != nil {
		t.Fatal(err)
	}
	rep, err := runner.Run(context.Background(), writeManifest(t, manifests))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	var sawUnparseable bool
	for _, f := range rep.Findings {
		if f.Kind == types.FindingUnparseable {
			sawUnparseable = true
		}
		if f.Kind == types.FindingClusterDrift || f.Kind == types.FindingSpecDrift {
			t.Errorf("unexpected drift finding: %+v", f)
		}
	}
	if !sawUnparseable {
		t.Errorf("expected an unparseable finding, got %+v", rep.Findings)
	}
}

func TestNewRunnerInvalidException(t *testing.T) {
	cfg := pipelineConfig()
	cfg.AllowedExceptions = []types.ExceptionRule{{Selector: "["}}
	if _, err := NewRunner(cfg, productionLister(nil)); err == nil {
		t.Error("expected error for invalid exception selector")
	}
}
