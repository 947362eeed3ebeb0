// Package audit wires the acquisition, detection and classification stages
// into a single run that produces a Report.
package audit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alevsk/driftwatch/internal/codescan"
	"github.com/alevsk/driftwatch/internal/config"
	"github.com/alevsk/driftwatch/internal/drift"
	"github.com/alevsk/driftwatch/internal/inventory"
	"github.com/alevsk/driftwatch/internal/logger"
	"github.com/alevsk/driftwatch/internal/manifestindex"
	"github.com/alevsk/driftwatch/internal/renderer"
	"github.com/alevsk/driftwatch/internal/report"
	"github.com/alevsk/driftwatch/internal/severity"
	"github.com/alevsk/driftwatch/internal/source"
	"github.com/alevsk/driftwatch/internal/types"
)

// AcquisitionError marks a failure that prevents the pipeline from producing
// any report: the manifest source cannot be rendered at all, or the cluster
// is entirely unreachable. Partial failures degrade to findings instead.
type AcquisitionError struct {
	Phase string
	Err   error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquisition failed during %s: %v", e.Phase, e.Err)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// Runner executes the full audit pipeline.
type Runner struct {
	cfg        *config.Config
	lister     inventory.Lister
	classifier *severity.Classifier
	now        func() time.Time
}

// NewRunner builds a Runner. The exception allowlist is compiled once here so
// a bad selector fails the run before any cluster traffic happens.
func NewRunner(cfg *config.Config, lister inventory.Lister) (*Runner, error) {
	classifier, err := severity.NewClassifier(cfg.AllowedExceptions)
	if err != nil {
		return nil, err
	}
	return &Runner{
		cfg:        cfg,
		lister:     lister,
		classifier: classifier,
		now:        time.Now,
	}, nil
}

// Run renders the manifest source, enumerates the cluster and scans code
// roots concurrently, then diffs, classifies and aggregates. Drift detection
// only starts once both the inventory and the manifest index are complete,
// since diffing needs the full key sets from both sides.
func (r *Runner) Run(ctx context.Context, manifestPath string) (*types.Report, error) {
	rendered, err := source.Resolve(ctx, manifestPath, renderer.DefaultOptions())
	if err != nil {
		return nil, &AcquisitionError{Phase: "render", Err: err}
	}
	return r.runRendered(ctx, rendered, manifestPath)
}

// AuditManifests runs the pipeline against an already-rendered manifest
// stream, bypassing source detection. The HTTP surface uses this.
func (r *Runner) AuditManifests(ctx context.Context, manifests []byte) (*types.Report, error) {
	rendered, err := renderer.NewYAMLRenderer(renderer.DefaultOptions()).Render(ctx, manifests)
	if err != nil {
		return nil, &AcquisitionError{Phase: "render", Err: err}
	}
	return r.runRendered(ctx, rendered, "request-body")
}

func (r *Runner) runRendered(ctx context.Context, rendered *renderer.Result, locator string) (*types.Report, error) {
	declared, findings := manifestindex.Index(rendered.Manifests, r.cfg.IgnoreFields)
	for _, warning := range rendered.Warnings {
		findings = append(findings, types.Finding{
			ID:          types.FindingID(types.FindingUnparseable, locator, warning),
			Kind:        types.FindingUnparseable,
			Locator:     locator,
			Description: warning,
			Remediation: "fix the manifest document so it renders as valid YAML",
		})
	}
	logger.Info().
		Str("source", locator).
		Int("declared", len(declared)).
		Msg("manifest source indexed")

	var (
		live         []types.LiveResource
		inventoryFnd []types.Finding
		scanFnd      []types.Finding
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		inv := inventory.New(r.lister, r.cfg)
		resources, fnd, err := inv.Enumerate(groupCtx)
		if err != nil {
			return &AcquisitionError{Phase: "inventory", Err: err}
		}
		live, inventoryFnd = resources, fnd
		return nil
	})
	if len(r.cfg.CodeScanPaths) > 0 {
		group.Go(func() error {
			scanner, err := codescan.NewScanner(r.cfg)
			if err != nil {
				return err
			}
			fnd, err := scanner.Scan(groupCtx, r.cfg.CodeScanPaths)
			if err != nil {
				return &AcquisitionError{Phase: "codescan", Err: err}
			}
			scanFnd = fnd
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	findings = append(findings, inventoryFnd...)
	findings = append(findings, scanFnd...)
	findings = append(findings, drift.Detect(live, declared)...)

	classified := r.classifier.Classify(findings, r.now())
	rep := report.Aggregate(classified, r.now())
	logger.Info().
		Int("total", rep.Summary.Total).
		Int("critical", rep.Summary.Critical).
		Bool("passed", rep.Passed).
		Msg("audit complete")
	return rep, nil
}
