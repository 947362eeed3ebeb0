package renderer

import (
	"bytes"
	"context"
	"crypto/sha512"
	"fmt"
	"os"
	"path/filepath"

	yaml "gopkg.in/yaml.v3"
	"helm.sh/helm/v3/pkg/chart/loader"
	"helm.sh/helm/v3/pkg/chartutil"
	"helm.sh/helm/v3/pkg/engine"
)

// HelmRenderer implements Renderer for packaged Helm charts
type HelmRenderer struct {
	opts *Options
}

// NewHelmRenderer creates a new HelmRenderer
func NewHelmRenderer(opts *Options) *HelmRenderer {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HelmRenderer{opts: opts}
}

// Validate checks if the input is a valid Helm chart archive
func (r *HelmRenderer) Validate(input []byte) error {
	tempDir, err := os.MkdirTemp("", "helm-validate-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	chartPath := filepath.Join(tempDir, "chart.tgz")
	if err := os.WriteFile(chartPath, input, 0644); err != nil {
		return fmt.Errorf("failed to write chart file: %w", err)
	}

	if _, err := loader.Load(chartPath); err != nil {
		return fmt.Errorf("%w: invalid helm chart: %v", ErrInvalidInput, err)
	}

	return nil
}

// Render loads the chart, applies values and returns the rendered manifests
func (r *HelmRenderer) Render(ctx context.Context, input []byte) (*Result, error) {
	tempDir, err := os.MkdirTemp("", "helm-render-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	chartPath := filepath.Join(tempDir, "chart.tgz")
	if err := os.WriteFile(chartPath, input, 0644); err != nil {
		return nil, fmt.Errorf("failed to write chart file: %w", err)
	}

	chart, err := loader.Load(chartPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load chart: %w", err)
	}

	values := chart.Values
	if values == nil {
		values = make(map[string]interface{})
	}

	// Overlay user-supplied values over the chart defaults
	if r.opts.Values != "" {
		overrides, err := chartutil.ReadValuesFile(r.opts.Values)
		if err != nil {
			return nil, fmt.Errorf("failed to read values file %s: %w", r.opts.Values, err)
		}
		values = chartutil.CoalesceTables(overrides.AsMap(), values)
	}

	options := chartutil.ReleaseOptions{
		Name:      chart.Name(),
		Namespace: "default",
		Revision:  1,
		IsInstall: true,
	}

	valuesToRender, err := chartutil.ToRenderValues(chart, values, options, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create chart values: %w", err)
	}

	helmEngine := engine.Engine{
		LintMode: false,
		Strict:   true,
	}

	rendered, err := helmEngine.Render(chart, valuesToRender)
	if err != nil {
		return nil, fmt.Errorf("failed to render templates: %w", err)
	}

	result := &Result{
		Source:    chart.Name(),
		Manifests: make([]*Manifest, 0),
		Warnings:  make([]string, 0),
	}

	var combined bytes.Buffer

	for name, content := range rendered {
		if content == "" {
			continue
		}
		// Hooks and helpers render alongside resources; non-manifest output
		// like NOTES.txt simply fails to decode and is skipped below.
		if filepath.Ext(name) != ".yaml" && filepath.Ext(name) != ".yml" {
			continue
		}
		combined.WriteString(content)

		decoder := yaml.NewDecoder(bytes.NewReader([]byte(content)))
		docNum := 0
		for {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}

			var doc map[string]interface{}
			if err := decoder.Decode(&doc); err != nil {
				break
			}
			docNum++
			if len(doc) == 0 {
				continue
			}

			manifestName := fmt.Sprintf("%s-%d", filepath.Base(name), docNum)
			raw, err := yaml.Marshal(doc)
			if err != nil {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("failed to encode manifest %s: %v", manifestName, err))
				continue
			}

			manifest := &Manifest{
				Name:    manifestName,
				Content: doc,
				Raw:     raw,
			}

			if r.opts.IncludeMetadata {
				manifest.Metadata = map[string]interface{}{
					"template": name,
					"docNum":   docNum,
				}
			}

			result.Manifests = append(result.Manifests, manifest)
		}
	}

	hash := sha512.Sum512(combined.Bytes())
	result.Version = fmt.Sprintf("sha512:%x", hash)

	return result, nil
}

// AddFile is a no-op; chart archives are self-contained
func (r *HelmRenderer) AddFile(name string, content []byte) error {
	return nil
}
