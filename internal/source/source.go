// Package source resolves a declarative source path (rendered YAML file,
// packaged Helm chart, Kustomize overlay or a folder of manifests) into the
// rendered manifest stream the audit pipeline consumes.
package source

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alevsk/driftwatch/internal/renderer"
)

// ErrUnsupportedSource is returned when a path cannot be mapped to any
// renderer.
var ErrUnsupportedSource = fmt.Errorf("unsupported source")

// Detect determines which renderer handles the given path.
func Detect(path string) (renderer.Type, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat source: %w", err)
	}

	if !info.IsDir() {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			return renderer.TypeYAML, nil
		case ".tgz":
			return renderer.TypeHelm, nil
		default:
			return "", fmt.Errorf("%w: %s", ErrUnsupportedSource, path)
		}
	}

	for _, identifier := range []string{"kustomization.yaml", "kustomization.yml"} {
		if fi, err := os.Stat(filepath.Join(path, identifier)); err == nil && !fi.IsDir() {
			return renderer.TypeKustomize, nil
		}
	}
	for _, identifier := range []string{"Chart.yaml", "Chart.yml"} {
		if fi, err := os.Stat(filepath.Join(path, identifier)); err == nil && !fi.IsDir() {
			// Unpacked charts are a build input, not rendered output.
			return "", fmt.Errorf("%w: unpacked helm chart at %s, package it first", ErrUnsupportedSource, path)
		}
	}

	return renderer.TypeYAML, nil
}

// Resolve renders the source at path and returns the manifest stream. Any
// error here means the desired state could not be acquired at all; callers
// treat it as fatal.
func Resolve(ctx context.Context, path string, opts *renderer.Options) (*renderer.Result, error) {
	typ, err := Detect(path)
	if err != nil {
		return nil, err
	}

	factory := renderer.NewFactory(opts)
	r, err := factory.GetRenderer(typ)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat source: %w", err)
	}

	switch {
	case !info.IsDir():
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read source %s: %w", path, err)
		}
		result, err := r.Render(ctx, content)
		if err != nil {
			return nil, err
		}
		result.Source = path
		return result, nil

	case typ == renderer.TypeKustomize:
		if err := addTree(r, path); err != nil {
			return nil, err
		}
		result, err := r.Render(ctx, []byte(path))
		if err != nil {
			return nil, err
		}
		result.Source = path
		return result, nil

	default:
		// Plain folder of manifests: concatenate every YAML file into one
		// stream, in stable path order.
		content, err := concatYAML(path)
		if err != nil {
			return nil, err
		}
		if len(content) == 0 {
			return nil, fmt.Errorf("%w: no YAML manifests under %s", ErrUnsupportedSource, path)
		}
		result, err := r.Render(ctx, content)
		if err != nil {
			return nil, err
		}
		result.Source = path
		return result, nil
	}
}

func addTree(r renderer.Renderer, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read file %s: %w", path, err)
		}
		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("failed to get relative path for %s: %w", path, err)
		}
		return r.AddFile(relPath, content)
	})
}

func concatYAML(root string) ([]byte, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".yaml" || ext == ".yml" {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}
	sort.Strings(paths)

	var buf bytes.Buffer
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", path, err)
		}
		if buf.Len() > 0 {
			buf.WriteString("\n---\n")
		}
		buf.Write(content)
	}
	return buf.Bytes(), nil
}
