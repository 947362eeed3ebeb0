// Package renderer turns declarative sources (plain YAML, Helm charts,
// Kustomize overlays) into a stream of rendered Kubernetes manifests. The
// audit engine treats this stream as the desired state of the cluster.
package renderer

import (
	"context"
	"fmt"
)

// Options contains configuration options for renderers
type Options struct {
	// Values is a path to a values.yaml file used for rendering a helm chart
	Values string
	// IncludeMetadata determines if per-document metadata is attached to
	// rendered manifests
	IncludeMetadata bool
}

// DefaultOptions returns a new Options with default values
func DefaultOptions() *Options {
	return &Options{
		IncludeMetadata: true,
	}
}

// Manifest represents a single rendered YAML document
type Manifest struct {
	// Name of the manifest
	Name string `json:"name"`
	// Content is the parsed YAML content
	Content map[string]interface{} `json:"content"`
	// Raw is the original YAML content
	Raw []byte `json:"raw,omitempty"`
	// Metadata contains additional information about the manifest
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Result contains the output of a render operation
type Result struct {
	// Source names the rendered input (file, chart, overlay directory)
	Source string `json:"source"`
	// Version is the content hash of the rendered output
	Version string `json:"version"`
	// Manifests holds every parsed document in render order
	Manifests []*Manifest `json:"manifests"`
	// Warnings are non-fatal problems encountered while rendering
	Warnings []string `json:"warnings,omitempty"`
}

// Error types for the renderer package
var (
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrInvalidFormat = fmt.Errorf("invalid format")
)

// Renderer converts one kind of declarative input into rendered manifests.
// A fatal error from Render means the desired-state stream could not be
// produced at all; per-document problems surface as Result.Warnings.
type Renderer interface {
	// Render processes the input data and returns the rendered manifests.
	// The context can be used to cancel long-running render operations.
	Render(ctx context.Context, input []byte) (*Result, error)

	// Validate checks if the input can be handled by this renderer.
	Validate(input []byte) error

	// AddFile adds a supporting file to the renderer's context. Renderers
	// that operate on a single input ignore it.
	AddFile(name string, content []byte) error
}
