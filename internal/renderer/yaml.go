package renderer

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha512"
	"fmt"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

// YAMLRenderer implements the Renderer interface for plain YAML files
type YAMLRenderer struct {
	opts *Options
}

// NewYAMLRenderer creates a new YAMLRenderer
func NewYAMLRenderer(opts *Options) *YAMLRenderer {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &YAMLRenderer{opts: opts}
}

// Render processes YAML input and returns the parsed manifests. Documents
// are split on `---` separators and decoded independently, so one malformed
// document becomes a warning without losing the rest of the stream.
func (r *YAMLRenderer) Render(ctx context.Context, input []byte) (*Result, error) {
	if err := r.Validate(input); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	hash := sha512.Sum512(input)

	result := &Result{
		Version:   fmt.Sprintf("sha512:%x", hash),
		Manifests: make([]*Manifest, 0),
	}

	for docNum, doc := range splitDocuments(input) {
		// Check for context cancellation
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		var obj map[string]interface{}
		if err := yaml.Unmarshal(doc, &obj); err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("failed to parse document %d: %v", docNum+1, err))
			continue
		}

		// Skip empty documents
		if len(obj) == 0 {
			continue
		}

		name := fmt.Sprintf("document-%d", docNum+1)
		if metadata, ok := obj["metadata"].(map[string]interface{}); ok {
			if n, ok := metadata["name"].(string); ok && n != "" {
				name = n
			}
		}

		raw, err := yaml.Marshal(obj)
		if err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("document %d: failed to re-encode: %v", docNum+1, err))
			continue
		}

		manifest := &Manifest{
			Name:    name,
			Content: obj,
			Raw:     raw,
		}

		if r.opts.IncludeMetadata {
			manifest.Metadata = map[string]interface{}{
				"docNum": docNum + 1,
			}
		}

		result.Manifests = append(result.Manifests, manifest)
	}

	return result, nil
}

// Validate checks that the input contains at least one decodable YAML
// document. Individual malformed documents are tolerated and reported as
// warnings during Render.
func (r *YAMLRenderer) Validate(input []byte) error {
	if len(input) == 0 {
		return ErrInvalidInput
	}

	for _, doc := range splitDocuments(input) {
		var obj interface{}
		if err := yaml.Unmarshal(doc, &obj); err != nil {
			continue
		}
		switch obj.(type) {
		case map[string]interface{}, []interface{}, nil:
			return nil
		}
	}

	return fmt.Errorf("%w: no valid YAML documents found", ErrInvalidFormat)
}

// AddFile is a no-op; plain YAML rendering needs no supporting files
func (r *YAMLRenderer) AddFile(name string, content []byte) error {
	return nil
}

// splitDocuments cuts a multi-document stream on `---` separator lines.
// Chunks that are pure whitespace are dropped.
func splitDocuments(input []byte) [][]byte {
	var docs [][]byte
	var current bytes.Buffer

	flush := func() {
		if strings.TrimSpace(current.String()) != "" {
			chunk := make([]byte, current.Len())
			copy(chunk, current.Bytes())
			docs = append(docs, chunk)
		}
		current.Reset()
	}

	scanner := bufio.NewScanner(bytes.NewReader(input))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		// Separators must start at column 0 per the YAML spec.
		if strings.TrimRight(line, " \t\r") == "---" || strings.HasPrefix(line, "--- ") {
			flush()
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
	}
	flush()

	return docs
}
