package renderer

// Type represents the kind of declarative source a renderer handles
type Type string

const (
	// TypeYAML represents plain YAML/JSON manifests
	TypeYAML Type = "yaml"
	// TypeHelm represents packaged Helm charts
	TypeHelm Type = "helm"
	// TypeKustomize represents Kustomize overlay directories
	TypeKustomize Type = "kustomize"
)

// Factory creates renderers with shared default options
type Factory struct {
	defaultOpts *Options
}

// NewFactory creates a new Factory with the given default options
func NewFactory(opts *Options) *Factory {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Factory{defaultOpts: opts}
}

// GetRenderer returns a renderer for the given source type
func (f *Factory) GetRenderer(typ Type) (Renderer, error) {
	switch typ {
	case TypeYAML:
		return NewYAMLRenderer(f.defaultOpts), nil
	case TypeHelm:
		return NewHelmRenderer(f.defaultOpts), nil
	case TypeKustomize:
		return NewKustomizeRenderer(f.defaultOpts), nil
	default:
		return nil, ErrInvalidFormat
	}
}
