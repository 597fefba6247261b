package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrArtifact is returned when a classifier artifact cannot be loaded.
var ErrArtifact = errors.New("invalid classifier artifact")

// maxArtifactSize bounds artifact files read from disk.
const maxArtifactSize = 64 << 20

// Artifact kinds.
const (
	KindMLP       = "mlp"
	KindTemplates = "templates"
)

// Artifact is the on-disk classifier description.
type Artifact struct {
	Kind      string     `json:"kind"`
	Labels    []string   `json:"labels,omitempty"`
	Layers    []Layer    `json:"layers,omitempty"`
	Templates []Template `json:"templates,omitempty"`
}

// LoadResult is delivered once by LoadAsync.
type LoadResult struct {
	Model Model
	Err   error
}

// Load reads and validates the artifact at path.
func Load(ctx context.Context, path string) (Model, error) {
	cleanPath := filepath.Clean(path)

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArtifact, err)
	}
	if info.Size() > maxArtifactSize {
		return nil, fmt.Errorf("%w: %s is %d bytes (max %d)", ErrArtifact, cleanPath, info.Size(), maxArtifactSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArtifact, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return Parse(data)
}

// LoadAsync loads the artifact in the background. The returned channel
// receives exactly one result and is then closed.
func LoadAsync(ctx context.Context, path string) <-chan LoadResult {
	ch := make(chan LoadResult, 1)
	go func() {
		defer close(ch)
		m, err := Load(ctx, path)
		ch <- LoadResult{Model: m, Err: err}
	}()
	return ch
}

// Parse builds a Model from artifact JSON.
func Parse(data []byte) (Model, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArtifact, err)
	}
	return a.Build()
}

// Build validates the artifact and constructs its backend.
func (a *Artifact) Build() (Model, error) {
	if len(a.Labels) > 0 {
		if len(a.Labels) != NumLabels {
			return nil, fmt.Errorf("%w: %d labels, want %d", ErrArtifact, len(a.Labels), NumLabels)
		}
		for i, l := range a.Labels {
			if l != Labels[i] {
				return nil, fmt.Errorf("%w: label %d is %q, want %q", ErrArtifact, i, l, Labels[i])
			}
		}
	}

	switch a.Kind {
	case KindMLP:
		m, err := NewMLP(a.Layers)
		if err != nil {
			return nil, err
		}
		return m, nil
	case KindTemplates:
		m, err := NewTemplateModel(a.Templates)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrArtifact, a.Kind)
	}
}
