package classifier

import (
	"context"
	"fmt"
	"math"

	"github.com/srujkamble02/ishara/internal/detector"
)

// Template is a reference hand shape for one letter. Landmarks are wrist
// relative and scaled so that wrist to middle MCP is 1.0.
type Template struct {
	Label     string              `json:"label"`
	Landmarks []detector.Landmark `json:"landmarks"`
	// Tolerance is the maximum distance for a non-zero score. Zero disables the cutoff.
	Tolerance float64 `json:"tolerance,omitempty"`
}

// TemplateModel scores letters by their nearest reference template:
// score = 1 / (1 + distance). Letters with no template always score 0.
type TemplateModel struct {
	templates [NumLabels][]Template
}

// NewTemplateModel indexes templates by label.
func NewTemplateModel(templates []Template) (*TemplateModel, error) {
	if len(templates) == 0 {
		return nil, fmt.Errorf("%w: no templates", ErrArtifact)
	}

	m := &TemplateModel{}
	for i, t := range templates {
		idx := LabelIndex(t.Label)
		if idx < 0 {
			return nil, fmt.Errorf("%w: template %d has unknown label %q", ErrArtifact, i, t.Label)
		}
		if len(t.Landmarks) != detector.NumLandmarks {
			return nil, fmt.Errorf("%w: template %d (%s) has %d landmarks, want %d",
				ErrArtifact, i, t.Label, len(t.Landmarks), detector.NumLandmarks)
		}
		if t.Tolerance < 0 {
			return nil, fmt.Errorf("%w: template %d (%s) has negative tolerance", ErrArtifact, i, t.Label)
		}
		m.templates[idx] = append(m.templates[idx], t)
	}
	return m, nil
}

// TemplateFromPose builds a template from a well-formed pose.
func TemplateFromPose(label string, pose *detector.HandPose, tolerance float64) (Template, error) {
	fv, err := pose.Normalize()
	if err != nil {
		return Template{}, err
	}
	return Template{Label: label, Landmarks: fv.ScaleNormalized(), Tolerance: tolerance}, nil
}

// Name implements Model.
func (m *TemplateModel) Name() string { return KindTemplates }

// Score implements Model.
func (m *TemplateModel) Score(ctx context.Context, fv detector.FeatureVector) (Scores, error) {
	var scores Scores
	if err := ctx.Err(); err != nil {
		return scores, err
	}

	input := fv.ScaleNormalized()
	for i, ts := range m.templates {
		for _, t := range ts {
			distance := euclideanDistance(input, t.Landmarks)
			if t.Tolerance > 0 && distance > t.Tolerance {
				continue
			}
			if s := 1.0 / (1.0 + distance); s > scores[i] {
				scores[i] = s
			}
		}
	}
	return scores, nil
}

// euclideanDistance sums the distances between corresponding points.
func euclideanDistance(a, b []detector.Landmark) float64 {
	n := min(len(a), len(b))

	var total float64
	for i := 0; i < n; i++ {
		dx := a[i].X - b[i].X
		dy := a[i].Y - b[i].Y
		dz := a[i].Z - b[i].Z
		total += math.Sqrt(dx*dx + dy*dy + dz*dz)
	}
	return total
}
