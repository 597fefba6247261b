package gate

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"

	"github.com/srujkamble02/ishara/internal/classifier"
)

func prediction(label string, confidence float64) classifier.Prediction {
	return classifier.Prediction{
		Label:      label,
		Index:      classifier.LabelIndex(label),
		Confidence: confidence,
	}
}

// visible strips the fields that only explain a result.
type visible struct {
	Label       string
	HandPresent bool
}

func view(r Result) visible {
	return visible{Label: r.Label, HandPresent: r.HandPresent}
}

func TestGate_ReferenceScenario(t *testing.T) {
	g := New(DefaultConfig())

	frames := []Observation{
		NoHand(),
		Predicted(prediction("A", 0.9)),
		Predicted(prediction("B", 0.1)),
		NoHand(),
	}
	want := []visible{
		{Label: "", HandPresent: false},
		{Label: "A", HandPresent: true},
		{Label: "A", HandPresent: true},
		{Label: "", HandPresent: false},
	}

	var got []visible
	for _, obs := range frames {
		got = append(got, view(g.Update(obs)))
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("result sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestGate_NoHand(t *testing.T) {
	t.Run("clears regardless of previous state", func(t *testing.T) {
		g := New(DefaultConfig())
		g.Update(Predicted(prediction("K", 0.95)))

		r := g.Update(NoHand())
		assert.False(t, r.HandPresent)
		assert.False(t, r.HasLabel())
		assert.Zero(t, r.Confidence)
		assert.Equal(t, ReasonNoHand, r.Reason)
		assert.Equal(t, State{}, g.State())
	})

	t.Run("idempotent", func(t *testing.T) {
		g := New(DefaultConfig())
		first := g.Update(NoHand())
		second := g.Update(NoHand())
		assert.Equal(t, first, second)
	})

	t.Run("detector failure gates like absence", func(t *testing.T) {
		g := New(DefaultConfig())
		g.Update(Predicted(prediction("C", 0.8)))

		r := g.Update(DetectorFailed())
		assert.False(t, r.HandPresent)
		assert.Empty(t, r.Label)
		assert.Equal(t, ReasonDetectorError, r.Reason)
	})
}

func TestGate_ConfidentFrame(t *testing.T) {
	g := New(DefaultConfig())

	for _, tc := range []struct {
		label string
		conf  float64
	}{
		{"A", 0.9},
		{"B", 0.2}, // threshold is inclusive
		{"C", 0.55},
		{"C", 0.3},
	} {
		r := g.Update(Predicted(prediction(tc.label, tc.conf)))
		assert.Equal(t, tc.label, r.Label, "confident frame shows its label without lag")
		assert.Equal(t, tc.conf, r.Confidence)
		assert.True(t, r.HandPresent)
		assert.Equal(t, ReasonAccepted, r.Reason)
		if assert.NotNil(t, r.Raw) {
			assert.Equal(t, tc.label, r.Raw.Label)
		}
	}
}

func TestGate_LowConfidence(t *testing.T) {
	t.Run("keeps previous label", func(t *testing.T) {
		g := New(DefaultConfig())
		g.Update(Predicted(prediction("D", 0.7)))

		r := g.Update(Predicted(prediction("E", 0.19)))
		assert.Equal(t, "D", r.Label)
		assert.Equal(t, 0.7, r.Confidence)
		assert.True(t, r.HandPresent)
		assert.Equal(t, ReasonLowConfidence, r.Reason)
		assert.Equal(t, "E", r.Raw.Label)
	})

	t.Run("present hand with nothing displayed", func(t *testing.T) {
		g := New(DefaultConfig())
		r := g.Update(Predicted(prediction("F", 0.05)))
		assert.True(t, r.HandPresent)
		assert.Empty(t, r.Label)
	})

	t.Run("inference failure keeps previous label", func(t *testing.T) {
		g := New(DefaultConfig())
		g.Update(Predicted(prediction("G", 0.6)))

		r := g.Update(InferenceFailed())
		assert.Equal(t, "G", r.Label)
		assert.True(t, r.HandPresent)
		assert.Equal(t, ReasonInferenceError, r.Reason)
		assert.Nil(t, r.Raw)
	})
}

func TestGate_MalformedInput(t *testing.T) {
	cases := map[string]Observation{
		"malformed pose":           Malformed(),
		"present without reason":   {HandPresent: true},
		"label out of table":       Predicted(classifier.Prediction{Label: "?", Index: 30, Confidence: 0.9}),
		"label and index disagree": Predicted(classifier.Prediction{Label: "A", Index: 1, Confidence: 0.9}),
		"nan confidence":           Predicted(prediction("A", math.NaN())),
		"negative confidence":      Predicted(prediction("A", -1)),
	}

	for name, obs := range cases {
		t.Run(name, func(t *testing.T) {
			g := New(DefaultConfig())
			g.Update(Predicted(prediction("H", 0.9)))

			r := g.Update(obs)
			assert.False(t, r.HandPresent)
			assert.Empty(t, r.Label)
			assert.Equal(t, ReasonMalformed, r.Reason)
		})
	}
}

func TestGate_MinAgreement(t *testing.T) {
	g := New(Config{Threshold: 0.2, MinAgreement: 3})

	steps := []struct {
		obs    Observation
		label  string
		reason Reason
	}{
		{Predicted(prediction("A", 0.9)), "", ReasonPending},
		{Predicted(prediction("A", 0.9)), "", ReasonPending},
		{Predicted(prediction("A", 0.9)), "A", ReasonAccepted},
		{Predicted(prediction("B", 0.9)), "A", ReasonPending},
		{Predicted(prediction("B", 0.9)), "A", ReasonPending},
		{Predicted(prediction("B", 0.1)), "A", ReasonLowConfidence}, // breaks the streak
		{Predicted(prediction("B", 0.9)), "A", ReasonPending},
		{Predicted(prediction("B", 0.9)), "A", ReasonPending},
		{Predicted(prediction("B", 0.9)), "B", ReasonAccepted},
		{NoHand(), "", ReasonNoHand},
	}

	for i, s := range steps {
		r := g.Update(s.obs)
		assert.Equal(t, s.label, r.Label, "step %d", i)
		assert.Equal(t, s.reason, r.Reason, "step %d", i)
	}
}

func TestNew_SanitizesConfig(t *testing.T) {
	g := New(Config{Threshold: math.NaN(), MinAgreement: 0})
	want := DefaultConfig()
	if diff := cmp.Diff(want, g.Config(), cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}
