// Package gate filters raw per-frame predictions into the label shown to the user.
package gate

import (
	"math"

	"github.com/srujkamble02/ishara/internal/classifier"
)

// DefaultThreshold is the minimum raw confidence for a prediction to replace
// the displayed label.
const DefaultThreshold = 0.2

// Reason explains how a frame was gated.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonNoHand         Reason = "no_hand"
	ReasonMalformed      Reason = "malformed"
	ReasonDetectorError  Reason = "detector_error"
	ReasonInferenceError Reason = "inference_error"
	ReasonLowConfidence  Reason = "low_confidence"
	ReasonPending        Reason = "pending"
	ReasonAccepted       Reason = "accepted"
)

// Observation is what the pipeline learned about one frame.
type Observation struct {
	HandPresent bool
	Prediction  *classifier.Prediction
	Reason      Reason
}

// NoHand is an observation for a frame without a hand.
func NoHand() Observation {
	return Observation{Reason: ReasonNoHand}
}

// Malformed is an observation for a frame whose pose could not be used.
func Malformed() Observation {
	return Observation{Reason: ReasonMalformed}
}

// DetectorFailed is an observation for a frame the detector could not process.
func DetectorFailed() Observation {
	return Observation{Reason: ReasonDetectorError}
}

// InferenceFailed is an observation for a present hand that could not be scored.
func InferenceFailed() Observation {
	return Observation{HandPresent: true, Reason: ReasonInferenceError}
}

// Predicted is an observation for a present hand with a classifier prediction.
func Predicted(p classifier.Prediction) Observation {
	return Observation{HandPresent: true, Prediction: &p}
}

// Result is the externally visible output for one frame.
type Result struct {
	// Label is the displayed letter; empty means absent.
	Label       string  `json:"label,omitempty"`
	Confidence  float64 `json:"confidence"`
	HandPresent bool    `json:"hand_present"`
	Reason      Reason  `json:"reason,omitempty"`
	Frame       uint64  `json:"frame"`

	// Raw is this frame's unfiltered prediction, if any.
	Raw *classifier.Prediction `json:"raw,omitempty"`
}

// HasLabel reports whether a letter is displayed.
func (r Result) HasLabel() bool {
	return r.Label != ""
}

// State is the gate's memory between frames. The zero value means no detection.
type State struct {
	Candidate  string
	Count      int
	Label      string
	Confidence float64
}

// Config holds gate tuning.
type Config struct {
	// Threshold is the minimum confidence for a frame to count.
	Threshold float64
	// MinAgreement is how many consecutive confident frames must agree before
	// the displayed label changes. 1 updates on the first confident frame.
	MinAgreement int
}

// DefaultConfig returns the reference behavior: threshold 0.2, no debounce.
func DefaultConfig() Config {
	return Config{
		Threshold:    DefaultThreshold,
		MinAgreement: 1,
	}
}

// Gate applies the confidence floor and hysteresis. It is not safe for
// concurrent use; the pipeline serializes calls to Update.
type Gate struct {
	config Config
	state  State
}

// New creates a gate in the "no detection" state.
func New(config Config) *Gate {
	if config.Threshold < 0 || math.IsNaN(config.Threshold) {
		config.Threshold = DefaultThreshold
	}
	if config.MinAgreement < 1 {
		config.MinAgreement = 1
	}
	return &Gate{config: config}
}

// Config returns the effective configuration.
func (g *Gate) Config() Config {
	return g.config
}

// State returns a copy of the current state.
func (g *Gate) State() State {
	return g.state
}

// Reset returns the gate to "no detection".
func (g *Gate) Reset() {
	g.state = State{}
}

// Update folds one frame into the state and returns the result to display.
//
// Absent or unusable hands clear everything immediately. Present hands
// without a usable prediction and predictions under the threshold leave the
// displayed label alone. Confident predictions replace it once they have
// been seen MinAgreement times in a row.
func (g *Gate) Update(obs Observation) Result {
	if !obs.HandPresent {
		g.Reset()
		reason := obs.Reason
		if reason == ReasonNone {
			reason = ReasonNoHand
		}
		return Result{Reason: reason}
	}

	p := obs.Prediction
	if p == nil {
		if obs.Reason == ReasonInferenceError {
			g.breakStreak()
			return g.result(ReasonInferenceError, nil)
		}
		// present without a prediction and without an explanation is malformed input
		g.Reset()
		return Result{Reason: ReasonMalformed}
	}
	if !validPrediction(p) {
		g.Reset()
		return Result{Reason: ReasonMalformed}
	}

	if p.Confidence < g.config.Threshold {
		g.breakStreak()
		return g.result(ReasonLowConfidence, p)
	}

	if p.Label == g.state.Candidate {
		g.state.Count++
	} else {
		g.state.Candidate = p.Label
		g.state.Count = 1
	}

	if g.state.Count < g.config.MinAgreement {
		return g.result(ReasonPending, p)
	}

	g.state.Label = p.Label
	g.state.Confidence = p.Confidence
	return g.result(ReasonAccepted, p)
}

// breakStreak forgets the pending candidate but keeps the displayed label.
func (g *Gate) breakStreak() {
	g.state.Candidate = ""
	g.state.Count = 0
}

func (g *Gate) result(reason Reason, raw *classifier.Prediction) Result {
	return Result{
		Label:       g.state.Label,
		Confidence:  g.state.Confidence,
		HandPresent: true,
		Reason:      reason,
		Raw:         raw,
	}
}

func validPrediction(p *classifier.Prediction) bool {
	if p.Index < 0 || p.Index >= classifier.NumLabels || classifier.Labels[p.Index] != p.Label {
		return false
	}
	return !math.IsNaN(p.Confidence) && !math.IsInf(p.Confidence, 0) && p.Confidence >= 0
}
