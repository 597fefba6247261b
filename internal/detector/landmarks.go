// Package detector provides hand detection interfaces and types for sign recognition.
package detector

import (
	"errors"
	"fmt"
	"math"
)

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// FeatureSize is the length of a FeatureVector: one x, y, z triple per landmark.
const FeatureSize = NumLandmarks * 3

// ErrMalformedPose is returned when a hand pose does not hold exactly NumLandmarks points.
var ErrMalformedPose = errors.New("malformed hand pose")

// Landmark is a point in normalized image coordinates. X and Y are fractions of
// the frame width and height; Z is depth relative to the wrist.
type Landmark struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// HandPose is one detected hand. A well-formed pose has exactly NumLandmarks
// landmarks ordered by the index constants above. Detectors report whatever
// they received, so the count must be checked before use.
type HandPose struct {
	Landmarks  []Landmark `json:"landmarks"`
	Handedness string     `json:"handedness"` // "Left" or "Right"
	Score      float64    `json:"score"`
}

// FeatureVector is the wrist-relative flattening of a HandPose:
// x0, y0, z0, x1, y1, z1, ... in landmark order.
type FeatureVector [FeatureSize]float64

// Valid reports whether the pose has the expected number of landmarks.
func (p *HandPose) Valid() bool {
	return p != nil && len(p.Landmarks) == NumLandmarks
}

// Normalize converts the pose into a translation-invariant feature vector by
// subtracting the wrist from every landmark. No scaling is applied; the
// classifier is trained on the same convention.
func (p *HandPose) Normalize() (FeatureVector, error) {
	var fv FeatureVector
	if p == nil {
		return fv, fmt.Errorf("%w: nil pose", ErrMalformedPose)
	}
	if len(p.Landmarks) != NumLandmarks {
		return fv, fmt.Errorf("%w: got %d landmarks, want %d", ErrMalformedPose, len(p.Landmarks), NumLandmarks)
	}

	wrist := p.Landmarks[Wrist]
	for i, l := range p.Landmarks {
		fv[i*3] = l.X - wrist.X
		fv[i*3+1] = l.Y - wrist.Y
		fv[i*3+2] = l.Z - wrist.Z
	}
	return fv, nil
}

// Landmark returns landmark i of the feature vector.
func (fv *FeatureVector) Landmark(i int) Landmark {
	return Landmark{X: fv[i*3], Y: fv[i*3+1], Z: fv[i*3+2]}
}

// distance3D calculates the Euclidean distance between two landmarks.
func distance3D(a, b Landmark) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// ScaleNormalized returns the wrist-relative landmarks scaled so that the
// distance from wrist to middle finger MCP is 1.0. When that distance is
// degenerate the translated landmarks are returned unscaled.
func (fv *FeatureVector) ScaleNormalized() []Landmark {
	points := make([]Landmark, NumLandmarks)
	for i := range points {
		points[i] = fv.Landmark(i)
	}

	scale := distance3D(Landmark{}, points[MiddleMCP])
	if scale < 1e-10 {
		return points
	}

	for i := range points {
		points[i].X /= scale
		points[i].Y /= scale
		points[i].Z /= scale
	}
	return points
}

// Clone returns a deep copy of the pose.
func (p *HandPose) Clone() *HandPose {
	if p == nil {
		return nil
	}
	c := *p
	c.Landmarks = append([]Landmark(nil), p.Landmarks...)
	return &c
}
