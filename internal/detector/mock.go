package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu       sync.Mutex
	hands    []HandPose
	sequence [][]HandPose
	err      error
	calls    int
	closed   bool
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetHands sets the hands that will be returned by every Detect call.
func (m *MockDetector) SetHands(hands []HandPose) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hands = hands
	m.sequence = nil
}

// SetSequence queues per-call results. Once drained, Detect falls back to the
// hands set with SetHands.
func (m *MockDetector) SetSequence(seq [][]HandPose) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequence = seq
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Detect returns the pre-configured hands or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]HandPose, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if len(m.sequence) > 0 {
		next := m.sequence[0]
		m.sequence = m.sequence[1:]
		return next, nil
	}
	return m.hands, nil
}

// Calls returns how many times Detect was invoked.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Close marks the detector closed.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockDetector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// ThumbsUpPose returns a preset pose with the thumb extended upward while
// other fingers are curled.
func ThumbsUpPose() HandPose {
	pose := HandPose{
		Landmarks:  make([]Landmark, NumLandmarks),
		Handedness: "Right",
		Score:      0.95,
	}
	p := pose.Landmarks

	p[Wrist] = Landmark{X: 0.5, Y: 0.8, Z: 0.0}

	// Thumb extended upward (Y decreases going up)
	p[ThumbCMC] = Landmark{X: 0.55, Y: 0.75, Z: 0.0}
	p[ThumbMCP] = Landmark{X: 0.58, Y: 0.65, Z: 0.0}
	p[ThumbIP] = Landmark{X: 0.58, Y: 0.50, Z: 0.0}
	p[ThumbTip] = Landmark{X: 0.58, Y: 0.35, Z: 0.0}

	p[IndexMCP] = Landmark{X: 0.55, Y: 0.70, Z: -0.02}
	p[IndexPIP] = Landmark{X: 0.55, Y: 0.68, Z: -0.05}
	p[IndexDIP] = Landmark{X: 0.52, Y: 0.70, Z: -0.04}
	p[IndexTip] = Landmark{X: 0.50, Y: 0.72, Z: -0.02}

	p[MiddleMCP] = Landmark{X: 0.50, Y: 0.68, Z: -0.02}
	p[MiddlePIP] = Landmark{X: 0.50, Y: 0.66, Z: -0.05}
	p[MiddleDIP] = Landmark{X: 0.47, Y: 0.68, Z: -0.04}
	p[MiddleTip] = Landmark{X: 0.45, Y: 0.70, Z: -0.02}

	p[RingMCP] = Landmark{X: 0.45, Y: 0.70, Z: -0.02}
	p[RingPIP] = Landmark{X: 0.45, Y: 0.68, Z: -0.05}
	p[RingDIP] = Landmark{X: 0.42, Y: 0.70, Z: -0.04}
	p[RingTip] = Landmark{X: 0.40, Y: 0.72, Z: -0.02}

	p[PinkyMCP] = Landmark{X: 0.40, Y: 0.72, Z: -0.02}
	p[PinkyPIP] = Landmark{X: 0.40, Y: 0.70, Z: -0.05}
	p[PinkyDIP] = Landmark{X: 0.37, Y: 0.72, Z: -0.04}
	p[PinkyTip] = Landmark{X: 0.35, Y: 0.74, Z: -0.02}

	return pose
}

// OpenPalmPose returns a preset pose with all fingers extended.
func OpenPalmPose() HandPose {
	pose := HandPose{
		Landmarks:  make([]Landmark, NumLandmarks),
		Handedness: "Right",
		Score:      0.95,
	}
	p := pose.Landmarks

	p[Wrist] = Landmark{X: 0.5, Y: 0.8, Z: 0.0}

	p[ThumbCMC] = Landmark{X: 0.55, Y: 0.75, Z: 0.02}
	p[ThumbMCP] = Landmark{X: 0.62, Y: 0.70, Z: 0.03}
	p[ThumbIP] = Landmark{X: 0.68, Y: 0.65, Z: 0.03}
	p[ThumbTip] = Landmark{X: 0.73, Y: 0.60, Z: 0.03}

	p[IndexMCP] = Landmark{X: 0.55, Y: 0.68, Z: 0.0}
	p[IndexPIP] = Landmark{X: 0.57, Y: 0.55, Z: 0.0}
	p[IndexDIP] = Landmark{X: 0.58, Y: 0.45, Z: 0.0}
	p[IndexTip] = Landmark{X: 0.58, Y: 0.35, Z: 0.0}

	p[MiddleMCP] = Landmark{X: 0.50, Y: 0.66, Z: 0.0}
	p[MiddlePIP] = Landmark{X: 0.50, Y: 0.52, Z: 0.0}
	p[MiddleDIP] = Landmark{X: 0.50, Y: 0.40, Z: 0.0}
	p[MiddleTip] = Landmark{X: 0.50, Y: 0.28, Z: 0.0}

	p[RingMCP] = Landmark{X: 0.45, Y: 0.68, Z: 0.0}
	p[RingPIP] = Landmark{X: 0.43, Y: 0.55, Z: 0.0}
	p[RingDIP] = Landmark{X: 0.42, Y: 0.45, Z: 0.0}
	p[RingTip] = Landmark{X: 0.42, Y: 0.35, Z: 0.0}

	p[PinkyMCP] = Landmark{X: 0.40, Y: 0.70, Z: 0.0}
	p[PinkyPIP] = Landmark{X: 0.37, Y: 0.60, Z: 0.0}
	p[PinkyDIP] = Landmark{X: 0.35, Y: 0.50, Z: 0.0}
	p[PinkyTip] = Landmark{X: 0.34, Y: 0.42, Z: 0.0}

	return pose
}

// TruncatedPose returns the first n landmarks of an open palm, for exercising
// malformed-input handling.
func TruncatedPose(n int) HandPose {
	pose := OpenPalmPose()
	if n < len(pose.Landmarks) {
		pose.Landmarks = pose.Landmarks[:n]
	}
	return pose
}
