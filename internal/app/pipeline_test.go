package app

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gocv.io/x/gocv"

	"github.com/srujkamble02/ishara/internal/classifier"
	"github.com/srujkamble02/ishara/internal/detector"
	"github.com/srujkamble02/ishara/internal/gate"
)

// scores puts conf on label and spreads nothing elsewhere.
func scores(label string, conf float64) classifier.Scores {
	var s classifier.Scores
	s[classifier.LabelIndex(label)] = conf
	return s
}

// queueModel returns queued score vectors in order, then zero scores.
type queueModel struct {
	mu    sync.Mutex
	queue []classifier.Scores
	err   error
}

func (m *queueModel) Score(context.Context, detector.FeatureVector) (classifier.Scores, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return classifier.Scores{}, m.err
	}
	if len(m.queue) == 0 {
		return classifier.Scores{}, nil
	}
	next := m.queue[0]
	m.queue = m.queue[1:]
	return next, nil
}

func (m *queueModel) Name() string { return "queue" }

type sinkCall struct {
	pose   *detector.HandPose
	result gate.Result
}

type recorder struct {
	mu    sync.Mutex
	calls []sinkCall
}

func (r *recorder) sink(_ *gocv.Mat, pose *detector.HandPose, result gate.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, sinkCall{pose: pose, result: result})
}

func (r *recorder) all() []sinkCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sinkCall(nil), r.calls...)
}

func newPipeline(t *testing.T, det detector.Detector, cfg PipelineConfig) *Pipeline {
	t.Helper()
	cfg.Detector = det
	if cfg.Logger == nil {
		cfg.Logger = zaptest.NewLogger(t).Sugar()
	}
	p, err := NewPipeline(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func readyPipeline(t *testing.T, det detector.Detector, model classifier.Model, cfg PipelineConfig) *Pipeline {
	t.Helper()
	p := newPipeline(t, det, cfg)
	p.Load(context.Background(), ModelLoader(model))
	require.NoError(t, p.Wait(context.Background()))
	require.Equal(t, StateReady, p.State())
	return p
}

func hands(poses ...detector.HandPose) []detector.HandPose {
	return poses
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "loading", StateLoading.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "processing", StateProcessing.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "state(42)", State(42).String())
}

func TestNewPipeline_RequiresDetector(t *testing.T) {
	_, err := NewPipeline(PipelineConfig{})
	assert.ErrorIs(t, err, ErrNoDetector)
}

func TestPipeline_RejectsWhileLoading(t *testing.T) {
	det := detector.NewMockDetector()
	p := newPipeline(t, det, PipelineConfig{})

	assert.Equal(t, StateLoading, p.State())
	assert.ErrorIs(t, p.Ready(), ErrNotReady)

	_, ok := p.HandleFrame(context.Background(), nil)
	assert.False(t, ok)
	assert.Zero(t, det.Calls())
	assert.Equal(t, uint64(1), p.Stats().Rejected)
	assert.NoError(t, p.Err())
}

func TestPipeline_LoadFailure(t *testing.T) {
	det := detector.NewMockDetector()
	det.SetHands(hands(detector.ThumbsUpPose()))

	var failures []error
	p := newPipeline(t, det, PipelineConfig{
		OnFailed: func(err error) { failures = append(failures, err) },
	})

	p.Load(context.Background(), FileLoader(filepath.Join(t.TempDir(), "missing.json")))
	err := p.Wait(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFailed)
	assert.ErrorIs(t, err, classifier.ErrArtifact)
	assert.Equal(t, StateFailed, p.State())
	assert.ErrorIs(t, p.Ready(), ErrFailed)
	require.Len(t, failures, 1)
	assert.Equal(t, err, failures[0])

	for i := 0; i < 5; i++ {
		_, ok := p.HandleFrame(context.Background(), nil)
		assert.False(t, ok)
	}
	assert.Zero(t, det.Calls(), "frames must never reach the detector")
	assert.Equal(t, uint64(5), p.Stats().Rejected)
	assert.Zero(t, p.Stats().Processed)

	// a later load attempt cannot revive a failed pipeline
	p.Load(context.Background(), ModelLoader(&queueModel{}))
	assert.Equal(t, StateFailed, p.State())
}

func TestPipeline_LoadCancelled(t *testing.T) {
	p := newPipeline(t, detector.NewMockDetector(), PipelineConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	never := func(context.Context) <-chan classifier.LoadResult {
		return make(chan classifier.LoadResult)
	}
	p.Load(ctx, never)
	cancel()

	err := p.Wait(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateFailed, p.State())
}

func TestPipeline_LoadNilModel(t *testing.T) {
	p := newPipeline(t, detector.NewMockDetector(), PipelineConfig{})
	p.Load(context.Background(), ModelLoader(nil))

	assert.ErrorIs(t, p.Wait(context.Background()), classifier.ErrArtifact)
}

func TestPipeline_ReferenceScenario(t *testing.T) {
	det := detector.NewMockDetector()
	det.SetSequence([][]detector.HandPose{
		nil,
		hands(detector.ThumbsUpPose()),
		hands(detector.OpenPalmPose()),
		nil,
	})
	model := &queueModel{queue: []classifier.Scores{
		scores("A", 0.9),
		scores("B", 0.1),
	}}
	rec := &recorder{}
	p := readyPipeline(t, det, model, PipelineConfig{Sink: rec.sink})

	type shown struct {
		Label       string
		HandPresent bool
	}
	var got []shown
	for i := 0; i < 4; i++ {
		res, ok := p.HandleFrame(context.Background(), nil)
		require.True(t, ok)
		assert.Equal(t, uint64(i+1), res.Frame)
		got = append(got, shown{res.Label, res.HandPresent})
	}

	want := []shown{
		{"", false},
		{"A", true},
		{"A", true},
		{"", false},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("result sequence mismatch (-want +got):\n%s", diff)
	}

	calls := rec.all()
	require.Len(t, calls, 4)
	assert.Nil(t, calls[0].pose)
	assert.NotNil(t, calls[1].pose)
	assert.Equal(t, "B", calls[2].result.Raw.Label)

	stats := p.Stats()
	assert.Equal(t, uint64(4), stats.Processed)
	assert.Equal(t, uint64(2), stats.NoHand)

	last, ok := p.Last()
	require.True(t, ok)
	assert.False(t, last.HasLabel())
}

func TestPipeline_TakesFirstHand(t *testing.T) {
	det := detector.NewMockDetector()
	first := detector.ThumbsUpPose()
	first.Handedness = "Left"
	second := detector.OpenPalmPose()
	second.Handedness = "Right"
	det.SetHands(hands(first, second))

	rec := &recorder{}
	p := readyPipeline(t, det, &queueModel{queue: []classifier.Scores{scores("L", 0.8)}}, PipelineConfig{Sink: rec.sink})

	res, ok := p.HandleFrame(context.Background(), nil)
	require.True(t, ok)
	assert.Equal(t, "L", res.Label)
	assert.Equal(t, "Left", rec.all()[0].pose.Handedness)
}

func TestPipeline_MalformedPose(t *testing.T) {
	det := detector.NewMockDetector()
	det.SetSequence([][]detector.HandPose{
		hands(detector.ThumbsUpPose()),
		hands(detector.TruncatedPose(20)),
	})
	rec := &recorder{}
	p := readyPipeline(t, det, &queueModel{queue: []classifier.Scores{scores("A", 0.9)}}, PipelineConfig{Sink: rec.sink})

	res, _ := p.HandleFrame(context.Background(), nil)
	require.Equal(t, "A", res.Label)

	res, ok := p.HandleFrame(context.Background(), nil)
	require.True(t, ok)
	assert.False(t, res.HandPresent, "malformed pose gates like no hand")
	assert.Empty(t, res.Label)
	assert.Equal(t, gate.ReasonMalformed, res.Reason)

	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.Malformed)
	assert.Zero(t, stats.NoHand, "malformed frames are counted apart from empty ones")

	calls := rec.all()
	require.Len(t, calls, 2)
	require.NotNil(t, calls[1].pose, "the sink still sees the partial pose")
	assert.Len(t, calls[1].pose.Landmarks, 20)
}

func TestPipeline_DetectorError(t *testing.T) {
	det := detector.NewMockDetector()
	det.SetHands(hands(detector.ThumbsUpPose()))
	p := readyPipeline(t, det, &queueModel{queue: []classifier.Scores{scores("D", 0.7)}}, PipelineConfig{})

	res, _ := p.HandleFrame(context.Background(), nil)
	require.Equal(t, "D", res.Label)

	det.SetError(errors.New("pipe closed"))
	res, ok := p.HandleFrame(context.Background(), nil)
	require.True(t, ok)
	assert.False(t, res.HandPresent)
	assert.Empty(t, res.Label)
	assert.Equal(t, gate.ReasonDetectorError, res.Reason)
	assert.Equal(t, uint64(1), p.Stats().DetectorErrors)
}

func TestPipeline_InferenceError(t *testing.T) {
	det := detector.NewMockDetector()
	det.SetHands(hands(detector.ThumbsUpPose()))
	model := &queueModel{queue: []classifier.Scores{scores("G", 0.6)}}
	p := readyPipeline(t, det, model, PipelineConfig{})

	res, _ := p.HandleFrame(context.Background(), nil)
	require.Equal(t, "G", res.Label)

	model.mu.Lock()
	model.err = errors.New("backend crashed")
	model.mu.Unlock()

	res, ok := p.HandleFrame(context.Background(), nil)
	require.True(t, ok)
	assert.True(t, res.HandPresent)
	assert.Equal(t, "G", res.Label, "inference failure keeps the displayed letter")
	assert.Equal(t, gate.ReasonInferenceError, res.Reason)
	assert.Equal(t, uint64(1), p.Stats().InferenceErrors)
}

func TestPipeline_DropsWhileBusy(t *testing.T) {
	det := detector.NewMockDetector()
	det.SetHands(hands(detector.ThumbsUpPose()))

	entered := make(chan struct{})
	release := make(chan struct{})
	model := classifier.ScoreFunc(func(context.Context, detector.FeatureVector) (classifier.Scores, error) {
		close(entered)
		<-release
		return scores("W", 0.95), nil
	})
	p := readyPipeline(t, det, model, PipelineConfig{})

	done := make(chan gate.Result)
	go func() {
		res, _ := p.HandleFrame(context.Background(), nil)
		done <- res
	}()

	<-entered
	assert.Equal(t, StateProcessing, p.State())

	for i := 0; i < 3; i++ {
		_, ok := p.HandleFrame(context.Background(), nil)
		assert.False(t, ok, "frame %d should be dropped", i)
	}

	close(release)
	res := <-done
	assert.Equal(t, "W", res.Label)

	stats := p.Stats()
	assert.Equal(t, uint64(3), stats.Dropped)
	assert.Equal(t, uint64(1), stats.Processed)
	assert.Equal(t, 1, det.Calls(), "dropped frames never reach the detector")
	assert.Equal(t, StateReady, p.State())
}

func TestPipeline_Subscribe(t *testing.T) {
	det := detector.NewMockDetector()
	det.SetHands(hands(detector.ThumbsUpPose()))
	p := readyPipeline(t, det, &queueModel{queue: []classifier.Scores{scores("S", 0.5)}}, PipelineConfig{SubscriberBuffer: 1})

	results, cancel := p.Subscribe()
	slow, cancelSlow := p.Subscribe()
	defer cancelSlow()

	p.HandleFrame(context.Background(), nil)
	select {
	case r := <-results:
		assert.Equal(t, "S", r.Label)
	case <-time.After(time.Second):
		t.Fatal("no result published")
	}

	// the slow subscriber's buffer is full; publishing must not block
	p.HandleFrame(context.Background(), nil)
	p.HandleFrame(context.Background(), nil)
	assert.Len(t, slow, 1)

	cancel()
	cancel()
	_, open := <-results
	for open {
		_, open = <-results
	}
}

func TestPipeline_UpdateGate(t *testing.T) {
	det := detector.NewMockDetector()
	det.SetHands(hands(detector.ThumbsUpPose()))
	model := &queueModel{queue: []classifier.Scores{
		scores("U", 0.9), scores("U", 0.9), scores("U", 0.9),
	}}
	p := readyPipeline(t, det, model, PipelineConfig{})

	p.UpdateGate(gate.Config{Threshold: 0.2, MinAgreement: 2})

	res, _ := p.HandleFrame(context.Background(), nil)
	assert.Equal(t, gate.ReasonPending, res.Reason)
	assert.Empty(t, res.Label)

	res, _ = p.HandleFrame(context.Background(), nil)
	assert.Equal(t, gate.ReasonAccepted, res.Reason)
	assert.Equal(t, "U", res.Label)
}

func TestPipeline_Close(t *testing.T) {
	det := detector.NewMockDetector()
	p := readyPipeline(t, det, &queueModel{}, PipelineConfig{})

	results, _ := p.Subscribe()

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	assert.True(t, det.Closed())
	assert.Equal(t, StateClosed, p.State())
	assert.ErrorIs(t, p.Ready(), ErrClosed)

	_, open := <-results
	assert.False(t, open, "subscribers are closed")

	late, _ := p.Subscribe()
	_, open = <-late
	assert.False(t, open, "subscribing after close yields a closed channel")

	_, ok := p.HandleFrame(context.Background(), nil)
	assert.False(t, ok)
	assert.Zero(t, det.Calls())
}

func TestPipeline_CloseWaitsForFrame(t *testing.T) {
	det := detector.NewMockDetector()
	det.SetHands(hands(detector.ThumbsUpPose()))

	entered := make(chan struct{})
	release := make(chan struct{})
	model := classifier.ScoreFunc(func(context.Context, detector.FeatureVector) (classifier.Scores, error) {
		close(entered)
		<-release
		return scores("C", 0.9), nil
	})
	p := readyPipeline(t, det, model, PipelineConfig{})

	go p.HandleFrame(context.Background(), nil)
	<-entered

	closed := make(chan struct{})
	go func() {
		p.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a frame was in flight")
	case <-time.After(50 * time.Millisecond):
	}
	assert.False(t, det.Closed())

	close(release)
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close did not return after the frame finished")
	}
	assert.True(t, det.Closed())
}
