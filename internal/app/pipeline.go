package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/srujkamble02/ishara/internal/classifier"
	"github.com/srujkamble02/ishara/internal/detector"
	"github.com/srujkamble02/ishara/internal/gate"
)

// Pipeline errors.
var (
	ErrNotReady   = errors.New("pipeline not ready")
	ErrFailed     = errors.New("pipeline failed to start")
	ErrClosed     = errors.New("pipeline closed")
	ErrNoDetector = errors.New("hand detector is required")
)

// State is the lifecycle state of a Pipeline.
type State int32

const (
	// StateLoading waits for the classifier artifact.
	StateLoading State = iota
	// StateReady accepts the next frame.
	StateReady
	// StateProcessing is working on a frame; new frames are dropped.
	StateProcessing
	// StateFailed is terminal; the artifact could not be loaded.
	StateFailed
	// StateClosed is terminal; the pipeline was shut down.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateProcessing:
		return "processing"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Loader starts loading a classifier model. The channel yields exactly one result.
type Loader func(ctx context.Context) <-chan classifier.LoadResult

// FileLoader loads a classifier artifact from path.
func FileLoader(path string) Loader {
	return func(ctx context.Context) <-chan classifier.LoadResult {
		return classifier.LoadAsync(ctx, path)
	}
}

// ModelLoader hands out an already constructed model.
func ModelLoader(m classifier.Model) Loader {
	return func(context.Context) <-chan classifier.LoadResult {
		ch := make(chan classifier.LoadResult, 1)
		ch <- classifier.LoadResult{Model: m}
		close(ch)
		return ch
	}
}

// Sink receives every processed frame together with the pose it was gated on.
// frame is only valid for the duration of the call and may be nil.
type Sink func(frame *gocv.Mat, pose *detector.HandPose, result gate.Result)

// PipelineConfig configures a Pipeline.
type PipelineConfig struct {
	Detector detector.Detector
	Gate     gate.Config
	Logger   *zap.SugaredLogger

	// Sink is called synchronously for every processed frame.
	Sink Sink
	// OnFailed is called once if loading fails.
	OnFailed func(error)
	// SubscriberBuffer is the channel size handed to subscribers.
	SubscriberBuffer int
}

// Stats counts what happened to frames offered to the pipeline.
type Stats struct {
	Processed       uint64 `json:"processed"`
	Dropped         uint64 `json:"dropped"`
	Rejected        uint64 `json:"rejected"`
	NoHand          uint64 `json:"no_hand"`
	Malformed       uint64 `json:"malformed"`
	DetectorErrors  uint64 `json:"detector_errors"`
	InferenceErrors uint64 `json:"inference_errors"`
}

type counters struct {
	processed       atomic.Uint64
	dropped         atomic.Uint64
	rejected        atomic.Uint64
	noHand          atomic.Uint64
	malformed       atomic.Uint64
	detectorErrors  atomic.Uint64
	inferenceErrors atomic.Uint64
}

// Pipeline turns camera frames into gated letter results, one frame at a time.
//
// The lifecycle is Loading → Ready ⇄ Processing, with Failed and Closed as
// terminal states. A frame is only processed if it wins the Ready → Processing
// transition; frames arriving while another is processed are dropped.
type Pipeline struct {
	config   PipelineConfig
	logger   *zap.SugaredLogger
	detector detector.Detector

	state atomic.Int32

	// set once before the transition to Ready
	adapter *classifier.Adapter

	loadOnce sync.Once
	loaded   chan struct{}
	err      error

	// owned by whoever holds StateProcessing
	gate    *gate.Gate
	pending atomic.Pointer[gate.Config]

	frames atomic.Uint64
	stats  counters
	last   atomic.Pointer[gate.Result]

	results *hub[gate.Result]

	closeOnce sync.Once
	closeErr  error
}

// NewPipeline creates a pipeline in StateLoading.
func NewPipeline(config PipelineConfig) (*Pipeline, error) {
	if config.Detector == nil {
		return nil, ErrNoDetector
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop().Sugar()
	}
	if config.SubscriberBuffer <= 0 {
		config.SubscriberBuffer = 16
	}

	p := &Pipeline{
		config:   config,
		logger:   config.Logger,
		detector: config.Detector,
		loaded:   make(chan struct{}),
		gate:     gate.New(config.Gate),
		results:  newHub[gate.Result](config.SubscriberBuffer),
	}
	p.state.Store(int32(StateLoading))
	return p, nil
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// Load starts loading the model in the background. Only the first call has an effect.
func (p *Pipeline) Load(ctx context.Context, load Loader) {
	p.loadOnce.Do(func() {
		start := time.Now()
		results := load(ctx)
		go func() {
			var res classifier.LoadResult
			select {
			case r, ok := <-results:
				if !ok {
					r.Err = fmt.Errorf("%w: loader returned no model", classifier.ErrArtifact)
				}
				res = r
			case <-ctx.Done():
				res.Err = ctx.Err()
			}
			p.finishLoad(res, time.Since(start))
		}()
	})
}

func (p *Pipeline) finishLoad(res classifier.LoadResult, elapsed time.Duration) {
	if res.Err == nil && res.Model == nil {
		res.Err = fmt.Errorf("%w: loader returned no model", classifier.ErrArtifact)
	}

	if res.Err != nil {
		p.err = fmt.Errorf("%w: %w", ErrFailed, res.Err)
		if p.state.CompareAndSwap(int32(StateLoading), int32(StateFailed)) {
			p.logger.Errorw("classifier load failed", "error", res.Err, "elapsed", elapsed)
			if p.config.OnFailed != nil {
				p.config.OnFailed(p.err)
			}
		}
		close(p.loaded)
		return
	}

	p.adapter = classifier.NewAdapter(res.Model)
	if p.state.CompareAndSwap(int32(StateLoading), int32(StateReady)) {
		p.logger.Infow("classifier loaded", "model", res.Model.Name(), "elapsed", elapsed)
	}
	close(p.loaded)
}

// Wait blocks until loading finished and returns the load error, if any.
func (p *Pipeline) Wait(ctx context.Context) error {
	select {
	case <-p.loaded:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the load error once loading has finished, and nil before.
func (p *Pipeline) Err() error {
	select {
	case <-p.loaded:
		return p.err
	default:
		return nil
	}
}

// Ready reports whether frames are currently accepted.
func (p *Pipeline) Ready() error {
	switch p.State() {
	case StateReady, StateProcessing:
		return nil
	case StateFailed:
		// written before the transition to Failed
		return p.err
	case StateClosed:
		return ErrClosed
	default:
		return ErrNotReady
	}
}

// UpdateGate replaces the gate configuration. It takes effect on the next
// processed frame and clears the gate state.
func (p *Pipeline) UpdateGate(config gate.Config) {
	p.pending.Store(&config)
}

// HandleFrame processes frame if the pipeline is ready and idle. ok is false
// when the frame was rejected or dropped. The caller keeps ownership of frame.
func (p *Pipeline) HandleFrame(ctx context.Context, frame *gocv.Mat) (result gate.Result, ok bool) {
	if !p.state.CompareAndSwap(int32(StateReady), int32(StateProcessing)) {
		if p.State() == StateProcessing {
			p.stats.dropped.Add(1)
		} else {
			p.stats.rejected.Add(1)
		}
		return gate.Result{}, false
	}
	defer p.state.CompareAndSwap(int32(StateProcessing), int32(StateReady))

	if c := p.pending.Swap(nil); c != nil {
		p.gate = gate.New(*c)
	}

	obs, pose := p.observe(ctx, frame)
	result = p.gate.Update(obs)
	result.Frame = p.frames.Add(1)
	p.stats.processed.Add(1)

	p.last.Store(&result)
	if p.config.Sink != nil {
		p.config.Sink(frame, pose, result)
	}
	p.results.publish(result)
	return result, true
}

// observe runs detection and inference. Every failure becomes an observation.
func (p *Pipeline) observe(ctx context.Context, frame *gocv.Mat) (gate.Observation, *detector.HandPose) {
	hands, err := p.detector.Detect(frame)
	if err != nil {
		p.stats.detectorErrors.Add(1)
		p.logger.Debugw("hand detection failed", "reason", gate.ReasonDetectorError, "error", err)
		return gate.DetectorFailed(), nil
	}
	if len(hands) == 0 {
		p.stats.noHand.Add(1)
		return gate.NoHand(), nil
	}

	pose := &hands[0]
	features, err := pose.Normalize()
	if err != nil {
		p.stats.malformed.Add(1)
		p.logger.Warnw("discarding hand pose", "reason", gate.ReasonMalformed,
			"landmarks", len(pose.Landmarks), "error", err)
		return gate.Malformed(), pose
	}

	pred, err := p.adapter.Predict(ctx, features)
	if err != nil {
		p.stats.inferenceErrors.Add(1)
		p.logger.Debugw("inference failed", "reason", gate.ReasonInferenceError, "error", err)
		return gate.InferenceFailed(), pose
	}
	return gate.Predicted(pred), pose
}

// Last returns the most recent result, if any frame has been processed.
func (p *Pipeline) Last() (gate.Result, bool) {
	r := p.last.Load()
	if r == nil {
		return gate.Result{}, false
	}
	return *r, true
}

// Stats returns a snapshot of the frame counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Processed:       p.stats.processed.Load(),
		Dropped:         p.stats.dropped.Load(),
		Rejected:        p.stats.rejected.Load(),
		NoHand:          p.stats.noHand.Load(),
		Malformed:       p.stats.malformed.Load(),
		DetectorErrors:  p.stats.detectorErrors.Load(),
		InferenceErrors: p.stats.inferenceErrors.Load(),
	}
}

// Subscribe returns a channel of results and a function that cancels the
// subscription. Results are dropped for subscribers that fall behind.
func (p *Pipeline) Subscribe() (<-chan gate.Result, func()) {
	return p.results.subscribe()
}

// Close stops accepting frames, waits for an in-flight frame, closes
// subscriber channels and releases the detector. It is safe to call more than once.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		for {
			s := p.state.Load()
			if State(s) == StateProcessing {
				time.Sleep(time.Millisecond)
				continue
			}
			if p.state.CompareAndSwap(s, int32(StateClosed)) {
				break
			}
		}

		p.results.close()

		p.closeErr = p.detector.Close()
		p.logger.Infow("pipeline closed", "stats", p.Stats())
	})
	return p.closeErr
}
