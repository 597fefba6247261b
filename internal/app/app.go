// Package app wires the camera, hand detector, classifier and stability gate
// into the running sign recognizer.
package app

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/srujkamble02/ishara/internal/capture"
	"github.com/srujkamble02/ishara/internal/detector"
	"github.com/srujkamble02/ishara/internal/gate"
	"github.com/srujkamble02/ishara/internal/overlay"
	"github.com/srujkamble02/ishara/internal/plugin"
	"github.com/srujkamble02/ishara/internal/speech"
)

// ErrNoFrame is returned when a snapshot is requested before any frame was seen.
var ErrNoFrame = errors.New("no frame captured yet")

// Config holds the application wiring. Zero values select defaults.
type Config struct {
	// Camera overrides the capture source built from CameraConfig.
	Camera       capture.Camera
	CameraConfig capture.Config

	// Detector overrides the MediaPipe detector built from DetectorConfig.
	Detector       detector.Detector
	DetectorConfig detector.Config

	Loader          Loader
	Gate            gate.Config
	MotionThreshold float64

	PluginDir    string
	SpeakTimeout time.Duration

	// OnFailed is called once if the classifier cannot be loaded.
	OnFailed func(error)

	Logger *zap.SugaredLogger
}

// Status is a point-in-time view of the application.
type Status struct {
	Session         string       `json:"session"`
	State           string       `json:"state"`
	Error           string       `json:"error,omitempty"`
	Enabled         bool         `json:"enabled"`
	Running         bool         `json:"running"`
	Active          bool         `json:"active"`
	FPS             int          `json:"fps"`
	Stats           Stats        `json:"stats"`
	Last            *gate.Result `json:"last,omitempty"`
	SpeechAvailable bool         `json:"speech_available"`
}

// App drives frames from the camera through the pipeline.
type App struct {
	config  Config
	logger  *zap.SugaredLogger
	session string

	camera   capture.Camera
	motion   *capture.MotionDetector
	cadence  *capture.Cadence
	detector detector.Detector
	pipeline *Pipeline

	renderer *overlay.MatRenderer
	canvas   *overlay.CanvasRenderer
	frames   *hub[[]byte]

	pluginMgr *plugin.Manager
	speaker   *speech.Speaker

	active  atomic.Bool
	looping atomic.Bool

	mu      sync.RWMutex
	enabled bool
	stopCh  chan struct{}
	loopWg  sync.WaitGroup
	frameWg sync.WaitGroup

	// last frame and pose, for snapshots
	lastMu    sync.Mutex
	lastFrame gocv.Mat
	lastPose  *detector.HandPose
	lastRes   gate.Result
}

// New creates an App. The classifier starts loading on Start.
func New(config Config) (*App, error) {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	session := uuid.NewString()
	logger = logger.With("session", session)

	a := &App{
		config:    config,
		logger:    logger,
		session:   session,
		camera:    config.Camera,
		motion:    capture.NewMotionDetector(config.MotionThreshold),
		cadence:   capture.NewCadence(),
		detector:  config.Detector,
		renderer:  overlay.NewMatRenderer(overlay.DefaultStyle()),
		canvas:    overlay.NewCanvasRenderer(overlay.DefaultStyle()),
		frames:    newHub[[]byte](2),
		pluginMgr: plugin.NewManager(config.PluginDir, logger),
		lastFrame: gocv.NewMat(),
	}

	if a.camera == nil {
		cc := config.CameraConfig
		if cc.Source == "" {
			cc = capture.DefaultConfig()
		}
		cc.Logger = logger
		a.camera = capture.NewCamera(cc)
	}

	if a.detector == nil {
		dc := config.DetectorConfig
		if dc.MaxHands == 0 {
			dc = detector.DefaultConfig()
		}
		if mp, err := detector.NewMediaPipeDetector(dc, logger); err == nil {
			a.detector = mp
			logger.Infow("using MediaPipe hand detection")
		} else {
			logger.Warnw("MediaPipe not available, using mock detector", "error", err)
			a.detector = detector.NewMockDetector()
		}
	}

	pipeline, err := NewPipeline(PipelineConfig{
		Detector: a.detector,
		Gate:     config.Gate,
		Logger:   logger,
		Sink:     a.onFrame,
		OnFailed: config.OnFailed,
	})
	if err != nil {
		a.lastFrame.Close()
		return nil, err
	}
	a.pipeline = pipeline

	if err := a.pluginMgr.Discover(); err != nil {
		logger.Warnw("plugin discovery failed", "dir", config.PluginDir, "error", err)
	}
	a.speaker = speech.New(a.pluginMgr, plugin.NewExecutor(config.SpeakTimeout), logger)

	return a, nil
}

// Session returns the unique id of this run.
func (a *App) Session() string {
	return a.session
}

// SetEnabled pauses or resumes recognition. Frames are still read while paused.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
}

// IsEnabled returns whether recognition is running.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// Start opens the camera, begins loading the classifier and starts the frame loop.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopCh != nil {
		return nil
	}

	if err := a.camera.Open(); err != nil {
		return err
	}
	a.camera.SetFPS(a.cadence.FPS())

	if a.config.Loader != nil {
		a.pipeline.Load(ctx, a.config.Loader)
	}

	a.stopCh = make(chan struct{})
	a.looping.Store(true)
	a.loopWg.Add(1)
	go a.run(ctx, a.stopCh)

	a.logger.Infow("detection pipeline started", "fps", a.cadence.FPS())
	return nil
}

// run reads frames at the cadence's rate and hands them to the pipeline.
// Each frame is processed on its own goroutine so a slow detector drops frames
// instead of delaying the camera.
func (a *App) run(ctx context.Context, stop <-chan struct{}) {
	defer a.loopWg.Done()
	defer a.looping.Store(false)

	ticker := time.NewTicker(a.cadence.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			frame, err := a.camera.ReadFrame()
			if err != nil {
				if errors.Is(err, capture.ErrNoFrames) {
					a.logger.Infow("capture stream ended", "error", err, "stats", a.pipeline.Stats())
					return
				}
				a.logger.Debugw("frame read failed", "error", err)
				continue
			}

			m := a.motion.Detect(frame)
			if fps, changed := a.cadence.Observe(m.Detected, now); changed {
				a.active.Store(a.cadence.Active())
				a.camera.SetFPS(fps)
				ticker.Reset(a.cadence.Interval())
				a.logger.Debugw("frame rate changed", "fps", fps, "active", a.cadence.Active(), "changed_pct", m.Changed)
			}

			if !a.IsEnabled() {
				frame.Close()
				continue
			}

			a.frameWg.Add(1)
			go func() {
				defer a.frameWg.Done()
				defer frame.Close()
				a.pipeline.HandleFrame(ctx, frame)
			}()
		}
	}
}

// onFrame is the pipeline sink: it remembers the frame for snapshots and
// feeds the overlay stream.
func (a *App) onFrame(frame *gocv.Mat, pose *detector.HandPose, result gate.Result) {
	a.lastMu.Lock()
	if frame != nil && !frame.Empty() {
		frame.CopyTo(&a.lastFrame)
	}
	if pose != nil {
		a.lastPose = pose.Clone()
	} else {
		a.lastPose = nil
	}
	a.lastRes = result
	a.lastMu.Unlock()

	if frame == nil || frame.Empty() || a.frames.count() == 0 {
		return
	}

	drawn := frame.Clone()
	defer drawn.Close()
	if err := a.renderer.Render(&drawn, pose, result); err != nil {
		a.logger.Debugw("overlay failed", "error", err)
		return
	}

	buf, err := gocv.IMEncode(".jpg", drawn)
	if err != nil {
		a.logger.Debugw("jpeg encoding failed", "error", err)
		return
	}
	jpeg := append([]byte(nil), buf.GetBytes()...)
	buf.Close()

	a.frames.publish(jpeg)
}

// Frames subscribes to JPEG-encoded overlay frames.
func (a *App) Frames() (<-chan []byte, func()) {
	return a.frames.subscribe()
}

// Results subscribes to gated results.
func (a *App) Results() (<-chan gate.Result, func()) {
	return a.pipeline.Subscribe()
}

// Snapshot renders the last frame with its overlay at the given size.
func (a *App) Snapshot(width, height int) (*image.RGBA, error) {
	a.lastMu.Lock()
	defer a.lastMu.Unlock()

	if a.lastFrame.Empty() {
		return nil, ErrNoFrame
	}
	frame, err := a.lastFrame.ToImage()
	if err != nil {
		return nil, err
	}

	if width <= 0 || height <= 0 {
		width, height = a.lastFrame.Cols(), a.lastFrame.Rows()
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if err := a.canvas.Render(dst, frame, a.lastPose, a.lastRes); err != nil {
		return nil, err
	}
	return dst, nil
}

// Speak says the letter currently displayed.
func (a *App) Speak() (string, error) {
	last, ok := a.pipeline.Last()
	if !ok || !last.HasLabel() {
		return "", speech.ErrEmptyText
	}
	return last.Label, a.speaker.Speak(last.Label)
}

// ApplyTuning updates the gate and motion settings of the running app.
func (a *App) ApplyTuning(g gate.Config, motionThreshold float64) {
	a.pipeline.UpdateGate(g)
	a.motion.SetThreshold(motionThreshold)
}

// Status returns a snapshot of the app state.
func (a *App) Status() Status {
	s := Status{
		Session:         a.session,
		State:           a.pipeline.State().String(),
		Enabled:         a.IsEnabled(),
		Running:         a.looping.Load(),
		Active:          a.active.Load(),
		FPS:             a.camera.FPS(),
		Stats:           a.pipeline.Stats(),
		SpeechAvailable: a.speaker.Available(),
	}
	if err := a.pipeline.Err(); err != nil {
		s.Error = err.Error()
	}
	if last, ok := a.pipeline.Last(); ok {
		s.Last = &last
	}
	return s
}

// Pipeline returns the recognition pipeline.
func (a *App) Pipeline() *Pipeline {
	return a.pipeline
}

// Stop halts the frame loop and releases the camera, motion detector and
// hand detector. The app cannot be restarted afterwards.
func (a *App) Stop() error {
	a.mu.Lock()
	if a.stopCh != nil {
		close(a.stopCh)
		a.stopCh = nil
	}
	a.mu.Unlock()

	a.loopWg.Wait()
	a.frameWg.Wait()
	a.speaker.Wait()

	err := multierr.Combine(
		a.camera.Close(),
		a.motion.Close(),
		a.pipeline.Close(),
	)
	a.frames.close()

	a.lastMu.Lock()
	err = multierr.Append(err, a.lastFrame.Close())
	a.lastFrame = gocv.NewMat()
	a.lastMu.Unlock()

	a.logger.Infow("detection pipeline stopped", "stats", a.pipeline.Stats())
	return err
}
