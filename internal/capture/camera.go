// Package capture reads frames from a camera or video file and measures motion between them.
package capture

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Default capture settings.
const (
	DefaultFPS    = 5
	DefaultWidth  = 640
	DefaultHeight = 480
)

// Capture errors.
var (
	ErrCameraNotOpen = errors.New("camera is not open")
	ErrReadFailed    = errors.New("failed to read frame")
	ErrEmptyFrame    = errors.New("captured frame is empty")
	ErrNoFrames      = errors.New("no more frames")
)

// Camera is a source of frames.
type Camera interface {
	Open() error
	Close() error
	// ReadFrame returns the next frame. The caller must close it.
	ReadFrame() (*gocv.Mat, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
}

// Config selects and sizes the capture source.
type Config struct {
	// Source is a device index ("0") or the path of a video file.
	Source string
	Width  int
	Height int
	FPS    int
	Logger *zap.SugaredLogger
}

// DefaultConfig captures 640x480 from the first camera at the idle rate.
func DefaultConfig() Config {
	return Config{
		Source: "0",
		Width:  DefaultWidth,
		Height: DefaultHeight,
		FPS:    DefaultFPS,
	}
}

// DeviceConfig is DefaultConfig for a numbered camera.
func DeviceConfig(deviceID int) Config {
	c := DefaultConfig()
	c.Source = strconv.Itoa(deviceID)
	return c
}

type cameraImpl struct {
	config  Config
	logger  *zap.SugaredLogger
	capture *gocv.VideoCapture
	mu      sync.Mutex
	running bool
	fps     int
}

// NewCamera creates a Camera that opens lazily.
func NewCamera(config Config) Camera {
	if config.FPS <= 0 {
		config.FPS = DefaultFPS
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop().Sugar()
	}
	return &cameraImpl{
		config: config,
		logger: config.Logger,
		fps:    config.FPS,
	}
}

// fromFile reports whether the source is a video file or URL rather than a
// device index. A failed read from such a source means the stream has ended.
func (c *cameraImpl) fromFile() bool {
	_, err := strconv.Atoi(c.config.Source)
	return err != nil
}

// source converts the configured source for gocv: device indexes become ints.
func (c *cameraImpl) source() any {
	if id, err := strconv.Atoi(c.config.Source); err == nil {
		return id
	}
	return c.config.Source
}

func (c *cameraImpl) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	capture, err := gocv.OpenVideoCapture(c.source())
	if err != nil {
		return fmt.Errorf("open capture %q: %w", c.config.Source, err)
	}

	if c.config.Width > 0 && c.config.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(c.config.Width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(c.config.Height))
	}
	capture.Set(gocv.VideoCaptureFPS, float64(c.fps))

	c.capture = capture
	c.running = true
	c.logger.Infow("capture opened", "source", c.config.Source, "fps", c.fps)

	return nil
}

func (c *cameraImpl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	c.running = false

	return err
}

func (c *cameraImpl) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok {
		mat.Close()
		if c.fromFile() {
			return nil, fmt.Errorf("%w in %q", ErrNoFrames, c.config.Source)
		}
		return nil, fmt.Errorf("%w from %q", ErrReadFailed, c.config.Source)
	}

	if mat.Empty() {
		mat.Close()
		return nil, ErrEmptyFrame
	}

	return &mat, nil
}

// SetFPS ignores values <= 0.
func (c *cameraImpl) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.fps = fps

	if c.capture != nil {
		c.capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

func (c *cameraImpl) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.fps
}

func (c *cameraImpl) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}
