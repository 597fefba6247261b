package server

import (
	"image"
	"sync/atomic"

	"github.com/srujkamble02/ishara/internal/app"
	"github.com/srujkamble02/ishara/internal/gate"
)

// fakeApp hands out channels the test feeds directly.
type fakeApp struct {
	status app.Status

	frames  chan []byte
	results chan gate.Result

	subscribed chan string
	cancelled  atomic.Int32
}

func newFakeApp() *fakeApp {
	return &fakeApp{
		status:     app.Status{Session: "session-1", State: "ready"},
		frames:     make(chan []byte, 4),
		results:    make(chan gate.Result, 4),
		subscribed: make(chan string, 4),
	}
}

func (f *fakeApp) Status() app.Status     { return f.status }
func (f *fakeApp) Speak() (string, error) { return "A", nil }
func (f *fakeApp) Session() string        { return f.status.Session }

func (f *fakeApp) Snapshot(w, h int) (*image.RGBA, error) {
	return image.NewRGBA(image.Rect(0, 0, 4, 3)), nil
}

func (f *fakeApp) Frames() (<-chan []byte, func()) {
	f.subscribed <- "frames"
	return f.frames, func() { f.cancelled.Add(1) }
}

func (f *fakeApp) Results() (<-chan gate.Result, func()) {
	f.subscribed <- "results"
	return f.results, func() { f.cancelled.Add(1) }
}
