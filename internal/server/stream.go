package server

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// FrameSource yields JPEG-encoded frames.
type FrameSource interface {
	Frames() (<-chan []byte, func())
}

// StreamHandler serves overlay frames as MJPEG.
type StreamHandler struct {
	source FrameSource
	logger *zap.SugaredLogger
}

// NewStreamHandler creates a new StreamHandler for source.
func NewStreamHandler(source FrameSource, logger *zap.SugaredLogger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &StreamHandler{source: source, logger: logger}
}

// ServeHTTP streams MJPEG frames until the client goes away or the source closes.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	frames, cancel := h.source.Frames()
	defer cancel()

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	h.logger.Debugw("stream client connected", "remote", r.RemoteAddr)
	defer h.logger.Debugw("stream client disconnected", "remote", r.RemoteAddr)

	for {
		select {
		case <-r.Context().Done():
			return
		case jpeg, ok := <-frames:
			if !ok {
				return
			}
			if err := writePart(w, jpeg); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

func writePart(w http.ResponseWriter, jpeg []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpeg)); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\r\n")
	return err
}
