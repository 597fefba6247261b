package api

import (
	"errors"
	"image"
	"image/png"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/srujkamble02/ishara/internal/app"
	"github.com/srujkamble02/ishara/internal/speech"
)

// Recognizer is the part of the running app the JSON handlers need.
type Recognizer interface {
	Status() app.Status
	Speak() (string, error)
	Snapshot(width, height int) (*image.RGBA, error)
}

// User-facing status messages.
const (
	MessageLoading = "Loading model..."
	MessageFailed  = "Failed to load ML model"
)

// maxSnapshotSide bounds the requested overlay size.
const maxSnapshotSide = 4096

type statusResponse struct {
	app.Status
	Message string `json:"message,omitempty"`
}

// RecognitionHandler serves status, speech and overlay snapshots.
type RecognitionHandler struct {
	app    Recognizer
	logger *zap.SugaredLogger
}

// NewRecognitionHandler creates a RecognitionHandler. A nil logger discards output.
func NewRecognitionHandler(a Recognizer, logger *zap.SugaredLogger) *RecognitionHandler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &RecognitionHandler{app: a, logger: logger}
}

// Status handles GET /api/status.
func (h *RecognitionHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := statusResponse{Status: h.app.Status()}
	switch resp.State {
	case app.StateLoading.String():
		resp.Message = MessageLoading
	case app.StateFailed.String():
		resp.Message = MessageFailed
	}
	writeJSON(w, http.StatusOK, resp)
}

type speakResponse struct {
	Text string `json:"text"`
}

// Speak handles POST /api/speak. Only the displayed letter is spoken.
func (h *RecognitionHandler) Speak(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	text, err := h.app.Speak()
	switch {
	case errors.Is(err, speech.ErrEmptyText):
		writeError(w, http.StatusConflict, "No letter is displayed")
	case errors.Is(err, speech.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "Speech output is unavailable")
	case err != nil:
		h.logger.Debugw("speak failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to speak")
	default:
		writeJSON(w, http.StatusAccepted, speakResponse{Text: text})
	}
}

// Overlay handles GET /api/overlay.png?w=&h=. Without a size the frame size is used.
func (h *RecognitionHandler) Overlay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	width, err := sizeParam(r, "w")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid width")
		return
	}
	height, err := sizeParam(r, "h")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid height")
		return
	}

	img, err := h.app.Snapshot(width, height)
	if err != nil {
		if errors.Is(err, app.ErrNoFrame) {
			writeError(w, http.StatusServiceUnavailable, "No frame captured yet")
			return
		}
		h.logger.Debugw("snapshot failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to render overlay")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if err := png.Encode(w, img); err != nil {
		h.logger.Debugw("png encoding failed", "error", err)
	}
}

func sizeParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n <= 0 || n > maxSnapshotSide {
		return 0, errors.New("size out of range")
	}
	return n, nil
}
