package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/srujkamble02/ishara/internal/gate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// ResultSource yields gated results for one session.
type ResultSource interface {
	Session() string
	Results() (<-chan gate.Result, func())
}

// Message is what the results socket sends. The first message has type
// "hello" and carries the session; each processed frame follows as "result".
type Message struct {
	Type    string       `json:"type"`
	Session string       `json:"session"`
	Result  *gate.Result `json:"result,omitempty"`
	Time    int64        `json:"timestamp"`
}

// ResultsHandler streams recognition results over a WebSocket.
type ResultsHandler struct {
	source ResultSource
	logger *zap.SugaredLogger
}

// NewResultsHandler creates a new ResultsHandler for source.
func NewResultsHandler(source ResultSource, logger *zap.SugaredLogger) *ResultsHandler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &ResultsHandler{source: source, logger: logger}
}

// ServeHTTP upgrades the connection and forwards results until either side closes.
func (h *ResultsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debugw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	results, cancel := h.source.Results()
	defer cancel()

	session := h.source.Session()
	closed := make(chan struct{})

	// Reads only serve pongs and detect the client going away.
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(m Message) error {
		m.Session = session
		m.Time = time.Now().UnixMilli()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(m)
	}

	if err := send(Message{Type: "hello"}); err != nil {
		return
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case res, ok := <-results:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "recognizer stopped"),
					time.Now().Add(writeWait))
				return
			}
			if err := send(Message{Type: "result", Result: &res}); err != nil {
				h.logger.Debugw("websocket write failed", "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
