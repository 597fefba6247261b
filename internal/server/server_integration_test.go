package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/srujkamble02/ishara/internal/classifier"
	"github.com/srujkamble02/ishara/internal/config"
	"github.com/srujkamble02/ishara/internal/gate"
	"github.com/srujkamble02/ishara/internal/store"
)

func waitSubscribed(t *testing.T, f *fakeApp, want string) {
	t.Helper()
	select {
	case got := <-f.subscribed:
		if got != want {
			t.Fatalf("subscribed to %s, want %s", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("handler never subscribed to %s", want)
	}
}

func TestAPI_Stream(t *testing.T) {
	f := newFakeApp()
	ts := httptest.NewServer(New(Config{App: f}))
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/api/stream")
	if err != nil {
		t.Fatalf("GET /api/stream error = %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "multipart/x-mixed-replace; boundary=frame" {
		t.Fatalf("Content-Type = %q", ct)
	}
	waitSubscribed(t, f, "frames")

	f.frames <- []byte("jpeg-1")
	f.frames <- []byte("jpeg-2")

	mr := multipart.NewReader(resp.Body, "frame")
	part, err := mr.NextPart()
	if err != nil {
		t.Fatalf("NextPart() error = %v", err)
	}
	if ct := part.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("part Content-Type = %q", ct)
	}
	if cl := part.Header.Get("Content-Length"); cl != "6" {
		t.Errorf("part Content-Length = %q", cl)
	}
	body, err := io.ReadAll(part)
	if err != nil {
		t.Fatalf("read part: %v", err)
	}
	if !bytes.Equal(body, []byte("jpeg-1")) {
		t.Errorf("part body = %q, want jpeg-1", body)
	}

	// closing the source ends the response
	close(f.frames)
	done := make(chan struct{})
	go func() {
		io.Copy(io.Discard, resp.Body)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after the source closed")
	}
	if f.cancelled.Load() != 1 {
		t.Errorf("subscription cancelled %d times, want 1", f.cancelled.Load())
	}
}

func TestAPI_Results(t *testing.T) {
	f := newFakeApp()
	ts := httptest.NewServer(New(Config{App: f}))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/results"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hello Message
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatalf("read hello: %v", err)
	}
	if hello.Type != "hello" || hello.Session != "session-1" {
		t.Errorf("hello = %+v", hello)
	}

	f.results <- gate.Result{
		Label:       "Y",
		Confidence:  0.8,
		HandPresent: true,
		Reason:      gate.ReasonAccepted,
		Frame:       7,
		Raw:         &classifier.Prediction{Label: "Y", Index: 24, Confidence: 0.8},
	}

	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read result: %v", err)
	}
	if msg.Type != "result" || msg.Result == nil {
		t.Fatalf("message = %+v", msg)
	}
	if msg.Result.Label != "Y" || msg.Result.Frame != 7 || !msg.Result.HandPresent {
		t.Errorf("result = %+v", msg.Result)
	}

	close(f.results)
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("expected going-away close, got %v", err)
	}
}

func TestAPI_SettingsWorkflow(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	var applied []config.Config
	srv := New(Config{
		Store:      s,
		Base:       config.DefaultConfig(),
		OnSettings: func(c config.Config) { applied = append(applied, c) },
	})
	ts := httptest.NewServer(srv)
	defer ts.Close()
	client := ts.Client()

	// 1. Change the threshold
	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/settings", strings.NewReader(`{"threshold":"0.35"}`))
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("PUT /api/settings error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	resp.Body.Close()

	if len(applied) != 1 || applied[0].Threshold != 0.35 {
		t.Fatalf("applied = %+v, want threshold 0.35", applied)
	}

	// 2. Read it back
	resp, _ = client.Get(ts.URL + "/api/settings")
	var got struct {
		Settings  map[string]string `json:"settings"`
		Overrides map[string]string `json:"overrides"`
	}
	json.NewDecoder(resp.Body).Decode(&got)
	resp.Body.Close()

	if got.Settings["threshold"] != "0.35" || got.Overrides["threshold"] != "0.35" {
		t.Errorf("settings = %+v", got)
	}

	// 3. Revert
	req, _ = http.NewRequest(http.MethodDelete, ts.URL+"/api/settings/threshold", nil)
	resp, _ = client.Do(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("DELETE status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	resp.Body.Close()

	if last := applied[len(applied)-1]; last.Threshold != gate.DefaultThreshold {
		t.Errorf("threshold after revert = %v, want %v", last.Threshold, gate.DefaultThreshold)
	}

	// 4. Reverting again is not found
	req, _ = http.NewRequest(http.MethodDelete, ts.URL+"/api/settings/threshold", nil)
	resp, _ = client.Do(req)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second DELETE status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	resp.Body.Close()
}

func TestAPI_HealthCheck(t *testing.T) {
	srv := New(Config{App: newFakeApp()})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var health struct {
		Status  string `json:"status"`
		Uptime  string `json:"uptime"`
		Session string `json:"session"`
	}
	json.NewDecoder(resp.Body).Decode(&health)

	if health.Status != "ok" {
		t.Errorf("status = %s, want ok", health.Status)
	}
	if health.Session != "session-1" {
		t.Errorf("session = %s, want session-1", health.Session)
	}
}
