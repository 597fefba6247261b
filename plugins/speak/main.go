// Package main provides a speech plugin.
// It says text aloud with say on macOS and espeak-ng, espeak or spd-say elsewhere.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
)

// Request represents the input from the plugin executor.
type Request struct {
	Action string          `json:"action"`
	Text   string          `json:"text"`
	Config json.RawMessage `json:"config"`
	Params json.RawMessage `json:"params"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// SpeakParams tunes the voice. Zero values keep the engine defaults.
type SpeakParams struct {
	Voice string `json:"voice"`
	Rate  int    `json:"rate"` // words per minute
}

var errNoEngine = errors.New("no speech engine found")

// linuxEngines are tried in order.
var linuxEngines = []string{"espeak-ng", "espeak", "spd-say"}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	if req.Action != "speak" {
		writeErrorResponse(fmt.Sprintf("unknown action: %s", req.Action))
		return
	}

	engine, err := handleSpeak(req)
	if err != nil {
		writeErrorResponse(fmt.Sprintf("action %s failed: %v", req.Action, err))
		return
	}

	data, _ := json.Marshal(map[string]string{"engine": engine})
	writeSuccessResponse(data)
}

// handleSpeak says req.Text and returns the engine that was used.
func handleSpeak(req Request) (string, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return "", fmt.Errorf("text is required")
	}

	var p SpeakParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return "", fmt.Errorf("failed to parse params: %w", err)
		}
	}

	engine, err := findEngine(runtime.GOOS, exec.LookPath)
	if err != nil {
		return "", err
	}

	args := speakArgs(engine, text, p)
	output, err := exec.Command(engine, args...).CombinedOutput()
	if err != nil {
		return engine, fmt.Errorf("%w: %s", err, string(output))
	}
	return engine, nil
}

// findEngine picks the speech program for goos.
func findEngine(goos string, lookPath func(string) (string, error)) (string, error) {
	candidates := linuxEngines
	if goos == "darwin" {
		candidates = []string{"say"}
	}
	for _, c := range candidates {
		if _, err := lookPath(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w (tried %s)", errNoEngine, strings.Join(candidates, ", "))
}

// speakArgs builds the command line for engine. Text always comes last.
func speakArgs(engine, text string, p SpeakParams) []string {
	var args []string
	switch engine {
	case "say":
		if p.Voice != "" {
			args = append(args, "-v", p.Voice)
		}
		if p.Rate > 0 {
			args = append(args, "-r", strconv.Itoa(p.Rate))
		}
	case "espeak", "espeak-ng":
		if p.Voice != "" {
			args = append(args, "-v", p.Voice)
		}
		if p.Rate > 0 {
			args = append(args, "-s", strconv.Itoa(p.Rate))
		}
	case "spd-say":
		args = append(args, "--wait")
		if p.Voice != "" {
			args = append(args, "-l", p.Voice)
		}
	}
	return append(args, "--", text)
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	resp := Response{
		Success: false,
		Error:   errMsg,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}

// writeSuccessResponse writes a success response to stdout.
func writeSuccessResponse(data json.RawMessage) {
	resp := Response{
		Success: true,
		Data:    data,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}
