// Package speech speaks recognized letters through an external plugin.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/srujkamble02/ishara/internal/plugin"
)

// Action is the plugin action that speaks text.
const Action = "speak"

var (
	// ErrUnavailable is returned when no plugin can speak.
	ErrUnavailable = errors.New("speech output unavailable")
	// ErrEmptyText is returned when there is nothing to say.
	ErrEmptyText = errors.New("nothing to speak")
)

// Speaker sends text to the first plugin that declares the speak action.
// Utterances run in the background and their failures are only logged.
type Speaker struct {
	plugins  *plugin.Manager
	executor *plugin.Executor
	logger   *zap.SugaredLogger
	wg       sync.WaitGroup
}

// New creates a Speaker. A nil logger discards output.
func New(plugins *plugin.Manager, executor *plugin.Executor, logger *zap.SugaredLogger) *Speaker {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Speaker{
		plugins:  plugins,
		executor: executor,
		logger:   logger,
	}
}

// Available reports whether a speak plugin was discovered.
func (s *Speaker) Available() bool {
	if s == nil || s.plugins == nil {
		return false
	}
	_, err := s.plugins.ForAction(Action)
	return err == nil
}

// Speak starts speaking text and returns without waiting for it.
func (s *Speaker) Speak(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}
	if s == nil || s.plugins == nil || s.executor == nil {
		return ErrUnavailable
	}

	p, err := s.plugins.ForAction(Action)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		resp, err := s.executor.Execute(context.Background(), p, &plugin.Request{Action: Action, Text: text})
		switch {
		case err != nil:
			s.logger.Debugw("speech failed", "plugin", p.Manifest.Name, "error", err)
		case !resp.Success:
			s.logger.Debugw("speech refused", "plugin", p.Manifest.Name, "error", resp.Error)
		}
	}()
	return nil
}

// Wait blocks until every started utterance has finished.
func (s *Speaker) Wait() {
	s.wg.Wait()
}
