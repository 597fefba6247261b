// Package tray shows the recognized letter in the system tray.
package tray

import (
	"sync"

	"github.com/getlantern/systray"

	"github.com/srujkamble02/ishara/internal/gate"
	"github.com/srujkamble02/ishara/internal/overlay"
)

const appName = "Ishara"

// Tray represents the system tray application.
type Tray struct {
	onToggle func(enabled bool)
	onSpeak  func()
	onOpen   func()
	onQuit   func()
	enabled  bool
	last     gate.Result
	mu       sync.RWMutex

	// Menu items stored for later updates
	menuToggle *systray.MenuItem
	menuStatus *systray.MenuItem
	menuLetter *systray.MenuItem
	menuSpeak  *systray.MenuItem
}

// New creates a new Tray instance with enabled state set to true by default.
func New() *Tray {
	return &Tray{
		enabled: true,
	}
}

// OnToggle sets the callback function to be called when recognition is toggled.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnSpeak sets the callback function to be called when Speak is clicked.
func (t *Tray) OnSpeak(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSpeak = fn
}

// OnOpen sets the callback function to be called when the viewer menu item is clicked.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle(appName)
	systray.SetTooltip("Ishara sign letter recognition")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Toggle sign recognition")
	systray.AddSeparator()

	caption := overlay.CaptionFor(t.last)
	t.menuStatus = systray.AddMenuItem(caption.Status, "Hand presence")
	t.menuStatus.Disable()
	t.menuLetter = systray.AddMenuItem(letterTitle(caption), "Displayed letter")
	t.menuLetter.Disable()
	t.menuSpeak = systray.AddMenuItem("Speak", "Say the displayed letter")
	if !t.last.HasLabel() {
		t.menuSpeak.Disable()
	}
	systray.AddSeparator()
	t.mu.Unlock()

	menuOpen := systray.AddMenuItem("Open Viewer...", "Open the live view in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Ishara")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-t.menuSpeak.ClickedCh:
				t.handleSpeak()
			case <-menuOpen.ClickedCh:
				t.handleOpen()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				systray.Quit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

// handleToggle handles the toggle menu item click.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled

	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}

	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

func (t *Tray) handleSpeak() {
	t.mu.RLock()
	callback := t.onSpeak
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleOpen() {
	t.mu.RLock()
	callback := t.onOpen
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// SetResult updates the title and menu for the latest gated result.
func (t *Tray) SetResult(r gate.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()

	changed := r.Label != t.last.Label || r.HandPresent != t.last.HandPresent
	t.last = r
	if !changed || t.menuLetter == nil {
		return
	}

	caption := overlay.CaptionFor(r)
	systray.SetTitle(trayTitle(r))
	t.menuStatus.SetTitle(caption.Status)
	t.menuLetter.SetTitle(letterTitle(caption))
	if r.HasLabel() {
		t.menuSpeak.Enable()
	} else {
		t.menuSpeak.Disable()
	}
}

// Watch applies results until the channel closes.
func (t *Tray) Watch(results <-chan gate.Result) {
	for r := range results {
		t.SetResult(r)
	}
}

// Last returns the most recent result passed to SetResult.
func (t *Tray) Last() gate.Result {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Enabled"
	}
	return "○ Disabled"
}

func trayTitle(r gate.Result) string {
	if !r.HasLabel() {
		return appName
	}
	return appName + ": " + r.Label
}

func letterTitle(c overlay.Caption) string {
	if c.Confidence == "" {
		return "Letter: " + c.Label
	}
	return "Letter: " + c.Label + "  (" + c.Confidence + ")"
}
