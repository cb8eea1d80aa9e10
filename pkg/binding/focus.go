package binding

import (
	log "github.com/sirupsen/logrus"

	"github.com/realtime-ai/musicbind/pkg/platform"
)

// AcceptFunc decides whether automation may target a window. hasTitle is
// false when there is no focused window or it has no title.
type AcceptFunc func(title string, hasTitle bool) (bool, error)

// FocusState caches the focus gate decision for the current foreground
// window. The decision is recomputed only when the foreground window changes.
type FocusState struct {
	windows platform.WindowSystem

	handle   platform.WindowHandle
	title    string
	hasTitle bool
	checked  bool
	accepted bool

	// polled is reset every tick so the window system is queried at most
	// once per tick.
	polled  bool
	current platform.WindowHandle
}

// NewFocusState creates a gate over windows. A nil windows behaves like
// platform.NoWindow.
func NewFocusState(windows platform.WindowSystem) *FocusState {
	if windows == nil {
		windows = platform.NoWindow{}
	}
	return &FocusState{windows: windows}
}

// BeginTick marks the start of a tick; the next Accepts call polls the
// foreground window again.
func (f *FocusState) BeginTick() {
	f.polled = false
}

// Accepts reports whether the foreground window is accepted, invoking decide
// only when the foreground window differs from the last decided one.
func (f *FocusState) Accepts(decide AcceptFunc) (bool, error) {
	if !f.polled {
		h, err := f.windows.ForegroundWindow()
		if err != nil {
			// Keep the previous decision; without one the gate stays closed.
			log.Warnf("focus query failed: %v", err)
			return f.checked && f.accepted, nil
		}
		f.current = h
		f.polled = true
	}

	if f.checked && f.current == f.handle {
		return f.accepted, nil
	}

	title, hasTitle := "", false
	if f.current != 0 {
		t, ok, err := f.windows.WindowTitle(f.current)
		if err != nil {
			log.Warnf("window title query failed: %v", err)
		} else {
			title, hasTitle = t, ok
		}
	}

	accepted, err := decide(title, hasTitle)
	if err != nil {
		return false, err
	}

	f.handle = f.current
	f.title, f.hasTitle = title, hasTitle
	f.checked = true
	f.accepted = accepted
	return accepted, nil
}

// Window returns the last decided window and its cached title.
func (f *FocusState) Window() (platform.WindowHandle, string, bool) {
	return f.handle, f.title, f.hasTitle
}
