// Package platform defines the desktop capabilities the automation core
// depends on: the foreground window and synthetic keyboard input.
package platform

import (
	"errors"
)

// ErrNoKeyMapping is returned by a KeySink when a character has no physical
// key on the current keyboard layout.
var ErrNoKeyMapping = errors.New("no key mapping for character")

// WindowHandle identifies an OS window. Zero means no window.
type WindowHandle uint64

// WindowSystem reports which window has focus.
type WindowSystem interface {
	// ForegroundWindow returns the currently focused window, 0 if none.
	ForegroundWindow() (WindowHandle, error)
	// WindowTitle returns the title of w, or false if it has none.
	WindowTitle(w WindowHandle) (string, bool, error)
}

// KeySink synthesizes keyboard input.
type KeySink interface {
	// KeyDown presses the physical key producing r.
	KeyDown(r rune) error
	// KeyUp releases the physical key producing r.
	KeyUp(r rune) error
	// Text types s as a single text insertion.
	Text(s string) error
}

// NoWindow is a WindowSystem that never has a focused window.
type NoWindow struct{}

func (NoWindow) ForegroundWindow() (WindowHandle, error) { return 0, nil }

func (NoWindow) WindowTitle(WindowHandle) (string, bool, error) { return "", false, nil }

// StaticWindow always reports the same focused window.
type StaticWindow struct {
	Handle WindowHandle
	Title  string
}

func (s StaticWindow) ForegroundWindow() (WindowHandle, error) { return s.Handle, nil }

func (s StaticWindow) WindowTitle(w WindowHandle) (string, bool, error) {
	if w != s.Handle || w == 0 {
		return "", false, nil
	}
	return s.Title, true, nil
}

var (
	_ WindowSystem = NoWindow{}
	_ WindowSystem = StaticWindow{}
)
