package platform

import (
	"fmt"
	"sync"
)

// KeyEventKind distinguishes the dispatches recorded by MockKeySink.
type KeyEventKind int

const (
	KeyEventDown KeyEventKind = iota
	KeyEventUp
	KeyEventText
)

func (k KeyEventKind) String() string {
	switch k {
	case KeyEventDown:
		return "down"
	case KeyEventUp:
		return "up"
	default:
		return "text"
	}
}

// KeyEvent is one recorded dispatch.
type KeyEvent struct {
	Kind KeyEventKind
	Key  rune
	Text string
}

func (e KeyEvent) String() string {
	if e.Kind == KeyEventText {
		return fmt.Sprintf("text(%q)", e.Text)
	}
	return fmt.Sprintf("%s(%q)", e.Kind, e.Key)
}

// MockKeySink records every dispatch for verification in tests.
type MockKeySink struct {
	// Unmapped lists characters that report ErrNoKeyMapping.
	Unmapped map[rune]bool
	// Err, when set, is returned by every call after recording it.
	Err error

	Events []KeyEvent

	mu sync.Mutex
}

// NewMockKeySink creates an empty MockKeySink.
func NewMockKeySink() *MockKeySink {
	return &MockKeySink{Unmapped: make(map[rune]bool)}
}

func (m *MockKeySink) record(ev KeyEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.Kind != KeyEventText && m.Unmapped[ev.Key] {
		return ErrNoKeyMapping
	}
	m.Events = append(m.Events, ev)
	return m.Err
}

// KeyDown implements KeySink.
func (m *MockKeySink) KeyDown(r rune) error {
	return m.record(KeyEvent{Kind: KeyEventDown, Key: r})
}

// KeyUp implements KeySink.
func (m *MockKeySink) KeyUp(r rune) error {
	return m.record(KeyEvent{Kind: KeyEventUp, Key: r})
}

// Text implements KeySink.
func (m *MockKeySink) Text(s string) error {
	return m.record(KeyEvent{Kind: KeyEventText, Text: s})
}

// Recorded returns a copy of the recorded events.
func (m *MockKeySink) Recorded() []KeyEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]KeyEvent(nil), m.Events...)
}

// Reset clears the recorded events.
func (m *MockKeySink) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = nil
}

// MockWindowSystem is a WindowSystem whose focus is set by the test.
type MockWindowSystem struct {
	handle   WindowHandle
	title    string
	hasTitle bool
	err      error

	ForegroundCalls int
	TitleCalls      int

	mu sync.Mutex
}

// NewMockWindowSystem creates a MockWindowSystem focused on handle.
func NewMockWindowSystem(handle WindowHandle, title string) *MockWindowSystem {
	m := &MockWindowSystem{}
	m.Focus(handle, title)
	return m
}

// Focus moves focus to handle. An empty title means the window has none.
func (m *MockWindowSystem) Focus(handle WindowHandle, title string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handle = handle
	m.title = title
	m.hasTitle = title != ""
}

// FailWith makes ForegroundWindow return err until cleared with nil.
func (m *MockWindowSystem) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// ForegroundWindow implements WindowSystem.
func (m *MockWindowSystem) ForegroundWindow() (WindowHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ForegroundCalls++
	if m.err != nil {
		return 0, m.err
	}
	return m.handle, nil
}

// WindowTitle implements WindowSystem.
func (m *MockWindowSystem) WindowTitle(w WindowHandle) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TitleCalls++
	if w != m.handle || w == 0 {
		return "", false, nil
	}
	return m.title, m.hasTitle, nil
}

// Ensure the mocks implement the capability interfaces at compile time.
var (
	_ KeySink      = (*MockKeySink)(nil)
	_ WindowSystem = (*MockWindowSystem)(nil)
)
