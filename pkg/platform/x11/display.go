// Package x11 implements the platform capabilities on an X11 desktop:
// the focused window is read from _NET_ACTIVE_WINDOW and keys are
// synthesized through the XTEST extension.
package x11

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"github.com/jezek/xgb/xtest"
	log "github.com/sirupsen/logrus"

	"github.com/realtime-ai/musicbind/pkg/platform"
)

const (
	keysymShiftL    xproto.Keysym = 0xffe1
	keysymBackspace xproto.Keysym = 0xff08
	keysymTab       xproto.Keysym = 0xff09
	keysymReturn    xproto.Keysym = 0xff0d
	keysymEscape    xproto.Keysym = 0xff1b

	maxTitleLength = 1024
)

type keyEntry struct {
	code  xproto.Keycode
	shift bool
}

// Display is a connection to an X server implementing both
// platform.WindowSystem and platform.KeySink.
type Display struct {
	conn *xgb.Conn
	root xproto.Window

	atomActiveWindow xproto.Atom
	atomWMName       xproto.Atom
	atomUTF8String   xproto.Atom

	keymap    map[xproto.Keysym]keyEntry
	shiftCode xproto.Keycode

	mu sync.Mutex
}

// Connect opens display (":0" style, empty uses $DISPLAY) and loads the
// keyboard mapping.
func Connect(display string) (*Display, error) {
	conn, err := xgb.NewConnDisplay(display)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X display %q: %w", display, err)
	}

	if err := xtest.Init(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("XTEST extension unavailable: %w", err)
	}

	setup := xproto.Setup(conn)
	d := &Display{
		conn: conn,
		root: setup.DefaultScreen(conn).Root,
	}

	for name, dst := range map[string]*xproto.Atom{
		"_NET_ACTIVE_WINDOW": &d.atomActiveWindow,
		"_NET_WM_NAME":       &d.atomWMName,
		"UTF8_STRING":        &d.atomUTF8String,
	} {
		reply, err := xproto.InternAtom(conn, false, uint16(len(name)), name).Reply()
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to intern atom %s: %w", name, err)
		}
		*dst = reply.Atom
	}

	if err := d.loadKeymap(setup); err != nil {
		conn.Close()
		return nil, err
	}

	log.Printf("connected to X display, %d keysyms mapped", len(d.keymap))
	return d, nil
}

func (d *Display) loadKeymap(setup *xproto.SetupInfo) error {
	count := int(setup.MaxKeycode) - int(setup.MinKeycode) + 1
	reply, err := xproto.GetKeyboardMapping(d.conn, setup.MinKeycode, byte(count)).Reply()
	if err != nil {
		return fmt.Errorf("failed to read keyboard mapping: %w", err)
	}

	d.keymap = buildKeymap(setup.MinKeycode, int(reply.KeysymsPerKeycode), reply.Keysyms)
	if shift, ok := d.keymap[keysymShiftL]; ok {
		d.shiftCode = shift.code
	}
	return nil
}

// buildKeymap indexes the first two levels of each keycode. Level 0 is the
// plain key, level 1 needs Shift. Earlier keycodes win.
func buildKeymap(minKeycode xproto.Keycode, perKeycode int, keysyms []xproto.Keysym) map[xproto.Keysym]keyEntry {
	keymap := make(map[xproto.Keysym]keyEntry)
	if perKeycode <= 0 {
		return keymap
	}
	levels := perKeycode
	if levels > 2 {
		levels = 2
	}
	for i := 0; i*perKeycode < len(keysyms); i++ {
		for level := 0; level < levels; level++ {
			ks := keysyms[i*perKeycode+level]
			if ks == 0 {
				continue
			}
			if _, exists := keymap[ks]; !exists {
				keymap[ks] = keyEntry{code: minKeycode + xproto.Keycode(i), shift: level == 1}
			}
		}
	}
	return keymap
}

// keysymFor maps a character to its X keysym.
func keysymFor(r rune) xproto.Keysym {
	switch r {
	case '\b':
		return keysymBackspace
	case '\t':
		return keysymTab
	case '\n', '\r':
		return keysymReturn
	case 0x1b:
		return keysymEscape
	}
	if (r >= 0x20 && r <= 0x7e) || (r >= 0xa0 && r <= 0xff) {
		return xproto.Keysym(r)
	}
	return xproto.Keysym(0x01000000 | uint32(r))
}

// ForegroundWindow implements platform.WindowSystem.
func (d *Display) ForegroundWindow() (platform.WindowHandle, error) {
	reply, err := xproto.GetProperty(d.conn, false, d.root, d.atomActiveWindow,
		xproto.AtomWindow, 0, 1).Reply()
	if err != nil {
		return 0, fmt.Errorf("failed to read _NET_ACTIVE_WINDOW: %w", err)
	}
	if reply.Format != 32 || len(reply.Value) < 4 {
		return 0, nil
	}
	return platform.WindowHandle(xgb.Get32(reply.Value)), nil
}

// WindowTitle implements platform.WindowSystem. _NET_WM_NAME is preferred,
// WM_NAME is the fallback.
func (d *Display) WindowTitle(w platform.WindowHandle) (string, bool, error) {
	if w == 0 {
		return "", false, nil
	}
	win := xproto.Window(w)

	reply, err := xproto.GetProperty(d.conn, false, win, d.atomWMName,
		d.atomUTF8String, 0, maxTitleLength/4).Reply()
	if err != nil {
		return "", false, fmt.Errorf("failed to read _NET_WM_NAME: %w", err)
	}
	if len(reply.Value) > 0 && utf8.Valid(reply.Value) {
		return string(reply.Value), true, nil
	}

	reply, err = xproto.GetProperty(d.conn, false, win, xproto.AtomWmName,
		xproto.GetPropertyTypeAny, 0, maxTitleLength/4).Reply()
	if err != nil {
		return "", false, fmt.Errorf("failed to read WM_NAME: %w", err)
	}
	if len(reply.Value) == 0 {
		return "", false, nil
	}
	return string(reply.Value), true, nil
}

func (d *Display) fake(eventType byte, code xproto.Keycode) error {
	return xtest.FakeInputChecked(d.conn, eventType, byte(code), 0, d.root, 0, 0, 0).Check()
}

func (d *Display) lookup(r rune) (keyEntry, error) {
	entry, ok := d.keymap[keysymFor(r)]
	if !ok {
		return keyEntry{}, fmt.Errorf("%w: %q", platform.ErrNoKeyMapping, r)
	}
	return entry, nil
}

// KeyDown implements platform.KeySink.
func (d *Display) KeyDown(r rune) error {
	entry, err := d.lookup(r)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if entry.shift && d.shiftCode != 0 {
		if err := d.fake(xproto.KeyPress, d.shiftCode); err != nil {
			return err
		}
	}
	return d.fake(xproto.KeyPress, entry.code)
}

// KeyUp implements platform.KeySink.
func (d *Display) KeyUp(r rune) error {
	entry, err := d.lookup(r)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fake(xproto.KeyRelease, entry.code); err != nil {
		return err
	}
	if entry.shift && d.shiftCode != 0 {
		return d.fake(xproto.KeyRelease, d.shiftCode)
	}
	return nil
}

// Text implements platform.KeySink by tapping each character in turn.
func (d *Display) Text(s string) error {
	for _, r := range s {
		if err := d.KeyDown(r); err != nil {
			return err
		}
		if err := d.KeyUp(r); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the X connection.
func (d *Display) Close() {
	d.conn.Close()
}

var (
	_ platform.WindowSystem = (*Display)(nil)
	_ platform.KeySink      = (*Display)(nil)
)
