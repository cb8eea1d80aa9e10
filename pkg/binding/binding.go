// Package binding hosts a user automation script. Each tick the latest
// analysis is exposed to the script as globals, its process() function is
// called, and key requests made through keys()/keys_down()/keys_up() are
// gated by the script's accepts() decision for the focused window.
//
// Script contract:
//
//	input_mode = "keyboard"           -- or "character"
//
//	function accepts(window_title)    -- called when focus changes
//	    return window_title ~= nil and window_title:find("Game") ~= nil
//	end
//
//	function process()                -- called every tick
//	    if power > 0.1 and note == "A" then keys_down("a") else keys_up("a") end
//	end
package binding

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/realtime-ai/musicbind/pkg/analysis"
	"github.com/realtime-ai/musicbind/pkg/platform"
)

// Script-visible names.
const (
	GlobalNote          = "note"
	GlobalNoteFrequency = "note_frequency"
	GlobalFrequency     = "frequency"
	GlobalOctave        = "octave"
	GlobalCentsOffset   = "cents_offset"
	GlobalInTune        = "in_tune"
	GlobalPitch         = "pitch"
	GlobalPower         = "power"
	GlobalInputMode     = "input_mode"

	FuncKeys     = "keys"
	FuncKeysDown = "keys_down"
	FuncKeysUp   = "keys_up"
	FuncProcess  = "process"
	FuncAccepts  = "accepts"

	InputModeKeyboard  = "keyboard"
	InputModeCharacter = "character"
)

// Errors for binding operations.
var (
	ErrScriptLoad    = errors.New("script load failed")
	ErrScriptRuntime = errors.New("script runtime error")

	errOutsideTick = errors.New("only available while process() runs")
)

// Binding is one loaded automation script. A Binding is owned by a single
// goroutine; reloading creates a new Binding.
type Binding struct {
	id     uuid.UUID
	name   string
	interp Interpreter
	focus  *FocusState

	// keys is only set for the duration of ProcessTick.
	keys platform.KeySink
}

// Load compiles source and runs its top-level code. Errors wrap ErrScriptLoad.
func Load(source []byte, name string, windows platform.WindowSystem) (*Binding, error) {
	interp, err := NewLuaInterpreter(source, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrScriptLoad, name, err)
	}
	return newBinding(interp, name, windows), nil
}

// LoadFile reads a script from path; the binding is named after the file.
func LoadFile(path string, windows platform.WindowSystem) (*Binding, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScriptLoad, err)
	}
	return Load(source, filepath.Base(path), windows)
}

func newBinding(interp Interpreter, name string, windows platform.WindowSystem) *Binding {
	b := &Binding{
		id:     uuid.New(),
		name:   name,
		interp: interp,
		focus:  NewFocusState(windows),
	}
	interp.Register(FuncKeys, b.hostKeys)
	interp.Register(FuncKeysDown, func(args []Value) ([]Value, error) {
		return b.hostKeys(append(firstArg(args), false))
	})
	interp.Register(FuncKeysUp, func(args []Value) ([]Value, error) {
		return b.hostKeys(append(firstArg(args), true))
	})
	return b
}

func firstArg(args []Value) []Value {
	if len(args) == 0 {
		return []Value{nil}
	}
	return []Value{args[0]}
}

// ID uniquely identifies this load of the script.
func (b *Binding) ID() string {
	return b.id.String()
}

// Name is the display name given at load time.
func (b *Binding) Name() string {
	return b.name
}

// Focus exposes the focus gate state.
func (b *Binding) Focus() *FocusState {
	return b.focus
}

// ProcessTick publishes res to the script and runs process(). Errors raised
// by the script wrap ErrScriptRuntime; the caller decides whether to keep
// the binding.
func (b *Binding) ProcessTick(res analysis.Result, keys platform.KeySink) error {
	b.keys = keys
	defer func() { b.keys = nil }()
	b.focus.BeginTick()

	if err := b.setGlobals(res); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrScriptRuntime, b.name, err)
	}
	if _, err := b.interp.Call(FuncProcess); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrScriptRuntime, b.name, err)
	}
	return nil
}

type global struct {
	name  string
	value Value
}

// setGlobals exposes res for this tick. Note globals are nil when no note
// was detected so stale values never leak into the next tick.
func (b *Binding) setGlobals(res analysis.Result) error {
	globals := []global{
		{GlobalPitch, res.Pitch},
		{GlobalPower, res.Power},
		{GlobalNote, nil},
		{GlobalNoteFrequency, nil},
		{GlobalFrequency, nil},
		{GlobalOctave, nil},
		{GlobalCentsOffset, nil},
		{GlobalInTune, nil},
	}
	if n := res.Note; n != nil {
		globals[2].value = n.Name
		globals[3].value = n.TargetFrequency
		globals[4].value = n.ActualFrequency
		globals[5].value = float64(n.Octave)
		globals[6].value = n.CentsOffset
		globals[7].value = n.InTune
	}

	for _, g := range globals {
		if err := b.interp.SetGlobal(g.name, g.value); err != nil {
			return err
		}
	}
	return nil
}

// hostKeys implements keys(text, is_up).
func (b *Binding) hostKeys(args []Value) ([]Value, error) {
	if b.keys == nil {
		return nil, errOutsideTick
	}
	if len(args) == 0 {
		return nil, errors.New("expected key text")
	}
	text, ok := coerceString(args[0])
	if !ok {
		return nil, fmt.Errorf("expected key text string, got %T", args[0])
	}
	isUp := len(args) > 1 && truthy(args[1])

	mode := InputModeKeyboard
	if m, ok := b.interp.GetGlobal(GlobalInputMode).(string); ok {
		mode = m
	}

	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		if r == utf8.RuneError && size == 1 {
			continue
		}

		accepted, err := b.focus.Accepts(b.askAccepts)
		if err != nil {
			return nil, err
		}
		if !accepted {
			continue
		}
		b.dispatch(mode, r, isUp)
	}
	return nil, nil
}

// askAccepts calls the script's accepts(window_title).
func (b *Binding) askAccepts(title string, hasTitle bool) (bool, error) {
	var arg Value
	if hasTitle {
		arg = title
	}
	rets, err := b.interp.Call(FuncAccepts, arg)
	if err != nil {
		return false, err
	}
	return len(rets) > 0 && truthy(rets[0]), nil
}

// dispatch emits one character. Dispatch failures are logged, never raised.
func (b *Binding) dispatch(mode string, r rune, isUp bool) {
	var err error
	switch mode {
	case InputModeCharacter:
		err = b.keys.Text(string(r))
	default:
		r = unicode.ToLower(r)
		if isUp {
			err = b.keys.KeyUp(r)
		} else {
			err = b.keys.KeyDown(r)
		}
	}

	switch {
	case err == nil:
	case errors.Is(err, platform.ErrNoKeyMapping):
		log.Debugf("binding %s: no key for %q", b.name, r)
	default:
		log.Warnf("binding %s: key dispatch failed: %v", b.name, err)
	}
}

// Close releases the interpreter.
func (b *Binding) Close() {
	b.interp.Close()
}
