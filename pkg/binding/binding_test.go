package binding

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realtime-ai/musicbind/pkg/analysis"
	"github.com/realtime-ai/musicbind/pkg/platform"
)

const pressAScript = `
input_mode = "keyboard"
accept_calls = 0

function accepts(window_title)
    accept_calls = accept_calls + 1
    return true
end

function process()
    keys_down("a")
end
`

func mustLoad(t *testing.T, source, name string, windows platform.WindowSystem) *Binding {
	t.Helper()
	b, err := Load([]byte(source), name, windows)
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b
}

func a4() analysis.Result {
	note, _ := analysis.NoteFromFrequency(441, analysis.DefaultInTuneCents)
	return analysis.Result{Note: note, Pitch: 441, Power: 0.3}
}

func TestLoad(t *testing.T) {
	b1 := mustLoad(t, pressAScript, "press_a.lua", platform.NoWindow{})
	b2 := mustLoad(t, pressAScript, "press_a.lua", platform.NoWindow{})

	assert.Equal(t, "press_a.lua", b1.Name())
	assert.NotEqual(t, b1.ID(), b2.ID(), "every load is an independent binding")
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"syntax error", "function process( keys_down('a') end"},
		{"top-level error", "error('boom')"},
		{"keys outside tick", "keys_down('a')"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Load([]byte(tt.source), "bad.lua", nil)
			assert.Nil(t, b)
			assert.ErrorIs(t, err, ErrScriptLoad)
			assert.Contains(t, err.Error(), "bad.lua")
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "binding.lua")
	require.NoError(t, os.WriteFile(path, []byte(pressAScript), 0o644))

	b, err := LoadFile(path, nil)
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, "binding.lua", b.Name())

	_, err = LoadFile(filepath.Join(dir, "missing.lua"), nil)
	assert.ErrorIs(t, err, ErrScriptLoad)
}

func TestProcessTick_KeysDownEachTick(t *testing.T) {
	b := mustLoad(t, pressAScript, "press_a.lua", platform.NewMockWindowSystem(1, "Game"))
	sink := platform.NewMockKeySink()

	for i := 0; i < 3; i++ {
		require.NoError(t, b.ProcessTick(a4(), sink))
	}

	want := []platform.KeyEvent{
		{Kind: platform.KeyEventDown, Key: 'a'},
		{Kind: platform.KeyEventDown, Key: 'a'},
		{Kind: platform.KeyEventDown, Key: 'a'},
	}
	assert.Equal(t, want, sink.Recorded())
	assert.Equal(t, 1.0, b.interp.GetGlobal("accept_calls"))
}

func TestProcessTick_InjectsGlobals(t *testing.T) {
	const script = `
function accepts(t) return true end
function process()
    seen = {note = note, note_frequency = note_frequency, frequency = frequency,
            octave = octave, cents_offset = cents_offset, in_tune = in_tune,
            pitch = pitch, power = power}
    seen_note = note
    seen_octave = octave
    seen_in_tune = in_tune
    seen_pitch = pitch
    seen_power = power
    seen_frequency = frequency
    seen_note_frequency = note_frequency
end
`
	b := mustLoad(t, script, "globals.lua", nil)
	sink := platform.NewMockKeySink()

	require.NoError(t, b.ProcessTick(a4(), sink))
	assert.Equal(t, "A", b.interp.GetGlobal("seen_note"))
	assert.Equal(t, 4.0, b.interp.GetGlobal("seen_octave"))
	assert.Equal(t, true, b.interp.GetGlobal("seen_in_tune"))
	assert.Equal(t, 441.0, b.interp.GetGlobal("seen_pitch"))
	assert.Equal(t, 0.3, b.interp.GetGlobal("seen_power"))
	assert.Equal(t, 441.0, b.interp.GetGlobal("seen_frequency"))
	assert.InDelta(t, 440.0, b.interp.GetGlobal("seen_note_frequency"), 1e-9)

	// A silent tick clears the note globals instead of keeping stale values.
	require.NoError(t, b.ProcessTick(analysis.Result{}, sink))
	assert.Nil(t, b.interp.GetGlobal("seen_note"))
	assert.Nil(t, b.interp.GetGlobal("seen_octave"))
	assert.Equal(t, 0.0, b.interp.GetGlobal("seen_pitch"))
	assert.Equal(t, 0.0, b.interp.GetGlobal("seen_power"))
}

func TestProcessTick_AcceptsOncePerFocusChange(t *testing.T) {
	const script = `
accept_calls = 0
last_title = "unset"
function accepts(window_title)
    accept_calls = accept_calls + 1
    last_title = window_title
    return true
end
function process()
    keys_down("abc")
    keys_up("abc")
end
`
	windows := platform.NewMockWindowSystem(1, "Editor")
	b := mustLoad(t, script, "focus.lua", windows)
	sink := platform.NewMockKeySink()

	for i := 0; i < 5; i++ {
		require.NoError(t, b.ProcessTick(analysis.Result{}, sink))
	}
	assert.Equal(t, 1.0, b.interp.GetGlobal("accept_calls"))
	assert.Equal(t, "Editor", b.interp.GetGlobal("last_title"))
	assert.Len(t, sink.Recorded(), 30)
	assert.Equal(t, 5, windows.ForegroundCalls, "focus is polled once per tick")

	windows.Focus(2, "")
	for i := 0; i < 3; i++ {
		require.NoError(t, b.ProcessTick(analysis.Result{}, sink))
	}
	assert.Equal(t, 2.0, b.interp.GetGlobal("accept_calls"))
	assert.Nil(t, b.interp.GetGlobal("last_title"), "untitled window is passed as nil")

	handle, _, hasTitle := b.Focus().Window()
	assert.Equal(t, platform.WindowHandle(2), handle)
	assert.False(t, hasTitle)
}

func TestProcessTick_RejectedWindowEmitsNothing(t *testing.T) {
	const script = `
input_mode = "keyboard"
function accepts(window_title) return false end
function process()
    keys_down("hello")
    keys_up("hello")
    keys("world", false)
end
`
	b := mustLoad(t, script, "reject.lua", platform.NewMockWindowSystem(1, "Terminal"))
	sink := platform.NewMockKeySink()

	for i := 0; i < 3; i++ {
		require.NoError(t, b.ProcessTick(a4(), sink))
	}
	assert.Empty(t, sink.Recorded())
}

func TestProcessTick_GateFollowsTitle(t *testing.T) {
	const script = `
function accepts(window_title)
    return window_title ~= nil and string.find(window_title, "Game") ~= nil
end
function process() keys_down("w") end
`
	windows := platform.NewMockWindowSystem(1, "Browser")
	b := mustLoad(t, script, "gate.lua", windows)
	sink := platform.NewMockKeySink()

	require.NoError(t, b.ProcessTick(a4(), sink))
	assert.Empty(t, sink.Recorded())

	windows.Focus(2, "My Game")
	require.NoError(t, b.ProcessTick(a4(), sink))
	assert.Equal(t, []platform.KeyEvent{{Kind: platform.KeyEventDown, Key: 'w'}}, sink.Recorded())

	windows.Focus(0, "")
	require.NoError(t, b.ProcessTick(a4(), sink))
	assert.Len(t, sink.Recorded(), 1, "no focused window is rejected")
}

func TestProcessTick_InputModes(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []platform.KeyEvent
	}{
		{
			name: "keyboard lowercases",
			script: `input_mode = "keyboard"
function accepts(t) return true end
function process() keys("Ab", false) keys_up("A") end`,
			want: []platform.KeyEvent{
				{Kind: platform.KeyEventDown, Key: 'a'},
				{Kind: platform.KeyEventDown, Key: 'b'},
				{Kind: platform.KeyEventUp, Key: 'a'},
			},
		},
		{
			name: "default mode is keyboard",
			script: `function accepts(t) return true end
function process() keys_down("Q") end`,
			want: []platform.KeyEvent{{Kind: platform.KeyEventDown, Key: 'q'}},
		},
		{
			name: "character mode types text",
			script: `input_mode = "character"
function accepts(t) return true end
function process() keys_down("Hé") end`,
			want: []platform.KeyEvent{
				{Kind: platform.KeyEventText, Text: "H"},
				{Kind: platform.KeyEventText, Text: "é"},
			},
		},
		{
			name: "numbers are coerced to text",
			script: `function accepts(t) return true end
function process() keys_down(1) keys_up(2.5) end`,
			want: []platform.KeyEvent{
				{Kind: platform.KeyEventDown, Key: '1'},
				{Kind: platform.KeyEventUp, Key: '2'},
				{Kind: platform.KeyEventUp, Key: '.'},
				{Kind: platform.KeyEventUp, Key: '5'},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := mustLoad(t, tt.script, "mode.lua", nil)
			sink := platform.NewMockKeySink()
			require.NoError(t, b.ProcessTick(analysis.Result{}, sink))
			assert.Equal(t, tt.want, sink.Recorded())
		})
	}
}

func TestProcessTick_SkipsUnmappedAndMalformed(t *testing.T) {
	const script = `
function accepts(t) return true end
function process() keys_down("x\255€y") end
`
	b := mustLoad(t, script, "skip.lua", nil)
	sink := platform.NewMockKeySink()
	sink.Unmapped['€'] = true

	require.NoError(t, b.ProcessTick(analysis.Result{}, sink))
	assert.Equal(t, []platform.KeyEvent{
		{Kind: platform.KeyEventDown, Key: 'x'},
		{Kind: platform.KeyEventDown, Key: 'y'},
	}, sink.Recorded())
}

func TestProcessTick_DispatchErrorsAreBestEffort(t *testing.T) {
	b := mustLoad(t, pressAScript, "press_a.lua", nil)
	sink := platform.NewMockKeySink()
	sink.Err = errors.New("input subsystem busy")

	assert.NoError(t, b.ProcessTick(analysis.Result{}, sink))
	assert.Len(t, sink.Recorded(), 1)
}

func TestProcessTick_RuntimeErrors(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{"process raises", `function accepts(t) return true end
function process() error("bad tick") end`},
		{"accepts raises", `function accepts(t) error("bad accepts") end
function process() keys_down("a") end`},
		{"accepts missing", `function process() keys_down("a") end`},
		{"process missing", `function accepts(t) return true end`},
		{"keys bad argument", `function accepts(t) return true end
function process() keys_down({}) end`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := mustLoad(t, tt.script, "broken.lua", nil)
			sink := platform.NewMockKeySink()
			err := b.ProcessTick(a4(), sink)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrScriptRuntime)
			assert.Empty(t, sink.Recorded())
		})
	}
}

func TestProcessTick_FocusQueryFailureKeepsGateClosed(t *testing.T) {
	windows := platform.NewMockWindowSystem(1, "Game")
	windows.FailWith(errors.New("display lost"))
	b := mustLoad(t, pressAScript, "press_a.lua", windows)
	sink := platform.NewMockKeySink()

	require.NoError(t, b.ProcessTick(a4(), sink))
	assert.Empty(t, sink.Recorded())
	assert.Equal(t, 0.0, b.interp.GetGlobal("accept_calls"))

	windows.FailWith(nil)
	require.NoError(t, b.ProcessTick(a4(), sink))
	assert.Len(t, sink.Recorded(), 1)
}

func TestProcessTick_IdenticalLoadsBehaveIdentically(t *testing.T) {
	const script = `
function accepts(t) return true end
count = 0
function process()
    count = count + 1
    if power > 0.1 and note == "A" then keys_down("a") else keys_up("a") end
    if count % 2 == 0 then keys_down("s") end
end
`
	results := []analysis.Result{a4(), {}, a4(), a4(), {Power: 0.5}}

	run := func() []platform.KeyEvent {
		b := mustLoad(t, script, "same.lua", platform.StaticWindow{Handle: 3, Title: "Game"})
		sink := platform.NewMockKeySink()
		for _, res := range results {
			require.NoError(t, b.ProcessTick(res, sink))
		}
		return sink.Recorded()
	}

	first := run()
	second := run()
	assert.Equal(t, first, second)
	assert.NotEmpty(t, first)
}

func TestSandbox(t *testing.T) {
	const script = `
has_os = os ~= nil
has_io = io ~= nil
has_dofile = dofile ~= nil
has_math = math ~= nil
has_string = string ~= nil
function accepts(t) return true end
function process() end
`
	b := mustLoad(t, script, "sandbox.lua", nil)
	assert.Equal(t, false, b.interp.GetGlobal("has_os"))
	assert.Equal(t, false, b.interp.GetGlobal("has_io"))
	assert.Equal(t, false, b.interp.GetGlobal("has_dofile"))
	assert.Equal(t, true, b.interp.GetGlobal("has_math"))
	assert.Equal(t, true, b.interp.GetGlobal("has_string"))
}
