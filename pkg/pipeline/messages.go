package pipeline

import (
	"fmt"

	"github.com/realtime-ai/musicbind/pkg/analysis"
	"github.com/realtime-ai/musicbind/pkg/platform"
)

// Script is the binding the loop drives every tick.
type Script interface {
	Name() string
	ProcessTick(res analysis.Result, keys platform.KeySink) error
	Close()
}

// ControlMessage is sent from the presentation side into the loop.
type ControlMessage interface {
	controlMessage()
}

// ActiveChanged pauses or resumes script processing.
type ActiveChanged struct {
	Active bool
}

// BindingChanged replaces the current binding. A nil Binding unloads it.
type BindingChanged struct {
	Binding Script
}

// LoopRateChanged sets the tick rate in Hz.
type LoopRateChanged struct {
	LoopRateHz uint32
}

// Exiting stops the loop after the in-flight tick.
type Exiting struct{}

func (ActiveChanged) controlMessage()   {}
func (BindingChanged) controlMessage()  {}
func (LoopRateChanged) controlMessage() {}
func (Exiting) controlMessage()         {}

// StatusMessage is sent from the loop to the presentation side.
type StatusMessage interface {
	statusMessage()
}

// Fps reports how many ticks ran during the last second.
type Fps struct {
	Fps uint32
}

// ScriptError reports that the binding failed and was discarded.
type ScriptError struct {
	Err string
}

func (Fps) statusMessage()         {}
func (ScriptError) statusMessage() {}

func (m Fps) String() string         { return fmt.Sprintf("Fps{%d}", m.Fps) }
func (m ScriptError) String() string { return fmt.Sprintf("ScriptError{%s}", m.Err) }
