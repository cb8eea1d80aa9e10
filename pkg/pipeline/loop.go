// Package pipeline runs the fixed-rate control loop that turns analysis
// results into key events, and carries the messages exchanged between the
// loop and the presentation side.
//
// The loop owns the active binding. Everything that changes it arrives on
// the control channel and is applied at the start of a tick; everything the
// loop reports leaves through the status queue or the latest-result slot.
// None of these operations block the loop.
package pipeline

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/realtime-ai/musicbind/pkg/analysis"
	"github.com/realtime-ai/musicbind/pkg/platform"
	"github.com/realtime-ai/musicbind/pkg/trace"
)

const (
	// DefaultLoopRate is the tick rate in Hz used when none is configured.
	DefaultLoopRate = 90

	defaultControlBuffer = 16
	fpsInterval          = time.Second
)

// LoopState describes what the loop does with each analysis result.
type LoopState int

const (
	// LoopIdle means no binding is loaded.
	LoopIdle LoopState = iota
	// LoopActive means results are fed to the binding every tick.
	LoopActive
	// LoopPaused means analysis runs but the binding is not called.
	LoopPaused
)

func (s LoopState) String() string {
	switch s {
	case LoopIdle:
		return "idle"
	case LoopActive:
		return "active"
	case LoopPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Analyzer produces one analysis result per tick.
type Analyzer interface {
	IngestTick() analysis.Result
}

// LoopConfig configures a Loop.
type LoopConfig struct {
	// LoopRateHz is the target tick rate. 0 uses DefaultLoopRate.
	LoopRateHz uint32
	// Active starts the loop with script processing enabled.
	Active bool
	// ControlBuffer is the capacity of the control channel.
	ControlBuffer int
	// TraceTicks wraps every tick in a span.
	TraceTicks bool
}

// Loop is the control context. Run must be called from a single goroutine.
type Loop struct {
	analyzer Analyzer
	keys     platform.KeySink

	binding Script
	active  bool
	period  time.Duration

	control chan ControlMessage
	status  *StatusQueue
	results *LatestChan[analysis.Result]

	frame       uint64
	framesInSec uint32
	fpsTimer    *RepeatTimer
	traceTicks  bool

	now   func() time.Time
	sleep func(time.Duration)
}

// NewLoop creates a loop that reads from analyzer and dispatches keys to keys.
func NewLoop(cfg LoopConfig, analyzer Analyzer, keys platform.KeySink) *Loop {
	rate := cfg.LoopRateHz
	if rate == 0 {
		rate = DefaultLoopRate
	}
	buf := cfg.ControlBuffer
	if buf <= 0 {
		buf = defaultControlBuffer
	}

	return &Loop{
		analyzer:   analyzer,
		keys:       keys,
		active:     cfg.Active,
		period:     periodFor(rate),
		control:    make(chan ControlMessage, buf),
		status:     NewStatusQueue(),
		results:    NewLatestChan[analysis.Result](),
		fpsTimer:   NewRepeatTimer(fpsInterval),
		traceTicks: cfg.TraceTicks,
		now:        time.Now,
		sleep:      time.Sleep,
	}
}

func periodFor(hz uint32) time.Duration {
	return time.Second / time.Duration(hz)
}

// Control returns the channel used to send control messages to the loop.
func (l *Loop) Control() chan<- ControlMessage {
	return l.control
}

// Status returns the queue the loop reports Fps and script errors on.
func (l *Loop) Status() *StatusQueue {
	return l.status
}

// Results returns the slot holding the most recent analysis result.
func (l *Loop) Results() *LatestChan[analysis.Result] {
	return l.results
}

// Period returns the current target tick period.
func (l *Loop) Period() time.Duration {
	return l.period
}

// State returns the current loop state.
func (l *Loop) State() LoopState {
	switch {
	case l.binding == nil:
		return LoopIdle
	case !l.active:
		return LoopPaused
	default:
		return LoopActive
	}
}

// Run ticks at the configured rate until an Exiting message is received or
// ctx is cancelled. A tick in progress always completes. The binding, if any,
// is closed before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	log.Printf("control loop started: %v per tick", l.period)
	defer l.unload()

	for {
		start := l.now()
		if !l.Tick(ctx) {
			log.Printf("control loop exiting after %d ticks", l.frame)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if remaining := l.period - l.now().Sub(start); remaining > 0 {
			l.sleep(remaining)
		}
	}
}

// Tick runs one loop iteration without sleeping. It returns false once an
// Exiting message has been handled.
func (l *Loop) Tick(ctx context.Context) bool {
	l.frame++
	l.framesInSec++
	if l.fpsTimer.Tick() {
		l.status.Push(Fps{Fps: l.framesInSec})
		l.framesInSec = 0
	}

	keepRunning := l.drainControl()

	if l.traceTicks {
		spanCtx, span := trace.InstrumentTick(ctx, l.frame, l.State().String())
		defer span.End()
		ctx = spanCtx
	}

	res := l.analyzer.IngestTick()
	if l.traceTicks {
		noteName := ""
		if res.Note != nil {
			noteName = res.Note.Name
		}
		span := trace.SpanFromContext(ctx)
		span.SetAttributes(trace.AnalysisAttrs(res.Pitch, res.Power, noteName)...)
		span.SetAttributes(attribute.Int64(trace.AttrLoopPeriod, l.period.Milliseconds()))
	}

	if l.active && l.binding != nil {
		if err := l.binding.ProcessTick(res, l.keys); err != nil {
			l.fail(ctx, err)
		}
	}

	l.results.Publish(res)
	return keepRunning
}

// drainControl applies every pending control message. It returns false if
// one of them was Exiting; see discardAfterExit for what follows it.
func (l *Loop) drainControl() bool {
	for {
		select {
		case msg := <-l.control:
			if !l.apply(msg) {
				l.discardAfterExit()
				return false
			}
		default:
			return true
		}
	}
}

// discardAfterExit empties the control channel without applying anything.
// Bindings sent after Exiting are closed so their interpreters are released.
func (l *Loop) discardAfterExit() {
	for {
		select {
		case msg := <-l.control:
			if bc, ok := msg.(BindingChanged); ok && bc.Binding != nil && bc.Binding != l.binding {
				log.Printf("closing binding %q received after exit", bc.Binding.Name())
				bc.Binding.Close()
			}
		default:
			return
		}
	}
}

func (l *Loop) apply(msg ControlMessage) bool {
	switch m := msg.(type) {
	case ActiveChanged:
		if l.active != m.Active {
			log.Printf("script processing active: %v", m.Active)
		}
		l.active = m.Active
	case BindingChanged:
		l.replace(m.Binding)
	case LoopRateChanged:
		if m.LoopRateHz == 0 {
			log.Warnf("ignoring loop rate of 0 Hz, keeping %v per tick", l.period)
			return true
		}
		l.period = periodFor(m.LoopRateHz)
		log.Printf("loop rate set to %d Hz", m.LoopRateHz)
	case Exiting:
		return false
	default:
		log.Warnf("unknown control message %T", msg)
	}
	return true
}

func (l *Loop) replace(next Script) {
	if l.binding != nil && l.binding != next {
		l.binding.Close()
	}
	l.binding = next
	if next != nil {
		log.Printf("binding %q installed", next.Name())
	} else {
		log.Printf("binding unloaded")
	}
}

func (l *Loop) unload() {
	if l.binding != nil {
		l.binding.Close()
		l.binding = nil
	}
}

// fail discards the binding after a script error and reports it.
func (l *Loop) fail(ctx context.Context, err error) {
	name := l.binding.Name()
	trace.Logger(ctx).Errorf("binding %q discarded: %v", name, err)

	if l.traceTicks {
		trace.RecordScriptError(trace.SpanFromContext(ctx), name, err)
	}

	l.unload()
	l.status.Push(ScriptError{Err: err.Error()})
}
