// Package console is the terminal front end. It turns single-key hotkeys
// into control messages for the loop and renders the latest analysis on a
// status line.
//
// Hotkeys:
//
//	space   toggle script processing
//	+ / -   change the loop rate by 10 Hz
//	r       reload the script file
//	q       quit (also Esc and Ctrl-C)
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/realtime-ai/musicbind/pkg/analysis"
	"github.com/realtime-ai/musicbind/pkg/binding"
	"github.com/realtime-ai/musicbind/pkg/config"
	"github.com/realtime-ai/musicbind/pkg/pipeline"
	"github.com/realtime-ai/musicbind/pkg/platform"
	"github.com/realtime-ai/musicbind/pkg/trace"
)

const (
	// PitchPowerThreshold is the power below which pitch and note are hidden.
	PitchPowerThreshold = 0.025

	// LoopRateStep is how much +/- change the loop rate.
	LoopRateStep = 10

	defaultRefresh = 100 * time.Millisecond

	keyCtrlC = 0x03
	keyEsc   = 0x1b
)

// ErrNoScript is returned by Reload when no script path is configured.
var ErrNoScript = errors.New("no script file configured")

// Controller is the loop side the console talks to.
type Controller interface {
	Control() chan<- pipeline.ControlMessage
	Status() *pipeline.StatusQueue
	Results() *pipeline.LatestChan[analysis.Result]
}

// DropCounter reports samples lost by the capture ring.
type DropCounter interface {
	Dropped() uint64
}

// Config configures a Console.
type Config struct {
	// ScriptPath is the file loaded by Reload.
	ScriptPath string
	// LoopRateHz and Active must match what the loop was started with.
	LoopRateHz uint32
	Active     bool
	// Refresh is the status line redraw interval.
	Refresh time.Duration
}

// Console runs on its own goroutine, separate from the loop.
type Console struct {
	cfg     Config
	ctrl    Controller
	windows platform.WindowSystem
	dropped DropCounter
	out     io.Writer

	active      bool
	rate        uint32
	fps         uint32
	bindingName string
	lastErr     string
	result      analysis.Result
}

// New creates a console. windows is handed to every binding it loads;
// dropped may be nil.
func New(cfg Config, ctrl Controller, windows platform.WindowSystem, dropped DropCounter, out io.Writer) *Console {
	if cfg.Refresh <= 0 {
		cfg.Refresh = defaultRefresh
	}
	if cfg.LoopRateHz == 0 {
		cfg.LoopRateHz = pipeline.DefaultLoopRate
	}
	if out == nil {
		out = os.Stdout
	}
	return &Console{
		cfg:     cfg,
		ctrl:    ctrl,
		windows: windows,
		dropped: dropped,
		out:     out,
		active:  cfg.Active,
		rate:    cfg.LoopRateHz,
	}
}

// Run reads hotkeys from in until quit is pressed or ctx is done. If in is a
// terminal it is switched to raw mode for the duration.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		oldState, err := term.MakeRaw(int(f.Fd()))
		if err != nil {
			log.Warnf("console: failed to set raw mode: %v", err)
		} else {
			defer term.Restore(int(f.Fd()), oldState)
		}
	}

	ticker := time.NewTicker(c.cfg.Refresh)
	defer ticker.Stop()
	defer fmt.Fprint(c.out, "\r\n")

	keys := readKeys(in)
	for {
		select {
		case <-ctx.Done():
			c.trySend(pipeline.Exiting{})
			return ctx.Err()
		case b, ok := <-keys:
			if !ok {
				keys = nil
				continue
			}
			if c.HandleKey(ctx, b) {
				return nil
			}
			c.redraw()
		case <-c.ctrl.Status().Notify():
			c.drainStatus()
		case <-ticker.C:
			c.redraw()
		}
	}
}

func readKeys(in io.Reader) <-chan byte {
	keys := make(chan byte, 16)
	go func() {
		defer close(keys)
		buf := make([]byte, 1)
		for {
			n, err := in.Read(buf)
			if n > 0 {
				keys <- buf[0]
			}
			if err != nil {
				return
			}
		}
	}()
	return keys
}

// HandleKey applies one hotkey and reports whether the console should quit.
func (c *Console) HandleKey(ctx context.Context, b byte) bool {
	switch b {
	case ' ':
		c.active = !c.active
		c.send(ctx, pipeline.ActiveChanged{Active: c.active})
	case '+', '=':
		c.setRate(ctx, int(c.rate)+LoopRateStep)
	case '-', '_':
		c.setRate(ctx, int(c.rate)-LoopRateStep)
	case 'r', 'R':
		c.Reload(ctx)
	case 'q', 'Q', keyCtrlC, keyEsc:
		c.send(ctx, pipeline.Exiting{})
		return true
	}
	return false
}

func (c *Console) setRate(ctx context.Context, hz int) {
	rate := config.ClampLoopRate(hz)
	if rate == c.rate {
		return
	}
	c.rate = rate
	c.send(ctx, pipeline.LoopRateChanged{LoopRateHz: rate})
}

// Reload loads the configured script and hands it to the loop. On failure
// the loop keeps whatever binding it has.
func (c *Console) Reload(ctx context.Context) error {
	path := c.cfg.ScriptPath
	if path == "" {
		c.lastErr = ErrNoScript.Error()
		return ErrNoScript
	}

	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}

	var b *binding.Binding
	err := trace.WithSpan(ctx, trace.SpanScriptLoad, func(ctx context.Context) error {
		var err error
		b, err = binding.LoadFile(path, c.windows)
		if err != nil {
			trace.Logger(ctx).Errorf("reload failed: %v", err)
			return err
		}
		trace.SpanFromContext(ctx).SetAttributes(trace.BindingAttrs(b.Name(), b.ID())...)
		trace.Logger(ctx).Printf("loaded binding %q (%s)", b.Name(), b.ID())
		return nil
	}, trace.ScriptLoadAttrs(filepath.Base(path), size)...)
	if err != nil {
		c.lastErr = err.Error()
		return err
	}

	c.bindingName = b.Name()
	c.lastErr = ""
	c.send(ctx, pipeline.BindingChanged{Binding: b})
	return nil
}

func (c *Console) send(ctx context.Context, msg pipeline.ControlMessage) {
	select {
	case c.ctrl.Control() <- msg:
	case <-ctx.Done():
	}
}

func (c *Console) trySend(msg pipeline.ControlMessage) {
	select {
	case c.ctrl.Control() <- msg:
	default:
		log.Warnf("control channel full, dropped %T", msg)
	}
}

func (c *Console) drainStatus() {
	for _, msg := range c.ctrl.Status().Drain() {
		switch m := msg.(type) {
		case pipeline.Fps:
			c.fps = m.Fps
		case pipeline.ScriptError:
			c.lastErr = m.Err
			c.bindingName = ""
			fmt.Fprintf(c.out, "\r\x1b[Kscript error: %s\r\n", m.Err)
		}
	}
}

func (c *Console) redraw() {
	if res, ok := c.ctrl.Results().TryRecv(); ok {
		c.result = res
	}
	c.drainStatus()
	fmt.Fprintf(c.out, "\r\x1b[K%s", c.StatusLine())
}

// StatusLine renders the current state on one line.
func (c *Console) StatusLine() string {
	var sb strings.Builder

	state := "paused"
	if c.active {
		state = "active"
	}
	fmt.Fprintf(&sb, "[%s] %d Hz fps %d", state, c.rate, c.fps)
	fmt.Fprintf(&sb, " | power %.3f | %s", c.result.Power, formatPitch(c.result))

	if c.dropped != nil {
		fmt.Fprintf(&sb, " | dropped %d", c.dropped.Dropped())
	}

	switch {
	case c.bindingName != "":
		fmt.Fprintf(&sb, " | %s", c.bindingName)
	case c.lastErr != "":
		fmt.Fprintf(&sb, " | error: %s", c.lastErr)
	default:
		sb.WriteString(" | no script")
	}
	return sb.String()
}

func formatPitch(res analysis.Result) string {
	if res.Power <= PitchPowerThreshold || res.Pitch <= 0 {
		return "--"
	}
	if res.Note == nil {
		return fmt.Sprintf("%.2f Hz", res.Pitch)
	}
	tune := ""
	if res.Note.InTune {
		tune = " in tune"
	}
	return fmt.Sprintf("%s%d %+.1f cents%s (%.2f Hz)",
		res.Note.Name, res.Note.Octave, res.Note.CentsOffset, tune, res.Pitch)
}

// Active reports whether script processing is enabled.
func (c *Console) Active() bool { return c.active }

// LoopRate returns the loop rate last requested.
func (c *Console) LoopRate() uint32 { return c.rate }
