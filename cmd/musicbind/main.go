package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/realtime-ai/musicbind/pkg/analysis"
	"github.com/realtime-ai/musicbind/pkg/audio"
	"github.com/realtime-ai/musicbind/pkg/config"
	"github.com/realtime-ai/musicbind/pkg/console"
	"github.com/realtime-ai/musicbind/pkg/pipeline"
	"github.com/realtime-ai/musicbind/pkg/platform"
	"github.com/realtime-ai/musicbind/pkg/platform/x11"
	"github.com/realtime-ai/musicbind/pkg/trace"
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [script.lua]\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	cfg := config.Load()

	dryRun := flag.Bool("dry-run", cfg.DryRun, "log key events instead of sending them")
	rate := flag.Uint("rate", uint(cfg.LoopRateHz), "loop rate in Hz")
	active := flag.Bool("active", cfg.Active, "start with script processing enabled")
	format := flag.String("format", cfg.SampleFormat, "capture sample format, f32 or s16")
	flag.Usage = usage
	flag.Parse()

	cfg.DryRun = *dryRun
	cfg.Active = *active
	cfg.SampleFormat = *format
	cfg.LoopRateHz = uint32(*rate)
	if flag.NArg() > 0 {
		cfg.ScriptPath = flag.Arg(0)
	}

	cfg.ApplyLogLevel()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := trace.Initialize(ctx, trace.DefaultConfig()); err != nil {
		log.Warnf("tracing disabled: %v", err)
	}
	defer trace.Shutdown(context.Background())

	capCfg := audio.DefaultCaptureConfig()
	capCfg.RingDuration = cfg.RingDuration()
	capCfg.Format, _ = audio.ParseSampleFormat(cfg.SampleFormat)
	capture, err := audio.NewCapture(capCfg)
	if err != nil {
		log.Fatalf("failed to open microphone: %v", err)
	}
	defer capture.Close()

	engine, err := analysis.NewEngine(cfg.Analysis(analysis.DefaultConfig(float64(capture.SampleRate()))), capture.Ring())
	if err != nil {
		log.Fatalf("failed to create analysis engine: %v", err)
	}

	windows, keys, closePlatform := setupPlatform(cfg)
	defer closePlatform()

	loop := pipeline.NewLoop(pipeline.LoopConfig{
		LoopRateHz: cfg.LoopRateHz,
		Active:     cfg.Active,
		TraceTicks: cfg.TraceTicks(),
	}, engine, keys)

	con := console.New(console.Config{
		ScriptPath: cfg.ScriptPath,
		LoopRateHz: cfg.LoopRateHz,
		Active:     cfg.Active,
	}, loop, windows, capture.Ring(), os.Stdout)

	if cfg.ScriptPath != "" {
		if err := con.Reload(ctx); err != nil {
			log.Errorf("starting without a binding: %v", err)
		}
	}

	if err := capture.Start(); err != nil {
		log.Fatalf("failed to start microphone: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- loop.Run(ctx)
	}()

	if err := con.Run(ctx, os.Stdin); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("console: %v", err)
	}
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("control loop: %v", err)
	}
	log.Printf("musicbind stopped")
}

// setupPlatform connects to the X server. Without one, focus is never
// reported and key events are only logged.
func setupPlatform(cfg *config.Config) (platform.WindowSystem, platform.KeySink, func()) {
	if cfg.Display == "" {
		log.Warnf("no X display configured, running dry")
		return platform.NoWindow{}, platform.NewLogSink(), func() {}
	}

	display, err := x11.Connect(cfg.Display)
	if err != nil {
		log.Warnf("failed to connect to X display %q, running dry: %v", cfg.Display, err)
		return platform.NoWindow{}, platform.NewLogSink(), func() {}
	}

	var keys platform.KeySink = display
	if cfg.DryRun {
		log.Printf("dry run: key events are logged, not sent")
		keys = platform.NewLogSink()
	}
	return display, keys, display.Close
}
