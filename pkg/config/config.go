// Package config loads musicbind settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/realtime-ai/musicbind/pkg/analysis"
	"github.com/realtime-ai/musicbind/pkg/audio"
	"github.com/realtime-ai/musicbind/pkg/pipeline"
)

// Loop rate bounds accepted from the environment and the console.
const (
	MinLoopRate = 30
	MaxLoopRate = 255
)

// Config holds every runtime setting.
type Config struct {
	LoopRateHz    uint32
	WindowMs      int
	PowerFraction float64
	MinFrequency  float64
	MaxFrequency  float64
	InTuneCents   float64
	RingMs        int
	// SampleFormat is the capture format, "f32" or "s16".
	SampleFormat string

	// ScriptPath is the binding loaded at startup, empty for none.
	ScriptPath string
	// Active starts with script processing enabled.
	Active bool
	// DryRun logs key events instead of sending them.
	DryRun bool
	// Display is the X11 display name.
	Display string

	LogLevel      string
	TraceExporter string
}

// Load reads .env if present, then the environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("failed to load .env: %v", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the environment only.
func FromEnv() *Config {
	return &Config{
		LoopRateHz:    uint32(getEnvInt("MUSICBIND_LOOP_RATE", pipeline.DefaultLoopRate)),
		WindowMs:      getEnvInt("MUSICBIND_WINDOW_MS", int(analysis.DefaultWindowDuration/time.Millisecond)),
		PowerFraction: getEnvFloat("MUSICBIND_POWER_FRACTION", analysis.DefaultPowerFraction),
		MinFrequency:  getEnvFloat("MUSICBIND_MIN_FREQ", analysis.DefaultMinFrequency),
		MaxFrequency:  getEnvFloat("MUSICBIND_MAX_FREQ", analysis.DefaultMaxFrequency),
		InTuneCents:   getEnvFloat("MUSICBIND_IN_TUNE_CENTS", analysis.DefaultInTuneCents),
		RingMs:        getEnvInt("MUSICBIND_RING_MS", 100),
		SampleFormat:  getEnv("MUSICBIND_SAMPLE_FORMAT", "f32"),
		ScriptPath:    getEnv("MUSICBIND_SCRIPT", ""),
		Active:        getEnvBool("MUSICBIND_ACTIVE", true),
		DryRun:        getEnvBool("MUSICBIND_DRY_RUN", false),
		Display:       getEnv("MUSICBIND_DISPLAY", os.Getenv("DISPLAY")),
		LogLevel:      getEnv("MUSICBIND_LOG_LEVEL", "info"),
		TraceExporter: getEnv("TRACE_EXPORTER", "none"),
	}
}

// Validate checks that every value is usable.
func (c *Config) Validate() error {
	if c.LoopRateHz < MinLoopRate || c.LoopRateHz > MaxLoopRate {
		return fmt.Errorf("invalid loop rate %d Hz, should be in [%d, %d]", c.LoopRateHz, MinLoopRate, MaxLoopRate)
	}
	if c.WindowMs <= 0 {
		return fmt.Errorf("invalid window length %d ms", c.WindowMs)
	}
	if c.RingMs <= 0 {
		return fmt.Errorf("invalid ring length %d ms", c.RingMs)
	}
	if c.InTuneCents < 0 || c.InTuneCents > 50 {
		return fmt.Errorf("invalid in-tune tolerance %v cents, should be in [0, 50]", c.InTuneCents)
	}
	if _, err := audio.ParseSampleFormat(c.SampleFormat); err != nil {
		return err
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	return c.Analysis(analysis.DefaultConfig(1)).Validate()
}

// Analysis applies the analysis settings on top of base.
func (c *Config) Analysis(base analysis.Config) analysis.Config {
	base.WindowDuration = time.Duration(c.WindowMs) * time.Millisecond
	base.PowerFraction = c.PowerFraction
	base.MinFrequency = c.MinFrequency
	base.MaxFrequency = c.MaxFrequency
	base.InTuneCents = c.InTuneCents
	return base
}

// RingDuration returns how much audio the capture ring holds.
func (c *Config) RingDuration() time.Duration {
	return time.Duration(c.RingMs) * time.Millisecond
}

// TraceTicks reports whether loop ticks should be traced.
func (c *Config) TraceTicks() bool {
	return c.TraceExporter != "" && c.TraceExporter != "none"
}

// ApplyLogLevel sets the logrus level, keeping the current one if LogLevel
// does not parse.
func (c *Config) ApplyLogLevel() {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		log.Warnf("unknown log level %q, keeping %s", c.LogLevel, log.GetLevel())
		return
	}
	log.SetLevel(level)
}

// ClampLoopRate limits hz to the supported loop rate range.
func ClampLoopRate(hz int) uint32 {
	if hz < MinLoopRate {
		return MinLoopRate
	}
	if hz > MaxLoopRate {
		return MaxLoopRate
	}
	return uint32(hz)
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Warnf("ignoring %s=%q: not an integer", key, value)
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		log.Warnf("ignoring %s=%q: not a number", key, value)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "":
		return defaultValue
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
