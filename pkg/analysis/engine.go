// Package analysis turns the captured sample stream into per-tick power,
// pitch and note features.
package analysis

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Default analysis parameters.
const (
	DefaultWindowDuration = 100 * time.Millisecond
	DefaultPowerFraction  = 1.0 / 8
	DefaultMinFrequency   = 40.0
	DefaultMaxFrequency   = 4200.0
	DefaultInTuneCents    = 5.0
	DefaultMinMagnitude   = 1e-3
)

// Drainer is the consumer side of the sample ring.
type Drainer interface {
	DrainInto(dst []float64) int
}

// Result is the immutable snapshot produced once per tick.
type Result struct {
	// Note is nil when no stable pitch was detected.
	Note  *NoteInfo
	Pitch float64
	Power float64
}

// Config holds the analysis parameters.
type Config struct {
	SampleRate     float64
	WindowDuration time.Duration
	// PowerFraction is the leading share of the window, oldest samples
	// first, used for RMS power.
	PowerFraction float64
	MinFrequency  float64
	MaxFrequency  float64
	InTuneCents   float64
	MinMagnitude  float64
}

// DefaultConfig returns the default configuration for sampleRate.
func DefaultConfig(sampleRate float64) Config {
	return Config{
		SampleRate:     sampleRate,
		WindowDuration: DefaultWindowDuration,
		PowerFraction:  DefaultPowerFraction,
		MinFrequency:   DefaultMinFrequency,
		MaxFrequency:   DefaultMaxFrequency,
		InTuneCents:    DefaultInTuneCents,
		MinMagnitude:   DefaultMinMagnitude,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid SampleRate: %v", c.SampleRate)
	}
	if c.WindowDuration <= 0 {
		return fmt.Errorf("invalid WindowDuration: %v", c.WindowDuration)
	}
	if c.PowerFraction <= 0 || c.PowerFraction > 1 {
		return fmt.Errorf("invalid PowerFraction: %v, should be in (0, 1]", c.PowerFraction)
	}
	if c.MaxFrequency > 0 && c.MaxFrequency <= c.MinFrequency {
		return errors.New("invalid frequency range: MaxFrequency must exceed MinFrequency")
	}
	return nil
}

// Engine keeps the rolling window and computes one Result per tick.
// It is not safe for concurrent use; the control loop owns it.
type Engine struct {
	cfg      Config
	source   Drainer
	window   *Window
	scratch  []float64
	powerLen int
	detector PitchDetector
}

// NewEngine creates an engine draining from source.
func NewEngine(cfg Config, source Drainer) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n := int(math.Round(cfg.SampleRate * cfg.WindowDuration.Seconds()))
	if n < 1 {
		n = 1
	}
	powerLen := int(float64(n) * cfg.PowerFraction)
	if powerLen < 1 {
		powerLen = 1
	}

	return &Engine{
		cfg:      cfg,
		source:   source,
		window:   NewWindow(n),
		scratch:  make([]float64, n),
		powerLen: powerLen,
		detector: NewHannFFTDetector(cfg.MinFrequency, cfg.MaxFrequency, cfg.MinMagnitude),
	}, nil
}

// SetPitchDetector replaces the default Hann/FFT detector.
func (e *Engine) SetPitchDetector(d PitchDetector) {
	e.detector = d
}

// Window exposes the rolling window.
func (e *Engine) Window() *Window {
	return e.window
}

// IngestTick drains the ring into the window and analyzes the new snapshot.
// Power, pitch and note all read the same window contents.
func (e *Engine) IngestTick() Result {
	k := e.source.DrainInto(e.scratch)
	e.window.Append(e.scratch[:k])

	samples := e.window.Samples()
	res := Result{
		Power: rms(samples[:e.powerLen]),
	}

	if pitch, ok := e.detector.DetectPitch(samples, e.cfg.SampleRate); ok {
		res.Pitch = pitch
		if note, ok := NoteFromFrequency(pitch, e.cfg.InTuneCents); ok {
			res.Note = note
		}
	}
	return res
}
