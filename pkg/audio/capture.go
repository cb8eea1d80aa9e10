package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gen2brain/malgo"
	log "github.com/sirupsen/logrus"
)

const (
	// CaptureChannels is fixed to mono; analysis only looks at one stream.
	CaptureChannels = 1

	// DefaultRingDuration is how much audio the ring can hold before new
	// samples start being dropped.
	DefaultRingDuration = 100 * time.Millisecond

	fallbackSampleRate = 48000
)

// ErrDeviceAcquisition is returned when no default input device can be opened.
// It is not recoverable.
var ErrDeviceAcquisition = errors.New("audio input device unavailable")

// CaptureConfig configures the microphone capture device.
type CaptureConfig struct {
	// SampleRate requested from the device, 0 uses the device default.
	SampleRate uint32
	// PeriodMs is the callback period in milliseconds.
	PeriodMs uint32
	// RingDuration sizes the ring buffer relative to the negotiated sample rate.
	RingDuration time.Duration
	// Format is the sample format delivered to the callback, FormatF32 or
	// FormatS16. The device converts to it when its native format differs.
	Format malgo.FormatType
}

// DefaultCaptureConfig returns the default capture configuration.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		SampleRate:   0,
		PeriodMs:     10,
		RingDuration: DefaultRingDuration,
		Format:       malgo.FormatF32,
	}
}

// ParseSampleFormat maps "f32" or "s16" to a capture format.
func ParseSampleFormat(name string) (malgo.FormatType, error) {
	switch name {
	case "f32", "":
		return malgo.FormatF32, nil
	case "s16":
		return malgo.FormatS16, nil
	default:
		return malgo.FormatUnknown, fmt.Errorf("unsupported sample format %q, want f32 or s16", name)
	}
}

type decodeFunc func(dst []float64, data []byte) int

// decoderFor returns the decoder for format and its sample size in bytes.
func decoderFor(format malgo.FormatType) (decodeFunc, int, error) {
	switch format {
	case malgo.FormatF32:
		return DecodeF32, 4, nil
	case malgo.FormatS16:
		return DecodeS16, 2, nil
	default:
		return nil, 0, fmt.Errorf("unsupported capture format %d", format)
	}
}

// Capture feeds the default input device into a SampleRing.
type Capture struct {
	audioContext  *malgo.AllocatedContext
	captureDevice *malgo.Device

	ring        *SampleRing
	scratch     []float64
	sampleRate  uint32
	decode      decodeFunc
	sampleBytes int
}

// NewCapture opens the default capture device. The device is not started
// until Start is called.
func NewCapture(cfg CaptureConfig) (*Capture, error) {
	if cfg.Format == malgo.FormatUnknown {
		cfg.Format = malgo.FormatF32
	}
	decode, sampleBytes, err := decoderFor(cfg.Format)
	if err != nil {
		return nil, err
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to initialize context: %w", ErrDeviceAcquisition, err)
	}

	c := &Capture{audioContext: ctx, decode: decode, sampleBytes: sampleBytes}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.PeriodSizeInMilliseconds = cfg.PeriodMs
	deviceConfig.Capture.Format = cfg.Format
	deviceConfig.Capture.Channels = CaptureChannels
	deviceConfig.SampleRate = cfg.SampleRate
	deviceConfig.Alsa.NoMMap = 1

	c.captureDevice, err = malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: c.onData,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: failed to initialize capture device: %w", ErrDeviceAcquisition, err)
	}

	c.sampleRate = c.captureDevice.SampleRate()
	if c.sampleRate == 0 {
		c.sampleRate = fallbackSampleRate
	}

	ringDuration := cfg.RingDuration
	if ringDuration <= 0 {
		ringDuration = DefaultRingDuration
	}
	c.ring = NewSampleRing(int(float64(c.sampleRate) * ringDuration.Seconds()))
	c.scratch = make([]float64, c.ring.Capacity())

	log.Printf("capture device ready: %d Hz %s, ring capacity %d samples", c.sampleRate, formatName(cfg.Format), c.ring.Capacity())
	return c, nil
}

// onData runs on the audio thread. It must not block, allocate or log.
func (c *Capture) onData(_, inputSamples []byte, _ uint32) {
	for len(inputSamples) >= c.sampleBytes {
		n := c.decode(c.scratch, inputSamples)
		c.ring.PushSlice(c.scratch[:n])
		inputSamples = inputSamples[n*c.sampleBytes:]
	}
}

// Start begins capturing.
func (c *Capture) Start() error {
	if err := c.captureDevice.Start(); err != nil {
		return fmt.Errorf("%w: failed to start capture device: %w", ErrDeviceAcquisition, err)
	}
	return nil
}

// Ring returns the ring the capture callback writes into.
func (c *Capture) Ring() *SampleRing {
	return c.ring
}

// SampleRate returns the negotiated device sample rate in Hz.
func (c *Capture) SampleRate() uint32 {
	return c.sampleRate
}

// Close stops the device and releases the audio context.
func (c *Capture) Close() error {
	if c.captureDevice != nil {
		c.captureDevice.Stop()
		c.captureDevice.Uninit()
		c.captureDevice = nil
	}
	if c.audioContext != nil {
		if err := c.audioContext.Uninit(); err != nil {
			log.Warnf("uninit audio context: %v", err)
		}
		c.audioContext.Free()
		c.audioContext = nil
	}
	return nil
}

// DecodeF32 converts little-endian float32 PCM into dst and returns the
// number of samples written.
func DecodeF32(dst []float64, data []byte) int {
	n := 0
	for i := 0; i+4 <= len(data) && n < len(dst); i += 4 {
		dst[n] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i:])))
		n++
	}
	return n
}

// DecodeS16 converts little-endian signed 16-bit PCM into dst, scaled to
// [-1, 1), and returns the number of samples written.
func DecodeS16(dst []float64, data []byte) int {
	n := 0
	for i := 0; i+2 <= len(data) && n < len(dst); i += 2 {
		dst[n] = float64(int16(binary.LittleEndian.Uint16(data[i:]))) / 32768
		n++
	}
	return n
}

func formatName(format malgo.FormatType) string {
	if format == malgo.FormatS16 {
		return "s16"
	}
	return "f32"
}
