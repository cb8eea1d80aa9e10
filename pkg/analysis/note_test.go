package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoteFromFrequency(t *testing.T) {
	tests := []struct {
		freq   float64
		name   string
		octave int
		target float64
	}{
		{440, "A", 4, 440},
		{261.63, "C", 4, 261.6256},
		{277.18, "C#", 4, 277.1826},
		{82.41, "E", 2, 82.4069},
		{880, "A", 5, 880},
		{32.70, "C", 1, 32.7032},
		{493.88, "B", 4, 493.8833},
	}

	for _, tt := range tests {
		note, ok := NoteFromFrequency(tt.freq, DefaultInTuneCents)
		require.True(t, ok, "freq %v", tt.freq)
		assert.Equal(t, tt.name, note.Name, "freq %v", tt.freq)
		assert.Equal(t, tt.octave, note.Octave, "freq %v", tt.freq)
		assert.InDelta(t, tt.target, note.TargetFrequency, 0.01, "freq %v", tt.freq)
		assert.Equal(t, tt.freq, note.ActualFrequency)
		assert.True(t, note.InTune, "freq %v", tt.freq)
	}
}

func TestNoteFromFrequency_CentsOffset(t *testing.T) {
	// 20 cents sharp of A4.
	freq := 440 * math.Pow(2, 20.0/1200)
	note, ok := NoteFromFrequency(freq, DefaultInTuneCents)
	require.True(t, ok)
	assert.Equal(t, "A", note.Name)
	assert.InDelta(t, 20, note.CentsOffset, 1e-9)
	assert.False(t, note.InTune)

	// 45 cents flat of A4 is still A.
	note, ok = NoteFromFrequency(440*math.Pow(2, -45.0/1200), DefaultInTuneCents)
	require.True(t, ok)
	assert.Equal(t, "A", note.Name)
	assert.InDelta(t, -45, note.CentsOffset, 1e-9)
}

func TestNoteFromFrequency_Invalid(t *testing.T) {
	for _, freq := range []float64{0, -10, math.NaN(), math.Inf(1)} {
		note, ok := NoteFromFrequency(freq, DefaultInTuneCents)
		assert.False(t, ok)
		assert.Nil(t, note)
	}
}
