package analysis

import (
	"fmt"
	"math"
)

const (
	// ReferenceA4 is the tuning reference in Hz.
	ReferenceA4 = 440.0

	midiA4 = 69
)

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteInfo describes the equal-tempered note nearest to a detected pitch.
type NoteInfo struct {
	// Name is the pitch class, e.g. "A" or "C#".
	Name string
	// Octave in scientific pitch notation (A4 = 440 Hz).
	Octave int
	// TargetFrequency is the exact frequency of the note in Hz.
	TargetFrequency float64
	// ActualFrequency is the detected frequency in Hz.
	ActualFrequency float64
	// CentsOffset is how far ActualFrequency is from TargetFrequency.
	CentsOffset float64
	// InTune reports whether |CentsOffset| is within the in-tune tolerance.
	InTune bool
}

func (n NoteInfo) String() string {
	return fmt.Sprintf("%s%d (%+.1f cents)", n.Name, n.Octave, n.CentsOffset)
}

// NoteFromFrequency maps freq to the nearest note. It returns false for
// non-positive or non-finite frequencies.
func NoteFromFrequency(freq, inTuneCents float64) (*NoteInfo, bool) {
	if freq <= 0 || math.IsNaN(freq) || math.IsInf(freq, 0) {
		return nil, false
	}

	midi := int(math.Round(midiA4 + 12*math.Log2(freq/ReferenceA4)))
	target := ReferenceA4 * math.Pow(2, float64(midi-midiA4)/12)
	cents := 1200 * math.Log2(freq/target)

	pitchClass := ((midi % 12) + 12) % 12
	octave := int(math.Floor(float64(midi)/12)) - 1

	return &NoteInfo{
		Name:            noteNames[pitchClass],
		Octave:          octave,
		TargetFrequency: target,
		ActualFrequency: freq,
		CentsOffset:     cents,
		InTune:          math.Abs(cents) <= inTuneCents,
	}, true
}
