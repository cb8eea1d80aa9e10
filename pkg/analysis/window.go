package analysis

// Window is a fixed-length rolling buffer of the most recent samples.
// It starts zero-filled and its length never changes.
type Window struct {
	samples []float64
}

// NewWindow returns a zero-filled window of n samples (at least one).
func NewWindow(n int) *Window {
	if n < 1 {
		n = 1
	}
	return &Window{samples: make([]float64, n)}
}

// Append shifts the window left by len(drained) and appends drained at the
// tail. If drained is longer than the window only its last Len() samples are
// kept.
func (w *Window) Append(drained []float64) {
	n, k := len(w.samples), len(drained)
	if k == 0 {
		return
	}
	if k >= n {
		copy(w.samples, drained[k-n:])
		return
	}
	copy(w.samples, w.samples[k:])
	copy(w.samples[n-k:], drained)
}

// Samples returns the current window, oldest sample first.
// The slice is owned by the window and is only valid until the next Append.
func (w *Window) Samples() []float64 {
	return w.samples
}

// Len returns the window length in samples.
func (w *Window) Len() int {
	return len(w.samples)
}
