package store

import "sync"

// Window is a bounded FIFO of samples. Once full, each Write evicts the
// oldest sample.
type Window struct {
	buf   []float64
	start int
	count int
	mu    sync.RWMutex
}

// NewWindow creates an empty window holding at most capacity samples
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = 1
	}
	return &Window{buf: make([]float64, capacity)}
}

// Write appends v, dropping the oldest sample when the window is full
func (w *Window) Write(v float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.count < len(w.buf) {
		w.buf[(w.start+w.count)%len(w.buf)] = v
		w.count++
		return
	}
	w.buf[w.start] = v
	w.start = (w.start + 1) % len(w.buf)
}

// ReadSnapshot returns the retained samples, oldest first
func (w *Window) ReadSnapshot() []float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]float64, w.count)
	for i := range out {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}

// Len returns the number of retained samples
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.count
}

// Cap returns the maximum number of retained samples
func (w *Window) Cap() int {
	return len(w.buf)
}

// AppendJSON appends the window as a JSON array with two decimal places
func (w *Window) AppendJSON(dst []byte) []byte {
	return appendFloats(dst, w.ReadSnapshot())
}

var _ Reader = (*Window)(nil)
