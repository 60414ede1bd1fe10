package store

import "sync"

// Snapshot holds the channel values of the most recently accepted packet.
// Every Write replaces all values at once.
type Snapshot struct {
	values []int32
	mu     sync.RWMutex
}

// NewSnapshot creates a zeroed snapshot of the given channel count
func NewSnapshot(channels int) *Snapshot {
	if channels <= 0 {
		channels = 1
	}
	return &Snapshot{values: make([]int32, channels)}
}

// Write replaces the snapshot with values. Callers are expected to pass
// exactly Cap() values; extra values are ignored.
func (s *Snapshot) Write(values []int32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy(s.values, values)
}

// ReadSnapshot returns a copy of the current values
func (s *Snapshot) ReadSnapshot() []int32 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]int32, len(s.values))
	copy(out, s.values)
	return out
}

// Len returns the number of channels
func (s *Snapshot) Len() int {
	return len(s.values)
}

// Cap returns the number of channels
func (s *Snapshot) Cap() int {
	return len(s.values)
}

// AppendJSON appends the snapshot as a JSON array of integers
func (s *Snapshot) AppendJSON(dst []byte) []byte {
	return appendInt32s(dst, s.ReadSnapshot())
}

var _ Reader = (*Snapshot)(nil)
