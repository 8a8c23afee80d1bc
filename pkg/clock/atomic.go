package clock

import "sync/atomic"

// Sequence hands out monotonically increasing numbers starting after init.
// Zero is never returned by Next when init is zero, so it can serve as a
// "nothing yet" marker.
type Sequence struct {
	atomic.Uint64
}

func NewSequence(init uint64) *Sequence {
	var s Sequence
	s.Set(init)
	return &s
}

// Val is the last number handed out.
func (s *Sequence) Val() uint64 {
	return s.Load()
}

func (s *Sequence) Next() uint64 {
	return s.Add(1)
}

func (s *Sequence) Set(v uint64) {
	s.Store(v)
}

// Issued reports whether v was already handed out.
func (s *Sequence) Issued(v uint64) bool {
	return v != 0 && v <= s.Load()
}
