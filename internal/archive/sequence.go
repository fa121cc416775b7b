package archive

import "sync/atomic"

// Sequence is a monotonic counter stamped on every archived event.
//
// Two events logged within the same 10ms tick share an epoch timestamp in
// the text log; seq keeps their order explicit.
type Sequence struct {
	seq atomic.Int64
}

// NewSequenceAt creates a sequence whose next value is start+1.
func NewSequenceAt(start int64) *Sequence {
	s := &Sequence{}
	s.seq.Store(start)
	return s
}

// Next returns the next sequence number.
func (s *Sequence) Next() int64 {
	return s.seq.Add(1)
}

// Current returns the last issued sequence number.
func (s *Sequence) Current() int64 {
	return s.seq.Load()
}
