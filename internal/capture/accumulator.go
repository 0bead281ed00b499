package capture

import "sync"

// Accumulator buffers every emitted capture segment in order. Nothing is
// ever dropped except by an explicit TrimBefore, so chunk slicing can always
// reach back for overlap. Indexes are absolute positions since the start of
// the session and stay valid across trims.
type Accumulator struct {
	mu       sync.Mutex
	segments []Segment
	base     int
}

func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Append records one emitted segment.
func (a *Accumulator) Append(seg Segment) {
	a.mu.Lock()
	a.segments = append(a.segments, seg)
	a.mu.Unlock()
}

// Len returns the total number of segments appended since the start of the
// session, including any that have been trimmed.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.base + len(a.segments)
}

// Slice returns copies of the segments from absolute index from to the
// current end. Requests reaching into trimmed territory are clamped.
func (a *Accumulator) Slice(from int) []Segment {
	a.mu.Lock()
	defer a.mu.Unlock()

	idx := from - a.base
	if idx < 0 {
		idx = 0
	}
	if idx >= len(a.segments) {
		return nil
	}
	out := make([]Segment, len(a.segments)-idx)
	copy(out, a.segments[idx:])
	return out
}

// TrimBefore releases segments before the given absolute index. Callers only
// trim positions already covered by a scheduled chunk's overlap reach.
func (a *Accumulator) TrimBefore(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	idx := n - a.base
	if idx <= 0 {
		return
	}
	if idx > len(a.segments) {
		idx = len(a.segments)
	}
	a.segments = append([]Segment(nil), a.segments[idx:]...)
	a.base += idx
}
