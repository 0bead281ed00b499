package capture

import (
	"sync"
	"time"
)

// AudioChunk is a bounded slice of captured audio, including a trailing
// overlap from the previous chunk boundary, submitted as one transcription
// unit. Immutable once built.
type AudioChunk struct {
	Sequence       int
	Payload        []byte
	CapturedFrom   time.Time
	CapturedTo     time.Time
	HasOverlap     bool
	OverlapSeconds float64
}

// OverlapPolicy controls how much already-processed audio each chunk reaches
// back for. When Fixed is set it wins over Fraction (the longform preset
// uses a fixed 10s tail; the standard preset re-sends 10% of the elapsed
// segment count).
type OverlapPolicy struct {
	Fraction float64
	Fixed    time.Duration
}

// Scheduler slices the accumulator into transcribable chunks. The watermark
// always advances to the absolute segment count, never resets, so overlap is
// computed relative to true elapsed audio.
type Scheduler struct {
	acc      *Accumulator
	policy   OverlapPolicy
	minBytes int

	mu        sync.Mutex
	watermark int
	sequence  int
}

func NewScheduler(acc *Accumulator, policy OverlapPolicy, minBytes int) *Scheduler {
	return &Scheduler{acc: acc, policy: policy, minBytes: minBytes}
}

// NextChunk builds the next chunk from everything past the watermark plus
// the trailing overlap. It returns false when no new audio has accumulated
// or when the new audio is below the minimum byte threshold (treated as
// silence; the watermark still advances so the skipped span is not
// re-offered, but no sequence number is spent on it).
func (s *Scheduler) NextChunk() (AudioChunk, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := s.acc.Len()
	if total <= s.watermark {
		return AudioChunk{}, false
	}

	start := s.watermark - s.overlapCount(total)
	if start < 0 {
		start = 0
	}

	segments := s.acc.Slice(start)
	if len(segments) == 0 {
		return AudioChunk{}, false
	}

	newBytes := 0
	for i := s.watermark - start; i >= 0 && i < len(segments); i++ {
		newBytes += len(segments[i].Data)
	}
	if newBytes < s.minBytes {
		s.watermark = total
		return AudioChunk{}, false
	}

	chunk := s.build(segments, start, s.watermark)
	s.watermark = total
	s.sequence++
	return chunk, true
}

// FinalChunk flushes everything past the watermark with no overlap, for the
// stop path. Unlike NextChunk it ignores the minimum byte threshold: the
// tail of a recording is transcribed even when it is tiny.
func (s *Scheduler) FinalChunk() (AudioChunk, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := s.acc.Len()
	if total <= s.watermark {
		return AudioChunk{}, false
	}

	segments := s.acc.Slice(s.watermark)
	if len(segments) == 0 {
		return AudioChunk{}, false
	}

	chunk := s.build(segments, s.watermark, s.watermark)
	s.watermark = total
	s.sequence++
	return chunk, true
}

// Watermark returns the absolute segment position up to which chunks have
// been scheduled.
func (s *Scheduler) Watermark() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watermark
}

func (s *Scheduler) overlapCount(total int) int {
	if s.watermark == 0 {
		return 0
	}
	if s.policy.Fixed > 0 {
		// Walk back from the watermark until the fixed trailing window is
		// covered.
		segments := s.acc.Slice(0)
		if s.watermark > len(segments) {
			return 0
		}
		boundary := segments[s.watermark-1].CapturedAt.Add(-s.policy.Fixed)
		count := 0
		for i := s.watermark - 1; i >= 0; i-- {
			if segments[i].CapturedAt.Before(boundary) {
				break
			}
			count++
		}
		return count
	}
	return int(float64(total) * s.policy.Fraction)
}

func (s *Scheduler) build(segments []Segment, start, watermark int) AudioChunk {
	size := 0
	for _, seg := range segments {
		size += len(seg.Data)
	}
	payload := make([]byte, 0, size)
	for _, seg := range segments {
		payload = append(payload, seg.Data...)
	}

	chunk := AudioChunk{
		Sequence:     s.sequence,
		Payload:      payload,
		CapturedFrom: segments[0].CapturedAt,
		CapturedTo:   segments[len(segments)-1].CapturedAt,
	}

	if overlap := watermark - start; overlap > 0 && overlap < len(segments) {
		chunk.HasOverlap = true
		chunk.OverlapSeconds = segments[overlap].CapturedAt.Sub(segments[0].CapturedAt).Seconds()
	}
	return chunk
}
