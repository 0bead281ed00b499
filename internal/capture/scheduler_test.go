package capture

import (
	"testing"
	"time"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func appendSegments(acc *Accumulator, start, count, size int) {
	for i := 0; i < count; i++ {
		acc.Append(Segment{
			Data:       make([]byte, size),
			CapturedAt: epoch.Add(time.Duration(start+i) * time.Second),
		})
	}
}

func TestSchedulerFirstChunkHasNoOverlap(t *testing.T) {
	acc := NewAccumulator()
	sched := NewScheduler(acc, OverlapPolicy{Fraction: 0.10}, 0)
	appendSegments(acc, 0, 10, 100)

	chunk, ok := sched.NextChunk()
	if !ok {
		t.Fatal("expected a chunk")
	}
	if chunk.Sequence != 0 {
		t.Fatalf("expected sequence 0, got %d", chunk.Sequence)
	}
	if chunk.HasOverlap {
		t.Fatal("first chunk must not reach back for overlap")
	}
	if len(chunk.Payload) != 1000 {
		t.Fatalf("expected 1000 payload bytes, got %d", len(chunk.Payload))
	}
	if sched.Watermark() != 10 {
		t.Fatalf("expected watermark 10, got %d", sched.Watermark())
	}
}

func TestSchedulerFractionOverlap(t *testing.T) {
	acc := NewAccumulator()
	sched := NewScheduler(acc, OverlapPolicy{Fraction: 0.10}, 0)
	appendSegments(acc, 0, 10, 100)
	if _, ok := sched.NextChunk(); !ok {
		t.Fatal("expected first chunk")
	}

	appendSegments(acc, 10, 10, 100)
	chunk, ok := sched.NextChunk()
	if !ok {
		t.Fatal("expected second chunk")
	}
	if chunk.Sequence != 1 {
		t.Fatalf("expected sequence 1, got %d", chunk.Sequence)
	}
	if !chunk.HasOverlap {
		t.Fatal("expected trailing overlap on second chunk")
	}
	// 10% of 20 total segments = 2 re-sent segments, so the chunk spans
	// segments 8..19 and the new audio starts 2 seconds in.
	if len(chunk.Payload) != 1200 {
		t.Fatalf("expected 1200 payload bytes, got %d", len(chunk.Payload))
	}
	if chunk.OverlapSeconds != 2 {
		t.Fatalf("expected 2s overlap, got %v", chunk.OverlapSeconds)
	}
	if sched.Watermark() != 20 {
		t.Fatalf("expected watermark 20, got %d", sched.Watermark())
	}
}

func TestSchedulerFixedOverlap(t *testing.T) {
	acc := NewAccumulator()
	sched := NewScheduler(acc, OverlapPolicy{Fixed: 3 * time.Second}, 0)
	appendSegments(acc, 0, 10, 100)
	if _, ok := sched.NextChunk(); !ok {
		t.Fatal("expected first chunk")
	}

	appendSegments(acc, 10, 10, 100)
	chunk, ok := sched.NextChunk()
	if !ok {
		t.Fatal("expected second chunk")
	}
	if !chunk.HasOverlap {
		t.Fatal("expected fixed trailing overlap")
	}
	// Segments are 1s apart; a 3s fixed tail reaches back 4 segments
	// (timestamps 6..9), so the chunk spans segments 6..19.
	if len(chunk.Payload) != 1400 {
		t.Fatalf("expected 1400 payload bytes, got %d", len(chunk.Payload))
	}
	if chunk.OverlapSeconds != 4 {
		t.Fatalf("expected 4s overlap span, got %v", chunk.OverlapSeconds)
	}
}

func TestSchedulerNoNewAudio(t *testing.T) {
	acc := NewAccumulator()
	sched := NewScheduler(acc, OverlapPolicy{Fraction: 0.10}, 0)

	if _, ok := sched.NextChunk(); ok {
		t.Fatal("expected no chunk from an empty accumulator")
	}

	appendSegments(acc, 0, 5, 100)
	if _, ok := sched.NextChunk(); !ok {
		t.Fatal("expected a chunk")
	}
	if _, ok := sched.NextChunk(); ok {
		t.Fatal("expected no chunk without new audio")
	}
}

func TestSchedulerMinBytesSkipAdvancesWatermarkOnly(t *testing.T) {
	acc := NewAccumulator()
	sched := NewScheduler(acc, OverlapPolicy{Fraction: 0.10}, 500)
	appendSegments(acc, 0, 10, 100)
	if _, ok := sched.NextChunk(); !ok {
		t.Fatal("expected first chunk")
	}

	// One tiny segment: below the threshold, treated as silence.
	appendSegments(acc, 10, 1, 10)
	if _, ok := sched.NextChunk(); ok {
		t.Fatal("expected below-threshold audio to be skipped")
	}
	if sched.Watermark() != 11 {
		t.Fatalf("watermark must advance past skipped audio, got %d", sched.Watermark())
	}

	// The skipped window did not spend a sequence number.
	appendSegments(acc, 11, 10, 100)
	chunk, ok := sched.NextChunk()
	if !ok {
		t.Fatal("expected chunk after skip")
	}
	if chunk.Sequence != 1 {
		t.Fatalf("expected sequence 1 after a silent skip, got %d", chunk.Sequence)
	}
}

func TestSchedulerFinalChunk(t *testing.T) {
	acc := NewAccumulator()
	sched := NewScheduler(acc, OverlapPolicy{Fraction: 0.10}, 500)
	appendSegments(acc, 0, 10, 100)
	if _, ok := sched.NextChunk(); !ok {
		t.Fatal("expected first chunk")
	}

	// A tiny tail: below the min-bytes threshold, but the stop path
	// transcribes it anyway.
	appendSegments(acc, 10, 1, 10)
	final, ok := sched.FinalChunk()
	if !ok {
		t.Fatal("expected final chunk")
	}
	if final.HasOverlap {
		t.Fatal("final chunk must not include overlap")
	}
	if len(final.Payload) != 10 {
		t.Fatalf("expected only the unscheduled tail, got %d bytes", len(final.Payload))
	}
	if final.Sequence != 1 {
		t.Fatalf("expected sequence 1, got %d", final.Sequence)
	}

	if _, ok := sched.FinalChunk(); ok {
		t.Fatal("expected no second final chunk")
	}
}
