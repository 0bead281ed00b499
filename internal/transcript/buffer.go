package transcript

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Entry is one finalized, deduplicated append to a speaker's transcript.
type Entry struct {
	Sequence int    `json:"sequence"`
	Text     string `json:"text"`
	Elapsed  string `json:"elapsed"`
}

// Buffer is the ordered per-speaker accumulation of transcribed text.
// Results are merged strictly in chunk sequence order: a result for
// sequence n+1 arriving before sequence n is held until n resolves, so a
// slow or retried chunk can never reorder or duplicate the transcript.
type Buffer struct {
	interval time.Duration

	mu       sync.Mutex
	next     int
	pending  map[int]string
	skipped  map[int]struct{}
	entries  []Entry
	onAppend func(Entry)
}

// NewBuffer creates an empty buffer. interval is the chunk interval used to
// derive each entry's elapsed-time label.
func NewBuffer(interval time.Duration) *Buffer {
	return &Buffer{
		interval: interval,
		pending:  make(map[int]string),
		skipped:  make(map[int]struct{}),
	}
}

// OnAppend registers a callback invoked for every finalized entry, in
// order, while the buffer lock is not held.
func (b *Buffer) OnAppend(fn func(Entry)) {
	b.mu.Lock()
	b.onAppend = fn
	b.mu.Unlock()
}

// Deliver hands the buffer the transcription result for one sequence
// number. It merges every result that is now unblocked and returns the
// entries appended by this call.
func (b *Buffer) Deliver(sequence int, text string) []Entry {
	b.mu.Lock()
	if sequence < b.next {
		b.mu.Unlock()
		return nil
	}
	b.pending[sequence] = text
	appended, fn := b.drainLocked()
	b.mu.Unlock()

	b.notify(fn, appended)
	return appended
}

// Skip releases the ordering gate for a sequence whose chunk terminally
// failed, was dropped by validation, or timed out polling. Later sequences
// held behind it are merged.
func (b *Buffer) Skip(sequence int) []Entry {
	b.mu.Lock()
	if sequence < b.next {
		b.mu.Unlock()
		return nil
	}
	b.skipped[sequence] = struct{}{}
	appended, fn := b.drainLocked()
	b.mu.Unlock()

	b.notify(fn, appended)
	return appended
}

func (b *Buffer) drainLocked() ([]Entry, func(Entry)) {
	var appended []Entry
	for {
		if _, ok := b.skipped[b.next]; ok {
			delete(b.skipped, b.next)
			b.next++
			continue
		}
		text, ok := b.pending[b.next]
		if !ok {
			break
		}
		delete(b.pending, b.next)

		merged := Merge(b.textLocked(), text)
		if strings.TrimSpace(merged) != "" {
			entry := Entry{
				Sequence: b.next,
				Text:     strings.TrimSpace(merged),
				Elapsed:  formatElapsed(time.Duration(b.next) * b.interval),
			}
			b.entries = append(b.entries, entry)
			appended = append(appended, entry)
		}
		b.next++
	}
	return appended, b.onAppend
}

func (b *Buffer) notify(fn func(Entry), entries []Entry) {
	if fn == nil {
		return
	}
	for _, e := range entries {
		fn(e)
	}
}

// Text returns the full transcript, entries joined by single spaces.
func (b *Buffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.textLocked()
}

func (b *Buffer) textLocked() string {
	parts := make([]string, 0, len(b.entries))
	for _, e := range b.entries {
		parts = append(parts, e.Text)
	}
	return strings.Join(parts, " ")
}

// Entries returns a copy of the finalized entries in order.
func (b *Buffer) Entries() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Entry(nil), b.entries...)
}

// PendingCount reports results currently held behind the ordering gate.
func (b *Buffer) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func formatElapsed(d time.Duration) string {
	total := int(d.Seconds())
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
