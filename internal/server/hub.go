package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/dictaflow/dictaflow/internal/transcript"
)

// Hub fans events out to connected UI clients. Broadcasts never block: a
// slow client just misses events. It implements both the session layer's
// EventBroadcaster and the transcription client's advisory Notifier.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan []byte]struct{})}
}

func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *Hub) BroadcastSessionStarted(slot int, sessionID string) {
	h.broadcastEvent(SessionStartedEvent{
		Event:     newEvent("session_started", time.Now().UTC()),
		Slot:      slot,
		SessionID: sessionID,
	})
}

func (h *Hub) BroadcastSessionEnded(slot int, sessionID string, duration time.Duration) {
	h.broadcastEvent(SessionEndedEvent{
		Event:     newEvent("session_ended", time.Now().UTC()),
		Slot:      slot,
		SessionID: sessionID,
		Duration:  duration.Seconds(),
	})
}

func (h *Hub) BroadcastTranscript(slot int, sessionID string, e transcript.Entry) {
	h.broadcastEvent(TranscriptEvent{
		Event:     newEvent("transcript_appended", time.Now().UTC()),
		Slot:      slot,
		SessionID: sessionID,
		Sequence:  e.Sequence,
		Text:      e.Text,
		Elapsed:   e.Elapsed,
	})
}

func (h *Hub) BroadcastTranslation(slot int, sessionID, text string) {
	h.broadcastEvent(TranslationEvent{
		Event:     newEvent("translation_ready", time.Now().UTC()),
		Slot:      slot,
		SessionID: sessionID,
		Text:      text,
	})
}

func (h *Hub) BroadcastPlayback(slot int, audio []byte) {
	h.broadcastEvent(PlaybackEvent{
		Event: newEvent("playback", time.Now().UTC()),
		Slot:  slot,
		Audio: audio,
		Mime:  "audio/mpeg",
	})
}

func (h *Hub) BroadcastStatus(slot int, level, message string) {
	h.broadcastEvent(StatusEvent{
		Event:   newEvent("status", time.Now().UTC()),
		Slot:    slot,
		Level:   level,
		Message: message,
	})
}

func (h *Hub) BroadcastDurationWarning(slot int, remaining time.Duration) {
	h.broadcastEvent(DurationWarningEvent{
		Event:            newEvent("duration_warning", time.Now().UTC()),
		Slot:             slot,
		RemainingSeconds: remaining.Seconds(),
	})
}

// Advisory chunk-level notifications from the transcription client.

func (h *Hub) ChunkSubmitting(sequence int) {
	h.broadcastChunk(sequence, "submitting", 0, "")
}

func (h *Hub) ChunkRetrying(sequence, attempt int) {
	h.broadcastChunk(sequence, "retrying", attempt, "")
}

func (h *Hub) ChunkCompleted(sequence int) {
	h.broadcastChunk(sequence, "completed", 0, "")
}

func (h *Hub) ChunkFailed(sequence int, err error) {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	h.broadcastChunk(sequence, "failed", 0, detail)
}

func (h *Hub) JobProgress(jobID string, progress int) {
	h.broadcastEvent(JobProgressEvent{
		Event:    newEvent("job_progress", time.Now().UTC()),
		JobID:    jobID,
		Progress: progress,
	})
}

func (h *Hub) broadcastChunk(sequence int, phase string, attempt int, detail string) {
	h.broadcastEvent(ChunkStatusEvent{
		Event:    newEvent("chunk_status", time.Now().UTC()),
		Sequence: sequence,
		Phase:    phase,
		Attempt:  attempt,
		Detail:   detail,
	})
}

func (h *Hub) broadcastEvent(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("event marshal error: %v", err)
		return
	}
	h.Broadcast(payload)
}
