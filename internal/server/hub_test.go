package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dictaflow/dictaflow/internal/transcript"
)

func TestHubBroadcastReachesAllSubscribers(t *testing.T) {
	hub := NewHub()
	a := hub.Subscribe()
	b := hub.Subscribe()
	defer hub.Unsubscribe(a)
	defer hub.Unsubscribe(b)

	hub.Broadcast([]byte("ping"))

	for _, ch := range []chan []byte{a, b} {
		select {
		case msg := <-ch:
			if string(msg) != "ping" {
				t.Fatalf("unexpected message %q", msg)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the broadcast")
		}
	}
}

func TestHubSlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	// Nobody drains ch; fill it past capacity. Broadcast must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			hub.Broadcast([]byte("flood"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a slow subscriber")
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe()
	hub.Unsubscribe(ch)

	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed after unsubscribe")
	}

	// Broadcasting after unsubscribe must not panic on the closed channel.
	hub.Broadcast([]byte("after"))
}

func TestHubTranscriptEventShape(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	hub.BroadcastTranscript(1, "sess-1", transcript.Entry{Sequence: 3, Text: "hello", Elapsed: "03:15"})

	var event TranscriptEvent
	select {
	case msg := <-ch:
		if err := json.Unmarshal(msg, &event); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}

	if event.Type != "transcript_appended" || event.Version != EventVersion {
		t.Fatalf("unexpected envelope %+v", event.Event)
	}
	if event.Slot != 1 || event.SessionID != "sess-1" || event.Sequence != 3 || event.Text != "hello" {
		t.Fatalf("unexpected event %+v", event)
	}
	if _, err := time.Parse(time.RFC3339Nano, event.Timestamp); err != nil {
		t.Fatalf("timestamp not RFC3339Nano: %q", event.Timestamp)
	}
}

func TestHubEventTypes(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	emit := []func(){
		func() { hub.BroadcastSessionStarted(1, "s") },
		func() { hub.BroadcastSessionEnded(1, "s", time.Minute) },
		func() { hub.BroadcastTranslation(2, "s", "text") },
		func() { hub.BroadcastPlayback(2, []byte{1, 2}) },
		func() { hub.BroadcastStatus(1, "warning", "msg") },
		func() { hub.BroadcastDurationWarning(1, time.Minute) },
		func() { hub.ChunkSubmitting(4) },
		func() { hub.ChunkRetrying(4, 1) },
		func() { hub.ChunkCompleted(4) },
		func() { hub.ChunkFailed(4, nil) },
		func() { hub.JobProgress("job-1", 50) },
	}
	want := []string{
		"session_started",
		"session_ended",
		"translation_ready",
		"playback",
		"status",
		"duration_warning",
		"chunk_status",
		"chunk_status",
		"chunk_status",
		"chunk_status",
		"job_progress",
	}

	for i, fn := range emit {
		fn()
		select {
		case msg := <-ch:
			var envelope Event
			if err := json.Unmarshal(msg, &envelope); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if envelope.Type != want[i] {
				t.Fatalf("event %d: expected type %q, got %q", i, want[i], envelope.Type)
			}
		case <-time.After(time.Second):
			t.Fatalf("event %d (%s) not received", i, want[i])
		}
	}
}

func TestChunkStatusPhases(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	hub.ChunkRetrying(7, 2)

	var event ChunkStatusEvent
	select {
	case msg := <-ch:
		if err := json.Unmarshal(msg, &event); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
	if event.Sequence != 7 || event.Phase != "retrying" || event.Attempt != 2 {
		t.Fatalf("unexpected chunk status %+v", event)
	}
}
