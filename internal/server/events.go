package server

import "time"

const EventVersion = 1

type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

type SessionStartedEvent struct {
	Event
	Slot      int    `json:"slot"`
	SessionID string `json:"session_id"`
}

type SessionEndedEvent struct {
	Event
	Slot      int     `json:"slot"`
	SessionID string  `json:"session_id"`
	Duration  float64 `json:"duration"`
}

type TranscriptEvent struct {
	Event
	Slot      int    `json:"slot"`
	SessionID string `json:"session_id"`
	Sequence  int    `json:"sequence"`
	Text      string `json:"text"`
	Elapsed   string `json:"elapsed"`
}

type TranslationEvent struct {
	Event
	Slot      int    `json:"slot"`
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

type PlaybackEvent struct {
	Event
	Slot  int    `json:"slot"`
	Audio []byte `json:"audio"` // base64 in the JSON encoding
	Mime  string `json:"mime"`
}

type StatusEvent struct {
	Event
	Slot    int    `json:"slot"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

type DurationWarningEvent struct {
	Event
	Slot             int     `json:"slot"`
	RemainingSeconds float64 `json:"remaining_seconds"`
}

type ChunkStatusEvent struct {
	Event
	Sequence int    `json:"sequence"`
	Phase    string `json:"phase"` // submitting | retrying | completed | failed
	Attempt  int    `json:"attempt,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

type JobProgressEvent struct {
	Event
	JobID    string `json:"job_id"`
	Progress int    `json:"progress"`
}

type ConnectionEvent struct {
	Event
	Connected bool `json:"connected"`
}

func newEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}
