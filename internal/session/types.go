package session

import (
	"context"
	"time"

	"github.com/dictaflow/dictaflow/internal/capture"
	"github.com/dictaflow/dictaflow/internal/transcribe"
	"github.com/dictaflow/dictaflow/internal/transcript"
)

// State of a speaker's recording session.
type State string

const (
	StateIdle             State = "idle"
	StateRequestingAccess State = "requesting_access"
	StateRecording        State = "recording"
	StateStopping         State = "stopping"
	StateFinalizing       State = "finalizing_last_chunk"
)

// Status levels used for advisory notifications.
const (
	StatusInfo    = "info"
	StatusWarning = "warning"
	// StatusAccess messages are persistent until dismissed or retried.
	StatusAccess = "access"
)

type Transcriber interface {
	Submit(ctx context.Context, req transcribe.SubmitRequest) (transcribe.Outcome, error)
}

type JobWaiter interface {
	Wait(ctx context.Context, jobID string) transcribe.Outcome
}

// AccessGate vetoes a model selection before any network submission, e.g.
// when the user's plan does not cover the selected model.
type AccessGate interface {
	CheckModel(model string) error
}

type Translator interface {
	Translate(ctx context.Context, text, targetLanguage, model string) (string, error)
}

type Synthesizer interface {
	Speak(ctx context.Context, text string) ([]byte, error)
}

type Store interface {
	CreateSession(id string, slot int, language, model string, startedAt time.Time) error
	EndSession(id string, endedAt time.Time) error
	AppendEntry(sessionID string, e transcript.Entry) error
}

type EventBroadcaster interface {
	BroadcastSessionStarted(slot int, sessionID string)
	BroadcastSessionEnded(slot int, sessionID string, duration time.Duration)
	BroadcastTranscript(slot int, sessionID string, e transcript.Entry)
	BroadcastTranslation(slot int, sessionID, text string)
	BroadcastPlayback(slot int, audio []byte)
	BroadcastStatus(slot int, level, message string)
	BroadcastDurationWarning(slot int, remaining time.Duration)
}

// Settings is the explicit configuration object a controller is constructed
// with; nothing here is ambient state.
type Settings struct {
	Slot          int
	Language      string
	Model         string
	ElementID     string
	ChunkInterval time.Duration
	Overlap       capture.OverlapPolicy
	MaxDuration   time.Duration
	WarningLead   time.Duration
	MinChunkBytes int
	SubmitTimeout time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.ChunkInterval <= 0 {
		s.ChunkInterval = 65 * time.Second
	}
	if s.Overlap.Fraction <= 0 && s.Overlap.Fixed <= 0 {
		s.Overlap.Fraction = 0.10
	}
	if s.MaxDuration <= 0 {
		s.MaxDuration = 30 * time.Minute
	}
	if s.WarningLead <= 0 || s.WarningLead >= s.MaxDuration {
		s.WarningLead = time.Minute
		if s.WarningLead >= s.MaxDuration {
			s.WarningLead = s.MaxDuration / 2
		}
	}
	if s.SubmitTimeout <= 0 {
		s.SubmitTimeout = 120 * time.Second
	}
	return s
}
