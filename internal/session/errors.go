package session

import (
	"errors"
	"fmt"

	"github.com/dictaflow/dictaflow/internal/capture"
)

var (
	// ErrSessionActive is returned by Start when the speaker already has a
	// session in flight.
	ErrSessionActive = errors.New("session already active")
	// ErrNoSession is returned by Stop when there is nothing to stop.
	ErrNoSession = errors.New("no active session")
	// ErrOtherSpeakerActive enforces the bilingual mutual-exclusion rule:
	// one microphone, one active capture.
	ErrOtherSpeakerActive = errors.New("other speaker is recording")
)

// AccessReason classifies why capture access could not be granted.
type AccessReason string

const (
	ReasonPermissionDenied AccessReason = "permission_denied"
	ReasonNoDevice         AccessReason = "no_device"
	ReasonDeviceBusy       AccessReason = "device_busy"
	ReasonInsecureContext  AccessReason = "insecure_context"
	ReasonAborted          AccessReason = "aborted"
	ReasonUnknown          AccessReason = "unknown"
)

// AccessError is fatal to the current start attempt. It carries a specific
// user-facing message and returns the session to idle; it is the only error
// class that ever ends (or here, prevents) a session.
type AccessError struct {
	Reason  AccessReason
	Message string
	Err     error
}

func (e *AccessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AccessError) Unwrap() error { return e.Err }

func classifyAccess(err error) *AccessError {
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		return &AccessError{Reason: ReasonPermissionDenied, Message: "Microphone access was denied. Allow microphone use and try again.", Err: err}
	case errors.Is(err, capture.ErrNoDevice):
		return &AccessError{Reason: ReasonNoDevice, Message: "No microphone was found. Connect a microphone and try again.", Err: err}
	case errors.Is(err, capture.ErrDeviceBusy):
		return &AccessError{Reason: ReasonDeviceBusy, Message: "The microphone is in use by another application.", Err: err}
	case errors.Is(err, capture.ErrInsecureContext):
		return &AccessError{Reason: ReasonInsecureContext, Message: "Recording requires a secure (HTTPS) connection.", Err: err}
	case errors.Is(err, capture.ErrAborted):
		return &AccessError{Reason: ReasonAborted, Message: "Recording was interrupted before it started.", Err: err}
	default:
		return &AccessError{Reason: ReasonUnknown, Message: "Could not start recording.", Err: err}
	}
}
