package capture

import (
	"context"
	"errors"
	"time"
)

// Segment is one opaque encoded emission from the capture device, tagged
// with the wall-clock time it was captured.
type Segment struct {
	Data       []byte
	CapturedAt time.Time
}

// Device-level failures surfaced by Source implementations. The session
// layer classifies these into user-facing messages.
var (
	ErrPermissionDenied = errors.New("capture permission denied")
	ErrNoDevice         = errors.New("no capture device found")
	ErrDeviceBusy       = errors.New("capture device busy")
	ErrInsecureContext  = errors.New("capture requires a secure context")
	ErrAborted          = errors.New("capture aborted")
)

// Source is the host environment's capture facility. Start acquires the
// device and begins emitting encoded segments at the source's cadence until
// Stop is called or the context is canceled. Emit callbacks must be fast;
// the accumulator append they feed is a mutex-guarded slice append.
type Source interface {
	Start(ctx context.Context, emit func(Segment)) error
	Stop() error
}
