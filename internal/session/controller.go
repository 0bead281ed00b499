package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dictaflow/dictaflow/internal/capture"
	"github.com/dictaflow/dictaflow/internal/transcribe"
	"github.com/dictaflow/dictaflow/internal/transcript"
)

// Controller runs the recording lifecycle for one speaker slot:
//
//	Idle → RequestingAccess → Recording → Stopping → FinalizingLastChunk → Idle
//
// Every chunk tick slices the accumulator and submits the chunk without
// pausing capture; a slow or retried submission never blocks the next tick.
// Ordering is enforced entirely by the transcript buffer's sequence gate.
// Chunk-level failures degrade to a missing piece of transcript; only access
// errors at start, user stop, or the max-duration ceiling end a session.
type Controller struct {
	settings    Settings
	source      capture.Source
	transcriber Transcriber
	waiter      JobWaiter
	gate        AccessGate
	store       Store
	hub         EventBroadcaster
	now         func() time.Time

	mu           sync.Mutex
	state        State
	sessionID    string
	startedAt    time.Time
	deadline     time.Time
	sched        *capture.Scheduler
	buffer       *transcript.Buffer
	stopTick     chan struct{}
	cancelStream context.CancelFunc
	warnTimer    *time.Timer
	maxTimer     *time.Timer
	onAppend     func(transcript.Entry)
	inflight     sync.WaitGroup
}

// streamEndReporter is implemented by capture sources that can signal the
// stream dying mid-session (device unplugged, backend failure).
type streamEndReporter interface {
	OnStreamEnd(fn func(error))
}

func NewController(settings Settings, source capture.Source, transcriber Transcriber, waiter JobWaiter, gate AccessGate, store Store, hub EventBroadcaster) *Controller {
	return &Controller{
		settings:    settings.withDefaults(),
		source:      source,
		transcriber: transcriber,
		waiter:      waiter,
		gate:        gate,
		store:       store,
		hub:         hub,
		state:       StateIdle,
		now:         time.Now,
	}
}

// OnAppend registers a post-merge hook (the bilingual coordinator's
// translate-and-speak fan-out). Must be set before Start.
func (c *Controller) OnAppend(fn func(transcript.Entry)) {
	c.mu.Lock()
	c.onAppend = fn
	c.mu.Unlock()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Entries returns the finalized transcript entries of the active (or most
// recently active) session.
func (c *Controller) Entries() []transcript.Entry {
	c.mu.Lock()
	buffer := c.buffer
	c.mu.Unlock()
	if buffer == nil {
		return nil
	}
	return buffer.Entries()
}

// Start requests capture access and, on grant, begins recording and chunk
// scheduling. Access failures are classified, surfaced as persistent status
// messages, and return the controller to idle.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.state = StateRequestingAccess
	c.mu.Unlock()

	slot := c.settings.Slot

	// Capability check happens before the device or the network is touched.
	if c.gate != nil {
		if err := c.gate.CheckModel(c.settings.Model); err != nil {
			c.hub.BroadcastStatus(slot, StatusAccess, fmt.Sprintf("The %q model is not available on your plan. Choose another model or upgrade.", c.settings.Model))
			c.setState(StateIdle)
			return err
		}
	}

	acc := capture.NewAccumulator()
	sched := capture.NewScheduler(acc, c.settings.Overlap, c.settings.MinChunkBytes)
	buffer := transcript.NewBuffer(c.settings.ChunkInterval)

	// The capture stream outlives the start request; it ends on Stop, not
	// when the caller's context does.
	streamCtx, cancelStream := context.WithCancel(context.Background())

	if reporter, ok := c.source.(streamEndReporter); ok {
		reporter.OnStreamEnd(func(err error) {
			c.hub.BroadcastStatus(slot, StatusAccess, "The microphone stopped working; recording has ended.")
			go func() { _ = c.Stop(context.Background()) }()
		})
	}

	if err := c.source.Start(streamCtx, acc.Append); err != nil {
		cancelStream()
		access := classifyAccess(err)
		c.hub.BroadcastStatus(slot, StatusAccess, access.Message)
		c.setState(StateIdle)
		return access
	}

	now := c.now()
	sessionID := fmt.Sprintf("%s-s%d", now.UTC().Format("20060102150405"), slot)
	if c.store != nil {
		if err := c.store.CreateSession(sessionID, slot, c.settings.Language, c.settings.Model, now.UTC()); err != nil {
			cancelStream()
			_ = c.source.Stop()
			c.setState(StateIdle)
			return fmt.Errorf("create session: %w", err)
		}
	}

	buffer.OnAppend(func(e transcript.Entry) {
		if c.store != nil {
			if err := c.store.AppendEntry(sessionID, e); err != nil {
				slog.Warn("persist transcript entry", "session", sessionID, "sequence", e.Sequence, "error", err)
			}
		}
		c.hub.BroadcastTranscript(slot, sessionID, e)
		c.mu.Lock()
		fn := c.onAppend
		c.mu.Unlock()
		if fn != nil {
			fn(e)
		}
	})

	stopTick := make(chan struct{})

	c.mu.Lock()
	c.state = StateRecording
	c.sessionID = sessionID
	c.startedAt = now
	c.deadline = now.Add(c.settings.MaxDuration)
	c.sched = sched
	c.buffer = buffer
	c.stopTick = stopTick
	c.cancelStream = cancelStream
	c.armTimersLocked()
	c.mu.Unlock()

	go c.tickLoop(stopTick, sched)

	c.hub.BroadcastSessionStarted(slot, sessionID)
	return nil
}

// Stop ends the session: the chunk timer is canceled, the device released,
// and everything past the watermark is flushed through the same
// validate→submit→merge path, awaited before the session is declared over.
// A forced max-duration stop goes through this exact path.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return ErrNoSession
	}
	c.state = StateStopping
	stopTick := c.stopTick
	c.stopTick = nil
	cancelStream := c.cancelStream
	c.cancelStream = nil
	if c.warnTimer != nil {
		c.warnTimer.Stop()
		c.warnTimer = nil
	}
	if c.maxTimer != nil {
		c.maxTimer.Stop()
		c.maxTimer = nil
	}
	sched := c.sched
	sessionID := c.sessionID
	startedAt := c.startedAt
	c.mu.Unlock()

	close(stopTick)
	// Canceling the stream context first keeps a clean device release from
	// being misreported as a mid-session stream loss.
	if cancelStream != nil {
		cancelStream()
	}
	if err := c.source.Stop(); err != nil {
		slog.Warn("stop capture source", "slot", c.settings.Slot, "error", err)
	}

	c.setState(StateFinalizing)
	c.inflight.Wait()
	if final, ok := sched.FinalChunk(); ok {
		c.processChunk(final)
	}

	endedAt := c.now()
	if c.store != nil {
		if err := c.store.EndSession(sessionID, endedAt.UTC()); err != nil {
			slog.Warn("end session", "session", sessionID, "error", err)
		}
	}

	c.mu.Lock()
	c.state = StateIdle
	c.sessionID = ""
	c.mu.Unlock()

	c.hub.BroadcastSessionEnded(c.settings.Slot, sessionID, endedAt.Sub(startedAt))
	return nil
}

// ExtendDuration pushes the max-duration ceiling out, exercised from the
// "last chance to continue" affordance the warning event surfaces.
func (c *Controller) ExtendDuration(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return
	}
	c.deadline = c.deadline.Add(d)
	c.armTimersLocked()
	c.mu.Unlock()

	c.hub.BroadcastStatus(c.settings.Slot, StatusInfo, fmt.Sprintf("Recording extended by %s.", d))
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// armTimersLocked resets the warning and ceiling timers against the current
// deadline. Caller holds c.mu.
func (c *Controller) armTimersLocked() {
	if c.warnTimer != nil {
		c.warnTimer.Stop()
	}
	if c.maxTimer != nil {
		c.maxTimer.Stop()
	}

	now := c.now()
	lead := c.settings.WarningLead
	if warnIn := c.deadline.Add(-lead).Sub(now); warnIn > 0 {
		c.warnTimer = time.AfterFunc(warnIn, func() {
			c.hub.BroadcastDurationWarning(c.settings.Slot, lead)
		})
	}
	maxIn := c.deadline.Sub(now)
	if maxIn < 0 {
		maxIn = 0
	}
	c.maxTimer = time.AfterFunc(maxIn, func() {
		// Synthesized stop, treated identically to a user stop.
		_ = c.Stop(context.Background())
	})
}

func (c *Controller) tickLoop(stop chan struct{}, sched *capture.Scheduler) {
	ticker := time.NewTicker(c.settings.ChunkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			chunk, ok := sched.NextChunk()
			if !ok {
				continue
			}
			c.inflight.Add(1)
			go func() {
				defer c.inflight.Done()
				c.processChunk(chunk)
			}()
		}
	}
}

// processChunk runs one chunk through validate → submit → (poll) → merge.
// Submissions are deliberately detached from the session context: a user
// stop must not abandon a result already in flight. The per-request timeout
// is always honored.
func (c *Controller) processChunk(chunk capture.AudioChunk) {
	slot := c.settings.Slot
	c.mu.Lock()
	buffer := c.buffer
	c.mu.Unlock()
	if buffer == nil {
		return
	}

	if _, err := capture.DetectContainer(chunk.Payload); err != nil {
		slog.Warn("dropping malformed chunk", "slot", slot, "sequence", chunk.Sequence, "error", err)
		c.hub.BroadcastStatus(slot, StatusWarning, "Skipped an unreadable audio chunk; recording continues.")
		buffer.Skip(chunk.Sequence)
		return
	}

	seq := chunk.Sequence
	req := transcribe.SubmitRequest{
		Payload:        chunk.Payload,
		Filename:       fmt.Sprintf("chunk-%d.wav", seq),
		Language:       c.settings.Language,
		Model:          c.settings.Model,
		ChunkNumber:    &seq,
		ElementID:      c.settings.ElementID,
		HasOverlap:     chunk.HasOverlap,
		OverlapSeconds: chunk.OverlapSeconds,
		Timeout:        c.settings.SubmitTimeout,
	}
	if chunk.HasOverlap && c.settings.Overlap.Fixed <= 0 {
		req.OverlapPercent = c.settings.Overlap.Fraction * 100
	}

	outcome, err := c.transcriber.Submit(context.Background(), req)
	if err != nil {
		c.hub.BroadcastStatus(slot, StatusWarning, "Transcription failed for part of the recording; that section will be missing.")
		buffer.Skip(seq)
		return
	}

	if outcome.Status == transcribe.StatusDeferred {
		if c.waiter == nil {
			c.hub.BroadcastStatus(slot, StatusWarning, "The service queued this chunk but polling is not configured.")
			buffer.Skip(seq)
			return
		}
		outcome = c.waiter.Wait(context.Background(), outcome.JobID)
	}

	switch outcome.Status {
	case transcribe.StatusCompleted:
		buffer.Deliver(seq, outcome.Text)
	case transcribe.StatusPollTimeout:
		c.hub.BroadcastStatus(slot, StatusWarning, "A transcription job is taking longer than expected; check back later.")
		buffer.Skip(seq)
	default:
		c.hub.BroadcastStatus(slot, StatusWarning, "Transcription failed for part of the recording; that section will be missing.")
		buffer.Skip(seq)
	}
}
