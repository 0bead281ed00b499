package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	microphone "github.com/deepgram/deepgram-go-sdk/v3/pkg/audio/microphone"
)

const (
	pcmChannels = 1
	pcmBitDepth = 16
)

// MicSource captures from the default microphone and emits WAV-framed
// segments at a fixed cadence. Each segment carries its own RIFF header so
// any chunk sliced from the accumulator starts with a valid container
// signature. Callers must run microphone.Initialize() once before Start.
type MicSource struct {
	rates   []int
	cadence time.Duration

	mu          sync.Mutex
	mic         *microphone.Microphone
	sampleRate  int
	onStreamEnd func(error)
}

func NewMicSource(rates []int, cadence time.Duration) *MicSource {
	if cadence <= 0 {
		cadence = time.Second
	}
	return &MicSource{rates: rates, cadence: cadence}
}

func (s *MicSource) Start(ctx context.Context, emit func(Segment)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mic != nil {
		return ErrDeviceBusy
	}

	var mic *microphone.Microphone
	for _, rate := range s.rates {
		m, err := microphone.New(microphone.AudioConfig{InputChannels: pcmChannels, SamplingRate: float32(rate)})
		if err != nil {
			slog.Warn("microphone open failed", "rate", rate, "error", err)
			continue
		}
		mic = m
		s.sampleRate = rate
		break
	}
	if mic == nil {
		return ErrNoDevice
	}

	if err := mic.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceBusy, err)
	}
	s.mic = mic

	w := &segmentWriter{emit: emit, cadence: s.cadence, sampleRate: s.sampleRate, now: time.Now}
	go func() {
		err := streamWithRetry(ctx, mic, w, time.Sleep)
		w.flush()
		if err != nil && ctx.Err() == nil {
			s.mu.Lock()
			cb := s.onStreamEnd
			s.mu.Unlock()
			if cb != nil {
				cb(err)
			}
		}
	}()

	return nil
}

// OnStreamEnd registers a callback invoked when the PCM stream dies while
// capture is still wanted (device unplugged, backend failure). Overwritten
// per session by the caller.
func (s *MicSource) OnStreamEnd(fn func(error)) {
	s.mu.Lock()
	s.onStreamEnd = fn
	s.mu.Unlock()
}

func (s *MicSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mic == nil {
		return nil
	}
	err := s.mic.Stop()
	s.mic = nil
	if err != nil {
		return fmt.Errorf("stop microphone: %w", err)
	}
	return nil
}

// SampleRate reports the rate the device was opened at, 0 before Start.
func (s *MicSource) SampleRate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sampleRate
}

type micStreamer interface {
	Stream(w io.Writer) error
}

// streamWithRetry keeps the PCM stream alive across input overflows, which
// portaudio reports transiently under scheduling pressure. It returns the
// terminal error, or nil when the stream ended cleanly or was canceled.
func streamWithRetry(ctx context.Context, streamer micStreamer, w io.Writer, wait func(time.Duration)) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		err := streamer.Stream(w)
		if err == nil || ctx.Err() != nil {
			return nil
		}

		if strings.Contains(strings.ToLower(err.Error()), "overflow") {
			slog.Warn("mic input overflow, restarting stream")
			wait(250 * time.Millisecond)
			continue
		}

		slog.Warn("mic stream ended", "error", err)
		return err
	}
}

// segmentWriter accumulates raw PCM and emits one WAV-framed Segment per
// cadence window.
type segmentWriter struct {
	emit       func(Segment)
	cadence    time.Duration
	sampleRate int
	now        func() time.Time

	mu        sync.Mutex
	pcm       []byte
	lastFlush time.Time
}

func (w *segmentWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if w.lastFlush.IsZero() {
		w.lastFlush = now
	}
	w.pcm = append(w.pcm, p...)

	if now.Sub(w.lastFlush) >= w.cadence {
		w.flushLocked(now)
	}
	return len(p), nil
}

func (w *segmentWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushLocked(w.now())
}

func (w *segmentWriter) flushLocked(now time.Time) {
	if len(w.pcm) == 0 {
		return
	}
	data := make([]byte, 0, 44+len(w.pcm))
	data = append(data, wavHeader(len(w.pcm), w.sampleRate)...)
	data = append(data, w.pcm...)
	w.pcm = w.pcm[:0]
	w.lastFlush = now
	w.emit(Segment{Data: data, CapturedAt: now})
}

func wavHeader(dataSize, sampleRate int) []byte {
	byteRate := sampleRate * pcmChannels * pcmBitDepth / 8
	blockAlign := pcmChannels * pcmBitDepth / 8

	header := make([]byte, 0, 44)
	header = append(header, "RIFF"...)
	header = binary.LittleEndian.AppendUint32(header, uint32(36+dataSize))
	header = append(header, "WAVE"...)
	header = append(header, "fmt "...)
	header = binary.LittleEndian.AppendUint32(header, 16)
	header = binary.LittleEndian.AppendUint16(header, 1)
	header = binary.LittleEndian.AppendUint16(header, pcmChannels)
	header = binary.LittleEndian.AppendUint32(header, uint32(sampleRate))
	header = binary.LittleEndian.AppendUint32(header, uint32(byteRate))
	header = binary.LittleEndian.AppendUint16(header, uint16(blockAlign))
	header = binary.LittleEndian.AppendUint16(header, pcmBitDepth)
	header = append(header, "data"...)
	header = binary.LittleEndian.AppendUint32(header, uint32(dataSize))
	return header
}
