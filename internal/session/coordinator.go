package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dictaflow/dictaflow/internal/transcript"
)

// SpeakerConfig is one side of a bilingual conversation.
type SpeakerConfig struct {
	Language string
	AutoPlay bool
}

// Coordinator orchestrates up to two speaker controllers. In basic mode a
// single slot is used and no translation happens. In bilingual mode each
// transcript append for speaker A is translated into speaker B's language
// and, when B enabled auto-playback, spoken aloud. A single microphone
// backs both slots, so starting one speaker locks out the other.
type Coordinator struct {
	controllers      [2]*Controller
	speakers         [2]SpeakerConfig
	translator       Translator
	synth            Synthesizer
	hub              EventBroadcaster
	translationModel string
}

func NewCoordinator(controllers [2]*Controller, speakers [2]SpeakerConfig, translator Translator, synth Synthesizer, hub EventBroadcaster, translationModel string) *Coordinator {
	co := &Coordinator{
		controllers:      controllers,
		speakers:         speakers,
		translator:       translator,
		synth:            synth,
		hub:              hub,
		translationModel: translationModel,
	}
	for i, ctrl := range controllers {
		if ctrl == nil {
			continue
		}
		slot := i + 1
		ctrl.OnAppend(func(e transcript.Entry) {
			co.postProcess(slot, e)
		})
	}
	return co
}

// StartSpeaker begins recording for slot 1 or 2, enforcing mutual
// exclusion with the other slot.
func (co *Coordinator) StartSpeaker(ctx context.Context, slot int) error {
	ctrl, err := co.controller(slot)
	if err != nil {
		return err
	}
	if other := co.controllers[2-slot]; other != nil && other.State() != StateIdle {
		return ErrOtherSpeakerActive
	}
	return ctrl.Start(ctx)
}

func (co *Coordinator) StopSpeaker(ctx context.Context, slot int) error {
	ctrl, err := co.controller(slot)
	if err != nil {
		return err
	}
	return ctrl.Stop(ctx)
}

func (co *Coordinator) ExtendSpeaker(slot int, d time.Duration) error {
	ctrl, err := co.controller(slot)
	if err != nil {
		return err
	}
	ctrl.ExtendDuration(d)
	return nil
}

// States reports each slot's current state for the status API.
func (co *Coordinator) States() map[int]State {
	states := make(map[int]State, len(co.controllers))
	for i, ctrl := range co.controllers {
		if ctrl == nil {
			continue
		}
		states[i+1] = ctrl.State()
	}
	return states
}

func (co *Coordinator) controller(slot int) (*Controller, error) {
	if slot < 1 || slot > len(co.controllers) || co.controllers[slot-1] == nil {
		return nil, fmt.Errorf("unknown speaker slot %d", slot)
	}
	return co.controllers[slot-1], nil
}

// postProcess runs the bilingual fan-out after a transcript append for the
// given slot. Translation failure is non-fatal: the append stands, only the
// translation and playback steps are skipped with a warning.
func (co *Coordinator) postProcess(slot int, e transcript.Entry) {
	if co.translator == nil {
		return
	}

	otherSlot := 3 - slot
	target := co.speakers[otherSlot-1]
	if target.Language == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	translated, err := co.translator.Translate(ctx, e.Text, target.Language, co.translationModel)
	if err != nil {
		slog.Warn("translation failed", "slot", slot, "sequence", e.Sequence, "error", err)
		co.hub.BroadcastStatus(slot, StatusWarning, "Translation failed for the latest section; the transcript is unaffected.")
		return
	}

	ctrl := co.controllers[slot-1]
	co.hub.BroadcastTranslation(otherSlot, ctrl.SessionID(), translated)

	if !target.AutoPlay || co.synth == nil {
		return
	}
	audio, err := co.synth.Speak(ctx, translated)
	if err != nil {
		slog.Warn("speech synthesis failed", "slot", otherSlot, "error", err)
		co.hub.BroadcastStatus(otherSlot, StatusWarning, "Could not synthesize speech for the translation.")
		return
	}
	co.hub.BroadcastPlayback(otherSlot, audio)
}
