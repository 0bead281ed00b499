package access

import (
	"errors"
	"fmt"
)

// ErrModelNotAllowed is returned when the capability check vetoes a model
// selection. The pipeline surfaces an upgrade prompt and never contacts the
// network for the vetoed submission.
var ErrModelNotAllowed = errors.New("model not allowed")

// ModelGate is a capability check over transcription model selections. An
// empty allow list permits everything.
type ModelGate struct {
	allowed map[string]struct{}
}

func NewModelGate(allowedModels []string) *ModelGate {
	g := &ModelGate{}
	if len(allowedModels) > 0 {
		g.allowed = make(map[string]struct{}, len(allowedModels))
		for _, m := range allowedModels {
			g.allowed[m] = struct{}{}
		}
	}
	return g
}

func (g *ModelGate) CheckModel(model string) error {
	if g.allowed == nil {
		return nil
	}
	if _, ok := g.allowed[model]; !ok {
		return fmt.Errorf("%w: %q", ErrModelNotAllowed, model)
	}
	return nil
}
