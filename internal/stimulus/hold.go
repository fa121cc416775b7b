package stimulus

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/headfix/internal/eventlog"
	"github.com/roach88/headfix/internal/subject"
)

type holdConfig struct {
	Label    string  `yaml:"label"`
	Duration float64 `yaml:"duration"`
}

// holdStim keeps the subject fixed for a set time without rewards.
type holdStim struct {
	cfg  holdConfig
	id   string
	deps Deps
}

func newHold(node *yaml.Node, deps Deps) (Stimulus, error) {
	cfg := holdConfig{Label: "hold", Duration: 10}
	if err := decodeStrict(node, &cfg); err != nil {
		return nil, err
	}
	if cfg.Duration <= 0 {
		return nil, fmt.Errorf("duration must be positive, got %g", cfg.Duration)
	}
	return &holdStim{cfg: cfg, id: Identifier(cfg.Label), deps: deps}, nil
}

func (h *holdStim) Configure(*subject.Subject) (string, error) {
	return h.id, nil
}

func (h *holdStim) Run(ctx context.Context) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	h.deps.Clock.Sleep(time.Duration(h.cfg.Duration * float64(time.Second)))
	return Outcome{}, nil
}

func (h *holdStim) LogFile() error { return nil }

func (h *holdStim) NextDay(log *eventlog.Log) { h.deps.Log = log }

func (h *holdStim) Quitting() {}
