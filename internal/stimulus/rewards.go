package stimulus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/headfix/internal/eventlog"
	"github.com/roach88/headfix/internal/subject"
)

type rewardsConfig struct {
	Label    string  `yaml:"label"`
	Count    int     `yaml:"count"`
	Interval float64 `yaml:"interval"`
	Category string  `yaml:"category"`
}

// rewardsStim gives a fixed number of rewards at a fixed interval while the
// subject is fixed.
type rewardsStim struct {
	cfg   rewardsConfig
	id    string
	deps  Deps
	tag   uint64
	given int
}

func newRewards(node *yaml.Node, deps Deps) (Stimulus, error) {
	cfg := rewardsConfig{Label: "rewards", Count: 5, Interval: 1.5, Category: "task"}
	if err := decodeStrict(node, &cfg); err != nil {
		return nil, err
	}
	if cfg.Count < 0 {
		return nil, fmt.Errorf("count must not be negative, got %d", cfg.Count)
	}
	if cfg.Interval < 0 {
		return nil, fmt.Errorf("interval must not be negative, got %g", cfg.Interval)
	}
	id := Identifier(cfg.Label)
	if id == "" {
		return nil, errors.New("label is empty")
	}
	return &rewardsStim{cfg: cfg, id: id, deps: deps}, nil
}

func (r *rewardsStim) Configure(s *subject.Subject) (string, error) {
	r.tag = s.Tag()
	r.given = 0
	return r.id, nil
}

func (r *rewardsStim) Run(ctx context.Context) (Outcome, error) {
	interval := time.Duration(r.cfg.Interval * float64(time.Second))
	for i := 0; i < r.cfg.Count; i++ {
		if err := ctx.Err(); err != nil {
			return Outcome{Rewards: r.given}, err
		}
		if _, err := r.deps.Ledger.Dispense(r.cfg.Category); err != nil {
			return Outcome{Rewards: r.given}, err
		}
		r.given++
		if i < r.cfg.Count-1 {
			r.deps.Clock.Sleep(interval)
		}
	}
	return Outcome{Rewards: r.given}, nil
}

func (r *rewardsStim) LogFile() error {
	return r.deps.Log.Write(r.tag, fmt.Sprintf("reward x%d", r.given))
}

func (r *rewardsStim) NextDay(log *eventlog.Log) {
	r.deps.Log = log
}

func (r *rewardsStim) Quitting() {
	r.deps.Logger.Info("rewards stimulus stopped", "task_rewards", r.deps.Ledger.Count(r.cfg.Category))
}
