// Package stimulus defines the experiment payload run during a trial and the
// built-in variants.
//
// A variant is selected by name from configuration and owns the schema of its
// own configuration block. Variants may dispense rewards through the ledger
// they are built with; every reward they give during a trial is reported in
// the Outcome.
package stimulus

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/roach88/headfix/internal/clock"
	"github.com/roach88/headfix/internal/eventlog"
	"github.com/roach88/headfix/internal/reward"
	"github.com/roach88/headfix/internal/subject"
)

// Outcome summarizes one completed run.
type Outcome struct {
	Rewards int
}

// Stimulus is the capability the controller drives for each trial.
type Stimulus interface {
	// Configure prepares a run for s and returns a short identifier that is
	// embedded in the trial's video file name.
	Configure(s *subject.Subject) (string, error)
	// Run executes the stimulus to completion.
	Run(ctx context.Context) (Outcome, error)
	// LogFile writes any stimulus-specific lines for the last run.
	LogFile() error
	// NextDay hands over the new day's log.
	NextDay(log *eventlog.Log)
	// Quitting is called once before the program exits.
	Quitting()
}

// Deps are the collaborators a variant is constructed with.
type Deps struct {
	Ledger *reward.Ledger
	Clock  clock.Clock
	Log    *eventlog.Log
	Logger *slog.Logger
}

// Factory builds a variant from its configuration block. cfg may be nil.
type Factory func(cfg *yaml.Node, deps Deps) (Stimulus, error)

var factories = map[string]Factory{
	"rewards": newRewards,
	"hold":    newHold,
}

// Names lists the known variants.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the variant called name.
func New(name string, cfg *yaml.Node, deps Deps) (Stimulus, error) {
	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown stimulus %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	st, err := f(cfg, deps)
	if err != nil {
		return nil, fmt.Errorf("configure stimulus %s: %w", name, err)
	}
	return st, nil
}

// Validate decodes cfg for name without building the variant.
func Validate(name string, cfg *yaml.Node) error {
	_, err := New(name, cfg, Deps{})
	return err
}

// decodeStrict decodes a configuration block into out, rejecting unknown
// fields. Fields absent from the block keep the values already in out.
func decodeStrict(cfg *yaml.Node, out any) error {
	if cfg == nil || cfg.Kind == 0 {
		return nil
	}
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	return dec.Decode(out)
}

// Identifier turns free text into a file-name-safe token. The text is NFC
// normalized so visually identical labels always yield the same file name;
// path separators and whitespace become '-'.
func Identifier(label string) string {
	label = norm.NFC.String(strings.TrimSpace(label))
	return strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == '_' || unicode.IsSpace(r):
			return '-'
		case unicode.IsControl(r):
			return -1
		default:
			return r
		}
	}, label)
}
