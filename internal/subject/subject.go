// Package subject tracks the animals seen in one day and persists their
// counters in a fixed-width statistics file.
package subject

import (
	"errors"
	"fmt"
)

// ErrDuplicateTag is returned by Register when the tag is already known.
// Callers are expected to Lookup first, so this indicates a programming error.
var ErrDuplicateTag = errors.New("subject already registered")

// Counts holds the per-day counters for one subject.
type Counts struct {
	Entries         int
	EntranceRewards int
	HeadFixes       int
	HeadFixRewards  int
}

// Subject is one RFID-tagged animal.
//
// Counters only move forward; the increment methods are the only mutators.
type Subject struct {
	tag    uint64
	slot   int
	counts Counts
}

// Tag returns the RFID tag.
func (s *Subject) Tag() uint64 { return s.tag }

// Slot returns the zero-based position of the subject's stats record.
func (s *Subject) Slot() int { return s.slot }

// Counts returns a copy of the counters.
func (s *Subject) Counts() Counts { return s.counts }

func (s *Subject) AddEntry()          { s.counts.Entries++ }
func (s *Subject) AddEntranceReward() { s.counts.EntranceRewards++ }
func (s *Subject) AddHeadFix()        { s.counts.HeadFixes++ }

// AddHeadFixRewards records n rewards given during a head-fixed trial.
// Negative n is ignored.
func (s *Subject) AddHeadFixRewards(n int) {
	if n > 0 {
		s.counts.HeadFixRewards += n
	}
}

func (s *Subject) String() string {
	return fmt.Sprintf("%013d entries=%d ent_rew=%d hfixes=%d hf_rew=%d",
		s.tag, s.counts.Entries, s.counts.EntranceRewards, s.counts.HeadFixes, s.counts.HeadFixRewards)
}

// Registry is the insertion-ordered set of subjects for one day.
// Insertion order defines each subject's slot.
type Registry struct {
	byTag   map[uint64]*Subject
	ordered []*Subject
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byTag: make(map[uint64]*Subject)}
}

// Lookup returns the subject with tag, if any.
func (r *Registry) Lookup(tag uint64) (*Subject, bool) {
	s, ok := r.byTag[tag]
	return s, ok
}

// Register adds a subject with zero counters in the next free slot.
func (r *Registry) Register(tag uint64) (*Subject, error) {
	return r.add(tag, Counts{})
}

func (r *Registry) add(tag uint64, c Counts) (*Subject, error) {
	if _, ok := r.byTag[tag]; ok {
		return nil, fmt.Errorf("register %013d: %w", tag, ErrDuplicateTag)
	}
	s := &Subject{tag: tag, slot: len(r.ordered), counts: c}
	r.byTag[tag] = s
	r.ordered = append(r.ordered, s)
	return s, nil
}

// Len returns the number of registered subjects.
func (r *Registry) Len() int { return len(r.ordered) }

// Subjects returns the subjects in slot order. The slice is a copy.
func (r *Registry) Subjects() []*Subject {
	out := make([]*Subject, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Summary renders one line per subject, in slot order.
func (r *Registry) Summary() []string {
	lines := make([]string, 0, len(r.ordered))
	for _, s := range r.ordered {
		lines = append(lines, s.String())
	}
	return lines
}
