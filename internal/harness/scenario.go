package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario describes one simulated run of a cage.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Start is the virtual time the run begins at.
	Start time.Time `yaml:"start"`

	// Stop is how long after Start the run is cancelled.
	Stop time.Duration `yaml:"stop"`

	// Cage is the cage ID; defaults to "cage1".
	Cage string `yaml:"cage,omitempty"`

	// Experiment is an experiment settings block. Absent fields take the
	// stock defaults; the timezone defaults to UTC.
	Experiment yaml.Node `yaml:"experiment,omitempty"`

	// Draws are the head-fix draws in order; the last repeats.
	Draws []float64 `yaml:"draws,omitempty"`

	// Trigger enables the UDP start/stop signal.
	Trigger bool `yaml:"trigger,omitempty"`

	// CameraFails makes every recording fail to start.
	CameraFails bool `yaml:"camera_fails,omitempty"`

	Visits []Visit `yaml:"visits"`

	Assertions []Assertion `yaml:"assertions"`
}

// Visit is one subject's stay, as offsets from Start.
type Visit struct {
	Tag      uint64        `yaml:"tag"`
	Arrive   time.Duration `yaml:"arrive"`
	Leave    time.Duration `yaml:"leave"`
	Contacts []Contact     `yaml:"contacts,omitempty"`
	BadTag   bool          `yaml:"bad_tag,omitempty"`
}

// Contact is one head-plate contact, as offsets from Start.
type Contact struct {
	From time.Duration `yaml:"from"`
	To   time.Duration `yaml:"to"`
}

// Assertion validates the outcome of a run.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Tag restricts event_order, event_count and counter to one subject.
	// Nil means every tag for event assertions.
	Tag *uint64 `yaml:"tag,omitempty"`

	// Labels is the expected label order (event_order).
	Labels []string `yaml:"labels,omitempty"`

	// Label is the label to count (event_count).
	Label string `yaml:"label,omitempty"`

	// Field and Date select a counter; Date defaults to the last day.
	Field string `yaml:"field,omitempty"`
	Date  string `yaml:"date,omitempty"`

	// Kind, Target and Value select actions (action_count).
	Kind   string `yaml:"kind,omitempty"`
	Target string `yaml:"target,omitempty"`
	Value  string `yaml:"value,omitempty"`

	// Count is the expected number (event_count, action_count) or counter
	// value (counter).
	Count int `yaml:"count"`
}

// Assertion type constants.
const (
	AssertEventOrder  = "event_order"
	AssertEventCount  = "event_count"
	AssertCounter     = "counter"
	AssertActionCount = "action_count"
	AssertOutputsLow  = "outputs_low"
)

// counterFields are the statistics columns a counter assertion can name.
var counterFields = map[string]bool{
	"entries":          true,
	"entrance_rewards": true,
	"head_fixes":       true,
	"head_fix_rewards": true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes a scenario with strict field checking.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Start.IsZero() {
		return fmt.Errorf("start is required")
	}
	if s.Stop <= 0 {
		return fmt.Errorf("stop must be positive")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, d := range s.Draws {
		if d < 0 || d >= 1 {
			return fmt.Errorf("draws[%d]: %g is outside [0,1)", i, d)
		}
	}

	for i, v := range s.Visits {
		if v.Leave <= v.Arrive {
			return fmt.Errorf("visits[%d]: leave must be after arrive", i)
		}
		for j, c := range v.Contacts {
			if c.To <= c.From {
				return fmt.Errorf("visits[%d].contacts[%d]: to must be after from", i, j)
			}
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertEventOrder:
		if len(a.Labels) == 0 {
			return fmt.Errorf("assertions[%d]: labels list is required for event_order", index)
		}
	case AssertEventCount:
		if a.Label == "" {
			return fmt.Errorf("assertions[%d]: label is required for event_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertCounter:
		if a.Tag == nil {
			return fmt.Errorf("assertions[%d]: tag is required for counter", index)
		}
		if !counterFields[a.Field] {
			return fmt.Errorf("assertions[%d]: unknown counter field %q", index, a.Field)
		}
	case AssertActionCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for action_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for action_count", index)
		}
	case AssertOutputsLow:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
