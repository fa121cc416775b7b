package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/headfix/internal/config"
	"github.com/roach88/headfix/internal/stimulus"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Cage       string
	Experiment string
}

// ValidationResult summarizes valid settings.
type ValidationResult struct {
	Cage       string `json:"cage,omitempty"`
	Experiment string `json:"experiment,omitempty"`
	Stimulus   string `json:"stimulus,omitempty"`
	DayStart   int    `json:"day_start_hour"`
}

func (r ValidationResult) String() string {
	msg := "✓ Settings valid"
	if r.Cage != "" {
		msg += fmt.Sprintf("\n  cage %s", r.Cage)
	}
	return msg + fmt.Sprintf("\n  stimulus %s, day starts at %02d:00", r.Stimulus, r.DayStart)
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check cage and experiment settings",
		Long: `Check cage and experiment settings without touching hardware.

The cage file must name every pin, the serial port and the data path.
The experiment file is checked against its schema, then the stimulus and
camera blocks are decoded as the run command would.

Examples:
  headfix validate --cage cage.jsonc
  headfix validate --cage cage.jsonc --experiment protocol.yaml --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Cage, "cage", "", "path to cage settings")
	cmd.Flags().StringVar(&opts.Experiment, "experiment", "", "path to experiment settings")

	return cmd
}

func runValidate(opts *ValidateOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	if opts.Cage == "" && opts.Experiment == "" {
		return NewExitError(ExitCommandError, "nothing to validate: pass --cage and/or --experiment")
	}

	var result ValidationResult
	if opts.Cage != "" {
		formatter.VerboseLog("Checking cage settings %s", opts.Cage)
		cage, err := config.LoadCage(opts.Cage)
		if err != nil {
			return formatter.Fail(ErrCodeCage, "cage settings invalid", err)
		}
		result.Cage = cage.CageID
	}

	exp := config.DefaultExperiment()
	if opts.Experiment != "" {
		formatter.VerboseLog("Checking experiment settings %s", opts.Experiment)
		loaded, err := config.LoadExperiment(opts.Experiment)
		if err != nil {
			return formatter.Fail(ErrCodeExperiment, "experiment settings invalid", err)
		}
		exp = *loaded
		result.Experiment = opts.Experiment
	}
	if err := stimulus.Validate(exp.Stimulus.Name, exp.StimulusConfig()); err != nil {
		return formatter.Fail(ErrCodeStimulus, "stimulus settings invalid", err)
	}
	if _, err := exp.CameraParams(); err != nil {
		return formatter.Fail(ErrCodeCamera, "camera settings invalid", err)
	}

	result.Stimulus = exp.Stimulus.Name
	result.DayStart = exp.DayStartHour
	return formatter.Success(result)
}
