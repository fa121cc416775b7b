package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/headfix/internal/reward"
)

// calibrationCategory names the pulses dispensed by the valve command.
const calibrationCategory = "calibration"

// ValveOptions holds flags for the valve command.
type ValveOptions struct {
	*RootOptions
	Cage     string
	Open     bool
	Close    bool
	Pulse    time.Duration
	Count    int
	Interval time.Duration
}

// ValveResult reports what the valve command did.
type ValveResult struct {
	Action   string        `json:"action"`
	Pulses   int           `json:"pulses,omitempty"`
	OpenTime time.Duration `json:"open_time_ns,omitempty"`
}

func (r ValveResult) String() string {
	if r.Pulses == 0 {
		return fmt.Sprintf("✓ valve %s", r.Action)
	}
	return fmt.Sprintf("✓ valve pulsed %d time(s), open %s in total", r.Pulses, r.OpenTime)
}

// NewValveCommand creates the valve command.
func NewValveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "valve",
		Short: "Open, close or pulse the reward solenoid",
		Long: `Open, close or pulse the reward solenoid.

--open leaves the valve open after the command exits, for flushing the
line. --pulse dispenses --count pulses spaced --interval apart, for
calibrating the volume per opening time.

Examples:
  headfix valve --cage cage.jsonc --open
  headfix valve --cage cage.jsonc --close
  headfix valve --cage cage.jsonc --pulse 50ms --count 100 --interval 200ms`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValve(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Cage, "cage", "", "path to cage settings (required)")
	_ = cmd.MarkFlagRequired("cage")
	cmd.Flags().BoolVar(&opts.Open, "open", false, "open the valve and leave it open")
	cmd.Flags().BoolVar(&opts.Close, "close", false, "close the valve")
	cmd.Flags().DurationVar(&opts.Pulse, "pulse", 0, "open the valve for this long")
	cmd.Flags().IntVar(&opts.Count, "count", 1, "number of pulses")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 500*time.Millisecond, "pause between pulses")
	cmd.MarkFlagsMutuallyExclusive("open", "close", "pulse")
	cmd.MarkFlagsOneRequired("open", "close", "pulse")

	return cmd
}

func runValve(opts *ValveOptions, cmd *cobra.Command) error {
	logger := opts.Logger(cmd.ErrOrStderr())
	formatter := opts.formatter(cmd)

	if !opts.Open && !opts.Close && opts.Pulse <= 0 {
		return NewExitError(ExitCommandError, "--pulse must be positive")
	}
	if opts.Count < 1 || opts.Interval < 0 {
		return NewExitError(ExitCommandError, "--count must be at least 1 and --interval must not be negative")
	}

	cage, err := loadCage(opts.Cage)
	if err != nil {
		return err
	}
	gpio, act, err := actuators(cage, logger)
	if err != nil {
		return err
	}
	defer closeLogged(logger, "gpio", gpio)

	switch {
	case opts.Open:
		if err := act.SetValve(true); err != nil {
			return WrapExitError(ExitFailure, "failed to open valve", err)
		}
		return formatter.Success(ValveResult{Action: "open"})
	case opts.Close:
		if err := act.SetValve(false); err != nil {
			return WrapExitError(ExitFailure, "failed to close valve", err)
		}
		return formatter.Success(ValveResult{Action: "closed"})
	}

	ledger := reward.NewLedger(opts.Pulse, act, devices.Clock, reward.WithLogger(logger))
	ledger.Define(calibrationCategory, opts.Pulse)
	err = act.Guard(func() error {
		for i := range opts.Count {
			if i > 0 {
				devices.Clock.Sleep(opts.Interval)
			}
			if _, err := ledger.Dispense(calibrationCategory); err != nil {
				return err
			}
			formatter.VerboseLog("pulse %d/%d", i+1, opts.Count)
		}
		return nil
	})
	if err != nil {
		return WrapExitError(ExitFailure, "pulse failed", err)
	}
	return formatter.Success(ValveResult{
		Action:   "pulsed",
		Pulses:   ledger.Count(calibrationCategory),
		OpenTime: ledger.TotalOpenDuration(),
	})
}
