package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/headfix/internal/config"
	"github.com/roach88/headfix/internal/hw"
	"github.com/roach88/headfix/internal/reward"
)

// HWTestOptions holds flags for the hwtest command.
type HWTestOptions struct {
	*RootOptions
	Cage       string
	Experiment string
	Hold       time.Duration
	Wait       time.Duration
	Category   string
}

// HWTestResult reports one device check.
type HWTestResult struct {
	Device string `json:"device"`
	Detail string `json:"detail"`
}

func (r HWTestResult) String() string {
	return fmt.Sprintf("✓ %s: %s", r.Device, r.Detail)
}

var hwDevices = []string{"pistons", "led", "reward", "contact", "tag"}

// NewHWTestCommand creates the hwtest command.
func NewHWTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HWTestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "hwtest <pistons|led|reward|contact|tag>",
		Short: "Exercise one piece of cage hardware",
		Long: `Exercise one piece of cage hardware and report what happened.

  pistons  extend the head clamp for --hold, then release it
  led      light the LED for --hold
  reward   dispense one reward of --category
  contact  read both sensors, then wait up to --wait for a contact change
  tag      read the tag of the subject in range

Every output is driven low afterwards, even on failure.

Examples:
  headfix hwtest pistons --cage cage.jsonc --hold 2s
  headfix hwtest reward --cage cage.jsonc --experiment protocol.yaml --category task
  headfix hwtest contact --cage cage.jsonc --wait 30s`,
		Args:          cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs:     hwDevices,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHWTest(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Cage, "cage", "", "path to cage settings (required)")
	_ = cmd.MarkFlagRequired("cage")
	cmd.Flags().StringVar(&opts.Experiment, "experiment", "", "path to experiment settings (for reward durations)")
	cmd.Flags().DurationVar(&opts.Hold, "hold", time.Second, "how long pistons or LED stay on")
	cmd.Flags().DurationVar(&opts.Wait, "wait", 10*time.Second, "how long to wait for a contact change")
	cmd.Flags().StringVar(&opts.Category, "category", "entrance", "reward category to dispense")

	return cmd
}

func runHWTest(opts *HWTestOptions, device string, cmd *cobra.Command) error {
	logger := opts.Logger(cmd.ErrOrStderr())
	formatter := opts.formatter(cmd)

	cage, err := loadCage(opts.Cage)
	if err != nil {
		return err
	}
	gpio, act, err := actuators(cage, logger)
	if err != nil {
		return err
	}
	defer closeLogged(logger, "gpio", gpio)

	var detail string
	err = act.Guard(func() error {
		var err error
		switch device {
		case "pistons":
			detail, err = holdOutput(act.SetClamp, "clamp", opts.Hold)
		case "led":
			detail, err = holdOutput(act.SetLED, "LED", opts.Hold)
		case "reward":
			detail, err = dispenseOnce(opts, act, logger)
		case "contact":
			detail, err = watchContact(gpio, cage, opts.Wait)
		case "tag":
			detail, err = readOneTag(cage, logger)
		}
		return err
	})
	if err != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("%s test failed", device), err)
	}
	return formatter.Success(HWTestResult{Device: device, Detail: detail})
}

func holdOutput(set func(bool) error, name string, hold time.Duration) (string, error) {
	if err := set(true); err != nil {
		return "", err
	}
	devices.Clock.Sleep(hold)
	if err := set(false); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s on for %s", name, hold), nil
}

func dispenseOnce(opts *HWTestOptions, act *hw.Actuators, logger *slog.Logger) (string, error) {
	exp, err := loadExperiment(opts.Experiment)
	if err != nil {
		return "", err
	}
	ledger := reward.NewLedger(exp.DefaultReward(), act, devices.Clock, reward.WithLogger(logger))
	exp.DefineRewards(ledger)
	d, err := ledger.Dispense(opts.Category)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s reward, valve open %s", opts.Category, d), nil
}

func watchContact(gpio hw.DigitalIO, cage *config.Cage, wait time.Duration) (string, error) {
	presence, contact := cage.TIRPin.Pin(), cage.ContactPin.Pin()
	for _, pin := range []hw.Pin{presence, contact} {
		if err := gpio.SetDirection(pin, hw.Input); err != nil {
			return "", err
		}
	}
	inRange, err := gpio.Read(presence)
	if err != nil {
		return "", err
	}
	before, err := gpio.Read(contact)
	if err != nil {
		return "", err
	}
	changed, err := gpio.WaitForEdge(contact, hw.BothEdges, wait)
	if err != nil {
		return "", err
	}
	if !changed {
		return fmt.Sprintf("tag-in-range %s, contact %s, no change in %s", inRange, before, wait), nil
	}
	after, err := gpio.Read(contact)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("tag-in-range %s, contact %s, changed to %s", inRange, before, after), nil
}

func readOneTag(cage *config.Cage, logger *slog.Logger) (string, error) {
	tags, err := devices.Tags(cage, logger)
	if err != nil {
		return "", err
	}
	defer closeLogged(logger, "tag reader", tags)
	tag, err := tags.ReadTag()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%013d", tag), nil
}
