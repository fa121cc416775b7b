package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/headfix/internal/archive"
	"github.com/roach88/headfix/internal/config"
	"github.com/roach88/headfix/internal/controller"
	"github.com/roach88/headfix/internal/metrics"
	"github.com/roach88/headfix/internal/notify"
	"github.com/roach88/headfix/internal/reward"
	"github.com/roach88/headfix/internal/session"
	"github.com/roach88/headfix/internal/stimulus"
	"github.com/roach88/headfix/internal/trigger"
)

const shutdownTimeout = 5 * time.Second

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Cage        string
	Experiment  string
	Archive     string
	MetricsAddr string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the cage",
		Long: `Run the cage until interrupted.

Opens the GPIO, the tag reader and the camera, then waits for subjects.
SIGINT or SIGTERM stops the cage between visits; every output is driven
low and the day's files are closed before exiting.

Exit codes:
  0 - Stopped by signal
  2 - Startup failed or a fatal storage error occurred

Examples:
  headfix run --cage /etc/headfix/cage.jsonc
  headfix run --cage cage.jsonc --experiment protocol.yaml --archive headfix.db
  headfix run --cage cage.jsonc --metrics-addr :9110`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runCage(ctx, opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Cage, "cage", "", "path to cage settings (required)")
	_ = cmd.MarkFlagRequired("cage")
	cmd.Flags().StringVar(&opts.Experiment, "experiment", "", "path to experiment settings (default protocol if empty)")
	cmd.Flags().StringVar(&opts.Archive, "archive", "", "path to SQLite event archive (disabled if empty)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (disabled if empty)")

	return cmd
}

// systemRandom draws head-fix decisions from the process-wide generator.
type systemRandom struct{}

func (systemRandom) Float64() float64 { return rand.Float64() }

func runCage(ctx context.Context, opts *RunOptions, cmd *cobra.Command) error {
	logger := opts.Logger(cmd.ErrOrStderr())
	console := cmd.OutOrStdout()

	cage, err := loadCage(opts.Cage)
	if err != nil {
		return err
	}
	exp, err := loadExperiment(opts.Experiment)
	if err != nil {
		return err
	}
	params, err := exp.CameraParams()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid camera settings", err)
	}

	gpio, act, err := actuators(cage, logger)
	if err != nil {
		return err
	}
	defer closeLogged(logger, "gpio", gpio)

	tags, err := devices.Tags(cage, logger)
	if err != nil {
		return hardwareError("failed to open tag reader", err)
	}
	defer closeLogged(logger, "tag reader", tags)

	cam, err := devices.Camera(params, logger)
	if err != nil {
		return hardwareError("failed to set up camera", err)
	}

	rec := metrics.New()
	ledger := reward.NewLedger(exp.DefaultReward(), act, devices.Clock,
		reward.WithObserver(rec.Reward), reward.WithLogger(logger))
	exp.DefineRewards(ledger)

	stim, err := stimulus.New(exp.Stimulus.Name, exp.StimulusConfig(), stimulus.Deps{
		Ledger: ledger,
		Clock:  devices.Clock,
		Logger: logger,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up stimulus", err)
	}

	layout := session.Layout{DataPath: cage.DataPath, CageID: cage.CageID}
	if cage.DataOwner != "" {
		if layout.Owner, err = session.LookupOwner(cage.DataOwner); err != nil {
			return WrapExitError(ExitCommandError, "invalid data owner", err)
		}
	}
	opener := &session.Opener{
		Layout:  layout,
		Clock:   devices.Clock,
		Days:    exp.Days(),
		Console: console,
		Logger:  logger,
	}
	if opts.Archive != "" {
		arc, err := archive.Open(opts.Archive)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open archive", err)
		}
		defer closeLogged(logger, "archive", arc)
		opener.Archive = arc
	}

	deps := controller.Deps{
		IO:        gpio,
		Actuators: act,
		Tags:      tags,
		Camera:    cam,
		Stimulus:  stim,
		Ledger:    ledger,
		Days:      opener,
		Clock:     devices.Clock,
		Random:    systemRandom{},
		Metrics:   rec,
		Console:   console,
		Logger:    logger,
	}
	if err := wireAlerts(exp, cage, &deps, logger); err != nil {
		return err
	}
	if t, ok := deps.Trigger.(*trigger.UDP); ok {
		defer closeLogged(logger, "trigger", t)
	}

	ctrl, err := controller.New(exp.ControllerConfig(cage), deps)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start controller", err)
	}

	logger.Info("cage starting", "cage", cage.CageID, "stimulus", exp.Stimulus.Name, "data", cage.DataPath)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := ctrl.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if opts.MetricsAddr != "" {
		serveMetrics(gctx, g, opts.MetricsAddr, rec, logger)
	}
	if err := g.Wait(); err != nil {
		return WrapExitError(ExitCommandError, "cage stopped", err)
	}
	logger.Info("cage stopped", "cage", cage.CageID)
	return nil
}

// wireAlerts adds the optional notifier and trigger. Interfaces are only
// set when configured so the controller never sees a typed nil.
func wireAlerts(exp *config.Experiment, cage *config.Cage, deps *controller.Deps, logger *slog.Logger) error {
	if len(exp.Notify.Phones) > 0 {
		opts := []notify.Option{notify.WithLogger(logger)}
		if exp.Notify.URL != "" {
			opts = append(opts, notify.WithURL(exp.Notify.URL))
		}
		deps.Notifier = notify.NewTextbelt(cage.CageID, exp.Notify.Phones, opts...)
	}
	if len(exp.Trigger.Peers) > 0 {
		t, err := trigger.DialUDP(exp.Trigger.Peers, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to set up trigger", err)
		}
		deps.Trigger = t
	}
	return nil
}

func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, rec *metrics.Recorder, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", rec.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: shutdownTimeout}

	g.Go(func() error {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
