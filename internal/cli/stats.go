package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/headfix/internal/session"
	"github.com/roach88/headfix/internal/subject"
)

// StatsOptions holds flags for the stats command.
type StatsOptions struct {
	*RootOptions
	Cage string
	Date string
}

// StatsRow is one subject's counters.
type StatsRow struct {
	Tag             string `json:"tag"`
	Entries         int    `json:"entries"`
	EntranceRewards int    `json:"entrance_rewards"`
	HeadFixes       int    `json:"head_fixes"`
	HeadFixRewards  int    `json:"head_fix_rewards"`
}

// StatsResult holds a day's counters.
type StatsResult struct {
	File     string     `json:"file"`
	Subjects []StatsRow `json:"subjects"`
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stats [stats-file]",
		Short: "Show a day's per-subject counters",
		Long: `Show the per-subject counters of one day.

Pass the statistics file directly, or the cage settings and a date
(YYYYMMDD) to locate it under the cage's data path.

Examples:
  headfix stats /data/20240305/cage1/TextFiles/quickStats_cage1_20240305.txt
  headfix stats --cage cage.jsonc --date 20240305 --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Cage, "cage", "", "path to cage settings")
	cmd.Flags().StringVar(&opts.Date, "date", "", "day to show (YYYYMMDD), with --cage")

	return cmd
}

func runStats(opts *StatsOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	path, err := statsPath(opts, args)
	if err != nil {
		return err
	}
	formatter.VerboseLog("Reading %s", path)

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewExitError(ExitCommandError, fmt.Sprintf("statistics file not found: %s", path))
		}
		return WrapExitError(ExitCommandError, "failed to open statistics file", err)
	}
	defer f.Close()

	reg, err := subject.ReadStats(f)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read statistics", err)
	}

	if opts.Format == "json" {
		result := StatsResult{File: path, Subjects: make([]StatsRow, 0, reg.Len())}
		for _, s := range reg.Subjects() {
			c := s.Counts()
			result.Subjects = append(result.Subjects, StatsRow{
				Tag:             fmt.Sprintf("%013d", s.Tag()),
				Entries:         c.Entries,
				EntranceRewards: c.EntranceRewards,
				HeadFixes:       c.HeadFixes,
				HeadFixRewards:  c.HeadFixRewards,
			})
		}
		return formatter.Success(result)
	}

	if reg.Len() == 0 {
		return formatter.Success("No subjects recorded.")
	}
	return formatter.Success(strings.Join(reg.Summary(), "\n"))
}

func statsPath(opts *StatsOptions, args []string) (string, error) {
	switch {
	case len(args) == 1 && opts.Cage == "":
		return args[0], nil
	case len(args) == 0 && opts.Cage != "" && opts.Date != "":
		cage, err := loadCage(opts.Cage)
		if err != nil {
			return "", err
		}
		return session.Layout{DataPath: cage.DataPath, CageID: cage.CageID}.StatsPath(opts.Date), nil
	default:
		return "", NewExitError(ExitCommandError, "pass a statistics file, or --cage with --date")
	}
}
