package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/nvandessel/impairsim/internal/ledger"
	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recorded pipeline runs",
		Long: `List runs recorded in the ledger (runs.db). The ledger directory comes
from --ledger-dir, the ledger.dir config key, or IMPAIRSIM_LEDGER_DIR.

Examples:
  impairsim runs --ledger-dir .impairsim
  impairsim runs show 6f1c... --ledger-dir .impairsim`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLedger(cmd)
			if err != nil {
				return err
			}
			defer l.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			runs, err := l.List(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				if runs == nil {
					runs = []ledger.Run{}
				}
				return writeJSON(cmd.OutOrStdout(), runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tMODE\tSEED\tIN\tOUT\tDROPPED\tEXIT\tOUTPUT")
			for _, r := range runs {
				seed := "-"
				if r.Mode == "jitter" {
					seed = fmt.Sprint(r.Seed)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
					shortID(r.ID), r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Mode, seed,
					r.RecordsIn, r.RecordsOut, r.Dropped, r.ExitCode, r.Output)
			}
			return tw.Flush()
		},
	}
	cmd.PersistentFlags().String("ledger-dir", "", "Ledger directory containing runs.db")
	cmd.Flags().Int("limit", 20, "Maximum runs to list (0 for all)")

	cmd.AddCommand(newRunsShowCmd())
	return cmd
}

func newRunsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLedger(cmd)
			if err != nil {
				return err
			}
			defer l.Close()

			run, err := l.Get(cmd.Context(), args[0])
			if errors.Is(err, ledger.ErrNotFound) {
				return usagef("no run with id %s", args[0])
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), run)
		},
	}
}

func openLedger(cmd *cobra.Command) (*ledger.Ledger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	dir := cfg.Ledger.Dir
	if cmd.Flags().Changed("ledger-dir") {
		dir, _ = cmd.Flags().GetString("ledger-dir")
	}
	if dir == "" {
		return nil, usagef("no ledger configured; pass --ledger-dir or set ledger.dir")
	}
	return ledger.Open(dir)
}

// shortID abbreviates a run ID for table output.
func shortID(id string) string {
	const n = 8
	if len(id) <= n {
		return id
	}
	return id[:n]
}
