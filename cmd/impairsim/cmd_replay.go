package main

import (
	"fmt"

	"github.com/nvandessel/impairsim/internal/pipeline"
	"github.com/nvandessel/impairsim/internal/record"
	"github.com/nvandessel/impairsim/internal/tsmr"
	"github.com/spf13/cobra"
)

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Feed a recording through a bounded reorder buffer",
		Long: `Replay an arrival-ordered recording through a fixed-capacity
time-stamped measurement buffer. Records are released once the arrival
watermark has moved --window-ms past them. A record matching a buffered
one on ts_ms and id replaces it as a correction.

Examples:
  impairsim replay --input jit.jsonl --capacity 64 --window-ms 100
  impairsim replay --input jit.jsonl --output buffered.jsonl`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			input, _ := cmd.Flags().GetString("input")
			output, _ := cmd.Flags().GetString("output")
			capacity, _ := cmd.Flags().GetInt("capacity")
			window, _ := cmd.Flags().GetInt64("window-ms")
			if input == "" {
				return usagef("--input is required")
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			missing := record.MissingTimestamp(cfg.Loader.MissingTimestamp)
			seq, err := record.Load(input, record.ReaderOptions{MissingTimestamp: missing})
			if err != nil {
				return pipeline.ClassifyLoad(err)
			}

			var emitted []record.Record
			stats, err := tsmr.Replay(seq, tsmr.ReplayConfig{Capacity: capacity, WindowMS: window},
				func(rec record.Record) error {
					emitted = append(emitted, rec)
					return nil
				})
			if err != nil {
				return &usageError{err: err}
			}

			if output == "" {
				if err := record.Encode(cmd.OutOrStdout(), emitted); err != nil {
					return err
				}
			} else if _, err := record.WriteFile(output, emitted); err != nil {
				return err
			}

			errOut := cmd.ErrOrStderr()
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return writeJSON(errOut, stats)
			}
			fmt.Fprintf(errOut, "Replayed %d records: emitted=%d late=%d evicted=%d corrections=%d\n",
				stats.Arrived, stats.Emitted, stats.Late, stats.Evicted, stats.Corrections)
			return nil
		},
	}
	cmd.Flags().String("input", "", "Input JSONL recording (required)")
	cmd.Flags().String("output", "", "Output JSONL path (default stdout)")
	cmd.Flags().Int("capacity", 64, "Buffer capacity in records")
	cmd.Flags().Int64("window-ms", 100, "Reorder window in ms")
	return cmd
}
