package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xoelrdgz/sentinel/internal/adapters/input"
	"github.com/xoelrdgz/sentinel/internal/app"
	"github.com/xoelrdgz/sentinel/internal/ports"
)

var oneShotFormat string

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Evaluate every request in a file and exit",
	Long: `Replay a request file through the worker pool once, from the first line
to the last, then print the resulting gateway totals.

Lines are JSON request payloads or combined log format access-log lines.

Examples:
  sentinel replay ./testdata/burst.jsonl
  sentinel replay /var/log/nginx/access.log --format combined --store memory`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&oneShotFormat, "format", "auto", "line format: auto, json or combined")
}

func runReplay(cmd *cobra.Command, args []string) error {
	setupLogging(true)

	parser, err := input.NewParser(oneShotFormat)
	if err != nil {
		return err
	}

	ctx := context.Background()
	eng, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.close()

	tailer := input.NewReplayTailer(args[0], parser, input.ReplayConfig{
		BufferSize: viper.GetInt("workers.buffer_size"),
	})
	runner := app.NewRunner(eng.gw, []ports.RequestReader{tailer}, nil, eng.persister, app.RunnerConfig{Workers: workerConfig()})

	before := eng.gw.Stats()
	if err := runner.Start(ctx); err != nil {
		return err
	}
	runner.WaitReaders()
	runner.Stop()

	after := eng.gw.Stats()
	log.Info().
		Int64("lines", tailer.Lines()).
		Int64("rejected", tailer.Rejected()).
		Int64("truncated", tailer.Truncated()).
		Int64("evaluated", runner.Pool().Evaluated()).
		Msg("Replay finished")

	fmt.Printf("lines:     %d (%d rejected, %d truncated)\n", tailer.Lines(), tailer.Rejected(), tailer.Truncated())
	fmt.Printf("evaluated: %d\n", after.TotalRequests-before.TotalRequests)
	fmt.Printf("blocked:   %d\n", after.BlockedRequests-before.BlockedRequests)
	fmt.Printf("bans:      %d\n", after.GlobalBans)
	fmt.Printf("avg ms:    %d\n", after.AvgLatency)
	return nil
}
