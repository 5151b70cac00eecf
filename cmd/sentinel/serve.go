package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xoelrdgz/sentinel/internal/adapters/input"
	"github.com/xoelrdgz/sentinel/internal/adapters/output"
	"github.com/xoelrdgz/sentinel/internal/app"
	"github.com/xoelrdgz/sentinel/internal/domain"
	"github.com/xoelrdgz/sentinel/internal/ports"
	"github.com/xoelrdgz/sentinel/internal/tui"
)

var (
	replayPath   string
	replayFormat string
	replayFollow bool
	loadEnabled  bool
	jsonOut      bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway with the live dashboard",
	Long: `Run the gateway engine until interrupted. Traffic comes from a replay
file, the built-in load generator, or both.

Examples:
  sentinel serve --load --load-rps 5
  sentinel serve --replay ./requests.jsonl --follow
  sentinel serve --replay /var/log/nginx/access.log --format combined --no-tui
  sentinel serve --load --load-malicious --json`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&replayPath, "replay", "", "request file to replay (JSON lines or combined log format)")
	f.StringVar(&replayFormat, "format", "auto", "replay format: auto, json or combined")
	f.BoolVar(&replayFollow, "follow", false, "keep following the replay file for appended lines")
	f.BoolVar(&loadEnabled, "load", false, "drive traffic with the load generator")
	f.Int("load-rps", 1, "load generator requests per second (1-10)")
	f.String("load-identity", "zap", "identity the load generator acts as")
	f.Bool("load-self-limit", false, "back off after repeated 429 responses")
	f.Bool("load-malicious", false, "send the injection test body")
	f.BoolVar(&jsonOut, "json", false, "write log entries as JSON to stdout")

	_ = viper.BindPFlag("load.rps", f.Lookup("load-rps"))
	_ = viper.BindPFlag("load.identity", f.Lookup("load-identity"))
	_ = viper.BindPFlag("load.self_limit", f.Lookup("load-self-limit"))
	_ = viper.BindPFlag("load.malicious", f.Lookup("load-malicious"))
}

func runServe(cmd *cobra.Command, args []string) error {
	headless := noTUI || !viper.GetBool("tui.enabled")
	setupLogging(headless || consoleLog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.close()

	readers, mode, err := buildReaders()
	if err != nil {
		return err
	}
	var drivers []ports.TrafficDriver
	if loadEnabled {
		gen, err := input.NewLoadGenerator(eng.gw, input.LoadConfig{
			RPS:       viper.GetInt("load.rps"),
			Identity:  viper.GetString("load.identity"),
			Method:    viper.GetString("load.method"),
			Endpoint:  viper.GetString("load.endpoint"),
			UseToken:  viper.GetBool("load.use_token"),
			SelfLimit: viper.GetBool("load.self_limit"),
			Malicious: viper.GetBool("load.malicious"),
		})
		if err != nil {
			return err
		}
		drivers = append(drivers, gen)
		mode = joinMode(mode, "LOAD")
	}

	if sink, err := buildJSONSink(); err != nil {
		return err
	} else if sink != nil {
		eng.gw.Subscribe(sink)
		defer sink.Close()
	}

	runner := app.NewRunner(eng.gw, readers, drivers, eng.persister, app.RunnerConfig{Workers: workerConfig()})

	var prom *output.PrometheusMetrics
	if viper.GetBool("output.metrics.enabled") {
		prom = output.NewPrometheusMetrics("sentinel", eng.gw, runner.RuntimeMetrics())
		eng.gw.AddObserver(prom)
		health := output.NewHealthChecker(runner.Pool(), eng.persister, eng.gw, output.DefaultHealthCheckerConfig())
		metricsConfig := output.MetricsConfig{Port: viper.GetString("output.metrics.port"), Path: "/metrics"}
		if err := prom.StartServer(metricsConfig, health); err != nil {
			log.Warn().Err(err).Msg("Failed to start metrics server")
		}
		defer prom.StopServer()
	}

	if viper.ConfigFileUsed() != "" {
		app.NewConfigWatcher(nil, eng.gw).StartWatching()
	}

	log.Info().
		Str("mode", mode).
		Int("workers", workerConfig().WorkerCount).
		Bool("tui", !headless).
		Str("store", viper.GetString("storage.driver")).
		Msg("Sentinel started")

	if headless {
		eng.gw.Subscribe(consoleSubscriber{})
		return runner.Run(ctx)
	}

	// Stderr shares the terminal with the dashboard from here on.
	if zerolog.GlobalLevel() < zerolog.ErrorLevel {
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	}

	tuiApp := tui.NewApp(eng.gw, eng.gw)
	tuiApp.SetMode(mode)
	eng.gw.Subscribe(tuiApp)

	if err := runner.Start(ctx); err != nil {
		return err
	}

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tuiApp.SendRuntime(runner.Metrics())
				if prom != nil {
					prom.SetQueueSize(runner.Pool().QueueLength())
				}
			}
		}
	}()

	var tuiErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("TUI panic recovered")
				tuiErr = fmt.Errorf("TUI panic: %v", r)
			}
		}()
		tuiErr = tuiApp.Run()
	}()

	cancel()
	log.Info().Msg("Shutting down...")

	shutdownDone := make(chan struct{})
	go func() {
		runner.Stop()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		log.Debug().Msg("Shutdown complete")
	case <-time.After(5 * time.Second):
		log.Warn().Msg("Shutdown timeout, forcing exit")
	}

	return tuiErr
}

func buildReaders() ([]ports.RequestReader, string, error) {
	if replayPath == "" {
		return nil, "", nil
	}
	parser, err := input.NewParser(replayFormat)
	if err != nil {
		return nil, "", err
	}
	tailer := input.NewReplayTailer(replayPath, parser, input.ReplayConfig{
		BufferSize: viper.GetInt("workers.buffer_size"),
		Follow:     replayFollow,
	})
	return []ports.RequestReader{tailer}, "REPLAY " + filepath.Base(replayPath), nil
}

func buildJSONSink() (*output.JSONLogSink, error) {
	if !jsonOut && !viper.GetBool("output.json.enabled") {
		return nil, nil
	}
	cfg := output.JSONLogSinkConfig{
		Stdout:      jsonOut || viper.GetBool("output.json.stdout"),
		BlockedOnly: viper.GetBool("output.json.blocked_only"),
	}
	if path := viper.GetString("output.json.path"); path != "" && !jsonOut {
		cfg.FilePath = path
		cfg.Stdout = false
	}
	sink, err := output.NewJSONLogSink(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create JSON log sink: %w", err)
	}
	return sink, nil
}

func joinMode(a, b string) string {
	if a == "" {
		return b
	}
	return a + "+" + b
}

// consoleSubscriber logs refused requests when no dashboard is attached.
type consoleSubscriber struct{}

func (consoleSubscriber) OnLogEntry(entry *domain.LogEntry) {
	ev := log.Debug()
	if entry.Blocked() {
		ev = log.Info()
	}
	ev.Str("ip", entry.ClientIP).
		Str("user", entry.Username).
		Str("endpoint", entry.Endpoint).
		Int("status", entry.Status).
		Str("threat", entry.ThreatDetected).
		Msg(entry.Details)
}
