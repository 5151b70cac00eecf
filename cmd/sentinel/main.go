package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xoelrdgz/sentinel/internal/adapters/storage"
	"github.com/xoelrdgz/sentinel/internal/app"
	"github.com/xoelrdgz/sentinel/internal/gateway"
	"github.com/xoelrdgz/sentinel/internal/ports"
)

var (
	cfgFile    string
	noTUI      bool
	storeFlag  string
	workers    int
	consoleLog bool

	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Simulated API gateway with threat response",
	Long: `Sentinel evaluates simulated API requests the way a security gateway
would and keeps the operator dashboard fed with the results.

Every request passes through:
  - Ban screening of the source address
  - Sliding-window rate limiting per source
  - Single-use bearer token authentication
  - Violation escalation with automatic bans

State (stats, logs, profiles, bans, config) survives restarts in an
embedded bbolt file or a shared Redis instance.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Sentinel %s\n", Version)
		fmt.Printf("Commit:   %s\n", Commit)
		fmt.Printf("Built:    %s\n", BuildTime)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./configs/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&storeFlag, "store", "", "storage driver: bolt, redis or memory")
	rootCmd.PersistentFlags().BoolVar(&noTUI, "no-tui", false, "disable TUI, log to the console")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", 0, "number of worker goroutines")
	rootCmd.PersistentFlags().BoolVar(&consoleLog, "console", false, "human-readable log output")

	_ = viper.BindPFlag("storage.driver", rootCmd.PersistentFlags().Lookup("store"))

	rootCmd.AddCommand(serveCmd, sendCmd, replayCmd, clientsCmd, versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/sentinel")
	}

	app.SetGatewayDefaults(viper.GetViper())
	viper.SetDefault("storage.driver", storage.DriverBolt)
	viper.SetDefault("storage.bolt.path", "./data/sentinel.db")
	viper.SetDefault("storage.redis.url", "redis://localhost:6379/0")
	viper.SetDefault("storage.redis.prefix", "sentinel")
	viper.SetDefault("workers.count", 8)
	viper.SetDefault("workers.buffer_size", 1024)
	viper.SetDefault("workers.spill_path", "")
	viper.SetDefault("workers.quarantine_path", "")
	viper.SetDefault("load.rps", 1)
	viper.SetDefault("load.identity", "zap")
	viper.SetDefault("load.method", "GET")
	viper.SetDefault("load.endpoint", "/api/v1/users/data")
	viper.SetDefault("load.use_token", true)
	viper.SetDefault("load.self_limit", false)
	viper.SetDefault("load.malicious", false)
	viper.SetDefault("tui.enabled", true)
	viper.SetDefault("output.json.enabled", false)
	viper.SetDefault("output.json.stdout", false)
	viper.SetDefault("output.json.path", "")
	viper.SetDefault("output.json.blocked_only", false)
	viper.SetDefault("output.metrics.enabled", true)
	viper.SetDefault("output.metrics.port", ":9090")
	viper.SetDefault("logging.level", "info")

	viper.SetEnvPrefix("SENTINEL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warn().Err(err).Msg("Error reading config file")
		}
	}
}

// setupLogging configures the global logger. With the dashboard up the
// terminal belongs to bubbletea, so logs go to stderr as JSON unless the
// console writer is requested.
func setupLogging(console bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	switch viper.GetString("logging.level") {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if console {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
		})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

// engine bundles what every command needs: the evaluator restored from the
// store and the persister that writes it back.
type engine struct {
	gw        *gateway.Evaluator
	store     ports.DocumentStore
	persister *app.Persister
}

func openEngine(ctx context.Context) (*engine, error) {
	if err := app.ValidateSettings(viper.GetViper()); err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, storage.Config{
		Driver: viper.GetString("storage.driver"),
		Bolt:   storage.BoltConfig{Path: viper.GetString("storage.bolt.path")},
		Redis: storage.RedisConfig{
			URL:    viper.GetString("storage.redis.url"),
			Prefix: viper.GetString("storage.redis.prefix"),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	// A valid persisted config document wins over the file; the file seeds
	// the first run and later edits arrive through the hot-reload watcher.
	state := app.LoadStateWithConfig(ctx, store, app.GatewayConfigFrom(viper.GetViper()))

	gw := gateway.NewEvaluator(gateway.Options{}, state)
	log.Debug().
		Str("driver", viper.GetString("storage.driver")).
		Int64("total_requests", state.Stats.TotalRequests).
		Int("bans", len(state.BlockedIPs)).
		Msg("Gateway state restored")

	return &engine{gw: gw, store: store, persister: app.NewPersister(store, gw)}, nil
}

// close flushes pending state and releases the store. Commands that
// mutate the engine outside a Runner mark the persister dirty themselves.
func (e *engine) close() {
	if err := e.persister.Flush(context.Background()); err != nil {
		log.Error().Err(err).Msg("Failed to persist gateway state")
	}
	if err := e.store.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close state store")
	}
}

func workerConfig() app.WorkerPoolConfig {
	cfg := app.WorkerPoolConfig{
		WorkerCount:    viper.GetInt("workers.count"),
		BufferSize:     viper.GetInt("workers.buffer_size"),
		SpillPath:      viper.GetString("workers.spill_path"),
		QuarantinePath: viper.GetString("workers.quarantine_path"),
	}
	if workers > 0 {
		cfg.WorkerCount = workers
	}
	return cfg
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
