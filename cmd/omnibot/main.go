package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"omnibot/internal/bus"
	"omnibot/internal/channel"
	"omnibot/internal/config"
	"omnibot/internal/domain"
	"omnibot/internal/gateway"
	"omnibot/internal/knowledge"
	"omnibot/internal/outbox"
	"omnibot/internal/triage"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:     "omnibot",
		Short:   "omnibot: omnichannel message triage service",
		Long:    "omnibot classifies inbound messages, composes replies and queues them on the Redis outbox stream for delivery adapters.",
		Version: version,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.omnibot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(gatewayCmd())
	root.AddCommand(triageCmd())
	root.AddCommand(kbCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() *config.Config {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		cfg = config.Defaults()
	}
	return cfg
}

func levelFromConfig(cfg *config.Config) slog.Level {
	switch cfg.General.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config directory and default config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

// newSnippetProvider builds the configured provider: sqlite when a db path
// is set, otherwise an empty static provider. The returned closer may be nil.
func newSnippetProvider(cfg *config.Config) (domain.SnippetProvider, func() error, error) {
	if cfg.Knowledge.DBPath == "" {
		return knowledge.NewStatic(nil), nil, nil
	}
	store, err := knowledge.NewSQLiteStore(cfg.Knowledge.DBPath, cfg.Knowledge.TopK, logger)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func newClassifier(cfg *config.Config) (*triage.Classifier, error) {
	if cfg.Triage.RulesPath == "" {
		return triage.NewClassifier(nil), nil
	}
	rules, err := triage.LoadRules(cfg.Triage.RulesPath)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded rule policy file", "path", cfg.Triage.RulesPath, "rules", len(rules))
	return triage.NewClassifier(rules), nil
}

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Run the triage gateway (web intake + outbox publishing)",
		RunE:  runGateway,
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelFromConfig(cfg)}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messageBus := bus.New(100, logger)
	defer messageBus.Close()
	events := bus.NewEventBus(logger)

	provider, closeProvider, err := newSnippetProvider(cfg)
	if err != nil {
		return err
	}
	if closeProvider != nil {
		defer closeProvider()
	}

	classifier, err := newClassifier(cfg)
	if err != nil {
		return err
	}

	// Long-running mode owns one pooled broker connection for all publishes.
	broker := outbox.NewRedisBroker(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer broker.Close()

	publisher := outbox.New(outbox.Config{
		Stream: cfg.Redis.Stream,
		Broker: broker,
		Logger: logger,
	})

	orchestrator := triage.New(triage.Config{
		Classifier: classifier,
		Snippets:   provider,
		Outbox:     gateway.InstrumentPublisher(publisher, events),
		Logger:     logger,
	})

	loop := gateway.NewLoop(gateway.LoopConfig{
		Triager:     orchestrator,
		Bus:         messageBus,
		Events:      events,
		Logger:      logger,
		Concurrency: cfg.Triage.MaxConcurrent,
		Timeout:     time.Duration(cfg.Triage.ReplyTimeoutS) * time.Second,
	})

	if cfg.Channels.Web.Enabled {
		web := channel.NewWeb(channel.WebConfig{
			Host:         cfg.Channels.Web.Host,
			Port:         cfg.Channels.Web.Port,
			ReplyTimeout: time.Duration(cfg.Triage.ReplyTimeoutS) * time.Second,
			Logger:       logger,
		})
		if err := web.Start(ctx, messageBus); err != nil {
			return err
		}
		defer web.Stop()
	}

	logger.Info("omnibot gateway started", "stream", cfg.Redis.Stream)
	loop.Run(ctx)
	return nil
}

func triageCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "triage [text...]",
		Short: "Triage a single message and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()

			text := ""
			for i, a := range args {
				if i > 0 {
					text += " "
				}
				text += a
			}

			provider, closeProvider, err := newSnippetProvider(cfg)
			if err != nil {
				return err
			}
			if closeProvider != nil {
				defer closeProvider()
			}

			classifier, err := newClassifier(cfg)
			if err != nil {
				return err
			}

			var publisher triage.Publisher
			if dryRun {
				publisher = nopPublisher{}
			} else {
				// One-shot mode: the publisher dials and releases its own
				// connection within the call.
				publisher = outbox.New(outbox.Config{
					Stream:        cfg.Redis.Stream,
					RedisAddr:     cfg.Redis.Addr,
					RedisPassword: cfg.Redis.Password,
					RedisDB:       cfg.Redis.DB,
					Logger:        logger,
				})
			}

			orchestrator := triage.New(triage.Config{
				Classifier: classifier,
				Snippets:   provider,
				Outbox:     publisher,
				Logger:     logger,
			})

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			res, err := orchestrator.Triage(ctx, triage.Inbound{
				Text:    text,
				Channel: "web",
				From:    "cli:operator",
			})
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "skip the outbox publish")
	return cmd
}

// nopPublisher satisfies triage.Publisher for --dry-run.
type nopPublisher struct{}

func (nopPublisher) Publish(ctx context.Context, raw map[string]any) outbox.Result {
	return outbox.Result{OK: true, ID: "dry-run", TraceID: "dry-run"}
}
