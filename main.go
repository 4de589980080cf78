package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"writingway/config"
	"writingway/generator"
	"writingway/mention"
	"writingway/store"
)

// app carries what every command needs once flags are parsed.
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	store *store.Store
}

type rootFlags struct {
	configPath string
	database   string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	var flags rootFlags
	a := &app{}

	cmd := &cobra.Command{
		Use:           "writingway",
		Short:         "Writingway - beat-driven scene drafting with an AI backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(flags)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to config.yaml (defaults apply when empty)")
	cmd.PersistentFlags().StringVar(&flags.database, "db", "", "sqlite database path (overrides config)")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logs")

	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newGenerateCmd(a))
	cmd.AddCommand(newHistoryCmd(a))
	cmd.AddCommand(newExportCmd(a))
	cmd.AddCommand(newProjectCmd(a))
	cmd.AddCommand(newChapterCmd(a))
	cmd.AddCommand(newSceneCmd(a))
	cmd.AddCommand(newCompendiumCmd(a))
	cmd.AddCommand(newPromptCmd(a))
	return cmd
}

func (a *app) open(flags rootFlags) error {
	var (
		cfg *config.Config
		err error
	)
	if flags.configPath != "" {
		cfg, err = config.Load(flags.configPath)
	} else {
		cfg, err = config.Default()
	}
	if err != nil {
		return err
	}
	if flags.database != "" {
		cfg.Database = flags.database
	}
	if flags.verbose {
		cfg.LogLevel = "debug"
	}
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Database, log.Named("store"))
	if err != nil {
		_ = log.Sync()
		return err
	}
	a.cfg, a.log, a.store = cfg, log, st
	return nil
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("closing store", zap.Error(err))
		}
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	log, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return log, nil
}

// agent assembles the generation pipeline over the app's store.
func (a *app) agent(mock bool) (*generator.Agent, error) {
	streamer, err := buildStreamer(a.cfg.AI, mock)
	if err != nil {
		return nil, err
	}
	var ready generator.Readiness = generator.AlwaysReady
	if !mock {
		ready = generator.NewBackendCheck(a.cfg.AI, nil)
	}
	genLog := a.log.Named("generator")
	return generator.NewAgent(streamer, generator.AgentDeps{
		Resolver:      generator.NewContextResolver(a.store, mention.New(a.store, a.log.Named("mention")), genLog),
		Prompts:       a.store,
		History:       a.store,
		Ready:         ready,
		MaxSceneChars: a.cfg.Generation.MaxSceneChars,
		Log:           genLog,
	})
}

// buildStreamer picks the backend client for the configured provider. Every
// supported provider speaks the OpenAI chat-completions protocol.
func buildStreamer(cfg config.AIConfig, mock bool) (generator.Streamer, error) {
	if mock {
		return &generator.MockLLM{}, nil
	}
	settings := &generator.LLMSettings{
		Provider: cfg.Provider,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
		Timeout:  cfg.Timeout,
	}
	if cfg.Mode == config.ModeLocal {
		settings.Provider = "local"
		settings.BaseURL = strings.TrimRight(cfg.Endpoint, "/") + "/v1/"
		if settings.Model == "" {
			settings.Model = "local-model"
		}
		return generator.NewOpenAIStreamerFromConfig(settings)
	}
	switch cfg.Provider {
	case "openai", "lmstudio":
		return generator.NewOpenAIStreamerFromConfig(settings)
	case "deepseek":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("ai provider deepseek requires base_url (OpenAI-compatible endpoint)")
		}
		return generator.NewOpenAIStreamerFromConfig(settings)
	default:
		return nil, fmt.Errorf("ai provider %s not supported", cfg.Provider)
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
