package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docingest/internal/config"
	logpkg "github.com/kailas-cloud/docingest/internal/logger"
	"github.com/kailas-cloud/docingest/internal/metrics"
	"github.com/kailas-cloud/docingest/internal/version"
)

// app carries what every subcommand needs once the root has run.
type app struct {
	configPath string
	env        string
	logLevel   string

	cfg    config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "docingest",
		Short: "Turn documentation folders into searchable vector stores",
		Long: `docingest reads documentation folders, groups the text into token-bounded
chunks and stores their embeddings in FAISS files, S3, Elasticsearch or Redis.
It can also generate Markdown documentation with a chat model and serve
similarity search over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default config/<env>.yaml)")
	cmd.PersistentFlags().StringVar(&a.env, "env", config.GetEnv(), "environment: local, dev, prod")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log level: debug, info, warn, error")

	cmd.AddCommand(
		newIngestCmd(a),
		newServeCmd(a),
		newUploadCmd(a),
		newVersionCmd(),
	)
	return cmd
}

func (a *app) init() error {
	var err error
	if a.configPath != "" {
		a.cfg, err = config.LoadFile(a.configPath)
	} else {
		a.cfg, err = config.Load(a.env)
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := a.cfg.Logging.Level
	if a.logLevel != "" {
		level = a.logLevel
	}
	a.logger, err = logpkg.NewLogger(a.env, level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterIngestMetrics()

	a.logger.Debug("Configuration loaded",
		zap.String("version", version.Version),
		zap.String("env", a.env),
		zap.String("backend", a.cfg.VectorStore.Backend),
		zap.String("embeddings", a.cfg.Embedding.Name),
	)
	return nil
}
