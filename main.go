package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fabfab/docchat/chat"
	"github.com/fabfab/docchat/config"
	"github.com/fabfab/docchat/corpus"
	"github.com/fabfab/docchat/database"
	"github.com/fabfab/docchat/gateway"
	"github.com/fabfab/docchat/knowledge"
	"github.com/fabfab/docchat/llm"
	"github.com/fabfab/docchat/session"
	"github.com/fabfab/docchat/transcript"
)

var (
	verbose    bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "docchat",
	Short: "Chat with the documents indexed by a Pathway retrieval backend",
	Long: `docchat answers questions about the documents a Pathway vector store
indexes from synced folders, citing the files each answer was built from.

  docchat serve      # web chat and corpus status on LISTEN_ADDR
  docchat ask        # chat from the terminal
  docchat status     # show the indexed files once`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (environment overrides it)")
	rootCmd.AddCommand(serveCmd, askCmd, statusCmd)
}

func loadConfig() (config.Config, error) {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	fields := []zap.Field{zap.String("service.name", cfg.Telemetry.AppName)}
	if cfg.Telemetry.InstanceID != "" {
		fields = append(fields, zap.String("service.instance.id", cfg.Telemetry.InstanceID))
	}
	logger = logger.With(fields...)

	if cfg.Telemetry.Endpoint != "" {
		logger.Info("telemetry export is not built in; logs carry the service fields instead",
			zap.String("endpoint", cfg.Telemetry.Endpoint))
	}
	return logger, nil
}

// app holds the components shared by the chat commands.
type app struct {
	controller  *session.Controller
	poller      *corpus.Poller
	transcripts *transcript.PostgresRecorder
	graph       *knowledge.Graph
	closers     []func()
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a := &app{}
	ready := false
	defer func() {
		if !ready {
			a.Close()
		}
	}()

	gw := gateway.NewFromConfig(cfg, logger.Named("gateway"))
	model, err := llm.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("llm setup: %w", err)
	}
	svc := chat.NewService(gw, model, chat.Config{
		SystemPrompt: cfg.SystemPrompt,
		RetrieveK:    cfg.RetrieveK,
	}, logger.Named("chat"))

	var recorders transcript.Fanout
	if cfg.PostgresDSN != "" {
		pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres connection: %w", err)
		}
		a.closers = append(a.closers, pool.Close)

		rec, err := transcript.NewPostgresRecorder(ctx, pool, logger.Named("transcript"))
		if err != nil {
			return nil, err
		}
		a.transcripts = rec
		recorders = append(recorders, rec)
	}
	if cfg.Neo4jURI != "" {
		driver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
		if err != nil {
			return nil, fmt.Errorf("neo4j connection: %w", err)
		}
		a.closers = append(a.closers, func() { _ = driver.Close(context.Background()) })

		a.graph = knowledge.NewGraph(driver)
		recorders = append(recorders, a.graph)
	}

	var recorder session.Recorder
	if len(recorders) > 0 {
		recorder = recorders
	}
	a.controller = session.NewController(svc, recorder, logger.Named("session"))
	a.poller = corpus.NewPoller(gw, logger.Named("corpus"))

	logger.Info("docchat ready",
		zap.String("backend", gw.BaseURL()),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model),
		zap.Bool("transcripts", a.transcripts != nil),
		zap.Bool("citation_graph", a.graph != nil))
	ready = true
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
