package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/markdave123-py/contexta-loader/internal/config"
	db "github.com/markdave123-py/contexta-loader/internal/core/database"
	"github.com/markdave123-py/contexta-loader/internal/core/ingestion_engine"
	"github.com/markdave123-py/contexta-loader/internal/core/layout"
	"github.com/markdave123-py/contexta-loader/internal/core/llm"
	objectclient "github.com/markdave123-py/contexta-loader/internal/core/object-client"
	"github.com/markdave123-py/contexta-loader/internal/core/splitter"
	"github.com/markdave123-py/contexta-loader/internal/services"
)

type App struct {
	DBClient     *db.DatabaseClient
	ObjectClient *objectclient.S3Client
	DocProcessor *ingestion_engine.DocumentIngestor
	Server       *Server

	cfg      *config.Config
	pubSub   *gochannel.GoChannel
	embedder *llm.GeminiEmbedder
	model    *llm.GeminiLLM
	logger   *slog.Logger
}

func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	dbClient, err := db.NewDatabaseClient(appCtx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.DBClient = dbClient
	logger.Info("database initialized and ready")

	objClient, err := objectclient.NewS3Client(appCtx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.ObjectClient = objClient

	a.embedder, err = llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
	}

	a.model, err = llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("couldn't initialize the generative model, %w", err)
	}

	useReadability := false
	ingCfg := &ingestion_engine.IngestConfig{
		Bucket: cfg.BucketName,
		Topic:  cfg.BlobEventsTopic,
		Splitter: splitter.Options{
			MaxSectionLength:    cfg.MaxSectionLength,
			SentenceSearchLimit: cfg.SentenceSearchLimit,
			SectionOverlap:      cfg.SectionOverlap,
		},
		BatchSize:        cfg.EmbedBatchSize,
		EmbedDim:         cfg.EmbedDim,
		PIIEnabled:       cfg.PIIEnabled,
		PIICategories:    cfg.PIICategories,
		PIIMinConfidence: cfg.PIIMinConfidence,
		ImageTypes:       cfg.SupportedImageFileTypes,
		DeleteStaged:     cfg.DeleteStagedDocuments,
	}

	a.pubSub = ingestion_engine.NewPubSub(logger)
	a.DocProcessor = ingestion_engine.NewDocumentIngestor(ingestion_engine.Providers{
		DB:       dbClient,
		Objects:  objClient,
		Embedder: a.embedder,
		Analyzer: layout.NewRouter(useReadability),
		Vision:   a.model,
		PII:      a.model,
		Tokens:   ingestion_engine.NewTokenCounter(logger),
	}, a.pubSub, a.pubSub, ingCfg, logger)

	userService := services.NewUserService(dbClient)
	docService := services.NewDocumentService(dbClient, objClient, a.DocProcessor,
		cfg.BucketName, cfg.SupportedImageFileTypes, logger)

	a.Server = NewServer(cfg, userService, docService, dbClient, logger)
	return a, nil
}

// Run starts the ingest workers and serves HTTP until ctx is cancelled, then
// drains both.
func (a *App) Run(ctx context.Context) error {
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	if err := a.DocProcessor.Start(workerCtx, a.cfg.IngestWorkers); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.Server.Start() }()

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http shutdown", "error", err)
	}

	stopWorkers()
	a.logger.Info("waiting for ingest workers")
	a.DocProcessor.Wait()

	if serveErr != nil {
		return fmt.Errorf("http server: %w", serveErr)
	}
	return nil
}

func (a *App) Close() {
	if a.pubSub != nil {
		_ = a.pubSub.Close()
	}
	if a.model != nil {
		_ = a.model.Close()
	}
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
