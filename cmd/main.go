package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	charmlog "github.com/charmbracelet/log"

	"mailgraph/handler"
	"mailgraph/internal/config"
	"mailgraph/internal/graph"
	"mailgraph/internal/integrations/blobstore"
	"mailgraph/internal/integrations/imapsource"
	"mailgraph/internal/integrations/openai"
	"mailgraph/internal/integrations/paramstore"
	"mailgraph/internal/repository"
	"mailgraph/internal/textproc"
	"mailgraph/internal/usecase"
)

// documentStore is satisfied by both repository backends.
type documentStore interface {
	usecase.AuditStore
	usecase.AuditReader
	usecase.ConfigReader
}

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load("")
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	// ---- AWS SDK config ----
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		fatal("failed to load AWS config", err)
	}

	// ---- Clients ----
	params, err := paramstore.New(awsssm.NewFromConfig(awsCfg), cfg.ParamPrefix)
	if err != nil {
		fatal("failed to create SSM client", err)
	}

	store, err := openStore(ctx, cfg, awsCfg, params)
	if err != nil {
		fatal("failed to open document store", err)
	}

	blobs, err := blobstore.New(awss3.NewFromConfig(awsCfg), cfg.Blob.Bucket, cfg.Blob.Prefix)
	if err != nil {
		fatal("failed to create blob store", err)
	}

	kg, err := openGraph(ctx, cfg, params, logger)
	if err != nil {
		fatal("failed to open knowledge graph", err)
	}

	imapPassword, err := params.Secret(ctx, paramstore.IMAPPassword)
	if err != nil {
		fatal("failed to read IMAP password", err)
	}
	source, err := imapsource.New(imapsource.Config{
		Host:     cfg.IMAP.Host,
		Port:     cfg.IMAP.Port,
		Username: cfg.IMAP.Username,
		Password: imapPassword,
		Folder:   cfg.IMAP.Folder,
	}, logger)
	if err != nil {
		fatal("failed to create mail source", err)
	}

	pipeline, err := textproc.FromNames(cfg.Pipeline.Stages, cfg.Pipeline.Cleaner)
	if err != nil {
		fatal("failed to build text pipeline", err)
	}
	logger.Info("text pipeline ready", "stages", pipeline.Names())

	extractor, err := openai.NewExtractor(params, paramstore.LLMToken, cfg.LLM.Model,
		openai.WithBaseURL(cfg.LLM.BaseURL),
		openai.WithProvider(cfg.LLM.Provider),
		openai.WithMaxRetries(cfg.LLM.MaxRetries),
	)
	if err != nil {
		fatal("failed to create concept extractor", err)
	}

	// ---- Handler ----
	ingest, err := usecase.NewIngestService(usecase.IngestDeps{
		Source:    source,
		Pipeline:  pipeline,
		Extractor: extractor,
		Graph:     kg,
		Audits:    store,
		Config:    store,
		Blobs:     blobs,
		Logger:    logger,
	})
	if err != nil {
		fatal("failed to create ingest service", err)
	}
	browse, err := usecase.NewBrowseService(source, store, logger)
	if err != nil {
		fatal("failed to create browse service", err)
	}

	h, err := handler.NewHandler(ingest, browse, cfg.ScheduleDays, logger)
	if err != nil {
		fatal("failed to create handler", err)
	}

	switch cfg.HandlerMode {
	case config.ModeSchedule:
		lambda.Start(h.HandleSchedule)
	default:
		lambda.Start(h.Handle)
	}
}

func newLogger(level string) *slog.Logger {
	lvl, err := charmlog.ParseLevel(level)
	if err != nil {
		lvl = charmlog.InfoLevel
	}
	return slog.New(charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: true,
		Level:           lvl,
		Formatter:       charmlog.LogfmtFormatter,
	}))
}

func openStore(ctx context.Context, cfg config.Config, awsCfg aws.Config, params *paramstore.Client) (documentStore, error) {
	if cfg.Store.Kind == config.StoreMongo {
		uri, err := params.Secret(ctx, paramstore.MongoURI)
		if err != nil {
			return nil, err
		}
		return repository.ConnectMongo(ctx, repository.MongoConfig{
			URI:              uri,
			Database:         cfg.Store.Database,
			AuditCollection:  cfg.Store.AuditCollection,
			ConfigCollection: cfg.Store.ConfigCollection,
		})
	}
	return repository.NewDynamoStore(awsdynamodb.NewFromConfig(awsCfg), cfg.Store.Table)
}

func openGraph(ctx context.Context, cfg config.Config, params *paramstore.Client, log *slog.Logger) (*graph.Neo4j, error) {
	dialect, err := graph.ParseDialect(cfg.Graph.Dialect)
	if err != nil {
		return nil, err
	}
	password, err := params.Secret(ctx, paramstore.GraphPassword)
	if err != nil {
		return nil, err
	}
	kg, err := graph.NewNeo4j(ctx, graph.Config{
		URI:         cfg.Graph.URI,
		Username:    cfg.Graph.Username,
		Password:    password,
		Database:    cfg.Graph.Database,
		Partition:   cfg.Graph.Partition,
		Dialect:     dialect,
		MaxPoolSize: cfg.Graph.MaxPoolSize,
	}, log)
	if err != nil {
		return nil, err
	}
	if err := kg.EnsureSchema(ctx); err != nil {
		_ = kg.Close(ctx)
		return nil, err
	}
	return kg, nil
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}
