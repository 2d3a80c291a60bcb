// Package app builds the object graph shared by every entrypoint.
package app

import (
	"context"
	"fmt"

	"stockpulse-backend/internal/config"
	"stockpulse-backend/internal/newsfeed"
	"stockpulse-backend/internal/observability"
	"stockpulse-backend/internal/repository"
	"stockpulse-backend/internal/sentiment"
	"stockpulse-backend/internal/service"
	"stockpulse-backend/internal/store"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"
)

// Container holds the wired application dependencies
type Container struct {
	Config  *config.Config
	Logger  *zap.Logger
	Store   store.Store
	Metrics *observability.Collector

	CircuitRepo    *repository.CircuitRepository
	SentimentCache *repository.CacheRepository
	JobRepo        *repository.JobRepository

	SentimentClient *sentiment.Client
	Analysis        *service.AnalysisService
	Worker          *service.BatchWorker
	Runner          *service.TaskRunner
}

// NewContainer wires the full dependency graph from configuration.
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	st, err := newStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var metrics *observability.Collector
	if cfg.EnableMetrics {
		metrics = observability.NewCollector("stockpulse")
	}

	circuitRepo := repository.NewCircuitRepository(st, logger)
	sentimentCache := repository.NewCacheRepository(st, repository.KindSentiment, cfg.TTL.SentimentDays, logger)
	jobRepo := repository.NewJobRepository(st, cfg.TTL.JobDays, logger)

	client := sentiment.NewClient(cfg.Sentiment, circuitRepo, logger, metrics)
	analysis := service.NewAnalysisService(sentimentCache, client, logger, metrics)
	source := newsfeed.NewClient(cfg.NewsEndpoint, logger)
	worker := service.NewBatchWorker(jobRepo, analysis, source, logger, metrics)
	runner := service.NewTaskRunner(cfg.MaxDetachedTasks, logger)

	return &Container{
		Config:          cfg,
		Logger:          logger,
		Store:           st,
		Metrics:         metrics,
		CircuitRepo:     circuitRepo,
		SentimentCache:  sentimentCache,
		JobRepo:         jobRepo,
		SentimentClient: client,
		Analysis:        analysis,
		Worker:          worker,
		Runner:          runner,
	}, nil
}

// Shutdown drains background work and flushes logs.
func (c *Container) Shutdown() {
	c.Runner.Wait()
	_ = c.Logger.Sync()
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func newStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	if cfg.UseMemoryStore {
		logger.Warn("using in-process store; state will not survive restarts")
		return store.NewMemoryStore(), nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}

	client := awsdynamodb.NewFromConfig(awsCfg, func(o *awsdynamodb.Options) {
		if cfg.DynamoDBEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoDBEndpoint)
		}
	})
	return store.NewDynamoStore(client, cfg.DynamoDBTable, logger), nil
}
