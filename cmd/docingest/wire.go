package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/redis/rueidis"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docingest/internal/config"
	"github.com/kailas-cloud/docingest/internal/docgen"
	"github.com/kailas-cloud/docingest/internal/domain"
	"github.com/kailas-cloud/docingest/internal/embedding"
	"github.com/kailas-cloud/docingest/internal/embedding/cache"
	openaiEmb "github.com/kailas-cloud/docingest/internal/embedding/openai"
	"github.com/kailas-cloud/docingest/internal/objectstore"
	"github.com/kailas-cloud/docingest/internal/retry"
	"github.com/kailas-cloud/docingest/internal/usecase/health"
	"github.com/kailas-cloud/docingest/internal/vectorstore"
	"github.com/kailas-cloud/docingest/internal/vectorstore/elastic"
	"github.com/kailas-cloud/docingest/internal/vectorstore/faiss"
	redisstore "github.com/kailas-cloud/docingest/internal/vectorstore/redis"
	"github.com/kailas-cloud/docingest/internal/vectorstore/s3store"
)

// backends creates backend clients on first use, so a faiss run never dials
// Redis or Elasticsearch.
type backends struct {
	cfg    config.Config
	logger *zap.Logger

	mu       sync.Mutex
	s3Client *s3.Client
	es       *elasticsearch.Client
	redis    rueidis.Client
}

func newBackends(cfg config.Config, logger *zap.Logger) *backends {
	return &backends{cfg: cfg, logger: logger}
}

// Registry lists every supported backend.
func (b *backends) Registry() *vectorstore.Registry {
	return vectorstore.NewRegistry(map[vectorstore.Kind]vectorstore.Constructor{
		vectorstore.KindFAISS:         faiss.New,
		vectorstore.KindS3:            b.openS3,
		vectorstore.KindElasticsearch: b.openElasticsearch,
		vectorstore.KindRedis:         b.openRedis,
	})
}

// Close releases clients that hold connections.
func (b *backends) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.redis != nil {
		b.redis.Close()
		b.redis = nil
	}
}

// Pinger checks the client of the configured backend. Local stores are
// always reachable.
func (b *backends) Pinger() health.StorePinger {
	return health.PingFunc(func(ctx context.Context) error {
		b.mu.Lock()
		es, rc := b.es, b.redis
		b.mu.Unlock()

		switch {
		case rc != nil:
			if err := rc.Do(ctx, rc.B().Ping().Build()).Error(); err != nil {
				return fmt.Errorf("redis ping: %w", err)
			}
		case es != nil:
			res, err := es.Ping(es.Ping.WithContext(ctx))
			if err != nil {
				return fmt.Errorf("elasticsearch ping: %w", err)
			}
			defer res.Body.Close()
			if res.IsError() {
				return fmt.Errorf("elasticsearch ping: %s", res.Status())
			}
		}
		return nil
	})
}

func (b *backends) S3(ctx context.Context) (*s3.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.s3Client != nil {
		return b.s3Client, nil
	}

	awsOpts := awsConfig(b.cfg.AWS)
	awsCfg, err := objectstore.LoadAWSConfig(ctx, awsOpts, b.logger)
	if err != nil {
		return nil, err
	}
	b.s3Client = objectstore.NewS3Client(awsCfg, awsOpts)
	return b.s3Client, nil
}

func (b *backends) openS3(ctx context.Context, opts vectorstore.Options) (vectorstore.Store, error) {
	client, err := b.S3(ctx)
	if err != nil {
		return nil, err
	}
	return s3store.NewConstructor(client, b.cfg.AWS.Bucket, b.cfg.AWS.Prefix)(ctx, opts)
}

func (b *backends) openElasticsearch(ctx context.Context, opts vectorstore.Options) (vectorstore.Store, error) {
	b.mu.Lock()
	if b.es == nil {
		es := b.cfg.Elasticsearch
		client, err := elastic.NewClient(elastic.Config{
			Addresses: es.Addresses,
			CloudID:   es.CloudID,
			Username:  es.Username,
			Password:  es.Password,
			APIKey:    es.APIKey,
		})
		if err != nil {
			b.mu.Unlock()
			return nil, err
		}
		b.es = client
	}
	client := b.es
	b.mu.Unlock()

	return elastic.NewConstructor(client, b.cfg.Elasticsearch.Index)(ctx, opts)
}

// Redis returns the shared client, dialing and waiting for readiness once.
func (b *backends) Redis(ctx context.Context) (rueidis.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.redis != nil {
		return b.redis, nil
	}

	client, err := redisstore.NewClient(redisstore.Config{
		Addrs:    b.cfg.Redis.Addrs,
		Password: b.cfg.Redis.Password,
	})
	if err != nil {
		return nil, err
	}
	timeout := time.Duration(b.cfg.Redis.ReadinessTimeout) * time.Second
	if err := redisstore.WaitForReady(ctx, client, timeout); err != nil {
		client.Close()
		return nil, err
	}
	b.logger.Info("Connected to Redis", zap.Strings("addrs", b.cfg.Redis.Addrs))
	b.redis = client
	return client, nil
}

func (b *backends) openRedis(ctx context.Context, opts vectorstore.Options) (vectorstore.Store, error) {
	client, err := b.Redis(ctx)
	if err != nil {
		return nil, err
	}
	return redisstore.NewConstructor(client, b.cfg.Redis.IndexPrefix)(ctx, opts)
}

// withCache wraps embedder with the Redis embedding cache when enabled.
func (b *backends) withCache(ctx context.Context, embedder domain.Embedder, model string) (domain.Embedder, error) {
	if !b.cfg.Redis.EmbeddingCache {
		return embedder, nil
	}
	client, err := b.Redis(ctx)
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	ttl := time.Duration(b.cfg.Redis.CacheTTLHours) * time.Hour
	b.logger.Info("Embedding cache enabled", zap.String("model", model), zap.Duration("ttl", ttl))
	return cache.New(embedder, cache.NewRedisKV(client, ttl), b.cfg.Redis.IndexPrefix, model, b.logger), nil
}

func awsConfig(c config.AWSConfig) objectstore.AWSConfig {
	return objectstore.AWSConfig{
		Region:          c.Region,
		Profile:         c.Profile,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		SessionToken:    c.SessionToken,
		AssumeRoleARN:   c.AssumeRoleARN,
		Endpoint:        c.Endpoint,
		UsePathStyle:    c.UsePathStyle,
	}
}

// buildEmbedder assembles the decorator chain: OpenAI -> Instrumented, and
// resolves the model's dimensionality.
func buildEmbedder(ctx context.Context, cfg config.EmbeddingConfig, logger *zap.Logger) (domain.Embedder, embedding.Model, error) {
	provider, model := embedding.ParseName(cfg.Name)
	switch provider {
	case "openai", "azure_openai", "":
	default:
		return nil, embedding.Model{}, &domain.ConfigurationError{
			Field:    "embedding.name",
			Expected: "an OpenAI-compatible provider (openai_, azure_openai_)",
			Actual:   cfg.Name,
		}
	}
	if provider == "" {
		provider = "openai"
	}
	if cfg.APIKey == "" {
		return nil, embedding.Model{}, &domain.ConfigurationError{Field: "embedding.api_key", Expected: "a key", Actual: "empty"}
	}
	if provider == openaiEmb.ProviderAzure && cfg.BaseURL == "" {
		return nil, embedding.Model{}, &domain.ConfigurationError{
			Field: "embedding.base_url", Expected: "the Azure resource endpoint", Actual: "empty",
		}
	}

	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      model,
		Dimensions: cfg.Dimensions,
		Provider:   provider,
		Logger:     logger,
	})
	embedder := embedding.NewInstrumentedEmbedder(base, provider, model, logger).WithBatchSize(cfg.BatchSize)

	resolved, err := embedding.ResolveModel(ctx, model, cfg.Dimensions, embedder)
	if err != nil {
		return nil, embedding.Model{}, err
	}
	logger.Info("Embedder created",
		zap.String("provider", provider),
		zap.String("model", resolved.Name),
		zap.Int("dimensions", resolved.Dims),
	)
	return embedder, resolved, nil
}

func buildGenerator(cfg config.LLMConfig, outputDir string, logger *zap.Logger) (*docgen.Generator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm.api_key is required in docs mode")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	policy := retry.DefaultPolicy()
	policy.MaxRetries = cfg.MaxRetries

	return docgen.NewGenerator(openai.NewClientWithConfig(clientCfg), docgen.Config{
		Model:             cfg.Model,
		OutputDir:         outputDir,
		Temperature:       cfg.Temperature,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		PricePer1K:        cfg.PricePer1K,
		Retry:             policy,
	}, logger), nil
}

func buildUploader(ctx context.Context, b *backends) (*objectstore.Uploader, error) {
	if b.cfg.AWS.Bucket == "" {
		return nil, &domain.ConfigurationError{Field: "aws.bucket", Expected: "a bucket name", Actual: "empty"}
	}
	client, err := b.S3(ctx)
	if err != nil {
		return nil, err
	}
	return objectstore.NewUploader(client, b.cfg.AWS.Bucket, b.cfg.AWS.Prefix, b.logger), nil
}
