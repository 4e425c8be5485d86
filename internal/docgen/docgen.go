// Package docgen writes Markdown documentation for grouped chunks using a
// chat completion model.
package docgen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/docingest/internal/domain"
	"github.com/kailas-cloud/docingest/internal/metrics"
	"github.com/kailas-cloud/docingest/internal/retry"
	"github.com/kailas-cloud/docingest/internal/tokens"
)

// Defaults for Config.
const (
	DefaultModel             = "gpt-4o-mini"
	DefaultRequestsPerSecond = 1.0
	DefaultBurst             = 1
	DefaultPricePer1K        = 0.0004
)

const systemPrompt = `You are a technical writer. Rewrite the provided material as clear, well-structured
Markdown documentation. Keep every fact, code sample and identifier. Do not invent APIs.`

// ChatClient is the subset of the go-openai client the generator uses.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config controls generation.
type Config struct {
	Model             string
	OutputDir         string
	Temperature       float32
	RequestsPerSecond float64
	Burst             int
	PricePer1K        float64
	Retry             retry.Policy
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.OutputDir == "" {
		c.OutputDir = "outputs"
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if c.Burst <= 0 {
		c.Burst = DefaultBurst
	}
	if c.PricePer1K <= 0 {
		c.PricePer1K = DefaultPricePer1K
	}
	if c.Retry.BaseDelay == 0 && c.Retry.MaxRetries == 0 {
		c.Retry = retry.DefaultPolicy()
	}
}

// Estimate is the expected cost of a generation run.
type Estimate struct {
	Documents int
	Tokens    int
	CostUSD   float64
}

// Result summarizes a finished run.
type Result struct {
	Files            []string
	PromptTokens     int
	CompletionTokens int
}

// Generator sends each chunk to the chat model and writes the answers.
type Generator struct {
	client  ChatClient
	cfg     Config
	limiter *rate.Limiter
	counter tokens.Counter
	logger  *zap.Logger
}

// NewGenerator creates a generator. cfg is defaulted in place.
func NewGenerator(client ChatClient, cfg Config, logger *zap.Logger) *Generator {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		counter: tokens.Estimator{},
		logger:  logger,
	}
}

// EstimateCost counts input tokens with the same estimator the grouper uses.
func (g *Generator) EstimateCost(docs []domain.Document) Estimate {
	total := 0
	for _, d := range docs {
		total += g.counter.Count(d.Text)
	}
	return Estimate{
		Documents: len(docs),
		Tokens:    total,
		CostUSD:   float64(total) / 1000 * g.cfg.PricePer1K,
	}
}

// Generate writes <OutputDir>/<folder>/docs/<n>.md for every document.
func (g *Generator) Generate(ctx context.Context, folder string, docs []domain.Document) (Result, error) {
	dir := filepath.Join(g.cfg.OutputDir, folder, "docs")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return Result{}, fmt.Errorf("create output dir: %w", err)
	}

	est := g.EstimateCost(docs)
	g.logger.Info("Generating documentation",
		zap.String("folder", folder),
		zap.String("model", g.cfg.Model),
		zap.Int("documents", est.Documents),
		zap.Int("tokens", est.Tokens),
		zap.Float64("estimated_cost_usd", est.CostUSD),
	)

	var res Result
	for i, doc := range docs {
		text, usage, err := g.complete(ctx, doc)
		if err != nil {
			return res, fmt.Errorf("document %d (%s): %w", i, doc.Metadata.String(domain.MetaTitle), err)
		}

		path := filepath.Join(dir, strconv.Itoa(i)+".md")
		if err := os.WriteFile(path, []byte(strings.TrimSpace(text)+"\n"), 0o600); err != nil {
			return res, fmt.Errorf("write %s: %w", path, err)
		}
		res.Files = append(res.Files, path)
		res.PromptTokens += usage.PromptTokens
		res.CompletionTokens += usage.CompletionTokens
	}

	g.logger.Info("Documentation generated",
		zap.String("folder", folder),
		zap.Int("files", len(res.Files)),
		zap.Int("prompt_tokens", res.PromptTokens),
		zap.Int("completion_tokens", res.CompletionTokens),
	)
	return res, nil
}

func (g *Generator) complete(ctx context.Context, doc domain.Document) (string, openai.Usage, error) {
	req := openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		Temperature: g.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(doc)},
		},
	}

	var (
		text  string
		usage openai.Usage
	)
	err := retry.Do(ctx, g.cfg.Retry, func(ctx context.Context, attempt int) error {
		if err := g.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}

		start := time.Now()
		resp, err := g.client.CreateChatCompletion(ctx, req)
		if err != nil {
			metrics.LLMRequestsTotal.WithLabelValues(g.cfg.Model, "error").Inc()
			g.logger.Warn("Chat completion failed",
				zap.Int("attempt", attempt),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err),
			)
			if !isRetryable(err) {
				return retry.Permanent(err)
			}
			return err
		}
		if len(resp.Choices) == 0 {
			metrics.LLMRequestsTotal.WithLabelValues(g.cfg.Model, "error").Inc()
			return errors.New("empty completion")
		}

		metrics.LLMRequestsTotal.WithLabelValues(g.cfg.Model, "success").Inc()
		metrics.LLMTokensTotal.WithLabelValues(g.cfg.Model, "prompt").Add(float64(resp.Usage.PromptTokens))
		metrics.LLMTokensTotal.WithLabelValues(g.cfg.Model, "completion").Add(float64(resp.Usage.CompletionTokens))

		text = resp.Choices[0].Message.Content
		usage = resp.Usage
		return nil
	})
	if err != nil {
		return "", openai.Usage{}, fmt.Errorf("%w: %w", domain.ErrLLMProviderError, err)
	}
	return text, usage, nil
}

func userPrompt(doc domain.Document) string {
	var sb strings.Builder
	if title := doc.Metadata.String(domain.MetaTitle); title != "" {
		sb.WriteString("Source: ")
		sb.WriteString(title)
		sb.WriteString("\n\n")
	}
	sb.WriteString(doc.Text)
	return sb.String()
}

// isRetryable treats rate limits, server errors and transport failures as
// transient. Other API errors (bad request, auth) are final.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	default:
		return true
	}
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}
