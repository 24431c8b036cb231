package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/mikhail-dubov/answerd/internal/domain"
	"github.com/mikhail-dubov/answerd/internal/metrics"
)

const driverName = "openai"

const defaultSystemPrompt = "You are a question answering service. " +
	"Answer the user's question concisely in plain text."

// Compile-time check: Engine implements domain.Engine.
var _ domain.Engine = (*Engine)(nil)

// Config holds the OpenAI-compatible engine settings.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	Logger       *zap.Logger
}

// Engine answers queries via an OpenAI-compatible chat-completions API.
// Unlike the process driver it keeps its state (HTTP client, model)
// loaded between requests, so it fills the persistent-worker slot the
// Engine seam leaves open. The answer is framed as the same
// {"answer": ...} JSON payload the process collaborator emits.
type Engine struct {
	client       *openai.Client
	model        string
	systemPrompt string
	logger       *zap.Logger
}

// New creates an OpenAI-compatible engine.
func New(cfg *Config) *Engine {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		client:       openai.NewClientWithConfig(clientCfg),
		model:        cfg.Model,
		systemPrompt: systemPrompt,
		logger:       logger,
	}
}

// Answer implements domain.Engine via a single chat completion.
func (e *Engine) Answer(ctx context.Context, query string) ([]byte, error) {
	req := openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: e.systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: query},
		},
	}

	start := time.Now()

	resp, err := e.client.CreateChatCompletion(ctx, req)

	duration := time.Since(start)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			metrics.EngineInvocationsTotal.WithLabelValues(driverName, "timeout").Inc()
			return nil, fmt.Errorf("engine invocation aborted: %w", ctxErr)
		}
		metrics.EngineInvocationsTotal.WithLabelValues(driverName, "api_error").Inc()
		e.logger.Warn("Chat completion failed", zap.Error(err))
		return nil, fmt.Errorf("%w: chat completion: %v", domain.ErrEngineFailed, err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		metrics.EngineInvocationsTotal.WithLabelValues(driverName, "empty").Inc()
		return nil, domain.ErrEmptyAnswer
	}

	payload, err := json.Marshal(map[string]string{"answer": resp.Choices[0].Message.Content})
	if err != nil {
		return nil, fmt.Errorf("marshal answer: %w", err)
	}

	metrics.EngineInvocationsTotal.WithLabelValues(driverName, "success").Inc()
	metrics.EngineInvocationDuration.WithLabelValues(driverName).Observe(duration.Seconds())

	e.logger.Debug("Chat completion finished",
		zap.Duration("duration", duration),
		zap.Int("output_bytes", len(payload)),
	)
	return payload, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (e *Engine) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}
