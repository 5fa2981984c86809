package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"zerorag/config"
	"zerorag/internal/models"
)

// GenerationRequest carries a fully built prompt to a Generator.
// Zero MaxTokens and nil Temperature use the provider's configured defaults.
type GenerationRequest struct {
	Prompt      string
	MaxTokens   int
	Temperature *float64
}

// GenerationResult is the completed output of a generation call.
type GenerationResult struct {
	Text       string
	Model      string
	TokensUsed int
}

// TokenFunc receives incremental output during streaming generation.
// Returning an error aborts the stream.
type TokenFunc func(token string) error

// Generator produces text completions for RAG prompts.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error)
	GenerateStream(ctx context.Context, req GenerationRequest, onToken TokenFunc) (*GenerationResult, error)
	ModelName() string
	HealthCheck(ctx context.Context) error
	Close() error
}

// ============================================================================
// Ollama generator
// ============================================================================

type ollamaGenerateRequest struct {
	Model   string                `json:"model"`
	Prompt  string                `json:"prompt"`
	Stream  bool                  `json:"stream"`
	Options ollamaGenerateOptions `json:"options"`
}

type ollamaGenerateOptions struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature"`
}

type ollamaGenerateResponse struct {
	Model     string `json:"model"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`
	EvalCount int    `json:"eval_count,omitempty"`
}

// OllamaGenerator generates completions through the local Ollama server.
type OllamaGenerator struct {
	host        string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
	logger      *log.Logger
}

// NewOllamaGenerator creates a generator using the configured chat model.
func NewOllamaGenerator(cfg config.OllamaConfig, logger *log.Logger) *OllamaGenerator {
	if logger == nil {
		logger = log.Default()
	}
	return &OllamaGenerator{
		host:        strings.TrimRight(cfg.Host, "/"),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		httpClient: &http.Client{
			Timeout: 120 * time.Second, // LLMs can be slow
		},
		logger: logger,
	}
}

// Generate runs a blocking completion and returns the full text.
func (g *OllamaGenerator) Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	resp, err := g.send(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, models.NewInternalError("llm.generate", fmt.Errorf("failed to parse response: %w", err))
	}
	return &GenerationResult{
		Text:       parsed.Response,
		Model:      g.model,
		TokensUsed: parsed.EvalCount,
	}, nil
}

// GenerateStream runs a streaming completion, invoking onToken for each
// produced fragment. The accumulated text is returned once the model
// reports completion.
func (g *OllamaGenerator) GenerateStream(ctx context.Context, req GenerationRequest, onToken TokenFunc) (*GenerationResult, error) {
	resp, err := g.send(ctx, req, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var full strings.Builder
	tokens := 0
	decoder := json.NewDecoder(resp.Body)
	for {
		var chunk ollamaGenerateResponse
		if err := decoder.Decode(&chunk); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if ctx.Err() != nil {
				return nil, models.NewCancelledError("llm.stream", ctx.Err())
			}
			return nil, models.NewTransientError("llm.stream", fmt.Errorf("stream interrupted: %w", err))
		}
		if chunk.Response != "" {
			full.WriteString(chunk.Response)
			if onToken != nil {
				if err := onToken(chunk.Response); err != nil {
					return nil, models.NewCancelledError("llm.stream", err)
				}
			}
		}
		if chunk.Done {
			tokens = chunk.EvalCount
			break
		}
	}
	return &GenerationResult{
		Text:       full.String(),
		Model:      g.model,
		TokensUsed: tokens,
	}, nil
}

// ModelName returns the chat model identifier.
func (g *OllamaGenerator) ModelName() string {
	return g.model
}

// HealthCheck verifies Ollama is reachable and the chat model is pulled.
func (g *OllamaGenerator) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.host+"/api/tags", nil)
	if err != nil {
		return models.NewInternalError("llm.health", err)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return models.NewTransientError("llm.health", fmt.Errorf("ollama not reachable: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.NewTransientError("llm.health", fmt.Errorf("ollama returned status %d", resp.StatusCode))
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return models.NewInternalError("llm.health", err)
	}
	want := baseModelName(g.model)
	for _, m := range tags.Models {
		if baseModelName(m.Name) == want {
			return nil
		}
	}
	return models.NewPermanentError("llm.health",
		fmt.Errorf("model %q is not available on the server", g.model))
}

// Close releases idle HTTP connections.
func (g *OllamaGenerator) Close() error {
	g.httpClient.CloseIdleConnections()
	return nil
}

// send posts the generate request and returns the raw response on 200.
func (g *OllamaGenerator) send(ctx context.Context, req GenerationRequest, stream bool) (*http.Response, error) {
	temperature := g.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = g.maxTokens
	}

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  g.model,
		Prompt: req.Prompt,
		Stream: stream,
		Options: ollamaGenerateOptions{
			NumPredict:  maxTokens,
			Temperature: temperature,
		},
	})
	if err != nil {
		return nil, models.NewInternalError("llm.generate", fmt.Errorf("failed to marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, models.NewInternalError("llm.generate", fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, models.NewCancelledError("llm.generate", ctx.Err())
		}
		return nil, models.NewTransientError("llm.generate", fmt.Errorf("failed to reach ollama: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		err := fmt.Errorf("ollama generate returned status %d: %s", resp.StatusCode, string(respBody))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, models.NewTransientError("llm.generate", err)
		}
		return nil, models.NewPermanentError("llm.generate", err)
	}
	return resp, nil
}

// ============================================================================
// OpenAI-compatible generator
// ============================================================================

// OpenAIGenerator generates completions through an OpenAI-compatible API.
// It backs the optional fallback provider configured via LLM_FALLBACK_*.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
}

// NewOpenAIGenerator creates a generator against the configured endpoint.
func NewOpenAIGenerator(cfg config.OpenAIConfig, maxTokens int, temperature float64) *OpenAIGenerator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// Generate runs a blocking chat completion.
func (g *OpenAIGenerator) Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	resp, err := g.client.CreateChatCompletion(ctx, g.buildRequest(req, false))
	if err != nil {
		return nil, classifyOpenAIError("llm.generate", err)
	}
	if len(resp.Choices) == 0 {
		return nil, models.NewInternalError("llm.generate", fmt.Errorf("no choices in response"))
	}
	return &GenerationResult{
		Text:       resp.Choices[0].Message.Content,
		Model:      resp.Model,
		TokensUsed: resp.Usage.CompletionTokens,
	}, nil
}

// GenerateStream runs a streaming chat completion.
func (g *OpenAIGenerator) GenerateStream(ctx context.Context, req GenerationRequest, onToken TokenFunc) (*GenerationResult, error) {
	stream, err := g.client.CreateChatCompletionStream(ctx, g.buildRequest(req, true))
	if err != nil {
		return nil, classifyOpenAIError("llm.stream", err)
	}
	defer stream.Close()

	var full strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, models.NewCancelledError("llm.stream", ctx.Err())
			}
			return nil, classifyOpenAIError("llm.stream", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		token := chunk.Choices[0].Delta.Content
		if token == "" {
			continue
		}
		full.WriteString(token)
		if onToken != nil {
			if err := onToken(token); err != nil {
				return nil, models.NewCancelledError("llm.stream", err)
			}
		}
	}
	return &GenerationResult{
		Text:  full.String(),
		Model: g.model,
	}, nil
}

// ModelName returns the fallback model identifier.
func (g *OpenAIGenerator) ModelName() string {
	return g.model
}

// HealthCheck lists models to verify the endpoint accepts our credentials.
func (g *OpenAIGenerator) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := g.client.ListModels(ctx); err != nil {
		return classifyOpenAIError("llm.health", err)
	}
	return nil
}

// Close is a no-op for the OpenAI client.
func (g *OpenAIGenerator) Close() error {
	return nil
}

func (g *OpenAIGenerator) buildRequest(req GenerationRequest, stream bool) openai.ChatCompletionRequest {
	temperature := g.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = g.maxTokens
	}
	return openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: float32(temperature),
		Stream:      stream,
	}
}

// classifyOpenAIError maps API errors onto transient/permanent kinds.
func classifyOpenAIError(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode >= 500 || apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return models.NewTransientError(op, err)
		}
		return models.NewPermanentError(op, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return models.NewCancelledError(op, err)
	}
	return models.NewTransientError(op, err)
}

// ============================================================================
// Failover wrapper
// ============================================================================

// FallbackGenerator tries a primary Generator and fails over to a secondary
// when the primary cannot serve the request.
type FallbackGenerator struct {
	primary  Generator
	fallback Generator
	logger   *log.Logger
}

// NewFallbackGenerator wires a primary generator with an optional fallback.
// A nil fallback degenerates to the primary alone.
func NewFallbackGenerator(primary, fallback Generator, logger *log.Logger) *FallbackGenerator {
	if logger == nil {
		logger = log.Default()
	}
	return &FallbackGenerator{primary: primary, fallback: fallback, logger: logger}
}

// Generate tries the primary and falls back on any non-cancellation error.
func (f *FallbackGenerator) Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	result, err := f.primary.Generate(ctx, req)
	if err == nil {
		return result, nil
	}
	if f.fallback == nil || models.IsCancelled(err) {
		return nil, err
	}

	f.logger.Printf("⚠️ Primary LLM %s failed (%v), trying fallback %s",
		f.primary.ModelName(), err, f.fallback.ModelName())
	return f.fallback.Generate(ctx, req)
}

// GenerateStream streams from the primary, switching to the fallback only
// if the primary fails before emitting any output. Once tokens have been
// sent downstream a restart would duplicate them.
func (f *FallbackGenerator) GenerateStream(ctx context.Context, req GenerationRequest, onToken TokenFunc) (*GenerationResult, error) {
	emitted := false
	guarded := func(token string) error {
		emitted = true
		if onToken != nil {
			return onToken(token)
		}
		return nil
	}

	result, err := f.primary.GenerateStream(ctx, req, guarded)
	if err == nil {
		return result, nil
	}
	if f.fallback == nil || emitted || models.IsCancelled(err) {
		return nil, err
	}

	f.logger.Printf("⚠️ Primary LLM %s failed before streaming (%v), trying fallback %s",
		f.primary.ModelName(), err, f.fallback.ModelName())
	return f.fallback.GenerateStream(ctx, req, onToken)
}

// ModelName reports the primary model.
func (f *FallbackGenerator) ModelName() string {
	return f.primary.ModelName()
}

// HealthCheck passes when either provider is healthy.
func (f *FallbackGenerator) HealthCheck(ctx context.Context) error {
	err := f.primary.HealthCheck(ctx)
	if err == nil || f.fallback == nil {
		return err
	}
	if fbErr := f.fallback.HealthCheck(ctx); fbErr == nil {
		return nil
	}
	return err
}

// Close closes both providers.
func (f *FallbackGenerator) Close() error {
	err := f.primary.Close()
	if f.fallback != nil {
		if fbErr := f.fallback.Close(); err == nil {
			err = fbErr
		}
	}
	return err
}
