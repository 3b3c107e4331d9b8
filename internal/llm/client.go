package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/pmprep/backend/pkg/circuitbreaker"
	"github.com/pmprep/backend/pkg/logger"
	"github.com/pmprep/backend/pkg/retry"
)

// TokenStream delivers model output one delta at a time. Recv returns io.EOF
// when the model finishes; Close releases the underlying connection.
type TokenStream interface {
	Recv() (string, error)
	Close() error
}

type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
}

func NewClient(apiKey, baseURL, model string, temperature float32, maxTokens, timeoutSec int) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	client := openai.NewClientWithConfig(config)

	cb := circuitbreaker.NewCircuitBreaker("llm", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	if timeoutSec <= 0 {
		timeoutSec = 120
	}

	logger.Info("LLM client initialized", zap.String("model", model))

	return &Client{
		client:      client,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		timeout:     time.Duration(timeoutSec) * time.Second,
		cb:          cb,
		retryConfig: retryConfig,
	}
}

func (c *Client) Model() string {
	return c.model
}

// StreamCompletion opens a token stream for the given prompts. The stream is
// canceled mid-flight by canceling ctx; no retries are applied here because
// partial output must never be replayed into a second attempt.
func (c *Client) StreamCompletion(ctx context.Context, systemPrompt, userPrompt string) (TokenStream, error) {
	stream, err := c.client.CreateChatCompletionStream(
		ctx,
		openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: userPrompt},
			},
			Temperature: c.temperature,
			MaxTokens:   c.maxTokens,
			Stream:      true,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open completion stream: %w", err)
	}

	return &chatStream{stream: stream}, nil
}

type chatStream struct {
	stream *openai.ChatCompletionStream
}

func (s *chatStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if err != nil {
			if err == io.EOF {
				return "", io.EOF
			}
			return "", fmt.Errorf("stream recv failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		return resp.Choices[0].Delta.Content, nil
	}
}

func (s *chatStream) Close() error {
	s.stream.Close()
	return nil
}

// Complete runs a non-streaming completion behind the retry and circuit
// breaker guards.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	var result string

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model: c.model,
					Messages: []openai.ChatCompletionMessage{
						{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
						{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt},
					},
					Temperature: temperature,
					MaxTokens:   maxTokens,
				},
			)
			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}
			if len(resp.Choices) == 0 {
				return fmt.Errorf("completion returned no choices")
			}

			logger.Debug("LLM completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			result = resp.Choices[0].Message.Content
			return nil
		})
	})
	if err != nil {
		return "", err
	}

	return result, nil
}

type RelevanceScore struct {
	Score    float64 `json:"score"`
	Category string  `json:"category"`
}

// ScoreRelevance re-scores a video summary against the PM interview domain.
// Used by the summary maintenance endpoint when a summary's category looks
// stale.
func (c *Client) ScoreRelevance(ctx context.Context, summaryText string) (*RelevanceScore, error) {
	systemPrompt := `You are curating a knowledge base for product-management interview preparation.
Rate how relevant a video summary is to PM interview coaching.

Return JSON only:
{"score": 0.0-1.0, "category": "high"|"medium"|"low"|"none"}`

	userPrompt := fmt.Sprintf("Summary:\n%s\n\nRate its relevance.", summaryText)

	content, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.1,
		MaxTokens:    100,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to score relevance: %w", err)
	}

	score, err := parseRelevanceScore(content)
	if err != nil {
		return nil, err
	}

	logger.Debug("Summary relevance scored",
		zap.Float64("score", score.Score),
		zap.String("category", score.Category),
	)

	return score, nil
}

func parseRelevanceScore(content string) (*RelevanceScore, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON object in relevance response")
	}

	var score RelevanceScore
	if err := json.Unmarshal([]byte(content[start:end+1]), &score); err != nil {
		return nil, fmt.Errorf("failed to parse relevance response: %w", err)
	}

	switch score.Category {
	case "high", "medium", "low", "none":
	default:
		return nil, fmt.Errorf("unexpected relevance category %q", score.Category)
	}

	return &score, nil
}
