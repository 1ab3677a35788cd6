package oracle

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultChatModel      = "gpt-4-turbo-preview"
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultTimeout        = 60 * time.Second
)

// Options configures the OpenAI-compatible client.
type Options struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel string
	Timeout        time.Duration
	HTTPClient     *http.Client
}

// Client implements topic suggestion, bias classification and embeddings on
// top of the chat-completions and embeddings endpoints.
type Client struct {
	api            *openai.Client
	chatModel      string
	embeddingModel string
	timeout        time.Duration
}

func NewClient(opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	normalized := normalizeOptions(opts)
	cfg := openai.DefaultConfig(apiKey)
	if normalized.BaseURL != "" {
		cfg.BaseURL = normalized.BaseURL
	}
	if normalized.HTTPClient != nil {
		cfg.HTTPClient = normalized.HTTPClient
	} else {
		cfg.HTTPClient = &http.Client{Timeout: normalized.Timeout}
	}

	return &Client{
		api:            openai.NewClientWithConfig(cfg),
		chatModel:      normalized.ChatModel,
		embeddingModel: normalized.EmbeddingModel,
		timeout:        normalized.Timeout,
	}, nil
}

func normalizeOptions(opts Options) Options {
	out := Options{
		BaseURL:        strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		ChatModel:      strings.TrimSpace(opts.ChatModel),
		EmbeddingModel: strings.TrimSpace(opts.EmbeddingModel),
		Timeout:        opts.Timeout,
		HTTPClient:     opts.HTTPClient,
	}
	if out.ChatModel == "" {
		out.ChatModel = DefaultChatModel
	}
	if out.EmbeddingModel == "" {
		out.EmbeddingModel = DefaultEmbeddingModel
	}
	if out.Timeout <= 0 {
		out.Timeout = DefaultTimeout
	}
	return out
}

// ChatModel returns the model recorded alongside stored classifications.
func (c *Client) ChatModel() string {
	if c == nil {
		return ""
	}
	return c.chatModel
}

// SuggestTopics asks for the current candidate topics. Any transport error,
// malformed payload or empty list is returned to the caller.
func (c *Client) SuggestTopics(ctx context.Context) ([]TopicSuggestion, error) {
	content, err := c.completeJSON(ctx, topicSystemPrompt, topicUserPrompt, topicTemperature)
	if err != nil {
		return nil, fmt.Errorf("suggest topics: %w", err)
	}
	topics, err := ParseTopics([]byte(content))
	if err != nil {
		return nil, fmt.Errorf("suggest topics: %w", err)
	}
	return topics, nil
}

func (c *Client) ClassifyBias(ctx context.Context, req BiasRequest) (BiasClassification, error) {
	if strings.TrimSpace(req.Title) == "" {
		return BiasClassification{}, fmt.Errorf("classify bias: title is required")
	}
	content, err := c.completeJSON(ctx, biasSystemPrompt, buildBiasPrompt(req), biasTemperature)
	if err != nil {
		return BiasClassification{}, fmt.Errorf("classify bias: %w", err)
	}
	result, err := ParseBias([]byte(content))
	if err != nil {
		return BiasClassification{}, fmt.Errorf("classify bias: %w", err)
	}
	return result, nil
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c == nil || c.api == nil {
		return nil, fmt.Errorf("oracle client is not initialized")
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateEmbeddings(callCtx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("create embedding: %w: no vector returned", ErrMalformedResponse)
	}
	return resp.Data[0].Embedding, nil
}

func (c *Client) completeJSON(ctx context.Context, system, user string, temperature float32) (string, error) {
	if c == nil || c.api == nil {
		return "", fmt.Errorf("oracle client is not initialized")
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: c.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: response missing choices", ErrMalformedResponse)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%w: empty message content", ErrMalformedResponse)
	}
	return content, nil
}
