package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"simple-bot/internal/config"

	"go.uber.org/zap"
)

// chatMessage is one message of an OpenAI-compatible chat completion request
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatCompletionRequest represents the request format for /chat/completions
type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

// chatCompletionResponse represents the response from /chat/completions
type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// LLMService is a Generator backed by any OpenAI-compatible chat completions
// endpoint (Hugging Face router, LM Studio, vLLM). The rendered prompt is
// sent as a single user message.
type LLMService struct {
	client      *providerClient
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	logger      *zap.SugaredLogger
}

// NewLLMService creates a chat completions generator
func NewLLMService(cfg config.GeneratorConfig, token string, logger *zap.SugaredLogger) (*LLMService, error) {
	if token == "" {
		return nil, configError("new_llm_service", fmt.Errorf("HF_TOKEN is not set"))
	}
	if cfg.EndpointURL == "" || cfg.Model == "" {
		return nil, configError("new_llm_service", fmt.Errorf("generator endpoint_url and model are required"))
	}

	return &LLMService{
		client:      newProviderClient(token, time.Duration(cfg.TimeoutSecs)*time.Second, cfg.RequestsPerSecond),
		baseURL:     strings.TrimRight(cfg.EndpointURL, "/"),
		model:       cfg.Model,
		maxTokens:   cfg.MaxNewTokens,
		temperature: cfg.Temperature,
		logger:      logger,
	}, nil
}

// Complete sends the prompt and returns the assistant message content
func (s *LLMService) Complete(ctx context.Context, prompt string) (string, error) {
	req := chatCompletionRequest{
		Model:       s.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
		Stream:      false,
	}

	resp, err := s.client.makeRequest(ctx, http.MethodPost, s.baseURL+"/chat/completions", req)
	if err != nil {
		return "", generationError("chat_completion", err)
	}

	var completion chatCompletionResponse
	if err := parseResponse(resp, &completion); err != nil {
		return "", generationError("chat_completion", err)
	}
	if len(completion.Choices) == 0 {
		return "", generationError("chat_completion", fmt.Errorf("no choices in response"))
	}

	s.logger.Debugf("Chat completion %s: %d prompt / %d completion tokens",
		completion.ID, completion.Usage.PromptTokens, completion.Usage.CompletionTokens)
	return completion.Choices[0].Message.Content, nil
}

// HealthCheck verifies the endpoint is reachable and lists models
func (s *LLMService) HealthCheck(ctx context.Context) error {
	resp, err := s.client.makeRequest(ctx, http.MethodGet, s.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("chat completions endpoint not reachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("chat completions endpoint returned status %d", resp.StatusCode)
	}

	return nil
}
