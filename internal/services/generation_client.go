package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"simple-bot/internal/config"

	"go.uber.org/zap"
)

// Generator completes a fully rendered prompt
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type hfGenerationRequest struct {
	Inputs     string                 `json:"inputs"`
	Parameters hfGenerationParameters `json:"parameters"`
	Options    hfRequestOptions       `json:"options"`
}

type hfGenerationParameters struct {
	MaxNewTokens   int     `json:"max_new_tokens"`
	Temperature    float64 `json:"temperature"`
	ReturnFullText bool    `json:"return_full_text"`
}

type hfGeneration struct {
	GeneratedText string `json:"generated_text"`
}

// HFGenerator calls a Hugging Face text-generation endpoint.
// The generated text is returned unmodified.
type HFGenerator struct {
	client       *providerClient
	endpointURL  string
	maxNewTokens int
	temperature  float64
	logger       *zap.SugaredLogger
}

// NewHFGenerator fails with ErrConfig when the token or endpoint is missing,
// before any request is made.
func NewHFGenerator(cfg config.GeneratorConfig, token string, logger *zap.SugaredLogger) (*HFGenerator, error) {
	if token == "" {
		return nil, configError("new_generator", fmt.Errorf("HF_TOKEN is not set"))
	}
	if cfg.EndpointURL == "" {
		return nil, configError("new_generator", fmt.Errorf("generator endpoint_url is required"))
	}

	return &HFGenerator{
		client:       newProviderClient(token, time.Duration(cfg.TimeoutSecs)*time.Second, cfg.RequestsPerSecond),
		endpointURL:  cfg.EndpointURL,
		maxNewTokens: cfg.MaxNewTokens,
		temperature:  cfg.Temperature,
		logger:       logger,
	}, nil
}

// Complete sends the prompt and returns the first generated text
func (g *HFGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	req := hfGenerationRequest{
		Inputs: prompt,
		Parameters: hfGenerationParameters{
			MaxNewTokens:   g.maxNewTokens,
			Temperature:    g.temperature,
			ReturnFullText: false,
		},
		Options: hfRequestOptions{WaitForModel: true},
	}

	start := time.Now()
	resp, err := g.client.makeRequest(ctx, http.MethodPost, g.endpointURL, req)
	if err != nil {
		return "", generationError("complete", err)
	}

	var generations []hfGeneration
	if err := parseResponse(resp, &generations); err != nil {
		return "", generationError("complete", err)
	}
	if len(generations) == 0 {
		return "", generationError("complete", fmt.Errorf("endpoint returned no generations"))
	}

	g.logger.Debugf("Generated %d chars in %v", len(generations[0].GeneratedText), time.Since(start))
	return generations[0].GeneratedText, nil
}

// NewGenerator builds the generator selected by cfg.Provider
func NewGenerator(cfg config.GeneratorConfig, token string, logger *zap.SugaredLogger) (Generator, error) {
	switch cfg.Provider {
	case "", "huggingface":
		g, err := NewHFGenerator(cfg, token, logger)
		if err != nil {
			return nil, err
		}
		return g, nil
	case "openai":
		s, err := NewLLMService(cfg, token, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, configError("new_generator", fmt.Errorf("unknown generation provider %q", cfg.Provider))
	}
}
