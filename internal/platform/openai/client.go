package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/yungbote/syllabridge-backend/internal/platform/envutil"
	"github.com/yungbote/syllabridge-backend/internal/platform/logger"
)

const (
	DefaultModel = "gpt-4o-mini"

	baseBackoff = 2 * time.Second
	maxBackoff  = 32 * time.Second
)

var ErrAPIKeyNotSet = errors.New("missing OPENAI_API_KEY")

type Usage struct {
	InputTokens  int
	OutputTokens int
}

// JSONResult is one chat completion constrained to a JSON object.
type JSONResult struct {
	Content string
	Model   string
	Usage   Usage
}

// Client is the slice of the OpenAI API the backend depends on.
type Client interface {
	GenerateJSON(ctx context.Context, system string, user string) (JSONResult, error)
	Model() string
}

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxRetries  int
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:      strings.TrimSpace(envutil.String("OPENAI_API_KEY", "")),
		BaseURL:     strings.TrimRight(strings.TrimSpace(envutil.String("OPENAI_BASE_URL", "")), "/"),
		Model:       envutil.String("OPENAI_MODEL", DefaultModel),
		Temperature: envutil.Float("OPENAI_TEMPERATURE", 0),
		MaxRetries:  envutil.Int("OPENAI_MAX_RETRIES", 3),
	}
}

type client struct {
	log        *logger.Logger
	api        openai.Client
	model      string
	temp       float64
	maxRetries int
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	// Retries are owned here so every attempt is visible in logs and metrics.
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &client{
		log:        log.With("service", "OpenAIClient"),
		api:        openai.NewClient(opts...),
		model:      cfg.Model,
		temp:       cfg.Temperature,
		maxRetries: cfg.MaxRetries,
	}, nil
}

func (c *client) Model() string { return c.model }

func (c *client) GenerateJSON(ctx context.Context, system string, user string) (JSONResult, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(c.temp),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{Type: "json_object"},
		},
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := backoff(attempt)
			c.log.Warn("openai retry", "attempt", attempt, "wait", wait.String(), "error", lastErr)
			select {
			case <-ctx.Done():
				return JSONResult{}, ctx.Err()
			case <-time.After(wait):
			}
		}
		completion, err := c.api.Chat.Completions.New(ctx, params)
		if err != nil {
			lastErr = err
			if IsRetryable(err) && ctx.Err() == nil {
				continue
			}
			return JSONResult{}, fmt.Errorf("openai chat completion: %w", err)
		}
		if len(completion.Choices) == 0 {
			return JSONResult{}, fmt.Errorf("openai chat completion: no choices returned")
		}
		return JSONResult{
			Content: completion.Choices[0].Message.Content,
			Model:   completion.Model,
			Usage: Usage{
				InputTokens:  int(completion.Usage.PromptTokens),
				OutputTokens: int(completion.Usage.CompletionTokens),
			},
		}, nil
	}
	return JSONResult{}, fmt.Errorf("openai chat completion: retries exhausted: %w", lastErr)
}

// IsRetryable reports rate limiting and server-side failures.
func IsRetryable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}

func backoff(attempt int) time.Duration {
	d := time.Duration(math.Pow(2, float64(attempt-1))) * baseBackoff
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}
