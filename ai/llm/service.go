// Package llm is the client for the external completion service. It speaks
// the OpenAI-compatible chat protocol and returns typed errors so the
// dispatch pipeline can distinguish a failed completion from a real answer.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// Turn is one conversation turn replayed to the completion service.
// Ephemeral: derived from stored messages for the duration of one call.
type Turn struct {
	Role string // user, assistant
	Text string
}

// UserTurn creates a user turn.
func UserTurn(text string) Turn {
	return Turn{Role: "user", Text: text}
}

// AssistantTurn creates an assistant turn.
func AssistantTurn(text string) Turn {
	return Turn{Role: "assistant", Text: text}
}

// InlineImage is the single optional image attached to the final turn of a
// completion call. Exactly one encoding is supported: base64 data URL with
// the declared MIME type.
type InlineImage struct {
	MimeType string
	Base64   string
}

// DataURL renders the inline payload the completion service expects.
func (i *InlineImage) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", i.MimeType, i.Base64)
}

// Completer calls the external completion service with an ordered turn
// sequence and returns the assistant's reply text.
type Completer interface {
	Complete(ctx context.Context, turns []Turn, image *InlineImage) (string, error)
}

// Config represents completion service configuration.
type Config struct {
	Provider    string // openai, deepseek, siliconflow, ollama
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int     // default: 2048
	Temperature float32 // default: 0.7
	Timeout     int     // Request timeout in seconds (default: 60)

	// RequestsPerMinute smooths outgoing calls client-side; 0 disables.
	RequestsPerMinute int
}

const (
	defaultMaxTokens   = 2048
	defaultTemperature = 0.7
	defaultTimeout     = 60

	// rateLimitedBackoff is the pause before the single RateLimited retry.
	rateLimitedBackoff = 2 * time.Second
)

type service struct {
	client      *openai.Client
	limiter     *rate.Limiter
	model       string
	provider    string
	maxTokens   int
	temperature float32
	timeout     time.Duration
}

// NewService creates a new completion service client.
func NewService(cfg *Config) (Completer, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = newHTTPClient()

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = defaultTemperature
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.RequestsPerMinute)
	}

	return &service{
		client:      openai.NewClientWithConfig(clientConfig),
		limiter:     limiter,
		model:       cfg.Model,
		provider:    cfg.Provider,
		maxTokens:   maxTokens,
		temperature: temperature,
		timeout:     time.Duration(timeout) * time.Second,
	}, nil
}

// Complete sends the ordered turns plus the optional inline image and waits
// for the assistant text. Exactly one request is made per call, except for a
// single retry after a rate-limit rejection.
func (s *service) Complete(ctx context.Context, turns []Turn, image *InlineImage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return "", classify(ctx, err)
		}
	}

	req := openai.ChatCompletionRequest{
		Model:       s.model,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
		Messages:    convertTurns(turns, image),
	}

	slog.Debug("completion request",
		"model", s.model,
		"turns", len(turns),
		"has_image", image != nil,
	)

	startTime := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil && isRateLimited(err) {
		// At most one bounded retry with backoff; further 429s propagate.
		slog.Warn("completion rate limited, retrying once", "model", s.model)
		select {
		case <-time.After(rateLimitedBackoff):
		case <-ctx.Done():
			return "", classify(ctx, ctx.Err())
		}
		resp, err = s.client.CreateChatCompletion(ctx, req)
	}
	if err != nil {
		slog.Error("completion request failed", "model", s.model, "error", err)
		return "", classify(ctx, err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		slog.Warn("completion returned no usable text", "model", s.model)
		return "", newError(KindMalformedResponse, fmt.Errorf("empty response from completion service"))
	}

	slog.Debug("completion response received",
		"content_length", len(resp.Choices[0].Message.Content),
		"total_tokens", resp.Usage.TotalTokens,
		"duration_ms", time.Since(startTime).Milliseconds(),
	)

	return resp.Choices[0].Message.Content, nil
}

// convertTurns maps turns to wire messages. The inline image, when present,
// rides the final turn as a multi-part user message.
func convertTurns(turns []Turn, image *InlineImage) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, len(turns))
	for i, t := range turns {
		role := openai.ChatMessageRoleUser
		if t.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages[i] = openai.ChatCompletionMessage{
			Role:    role,
			Content: t.Text,
		}
	}

	if image != nil && len(messages) > 0 {
		last := &messages[len(messages)-1]
		last.MultiContent = []openai.ChatMessagePart{
			{
				Type: openai.ChatMessagePartTypeText,
				Text: last.Content,
			},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL: image.DataURL(),
				},
			},
		}
		last.Content = ""
	}

	return messages
}

func isRateLimited(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}

// classify maps a transport/service failure onto the closed error taxonomy.
func classify(ctx context.Context, err error) *Error {
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		return newError(KindTimeout, err)
	case isRateLimited(err):
		return newError(KindRateLimited, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newError(KindTimeout, err)
	}

	return newError(KindNetwork, err)
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}
