package llm

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"
)

func TestNewServiceRequiresModel(t *testing.T) {
	_, err := NewService(&Config{})
	require.Error(t, err)

	svc, err := NewService(&Config{Model: "gpt-4o-mini", APIKey: "k"})
	require.NoError(t, err)
	require.NotNil(t, svc)
}

func TestNewServiceDefaults(t *testing.T) {
	completer, err := NewService(&Config{Model: "m", APIKey: "k"})
	require.NoError(t, err)

	svc, ok := completer.(*service)
	require.True(t, ok)
	require.Equal(t, defaultMaxTokens, svc.maxTokens)
	require.Equal(t, float32(defaultTemperature), svc.temperature)
	require.Equal(t, time.Duration(defaultTimeout)*time.Second, svc.timeout)
	require.Nil(t, svc.limiter)
}

func TestConvertTurnsRolesAndOrder(t *testing.T) {
	turns := []Turn{
		UserTurn("q1"),
		AssistantTurn("a1"),
		UserTurn("q2"),
	}

	messages := convertTurns(turns, nil)
	require.Len(t, messages, 3)
	require.Equal(t, openai.ChatMessageRoleUser, messages[0].Role)
	require.Equal(t, openai.ChatMessageRoleAssistant, messages[1].Role)
	require.Equal(t, openai.ChatMessageRoleUser, messages[2].Role)
	require.Equal(t, "q1", messages[0].Content)
	require.Equal(t, "a1", messages[1].Content)
	require.Equal(t, "q2", messages[2].Content)
}

func TestConvertTurnsInlineImageOnFinalTurn(t *testing.T) {
	turns := []Turn{
		UserTurn("earlier"),
		AssistantTurn("reply"),
		UserTurn("what is this"),
	}
	image := &InlineImage{MimeType: "image/png", Base64: "aGk="}

	messages := convertTurns(turns, image)
	require.Len(t, messages, 3)
	// Earlier turns stay plain text.
	require.Empty(t, messages[0].MultiContent)
	require.Empty(t, messages[1].MultiContent)

	last := messages[2]
	require.Empty(t, last.Content)
	require.Len(t, last.MultiContent, 2)
	require.Equal(t, openai.ChatMessagePartTypeText, last.MultiContent[0].Type)
	require.Equal(t, "what is this", last.MultiContent[0].Text)
	require.Equal(t, openai.ChatMessagePartTypeImageURL, last.MultiContent[1].Type)
	require.Equal(t, "data:image/png;base64,aGk=", last.MultiContent[1].ImageURL.URL)
}

func TestInlineImageDataURL(t *testing.T) {
	img := &InlineImage{MimeType: "image/jpeg", Base64: "Zm9v"}
	require.Equal(t, "data:image/jpeg;base64,Zm9v", img.DataURL())
}

func TestClassifyDeadline(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	err := classify(ctx, ctx.Err())
	require.Equal(t, KindTimeout, err.Kind)
}

func TestClassifyRateLimited(t *testing.T) {
	apiErr := &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}
	err := classify(context.Background(), apiErr)
	require.Equal(t, KindRateLimited, err.Kind)
}

func TestClassifyNetworkFallback(t *testing.T) {
	err := classify(context.Background(), fmt.Errorf("connection refused"))
	require.Equal(t, KindNetwork, err.Kind)

	apiErr := &openai.APIError{HTTPStatusCode: http.StatusInternalServerError}
	require.Equal(t, KindNetwork, classify(context.Background(), apiErr).Kind)
}

func TestIsRateLimited(t *testing.T) {
	require.True(t, isRateLimited(&openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}))
	require.False(t, isRateLimited(&openai.APIError{HTTPStatusCode: http.StatusBadGateway}))
	require.False(t, isRateLimited(fmt.Errorf("plain error")))
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("dispatch: %w", newError(KindMalformedResponse, fmt.Errorf("empty")))
	require.Equal(t, KindMalformedResponse, KindOf(wrapped))
	require.Equal(t, Kind(""), KindOf(fmt.Errorf("unrelated")))
	require.Equal(t, Kind(""), KindOf(nil))
}
