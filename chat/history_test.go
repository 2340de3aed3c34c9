package chat

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hiwar-ai/hiwar/store"
)

func TestAssembleHistoryMapsRolesInOrder(t *testing.T) {
	ref := "/o/attachments/abc"
	messages := []*store.Message{
		{Role: store.RoleUser, Content: "q1", ImageRef: &ref},
		{Role: store.RoleAssistant, Content: "a1"},
		{Role: store.RoleUser, Content: "q2"},
	}

	turns := AssembleHistory(messages)
	require.Len(t, turns, 3)
	require.Equal(t, "user", turns[0].Role)
	require.Equal(t, "q1", turns[0].Text)
	require.Equal(t, "assistant", turns[1].Role)
	require.Equal(t, "user", turns[2].Role)
}

func TestAssembleHistoryEmpty(t *testing.T) {
	turns := AssembleHistory(nil)
	require.NotNil(t, turns)
	require.Empty(t, turns)
}

func TestAssembleHistoryIsReadOnly(t *testing.T) {
	messages := []*store.Message{
		{Role: store.RoleUser, Content: "question"},
	}
	AssembleHistory(messages)
	AssembleHistory(messages)
	require.Equal(t, "question", messages[0].Content)
}
