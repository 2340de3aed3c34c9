package chat

import (
	"github.com/hiwar-ai/hiwar/ai/llm"
	"github.com/hiwar-ai/hiwar/store"
)

// AssembleHistory converts a conversation's stored messages, already ordered
// by (created_ts, id), into the turn sequence replayed to the completion
// service.
//
// Images attached to historical messages are not replayed; only the current
// turn may carry an image. Callers append the new turn themselves.
func AssembleHistory(messages []*store.Message) []llm.Turn {
	turns := make([]llm.Turn, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case store.RoleAssistant:
			turns = append(turns, llm.AssistantTurn(m.Content))
		default:
			turns = append(turns, llm.UserTurn(m.Content))
		}
	}
	return turns
}
