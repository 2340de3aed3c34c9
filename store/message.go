package store

import (
	"context"

	"github.com/pkg/errors"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn within a conversation. Messages are append-only:
// there is no update or single-message delete, only whole-conversation
// deletion cascades.
type Message struct {
	Content        string
	Role           Role
	ImageRef       *string
	CreatedTs      int64
	ID             int64
	ConversationID int32
}

type FindMessage struct {
	ID             *int64
	ConversationID *int32
	Role           *Role
}

func (s *Store) CreateMessage(ctx context.Context, create *Message) (*Message, error) {
	if create.Role != RoleUser && create.Role != RoleAssistant {
		return nil, errors.Errorf("invalid message role %q", create.Role)
	}
	if create.ConversationID == 0 {
		return nil, errors.New("message conversation id required")
	}
	return s.driver.CreateMessage(ctx, create)
}

// ListMessages returns messages ordered by (created_ts, id) ascending,
// which is the replay order for completion history.
func (s *Store) ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error) {
	return s.driver.ListMessages(ctx, find)
}
