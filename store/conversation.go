package store

import (
	"context"

	"github.com/pkg/errors"
)

// Conversation is a titled, owned thread of messages.
type Conversation struct {
	UID       string
	Title     string
	Locale    string // "en" or "ar", affects greeting and default title only
	Category  *string
	CreatedTs int64
	UpdatedTs int64
	ID        int32
	CreatorID int32
	Favourite bool
}

type FindConversation struct {
	ID        *int32
	UID       *string
	CreatorID *int32
	Favourite *bool
}

type UpdateConversation struct {
	Title     *string
	Category  *string
	Favourite *bool
	UpdatedTs *int64
	ID        int32
}

type DeleteConversation struct {
	ID int32
}

func (s *Store) CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error) {
	if create.UID == "" {
		return nil, errors.New("conversation uid required")
	}
	return s.driver.CreateConversation(ctx, create)
}

func (s *Store) ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error) {
	return s.driver.ListConversations(ctx, find)
}

func (s *Store) GetConversation(ctx context.Context, find *FindConversation) (*Conversation, error) {
	conversations, err := s.driver.ListConversations(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(conversations) == 0 {
		return nil, nil
	}
	return conversations[0], nil
}

func (s *Store) UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error) {
	return s.driver.UpdateConversation(ctx, update)
}

// DeleteConversation removes the conversation and, via the schema's
// ON DELETE CASCADE, every message in it.
func (s *Store) DeleteConversation(ctx context.Context, delete *DeleteConversation) error {
	return s.driver.DeleteConversation(ctx, delete)
}
