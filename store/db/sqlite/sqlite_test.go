package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hiwar-ai/hiwar/internal/profile"
	"github.com/hiwar-ai/hiwar/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	p := &profile.Profile{
		Mode:   "prod",
		Driver: "sqlite",
		DSN:    filepath.Join(dir, "hiwar_test.db"),
		Data:   dir,
	}
	driver, err := NewDB(p)
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })

	st := store.New(driver, p)
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func createTestConversation(t *testing.T, st *store.Store, uid string) *store.Conversation {
	t.Helper()
	now := time.Now().UnixMilli()
	conv, err := st.CreateConversation(context.Background(), &store.Conversation{
		UID:       uid,
		CreatorID: 1,
		Title:     "test conversation",
		Locale:    "en",
		CreatedTs: now,
		UpdatedTs: now,
	})
	require.NoError(t, err)
	require.NotZero(t, conv.ID)
	return conv
}

func TestMigrateIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}

func TestConversationCRUD(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	conv := createTestConversation(t, st, "conv-1")

	got, err := st.GetConversation(ctx, &store.FindConversation{UID: &conv.UID})
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, conv.ID, got.ID)
	require.Equal(t, "test conversation", got.Title)
	require.Equal(t, "en", got.Locale)
	require.False(t, got.Favourite)

	title := "renamed"
	favourite := true
	updatedTs := time.Now().UnixMilli() + 1000
	updated, err := st.UpdateConversation(ctx, &store.UpdateConversation{
		ID:        conv.ID,
		Title:     &title,
		Favourite: &favourite,
		UpdatedTs: &updatedTs,
	})
	require.NoError(t, err)
	require.Equal(t, "renamed", updated.Title)
	require.True(t, updated.Favourite)
	require.Equal(t, updatedTs, updated.UpdatedTs)

	require.NoError(t, st.DeleteConversation(ctx, &store.DeleteConversation{ID: conv.ID}))
	got, err = st.GetConversation(ctx, &store.FindConversation{UID: &conv.UID})
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestListConversationsFiltersAndOrder(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	base := time.Now().UnixMilli()
	for i := 0; i < 3; i++ {
		_, err := st.CreateConversation(ctx, &store.Conversation{
			UID:       fmt.Sprintf("conv-%d", i),
			CreatorID: 1,
			Title:     fmt.Sprintf("conversation %d", i),
			Locale:    "en",
			CreatedTs: base + int64(i),
			UpdatedTs: base + int64(i),
		})
		require.NoError(t, err)
	}
	_, err := st.CreateConversation(ctx, &store.Conversation{
		UID:       "other-owner",
		CreatorID: 2,
		Title:     "not mine",
		Locale:    "en",
		CreatedTs: base,
		UpdatedTs: base,
	})
	require.NoError(t, err)

	creatorID := int32(1)
	convs, err := st.ListConversations(ctx, &store.FindConversation{CreatorID: &creatorID})
	require.NoError(t, err)
	require.Len(t, convs, 3)
	// Most recently updated first.
	require.Equal(t, "conv-2", convs[0].UID)
	require.Equal(t, "conv-0", convs[2].UID)
}

func TestMessageOrderAndRoleConstraint(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	conv := createTestConversation(t, st, "conv-msgs")

	base := time.Now().UnixMilli()
	contents := []struct {
		role store.Role
		text string
		ts   int64
	}{
		{store.RoleUser, "q1", base},
		{store.RoleAssistant, "a1", base + 1},
		{store.RoleUser, "q2", base + 1}, // same ts as a1, later id
		{store.RoleAssistant, "a2", base + 2},
	}
	for _, c := range contents {
		_, err := st.CreateMessage(ctx, &store.Message{
			ConversationID: conv.ID,
			Role:           c.role,
			Content:        c.text,
			CreatedTs:      c.ts,
		})
		require.NoError(t, err)
	}

	msgs, err := st.ListMessages(ctx, &store.FindMessage{ConversationID: &conv.ID})
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	require.Equal(t, "q1", msgs[0].Content)
	require.Equal(t, "a1", msgs[1].Content)
	require.Equal(t, "q2", msgs[2].Content)
	require.Equal(t, "a2", msgs[3].Content)

	_, err = st.CreateMessage(ctx, &store.Message{
		ConversationID: conv.ID,
		Role:           store.Role("system"),
		Content:        "nope",
		CreatedTs:      base,
	})
	require.Error(t, err)
}

func TestMessageImageRefRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	conv := createTestConversation(t, st, "conv-img")

	ref := "/o/attachments/abc123"
	created, err := st.CreateMessage(ctx, &store.Message{
		ConversationID: conv.ID,
		Role:           store.RoleUser,
		Content:        "look at this",
		ImageRef:       &ref,
		CreatedTs:      time.Now().UnixMilli(),
	})
	require.NoError(t, err)
	require.NotNil(t, created.ImageRef)

	msgs, err := st.ListMessages(ctx, &store.FindMessage{ConversationID: &conv.ID})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].ImageRef)
	require.Equal(t, ref, *msgs[0].ImageRef)
}

func TestDeleteConversationCascadesMessages(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	conv := createTestConversation(t, st, "conv-cascade")
	keep := createTestConversation(t, st, "conv-keep")

	for _, target := range []*store.Conversation{conv, keep} {
		_, err := st.CreateMessage(ctx, &store.Message{
			ConversationID: target.ID,
			Role:           store.RoleUser,
			Content:        "hello",
			CreatedTs:      time.Now().UnixMilli(),
		})
		require.NoError(t, err)
	}

	require.NoError(t, st.DeleteConversation(ctx, &store.DeleteConversation{ID: conv.ID}))

	orphans, err := st.ListMessages(ctx, &store.FindMessage{ConversationID: &conv.ID})
	require.NoError(t, err)
	require.Empty(t, orphans)

	kept, err := st.ListMessages(ctx, &store.FindMessage{ConversationID: &keep.ID})
	require.NoError(t, err)
	require.Len(t, kept, 1)
}

func TestMessageRejectsMissingConversation(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	_, err := st.CreateMessage(ctx, &store.Message{
		ConversationID: 999,
		Role:           store.RoleUser,
		Content:        "orphan",
		CreatedTs:      time.Now().UnixMilli(),
	})
	require.Error(t, err)
}
