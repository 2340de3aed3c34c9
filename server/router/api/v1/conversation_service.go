package v1

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hiwar-ai/hiwar/server/auth"
	"github.com/hiwar-ai/hiwar/store"
)

type conversationDTO struct {
	UID       string  `json:"uid"`
	Title     string  `json:"title"`
	Locale    string  `json:"locale"`
	Category  *string `json:"category,omitempty"`
	Favourite bool    `json:"favourite"`
	CreatedTs int64   `json:"created_ts"`
	UpdatedTs int64   `json:"updated_ts"`
}

type messageDTO struct {
	ID        int64   `json:"id"`
	Role      string  `json:"role"`
	Content   string  `json:"content"`
	ImageRef  *string `json:"image_ref,omitempty"`
	CreatedTs int64   `json:"created_ts"`
}

type updateConversationRequest struct {
	Title     *string `json:"title"`
	Category  *string `json:"category"`
	Favourite *bool   `json:"favourite"`
}

func toConversationDTO(conv *store.Conversation) *conversationDTO {
	if conv == nil {
		return nil
	}
	return &conversationDTO{
		UID:       conv.UID,
		Title:     conv.Title,
		Locale:    conv.Locale,
		Category:  conv.Category,
		Favourite: conv.Favourite,
		CreatedTs: conv.CreatedTs,
		UpdatedTs: conv.UpdatedTs,
	}
}

func toMessageDTO(msg *store.Message) *messageDTO {
	if msg == nil {
		return nil
	}
	return &messageDTO{
		ID:        msg.ID,
		Role:      string(msg.Role),
		Content:   msg.Content,
		ImageRef:  msg.ImageRef,
		CreatedTs: msg.CreatedTs,
	}
}

// findOwned loads a conversation by uid, scoped to the caller.
func (s *APIV1Service) findOwned(c echo.Context) (*store.Conversation, error) {
	ownerID := auth.UserID(c)
	uid := c.Param("uid")
	conv, err := s.Store.GetConversation(c.Request().Context(), &store.FindConversation{
		UID:       &uid,
		CreatorID: &ownerID,
	})
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to load conversation").SetInternal(err)
	}
	if conv == nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	return conv, nil
}

// listConversations returns the caller's conversations, most recently
// updated first. ?favourite=true narrows to favourites.
func (s *APIV1Service) listConversations(c echo.Context) error {
	ownerID := auth.UserID(c)
	find := &store.FindConversation{CreatorID: &ownerID}
	if c.QueryParam("favourite") == "true" {
		favourite := true
		find.Favourite = &favourite
	}

	convs, err := s.Store.ListConversations(c.Request().Context(), find)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list conversations").SetInternal(err)
	}

	out := make([]*conversationDTO, 0, len(convs))
	for _, conv := range convs {
		out = append(out, toConversationDTO(conv))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *APIV1Service) getConversation(c echo.Context) error {
	conv, err := s.findOwned(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toConversationDTO(conv))
}

func (s *APIV1Service) updateConversation(c echo.Context) error {
	conv, err := s.findOwned(c)
	if err != nil {
		return err
	}

	var req updateConversationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request").SetInternal(err)
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title must be non-empty")
	}
	if req.Title == nil && req.Category == nil && req.Favourite == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "no fields to update")
	}

	now := time.Now().UnixMilli()
	updated, err := s.Store.UpdateConversation(c.Request().Context(), &store.UpdateConversation{
		ID:        conv.ID,
		Title:     req.Title,
		Category:  req.Category,
		Favourite: req.Favourite,
		UpdatedTs: &now,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update conversation").SetInternal(err)
	}
	return c.JSON(http.StatusOK, toConversationDTO(updated))
}

// deleteConversation removes the conversation, its messages via the cascade,
// and any attachments referenced by those messages.
func (s *APIV1Service) deleteConversation(c echo.Context) error {
	conv, err := s.findOwned(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	msgs, err := s.Store.ListMessages(ctx, &store.FindMessage{ConversationID: &conv.ID})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list messages").SetInternal(err)
	}
	for _, msg := range msgs {
		if msg.ImageRef == nil {
			continue
		}
		uid := attachmentUIDFromRef(*msg.ImageRef)
		if uid == "" {
			continue
		}
		att, err := s.Store.GetAttachment(ctx, &store.FindAttachment{UID: &uid})
		if err != nil || att == nil {
			continue
		}
		// Best effort: a dangling attachment row is preferable to a failed
		// conversation delete.
		_ = s.Store.DeleteAttachment(ctx, &store.DeleteAttachment{ID: att.ID})
	}

	if err := s.Store.DeleteConversation(ctx, &store.DeleteConversation{ID: conv.ID}); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete conversation").SetInternal(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *APIV1Service) listMessages(c echo.Context) error {
	conv, err := s.findOwned(c)
	if err != nil {
		return err
	}

	msgs, err := s.Store.ListMessages(c.Request().Context(), &store.FindMessage{ConversationID: &conv.ID})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list messages").SetInternal(err)
	}

	out := make([]*messageDTO, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, toMessageDTO(msg))
	}
	return c.JSON(http.StatusOK, out)
}

// attachmentUIDFromRef extracts the uid from an image ref like
// "/o/attachments/<uid>".
func attachmentUIDFromRef(ref string) string {
	const prefix = "/o/attachments/"
	if !strings.HasPrefix(ref, prefix) {
		return ""
	}
	return strings.TrimPrefix(ref, prefix)
}
