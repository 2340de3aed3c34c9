package v1

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hiwar-ai/hiwar/ai/llm"
	"github.com/hiwar-ai/hiwar/ai/prompt"
	"github.com/hiwar-ai/hiwar/chat"
	"github.com/hiwar-ai/hiwar/server/auth"
	"github.com/hiwar-ai/hiwar/store"
)

// maxImageBytes bounds an uploaded chat image.
const maxImageBytes = 8 << 20

type chatRequest struct {
	ConversationUID string `json:"conversation_uid" form:"conversation_uid"`
	Text            string `json:"text" form:"text"`
	Title           string `json:"title" form:"title"`
	Locale          string `json:"locale" form:"locale"`
	Create          bool   `json:"create" form:"create"`
	Greeting        bool   `json:"greeting" form:"greeting"`
}

type chatErrorResponse struct {
	Error           string      `json:"error"`
	ConversationUID string      `json:"conversation_uid"`
	UserMessage     *messageDTO `json:"user_message"`
}

type chatResponse struct {
	ConversationUID string      `json:"conversation_uid"`
	Replied         bool        `json:"replied"`
	UserMessage     *messageDTO `json:"user_message,omitempty"`
	Reply           *messageDTO `json:"reply,omitempty"`
}

// handleChat submits one user turn. The request is JSON, or multipart
// form-data when an image rides along in the "image" file field.
func (s *APIV1Service) handleChat(c echo.Context) error {
	ownerID := auth.UserID(c)

	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request").SetInternal(err)
	}

	submit := chat.SubmitRequest{
		OwnerID:  ownerID,
		Text:     req.Text,
		Greeting: req.Greeting,
	}

	if req.ConversationUID != "" {
		conv, err := s.Store.GetConversation(c.Request().Context(), &store.FindConversation{
			UID:       &req.ConversationUID,
			CreatorID: &ownerID,
		})
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to load conversation").SetInternal(err)
		}
		if conv == nil {
			return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
		}
		submit.ConversationID = conv.ID
	} else if req.Create || req.Greeting {
		submit.Create = &chat.CreateConversation{
			Title:  req.Title,
			Locale: prompt.ParseLocale(req.Locale),
		}
	}

	if err := s.attachImage(c, &submit); err != nil {
		return err
	}

	outcome := s.Dispatcher.SubmitTurn(c.Request().Context(), submit)
	if outcome.Err != nil {
		httpErr := dispatchHTTPError(outcome.Err)
		if outcome.UserMessage != nil {
			// The user message is durable; return it so the client can show
			// the "sent, no reply yet" state.
			return c.JSON(httpErr.Code, chatErrorResponse{
				Error:           fmt.Sprint(httpErr.Message),
				ConversationUID: outcome.ConversationUID,
				UserMessage:     toMessageDTO(outcome.UserMessage),
			})
		}
		return httpErr
	}

	return c.JSON(http.StatusOK, chatResponse{
		ConversationUID: outcome.ConversationUID,
		Replied:         outcome.Replied,
		UserMessage:     toMessageDTO(outcome.UserMessage),
		Reply:           toMessageDTO(outcome.Reply),
	})
}

func (s *APIV1Service) attachImage(c echo.Context, submit *chat.SubmitRequest) error {
	contentType := c.Request().Header.Get(echo.HeaderContentType)
	if !strings.HasPrefix(contentType, echo.MIMEMultipartForm) {
		return nil
	}
	fileHeader, err := c.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil
		}
		return echo.NewHTTPError(http.StatusBadRequest, "malformed image upload").SetInternal(err)
	}
	if fileHeader.Size > maxImageBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "image too large")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read image").SetInternal(err)
	}
	defer file.Close()

	blob, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read image").SetInternal(err)
	}
	if len(blob) > maxImageBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "image too large")
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if !strings.HasPrefix(mimeType, "image/") {
		return echo.NewHTTPError(http.StatusBadRequest, "attachment must be an image")
	}

	submit.Image = blob
	submit.ImageMimeType = mimeType
	submit.ImageFilename = fileHeader.Filename
	return nil
}

// dispatchHTTPError maps the pipeline's typed errors onto status codes.
func dispatchHTTPError(err error) *echo.HTTPError {
	var ve *chat.ValidationError
	if errors.As(err, &ve) {
		return echo.NewHTTPError(http.StatusBadRequest, ve.Reason)
	}
	if errors.Is(err, chat.ErrConversationNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	if errors.Is(err, chat.ErrConversationBusy) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "conversation has too many pending turns")
	}

	switch llm.KindOf(err) {
	case llm.KindTimeout:
		return echo.NewHTTPError(http.StatusGatewayTimeout, "completion timed out").SetInternal(err)
	case llm.KindRateLimited:
		return echo.NewHTTPError(http.StatusTooManyRequests, "completion service rate limited").SetInternal(err)
	case llm.KindNetwork, llm.KindMalformedResponse:
		return echo.NewHTTPError(http.StatusBadGateway, "completion service unavailable").SetInternal(err)
	}

	return echo.NewHTTPError(http.StatusInternalServerError, "dispatch failed").SetInternal(err)
}
