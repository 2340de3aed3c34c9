// Package v1 exposes the conversation API over HTTP.
package v1

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hiwar-ai/hiwar/chat"
	"github.com/hiwar-ai/hiwar/internal/profile"
	"github.com/hiwar-ai/hiwar/server/auth"
	"github.com/hiwar-ai/hiwar/store"
)

type APIV1Service struct {
	Profile    *profile.Profile
	Store      *store.Store
	Dispatcher *chat.Dispatcher
	Registry   *prometheus.Registry
	Secret     string
}

func NewAPIV1Service(secret string, profile *profile.Profile, store *store.Store, dispatcher *chat.Dispatcher, registry *prometheus.Registry) *APIV1Service {
	return &APIV1Service{
		Secret:     secret,
		Profile:    profile,
		Store:      store,
		Dispatcher: dispatcher,
		Registry:   registry,
	}
}

// RegisterRoutes mounts the API on the echo instance.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	// Dev mode runs unauthenticated requests as user 1.
	var anonymousID int32
	if s.Profile.Mode == "dev" || s.Profile.Mode == "demo" {
		anonymousID = 1
	}

	api := e.Group("/api/v1", auth.Middleware(s.Secret, anonymousID))
	api.POST("/chat", s.handleChat)
	api.GET("/conversations", s.listConversations)
	api.GET("/conversations/:uid", s.getConversation)
	api.PATCH("/conversations/:uid", s.updateConversation)
	api.DELETE("/conversations/:uid", s.deleteConversation)
	api.GET("/conversations/:uid/messages", s.listMessages)

	// Attachment blobs are served by unguessable uid, outside the API group.
	e.GET("/o/attachments/:uid", s.serveAttachment)
	e.GET("/o/attachments/:uid/thumbnail", s.serveThumbnail)
}
