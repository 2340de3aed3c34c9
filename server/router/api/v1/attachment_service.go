package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hiwar-ai/hiwar/store"
)

// serveAttachment streams an attachment blob from disk.
func (s *APIV1Service) serveAttachment(c echo.Context) error {
	return s.serveAttachmentFile(c, false)
}

// serveThumbnail serves the downscaled variant when one exists, falling back
// to the original otherwise.
func (s *APIV1Service) serveThumbnail(c echo.Context) error {
	return s.serveAttachmentFile(c, true)
}

func (s *APIV1Service) serveAttachmentFile(c echo.Context, thumbnail bool) error {
	uid := c.Param("uid")
	att, err := s.Store.GetAttachment(c.Request().Context(), &store.FindAttachment{UID: &uid})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load attachment").SetInternal(err)
	}
	if att == nil {
		return echo.NewHTTPError(http.StatusNotFound, "attachment not found")
	}

	reference := att.Reference
	mimeType := att.MimeType
	if thumbnail && att.ThumbnailRef != nil {
		reference = *att.ThumbnailRef
		mimeType = "image/jpeg"
	}

	c.Response().Header().Set(echo.HeaderContentType, mimeType)
	c.Response().Header().Set("Cache-Control", "public, max-age=86400")
	return c.File(s.Store.AttachmentFilePath(reference))
}
