package store

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
)

// thumbnailMaxDim bounds the longest edge of generated thumbnails.
const thumbnailMaxDim = 512

// Attachment is an uploaded image referenced by messages. The blob lives on
// local disk under <data>/attachments; the row stores only the reference.
type Attachment struct {
	UID          string
	Filename     string
	MimeType     string
	Reference    string
	ThumbnailRef *string
	Blob         []byte // only populated on create, never read back from the row
	Size         int64
	CreatedTs    int64
	ID           int32
	CreatorID    int32
}

type FindAttachment struct {
	ID        *int32
	UID       *string
	CreatorID *int32
}

type DeleteAttachment struct {
	ID int32
}

// SaveAttachment uploads an image: the blob is written to the data directory,
// a downscaled thumbnail is generated next to it, and a row referencing both
// is inserted. The returned attachment carries the reference used to build
// the public image URL.
func (s *Store) SaveAttachment(ctx context.Context, create *Attachment) (*Attachment, error) {
	if len(create.Blob) == 0 {
		return nil, errors.New("attachment blob required")
	}

	dir := filepath.Join(s.profile.Data, "attachments")
	if err := os.MkdirAll(dir, 0770); err != nil {
		return nil, errors.Wrap(err, "failed to create attachments directory")
	}

	ext := filepath.Ext(create.Filename)
	name := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(dir, name), create.Blob, 0660); err != nil {
		return nil, errors.Wrap(err, "failed to write attachment blob")
	}

	create.UID = shortuuid.New()
	create.Reference = filepath.ToSlash(filepath.Join("attachments", name))
	create.Size = int64(len(create.Blob))
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().UnixMilli()
	}

	// Thumbnail generation is best-effort: an undecodable image still uploads.
	if thumb, err := renderThumbnail(create.Blob); err == nil {
		thumbName := "thumb_" + name
		if err := os.WriteFile(filepath.Join(dir, thumbName), thumb, 0660); err == nil {
			ref := filepath.ToSlash(filepath.Join("attachments", thumbName))
			create.ThumbnailRef = &ref
		} else {
			slog.Warn("failed to write attachment thumbnail", "filename", create.Filename, "error", err)
		}
	} else {
		slog.Warn("failed to render attachment thumbnail", "filename", create.Filename, "error", err)
	}

	attachment, err := s.driver.CreateAttachment(ctx, create)
	if err != nil {
		// The row is the source of truth; orphaned files are removed so a
		// failed insert leaves no trace on disk.
		_ = os.Remove(filepath.Join(dir, name))
		if create.ThumbnailRef != nil {
			_ = os.Remove(filepath.Join(s.profile.Data, filepath.FromSlash(*create.ThumbnailRef)))
		}
		return nil, err
	}
	return attachment, nil
}

func renderThumbnail(blob []byte) ([]byte, error) {
	src, err := imaging.Decode(bytes.NewReader(blob), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode image")
	}

	bounds := src.Bounds()
	if bounds.Dx() > thumbnailMaxDim || bounds.Dy() > thumbnailMaxDim {
		src = imaging.Fit(src, thumbnailMaxDim, thumbnailMaxDim, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, src, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, errors.Wrap(err, "failed to encode thumbnail")
	}
	return buf.Bytes(), nil
}

func (s *Store) GetAttachment(ctx context.Context, find *FindAttachment) (*Attachment, error) {
	attachments, err := s.driver.ListAttachments(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(attachments) == 0 {
		return nil, nil
	}
	return attachments[0], nil
}

// AttachmentFilePath resolves an attachment reference to its on-disk path.
func (s *Store) AttachmentFilePath(reference string) string {
	return filepath.Join(s.profile.Data, filepath.FromSlash(reference))
}

func (s *Store) DeleteAttachment(ctx context.Context, delete *DeleteAttachment) error {
	attachment, err := s.GetAttachment(ctx, &FindAttachment{ID: &delete.ID})
	if err != nil {
		return errors.Wrap(err, "failed to get attachment")
	}
	if attachment == nil {
		return errors.New("attachment not found")
	}

	for _, ref := range []string{attachment.Reference, derefOrEmpty(attachment.ThumbnailRef)} {
		if ref == "" {
			continue
		}
		p := s.AttachmentFilePath(ref)
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			// Log but don't prevent database deletion.
			slog.Error("failed to delete attachment file",
				"error", err,
				"path", p,
				"attachment_id", delete.ID,
			)
		}
	}

	return s.driver.DeleteAttachment(ctx, delete)
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
