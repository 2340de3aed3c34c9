package postgres

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/hiwar-ai/hiwar/store"
)

func (d *DB) CreateAttachment(ctx context.Context, create *store.Attachment) (*store.Attachment, error) {
	fields := []string{"uid", "creator_id", "filename", "mime_type", "size", "reference", "thumbnail_ref", "created_ts"}
	args := []any{create.UID, create.CreatorID, create.Filename, create.MimeType, create.Size, create.Reference, create.ThumbnailRef, create.CreatedTs}

	stmt := `INSERT INTO attachment (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create attachment")
	}

	return create, nil
}

func (d *DB) ListAttachments(ctx context.Context, find *store.FindAttachment) ([]*store.Attachment, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *find.UID)
	}
	if find.CreatorID != nil {
		where, args = append(where, "creator_id = "+placeholder(len(args)+1)), append(args, *find.CreatorID)
	}

	query := `
		SELECT id, uid, creator_id, filename, mime_type, size, reference, thumbnail_ref, created_ts
		FROM attachment
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC, id DESC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list attachments")
	}
	defer rows.Close()

	list := make([]*store.Attachment, 0)
	for rows.Next() {
		a := &store.Attachment{}
		if err := rows.Scan(&a.ID, &a.UID, &a.CreatorID, &a.Filename, &a.MimeType, &a.Size, &a.Reference, &a.ThumbnailRef, &a.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan attachment")
		}
		list = append(list, a)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate attachments")
	}

	return list, nil
}

func (d *DB) DeleteAttachment(ctx context.Context, delete *store.DeleteAttachment) error {
	result, err := d.db.ExecContext(ctx, "DELETE FROM attachment WHERE id = "+placeholder(1), delete.ID)
	if err != nil {
		return errors.Wrap(err, "failed to delete attachment")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.New("attachment not found")
	}

	return nil
}
