package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shorttrack/apiserver/types"
)

// LinkRepository handles persistence for links.
type LinkRepository struct {
	db *sql.DB
}

func NewLinkRepository(db *sql.DB) *LinkRepository {
	return &LinkRepository{db: db}
}

// List returns a page of the user's live links, newest first, optionally
// filtered by a case-insensitive match on slug, url or title.
func (r *LinkRepository) List(ctx context.Context, userID int64, q string, offset, limit int) ([]types.Link, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	pattern := "%" + q + "%"
	const countQuery = `
		SELECT COUNT(1)
		FROM links
		WHERE user_id = $1 AND deleted_at IS NULL
			AND ($2 = '' OR slug ILIKE $3 OR url ILIKE $3 OR COALESCE(title, '') ILIKE $3)`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, userID, q, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}

	const listQuery = `
		SELECT l.id, l.user_id, l.slug, l.url, l.title, l.created_at,
			(SELECT COUNT(1) FROM visits v WHERE v.link_id = l.id) AS visits
		FROM links l
		WHERE l.user_id = $1 AND l.deleted_at IS NULL
			AND ($2 = '' OR l.slug ILIKE $3 OR l.url ILIKE $3 OR COALESCE(l.title, '') ILIKE $3)
		ORDER BY l.id DESC
		OFFSET $4 LIMIT $5`
	rows, err := r.db.QueryContext(ctx, listQuery, userID, q, pattern, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	links := make([]types.Link, 0, limit)
	for rows.Next() {
		var link types.Link
		if err := rows.Scan(
			&link.ID,
			&link.UserID,
			&link.Slug,
			&link.URL,
			&link.Title,
			&link.CreatedAt,
			&link.Visits,
		); err != nil {
			return nil, 0, err
		}
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return links, total, nil
}

// Get returns a live link owned by userID.
func (r *LinkRepository) Get(ctx context.Context, userID, id int64) (types.Link, error) {
	const query = `
		SELECT id, user_id, slug, url, title, created_at, deleted_at
		FROM links
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`
	return r.findOne(ctx, query, id, userID)
}

// GetBySlug returns the live link for slug.
func (r *LinkRepository) GetBySlug(ctx context.Context, slug string) (types.Link, error) {
	const query = `
		SELECT id, user_id, slug, url, title, created_at, deleted_at
		FROM links
		WHERE slug = $1 AND deleted_at IS NULL`
	return r.findOne(ctx, query, slug)
}

// SlugExists reports whether any link, deleted or not, already uses slug.
func (r *LinkRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM links WHERE slug = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, slug).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *LinkRepository) Create(ctx context.Context, link types.Link) (types.Link, error) {
	link.CreatedAt = time.Now()

	const query = `
		INSERT INTO links (user_id, slug, url, title, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		link.UserID,
		link.Slug,
		link.URL,
		link.Title,
		link.CreatedAt,
	).Scan(&link.ID); err != nil {
		return types.Link{}, mapWriteError(err)
	}
	return link, nil
}

func (r *LinkRepository) Update(ctx context.Context, link types.Link) (types.Link, error) {
	const query = `
		UPDATE links
		SET slug = $1,
			url = $2,
			title = $3
		WHERE id = $4 AND user_id = $5 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, link.Slug, link.URL, link.Title, link.ID, link.UserID)
	if err != nil {
		return types.Link{}, mapWriteError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Link{}, err
	}
	if affected == 0 {
		return types.Link{}, ErrNotFound
	}
	return link, nil
}

// SoftDelete hides a link from lookups without removing its visits.
func (r *LinkRepository) SoftDelete(ctx context.Context, userID, id int64) error {
	const query = `
		UPDATE links
		SET deleted_at = $1
		WHERE id = $2 AND user_id = $3 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, time.Now(), id, userID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *LinkRepository) findOne(ctx context.Context, query string, args ...any) (types.Link, error) {
	var link types.Link
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&link.ID,
		&link.UserID,
		&link.Slug,
		&link.URL,
		&link.Title,
		&link.CreatedAt,
		&link.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Link{}, ErrNotFound
		}
		return types.Link{}, err
	}
	return link, nil
}
