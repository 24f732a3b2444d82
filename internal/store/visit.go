package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/shorttrack/apiserver/types"
)

// VisitRepository handles persistence for link visits.
type VisitRepository struct {
	db *sql.DB
}

func NewVisitRepository(db *sql.DB) *VisitRepository {
	return &VisitRepository{db: db}
}

func (r *VisitRepository) Create(ctx context.Context, visit types.Visit) (types.Visit, error) {
	if visit.CreatedAt.IsZero() {
		visit.CreatedAt = time.Now()
	}

	const query = `
		INSERT INTO visits (link_id, created_at, ip, user_agent, language, referer, browser, os, device, country)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		visit.LinkID,
		visit.CreatedAt,
		visit.IP,
		visit.UserAgent,
		visit.Language,
		visit.Referer,
		visit.Browser,
		visit.OS,
		visit.Device,
		visit.Country,
	).Scan(&visit.ID); err != nil {
		return types.Visit{}, err
	}
	return visit, nil
}

// ListBetween returns the visits of a link created within [from, to],
// oldest first.
func (r *VisitRepository) ListBetween(ctx context.Context, linkID int64, from, to time.Time) ([]types.Visit, error) {
	const query = `
		SELECT id, link_id, created_at, ip, user_agent, language, referer, browser, os, device, country
		FROM visits
		WHERE link_id = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, linkID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	visits := make([]types.Visit, 0)
	for rows.Next() {
		var visit types.Visit
		if err := rows.Scan(
			&visit.ID,
			&visit.LinkID,
			&visit.CreatedAt,
			&visit.IP,
			&visit.UserAgent,
			&visit.Language,
			&visit.Referer,
			&visit.Browser,
			&visit.OS,
			&visit.Device,
			&visit.Country,
		); err != nil {
			return nil, err
		}
		visits = append(visits, visit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return visits, nil
}
