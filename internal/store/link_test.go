package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shorttrack/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkListFiltersAndCounts(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLinkRepository(db)
	now := time.Now()

	mock.ExpectQuery(`SELECT COUNT\(1\)\s+FROM links`).
		WithArgs(int64(1), "docs", "%docs%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`FROM links l`).
		WithArgs(int64(1), "docs", "%docs%", 20, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "slug", "url", "title", "created_at", "visits"}).
			AddRow(3, 1, "docs", "https://example.com/docs", nil, now, 12))

	links, total, err := repo.List(context.Background(), 1, "docs", 20, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, links, 1)
	assert.Equal(t, 12, links[0].Visits)
	assert.Nil(t, links[0].Title)
}

func TestLinkGetBySlugMissing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLinkRepository(db)

	mock.ExpectQuery(`WHERE slug = \$1 AND deleted_at IS NULL`).
		WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "slug", "url", "title", "created_at", "deleted_at"}))

	_, err := repo.GetBySlug(context.Background(), "gone")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLinkSlugExistsIncludesDeleted(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLinkRepository(db)

	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM links WHERE slug = \$1\)`).
		WithArgs("docs").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.SlugExists(context.Background(), "docs")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLinkCreateConflict(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLinkRepository(db)

	mock.ExpectQuery(`INSERT INTO links`).
		WillReturnError(&pq.Error{Code: uniqueViolation})

	_, err := repo.Create(context.Background(), types.Link{UserID: 1, Slug: "docs", URL: "https://example.com"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestLinkSoftDelete(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLinkRepository(db)

	mock.ExpectExec(`UPDATE links\s+SET deleted_at = \$1`).
		WithArgs(sqlmock.AnyArg(), int64(3), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE links\s+SET deleted_at = \$1`).
		WithArgs(sqlmock.AnyArg(), int64(3), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.SoftDelete(context.Background(), 1, 3))
	assert.ErrorIs(t, repo.SoftDelete(context.Background(), 1, 3), ErrNotFound)
}

func TestVisitListBetween(t *testing.T) {
	db, mock := newMock(t)
	repo := NewVisitRepository(db)
	from := time.Date(2025, 2, 13, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 14, 23, 59, 59, 0, time.UTC)

	mock.ExpectQuery(`FROM visits\s+WHERE link_id = \$1 AND created_at >= \$2 AND created_at <= \$3`).
		WithArgs(int64(3), from, to).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "link_id", "created_at", "ip", "user_agent", "language", "referer", "browser", "os", "device", "country",
		}).AddRow(1, 3, from.Add(time.Hour), "203.0.113.9", "curl/8.0", "de-DE", "", "curl", "", "bot", "DE"))

	visits, err := repo.ListBetween(context.Background(), 3, from, to)
	require.NoError(t, err)
	require.Len(t, visits, 1)
	assert.Equal(t, "DE", visits[0].Country)
	assert.Equal(t, "bot", visits[0].Device)
}

func TestVisitCreate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewVisitRepository(db)

	mock.ExpectQuery(`INSERT INTO visits`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(99))

	visit, err := repo.Create(context.Background(), types.Visit{LinkID: 3, Device: "Desktop"})
	require.NoError(t, err)
	assert.Equal(t, int64(99), visit.ID)
	assert.False(t, visit.CreatedAt.IsZero())
}
