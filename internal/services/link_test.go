package services

import (
	"context"
	"testing"

	"github.com/shorttrack/apiserver/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateLinkGeneratesSlug(t *testing.T) {
	svc := NewLinkService(newMemLinks(), "https://sho.rt/")

	link, err := svc.Create(context.Background(), 1, LinkInput{URL: "https://example.com/a"})
	require.NoError(t, err)
	assert.Len(t, link.Slug, slugLength)
	assert.Regexp(t, `^[0-9a-z]+$`, link.Slug)
	assert.Nil(t, link.Title)
	assert.Equal(t, "https://sho.rt/"+link.Slug, svc.ShortURL(link.Slug))
}

func TestCreateLinkValidation(t *testing.T) {
	tests := []struct {
		name string
		in   LinkInput
		want error
	}{
		{"relative url", LinkInput{URL: "/path"}, ErrInvalidURL},
		{"ftp url", LinkInput{URL: "ftp://example.com"}, ErrInvalidURL},
		{"empty url", LinkInput{URL: ""}, ErrInvalidURL},
		{"short slug", LinkInput{URL: "https://example.com", Slug: "ab"}, ErrInvalidSlug},
		{"uppercase slug", LinkInput{URL: "https://example.com", Slug: "Promo"}, ErrInvalidSlug},
		{"long slug", LinkInput{URL: "https://example.com", Slug: "abcdefghijklmnopqrstuvwxy"}, ErrInvalidSlug},
		{"reserved slug", LinkInput{URL: "https://example.com", Slug: "api"}, ErrReservedSlug},
		{"reserved healthz", LinkInput{URL: "https://example.com", Slug: "healthz"}, ErrReservedSlug},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewLinkService(newMemLinks(), "https://sho.rt")
			_, err := svc.Create(context.Background(), 1, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreateLinkCustomSlug(t *testing.T) {
	svc := NewLinkService(newMemLinks(), "https://sho.rt")
	ctx := context.Background()
	title := "  Spring promo "

	link, err := svc.Create(ctx, 1, LinkInput{URL: "https://example.com", Slug: " promo-2025 ", Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "promo-2025", link.Slug)
	require.NotNil(t, link.Title)
	assert.Equal(t, "Spring promo", *link.Title)

	_, err = svc.Create(ctx, 2, LinkInput{URL: "https://example.org", Slug: "promo-2025"})
	assert.ErrorIs(t, err, ErrSlugTaken)

	resolved, err := svc.Resolve(ctx, "PROMO-2025")
	require.NoError(t, err)
	assert.Equal(t, link.ID, resolved.ID)
}

func TestUpdateLink(t *testing.T) {
	svc := NewLinkService(newMemLinks(), "https://sho.rt")
	ctx := context.Background()

	first, err := svc.Create(ctx, 1, LinkInput{URL: "https://example.com", Slug: "first"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, 1, LinkInput{URL: "https://example.com", Slug: "second"})
	require.NoError(t, err)

	newURL := "https://example.com/new"
	same := "first"
	updated, err := svc.Update(ctx, 1, first.ID, LinkUpdate{URL: &newURL, Slug: &same})
	require.NoError(t, err)
	assert.Equal(t, newURL, updated.URL)

	taken := "second"
	_, err = svc.Update(ctx, 1, first.ID, LinkUpdate{Slug: &taken})
	assert.ErrorIs(t, err, ErrSlugTaken)

	_, err = svc.Update(ctx, 2, first.ID, LinkUpdate{URL: &newURL})
	assert.ErrorIs(t, err, store.ErrNotFound)

	empty := " "
	updated, err = svc.Update(ctx, 1, first.ID, LinkUpdate{Title: &empty})
	require.NoError(t, err)
	assert.Nil(t, updated.Title)
}

func TestDeleteLinkHidesIt(t *testing.T) {
	svc := NewLinkService(newMemLinks(), "https://sho.rt")
	ctx := context.Background()

	link, err := svc.Create(ctx, 1, LinkInput{URL: "https://example.com", Slug: "gone"})
	require.NoError(t, err)

	require.ErrorIs(t, svc.Delete(ctx, 2, link.ID), store.ErrNotFound)
	require.NoError(t, svc.Delete(ctx, 1, link.ID))

	_, err = svc.Resolve(ctx, "gone")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = svc.Get(ctx, 1, link.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Slugs of deleted links stay taken.
	_, err = svc.Create(ctx, 1, LinkInput{URL: "https://example.com", Slug: "gone"})
	assert.ErrorIs(t, err, ErrSlugTaken)
}

func TestListLinksPaging(t *testing.T) {
	repo := newMemLinks()
	svc := NewLinkService(repo, "https://sho.rt")
	ctx := context.Background()
	for range 5 {
		_, err := svc.Create(ctx, 1, LinkInput{URL: "https://example.com"})
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, 2, LinkInput{URL: "https://other.com"})
	require.NoError(t, err)

	page, err := svc.List(ctx, 1, "", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 2, page.Page)
	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(3), page.Items[0].ID)

	page, err = svc.List(ctx, 1, "", 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, maxPageSize, page.PageSize)
	assert.Len(t, page.Items, 5)

	page, err = svc.List(ctx, 1, "other", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}
