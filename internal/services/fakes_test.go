package services

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shorttrack/apiserver/internal/storage"
	"github.com/shorttrack/apiserver/internal/store"
	"github.com/shorttrack/apiserver/types"
)

type memLinks struct {
	mu     sync.Mutex
	nextID int64
	links  map[int64]types.Link
}

func newMemLinks() *memLinks {
	return &memLinks{links: make(map[int64]types.Link)}
}

func (m *memLinks) List(_ context.Context, userID int64, q string, offset, limit int) ([]types.Link, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []types.Link
	for _, l := range m.links {
		if l.UserID != userID || l.DeletedAt != nil {
			continue
		}
		if q != "" && !strings.Contains(l.Slug, q) && !strings.Contains(l.URL, q) {
			continue
		}
		matched = append(matched, l)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	total := len(matched)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (m *memLinks) Get(_ context.Context, userID, id int64) (types.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[id]
	if !ok || l.UserID != userID || l.DeletedAt != nil {
		return types.Link{}, store.ErrNotFound
	}
	return l, nil
}

func (m *memLinks) GetBySlug(_ context.Context, slug string) (types.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.links {
		if l.Slug == slug && l.DeletedAt == nil {
			return l, nil
		}
	}
	return types.Link{}, store.ErrNotFound
}

func (m *memLinks) SlugExists(_ context.Context, slug string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.links {
		if l.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (m *memLinks) Create(_ context.Context, link types.Link) (types.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.links {
		if l.Slug == link.Slug {
			return types.Link{}, store.ErrConflict
		}
	}
	m.nextID++
	link.ID = m.nextID
	link.CreatedAt = time.Now()
	m.links[link.ID] = link
	return link, nil
}

func (m *memLinks) Update(_ context.Context, link types.Link) (types.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.links[link.ID]
	if !ok || current.UserID != link.UserID || current.DeletedAt != nil {
		return types.Link{}, store.ErrNotFound
	}
	m.links[link.ID] = link
	return link, nil
}

func (m *memLinks) SoftDelete(_ context.Context, userID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[id]
	if !ok || l.UserID != userID || l.DeletedAt != nil {
		return store.ErrNotFound
	}
	now := time.Now()
	l.DeletedAt = &now
	m.links[id] = l
	return nil
}

type memVisits struct {
	mu     sync.Mutex
	visits []types.Visit
}

func (m *memVisits) Create(_ context.Context, visit types.Visit) (types.Visit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	visit.ID = int64(len(m.visits) + 1)
	m.visits = append(m.visits, visit)
	return visit, nil
}

func (m *memVisits) ListBetween(_ context.Context, linkID int64, from, to time.Time) ([]types.Visit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Visit
	for _, v := range m.visits {
		if v.LinkID == linkID && !v.CreatedAt.Before(from) && !v.CreatedAt.After(to) {
			out = append(out, v)
		}
	}
	return out, nil
}

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memObjects) EnsureBucket(context.Context) error { return nil }

func (m *memObjects) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func (m *memObjects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memObjects) Bucket() string { return "exports-test" }
