package services

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"net/url"
	"regexp"
	"strings"

	"github.com/shorttrack/apiserver/internal/store"
	"github.com/shorttrack/apiserver/types"
)

var (
	ErrInvalidURL   = errors.New("url must be an absolute http or https address")
	ErrInvalidSlug  = errors.New("slug must be 3-24 characters of a-z, 0-9 or -")
	ErrReservedSlug = errors.New("slug is reserved")
	ErrSlugTaken    = errors.New("slug already in use")
)

const (
	slugAlphabet    = "0123456789abcdefghijklmnopqrstuvwxyz"
	slugLength      = 7
	maxSlugAttempts = 10
	defaultPageSize = 20
	maxPageSize     = 100
)

var slugPattern = regexp.MustCompile(`^[a-z0-9-]{3,24}$`)

// reservedSlugs would shadow public routes.
var reservedSlugs = map[string]struct{}{
	"api":         {},
	"health":      {},
	"healthz":     {},
	"favicon.ico": {},
}

// LinkRepository defines persistence operations for links.
type LinkRepository interface {
	List(ctx context.Context, userID int64, q string, offset, limit int) ([]types.Link, int, error)
	Get(ctx context.Context, userID, id int64) (types.Link, error)
	GetBySlug(ctx context.Context, slug string) (types.Link, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	Create(ctx context.Context, link types.Link) (types.Link, error)
	Update(ctx context.Context, link types.Link) (types.Link, error)
	SoftDelete(ctx context.Context, userID, id int64) error
}

// LinkInput is the payload for creating a link. An empty Slug asks for a
// generated one.
type LinkInput struct {
	URL   string  `json:"url"`
	Slug  string  `json:"slug,omitempty"`
	Title *string `json:"title,omitempty"`
}

// LinkUpdate lists the link fields to change. Nil fields are kept.
type LinkUpdate struct {
	URL   *string `json:"url,omitempty"`
	Slug  *string `json:"slug,omitempty"`
	Title *string `json:"title,omitempty"`
}

// LinkPage is one page of a link listing.
type LinkPage struct {
	Items    []types.Link `json:"items"`
	Total    int          `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"pageSize"`
}

// LinkService encapsulates link use-cases.
type LinkService struct {
	repo       LinkRepository
	publicBase string
}

func NewLinkService(repo LinkRepository, publicBase string) *LinkService {
	return &LinkService{repo: repo, publicBase: strings.TrimRight(publicBase, "/")}
}

func (s *LinkService) List(ctx context.Context, userID int64, q string, page, pageSize int) (LinkPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	items, total, err := s.repo.List(ctx, userID, strings.TrimSpace(q), (page-1)*pageSize, pageSize)
	if err != nil {
		return LinkPage{}, err
	}
	return LinkPage{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

func (s *LinkService) Get(ctx context.Context, userID, id int64) (types.Link, error) {
	return s.repo.Get(ctx, userID, id)
}

// Resolve returns the live link behind a public slug.
func (s *LinkService) Resolve(ctx context.Context, slug string) (types.Link, error) {
	return s.repo.GetBySlug(ctx, strings.ToLower(slug))
}

func (s *LinkService) Create(ctx context.Context, userID int64, in LinkInput) (types.Link, error) {
	target, err := normalizeURL(in.URL)
	if err != nil {
		return types.Link{}, err
	}

	link := types.Link{UserID: userID, URL: target, Title: normalizeTitle(in.Title)}

	if slug := strings.TrimSpace(in.Slug); slug != "" {
		if err := s.checkSlug(ctx, slug); err != nil {
			return types.Link{}, err
		}
		link.Slug = slug
		created, err := s.repo.Create(ctx, link)
		if errors.Is(err, store.ErrConflict) {
			return types.Link{}, ErrSlugTaken
		}
		return created, err
	}

	for range maxSlugAttempts {
		slug, err := generateSlug()
		if err != nil {
			return types.Link{}, err
		}
		exists, err := s.repo.SlugExists(ctx, slug)
		if err != nil {
			return types.Link{}, err
		}
		if exists {
			continue
		}
		link.Slug = slug
		created, err := s.repo.Create(ctx, link)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		return created, err
	}
	return types.Link{}, errors.New("could not generate a free slug")
}

func (s *LinkService) Update(ctx context.Context, userID, id int64, in LinkUpdate) (types.Link, error) {
	current, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return types.Link{}, err
	}

	if in.URL != nil {
		target, err := normalizeURL(*in.URL)
		if err != nil {
			return types.Link{}, err
		}
		current.URL = target
	}
	if in.Title != nil {
		current.Title = normalizeTitle(in.Title)
	}
	if in.Slug != nil {
		slug := strings.TrimSpace(*in.Slug)
		if slug != current.Slug {
			if err := s.checkSlug(ctx, slug); err != nil {
				return types.Link{}, err
			}
			current.Slug = slug
		}
	}

	updated, err := s.repo.Update(ctx, current)
	if errors.Is(err, store.ErrConflict) {
		return types.Link{}, ErrSlugTaken
	}
	return updated, err
}

func (s *LinkService) Delete(ctx context.Context, userID, id int64) error {
	return s.repo.SoftDelete(ctx, userID, id)
}

// ShortURL is the public address that redirects through slug.
func (s *LinkService) ShortURL(slug string) string {
	return s.publicBase + "/" + slug
}

func (s *LinkService) checkSlug(ctx context.Context, slug string) error {
	if !slugPattern.MatchString(slug) {
		return ErrInvalidSlug
	}
	if _, reserved := reservedSlugs[slug]; reserved {
		return ErrReservedSlug
	}
	exists, err := s.repo.SlugExists(ctx, slug)
	if err != nil {
		return err
	}
	if exists {
		return ErrSlugTaken
	}
	return nil
}

func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	parsed, err := url.ParseRequestURI(raw)
	if err != nil || parsed.Host == "" {
		return "", ErrInvalidURL
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		return raw, nil
	default:
		return "", ErrInvalidURL
	}
}

func normalizeTitle(title *string) *string {
	if title == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*title)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func generateSlug() (string, error) {
	max := big.NewInt(int64(len(slugAlphabet)))
	out := make([]byte, slugLength)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = slugAlphabet[n.Int64()]
	}
	return string(out), nil
}
