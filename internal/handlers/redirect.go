package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shorttrack/apiserver/internal/ratelimit"
	"github.com/shorttrack/apiserver/internal/services"
	"github.com/shorttrack/apiserver/internal/store"
	"github.com/shorttrack/apiserver/types"
	log "github.com/sirupsen/logrus"
)

// SlugResolver finds the live link behind a public slug.
type SlugResolver interface {
	Resolve(ctx context.Context, slug string) (types.Link, error)
}

// VisitRecorder stores one visit of a link.
type VisitRecorder interface {
	Record(ctx context.Context, link types.Link, info services.RequestInfo) error
}

// RedirectHandler serves public short URLs.
type RedirectHandler struct {
	links  SlugResolver
	visits VisitRecorder
}

func NewRedirectHandler(links SlugResolver, visits VisitRecorder) *RedirectHandler {
	return &RedirectHandler{links: links, visits: visits}
}

// RedirectRouter registers the catch-all slug route. A nil limiter leaves
// the route unlimited.
func RedirectRouter(r chi.Router, links SlugResolver, visits VisitRecorder, limiter ratelimit.Limiter) {
	handler := NewRedirectHandler(links, visits)
	if limiter != nil {
		r = r.With(ratelimit.Middleware(limiter))
	}
	r.Get("/{slug}", handler.Redirect)
}

// Redirect sends the visitor to the link target. Failing to record the
// visit never blocks the redirect.
func (h *RedirectHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	link, err := h.links.Resolve(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "link not found")
			return
		}
		log.WithError(err).Error("failed to resolve slug")
		writeError(w, http.StatusInternalServerError, "failed to resolve link")
		return
	}

	info := services.RequestInfo{
		IP:        clientAddr(r),
		UserAgent: r.UserAgent(),
		Language:  r.Header.Get("Accept-Language"),
		Referer:   r.Referer(),
	}
	if err := h.visits.Record(r.Context(), link, info); err != nil {
		log.WithError(err).WithField("link_id", link.ID).Warn("failed to record visit")
	}

	http.Redirect(w, r, link.URL, http.StatusFound)
}
