package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shorttrack/apiserver/internal/services"
	"github.com/shorttrack/apiserver/internal/storage"
	"github.com/shorttrack/apiserver/internal/store"
	"github.com/shorttrack/apiserver/types"
	log "github.com/sirupsen/logrus"
)

// LinkService manages the links of the signed-in user.
type LinkService interface {
	List(ctx context.Context, userID int64, q string, page, pageSize int) (services.LinkPage, error)
	Get(ctx context.Context, userID, id int64) (types.Link, error)
	Create(ctx context.Context, userID int64, in services.LinkInput) (types.Link, error)
	Update(ctx context.Context, userID, id int64, in services.LinkUpdate) (types.Link, error)
	Delete(ctx context.Context, userID, id int64) error
	ShortURL(slug string) string
	LinkQR(ctx context.Context, userID, id int64) ([]byte, error)
	SlugQR(slug string) ([]byte, error)
}

// AnalyticsService reports on link traffic.
type AnalyticsService interface {
	Stats(ctx context.Context, userID, linkID int64) (types.LinkStats, error)
	Export(ctx context.Context, userID, linkID int64) (services.Export, error)
	OpenExport(ctx context.Context, userID, linkID int64, name string) (io.ReadCloser, error)
}

// LinkHandler provides HTTP handlers for links.
type LinkHandler struct {
	links     LinkService
	analytics AnalyticsService
}

// NewLinkHandler constructs a handler with the provided services.
func NewLinkHandler(links LinkService, analytics AnalyticsService) *LinkHandler {
	return &LinkHandler{links: links, analytics: analytics}
}

// LinkRouter registers link routes on the given router. Everything except
// the slug QR requires a session.
func LinkRouter(
	r chi.Router,
	links LinkService,
	analytics AnalyticsService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewLinkHandler(links, analytics)

	r.Get("/qr/slug/{slug}", handler.SlugQR)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/", handler.ListLinks)
		r.Post("/", handler.CreateLink)
		r.Route("/{linkID}", func(r chi.Router) {
			r.Get("/", handler.GetLink)
			r.Put("/", handler.UpdateLink)
			r.Delete("/", handler.DeleteLink)
			r.Get("/qr", handler.LinkQR)
			r.Get("/stats", handler.Stats)
			r.Post("/export", handler.Export)
			r.Get("/exports/{name}", handler.DownloadExport)
		})
	})
}

func (h *LinkHandler) ListLinks(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	page, pageSize, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.links.List(r.Context(), userID, r.URL.Query().Get("q"), page, pageSize)
	if err != nil {
		writeLinkError(w, err, "failed to list links")
		return
	}

	items := make([]LinkView, 0, len(result.Items))
	for _, link := range result.Items {
		items = append(items, h.view(link))
	}
	writeJSON(w, http.StatusOK, LinkListResponse{
		Items:    items,
		Total:    result.Total,
		Page:     result.Page,
		PageSize: result.PageSize,
	})
}

func (h *LinkHandler) GetLink(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.linkParams(w, r)
	if !ok {
		return
	}

	link, err := h.links.Get(r.Context(), userID, id)
	if err != nil {
		writeLinkError(w, err, "failed to fetch link")
		return
	}
	writeJSON(w, http.StatusOK, h.view(link))
}

func (h *LinkHandler) CreateLink(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req services.LinkInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	link, err := h.links.Create(r.Context(), userID, req)
	if err != nil {
		writeLinkError(w, err, "failed to create link")
		return
	}
	writeJSON(w, http.StatusCreated, h.view(link))
}

func (h *LinkHandler) UpdateLink(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.linkParams(w, r)
	if !ok {
		return
	}

	var req services.LinkUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	link, err := h.links.Update(r.Context(), userID, id, req)
	if err != nil {
		writeLinkError(w, err, "failed to update link")
		return
	}
	writeJSON(w, http.StatusOK, h.view(link))
}

func (h *LinkHandler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.linkParams(w, r)
	if !ok {
		return
	}

	if err := h.links.Delete(r.Context(), userID, id); err != nil {
		writeLinkError(w, err, "failed to delete link")
		return
	}
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

func (h *LinkHandler) LinkQR(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.linkParams(w, r)
	if !ok {
		return
	}

	png, err := h.links.LinkQR(r.Context(), userID, id)
	if err != nil {
		writeLinkError(w, err, "failed to render qr code")
		return
	}
	writePNG(w, png)
}

func (h *LinkHandler) SlugQR(w http.ResponseWriter, r *http.Request) {
	png, err := h.links.SlugQR(strings.ToLower(chi.URLParam(r, "slug")))
	if err != nil {
		writeLinkError(w, err, "failed to render qr code")
		return
	}
	writePNG(w, png)
}

func (h *LinkHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.linkParams(w, r)
	if !ok {
		return
	}

	stats, err := h.analytics.Stats(r.Context(), userID, id)
	if err != nil {
		writeLinkError(w, err, "failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *LinkHandler) Export(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.linkParams(w, r)
	if !ok {
		return
	}

	export, err := h.analytics.Export(r.Context(), userID, id)
	if err != nil {
		writeLinkError(w, err, "failed to export visits")
		return
	}
	writeJSON(w, http.StatusCreated, ExportResponse{OK: true, Export: export})
}

func (h *LinkHandler) DownloadExport(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.linkParams(w, r)
	if !ok {
		return
	}

	name := chi.URLParam(r, "name")
	body, err := h.analytics.OpenExport(r.Context(), userID, id, name)
	if err != nil {
		writeLinkError(w, err, "failed to open export")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		log.WithError(err).WithField("export", name).Warn("export download interrupted")
	}
}

func (h *LinkHandler) linkParams(w http.ResponseWriter, r *http.Request) (userID, linkID int64, ok bool) {
	userID, ok = requireUser(w, r)
	if !ok {
		return 0, 0, false
	}
	linkID, err := parseID(r, "linkID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid link id")
		return 0, 0, false
	}
	return userID, linkID, true
}

func (h *LinkHandler) view(link types.Link) LinkView {
	return LinkView{Link: link, ShortURL: h.links.ShortURL(link.Slug)}
}

func requireUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return 0, false
	}
	return userID, true
}

func writeLinkError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "link not found")
	case errors.Is(err, storage.ErrObjectNotFound):
		writeError(w, http.StatusNotFound, "export not found")
	case errors.Is(err, services.ErrInvalidURL),
		errors.Is(err, services.ErrInvalidSlug),
		errors.Is(err, services.ErrInvalidExportName):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrReservedSlug),
		errors.Is(err, services.ErrSlugTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrExportsDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.WithError(err).Error(fallback)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

// LinkView is a link as returned to its owner.
type LinkView struct {
	types.Link
	ShortURL string `json:"shortUrl"`
}

// LinkListResponse is the paginated list response payload.
type LinkListResponse struct {
	Items    []LinkView `json:"items"`
	Total    int        `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"pageSize"`
}

type ExportResponse struct {
	OK     bool            `json:"ok"`
	Export services.Export `json:"export"`
}
