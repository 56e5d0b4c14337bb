package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

// ContentTypeHandler manages the content types of a site. It is mounted under
// /sites/{site}/content_types.
type ContentTypeHandler struct {
	service simplecms.Service
	logger  *slog.Logger
}

// NewContentTypeHandler creates a new content type handler
func NewContentTypeHandler(service simplecms.Service, logger *slog.Logger) *ContentTypeHandler {
	return &ContentTypeHandler{service: service, logger: logger}
}

// Routes returns the routes for content types, entries included
func (h *ContentTypeHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{slug}", h.Get)
	r.Put("/{slug}", h.Update)
	r.Delete("/{slug}", h.Delete)
	r.Mount("/{slug}/entries", NewEntryHandler(h.service, h.logger).Routes())

	return r
}

func (h *ContentTypeHandler) List(w http.ResponseWriter, r *http.Request) {
	siteID, ok := uuidParam(w, r, "site")
	if !ok {
		return
	}
	types, err := h.service.ListContentTypes(r.Context(), siteID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, types)
}

func (h *ContentTypeHandler) Get(w http.ResponseWriter, r *http.Request) {
	siteID, ok := uuidParam(w, r, "site")
	if !ok {
		return
	}
	ct, err := h.service.ResolveContentType(r.Context(), siteID, chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, ct)
}

func (h *ContentTypeHandler) Create(w http.ResponseWriter, r *http.Request) {
	siteID, ok := uuidParam(w, r, "site")
	if !ok {
		return
	}
	var req simplecms.CreateContentTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "Invalid request body")
		return
	}
	req.SiteID = siteID

	ct, err := h.service.CreateContentType(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, ct)
}

func (h *ContentTypeHandler) Update(w http.ResponseWriter, r *http.Request) {
	siteID, ok := uuidParam(w, r, "site")
	if !ok {
		return
	}
	var req simplecms.UpdateContentTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "Invalid request body")
		return
	}
	req.SiteID = siteID
	req.Slug = chi.URLParam(r, "slug")

	ct, err := h.service.UpdateContentType(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, ct)
}

func (h *ContentTypeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	siteID, ok := uuidParam(w, r, "site")
	if !ok {
		return
	}
	if err := h.service.DeleteContentType(r.Context(), siteID, chi.URLParam(r, "slug")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
