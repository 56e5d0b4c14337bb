package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

// EntryHandler serves the entries of one content type of one site. It is
// mounted under /sites/{site}/content_types/{slug}/entries.
type EntryHandler struct {
	service simplecms.Service
	logger  *slog.Logger
}

// NewEntryHandler creates a new entry handler
func NewEntryHandler(service simplecms.Service, logger *slog.Logger) *EntryHandler {
	return &EntryHandler{service: service, logger: logger}
}

// Routes returns the routes for entries
func (h *EntryHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.Index)
	r.Post("/", h.Create)
	r.Delete("/", h.DestroyAll)
	r.Get("/{entry}", h.Show)
	r.Put("/{entry}", h.Update)
	r.Patch("/{entry}", h.Update)
	r.Delete("/{entry}", h.Destroy)

	return r
}

// DestroyAllResponse is the body of a bulk delete. Success is true even when
// nothing matched.
type DestroyAllResponse struct {
	Success bool `json:"success"`
	Deleted int  `json:"deleted"`
	DryRun  bool `json:"dry_run,omitempty"`
}

// Index lists entries. Query parameters: page, per_page, order_by and where
// (a JSON object).
func (h *EntryHandler) Index(w http.ResponseWriter, r *http.Request) {
	siteID, ok := uuidParam(w, r, "site")
	if !ok {
		return
	}
	q := r.URL.Query()
	page, err := h.service.ListEntries(r.Context(), simplecms.ListEntriesRequest{
		SiteID:  siteID,
		Slug:    chi.URLParam(r, "slug"),
		Page:    q.Get("page"),
		PerPage: q.Get("per_page"),
		OrderBy: q.Get("order_by"),
		Where:   q.Get("where"),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, page)
}

// Show returns one entry looked up by id or permalink.
func (h *EntryHandler) Show(w http.ResponseWriter, r *http.Request) {
	siteID, ok := uuidParam(w, r, "site")
	if !ok {
		return
	}
	entry, err := h.service.GetEntry(r.Context(), simplecms.GetEntryRequest{
		SiteID:        siteID,
		Slug:          chi.URLParam(r, "slug"),
		IDOrPermalink: chi.URLParam(r, "entry"),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, entry)
}

// Create adds an entry from the posted field values.
func (h *EntryHandler) Create(w http.ResponseWriter, r *http.Request) {
	siteID, ok := uuidParam(w, r, "site")
	if !ok {
		return
	}
	values, err := decodeEntryValues(r)
	if err != nil {
		badRequest(w, r, "Invalid request body")
		return
	}
	entry, err := h.service.CreateEntry(r.Context(), simplecms.CreateEntryRequest{
		SiteID: siteID,
		Slug:   chi.URLParam(r, "slug"),
		Values: values,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, entry)
}

// Update merges the posted field values into an entry.
func (h *EntryHandler) Update(w http.ResponseWriter, r *http.Request) {
	siteID, ok := uuidParam(w, r, "site")
	if !ok {
		return
	}
	values, err := decodeEntryValues(r)
	if err != nil {
		badRequest(w, r, "Invalid request body")
		return
	}
	entry, err := h.service.UpdateEntry(r.Context(), simplecms.UpdateEntryRequest{
		SiteID:        siteID,
		Slug:          chi.URLParam(r, "slug"),
		IDOrPermalink: chi.URLParam(r, "entry"),
		Values:        values,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, entry)
}

// Destroy deletes one entry.
func (h *EntryHandler) Destroy(w http.ResponseWriter, r *http.Request) {
	siteID, ok := uuidParam(w, r, "site")
	if !ok {
		return
	}
	err := h.service.DeleteEntry(r.Context(), simplecms.DeleteEntryRequest{
		SiteID:        siteID,
		Slug:          chi.URLParam(r, "slug"),
		IDOrPermalink: chi.URLParam(r, "entry"),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DestroyAll deletes every entry matching the where parameter. dry_run=true
// only counts.
func (h *EntryHandler) DestroyAll(w http.ResponseWriter, r *http.Request) {
	siteID, ok := uuidParam(w, r, "site")
	if !ok {
		return
	}
	q := r.URL.Query()
	dryRun, _ := strconv.ParseBool(q.Get("dry_run"))
	n, err := h.service.DestroyAll(r.Context(), simplecms.DestroyAllRequest{
		SiteID: siteID,
		Slug:   chi.URLParam(r, "slug"),
		Where:  q.Get("where"),
		DryRun: dryRun,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, DestroyAllResponse{Success: true, Deleted: n, DryRun: dryRun})
}

// decodeEntryValues reads the field values of a write. They may be posted
// bare or wrapped in "content_entry" or "entry". Numbers keep their literal
// form so integers survive intact.
func decodeEntryValues(r *http.Request) (map[string]any, error) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, err
	}
	for _, key := range []string{"content_entry", "entry"} {
		if wrapped, ok := body[key].(map[string]any); ok && len(body) == 1 {
			return wrapped, nil
		}
	}
	return body, nil
}
