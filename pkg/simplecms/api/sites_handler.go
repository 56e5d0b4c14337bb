package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

// SiteHandler handles sites and their memberships. It is mounted under
// /sites; content types hang off /sites/{site}/content_types.
type SiteHandler struct {
	service simplecms.Service
	logger  *slog.Logger
}

// NewSiteHandler creates a new site handler
func NewSiteHandler(service simplecms.Service, logger *slog.Logger) *SiteHandler {
	return &SiteHandler{service: service, logger: logger}
}

// Routes returns the routes for sites
func (h *SiteHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Create)
	r.Get("/{site}", h.Get)
	r.Get("/{site}/memberships", h.ListMemberships)
	r.Post("/{site}/memberships", h.AddMembership)
	r.Mount("/{site}/content_types", NewContentTypeHandler(h.service, h.logger).Routes())

	return r
}

// MembershipHandler changes or removes single memberships. It is mounted
// under /memberships.
type MembershipHandler struct {
	service simplecms.Service
	logger  *slog.Logger
}

// NewMembershipHandler creates a new membership handler
func NewMembershipHandler(service simplecms.Service, logger *slog.Logger) *MembershipHandler {
	return &MembershipHandler{service: service, logger: logger}
}

// Routes returns the routes for memberships
func (h *MembershipHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Patch("/{membership}", h.ChangeRole)
	r.Delete("/{membership}", h.Remove)

	return r
}

// ChangeRoleRequest is the request body for changing a membership role
type ChangeRoleRequest struct {
	Role simplecms.Role `json:"role"`
}

func (h *SiteHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req simplecms.CreateSiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "Invalid request body")
		return
	}
	site, err := h.service.CreateSite(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, site)
}

func (h *SiteHandler) Get(w http.ResponseWriter, r *http.Request) {
	siteID, ok := uuidParam(w, r, "site")
	if !ok {
		return
	}
	site, err := h.service.GetSite(r.Context(), siteID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, site)
}

func (h *SiteHandler) ListMemberships(w http.ResponseWriter, r *http.Request) {
	siteID, ok := uuidParam(w, r, "site")
	if !ok {
		return
	}
	memberships, err := h.service.ListMemberships(r.Context(), siteID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, memberships)
}

func (h *SiteHandler) AddMembership(w http.ResponseWriter, r *http.Request) {
	siteID, ok := uuidParam(w, r, "site")
	if !ok {
		return
	}
	var req simplecms.AddMembershipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "Invalid request body")
		return
	}
	req.SiteID = siteID

	m, err := h.service.AddMembership(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, m)
}

func (h *MembershipHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "membership")
	if !ok {
		return
	}
	var req ChangeRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "Invalid request body")
		return
	}
	if _, err := h.service.ChangeRole(r.Context(), id, req.Role); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MembershipHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "membership")
	if !ok {
		return
	}
	if _, err := h.service.RemoveMembership(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
