package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

// AccountHandler handles accounts. It is mounted under /accounts.
type AccountHandler struct {
	service simplecms.Service
	logger  *slog.Logger
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(service simplecms.Service, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{service: service, logger: logger}
}

// Routes returns the routes for accounts
func (h *AccountHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Signup)
	r.Post("/authenticate", h.Authenticate)
	r.Get("/{account}", h.Get)
	r.Delete("/{account}", h.Delete)
	r.Post("/{account}/api_key", h.RegenerateAPIKey)
	r.Get("/{account}/sites", h.ListSites)

	return r
}

// AuthenticateRequest is the request body for checking credentials
type AuthenticateRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AccountResponse wraps an account with derived flags
type AccountResponse struct {
	*simplecms.Account
	LocalAdmin bool `json:"local_admin"`
}

func (h *AccountHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req simplecms.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "Invalid request body")
		return
	}
	account, err := h.service.Signup(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, AccountResponse{Account: account})
}

func (h *AccountHandler) Authenticate(w http.ResponseWriter, r *http.Request) {
	var req AuthenticateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "Invalid request body")
		return
	}
	account, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.respondAccount(w, r, account)
}

func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "account")
	if !ok {
		return
	}
	account, err := h.service.GetAccount(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.respondAccount(w, r, account)
}

func (h *AccountHandler) RegenerateAPIKey(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "account")
	if !ok {
		return
	}
	account, err := h.service.RegenerateAPIKey(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.respondAccount(w, r, account)
}

// Delete removes an account and its memberships. It answers 204, or 422 with
// the integrity message when a site would lose its last admin.
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "account")
	if !ok {
		return
	}
	if _, err := h.service.DeleteAccount(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AccountHandler) ListSites(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "account")
	if !ok {
		return
	}
	sites, err := h.service.ListAccountSites(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, sites)
}

func (h *AccountHandler) respondAccount(w http.ResponseWriter, r *http.Request, account *simplecms.Account) {
	localAdmin, err := h.service.IsLocalAdmin(r.Context(), account.ID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, AccountResponse{Account: account, LocalAdmin: localAdmin})
}
