package simplecms

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// APIKeyBytes is the entropy of a generated API key; keys are hex encoded.
const APIKeyBytes = 20

var requestValidator = validator.New(validator.WithRequiredStructEnabled())

// GenerateAPIKey returns a new random API key.
func GenerateAPIKey() (string, error) {
	b := make([]byte, APIKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Account operations

func (s *service) Signup(ctx context.Context, req SignupRequest) (*Account, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if _, err := s.repository.GetAccountByEmail(ctx, req.Email); err == nil {
		return nil, NewValidationError("email", MsgTaken)
	} else if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	apiKey, err := GenerateAPIKey()
	if err != nil {
		return nil, err
	}
	locale := req.Locale
	if locale == "" {
		locale = DefaultLocale
	}

	now := time.Now().UTC()
	account := &Account{
		ID:           uuid.New(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		Locale:       locale,
		APIKey:       apiKey,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repository.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, NewValidationError("email", MsgTaken)
		}
		return nil, &AccountError{AccountID: account.ID, Op: "signup", Err: err}
	}
	s.logger.Info("account created", "account_id", account.ID)
	return account, nil
}

func (s *service) Authenticate(ctx context.Context, email, password string) (*Account, error) {
	account, err := s.repository.GetAccountByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, ErrAccountNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	ok, err := s.hasher.Verify(password, account.PasswordHash)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}
	return account, nil
}

func (s *service) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	return s.repository.GetAccount(ctx, id)
}

func (s *service) RegenerateAPIKey(ctx context.Context, id uuid.UUID) (*Account, error) {
	account, err := s.repository.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	apiKey, err := GenerateAPIKey()
	if err != nil {
		return nil, err
	}
	account.APIKey = apiKey
	account.UpdatedAt = time.Now().UTC()
	if err := s.repository.UpdateAccount(ctx, account); err != nil {
		return nil, &AccountError{AccountID: id, Op: "regenerate_api_key", Err: err}
	}
	return account, nil
}

// IsLocalAdmin reports whether the account is an admin of at least one site.
func (s *service) IsLocalAdmin(ctx context.Context, id uuid.UUID) (bool, error) {
	memberships, err := s.repository.ListMembershipsByAccount(ctx, id)
	if err != nil {
		return false, err
	}
	for _, m := range memberships {
		if m.IsAdmin() {
			return true, nil
		}
	}
	return false, nil
}

func (s *service) ListAccountSites(ctx context.Context, id uuid.UUID) ([]*Site, error) {
	if _, err := s.repository.GetAccount(ctx, id); err != nil {
		return nil, err
	}
	return s.repository.ListSitesByAccount(ctx, id)
}

// Site and membership operations

func (s *service) CreateSite(ctx context.Context, req CreateSiteRequest) (*Site, error) {
	req.Subdomain = strings.ToLower(strings.TrimSpace(req.Subdomain))
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if !IsSlug(req.Subdomain) || strings.Contains(req.Subdomain, "_") {
		return nil, NewValidationError("subdomain", MsgInvalid)
	}
	if _, err := s.repository.GetAccount(ctx, req.OwnerID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	site := &Site{
		ID:        uuid.New(),
		Name:      req.Name,
		Subdomain: req.Subdomain,
		CreatedAt: now,
		UpdatedAt: now,
	}
	admin := &Membership{
		ID:        uuid.New(),
		SiteID:    site.ID,
		AccountID: req.OwnerID,
		Role:      RoleAdmin,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repository.CreateSite(ctx, site, admin); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, NewValidationError("subdomain", MsgTaken)
		}
		return nil, fmt.Errorf("create site: %w", err)
	}
	s.logger.Info("site created", "site_id", site.ID, "subdomain", site.Subdomain, "owner_id", req.OwnerID)
	return site, nil
}

func (s *service) GetSite(ctx context.Context, id uuid.UUID) (*Site, error) {
	return s.repository.GetSite(ctx, id)
}

func (s *service) AddMembership(ctx context.Context, req AddMembershipRequest) (*Membership, error) {
	if req.Role == "" {
		req.Role = RoleAuthor
	}
	if !req.Role.IsValid() {
		return nil, NewValidationError("role", MsgNotIncluded)
	}
	if _, err := s.repository.GetSite(ctx, req.SiteID); err != nil {
		return nil, err
	}
	if _, err := s.repository.GetAccount(ctx, req.AccountID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	m := &Membership{
		ID:        uuid.New(),
		SiteID:    req.SiteID,
		AccountID: req.AccountID,
		Role:      req.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repository.CreateMembership(ctx, m); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, NewValidationError("account_id", MsgTaken)
		}
		return nil, fmt.Errorf("create membership: %w", err)
	}
	return m, nil
}

func (s *service) ListMemberships(ctx context.Context, siteID uuid.UUID) ([]*Membership, error) {
	if _, err := s.repository.GetSite(ctx, siteID); err != nil {
		return nil, err
	}
	return s.repository.ListMembershipsBySite(ctx, siteID)
}

// Guarded operations

func (s *service) DeleteAccount(ctx context.Context, id uuid.UUID) (Outcome, error) {
	var siteIDs []uuid.UUID
	if memberships, err := s.repository.ListMembershipsByAccount(ctx, id); err == nil {
		siteIDs = membershipSites(memberships)
	}

	outcome, err := s.guard.DeleteAccount(ctx, id)
	if err != nil {
		s.logger.Info("account deletion rejected", "account_id", id, "err", err)
		return outcome, err
	}
	s.logger.Info("account deleted", "account_id", id, "sites", len(siteIDs))

	if s.eventSink != nil {
		if err := s.eventSink.AccountDeleted(ctx, id, siteIDs); err != nil {
			s.logger.Warn("event sink failed", "event", "account_deleted", "account_id", id, "err", err)
		}
	}
	return outcome, nil
}

func (s *service) RemoveMembership(ctx context.Context, membershipID uuid.UUID) (Outcome, error) {
	return s.guard.RemoveMembership(ctx, membershipID)
}

func (s *service) ChangeRole(ctx context.Context, membershipID uuid.UUID, role Role) (Outcome, error) {
	return s.guard.ChangeRole(ctx, membershipID, role)
}

// validateStruct runs the struct's validate tags and reports failures as a
// ValidationError keyed by JSON field name.
func validateStruct(v any) error {
	err := requestValidator.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	verr := &ValidationError{}
	for _, fe := range fieldErrs {
		msg := MsgInvalid
		if fe.Tag() == "required" {
			msg = MsgBlank
		}
		if fe.Tag() == "min" {
			msg = "is too short (minimum is " + fe.Param() + " characters)"
		}
		verr.Add(strings.ToLower(fe.Field()), msg)
	}
	return verr
}
