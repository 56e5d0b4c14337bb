package simplecms

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrContentTypeNotFound indicates no content type matches the slug in the site
	ErrContentTypeNotFound = errors.New("content type not found")

	// ErrEntryNotFound indicates an entry was not found in the content type
	ErrEntryNotFound = errors.New("entry not found")

	// ErrAccountNotFound indicates an account was not found
	ErrAccountNotFound = errors.New("account not found")

	// ErrSiteNotFound indicates a site was not found
	ErrSiteNotFound = errors.New("site not found")

	// ErrMembershipNotFound indicates a membership was not found
	ErrMembershipNotFound = errors.New("membership not found")

	// ErrAlreadyExists indicates a uniqueness constraint of the store was hit
	ErrAlreadyExists = errors.New("already exists")

	// ErrConcurrencyConflict indicates a guarded change raced with another one
	// and could not be applied safely
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrInvalidCredentials indicates an email/password pair did not match
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// LastAdminMessage is the stable message of the integrity violation raised
// when a change would leave a site without an admin.
const LastAdminMessage = "One admin account is required at least"

// Validation messages.
const (
	MsgBlank       = "can't be blank"
	MsgTaken       = "is already taken"
	MsgInvalid     = "is invalid"
	MsgNotIncluded = "is not included in the list"
	MsgUnknown     = "is not a field of this content type"
)

// FieldError is one offending field of a ValidationError.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every field that failed validation. Nothing is
// written when it is returned.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records one offending field.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// Has reports whether the named field failed.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// OrNil returns e when it holds at least one field error.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// NewValidationError returns a validation error for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// IntegrityViolation is returned when a membership change would leave one or
// more sites without an admin. The change is rejected as a whole.
type IntegrityViolation struct {
	Message string
	SiteIDs []uuid.UUID
}

func (e *IntegrityViolation) Error() string {
	return e.Message
}

// EntryError represents an error related to entry operations
type EntryError struct {
	EntryID uuid.UUID
	Op      string
	Err     error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("entry operation %s failed for entry %s: %v", e.Op, e.EntryID, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

// AccountError represents an error related to account operations
type AccountError struct {
	AccountID uuid.UUID
	Op        string
	Err       error
}

func (e *AccountError) Error() string {
	return fmt.Sprintf("account operation %s failed for account %s: %v", e.Op, e.AccountID, e.Err)
}

func (e *AccountError) Unwrap() error {
	return e.Err
}
