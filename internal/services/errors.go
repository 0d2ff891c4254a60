package services

import (
	"errors"
	"fmt"
	"net/http"
)

// Ledger error kinds. Invariant violations detected at the storage layer
// surface as ErrUnknown; client-correctable conditions get their own kind
// so callers can fix and retry.
var (
	ErrUnknown                 = errors.New("unknown error")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrAlreadyUsedTransaction  = errors.New("transaction already used")
	ErrTransactionNotFound     = errors.New("transaction not found")
	ErrUnauthorizedTransaction = errors.New("unauthorized transaction")
	ErrErroneousTransaction    = errors.New("erroneous transaction")
)

// Bidding error kinds.
var (
	ErrIncorrectTransaction = errors.New("incorrect transaction")
	ErrUnauthorizedBid      = errors.New("unauthorized bid")
	ErrAlreadyEarmarked     = errors.New("transaction already earmarked")
	ErrUnauthorizedCoords   = errors.New("unauthorized coordinates")
	ErrBidNotFound          = errors.New("bid not found")
)

// ContentFieldError is a per-field bid content validation failure.
type ContentFieldError string

const (
	ContentTooLong    ContentFieldError = "value is too long"
	ContentInvalidURL ContentFieldError = "invalid URL"
)

// ContentValidationError carries structured per-field errors for bid
// content, so the caller can correct individual fields.
type ContentValidationError struct {
	Title       *ContentFieldError `json:"title,omitempty"`
	Subtitle    *ContentFieldError `json:"subtitle,omitempty"`
	Description *ContentFieldError `json:"description,omitempty"`
	URL         *ContentFieldError `json:"url,omitempty"`
}

func (e *ContentValidationError) IsEmpty() bool {
	return e.Title == nil && e.Subtitle == nil && e.Description == nil && e.URL == nil
}

func (e *ContentValidationError) Error() string {
	msg := "invalid content:"
	for _, f := range []struct {
		name string
		err  *ContentFieldError
	}{
		{"title", e.Title},
		{"subtitle", e.Subtitle},
		{"description", e.Description},
		{"url", e.URL},
	} {
		if f.err != nil {
			msg = fmt.Sprintf("%s %s: %s;", msg, f.name, *f.err)
		}
	}
	return msg
}

// StatusForError maps an error kind to the HTTP status reported to clients.
func StatusForError(err error) int {
	var contentErr *ContentValidationError
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return http.StatusForbidden
	case errors.Is(err, ErrAlreadyUsedTransaction), errors.Is(err, ErrAlreadyEarmarked):
		return http.StatusConflict
	case errors.Is(err, ErrTransactionNotFound), errors.Is(err, ErrBidNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorizedTransaction),
		errors.Is(err, ErrUnauthorizedBid),
		errors.Is(err, ErrUnauthorizedCoords):
		return http.StatusUnauthorized
	case errors.Is(err, ErrErroneousTransaction), errors.Is(err, ErrIncorrectTransaction):
		return http.StatusBadRequest
	case errors.As(err, &contentErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
