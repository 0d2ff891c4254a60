package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/tilebank/backend/internal/models"
)

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string            `json:"error"`             // Error message
	Details map[string]string `json:"details,omitempty"` // Validation details
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a new validation helper
func NewValidationHelper() *ValidationHelper {
	return &ValidationHelper{
		validator: validator.New(),
	}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResp := ErrorResponse{Error: message}
	if validationErr != nil {
		if verrs, ok := validationErr.(validator.ValidationErrors); ok {
			errorResp.Details = make(map[string]string)
			for _, err := range verrs {
				errorResp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
			}
		}
	}

	json.NewEncoder(w).Encode(errorResp)
}

// BidRules carries the configured constraints a bid attempt is gated on.
type BidRules struct {
	MinimumBid    int64
	BlockedCoords []models.Coords
}

// ValidateCoords rejects coordinates on the configured block list.
func ValidateCoords(coords models.Coords, rules BidRules) error {
	for _, blocked := range rules.BlockedCoords {
		if blocked == coords {
			return ErrUnauthorizedCoords
		}
	}
	return nil
}

// ValidateBid gates a bid attempt: the coordinate must be biddable, the
// payment must be a usable offer the bidder sent, addressed to the tile's
// account, worth at least the minimum bid, and not already earmarked for
// another bid.
func ValidateBid(ctx context.Context, book *BookService, tx *models.Transaction, bidder uuid.UUID, coords models.Coords, rules BidRules) error {
	if err := ValidateCoords(coords, rules); err != nil {
		return err
	}

	if !tx.IsUsableOfferFrom(bidder) {
		return ErrUnauthorizedTransaction
	}

	if !coords.IsRecipientOf(tx) {
		return ErrIncorrectTransaction
	}

	if tx.Total() < rules.MinimumBid {
		return ErrInsufficientFunds
	}

	earmarked, err := book.GetEarmarked(ctx, tx)
	if err != nil {
		return ErrUnknown
	}
	if earmarked != nil {
		return ErrAlreadyEarmarked
	}
	return nil
}

const (
	maxTitleLength       = 120
	maxSubtitleLength    = 120
	maxDescriptionLength = 1000
	maxURLLength         = 2048
)

var telLinkRegexp = regexp.MustCompile(`^tel:\+[0-9]{5,16}$`)

// ValidateBidContent checks user-supplied tile content, collecting every
// failing field so the caller can correct them all at once.
func ValidateBidContent(content models.BidContent) error {
	errs := &ContentValidationError{}

	if content.Title != nil && len(*content.Title) > maxTitleLength {
		errs.Title = fieldErr(ContentTooLong)
	}
	if content.Subtitle != nil && len(*content.Subtitle) > maxSubtitleLength {
		errs.Subtitle = fieldErr(ContentTooLong)
	}
	if content.Description != nil && len(*content.Description) > maxDescriptionLength {
		errs.Description = fieldErr(ContentTooLong)
	}
	if content.URL != nil && *content.URL != "" {
		switch {
		case len(*content.URL) > maxURLLength:
			errs.URL = fieldErr(ContentTooLong)
		case !isValidLink(*content.URL):
			errs.URL = fieldErr(ContentInvalidURL)
		}
	}

	if errs.IsEmpty() {
		return nil
	}
	return errs
}

func fieldErr(kind ContentFieldError) *ContentFieldError {
	return &kind
}

// Tiles may link out to https pages or phone numbers, nothing else.
func isValidLink(link string) bool {
	if telLinkRegexp.MatchString(link) {
		return true
	}
	parsed, err := url.Parse(link)
	return err == nil && parsed.IsAbs() && parsed.Scheme == "https"
}
