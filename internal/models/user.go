package models

import "github.com/google/uuid"

// AuthenticatedUser is the identity extracted from an inbound request by
// the auth collaborator. Ledger operations take it for audit attribution.
type AuthenticatedUser struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
}

// AdminUser wraps an authenticated user that additionally passed the
// static admin key check.
type AdminUser struct {
	AuthenticatedUser
}
