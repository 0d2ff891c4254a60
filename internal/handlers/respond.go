package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tilebank/backend/internal/middleware"
	"github.com/tilebank/backend/internal/models"
	"github.com/tilebank/backend/internal/services"
)

const maxBodyBytes = 1_048_576

const (
	defaultPageLimit = 32
	maxPageLimit     = 256
)

// decodeJSON reads a single JSON object from the request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("body must contain a single JSON object")
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// respondServiceError maps a service error kind onto its HTTP status.
// Content validation errors carry per-field details.
func respondServiceError(w http.ResponseWriter, err error) {
	status := services.StatusForError(err)

	var contentErr *services.ContentValidationError
	if errors.As(err, &contentErr) {
		respondJSON(w, status, map[string]any{
			"error":   "invalid content",
			"content": contentErr,
		})
		return
	}
	services.SendErrorResponse(w, err.Error(), status, nil)
}

// requestUser pulls the authenticated user off the context, responding
// 401 itself when the middleware did not run.
func requestUser(w http.ResponseWriter, r *http.Request) (*models.AuthenticatedUser, bool) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return nil, false
	}
	return user, true
}

// requestCoords parses the {coords} path segment ("x:y").
func requestCoords(w http.ResponseWriter, r *http.Request) (models.Coords, bool) {
	coords, err := models.ParseCoords(chi.URLParam(r, "coords"))
	if err != nil {
		services.SendErrorResponse(w, "Invalid coordinates", http.StatusBadRequest, nil)
		return models.Coords{}, false
	}
	return coords, true
}

// pagination reads offset/limit query parameters with sane bounds.
func pagination(r *http.Request) (offset, limit int) {
	limit = defaultPageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}
	return offset, limit
}
