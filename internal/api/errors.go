package api

import (
	"errors"
	"fmt"
)

// Sentinel errors for the two response classes that callers branch on:
// eviction (gone sessions) and global de-authentication.
var (
	// ErrNotFound indicates the session or cluster no longer exists
	// server-side. Lifecycle code evicts the session from the registry.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates the token was rejected. The client fires
	// its unauthorized hook before returning this.
	ErrUnauthorized = errors.New("unauthorized")
)

// APIError is a non-2xx response carrying the server's error text.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("HTTP error, status %d", e.StatusCode)
}

// errorBody is the error envelope every Klaster endpoint uses. Some
// endpoints put the text under "error", a few under "message".
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (b errorBody) text() string {
	if b.Error != "" {
		return b.Error
	}
	return b.Message
}
