// Package state persists the small amount of client-side state that must
// survive between CLI invocations: saved credentials per server, the
// active session id, the merge selection, and an export history. The
// server remains ground truth for everything session-shaped; nothing here
// duplicates cluster data.
package state

import (
	"context"
	"time"
)

// Credentials is a saved login for one server.
type Credentials struct {
	ServerURL string
	Token     string
	UserID    int
	Username  string
	Email     string
	SavedAt   time.Time
}

// ExportRecord is one completed export download.
type ExportRecord struct {
	ID         string
	SessionID  string
	Kind       string
	Dest       string
	Bytes      int64
	ExportedAt time.Time
}

// Store defines the local persistence interface for klaster.
type Store interface {
	// Credentials
	SaveCredentials(ctx context.Context, c *Credentials) error
	GetCredentials(ctx context.Context, serverURL string) (*Credentials, error)
	DeleteCredentials(ctx context.Context, serverURL string) error

	// Active session
	SetActiveSession(ctx context.Context, sessionID string) error
	ActiveSession(ctx context.Context) (string, error)

	// Persisted merge selection, keyed by session
	SaveSelection(ctx context.Context, sessionID string, clusterIDs []string) error
	GetSelection(ctx context.Context, sessionID string) ([]string, error)
	ClearSelection(ctx context.Context, sessionID string) error

	// Export history
	RecordExport(ctx context.Context, rec *ExportRecord) error
	ListExports(ctx context.Context, sessionID string, limit int) ([]*ExportRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
