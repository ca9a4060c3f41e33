package state

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const activeSessionKey = "active_session"

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection
	// serializes all access through Go's pool and avoids "database is
	// locked" errors when the poll loop and a command write concurrently.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Credentials ---

// SaveCredentials upserts the login for a server.
func (s *SQLiteStore) SaveCredentials(ctx context.Context, c *Credentials) error {
	if c.SavedAt.IsZero() {
		c.SavedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO credentials
		(server_url, token, user_id, username, email, saved_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(server_url) DO UPDATE SET
		token=excluded.token, user_id=excluded.user_id,
		username=excluded.username, email=excluded.email,
		saved_at=excluded.saved_at`,
		c.ServerURL, c.Token, c.UserID, c.Username, c.Email, c.SavedAt)
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

// GetCredentials returns the saved login for a server, or nil when absent.
func (s *SQLiteStore) GetCredentials(ctx context.Context, serverURL string) (*Credentials, error) {
	c := &Credentials{}
	err := s.db.QueryRowContext(ctx, `SELECT server_url, token, user_id, username, email, saved_at
		FROM credentials WHERE server_url = ?`, serverURL).
		Scan(&c.ServerURL, &c.Token, &c.UserID, &c.Username, &c.Email, &c.SavedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credentials: %w", err)
	}
	return c, nil
}

// DeleteCredentials removes the saved login for a server. Deleting a
// missing row is not an error: this is the 401 de-auth path.
func (s *SQLiteStore) DeleteCredentials(ctx context.Context, serverURL string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM credentials WHERE server_url = ?", serverURL); err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}

// --- Active session ---

// SetActiveSession stores the active session id; empty clears it.
func (s *SQLiteStore) SetActiveSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM app_state WHERE key = ?", activeSessionKey); err != nil {
			return fmt.Errorf("clear active session: %w", err)
		}
		return nil
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO app_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value`, activeSessionKey, sessionID)
	if err != nil {
		return fmt.Errorf("set active session: %w", err)
	}
	return nil
}

// ActiveSession returns the stored active session id, or "".
func (s *SQLiteStore) ActiveSession(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM app_state WHERE key = ?", activeSessionKey).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get active session: %w", err)
	}
	return id, nil
}

// --- Merge selection ---

// SaveSelection persists the selected cluster ids for a session. An empty
// slice removes the row.
func (s *SQLiteStore) SaveSelection(ctx context.Context, sessionID string, clusterIDs []string) error {
	if len(clusterIDs) == 0 {
		return s.ClearSelection(ctx, sessionID)
	}
	data, err := json.Marshal(clusterIDs)
	if err != nil {
		return fmt.Errorf("encode selection: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO selections (session_id, cluster_ids, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
		cluster_ids=excluded.cluster_ids, updated_at=excluded.updated_at`,
		sessionID, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save selection: %w", err)
	}
	return nil
}

// GetSelection returns the persisted selection for a session.
func (s *SQLiteStore) GetSelection(ctx context.Context, sessionID string) ([]string, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT cluster_ids FROM selections WHERE session_id = ?", sessionID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get selection: %w", err)
	}
	var ids []string
	if err := json.Unmarshal([]byte(data), &ids); err != nil {
		return nil, fmt.Errorf("decode selection: %w", err)
	}
	return ids, nil
}

// ClearSelection drops the persisted selection for a session.
func (s *SQLiteStore) ClearSelection(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM selections WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("clear selection: %w", err)
	}
	return nil
}

// --- Export history ---

// RecordExport appends one completed export download.
func (s *SQLiteStore) RecordExport(ctx context.Context, rec *ExportRecord) error {
	if rec.ID == "" {
		rec.ID = newULID()
	}
	if rec.ExportedAt.IsZero() {
		rec.ExportedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO export_log
		(id, session_id, kind, dest, bytes, exported_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.Kind, rec.Dest, rec.Bytes, rec.ExportedAt)
	if err != nil {
		return fmt.Errorf("record export: %w", err)
	}
	return nil
}

// ListExports returns export history, newest first, optionally filtered by
// session.
func (s *SQLiteStore) ListExports(ctx context.Context, sessionID string, limit int) ([]*ExportRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, session_id, kind, dest, bytes, exported_at FROM export_log`
	args := []any{}
	if sessionID != "" {
		query += " WHERE session_id = ?"
		args = append(args, sessionID)
	}
	query += " ORDER BY exported_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list exports: %w", err)
	}
	defer rows.Close()

	var out []*ExportRecord
	for rows.Next() {
		rec := &ExportRecord{}
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Kind, &rec.Dest, &rec.Bytes, &rec.ExportedAt); err != nil {
			return nil, fmt.Errorf("scan export row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
