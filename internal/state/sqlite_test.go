package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "klaster.db")
	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	// Running migrations twice must not fail.
	assert.NoError(t, s.Migrate(context.Background()))
}

func TestCredentials_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	creds := &Credentials{
		ServerURL: "http://localhost:5000",
		Token:     "jwt-abc",
		UserID:    7,
		Username:  "ada",
		Email:     "ada@example.com",
		SavedAt:   time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.SaveCredentials(ctx, creds))

	got, err := s.GetCredentials(ctx, "http://localhost:5000")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "jwt-abc", got.Token)
	assert.Equal(t, "ada", got.Username)
	assert.Equal(t, 7, got.UserID)
}

func TestCredentials_UpsertReplacesToken(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &Credentials{ServerURL: "http://h", Token: "old", Username: "ada"}
	require.NoError(t, s.SaveCredentials(ctx, first))

	second := &Credentials{ServerURL: "http://h", Token: "new", Username: "ada"}
	require.NoError(t, s.SaveCredentials(ctx, second))

	got, err := s.GetCredentials(ctx, "http://h")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "new", got.Token)
}

func TestCredentials_MissingIsNil(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetCredentials(context.Background(), "http://nowhere")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCredentials_Delete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveCredentials(ctx, &Credentials{ServerURL: "http://h", Token: "t"}))
	require.NoError(t, s.DeleteCredentials(ctx, "http://h"))

	got, err := s.GetCredentials(ctx, "http://h")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Deleting again is a no-op.
	assert.NoError(t, s.DeleteCredentials(ctx, "http://h"))
}

func TestActiveSession_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Empty until set.
	active, err := s.ActiveSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", active)

	require.NoError(t, s.SetActiveSession(ctx, "sess-1"))
	active, err = s.ActiveSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", active)

	// Replacing and clearing.
	require.NoError(t, s.SetActiveSession(ctx, "sess-2"))
	active, err = s.ActiveSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sess-2", active)

	require.NoError(t, s.SetActiveSession(ctx, ""))
	active, err = s.ActiveSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", active)
}

func TestSelection_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSelection(ctx, "sess-1", []string{"0", "3"}))

	ids, err := s.GetSelection(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "3"}, ids)

	// Saving replaces, not appends.
	require.NoError(t, s.SaveSelection(ctx, "sess-1", []string{"5"}))
	ids, err = s.GetSelection(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"5"}, ids)

	// Saving an empty selection clears the row.
	require.NoError(t, s.SaveSelection(ctx, "sess-1", nil))
	ids, err = s.GetSelection(ctx, "sess-1")
	require.NoError(t, err)
	assert.Nil(t, ids)
}

func TestSelection_PerSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSelection(ctx, "a", []string{"1"}))
	require.NoError(t, s.SaveSelection(ctx, "b", []string{"2"}))

	require.NoError(t, s.ClearSelection(ctx, "a"))

	ids, err := s.GetSelection(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, ids)

	ids, err = s.GetSelection(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, ids)
}

func TestExportLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := &ExportRecord{
		SessionID: "sess-1",
		Kind:      "assignments.csv",
		Dest:      "/tmp/out.csv",
		Bytes:     1024,
	}
	require.NoError(t, s.RecordExport(ctx, rec))
	assert.NotEmpty(t, rec.ID, "RecordExport assigns a ULID")
	assert.False(t, rec.ExportedAt.IsZero())

	require.NoError(t, s.RecordExport(ctx, &ExportRecord{
		SessionID: "sess-2",
		Kind:      "session_summary.json",
		Dest:      "-",
		Bytes:     64,
	}))

	all, err := s.ListExports(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	only, err := s.ListExports(ctx, "sess-1", 10)
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, "assignments.csv", only[0].Kind)
	assert.Equal(t, int64(1024), only[0].Bytes)
}

func TestNewSQLiteStore_CreatesParentDir(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "klaster.db")
	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	assert.NoError(t, s.Migrate(context.Background()))
}
