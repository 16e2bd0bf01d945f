package store_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/store"
)

func open(t *testing.T, path string) *store.Store {
	t.Helper()
	s, err := store.New(path)
	require.NoError(t, err)
	return s
}

func TestNew_AppliesMigrations(t *testing.T) {
	s := open(t, filepath.Join(t.TempDir(), "livebot.db"))
	defer s.Close()

	v, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	for _, table := range []string{"transcript", "gate_audit", "matrix_sync_state"} {
		var name string
		err := s.DB().QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}
}

func TestNew_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "livebot.db")
	open(t, path).Close()

	s := open(t, path)
	defer s.Close()

	var n int
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n))
	assert.Equal(t, 3, n, "migrations are recorded once")
}

func TestNew_CreatesDirectory(t *testing.T) {
	s := open(t, filepath.Join(t.TempDir(), "data", "nested", "livebot.db"))
	defer s.Close()

	v, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}
