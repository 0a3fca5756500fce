package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitSQLiteCreatesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.db")
	database, err := InitSQLite(path)
	require.NoError(t, err)
	defer CloseDB(database)

	var name string
	err = database.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'messages'`).Scan(&name)
	require.NoError(t, err)
	require.Equal(t, "messages", name)
}

func TestInitSQLiteIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.db")

	first, err := InitSQLite(path)
	require.NoError(t, err)
	_, err = first.Exec(`INSERT INTO messages (id, username, body, sent_at) VALUES ('a', 'user_aaaaaa', 'hi', '2026-01-01T00:00:00Z')`)
	require.NoError(t, err)
	CloseDB(first)

	second, err := InitSQLite(path)
	require.NoError(t, err)
	defer CloseDB(second)

	var count int
	require.NoError(t, second.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count))
	require.Equal(t, 1, count)
}
