package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenEmptyDriver(t *testing.T) {
	d, err := Open("", "")
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestOpenUnsupported(t *testing.T) {
	_, err := Open("oracle", "x")
	require.Error(t, err)
}

func TestMigrateSQLiteIdempotent(t *testing.T) {
	d, err := Open("sqlite", filepath.Join(t.TempDir(), "callbell.db"))
	require.NoError(t, err)

	require.NoError(t, Migrate(d))
	require.NoError(t, Migrate(d))

	assert.True(t, d.Migrator().HasTable("requests"))
	assert.True(t, d.Migrator().HasTable("history_entries"))
	assert.True(t, d.Migrator().HasIndex("history_entries", "idx_history_device_seq"))
}
