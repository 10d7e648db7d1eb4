package database

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatekeeper/internal/platform/config"
	"gatekeeper/migrations"
)

func TestOpenWithoutURL(t *testing.T) {
	pool, err := Open(context.Background(), config.Database{})
	require.NoError(t, err)
	assert.Nil(t, pool)

	assert.Error(t, pool.Health(context.Background()))
	assert.NoError(t, pool.Close())
	assert.Zero(t, pool.Stats().OpenConnections)
}

func TestUpMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"002_b.up.sql":   {Data: []byte("SELECT 2")},
		"001_a.up.sql":   {Data: []byte("SELECT 1")},
		"001_a.down.sql": {Data: []byte("SELECT 0")},
		"README.md":      {Data: []byte("notes")},
	}
	files, err := UpMigrations(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_a.up.sql", "002_b.up.sql"}, files)
}

func TestEmbeddedMigrationsAreListed(t *testing.T) {
	files, err := UpMigrations(migrations.FS)
	require.NoError(t, err)
	assert.Contains(t, files, "001_create_inquiries.up.sql")
}
