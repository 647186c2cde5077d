package persistence

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/config"
)

func TestMigrationFilesSortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"002_b.sql", "001_a.sql", "README.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.sql"), 0o700))

	files, err := MigrationFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_a.sql", "002_b.sql"}, files)
}

func TestMigrationFilesMissingDir(t *testing.T) {
	_, err := MigrationFiles(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestRepoMigrationsPresent(t *testing.T) {
	files, err := MigrationFiles(filepath.Join("..", "..", "migrations"))
	require.NoError(t, err)
	assert.NotEmpty(t, files)
}

func TestRunMigrationsWithoutPool(t *testing.T) {
	assert.NoError(t, RunMigrations(context.Background(), nil, "unused", zap.NewNop()))
}

func TestNewPostgresRequiresDSN(t *testing.T) {
	_, err := NewPostgres(context.Background(), config.PostgresConfig{}, zap.NewNop())
	assert.Error(t, err)
}

func TestNilHandlesReportNotConfigured(t *testing.T) {
	var pg *Postgres
	var rd *Redis
	var mg *Mongo
	ctx := context.Background()
	assert.Error(t, pg.Ping(ctx))
	assert.Error(t, rd.Ping(ctx))
	assert.Error(t, mg.Ping(ctx))
	pg.Close()
	rd.Close()
	mg.Close(ctx)
}

func TestNewMinIOValidatesConfig(t *testing.T) {
	_, err := NewMinIO(config.MinIOConfig{})
	assert.Error(t, err)

	_, err = NewMinIO(config.MinIOConfig{Endpoint: "localhost:9000"})
	assert.Error(t, err)

	store, err := NewMinIO(config.MinIOConfig{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b"})
	require.NoError(t, err)
	assert.Equal(t, "ticket-attachments", store.bucket)
}
