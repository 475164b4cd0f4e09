package migrations

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type recordingExecer struct {
	statements []string
	err        error
}

func (r *recordingExecer) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	if r.err != nil {
		return pgconn.CommandTag{}, r.err
	}
	r.statements = append(r.statements, sql)
	return pgconn.CommandTag{}, nil
}

func TestRunPostgresMigrationsAppliesEmbeddedFiles(t *testing.T) {
	files, err := Files()
	require.NoError(t, err)
	require.NotEmpty(t, files)
	require.Equal(t, "001_init.sql", files[0])

	db := &recordingExecer{}
	applied, err := RunPostgresMigrations(context.Background(), db)
	require.NoError(t, err)
	require.Equal(t, len(files), applied)
	require.True(t, strings.Contains(db.statements[0], "CREATE TABLE IF NOT EXISTS transactions"))
}

func TestRunPostgresMigrationsStopsOnError(t *testing.T) {
	db := &recordingExecer{err: errors.New("boom")}
	applied, err := RunPostgresMigrations(context.Background(), db)
	require.Error(t, err)
	require.Contains(t, err.Error(), "apply migration 001_init.sql")
	require.Zero(t, applied)
}
