// File: internal/sessionstore/postgres_test.go
package sessionstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	mock.ExpectPing()
	store, err := NewPostgresStore(context.Background(), mock, zap.NewNop())
	require.NoError(t, err)
	return store, mock
}

func TestPostgresStoreNewPingFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	_, err = NewPostgresStore(context.Background(), mock, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to ping database")
}

func TestPostgresStoreSave(t *testing.T) {
	store, mock := newTestPostgresStore(t)
	blob := []byte(`{"cookies":[]}`)

	mock.ExpectExec("INSERT INTO sessions").
		WithArgs("my_account", blob).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Save(context.Background(), "my account", blob))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreLoad(t *testing.T) {
	store, mock := newTestPostgresStore(t)

	t.Run("found", func(t *testing.T) {
		blob := []byte(`{"cookies":[]}`)
		mock.ExpectQuery("SELECT blob FROM sessions").
			WithArgs("alice").
			WillReturnRows(pgxmock.NewRows([]string{"blob"}).AddRow(blob))

		got, err := store.Load(context.Background(), "alice")
		require.NoError(t, err)
		assert.Equal(t, blob, got)
	})

	t.Run("missing", func(t *testing.T) {
		mock.ExpectQuery("SELECT blob FROM sessions").
			WithArgs("ghost").
			WillReturnError(pgx.ErrNoRows)

		_, err := store.Load(context.Background(), "ghost")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreList(t *testing.T) {
	store, mock := newTestPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT name, updated_at, octet_length").
		WillReturnRows(pgxmock.NewRows([]string{"name", "updated_at", "octet_length"}).
			AddRow("alpha", now, int64(42)).
			AddRow("beta", now, int64(7)))

	sessions, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "alpha", sessions[0].Name)
	assert.Equal(t, int64(42), sessions[0].SizeBytes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreDelete(t *testing.T) {
	store, mock := newTestPostgresStore(t)

	t.Run("deletes", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM sessions").
			WithArgs("alpha").
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		require.NoError(t, store.Delete(context.Background(), "alpha"))
	})

	t.Run("missing", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM sessions").
			WithArgs("ghost").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		assert.ErrorIs(t, store.Delete(context.Background(), "ghost"), ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
