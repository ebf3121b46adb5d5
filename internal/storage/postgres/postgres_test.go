package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctnfastfood/cart/pkg/database"
	apperrors "github.com/ctnfastfood/cart/pkg/errors"
	"github.com/ctnfastfood/cart/pkg/logger"
)

const testKey = "ctn-fastfood-cart:sess-001"

const testSnapshot = `[{"id":"a","name":"Burger","category":"Burgers","price":5.5,"image":"img1","quantity":2}]`

func newMockStorage(t *testing.T) (*Storage, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return New(mock), mock
}

func TestStorage_Get_Success(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectQuery(regexp.QuoteMeta(selectSnapshotSQL)).
		WithArgs(testKey).
		WillReturnRows(pgxmock.NewRows([]string{"payload"}).AddRow(testSnapshot))

	got, err := s.Get(context.Background(), testKey)
	require.NoError(t, err)
	assert.JSONEq(t, testSnapshot, string(got))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_Get_NotFound(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectQuery(regexp.QuoteMeta(selectSnapshotSQL)).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.Get(context.Background(), "missing")
	assert.Nil(t, got)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_Get_DBError(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectQuery(regexp.QuoteMeta(selectSnapshotSQL)).
		WithArgs(testKey).
		WillReturnError(errors.New("connection reset"))

	_, err := s.Get(context.Background(), testKey)
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrNotFound)
	assert.Contains(t, err.Error(), "select cart snapshot")
}

func TestStorage_Set_Upserts(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectExec(regexp.QuoteMeta(upsertSnapshotSQL)).
		WithArgs(testKey, testSnapshot).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Set(context.Background(), testKey, []byte(testSnapshot)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_Set_Error(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectExec(regexp.QuoteMeta(upsertSnapshotSQL)).
		WithArgs(testKey, "[]").
		WillReturnError(errors.New("disk full"))

	err := s.Set(context.Background(), testKey, []byte("[]"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert cart snapshot")
}

func TestStorage_Delete(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectExec(regexp.QuoteMeta(deleteSnapshotSQL)).
		WithArgs(testKey).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, s.Delete(context.Background(), testKey))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_Ping(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectPing()
	require.NoError(t, s.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("down"))
	err := s.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres ping")
}

func TestStorage_Migrate(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("001_create_cart_snapshots.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS cart_snapshots").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO schema_migrations").
		WithArgs("001_create_cart_snapshots.up.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, s.Migrate(context.Background(), logger.NewNop()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
