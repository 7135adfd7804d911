package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jonathandlab/coyn/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

const (
	insertQ    = `(?s)^\s*INSERT\s+INTO\s+refresh_tokens\s*\(user_id,\s*expires_at\)\s*VALUES\s*\(\$1,\s*\$2\)\s*RETURNING\s+id\s*$`
	selectQ    = `(?s)^\s*SELECT\s+id,\s*user_id,\s*generation,\s*expires_at,\s*created_at,\s*revoked_at\s+FROM\s+refresh_tokens\s+WHERE\s+id\s*=\s*\$1\s*$`
	forUpdateQ = `(?s)^\s*SELECT\s+id,.*FROM\s+refresh_tokens\s+WHERE\s+id\s*=\s*\$1\s+FOR\s+UPDATE\s*$`
	updateQ    = `(?s)^\s*UPDATE\s+refresh_tokens\s+SET\s+expires_at\s*=\s*\$1,\s*generation\s*=\s*generation\s*\+\s*1\s+WHERE\s+id\s*=\s*\$2\s+AND\s+generation\s*=\s*\$3\s+RETURNING\s+generation\s*$`
	existsQ    = `(?s)SELECT\s+EXISTS\s*\(SELECT\s+1\s+FROM\s+refresh_tokens\s+WHERE\s+id\s*=\s*\$1\)`
	revokeQ    = `(?s)^\s*UPDATE\s+refresh_tokens\s+SET\s+revoked_at\s*=\s*COALESCE\(revoked_at,\s*\$1\)\s+WHERE\s+id\s*=\s*\$2\s*$`
)

var cols = []string{"id", "user_id", "generation", "expires_at", "created_at", "revoked_at"}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	exp := time.Date(2025, 3, 1, 12, 5, 0, 0, time.UTC)
	mock.ExpectQuery(insertQ).
		WithArgs(int64(7), exp).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))

	id, err := repo.Create(context.Background(), 7, exp)
	require.NoError(t, err)
	assert.Equal(t, int64(11), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(insertQ).WithArgs(int64(7), sqlmock.AnyArg()).WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), 7, time.Now())
	require.ErrorIs(t, err, common.ErrPersistence)
	assert.Contains(t, err.Error(), "db down")
}

func TestFindByID(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	exp := time.Date(2025, 3, 1, 12, 5, 0, 0, time.UTC)
	created := exp.Add(-5 * time.Minute)
	mock.ExpectQuery(selectQ).
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(11), int64(7), int64(2), exp, created, nil))

	rt, err := repo.FindByID(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, int64(11), rt.ID)
	assert.Equal(t, int64(7), rt.UserID)
	assert.Equal(t, int64(2), rt.Generation)
	assert.Equal(t, exp, rt.ExpiresAt)
	assert.False(t, rt.Revoked())
}

func TestFindByID_Revoked(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(selectQ).
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(11), int64(7), int64(0), now, now, now))

	rt, err := repo.FindByID(context.Background(), 11)
	require.NoError(t, err)
	require.True(t, rt.Revoked())
	assert.Equal(t, now, *rt.RevokedAt)
}

func TestFindByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(selectQ).WithArgs(int64(404)).WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), 404)
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestFindByID_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(selectQ).WithArgs(int64(1)).WillReturnError(errors.New("db err"))

	_, err := repo.FindByID(context.Background(), 1)
	require.ErrorIs(t, err, common.ErrPersistence)
	assert.NotErrorIs(t, err, common.ErrorNotFound)
}

func TestFindByIDForUpdate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(forUpdateQ).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(3), int64(1), int64(0), now, now, nil))

	rt, err := repo.FindByIDForUpdate(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rt.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateExpiration_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	exp := time.Date(2025, 3, 1, 12, 9, 0, 0, time.UTC)
	mock.ExpectQuery(updateQ).
		WithArgs(exp, int64(11), int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"generation"}).AddRow(int64(1)))

	gen, err := repo.UpdateExpiration(context.Background(), 11, 0, exp)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateExpiration_Conflict(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(updateQ).WithArgs(sqlmock.AnyArg(), int64(11), int64(0)).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(existsQ).WithArgs(int64(11)).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := repo.UpdateExpiration(context.Background(), 11, 0, time.Now())
	require.ErrorIs(t, err, common.ErrVersionConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateExpiration_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(updateQ).WithArgs(sqlmock.AnyArg(), int64(404), int64(0)).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(existsQ).WithArgs(int64(404)).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := repo.UpdateExpiration(context.Background(), 404, 0, time.Now())
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestUpdateExpiration_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(updateQ).WithArgs(sqlmock.AnyArg(), int64(1), int64(0)).WillReturnError(errors.New("deadlock"))

	_, err := repo.UpdateExpiration(context.Background(), 1, 0, time.Now())
	require.ErrorIs(t, err, common.ErrPersistence)
}

func TestUpdateExpiration_ExistsCheckFails(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(updateQ).WithArgs(sqlmock.AnyArg(), int64(1), int64(0)).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(existsQ).WithArgs(int64(1)).WillReturnError(errors.New("gone"))

	_, err := repo.UpdateExpiration(context.Background(), 1, 0, time.Now())
	require.ErrorIs(t, err, common.ErrPersistence)
}

func TestRevoke(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(revokeQ).WithArgs(at, int64(11)).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Revoke(context.Background(), 11, at))

	mock.ExpectExec(revokeQ).WithArgs(at, int64(404)).WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.Revoke(context.Background(), 404, at), common.ErrorNotFound)

	mock.ExpectExec(revokeQ).WithArgs(at, int64(1)).WillReturnError(errors.New("db err"))
	require.ErrorIs(t, repo.Revoke(context.Background(), 1, at), common.ErrPersistence)

	require.NoError(t, mock.ExpectationsWereMet())
}
