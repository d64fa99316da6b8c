package users

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreLookups(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	u := store.Add(User{Name: "Sara", Phone: " +201001 "})

	byPhone, err := store.FindByPhone(ctx, "+201001")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byPhone.ID)

	_, err = store.FindByPhone(ctx, "  ")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.UpdatePhone(ctx, u.ID, "+209999"))
	got, err := store.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "+209999", got.Phone)

	assert.ErrorIs(t, store.UpdatePhone(ctx, "missing", "+1"), ErrNotFound)

	batch, err := store.FindByIDs(ctx, []string{u.ID, "missing"})
	require.NoError(t, err)
	assert.Len(t, batch, 1)
}

func TestSQLStoreFindByPhone(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLStore(db)
	mock.ExpectQuery("SELECT id, name, phone FROM users WHERE phone").
		WithArgs("+201001").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "phone"}).AddRow("u-1", "Sara", "+201001"))

	u, err := store.FindByPhone(context.Background(), " +201001")
	require.NoError(t, err)
	assert.Equal(t, "u-1", u.ID)

	mock.ExpectQuery("SELECT id, name, phone FROM users WHERE id").
		WithArgs("u-2").
		WillReturnError(sql.ErrNoRows)
	_, err = store.FindByID(context.Background(), "u-2")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreFindByIDs(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLStore(db)
	mock.ExpectQuery("SELECT id, name, phone FROM users WHERE id = ANY").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "phone"}).
			AddRow("u-1", "Sara", nil).
			AddRow("u-2", "Omar", "+1555"))

	got, err := store.FindByIDs(context.Background(), []string{"u-1", "u-2"})
	require.NoError(t, err)
	assert.Equal(t, "", got["u-1"].Phone)
	assert.Equal(t, "+1555", got["u-2"].Phone)

	empty, err := store.FindByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreUpdatePhone(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLStore(db)
	mock.ExpectExec("UPDATE users SET phone").
		WithArgs("u-1", "+201001").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.UpdatePhone(context.Background(), "u-1", "+201001 "))

	mock.ExpectExec("UPDATE users SET phone").
		WithArgs("u-9", "+1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, store.UpdatePhone(context.Background(), "u-9", "+1"), ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}
