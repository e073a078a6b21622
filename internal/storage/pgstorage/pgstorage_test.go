package pgstorage

import (
	"context"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localpay/localpay/internal/domain/payments"
	"github.com/localpay/localpay/internal/domain/users"
	"github.com/localpay/localpay/internal/storage"
)

func newMockStorage(t *testing.T) (*Storage, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	return NewStorageWithDB(db), mock
}

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"login", "password_hash", "name", "surname", "role", "region", "active", "planup_id", "registered_at",
	})
}

func accountRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"login", "ceiling", "spent", "access_to_payments", "active"})
}

func paymentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "txn_id", "user_login", "ls_abon", "amount", "status",
		"document_number", "comment", "requested_at", "accepted_at", "updated_at",
	})
}

func TestGetUser(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		store, mock := newMockStorage(t)

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT login, password_hash, name, surname, role, region, active, planup_id, registered_at FROM users WHERE login = $1`)).
			WithArgs("operator1").
			WillReturnRows(userRows().AddRow(
				"operator1", "hash", "Ivan", "Petrov", "user", "north", true, int64(77), time.Now(),
			))

		usr, err := store.GetUser(context.Background(), "operator1")
		require.NoError(t, err)

		assert.Equal(t, "operator1", usr.Login())
		assert.Equal(t, users.RoleUser, usr.Role())
		assert.Equal(t, int64(77), usr.PlanupID())
		assert.True(t, usr.Active())

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		store, mock := newMockStorage(t)

		mock.ExpectQuery(`SELECT login, password_hash`).
			WithArgs("ghost").
			WillReturnRows(userRows())

		_, err := store.GetUser(context.Background(), "ghost")
		assert.ErrorIs(t, err, storage.ErrUserNotFound)

		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCreateUser(t *testing.T) {
	store, mock := newMockStorage(t)

	usr, err := users.NewUser("operator1", "password", users.RoleUser)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO user_accounts (login, access_to_payments) VALUES ($1, $2)`)).
		WithArgs("operator1", true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.CreateUser(context.Background(), usr))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserSupervisorHasNoAccess(t *testing.T) {
	store, mock := newMockStorage(t)

	usr, err := users.NewUser("auditor1", "password", users.RoleSupervisor)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO user_accounts`)).
		WithArgs("auditor1", false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.CreateUser(context.Background(), usr))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAccount(t *testing.T) {
	t.Run("active user", func(t *testing.T) {
		store, mock := newMockStorage(t)

		mock.ExpectQuery(`SELECT a.login, a.ceiling, a.spent, a.access_to_payments, u.active`).
			WithArgs("operator1").
			WillReturnRows(accountRows().AddRow(
				"operator1", "1000.00", "200.00", true, true,
			))

		acct, err := store.GetAccount(context.Background(), "operator1")
		require.NoError(t, err)

		assert.True(t, acct.Available().Equal(decimal.NewFromInt(800)))

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("inactive user", func(t *testing.T) {
		store, mock := newMockStorage(t)

		mock.ExpectQuery(`SELECT a.login, a.ceiling, a.spent`).
			WithArgs("operator1").
			WillReturnRows(accountRows().AddRow(
				"operator1", "1000.00", "200.00", true, false,
			))

		_, err := store.GetAccount(context.Background(), "operator1")
		assert.ErrorIs(t, err, storage.ErrUserInactive)
	})

	t.Run("missing account", func(t *testing.T) {
		store, mock := newMockStorage(t)

		mock.ExpectQuery(`SELECT a.login`).
			WithArgs("ghost").
			WillReturnRows(accountRows())

		_, err := store.GetAccount(context.Background(), "ghost")
		assert.ErrorIs(t, err, storage.ErrAccountNotFound)
	})
}

func TestApplyPayment(t *testing.T) {
	t.Run("commits debit, record and comment", func(t *testing.T) {
		store, mock := newMockStorage(t)

		now := time.Now()

		pmt, err := payments.NewPayment("operator1", "111", "txn1", decimal.NewFromInt(50), now, now)
		require.NoError(t, err)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT a.login, a.ceiling, a.spent, a.access_to_payments, u.active .* FOR UPDATE OF a`).
			WithArgs("operator1").
			WillReturnRows(accountRows().AddRow(
				"operator1", "1000.00", "0.00", true, true,
			))
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO payments`)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE user_accounts SET ceiling = $1, spent = $2 WHERE login = $3`)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO comments`)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		stored, entry, err := store.ApplyPayment(context.Background(), pmt)
		require.NoError(t, err)

		assert.Equal(t, int64(7), stored.ID())
		assert.True(t, entry.DeltaSpent().Equal(decimal.NewFromInt(50)))

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on insufficient funds", func(t *testing.T) {
		store, mock := newMockStorage(t)

		now := time.Now()

		pmt, err := payments.NewPayment("operator1", "111", "txn1", decimal.NewFromInt(500), now, now)
		require.NoError(t, err)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT a.login`).
			WithArgs("operator1").
			WillReturnRows(accountRows().AddRow(
				"operator1", "100.00", "0.00", true, true,
			))
		mock.ExpectRollback()

		_, _, err = store.ApplyPayment(context.Background(), pmt)
		assert.ErrorIs(t, err, users.ErrInsufficientFunds)

		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestListPaymentsCursor(t *testing.T) {
	store, mock := newMockStorage(t)

	now := time.Now()

	rows := paymentRows()
	for _, id := range []int64{1, 2, 3} {
		rows.AddRow(
			id, "txn"+strconv.FormatInt(id, 10), "operator1", "111", "10.00", "COMPLETED",
			nil, nil, now, now, now,
		)
	}

	// Limit 2 fetches one extra row to detect the next page.
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, txn_id, user_login, ls_abon, amount, status, document_number, comment, requested_at, accepted_at, updated_at FROM payments ORDER BY id LIMIT 3`)).
		WillReturnRows(rows)

	pmts, cursor, err := store.ListPayments(context.Background(), storage.PaymentFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, pmts, 2)

	// Cursor filtering is exclusive, so the cursor must be the last
	// returned row or the next page would skip a record.
	assert.Equal(t, int64(2), cursor)
	assert.Equal(t, cursor, pmts[1].ID())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivateUser(t *testing.T) {
	t.Run("marks inactive", func(t *testing.T) {
		store, mock := newMockStorage(t)

		mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET active = FALSE WHERE login = $1`)).
			WithArgs("operator1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.DeactivateUser(context.Background(), "operator1"))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown user", func(t *testing.T) {
		store, mock := newMockStorage(t)

		mock.ExpectExec(`UPDATE users SET active = FALSE`).
			WithArgs("ghost").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.DeactivateUser(context.Background(), "ghost")
		assert.ErrorIs(t, err, storage.ErrUserNotFound)
	})
}

func TestUpdateUserProfile(t *testing.T) {
	store, mock := newMockStorage(t)

	name := "Ivan"
	access := false

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE users SET name = COALESCE`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE user_accounts SET access_to_payments = $1 WHERE login = $2`)).
		WithArgs(false, "operator1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.UpdateUserProfile(context.Background(), "operator1", users.ProfileUpdate{
		Name:             &name,
		AccessToPayments: &access,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
