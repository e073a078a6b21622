package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localpay/localpay/internal/domain/payments"
	"github.com/localpay/localpay/internal/domain/users"
	"github.com/localpay/localpay/internal/storage"
)

func newUser(t *testing.T, login string, role users.Role) *users.User {
	t.Helper()

	usr, err := users.NewUser(login, "password", role)
	require.NoError(t, err)

	return usr
}

func newPayment(t *testing.T, login, lsAbon string, amount int64) *payments.Payment {
	t.Helper()

	now := time.Now()

	pmt, err := payments.NewPayment(login, lsAbon, "txn-"+lsAbon, decimal.NewFromInt(amount), now, now)
	require.NoError(t, err)

	return pmt
}

func TestUserLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewStorage()

	require.NoError(t, store.CreateUser(ctx, newUser(t, "operator1", users.RoleUser)))

	t.Run("duplicate login", func(t *testing.T) {
		err := store.CreateUser(ctx, newUser(t, "operator1", users.RoleUser))
		assert.ErrorIs(t, err, storage.ErrUserAlreadyExists)
	})

	t.Run("unknown login", func(t *testing.T) {
		_, err := store.GetUser(ctx, "ghost")
		assert.ErrorIs(t, err, storage.ErrUserNotFound)
	})

	t.Run("profile update", func(t *testing.T) {
		name := "Ivan"
		planupID := int64(42)

		require.NoError(t, store.UpdateUserProfile(ctx, "operator1", users.ProfileUpdate{
			Name:     &name,
			PlanupID: &planupID,
		}))

		usr, err := store.GetUser(ctx, "operator1")
		require.NoError(t, err)
		assert.Equal(t, "Ivan", usr.Name())
		assert.Equal(t, int64(42), usr.PlanupID())
	})

	t.Run("access flag update", func(t *testing.T) {
		access := false

		require.NoError(t, store.UpdateUserProfile(ctx, "operator1", users.ProfileUpdate{
			AccessToPayments: &access,
		}))

		acct, err := store.GetAccount(ctx, "operator1")
		require.NoError(t, err)
		assert.False(t, acct.AccessToPayments())

		access = true
		require.NoError(t, store.UpdateUserProfile(ctx, "operator1", users.ProfileUpdate{
			AccessToPayments: &access,
		}))
	})

	t.Run("deactivation blocks account access", func(t *testing.T) {
		require.NoError(t, store.CreateUser(ctx, newUser(t, "operator2", users.RoleUser)))
		require.NoError(t, store.DeactivateUser(ctx, "operator2"))

		usr, err := store.GetUser(ctx, "operator2")
		require.NoError(t, err)
		assert.False(t, usr.Active())

		_, err = store.GetAccount(ctx, "operator2")
		assert.ErrorIs(t, err, storage.ErrUserInactive)
	})

	t.Run("supervisors get no payment access", func(t *testing.T) {
		require.NoError(t, store.CreateUser(ctx, newUser(t, "auditor1", users.RoleSupervisor)))

		acct, err := store.GetAccount(ctx, "auditor1")
		require.NoError(t, err)
		assert.False(t, acct.AccessToPayments())
	})
}

func TestApplyAndAnnulPayment(t *testing.T) {
	ctx := context.Background()
	store := NewStorage()

	require.NoError(t, store.CreateUser(ctx, newUser(t, "operator1", users.RoleUser)))

	_, err := store.RefillBalance(ctx, "operator1", decimal.NewFromInt(1000), "initial", nil)
	require.NoError(t, err)

	stored, entry, err := store.ApplyPayment(ctx, newPayment(t, "operator1", "111", 50))
	require.NoError(t, err)

	assert.NotZero(t, stored.ID())
	assert.True(t, entry.DeltaSpent().Equal(decimal.NewFromInt(50)))

	acct, err := store.GetAccount(ctx, "operator1")
	require.NoError(t, err)
	assert.True(t, acct.Available().Equal(decimal.NewFromInt(950)))

	annulled, entry, err := store.AnnulPayment(ctx, stored.ID(), "mistake")
	require.NoError(t, err)

	assert.Equal(t, payments.StatusAnnulled, annulled.Status())
	assert.True(t, entry.DeltaAvailable().Equal(decimal.NewFromInt(50)))

	acct, err = store.GetAccount(ctx, "operator1")
	require.NoError(t, err)
	assert.True(t, acct.Available().Equal(decimal.NewFromInt(1000)))

	_, _, err = store.AnnulPayment(ctx, stored.ID(), "again")
	assert.ErrorIs(t, err, storage.ErrPaymentAlreadyAnnulled)

	_, _, err = store.AnnulPayment(ctx, 9999, "")
	assert.ErrorIs(t, err, storage.ErrPaymentNotFound)
}

func TestListPayments(t *testing.T) {
	ctx := context.Background()
	store := NewStorage()

	require.NoError(t, store.CreateUser(ctx, newUser(t, "operator1", users.RoleUser)))
	require.NoError(t, store.CreateUser(ctx, newUser(t, "operator2", users.RoleUser)))

	_, err := store.RefillBalance(ctx, "operator1", decimal.NewFromInt(1000), "initial", nil)
	require.NoError(t, err)
	_, err = store.RefillBalance(ctx, "operator2", decimal.NewFromInt(1000), "initial", nil)
	require.NoError(t, err)

	for _, seed := range []struct {
		login  string
		lsAbon string
		amount int64
	}{
		{"operator1", "111", 10},
		{"operator1", "222", 20},
		{"operator2", "111", 30},
		{"operator1", "111", 40},
	} {
		_, _, err := store.ApplyPayment(ctx, newPayment(t, seed.login, seed.lsAbon, seed.amount))
		require.NoError(t, err)
	}

	t.Run("filter by login", func(t *testing.T) {
		pmts, _, err := store.ListPayments(ctx, storage.PaymentFilter{UserLogin: "operator1"})
		require.NoError(t, err)
		assert.Len(t, pmts, 3)
	})

	t.Run("filter by account", func(t *testing.T) {
		pmts, _, err := store.ListPayments(ctx, storage.PaymentFilter{LsAbon: "111"})
		require.NoError(t, err)
		assert.Len(t, pmts, 3)
	})

	t.Run("filter by status", func(t *testing.T) {
		pmts, _, err := store.ListPayments(ctx, storage.PaymentFilter{
			Statuses: []payments.Status{payments.StatusAnnulled},
		})
		require.NoError(t, err)
		assert.Empty(t, pmts)
	})

	t.Run("cursor pagination", func(t *testing.T) {
		page1, cursor, err := store.ListPayments(ctx, storage.PaymentFilter{Limit: 2})
		require.NoError(t, err)
		require.Len(t, page1, 2)
		require.NotZero(t, cursor)

		page2, cursor, err := store.ListPayments(ctx, storage.PaymentFilter{Limit: 2, Cursor: cursor})
		require.NoError(t, err)
		assert.Len(t, page2, 2)
		assert.Zero(t, cursor)

		assert.Greater(t, page2[0].ID(), page1[1].ID())
	})
}

func TestListComments(t *testing.T) {
	ctx := context.Background()
	store := NewStorage()

	require.NoError(t, store.CreateUser(ctx, newUser(t, "operator1", users.RoleUser)))

	_, err := store.RefillBalance(ctx, "operator1", decimal.NewFromInt(1000), "initial", nil)
	require.NoError(t, err)

	_, _, err = store.ApplyPayment(ctx, newPayment(t, "operator1", "111", 50))
	require.NoError(t, err)

	_, err = store.WriteOffBalance(ctx, "operator1", decimal.NewFromInt(100), "correction")
	require.NoError(t, err)

	entries, _, err := store.ListComments(ctx, storage.CommentFilter{UserLogin: "operator1"})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	page1, cursor, err := store.ListComments(ctx, storage.CommentFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page1, 2)
	require.NotZero(t, cursor)

	page2, cursor, err := store.ListComments(ctx, storage.CommentFilter{Cursor: cursor, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page2, 1)
	assert.Zero(t, cursor)
}
