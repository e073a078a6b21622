package users

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAccount(t *testing.T, ceiling, spent int64) *Account {
	t.Helper()

	acct, err := NewAccount("operator1", decimal.NewFromInt(ceiling), decimal.NewFromInt(spent), true)
	require.NoError(t, err)

	return acct
}

func TestNewAccount(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		acct := newTestAccount(t, 1000, 300)

		assert.True(t, acct.Available().Equal(decimal.NewFromInt(700)))
	})

	t.Run("spent exceeds ceiling", func(t *testing.T) {
		_, err := NewAccount("operator1", decimal.NewFromInt(100), decimal.NewFromInt(150), true)

		assert.ErrorIs(t, err, ErrBalanceInvariantBroken)
	})

	t.Run("negative spent", func(t *testing.T) {
		_, err := NewAccount("operator1", decimal.NewFromInt(100), decimal.NewFromInt(-1), true)

		assert.ErrorIs(t, err, ErrBalanceInvariantBroken)
	})

	t.Run("empty login", func(t *testing.T) {
		_, err := NewAccount("", decimal.Zero, decimal.Zero, true)

		assert.ErrorIs(t, err, ErrUserLoginEmpty)
	})
}

func TestAccountDebitForPayment(t *testing.T) {
	t.Run("debit within balance", func(t *testing.T) {
		acct := newTestAccount(t, 1000, 0)

		chg, err := acct.DebitForPayment(decimal.NewFromInt(50))
		require.NoError(t, err)

		assert.True(t, acct.Available().Equal(decimal.NewFromInt(950)))
		assert.True(t, chg.OldAvailable.Equal(decimal.NewFromInt(1000)))
		assert.True(t, chg.DeltaAvailable.Equal(decimal.NewFromInt(-50)))
		assert.True(t, chg.DeltaSpent.Equal(decimal.NewFromInt(50)))
		assert.True(t, chg.NewAvailable.Equal(decimal.NewFromInt(950)))
		assert.True(t, chg.NewSpent.Equal(decimal.NewFromInt(50)))
	})

	t.Run("insufficient funds", func(t *testing.T) {
		acct := newTestAccount(t, 20, 0)

		_, err := acct.DebitForPayment(decimal.NewFromInt(50))
		assert.ErrorIs(t, err, ErrInsufficientFunds)

		assert.True(t, acct.Available().Equal(decimal.NewFromInt(20)))
	})

	t.Run("no payment access", func(t *testing.T) {
		acct, err := NewAccount("auditor1", decimal.NewFromInt(1000), decimal.Zero, false)
		require.NoError(t, err)

		_, err = acct.DebitForPayment(decimal.NewFromInt(50))
		assert.ErrorIs(t, err, ErrPaymentAccessDenied)
	})

	t.Run("non-positive amount", func(t *testing.T) {
		acct := newTestAccount(t, 1000, 0)

		_, err := acct.DebitForPayment(decimal.Zero)
		assert.ErrorIs(t, err, ErrAmountNotPositive)

		_, err = acct.DebitForPayment(decimal.NewFromInt(-10))
		assert.ErrorIs(t, err, ErrAmountNotPositive)
	})
}

func TestAccountCreditForAnnulment(t *testing.T) {
	t.Run("annulment restores available", func(t *testing.T) {
		acct := newTestAccount(t, 1000, 50)

		chg, err := acct.CreditForAnnulment(decimal.NewFromInt(50))
		require.NoError(t, err)

		assert.True(t, acct.Available().Equal(decimal.NewFromInt(1000)))
		assert.True(t, chg.DeltaAvailable.Equal(decimal.NewFromInt(50)))
		assert.True(t, chg.DeltaSpent.Equal(decimal.NewFromInt(-50)))
	})

	t.Run("annulment exceeds spent", func(t *testing.T) {
		acct := newTestAccount(t, 1000, 30)

		_, err := acct.CreditForAnnulment(decimal.NewFromInt(50))
		assert.ErrorIs(t, err, ErrAnnulmentExceedsSpent)
	})
}

func TestAccountRefill(t *testing.T) {
	acct := newTestAccount(t, 100, 40)

	chg, err := acct.Refill(decimal.NewFromInt(200))
	require.NoError(t, err)

	assert.True(t, acct.Ceiling().Equal(decimal.NewFromInt(300)))
	assert.True(t, acct.Available().Equal(decimal.NewFromInt(260)))
	assert.True(t, chg.DeltaAvailable.Equal(decimal.NewFromInt(200)))
	assert.True(t, chg.DeltaSpent.IsZero())
}

func TestAccountWriteOff(t *testing.T) {
	t.Run("writeoff within available", func(t *testing.T) {
		acct := newTestAccount(t, 100, 40)

		chg, err := acct.WriteOff(decimal.NewFromInt(60))
		require.NoError(t, err)

		assert.True(t, acct.Ceiling().Equal(decimal.NewFromInt(40)))
		assert.True(t, acct.Available().IsZero())
		assert.True(t, chg.DeltaAvailable.Equal(decimal.NewFromInt(-60)))
	})

	t.Run("writeoff exceeds available", func(t *testing.T) {
		acct := newTestAccount(t, 100, 90)

		_, err := acct.WriteOff(decimal.NewFromInt(30))
		assert.ErrorIs(t, err, ErrWriteOffExceedsBalance)

		assert.True(t, acct.Ceiling().Equal(decimal.NewFromInt(100)))
		assert.True(t, acct.Spent().Equal(decimal.NewFromInt(90)))
	})
}

func TestChangeReconcilesArithmetically(t *testing.T) {
	acct := newTestAccount(t, 500, 100)

	chg, err := acct.DebitForPayment(decimal.NewFromInt(75))
	require.NoError(t, err)

	assert.True(t, chg.OldAvailable.Add(chg.DeltaAvailable).Equal(chg.NewAvailable))
	assert.True(t, chg.OldSpent.Add(chg.DeltaSpent).Equal(chg.NewSpent))
}
