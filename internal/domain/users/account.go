package users

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrAmountNotPositive      = errors.New("amount must be positive")
	ErrPaymentAccessDenied    = errors.New("user has no access to payments")
	ErrInsufficientFunds      = errors.New("insufficient available balance")
	ErrWriteOffExceedsBalance = errors.New("write-off exceeds available balance")
	ErrAnnulmentExceedsSpent  = errors.New("annulment exceeds spent amount")
	ErrBalanceInvariantBroken = errors.New("spent exceeds credit ceiling")
)

// Account holds the balance state of a single user. The ceiling is the
// cumulative credit granted by the accounting side, spent is the sum of
// completed payments minus annulled ones. Available headroom is always
// ceiling minus spent and never negative.
type Account struct {
	login            string
	ceiling          decimal.Decimal
	spent            decimal.Decimal
	accessToPayments bool
}

func NewAccount(login string, ceiling, spent decimal.Decimal, accessToPayments bool) (*Account, error) {
	if err := ValidateLogin(login); err != nil {
		return nil, err
	}

	if spent.IsNegative() || spent.GreaterThan(ceiling) {
		return nil, ErrBalanceInvariantBroken
	}

	return &Account{
		login:            login,
		ceiling:          ceiling,
		spent:            spent,
		accessToPayments: accessToPayments,
	}, nil
}

func (a *Account) Login() string            { return a.login }
func (a *Account) Ceiling() decimal.Decimal { return a.ceiling }
func (a *Account) Spent() decimal.Decimal   { return a.spent }
func (a *Account) AccessToPayments() bool   { return a.accessToPayments }

func (a *Account) Available() decimal.Decimal {
	return a.ceiling.Sub(a.spent)
}

// Change is the before/after snapshot produced by every balance mutation.
// It carries exactly the numbers the audit comment records.
type Change struct {
	OldAvailable   decimal.Decimal
	OldSpent       decimal.Decimal
	DeltaAvailable decimal.Decimal
	DeltaSpent     decimal.Decimal
	NewAvailable   decimal.Decimal
	NewSpent       decimal.Decimal
}

// CanSpend reports whether a payment of the given amount is allowed.
func (a *Account) CanSpend(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrAmountNotPositive
	}

	if !a.accessToPayments {
		return ErrPaymentAccessDenied
	}

	if a.Available().LessThan(amount) {
		return ErrInsufficientFunds
	}

	return nil
}

// DebitForPayment applies a completed payment: spent grows by amount.
func (a *Account) DebitForPayment(amount decimal.Decimal) (Change, error) {
	if err := a.CanSpend(amount); err != nil {
		return Change{}, err
	}

	return a.apply(amount.Neg(), amount), nil
}

// CreditForAnnulment reverses a prior debit: spent shrinks by amount. Since
// every completed payment added its amount to spent, the reversal cannot
// raise available above the ceiling.
func (a *Account) CreditForAnnulment(amount decimal.Decimal) (Change, error) {
	if !amount.IsPositive() {
		return Change{}, ErrAmountNotPositive
	}

	if a.spent.LessThan(amount) {
		return Change{}, ErrAnnulmentExceedsSpent
	}

	return a.apply(amount, amount.Neg()), nil
}

// Refill raises the credit ceiling by amount.
func (a *Account) Refill(amount decimal.Decimal) (Change, error) {
	if !amount.IsPositive() {
		return Change{}, ErrAmountNotPositive
	}

	chg := a.snapshot()
	a.ceiling = a.ceiling.Add(amount)
	chg.DeltaAvailable = amount

	return a.finish(chg), nil
}

// WriteOff lowers the credit ceiling by amount. The amount must fit into the
// available headroom so that spent never exceeds the ceiling.
func (a *Account) WriteOff(amount decimal.Decimal) (Change, error) {
	if !amount.IsPositive() {
		return Change{}, ErrAmountNotPositive
	}

	if a.Available().LessThan(amount) {
		return Change{}, ErrWriteOffExceedsBalance
	}

	chg := a.snapshot()
	a.ceiling = a.ceiling.Sub(amount)
	chg.DeltaAvailable = amount.Neg()

	return a.finish(chg), nil
}

func (a *Account) apply(deltaAvailable, deltaSpent decimal.Decimal) Change {
	chg := a.snapshot()
	a.spent = a.spent.Add(deltaSpent)
	chg.DeltaAvailable = deltaAvailable
	chg.DeltaSpent = deltaSpent

	return a.finish(chg)
}

func (a *Account) snapshot() Change {
	return Change{
		OldAvailable: a.Available(),
		OldSpent:     a.spent,
	}
}

func (a *Account) finish(chg Change) Change {
	chg.NewAvailable = a.Available()
	chg.NewSpent = a.spent

	return chg
}
