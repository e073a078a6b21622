// Package processing is the single authority for balance-affecting
// operations: gateway payments, annulments and the manual accounting
// adjustments. Every mutation it performs leaves exactly one audit entry.
package processing

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/localpay/localpay/internal/domain/comments"
	"github.com/localpay/localpay/internal/domain/payments"
	"github.com/localpay/localpay/internal/gateway/osmpclient"
	"github.com/localpay/localpay/internal/storage"
)

// Gateway is the slice of the OSMP client the engine needs.
type Gateway interface {
	Pay(ctx context.Context, lsAbon string, amount decimal.Decimal) (*osmpclient.PayResult, error)
	CheckAccount(ctx context.Context, lsAbon string) (*osmpclient.CheckResult, error)
}

type Engine struct {
	log     *slog.Logger
	storage storage.Storage
	gateway Gateway
}

type Config struct {
	logger *slog.Logger
}

type Option func(c *Config)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.logger = logger
	}
}

func New(store storage.Storage, gateway Gateway, opts ...Option) *Engine {
	cfg := &Config{
		logger: slog.New(slog.NewJSONHandler(os.Stdout, nil)),
	}

	for _, opt := range opts {
		opt(cfg)
	}

	return &Engine{
		log:     cfg.logger.With(slog.String("module", "processing")),
		storage: store,
		gateway: gateway,
	}
}

// PaymentOutcome is the result of a payment attempt that reached the
// gateway. A refused payment (non-zero result code) is a valid outcome, not
// an error: Payment is nil and the gateway's code and comment are set.
type PaymentOutcome struct {
	Payment    *payments.Payment
	Entry      *comments.Entry
	ResultCode string
	Comment    string
}

func (o *PaymentOutcome) Accepted() bool {
	return o.Payment != nil
}

// ProcessPayment runs the full debit sequence: validate, pre-check funds,
// call the gateway, then apply the local debit, ledger record and audit
// entry in one transaction.
//
// All validation happens before the gateway call, so a rejected request has
// no external side effects. The local transaction re-checks the balance
// under a row lock because another payment may have landed between the
// pre-check and the debit.
func (e *Engine) ProcessPayment(ctx context.Context, login, lsAbon string, amount decimal.Decimal) (*PaymentOutcome, error) {
	if !amount.IsPositive() {
		return nil, payments.ErrAmountNotPositive
	}

	if err := payments.ValidateAccount(lsAbon); err != nil {
		return nil, err
	}

	acct, err := e.storage.GetAccount(ctx, login)
	if err != nil {
		return nil, fmt.Errorf("storage.GetAccount: %w", err)
	}

	if err := acct.CanSpend(amount); err != nil {
		return nil, err
	}

	// No lock is held here: the gateway call is slow network I/O.
	res, err := e.gateway.Pay(ctx, lsAbon, amount)
	if err != nil {
		return nil, fmt.Errorf("gateway.Pay: %w", err)
	}

	if !res.OK() {
		e.log.Warn("Gateway refused payment",
			slog.String("user", login),
			slog.String("account", lsAbon),
			slog.String("result", res.ResultCode),
			slog.String("comment", res.Comment),
		)

		return &PaymentOutcome{ResultCode: res.ResultCode, Comment: res.Comment}, nil
	}

	pmt, err := payments.NewPayment(login, lsAbon, res.GatewayTxnID, res.Amount, res.RequestedAt, res.AcceptedAt)
	if err != nil {
		// The gateway has already accepted the money but the response does
		// not make a valid local record. Same reconciliation trace as a
		// failed debit.
		e.log.Error("Gateway confirmed payment but local record is invalid",
			slog.String("txn_id", res.GatewayTxnID),
			slog.String("local_txn_id", res.LocalTxnID),
			slog.String("user", login),
			slog.String("account", lsAbon),
			slog.String("sum", res.Amount.StringFixed(2)),
			slog.Any("error", err),
		)

		return nil, fmt.Errorf("payments.NewPayment: %w", err)
	}

	if res.Comment != "" {
		pmt.SetComment(res.Comment)
	}

	stored, entry, err := e.storage.ApplyPayment(ctx, pmt)
	if err != nil {
		// The gateway has already accepted the money. This record is the
		// only trace left for manual reconciliation.
		e.log.Error("Gateway confirmed payment but local debit failed",
			slog.String("txn_id", res.GatewayTxnID),
			slog.String("local_txn_id", res.LocalTxnID),
			slog.String("user", login),
			slog.String("account", lsAbon),
			slog.String("sum", res.Amount.StringFixed(2)),
			slog.Any("error", err),
		)

		return nil, fmt.Errorf("storage.ApplyPayment: %w", err)
	}

	e.log.Info("Payment completed",
		slog.String("txn_id", res.GatewayTxnID),
		slog.String("user", login),
		slog.String("account", lsAbon),
		slog.String("sum", res.Amount.StringFixed(2)),
	)

	return &PaymentOutcome{
		Payment:    stored,
		Entry:      entry,
		ResultCode: res.ResultCode,
		Comment:    res.Comment,
	}, nil
}

// Annul reverses a completed payment and credits the amount back.
func (e *Engine) Annul(ctx context.Context, paymentID int64, note string) (*payments.Payment, error) {
	pmt, entry, err := e.storage.AnnulPayment(ctx, paymentID, note)
	if err != nil {
		return nil, fmt.Errorf("storage.AnnulPayment: %w", err)
	}

	e.log.Info("Payment annulled",
		slog.Int64("payment_id", paymentID),
		slog.String("user", pmt.UserLogin()),
		slog.String("sum", entry.DeltaAvailable().StringFixed(2)),
	)

	return pmt, nil
}

// Refill raises a user's credit ceiling and writes the synthetic zero-amount
// ledger record next to the audit entry.
func (e *Engine) Refill(ctx context.Context, login string, amount decimal.Decimal, note string) (*comments.Entry, error) {
	if !amount.IsPositive() {
		return nil, payments.ErrAmountNotPositive
	}

	record, err := payments.NewAdjustmentRecord(login, osmpclient.NewTxnID(time.Now(), "0"), note)
	if err != nil {
		return nil, fmt.Errorf("payments.NewAdjustmentRecord: %w", err)
	}

	entry, err := e.storage.RefillBalance(ctx, login, amount, note, record)
	if err != nil {
		return nil, fmt.Errorf("storage.RefillBalance: %w", err)
	}

	e.log.Info("Balance refilled",
		slog.String("user", login),
		slog.String("sum", amount.StringFixed(2)),
	)

	return entry, nil
}

// WriteOff lowers a user's credit ceiling.
func (e *Engine) WriteOff(ctx context.Context, login string, amount decimal.Decimal, note string) (*comments.Entry, error) {
	if !amount.IsPositive() {
		return nil, payments.ErrAmountNotPositive
	}

	entry, err := e.storage.WriteOffBalance(ctx, login, amount, note)
	if err != nil {
		return nil, fmt.Errorf("storage.WriteOffBalance: %w", err)
	}

	e.log.Info("Balance written off",
		slog.String("user", login),
		slog.String("sum", amount.StringFixed(2)),
	)

	return entry, nil
}

// CheckAccount relays the read-only subscriber account check.
func (e *Engine) CheckAccount(ctx context.Context, lsAbon string) (*osmpclient.CheckResult, error) {
	if err := payments.ValidateAccount(lsAbon); err != nil {
		return nil, err
	}

	res, err := e.gateway.CheckAccount(ctx, lsAbon)
	if err != nil {
		return nil, fmt.Errorf("gateway.CheckAccount: %w", err)
	}

	return res, nil
}
