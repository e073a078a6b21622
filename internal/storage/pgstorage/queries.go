package pgstorage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/localpay/localpay/internal/domain/comments"
	"github.com/localpay/localpay/internal/domain/payments"
	"github.com/localpay/localpay/internal/domain/users"
	"github.com/localpay/localpay/internal/storage"
	"github.com/localpay/localpay/internal/storage/dbmodels"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// getAccount loads the balance row of an active user. With forUpdate the row
// is locked for the duration of the surrounding transaction, which is what
// serializes concurrent debits against the same user.
func getAccount(ctx context.Context, q querier, login string, forUpdate bool) (*users.Account, error) {
	query := `SELECT a.login, a.ceiling, a.spent, a.access_to_payments, u.active` +
		` FROM user_accounts a JOIN users u ON u.login = a.login WHERE a.login = $1`

	if forUpdate {
		query += ` FOR UPDATE OF a`
	}

	dbAcct := new(dbmodels.Account)

	var active bool

	row := q.QueryRowContext(ctx, query, login)

	if err := row.Scan(&dbAcct.Login, &dbAcct.Ceiling, &dbAcct.Spent, &dbAcct.AccessToPayments, &active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrAccountNotFound
		}

		return nil, fmt.Errorf("QueryRowContext: %w", err)
	}

	if !active {
		return nil, storage.ErrUserInactive
	}

	acct, err := users.NewAccount(dbAcct.Login, dbAcct.Ceiling, dbAcct.Spent, dbAcct.AccessToPayments)
	if err != nil {
		return nil, fmt.Errorf("users.NewAccount: %w", err)
	}

	return acct, nil
}

func updateAccount(ctx context.Context, q querier, acct *users.Account) error {
	if _, err := q.ExecContext(ctx,
		`UPDATE user_accounts SET ceiling = $1, spent = $2 WHERE login = $3`,
		acct.Ceiling(), acct.Spent(), acct.Login(),
	); err != nil {
		return fmt.Errorf("ExecContext: %w", err)
	}

	return nil
}

func insertPayment(ctx context.Context, q querier, pmt *payments.Payment) (int64, error) {
	query := `INSERT INTO payments` +
		` (txn_id, user_login, ls_abon, amount, status, document_number, comment, requested_at, accepted_at, updated_at)` +
		` VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`

	var id int64

	row := q.QueryRowContext(ctx, query,
		pmt.TxnID(), pmt.UserLogin(), pmt.LsAbon(), pmt.Amount(), pmt.Status().String(),
		toNullString(pmt.DocumentNumber()), toNullString(pmt.Comment()),
		pmt.RequestedAt(), pmt.AcceptedAt(), pmt.UpdatedAt(),
	)

	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("QueryRowContext: %w", err)
	}

	return id, nil
}

func insertComment(ctx context.Context, q querier, entry *comments.Entry) error {
	query := `INSERT INTO comments` +
		` (user_login, entry_type, text, old_available, old_spent,` +
		` delta_available, delta_spent, new_available, new_spent, created_at)` +
		` VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	if _, err := q.ExecContext(ctx, query,
		entry.UserLogin(), string(entry.Type()), toNullString(entry.Text()),
		entry.OldAvailable(), entry.OldSpent(),
		entry.DeltaAvailable(), entry.DeltaSpent(),
		entry.NewAvailable(), entry.NewSpent(),
		entry.CreatedAt(),
	); err != nil {
		return fmt.Errorf("ExecContext: %w", err)
	}

	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner, dbPmt *dbmodels.Payment) error {
	return row.Scan(
		&dbPmt.ID, &dbPmt.TxnID, &dbPmt.UserLogin, &dbPmt.LsAbon,
		&dbPmt.Amount, &dbPmt.Status, &dbPmt.DocumentNumber, &dbPmt.Comment,
		&dbPmt.RequestedAt, &dbPmt.AcceptedAt, &dbPmt.UpdatedAt,
	)
}

func restorePayment(dbPmt *dbmodels.Payment) *payments.Payment {
	return payments.RestorePayment(
		dbPmt.ID, dbPmt.TxnID, dbPmt.UserLogin, dbPmt.LsAbon,
		dbPmt.Amount, payments.Status(dbPmt.Status),
		dbPmt.DocumentNumber.String, dbPmt.Comment.String,
		dbPmt.RequestedAt, dbPmt.AcceptedAt, dbPmt.UpdatedAt,
	)
}

func restoreUser(dbUser *dbmodels.User) (*users.User, error) {
	usr, err := users.RestoreUser(dbUser.Login, dbUser.PasswordHash, users.Role(dbUser.Role),
		users.WithName(dbUser.Name, dbUser.Surname),
		users.WithRegion(dbUser.Region),
		users.WithPlanupID(dbUser.PlanupID),
		users.WithActive(dbUser.Active),
		users.WithRegisteredAt(dbUser.RegisteredAt),
	)
	if err != nil {
		return nil, fmt.Errorf("users.RestoreUser: %w", err)
	}

	return usr, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}

	return sql.NullString{String: *s, Valid: true}
}

func nullInt64(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}

	return sql.NullInt64{Int64: *i, Valid: true}
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}

	return sql.NullString{String: s, Valid: true}
}
