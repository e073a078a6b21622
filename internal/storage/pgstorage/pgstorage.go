package pgstorage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/localpay/localpay/internal/domain/comments"
	"github.com/localpay/localpay/internal/domain/payments"
	"github.com/localpay/localpay/internal/domain/users"
	"github.com/localpay/localpay/internal/storage"
	"github.com/localpay/localpay/internal/storage/dbmodels"

	// Postgres driver.
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

var _ storage.Storage = (*Storage)(nil)

type Storage struct {
	db *sql.DB
}

type Config struct {
	maxOpenConns    int
	maxIdleConns    int
	connMaxIdleTime time.Duration
	connMaxLifetime time.Duration
}

type Option func(s *Config)

func WithMaxOpenConns(conns int) Option {
	return func(c *Config) {
		c.maxOpenConns = conns
	}
}

func WithMaxIdleConns(conns int) Option {
	return func(c *Config) {
		c.maxIdleConns = conns
	}
}

func WithConnMaxIdleTime(idleTime time.Duration) Option {
	return func(c *Config) {
		c.connMaxIdleTime = idleTime
	}
}

func WithConnMaxLifetime(lifetime time.Duration) Option {
	return func(c *Config) {
		c.connMaxLifetime = lifetime
	}
}

func NewStorage(connStr string, opts ...Option) (*Storage, error) {
	cfg := &Config{
		maxOpenConns:    10,
		maxIdleConns:    5,
		connMaxIdleTime: 180 * time.Second,
		connMaxLifetime: 3600 * time.Second,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}

	db.SetMaxOpenConns(cfg.maxOpenConns)
	db.SetMaxIdleConns(cfg.maxIdleConns)
	db.SetConnMaxIdleTime(cfg.connMaxIdleTime)
	db.SetConnMaxLifetime(cfg.connMaxLifetime)

	return &Storage{
		db: db,
	}, nil
}

// NewStorageWithDB wraps an existing database handle. Used in tests.
func NewStorageWithDB(db *sql.DB) *Storage {
	return &Storage{db: db}
}

//go:embed migrations/*.sql
var embedMigrations embed.FS

func (s *Storage) Bootstrap(ctx context.Context) error {
	migrations, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return fmt.Errorf("fs.Sub: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, s.db, migrations)
	if err != nil {
		return fmt.Errorf("goose.NewProvider: %w", err)
	}

	_, err = provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("provider.Up: %w", err)
	}

	return nil
}

func (s *Storage) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("db.Close: %w", err)
	}

	return nil
}

// isRetryableError checks if error is retryable.
func isRetryableError(err error) bool {
	// Connection refused error
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgerrcode.IsConnectionException(pgErr.Code) {
		return true
	}

	return false
}

// WithRetry retries operations in case of retryable errors.
func WithRetry(operation func() error) error {
	retryCount := 3

	var retryWaitTime time.Duration

	retryWaitInterval := 2

	var err error

	for i := 0; i < retryCount; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if isRetryableError(err) {
			retryWaitTime = time.Duration((i*retryWaitInterval + 1)) * time.Second // 1s, 3s, 5s, etc.

			time.Sleep(retryWaitTime)
		} else {
			return fmt.Errorf("%w", err)
		}
	}

	return fmt.Errorf("retry attempts exceeded: %w", err)
}

func (s *Storage) Ping(ctx context.Context) error {
	err := WithRetry(func() error {
		if err := s.db.PingContext(ctx); err != nil {
			return fmt.Errorf("db.PingContext: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	return nil
}

func (s *Storage) CreateUser(ctx context.Context, usr *users.User) error {
	err := WithRetry(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("db.BeginTx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck

		createUsrQuery := `INSERT INTO users` +
			` (login, password_hash, name, surname, role, region, active, planup_id, registered_at)` +
			` VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

		if _, err := tx.ExecContext(ctx, createUsrQuery,
			usr.Login(), usr.PasswordHash(), usr.Name(), usr.Surname(),
			string(usr.Role()), usr.Region(), usr.Active(), usr.PlanupID(), usr.RegisteredAt(),
		); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgerrcode.IsIntegrityConstraintViolation(pgErr.Code) {
				return storage.ErrUserAlreadyExists
			}

			return fmt.Errorf("tx.ExecContext: %w", err)
		}

		// Supervisors audit, they do not pay.
		access := usr.Role() != users.RoleSupervisor

		createAcctQuery := `INSERT INTO user_accounts (login, access_to_payments) VALUES ($1, $2)`

		if _, err := tx.ExecContext(ctx, createAcctQuery, usr.Login(), access); err != nil {
			return fmt.Errorf("tx.ExecContext: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("tx.Commit: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	return nil
}

func (s *Storage) GetUser(ctx context.Context, login string) (*users.User, error) {
	dbUser := new(dbmodels.User)

	err := WithRetry(func() error {
		query := `SELECT login, password_hash, name, surname, role, region, active, planup_id, registered_at` +
			` FROM users WHERE login = $1`

		row := s.db.QueryRowContext(ctx, query, login)

		if err := row.Scan(
			&dbUser.Login, &dbUser.PasswordHash, &dbUser.Name, &dbUser.Surname,
			&dbUser.Role, &dbUser.Region, &dbUser.Active, &dbUser.PlanupID, &dbUser.RegisteredAt,
		); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return storage.ErrUserNotFound
			}

			return fmt.Errorf("db.QueryRowContext: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return restoreUser(dbUser)
}

func (s *Storage) UpdateUserProfile(ctx context.Context, login string, upd users.ProfileUpdate) error {
	err := WithRetry(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("db.BeginTx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck

		query := `UPDATE users SET` +
			` name = COALESCE($1, name),` +
			` surname = COALESCE($2, surname),` +
			` region = COALESCE($3, region),` +
			` planup_id = COALESCE($4, planup_id)` +
			` WHERE login = $5`

		res, err := tx.ExecContext(ctx, query,
			nullString(upd.Name), nullString(upd.Surname), nullString(upd.Region),
			nullInt64(upd.PlanupID), login,
		)
		if err != nil {
			return fmt.Errorf("tx.ExecContext: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("res.RowsAffected: %w", err)
		}

		if affected == 0 {
			return storage.ErrUserNotFound
		}

		if upd.AccessToPayments != nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE user_accounts SET access_to_payments = $1 WHERE login = $2`,
				*upd.AccessToPayments, login,
			); err != nil {
				return fmt.Errorf("tx.ExecContext: %w", err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("tx.Commit: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	return nil
}

func (s *Storage) DeactivateUser(ctx context.Context, login string) error {
	err := WithRetry(func() error {
		res, err := s.db.ExecContext(ctx, `UPDATE users SET active = FALSE WHERE login = $1`, login)
		if err != nil {
			return fmt.Errorf("db.ExecContext: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("res.RowsAffected: %w", err)
		}

		if affected == 0 {
			return storage.ErrUserNotFound
		}

		return nil
	})
	if err != nil {
		return err
	}

	return nil
}

func (s *Storage) GetAccount(ctx context.Context, login string) (*users.Account, error) {
	var acct *users.Account

	err := WithRetry(func() error {
		var err error

		acct, err = getAccount(ctx, s.db, login, false)

		return err
	})
	if err != nil {
		return nil, err
	}

	return acct, nil
}

func (s *Storage) ApplyPayment(ctx context.Context, pmt *payments.Payment) (*payments.Payment, *comments.Entry, error) {
	var (
		stored *payments.Payment
		entry  *comments.Entry
	)

	err := WithRetry(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("db.BeginTx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck

		acct, err := getAccount(ctx, tx, pmt.UserLogin(), true)
		if err != nil {
			return err
		}

		chg, err := acct.DebitForPayment(pmt.Amount())
		if err != nil {
			return err
		}

		entry, err = comments.NewEntry(pmt.UserLogin(), comments.TypePayment, pmt.Comment(), chg)
		if err != nil {
			return fmt.Errorf("comments.NewEntry: %w", err)
		}

		id, err := insertPayment(ctx, tx, pmt)
		if err != nil {
			return err
		}

		if err := updateAccount(ctx, tx, acct); err != nil {
			return err
		}

		if err := insertComment(ctx, tx, entry); err != nil {
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("tx.Commit: %w", err)
		}

		stored = payments.RestorePayment(
			id, pmt.TxnID(), pmt.UserLogin(), pmt.LsAbon(), pmt.Amount(), pmt.Status(),
			pmt.DocumentNumber(), pmt.Comment(), pmt.RequestedAt(), pmt.AcceptedAt(), pmt.UpdatedAt(),
		)

		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return stored, entry, nil
}

func (s *Storage) AnnulPayment(ctx context.Context, paymentID int64, note string) (*payments.Payment, *comments.Entry, error) {
	var (
		annulled *payments.Payment
		entry    *comments.Entry
	)

	err := WithRetry(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("db.BeginTx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck

		dbPmt := new(dbmodels.Payment)

		query := `SELECT id, txn_id, user_login, ls_abon, amount, status,` +
			` document_number, comment, requested_at, accepted_at, updated_at` +
			` FROM payments WHERE id = $1 FOR UPDATE`

		row := tx.QueryRowContext(ctx, query, paymentID)

		if err := scanPayment(row, dbPmt); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return storage.ErrPaymentNotFound
			}

			return fmt.Errorf("tx.QueryRowContext: %w", err)
		}

		pmt := restorePayment(dbPmt)

		if pmt.Annulled() {
			return storage.ErrPaymentAlreadyAnnulled
		}

		acct, err := getAccount(ctx, tx, pmt.UserLogin(), true)
		if err != nil {
			return err
		}

		chg, err := acct.CreditForAnnulment(pmt.Amount())
		if err != nil {
			return err
		}

		if err := pmt.Annul(); err != nil {
			return err
		}

		if note != "" {
			pmt.SetComment(note)
		}

		entry, err = comments.NewEntry(pmt.UserLogin(), comments.TypeAnnulment, note, chg)
		if err != nil {
			return fmt.Errorf("comments.NewEntry: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE payments SET status = $1, comment = $2, updated_at = $3 WHERE id = $4`,
			pmt.Status().String(), toNullString(pmt.Comment()), pmt.UpdatedAt(), pmt.ID(),
		); err != nil {
			return fmt.Errorf("tx.ExecContext: %w", err)
		}

		if err := updateAccount(ctx, tx, acct); err != nil {
			return err
		}

		if err := insertComment(ctx, tx, entry); err != nil {
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("tx.Commit: %w", err)
		}

		annulled = pmt

		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return annulled, entry, nil
}

func (s *Storage) RefillBalance(ctx context.Context, login string, amount decimal.Decimal, note string, record *payments.Payment) (*comments.Entry, error) {
	return s.adjustBalance(ctx, login, note, record, func(acct *users.Account) (users.Change, error) {
		return acct.Refill(amount)
	}, comments.TypeRefill)
}

func (s *Storage) WriteOffBalance(ctx context.Context, login string, amount decimal.Decimal, note string) (*comments.Entry, error) {
	return s.adjustBalance(ctx, login, note, nil, func(acct *users.Account) (users.Change, error) {
		return acct.WriteOff(amount)
	}, comments.TypeWriteOff)
}

func (s *Storage) adjustBalance(
	ctx context.Context,
	login, note string,
	record *payments.Payment,
	mutate func(acct *users.Account) (users.Change, error),
	entryType comments.EntryType,
) (*comments.Entry, error) {
	var entry *comments.Entry

	err := WithRetry(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("db.BeginTx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck

		acct, err := getAccount(ctx, tx, login, true)
		if err != nil {
			return err
		}

		chg, err := mutate(acct)
		if err != nil {
			return err
		}

		entry, err = comments.NewEntry(login, entryType, note, chg)
		if err != nil {
			return fmt.Errorf("comments.NewEntry: %w", err)
		}

		if record != nil {
			if _, err := insertPayment(ctx, tx, record); err != nil {
				return err
			}
		}

		if err := updateAccount(ctx, tx, acct); err != nil {
			return err
		}

		if err := insertComment(ctx, tx, entry); err != nil {
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("tx.Commit: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return entry, nil
}

func (s *Storage) GetPayment(ctx context.Context, id int64) (*payments.Payment, error) {
	dbPmt := new(dbmodels.Payment)

	err := WithRetry(func() error {
		query := `SELECT id, txn_id, user_login, ls_abon, amount, status,` +
			` document_number, comment, requested_at, accepted_at, updated_at` +
			` FROM payments WHERE id = $1`

		row := s.db.QueryRowContext(ctx, query, id)

		if err := scanPayment(row, dbPmt); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return storage.ErrPaymentNotFound
			}

			return fmt.Errorf("db.QueryRowContext: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return restorePayment(dbPmt), nil
}

func (s *Storage) ListPayments(ctx context.Context, filter storage.PaymentFilter) ([]*payments.Payment, int64, error) {
	query := `SELECT id, txn_id, user_login, ls_abon, amount, status,` +
		` document_number, comment, requested_at, accepted_at, updated_at FROM payments`

	where := make([]string, 0)
	args := make([]any, 0)

	addArg := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if filter.UserLogin != "" {
		addArg("user_login = $%d", filter.UserLogin)
	}

	if filter.LsAbon != "" {
		addArg("ls_abon = $%d", filter.LsAbon)
	}

	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			statuses = append(statuses, status.String())
		}

		addArg("status = ANY($%d)", pq.Array(statuses))
	}

	if !filter.From.IsZero() {
		addArg("requested_at >= $%d", filter.From)
	}

	if !filter.To.IsZero() {
		addArg("requested_at <= $%d", filter.To)
	}

	if filter.NonZeroOnly {
		where = append(where, "amount <> 0")
	}

	if filter.Cursor != 0 {
		addArg("id > $%d", filter.Cursor)
	}

	for i, clause := range where {
		if i == 0 {
			query += " WHERE " + clause

			continue
		}

		query += " AND " + clause
	}

	query += " ORDER BY id"

	limit := filter.Limit
	if limit > 0 {
		// One extra row decides whether a next page exists.
		query += " LIMIT " + strconv.Itoa(limit+1)
	}

	dbPayments := make([]*dbmodels.Payment, 0)

	err := WithRetry(func() error {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("db.QueryContext: %w", err)
		}
		defer rows.Close()

		dbPayments = dbPayments[:0]

		for rows.Next() {
			dbPmt := new(dbmodels.Payment)

			if err := scanPayment(rows, dbPmt); err != nil {
				return fmt.Errorf("rows.Scan: %w", err)
			}

			dbPayments = append(dbPayments, dbPmt)
		}

		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}

	var nextCursor int64

	if limit > 0 && len(dbPayments) > limit {
		// The cursor filter is exclusive, so the cursor is the last returned row.
		nextCursor = dbPayments[limit-1].ID
		dbPayments = dbPayments[:limit]
	}

	result := make([]*payments.Payment, 0, len(dbPayments))
	for _, dbPmt := range dbPayments {
		result = append(result, restorePayment(dbPmt))
	}

	return result, nextCursor, nil
}

func (s *Storage) ListComments(ctx context.Context, filter storage.CommentFilter) ([]*comments.Entry, int64, error) {
	query := `SELECT id, user_login, entry_type, text, old_available, old_spent,` +
		` delta_available, delta_spent, new_available, new_spent, created_at FROM comments`

	args := make([]any, 0)

	if filter.UserLogin != "" {
		args = append(args, filter.UserLogin)
		query += fmt.Sprintf(" WHERE user_login = $%d", len(args))
	}

	if filter.Cursor != 0 {
		args = append(args, filter.Cursor)

		if len(args) == 1 {
			query += fmt.Sprintf(" WHERE id > $%d", len(args))
		} else {
			query += fmt.Sprintf(" AND id > $%d", len(args))
		}
	}

	query += " ORDER BY id"

	limit := filter.Limit
	if limit > 0 {
		query += " LIMIT " + strconv.Itoa(limit+1)
	}

	dbComments := make([]*dbmodels.Comment, 0)

	err := WithRetry(func() error {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("db.QueryContext: %w", err)
		}
		defer rows.Close()

		dbComments = dbComments[:0]

		for rows.Next() {
			dbCmt := new(dbmodels.Comment)

			if err := rows.Scan(
				&dbCmt.ID, &dbCmt.UserLogin, &dbCmt.EntryType, &dbCmt.Text,
				&dbCmt.OldAvailable, &dbCmt.OldSpent, &dbCmt.DeltaAvailable, &dbCmt.DeltaSpent,
				&dbCmt.NewAvailable, &dbCmt.NewSpent, &dbCmt.CreatedAt,
			); err != nil {
				return fmt.Errorf("rows.Scan: %w", err)
			}

			dbComments = append(dbComments, dbCmt)
		}

		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}

	var nextCursor int64

	if limit > 0 && len(dbComments) > limit {
		nextCursor = dbComments[limit-1].ID
		dbComments = dbComments[:limit]
	}

	result := make([]*comments.Entry, 0, len(dbComments))

	for _, dbCmt := range dbComments {
		result = append(result, comments.RestoreEntry(
			dbCmt.ID, dbCmt.UserLogin, comments.EntryType(dbCmt.EntryType), dbCmt.Text.String,
			users.Change{
				OldAvailable:   dbCmt.OldAvailable,
				OldSpent:       dbCmt.OldSpent,
				DeltaAvailable: dbCmt.DeltaAvailable,
				DeltaSpent:     dbCmt.DeltaSpent,
				NewAvailable:   dbCmt.NewAvailable,
				NewSpent:       dbCmt.NewSpent,
			},
			dbCmt.CreatedAt,
		))
	}

	return result, nextCursor, nil
}
