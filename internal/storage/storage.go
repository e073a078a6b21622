package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/localpay/localpay/internal/domain/comments"
	"github.com/localpay/localpay/internal/domain/payments"
	"github.com/localpay/localpay/internal/domain/users"
)

var (
	ErrUserAlreadyExists      = errors.New("user already exists")
	ErrUserNotFound           = errors.New("user not found")
	ErrUserInactive           = errors.New("user is deactivated")
	ErrAccountNotFound        = errors.New("user account not found")
	ErrPaymentNotFound        = errors.New("payment not found")
	ErrPaymentAlreadyAnnulled = errors.New("payment already annulled")
)

type UserStorage interface {
	CreateUser(ctx context.Context, usr *users.User) error
	GetUser(ctx context.Context, login string) (*users.User, error)
	UpdateUserProfile(ctx context.Context, login string, upd users.ProfileUpdate) error

	// DeactivateUser soft-deletes: payments and audit entries survive.
	DeactivateUser(ctx context.Context, login string) error
}

// AccountStorage applies balance mutations. Every method runs its reads and
// the three writes (balance, ledger record, audit entry) in one atomic
// transaction, serialized per user so concurrent debits cannot break the
// available >= 0 invariant.
type AccountStorage interface {
	GetAccount(ctx context.Context, login string) (*users.Account, error)

	// ApplyPayment records a gateway-confirmed payment and debits the user.
	ApplyPayment(ctx context.Context, pmt *payments.Payment) (*payments.Payment, *comments.Entry, error)

	// AnnulPayment flips Completed to Annulled and credits the amount back.
	AnnulPayment(ctx context.Context, paymentID int64, note string) (*payments.Payment, *comments.Entry, error)

	// RefillBalance raises the credit ceiling and stores the synthetic
	// zero-amount ledger record alongside.
	RefillBalance(ctx context.Context, login string, amount decimal.Decimal, note string, record *payments.Payment) (*comments.Entry, error)

	// WriteOffBalance lowers the credit ceiling.
	WriteOffBalance(ctx context.Context, login string, amount decimal.Decimal, note string) (*comments.Entry, error)
}

// PaymentFilter narrows ListPayments. Zero values mean "no constraint".
type PaymentFilter struct {
	UserLogin   string
	LsAbon      string
	Statuses    []payments.Status
	From        time.Time
	To          time.Time
	NonZeroOnly bool
	Cursor      int64
	Limit       int
}

type PaymentStorage interface {
	GetPayment(ctx context.Context, id int64) (*payments.Payment, error)

	// ListPayments returns records ordered by id plus the cursor of the next
	// page (zero when exhausted).
	ListPayments(ctx context.Context, filter PaymentFilter) ([]*payments.Payment, int64, error)
}

type CommentFilter struct {
	UserLogin string
	Cursor    int64
	Limit     int
}

type CommentStorage interface {
	ListComments(ctx context.Context, filter CommentFilter) ([]*comments.Entry, int64, error)
}

type Storage interface {
	UserStorage
	AccountStorage
	PaymentStorage
	CommentStorage
	Close() error
	Ping(ctx context.Context) error
}

func NewStorage(store Storage) Storage {
	return store
}
