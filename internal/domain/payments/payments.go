//nolint:wrapcheck
package payments

import (
	"errors"
	"time"
	"unicode"

	"github.com/localpay/localpay/internal/domain/users"
	"github.com/shopspring/decimal"
)

var (
	ErrAccountEmpty         = errors.New("subscriber account is empty")
	ErrAccountFormatInvalid = errors.New("subscriber account format is invalid")
	ErrTxnIDEmpty           = errors.New("transaction id is empty")
	ErrAmountNotPositive    = errors.New("payment amount must be positive")
	ErrAlreadyAnnulled      = errors.New("payment is already annulled")
)

type Status string

const (
	// StatusCompleted means the gateway confirmed the payment. A record is
	// only ever created in this state.
	StatusCompleted Status = "COMPLETED"

	// StatusAnnulled is terminal: the payment was reversed and the amount
	// credited back to the user.
	StatusAnnulled Status = "ANNULLED"
)

func (s Status) String() string {
	return string(s)
}

// Payment is a single confirmed gateway transaction. The amount is immutable
// after creation; the only permitted state transition is Completed→Annulled.
type Payment struct {
	id             int64
	txnID          string
	userLogin      string
	lsAbon         string
	amount         decimal.Decimal
	status         Status
	documentNumber string
	comment        string
	requestedAt    time.Time
	acceptedAt     time.Time
	updatedAt      time.Time
}

// NewPayment creates a completed payment record for a confirmed gateway call.
func NewPayment(userLogin, lsAbon, txnID string, amount decimal.Decimal, requestedAt, acceptedAt time.Time) (*Payment, error) {
	if err := users.ValidateLogin(userLogin); err != nil {
		return nil, err
	}

	if err := ValidateAccount(lsAbon); err != nil {
		return nil, err
	}

	if txnID == "" {
		return nil, ErrTxnIDEmpty
	}

	if !amount.IsPositive() {
		return nil, ErrAmountNotPositive
	}

	return &Payment{
		txnID:       txnID,
		userLogin:   userLogin,
		lsAbon:      lsAbon,
		amount:      amount,
		status:      StatusCompleted,
		requestedAt: requestedAt,
		acceptedAt:  acceptedAt,
		updatedAt:   acceptedAt,
	}, nil
}

// NewAdjustmentRecord creates the synthetic zero-amount record written
// alongside a manual refill so the payment history stays joinable with the
// audit trail.
func NewAdjustmentRecord(userLogin, txnID, comment string) (*Payment, error) {
	if err := users.ValidateLogin(userLogin); err != nil {
		return nil, err
	}

	if txnID == "" {
		return nil, ErrTxnIDEmpty
	}

	now := time.Now()

	return &Payment{
		txnID:       txnID,
		userLogin:   userLogin,
		lsAbon:      "0",
		amount:      decimal.Zero,
		status:      StatusCompleted,
		comment:     comment,
		requestedAt: now,
		acceptedAt:  now,
		updatedAt:   now,
	}, nil
}

// RestorePayment rebuilds a payment from persisted state.
func RestorePayment(
	id int64,
	txnID, userLogin, lsAbon string,
	amount decimal.Decimal,
	status Status,
	documentNumber, comment string,
	requestedAt, acceptedAt, updatedAt time.Time,
) *Payment {
	return &Payment{
		id:             id,
		txnID:          txnID,
		userLogin:      userLogin,
		lsAbon:         lsAbon,
		amount:         amount,
		status:         status,
		documentNumber: documentNumber,
		comment:        comment,
		requestedAt:    requestedAt,
		acceptedAt:     acceptedAt,
		updatedAt:      updatedAt,
	}
}

func (p *Payment) ID() int64              { return p.id }
func (p *Payment) TxnID() string          { return p.txnID }
func (p *Payment) UserLogin() string      { return p.userLogin }
func (p *Payment) LsAbon() string         { return p.lsAbon }
func (p *Payment) Amount() decimal.Decimal { return p.amount }
func (p *Payment) Status() Status         { return p.status }
func (p *Payment) DocumentNumber() string { return p.documentNumber }
func (p *Payment) Comment() string        { return p.comment }
func (p *Payment) RequestedAt() time.Time { return p.requestedAt }
func (p *Payment) AcceptedAt() time.Time  { return p.acceptedAt }
func (p *Payment) UpdatedAt() time.Time   { return p.updatedAt }

func (p *Payment) Annulled() bool {
	return p.status == StatusAnnulled
}

// Annul flips the record into its terminal state. Annulling twice is an
// error so a reversal can never be credited twice.
func (p *Payment) Annul() error {
	if p.status == StatusAnnulled {
		return ErrAlreadyAnnulled
	}

	p.status = StatusAnnulled
	p.updatedAt = time.Now()

	return nil
}

func (p *Payment) SetDocumentNumber(number string) {
	p.documentNumber = number
	p.updatedAt = time.Now()
}

func (p *Payment) SetComment(comment string) {
	p.comment = comment
	p.updatedAt = time.Now()
}

// ValidateAccount checks the subscriber account is a non-empty digit string.
func ValidateAccount(lsAbon string) error {
	if lsAbon == "" {
		return ErrAccountEmpty
	}

	for _, r := range lsAbon {
		if !unicode.IsDigit(r) {
			return ErrAccountFormatInvalid
		}
	}

	return nil
}
