//nolint:wrapcheck
package comments

import (
	"errors"
	"time"

	"github.com/localpay/localpay/internal/domain/users"
	"github.com/shopspring/decimal"
)

var ErrEntryTypeUnknown = errors.New("audit entry type is unknown")

// EntryType tags which balance mutation produced an audit entry.
type EntryType string

const (
	TypePayment   EntryType = "payment"
	TypeAnnulment EntryType = "annulment"
	TypeRefill    EntryType = "refill"
	TypeWriteOff  EntryType = "writeoff"
)

func ParseEntryType(typ string) (EntryType, error) {
	switch EntryType(typ) {
	case TypePayment, TypeAnnulment, TypeRefill, TypeWriteOff:
		return EntryType(typ), nil
	default:
		return "", ErrEntryTypeUnknown
	}
}

// Entry is one row of the append-only balance audit log. Entries are never
// updated or deleted; every balance mutation writes exactly one.
type Entry struct {
	id        int64
	userLogin string
	entryType EntryType
	text      string
	change    users.Change
	createdAt time.Time
}

func NewEntry(userLogin string, entryType EntryType, text string, change users.Change) (*Entry, error) {
	if err := users.ValidateLogin(userLogin); err != nil {
		return nil, err
	}

	if _, err := ParseEntryType(string(entryType)); err != nil {
		return nil, err
	}

	return &Entry{
		userLogin: userLogin,
		entryType: entryType,
		text:      text,
		change:    change,
		createdAt: time.Now(),
	}, nil
}

// RestoreEntry rebuilds an entry from persisted state.
func RestoreEntry(id int64, userLogin string, entryType EntryType, text string, change users.Change, createdAt time.Time) *Entry {
	return &Entry{
		id:        id,
		userLogin: userLogin,
		entryType: entryType,
		text:      text,
		change:    change,
		createdAt: createdAt,
	}
}

func (e *Entry) ID() int64            { return e.id }
func (e *Entry) UserLogin() string    { return e.userLogin }
func (e *Entry) Type() EntryType      { return e.entryType }
func (e *Entry) Text() string         { return e.text }
func (e *Entry) Change() users.Change { return e.change }
func (e *Entry) CreatedAt() time.Time { return e.createdAt }

func (e *Entry) OldAvailable() decimal.Decimal   { return e.change.OldAvailable }
func (e *Entry) OldSpent() decimal.Decimal       { return e.change.OldSpent }
func (e *Entry) DeltaAvailable() decimal.Decimal { return e.change.DeltaAvailable }
func (e *Entry) DeltaSpent() decimal.Decimal     { return e.change.DeltaSpent }
func (e *Entry) NewAvailable() decimal.Decimal   { return e.change.NewAvailable }
func (e *Entry) NewSpent() decimal.Decimal       { return e.change.NewSpent }
