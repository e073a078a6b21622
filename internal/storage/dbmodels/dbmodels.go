package dbmodels

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	Login        string
	PasswordHash string
	Name         string
	Surname      string
	Role         string
	Region       string
	Active       bool
	PlanupID     int64
	RegisteredAt time.Time
}

type Account struct {
	Login            string
	Ceiling          decimal.Decimal
	Spent            decimal.Decimal
	AccessToPayments bool
}

type Payment struct {
	ID             int64
	TxnID          string
	UserLogin      string
	LsAbon         string
	Amount         decimal.Decimal
	Status         string
	DocumentNumber sql.NullString
	Comment        sql.NullString
	RequestedAt    time.Time
	AcceptedAt     time.Time
	UpdatedAt      time.Time
}

type Comment struct {
	ID             int64
	UserLogin      string
	EntryType      string
	Text           sql.NullString
	OldAvailable   decimal.Decimal
	OldSpent       decimal.Decimal
	DeltaAvailable decimal.Decimal
	DeltaSpent     decimal.Decimal
	NewAvailable   decimal.Decimal
	NewSpent       decimal.Decimal
	CreatedAt      time.Time
}
