package models

import (
	"github.com/shopspring/decimal"
)

type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
	Surname  string `json:"surname,omitempty"`
	Role     string `json:"role,omitempty"`
	Region   string `json:"region,omitempty"`
	PlanupID int64  `json:"planup_id,omitempty"`
}

type UserResponse struct {
	Login        string `json:"login"`
	Name         string `json:"name,omitempty"`
	Surname      string `json:"surname,omitempty"`
	Role         string `json:"role"`
	Region       string `json:"region,omitempty"`
	Active       bool   `json:"active"`
	PlanupID     int64  `json:"planup_id,omitempty"`
	RegisteredAt string `json:"registered_at"`
}

// ProfileUpdateRequest carries only the fields an admin may change. Balance
// fields are deliberately absent.
type ProfileUpdateRequest struct {
	Name             *string `json:"name,omitempty"`
	Surname          *string `json:"surname,omitempty"`
	Region           *string `json:"region,omitempty"`
	AccessToPayments *bool   `json:"access_to_payments,omitempty"`
	PlanupID         *int64  `json:"planup_id,omitempty"`
}

type BalanceResponse struct {
	Ceiling          string `json:"ceiling"`
	Spent            string `json:"spent"`
	Available        string `json:"available"`
	AccessToPayments bool   `json:"access_to_payments"`
}

type PaymentRequest struct {
	LsAbon string          `json:"ls_abon"`
	Amount decimal.Decimal `json:"money"`
}

type PaymentResponse struct {
	ID             int64  `json:"id"`
	TxnID          string `json:"txn_id"`
	UserLogin      string `json:"user_login"`
	LsAbon         string `json:"ls_abon"`
	Amount         string `json:"money"`
	Status         string `json:"status"`
	DocumentNumber string `json:"document_number,omitempty"`
	Comment        string `json:"comment,omitempty"`
	RequestedAt    string `json:"requested_at"`
	AcceptedAt     string `json:"accepted_at"`
	UpdatedAt      string `json:"updated_at"`
}

// PaymentResultResponse reports the gateway outcome. Payment is set only
// when the gateway accepted (result "0") and the local debit succeeded.
type PaymentResultResponse struct {
	Result  string           `json:"result"`
	Comment string           `json:"comment,omitempty"`
	Payment *PaymentResponse `json:"payment,omitempty"`
}

type PaymentListResponse struct {
	Payments   []PaymentResponse `json:"payments"`
	NextCursor int64             `json:"next_cursor,omitempty"`
}

type AccountCheckRequest struct {
	LsAbon string `json:"ls_abon"`
}

type AccountCheckResponse struct {
	Result  string `json:"result"`
	Comment string `json:"comment,omitempty"`
}

type AnnulRequest struct {
	Comment string `json:"comment,omitempty"`
}

type AdjustmentRequest struct {
	Amount  decimal.Decimal `json:"money"`
	Comment string          `json:"comment,omitempty"`
}

type CommentResponse struct {
	ID             int64  `json:"id"`
	UserLogin      string `json:"user_login"`
	EntryType      string `json:"entry_type"`
	Text           string `json:"text,omitempty"`
	OldAvailable   string `json:"old_available"`
	OldSpent       string `json:"old_spent"`
	DeltaAvailable string `json:"delta_available"`
	DeltaSpent     string `json:"delta_spent"`
	NewAvailable   string `json:"new_available"`
	NewSpent       string `json:"new_spent"`
	CreatedAt      string `json:"created_at"`
}

type CommentListResponse struct {
	Comments   []CommentResponse `json:"comments"`
	NextCursor int64             `json:"next_cursor,omitempty"`
}

type ReconRequest struct {
	Login     string `json:"login"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

type ReconBatchRequest struct {
	Logins    []string `json:"logins"`
	StartDate string   `json:"start_date,omitempty"`
	EndDate   string   `json:"end_date,omitempty"`
}

type ReconRowResponse struct {
	LsAbon         string `json:"ls_abon"`
	LocalAmount    string `json:"local_amount"`
	PartnerAmount  string `json:"partner_amount"`
	Classification string `json:"classification"`
}

type ReconReportResponse struct {
	Rows         []ReconRowResponse `json:"rows"`
	TotalLocal   string             `json:"total_local"`
	TotalPartner string             `json:"total_partner"`
}

type ReconBatchItemResponse struct {
	Login  string               `json:"login"`
	Report *ReconReportResponse `json:"report,omitempty"`
	Error  string               `json:"error,omitempty"`
}
