package osmpclient

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// responseModel mirrors the OSMP XML body. The root element name varies
// between gateway versions, so it is left unmatched.
type responseModel struct {
	OsmpTxnID string `xml:"osmp_txn_id"`
	Comment   string `xml:"comment"`
	Sum       string `xml:"sum"`
	Result    string `xml:"result"`
}

// PayResult is the parsed outcome of a pay command.
type PayResult struct {
	// GatewayTxnID is the id the gateway assigned (osmp_txn_id).
	GatewayTxnID string

	// LocalTxnID is the id this client generated for the request.
	LocalTxnID string

	Amount      decimal.Decimal
	ResultCode  string
	Comment     string
	RequestedAt time.Time
	AcceptedAt  time.Time
}

// OK reports whether the gateway confirmed the payment.
func (r *PayResult) OK() bool {
	return r.ResultCode == resultCodeOK
}

// CheckResult is the parsed outcome of a check command.
type CheckResult struct {
	ResultCode string
	Comment    string
}

func (r *CheckResult) OK() bool {
	return r.ResultCode == resultCodeOK
}

func parsePayResult(body []byte) (*PayResult, error) {
	model, err := parseResponse(body)
	if err != nil {
		return nil, err
	}

	// Refusal responses may omit the sum field.
	amount := decimal.Zero

	if model.Sum != "" {
		amount, err = decimal.NewFromString(model.Sum)
		if err != nil {
			return nil, fmt.Errorf("parse sum %q: %w", model.Sum, err)
		}
	}

	return &PayResult{
		GatewayTxnID: model.OsmpTxnID,
		Amount:       amount,
		ResultCode:   model.Result,
		Comment:      model.Comment,
	}, nil
}

func parseCheckResult(body []byte) (*CheckResult, error) {
	model, err := parseResponse(body)
	if err != nil {
		return nil, err
	}

	return &CheckResult{
		ResultCode: model.Result,
		Comment:    model.Comment,
	}, nil
}

func parseResponse(body []byte) (*responseModel, error) {
	model := new(responseModel)

	if err := xml.Unmarshal(body, model); err != nil {
		return nil, fmt.Errorf("xml.Unmarshal: %w", err)
	}

	if model.Result == "" {
		return nil, fmt.Errorf("response has no result field")
	}

	return model, nil
}
