// Package osmpclient talks to the Hydra billing gateway over the OSMP
// protocol: commands are passed as query parameters, responses come back as
// small XML documents.
package osmpclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/localpay/localpay/internal/httpclient"
)

var (
	// ErrServiceUnavailable covers transport failures and unparseable
	// responses.
	ErrServiceUnavailable = errors.New("payment gateway unavailable")

	// ErrAmbiguousOutcome is returned when the pay call timed out: the
	// gateway may or may not have executed the payment. Callers must not
	// retry blindly.
	ErrAmbiguousOutcome = errors.New("payment outcome ambiguous: gateway call timed out")
)

const resultCodeOK = "0"

type Client struct {
	log *slog.Logger

	// payClient never retries: the gateway's idempotency under duplicate
	// txn ids is unverified. checkClient retries, command=check is read-only.
	payClient   *resty.Client
	checkClient *resty.Client
}

type Config struct {
	logger  *slog.Logger
	baseURL string
	timeout time.Duration
}

type Option func(c *Config)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.logger = logger
	}
}

func WithBaseURL(baseURL string) Option {
	return func(c *Config) {
		c.baseURL = baseURL
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.timeout = timeout
	}
}

func New(opts ...Option) *Client {
	cfg := &Config{
		logger:  slog.New(slog.NewJSONHandler(os.Stdout, nil)),
		timeout: 15 * time.Second,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	payClient := httpclient.New(
		httpclient.WithBaseURL(cfg.baseURL),
		httpclient.WithRetryCount(0),
		httpclient.WithTimeout(cfg.timeout),
	)

	checkClient := httpclient.New(
		httpclient.WithBaseURL(cfg.baseURL),
		httpclient.WithTimeout(cfg.timeout),
	)

	return &Client{
		log:         cfg.logger.With(slog.String("module", "osmpclient")),
		payClient:   payClient,
		checkClient: checkClient,
	}
}

// NewTxnID builds a gateway transaction id: second-resolution timestamp plus
// the subscriber account, with a random suffix so two payments for the same
// account within one second cannot collide.
func NewTxnID(now time.Time, lsAbon string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]

	return now.Format("20060102150405") + lsAbon + suffix
}

// Pay issues the pay command. A non-"0" result code is returned as a regular
// PayResult, not an error: it is a business refusal the caller reports back
// verbatim.
func (c *Client) Pay(ctx context.Context, lsAbon string, amount decimal.Decimal) (*PayResult, error) {
	now := time.Now()
	txnID := NewTxnID(now, lsAbon)
	txnDate := now.Format("20060102150405")

	resp, err := c.payClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"command":  "pay",
			"txn_id":   txnID,
			"txn_date": txnDate,
			"account":  lsAbon,
			"sum":      amount.StringFixed(2),
		}).
		Post("/main")
	if err != nil {
		if isTimeout(ctx, err) {
			c.log.Error("Gateway pay call timed out",
				slog.String("txn_id", txnID),
				slog.String("account", lsAbon),
				slog.String("sum", amount.StringFixed(2)),
			)

			return nil, fmt.Errorf("%w (txn_id %s)", ErrAmbiguousOutcome, txnID)
		}

		return nil, fmt.Errorf("%w: %s", ErrServiceUnavailable, err)
	}

	result, err := parsePayResult(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrServiceUnavailable, err)
	}

	result.LocalTxnID = txnID
	result.RequestedAt = now
	result.AcceptedAt = time.Now()

	return result, nil
}

// CheckAccount issues the read-only check command for a subscriber account.
func (c *Client) CheckAccount(ctx context.Context, lsAbon string) (*CheckResult, error) {
	now := time.Now()

	resp, err := c.checkClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"command":  "check",
			"txn_id":   NewTxnID(now, lsAbon),
			"txn_date": now.Format("20060102150405"),
			"account":  lsAbon,
		}).
		Post("/main")
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrServiceUnavailable, err)
	}

	result, err := parseCheckResult(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrServiceUnavailable, err)
	}

	return result, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}
