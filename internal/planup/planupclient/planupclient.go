// Package planupclient fetches work-order payment entries from the Planup
// system, the external record used to cross-check local payments.
package planupclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/localpay/localpay/internal/httpclient"
)

var ErrServiceUnavailable = errors.New("planup unavailable")

// Entry is a single Planup payment row. Money comes back as a string and may
// be non-numeric; validation is the consumer's job.
type Entry struct {
	ID     int64  `json:"id"`
	LsAbon string `json:"ls_abon"`
	Money  string `json:"money"`
}

type Client struct {
	log    *slog.Logger
	client *resty.Client
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
		timeout: 30 * time.Second,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	return &Client{
		log: cfg.logger.With(slog.String("module", "planupclient")),
		client: httpclient.New(
			httpclient.WithBaseURL(cfg.baseURL),
			httpclient.WithTimeout(cfg.timeout),
		),
	}
}

// Entries fetches payment rows for a linked planup id, optionally bounded by
// a date range (YYYY-MM-DD).
func (c *Client) Entries(ctx context.Context, planupID int64, startDate, endDate string) ([]Entry, error) {
	formData := map[string]string{
		"planup_id": strconv.FormatInt(planupID, 10),
	}

	if startDate != "" {
		formData["start_date"] = startDate
	}

	if endDate != "" {
		formData["end_date"] = endDate
	}

	entries := make([]Entry, 0)

	resp, err := c.client.R().
		SetContext(ctx).
		SetFormData(formData).
		SetResult(&entries).
		Post("/planup/localpay_naryd/")
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrServiceUnavailable, err)
	}

	if resp.StatusCode() != http.StatusOK {
		c.log.Error("Planup returned unexpected status",
			slog.Int("status", resp.StatusCode()),
			slog.Int64("planup_id", planupID),
		)

		return nil, fmt.Errorf("%w: status %d", ErrServiceUnavailable, resp.StatusCode())
	}

	return entries, nil
}
