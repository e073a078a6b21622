// Package recon diffs the local payment ledger against Planup, the partner
// system of record for completed work orders.
package recon

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/localpay/localpay/internal/domain/payments"
	"github.com/localpay/localpay/internal/planup/planupclient"
	"github.com/localpay/localpay/internal/storage"
)

// Classification of a single reconciliation row.
type Classification string

const (
	Matched          Classification = "MATCHED"
	MissingInPartner Classification = "MISSING_IN_PARTNER"
	MissingInLocal   Classification = "MISSING_IN_LOCAL"
)

// Row is one diffed (account, amount) pair. Amounts are decimals at the
// boundary; the diff itself runs on integer minor units.
type Row struct {
	LsAbon        string
	LocalAmount   decimal.Decimal
	PartnerAmount decimal.Decimal
	Class         Classification
}

// Report is the reconciliation result for one user. Totals are summed per
// side independently: duplicate (account, amount) pairs are legitimate.
type Report struct {
	Rows         []Row
	TotalLocal   decimal.Decimal
	TotalPartner decimal.Decimal
}

// Partner is the slice of the Planup client the reconciler needs.
type Partner interface {
	Entries(ctx context.Context, planupID int64, startDate, endDate string) ([]planupclient.Entry, error)
}

type Reconciler struct {
	log      *slog.Logger
	storage  storage.Storage
	partner  Partner
	parallel int
}

type Config struct {
	logger   *slog.Logger
	parallel int
}

type Option func(c *Config)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithParallelism bounds the number of concurrent Planup calls in a batch.
func WithParallelism(n int) Option {
	return func(c *Config) {
		c.parallel = n
	}
}

func New(store storage.Storage, partner Partner, opts ...Option) *Reconciler {
	cfg := &Config{
		logger:   slog.New(slog.NewJSONHandler(os.Stdout, nil)),
		parallel: 4,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	return &Reconciler{
		log:      cfg.logger.With(slog.String("module", "recon")),
		storage:  store,
		partner:  partner,
		parallel: cfg.parallel,
	}
}

// key identifies one side entry: subscriber account plus amount in minor
// units. The diff is a multiset comparison on these keys.
type key struct {
	lsAbon string
	cents  int64
}

// ReconcileUser diffs one user's completed non-zero payments against the
// Planup entries of the linked planup id.
func (r *Reconciler) ReconcileUser(ctx context.Context, login string, from, to time.Time) (*Report, error) {
	usr, err := r.storage.GetUser(ctx, login)
	if err != nil {
		return nil, err
	}

	local, _, err := r.storage.ListPayments(ctx, storage.PaymentFilter{
		UserLogin:   login,
		Statuses:    []payments.Status{payments.StatusCompleted},
		From:        from,
		To:          to,
		NonZeroOnly: true,
	})
	if err != nil {
		return nil, err
	}

	partnerEntries, err := r.partner.Entries(ctx, usr.PlanupID(), formatDate(from), formatDate(to))
	if err != nil {
		return nil, err
	}

	return diff(local, partnerEntries), nil
}

// UserReport is one element of a batch result. Err is set when the partner
// call for that user failed; other users are unaffected.
type UserReport struct {
	Login  string
	Report *Report
	Err    error
}

// ReconcileBatch reconciles several users with bounded parallelism. A
// failure for one user is recorded in its UserReport and does not abort the
// rest.
func (r *Reconciler) ReconcileBatch(ctx context.Context, logins []string, from, to time.Time) []UserReport {
	reports := make([]UserReport, len(logins))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallel)

	for i, login := range logins {
		i, login := i, login
		g.Go(func() error {
			report, err := r.ReconcileUser(ctx, login, from, to)
			if err != nil {
				r.log.Error("Reconciliation failed for user",
					slog.String("user", login),
					slog.Any("error", err),
				)
			}

			reports[i] = UserReport{Login: login, Report: report, Err: err}

			return nil
		})
	}

	g.Wait() //nolint:errcheck // workers never return errors

	return reports
}

// diff builds the multiset comparison. Partner entries with a non-numeric
// or zero amount are discarded before the comparison. Rows are sorted so
// the result does not depend on input ordering.
func diff(local []*payments.Payment, partner []planupclient.Entry) *Report {
	report := &Report{Rows: make([]Row, 0, len(local)+len(partner))}

	partnerKeys := make(map[key]int)

	for _, entry := range partner {
		k, ok := partnerKey(entry)
		if !ok {
			continue
		}

		partnerKeys[k]++
		report.TotalPartner = report.TotalPartner.Add(centsToDecimal(k.cents))
	}

	remaining := make(map[key]int, len(partnerKeys))
	for k, n := range partnerKeys {
		remaining[k] = n
	}

	for _, pmt := range local {
		k := key{lsAbon: pmt.LsAbon(), cents: decimalToCents(pmt.Amount())}
		amount := centsToDecimal(k.cents)
		report.TotalLocal = report.TotalLocal.Add(amount)

		if remaining[k] > 0 {
			remaining[k]--
			report.Rows = append(report.Rows, Row{
				LsAbon:        k.lsAbon,
				LocalAmount:   amount,
				PartnerAmount: amount,
				Class:         Matched,
			})

			continue
		}

		report.Rows = append(report.Rows, Row{
			LsAbon:      k.lsAbon,
			LocalAmount: amount,
			Class:       MissingInPartner,
		})
	}

	for k, n := range remaining {
		for i := 0; i < n; i++ {
			report.Rows = append(report.Rows, Row{
				LsAbon:        k.lsAbon,
				PartnerAmount: centsToDecimal(k.cents),
				Class:         MissingInLocal,
			})
		}
	}

	sort.Slice(report.Rows, func(i, j int) bool {
		a, b := report.Rows[i], report.Rows[j]

		if a.LsAbon != b.LsAbon {
			return a.LsAbon < b.LsAbon
		}

		if !a.LocalAmount.Equal(b.LocalAmount) {
			return a.LocalAmount.LessThan(b.LocalAmount)
		}

		if !a.PartnerAmount.Equal(b.PartnerAmount) {
			return a.PartnerAmount.LessThan(b.PartnerAmount)
		}

		return a.Class < b.Class
	})

	return report
}

// partnerKey validates and normalizes one Planup entry. Money arrives as a
// string in assorted formats; anything non-numeric or zero is dropped.
func partnerKey(entry planupclient.Entry) (key, bool) {
	amount, err := decimal.NewFromString(entry.Money)
	if err != nil || amount.IsZero() {
		return key{}, false
	}

	return key{lsAbon: entry.LsAbon, cents: decimalToCents(amount)}, true
}

func decimalToCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func centsToDecimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.Format("2006-01-02")
}
