package recon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localpay/localpay/internal/domain/payments"
	"github.com/localpay/localpay/internal/domain/users"
	"github.com/localpay/localpay/internal/planup/planupclient"
	"github.com/localpay/localpay/internal/storage"
	"github.com/localpay/localpay/internal/storage/inmemory"
)

type fakePartner struct {
	entries map[int64][]planupclient.Entry
	errs    map[int64]error
}

func (p *fakePartner) Entries(_ context.Context, planupID int64, _, _ string) ([]planupclient.Entry, error) {
	if err := p.errs[planupID]; err != nil {
		return nil, err
	}

	return p.entries[planupID], nil
}

func seedUser(t *testing.T, store storage.Storage, login string, planupID int64, lsAmounts map[string][]int64) {
	t.Helper()

	ctx := context.Background()

	usr, err := users.NewUser(login, "password", users.RoleUser,
		users.WithPlanupID(planupID),
	)
	require.NoError(t, err)
	require.NoError(t, store.CreateUser(ctx, usr))

	_, err = store.RefillBalance(ctx, login, decimal.NewFromInt(100000), "initial", nil)
	require.NoError(t, err)

	now := time.Now()

	for lsAbon, amounts := range lsAmounts {
		for _, amount := range amounts {
			pmt, err := payments.NewPayment(login, lsAbon, "txn-"+lsAbon, decimal.NewFromInt(amount), now, now)
			require.NoError(t, err)

			_, _, err = store.ApplyPayment(ctx, pmt)
			require.NoError(t, err)
		}
	}
}

func TestReconcileUser(t *testing.T) {
	ctx := context.Background()

	t.Run("classifies both directions", func(t *testing.T) {
		store := storage.NewStorage(inmemory.NewStorage())
		seedUser(t, store, "operator1", 77, map[string][]int64{
			"111": {50},
			"222": {30},
		})

		partner := &fakePartner{entries: map[int64][]planupclient.Entry{
			77: {
				{ID: 1, LsAbon: "222", Money: "30.00"},
				{ID: 2, LsAbon: "333", Money: "15.00"},
			},
		}}

		r := New(store, partner)

		report, err := r.ReconcileUser(ctx, "operator1", time.Time{}, time.Time{})
		require.NoError(t, err)

		require.Len(t, report.Rows, 3)

		assert.Equal(t, "111", report.Rows[0].LsAbon)
		assert.Equal(t, MissingInPartner, report.Rows[0].Class)

		assert.Equal(t, "222", report.Rows[1].LsAbon)
		assert.Equal(t, Matched, report.Rows[1].Class)

		assert.Equal(t, "333", report.Rows[2].LsAbon)
		assert.Equal(t, MissingInLocal, report.Rows[2].Class)

		assert.Equal(t, "80.00", report.TotalLocal.StringFixed(2))
		assert.Equal(t, "45.00", report.TotalPartner.StringFixed(2))
	})

	t.Run("discards non-numeric and zero partner amounts", func(t *testing.T) {
		store := storage.NewStorage(inmemory.NewStorage())
		seedUser(t, store, "operator1", 77, map[string][]int64{"111": {50}})

		partner := &fakePartner{entries: map[int64][]planupclient.Entry{
			77: {
				{ID: 1, LsAbon: "111", Money: "garbage"},
				{ID: 2, LsAbon: "111", Money: "0"},
				{ID: 3, LsAbon: "111", Money: "50"},
			},
		}}

		r := New(store, partner)

		report, err := r.ReconcileUser(ctx, "operator1", time.Time{}, time.Time{})
		require.NoError(t, err)

		require.Len(t, report.Rows, 1)
		assert.Equal(t, Matched, report.Rows[0].Class)
		assert.Equal(t, "50.00", report.TotalPartner.StringFixed(2))
	})

	t.Run("duplicate amounts match as multiset", func(t *testing.T) {
		store := storage.NewStorage(inmemory.NewStorage())
		seedUser(t, store, "operator1", 77, map[string][]int64{"111": {50, 50}})

		partner := &fakePartner{entries: map[int64][]planupclient.Entry{
			77: {{ID: 1, LsAbon: "111", Money: "50.00"}},
		}}

		r := New(store, partner)

		report, err := r.ReconcileUser(ctx, "operator1", time.Time{}, time.Time{})
		require.NoError(t, err)

		require.Len(t, report.Rows, 2)
		assert.Equal(t, Matched, report.Rows[0].Class)
		assert.Equal(t, MissingInPartner, report.Rows[1].Class)
	})

	t.Run("deterministic regardless of partner ordering", func(t *testing.T) {
		store := storage.NewStorage(inmemory.NewStorage())
		seedUser(t, store, "operator1", 77, map[string][]int64{
			"111": {50},
			"222": {30},
			"333": {20},
		})

		forward := []planupclient.Entry{
			{ID: 1, LsAbon: "111", Money: "50"},
			{ID: 2, LsAbon: "444", Money: "10"},
			{ID: 3, LsAbon: "222", Money: "99"},
		}

		reversed := []planupclient.Entry{forward[2], forward[1], forward[0]}

		r1 := New(store, &fakePartner{entries: map[int64][]planupclient.Entry{77: forward}})
		r2 := New(store, &fakePartner{entries: map[int64][]planupclient.Entry{77: reversed}})

		report1, err := r1.ReconcileUser(ctx, "operator1", time.Time{}, time.Time{})
		require.NoError(t, err)

		report2, err := r2.ReconcileUser(ctx, "operator1", time.Time{}, time.Time{})
		require.NoError(t, err)

		require.Len(t, report1.Rows, len(report2.Rows))

		for i := range report1.Rows {
			assert.Equal(t, report1.Rows[i].LsAbon, report2.Rows[i].LsAbon)
			assert.Equal(t, report1.Rows[i].Class, report2.Rows[i].Class)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		store := storage.NewStorage(inmemory.NewStorage())

		r := New(store, &fakePartner{})

		_, err := r.ReconcileUser(ctx, "ghost", time.Time{}, time.Time{})
		assert.ErrorIs(t, err, storage.ErrUserNotFound)
	})
}

func TestReconcileBatch(t *testing.T) {
	ctx := context.Background()

	store := storage.NewStorage(inmemory.NewStorage())
	seedUser(t, store, "operator1", 1, map[string][]int64{"111": {50}})
	seedUser(t, store, "operator2", 2, map[string][]int64{"222": {30}})

	partnerErr := errors.New("planup down")

	partner := &fakePartner{
		entries: map[int64][]planupclient.Entry{
			1: {{ID: 1, LsAbon: "111", Money: "50"}},
		},
		errs: map[int64]error{2: partnerErr},
	}

	r := New(store, partner, WithParallelism(2))

	reports := r.ReconcileBatch(ctx, []string{"operator1", "operator2"}, time.Time{}, time.Time{})
	require.Len(t, reports, 2)

	assert.Equal(t, "operator1", reports[0].Login)
	require.NoError(t, reports[0].Err)
	require.Len(t, reports[0].Report.Rows, 1)
	assert.Equal(t, Matched, reports[0].Report.Rows[0].Class)

	assert.Equal(t, "operator2", reports[1].Login)
	assert.ErrorIs(t, reports[1].Err, partnerErr)
	assert.Nil(t, reports[1].Report)
}
