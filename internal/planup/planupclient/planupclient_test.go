package planupclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntries(t *testing.T) {
	t.Run("returns entries", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/planup/localpay_naryd/", r.URL.Path)

			require.NoError(t, r.ParseForm())
			assert.Equal(t, "77", r.FormValue("planup_id"))
			assert.Equal(t, "2024-01-01", r.FormValue("start_date"))
			assert.Equal(t, "2024-01-31", r.FormValue("end_date"))

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`[{"id":1,"ls_abon":"111","money":"50.00"},{"id":2,"ls_abon":"222","money":"n/a"}]`)) //nolint:errcheck
		}))
		defer srv.Close()

		client := New(WithBaseURL(srv.URL))

		entries, err := client.Entries(context.Background(), 77, "2024-01-01", "2024-01-31")
		require.NoError(t, err)

		require.Len(t, entries, 2)
		assert.Equal(t, "111", entries[0].LsAbon)
		assert.Equal(t, "50.00", entries[0].Money)
		assert.Equal(t, "n/a", entries[1].Money)
	})

	t.Run("omits empty date bounds", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			assert.False(t, r.Form.Has("start_date"))
			assert.False(t, r.Form.Has("end_date"))

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`[]`)) //nolint:errcheck
		}))
		defer srv.Close()

		client := New(WithBaseURL(srv.URL))

		entries, err := client.Entries(context.Background(), 77, "", "")
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("non-200 status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		client := New(WithBaseURL(srv.URL))

		_, err := client.Entries(context.Background(), 77, "", "")
		assert.ErrorIs(t, err, ErrServiceUnavailable)
	})
}
