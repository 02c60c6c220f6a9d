package currency

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *int32) {
	t.Helper()
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.RequestsPerMinute = 6000
	cfg.Retry = service.RetryOptions{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	client, err := NewClient(cfg, nil)
	require.NoError(t, err)
	return client, &hits
}

func TestClient_Convert(t *testing.T) {
	t.Run("same currency skips the network", func(t *testing.T) {
		client, hits := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})

		got, err := client.Convert(context.Background(), decimal.RequireFromString("42.17"), "usd", "USD")
		require.NoError(t, err)
		assert.True(t, got.Equal(decimal.RequireFromString("42.17")))
		assert.Equal(t, int32(0), atomic.LoadInt32(hits))
	})

	t.Run("multiplies by the returned rate and caches it", func(t *testing.T) {
		client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/convert", r.URL.Path)
			assert.Equal(t, "USD", r.URL.Query().Get("from"))
			assert.Equal(t, "EUR", r.URL.Query().Get("to"))
			fmt.Fprint(w, `{"success":true,"info":{"rate":0.9},"result":0.9}`)
		})

		got, err := client.Convert(context.Background(), decimal.NewFromInt(20), "USD", "EUR")
		require.NoError(t, err)
		assert.True(t, got.Equal(decimal.NewFromInt(18)), "got %s", got)

		_, err = client.Convert(context.Background(), decimal.NewFromInt(5), "USD", "EUR")
		require.NoError(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(hits))
	})

	t.Run("unsuccessful payload is a conversion error without retry", func(t *testing.T) {
		client, hits := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"success":false,"error":{"code":101,"info":"invalid access key"}}`)
		})

		_, err := client.Convert(context.Background(), decimal.NewFromInt(1), "USD", "EUR")
		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrConversion)
		assert.Contains(t, err.Error(), "invalid access key")
		assert.Equal(t, int32(1), atomic.LoadInt32(hits))
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		client, hits := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		})

		_, err := client.Convert(context.Background(), decimal.NewFromInt(1), "USD", "JPY")
		assert.ErrorIs(t, err, common.ErrConversion)
		assert.Equal(t, int32(1), atomic.LoadInt32(hits))
	})

	t.Run("server errors are retried then fail", func(t *testing.T) {
		client, hits := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})

		_, err := client.Convert(context.Background(), decimal.NewFromInt(1), "USD", "GBP")
		assert.ErrorIs(t, err, common.ErrConversion)
		assert.Equal(t, int32(3), atomic.LoadInt32(hits))
	})

	t.Run("missing rate is rejected", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"success":true,"info":{}}`)
		})

		_, err := client.Convert(context.Background(), decimal.NewFromInt(1), "USD", "CHF")
		assert.ErrorIs(t, err, common.ErrConversion)
	})
}

func TestStatic_Convert(t *testing.T) {
	conv, err := NewStatic(map[string]string{"usd/eur": "0.5"})
	require.NoError(t, err)
	ctx := context.Background()

	got, err := conv.Convert(ctx, decimal.NewFromInt(10), "USD", "EUR")
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(5)))

	got, err = conv.Convert(ctx, decimal.NewFromInt(10), "EUR", "USD")
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(20)))

	_, err = conv.Convert(ctx, decimal.NewFromInt(10), "EUR", "JPY")
	assert.ErrorIs(t, err, common.ErrConversion)

	_, err = NewStatic(map[string]string{"USD/EUR": "-1"})
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.RequestsPerMinute = 0
	assert.ErrorIs(t, cfg.Validate(), common.ErrInvalidConfig)
}
