package simplefin

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bridgeBody = `{
  "errors": [],
  "accounts": [
    {
      "id": "ACT-1",
      "name": "Checking",
      "currency": "USD",
      "balance": "1200.00",
      "transactions": [
        {"id": "t1", "posted": 1705320000, "amount": "-33.29", "description": "POS PURCHASE", "payee": "CORNER CAFE LLC"},
        {"id": "t2", "posted": 1705406400, "amount": "2500.00", "description": "Payroll", "payee": ""},
        {"id": "t3", "posted": 1705406400, "amount": "-5.00", "description": "Pending", "payee": "x", "pending": true},
        {"id": "t4", "posted": 1609459200, "amount": "-1.00", "description": "Too old", "payee": "old"}
      ]
    }
  ]
}`

func newBridge(t *testing.T, claims *atomic.Int32) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/claim", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		claims.Add(1)
		fmt.Fprint(w, srv.URL+"/bridge\n")
	})
	mux.HandleFunc("/bridge/accounts", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, bridgeBody)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_GetTransactions(t *testing.T) {
	var claims atomic.Int32
	srv := newBridge(t, &claims)
	statePath := filepath.Join(t.TempDir(), "simplefin_auth.json")
	token := base64.StdEncoding.EncodeToString([]byte(srv.URL + "/claim"))

	ctx := context.Background()
	client, err := NewClient(ctx, Config{Token: token, StatePath: statePath}, nil)
	require.NoError(t, err)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	records, err := client.GetTransactions(ctx, start, end)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "Corner Cafe", records[0].Title)
	assert.Equal(t, "-33.29", records[0].Amount.String())
	assert.Equal(t, "USD", records[0].Currency)
	assert.Equal(t, "ACT-1", records[0].SourceAccount)
	assert.Equal(t, "simplefin:ACT-1:t1", records[0].ExternalID)
	assert.Equal(t, time.Unix(1705320000, 0).UTC(), records[0].Date)

	assert.Equal(t, "Payroll", records[1].Title)
	assert.True(t, records[1].Amount.IsPositive())

	// The second client reuses the saved access URL.
	_, err = NewClient(ctx, Config{StatePath: statePath}, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), claims.Load())

	ids, err := client.GetAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ACT-1"}, ids)
}

func TestNewClient_NoTokenNoState(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "missing.json")
	_, err := NewClient(context.Background(), Config{StatePath: statePath}, nil)
	assert.ErrorIs(t, err, common.ErrMissingConfig)
}

func TestDecodeToken(t *testing.T) {
	claimURL, err := decodeToken(base64.URLEncoding.EncodeToString([]byte("https://bridge.example/claim/abc")))
	require.NoError(t, err)
	assert.Equal(t, "https://bridge.example/claim/abc", claimURL)

	_, err = decodeToken("!!!not-base64!!!")
	assert.ErrorIs(t, err, common.ErrInvalidConfig)

	_, err = decodeToken(base64.StdEncoding.EncodeToString([]byte("ftp://nope")))
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestClient_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewClientWithAccessURL(srv.URL+"/", srv.Client(), nil)
	client.retryOpts = service.RetryOptions{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

	_, err := client.GetAccounts(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Equal(t, int32(1), calls.Load())
}

func TestNormalizeMerchant(t *testing.T) {
	tests := map[string]string{
		"CORNER CAFE LLC":   "Corner Cafe",
		"  acme inc ":       "Acme",
		"Blue Bottle":       "Blue Bottle",
		"":                  "",
		"ÉCOLE BOULANGERIE": "École Boulangerie",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeMerchant(in), in)
	}
}
