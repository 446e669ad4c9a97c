package coinsbuy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motforex/merchant/provider"
)

func newTestServer(t *testing.T, status int, authCalls *int32) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/token/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(authCalls, 1)
		require.Equal(t, contentType, r.Header.Get("Content-Type"))
		fmt.Fprintf(w, `{"data":{"type":"auth-token","attributes":{"access":"cb-token","access_expired_at":%d}}}`,
			time.Now().Add(time.Hour).Unix())
	})
	mux.HandleFunc("/deposit/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer cb-token", r.Header.Get("Authorization"))
		var in document
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "deposit", in.Data.Type)
		assert.Equal(t, "w-1", in.Data.Relationships["wallet"].Data.ID)
		w.Write([]byte(`{"data":{"type":"deposit","id":"777","attributes":{"address":"TXYZ","payment_page":"https://pay.coinsbuy.com/777","status":2}}}`))
	})
	mux.HandleFunc("/deposit/777/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"data":{"type":"deposit","id":"777","attributes":{"status":%d}}}`, status)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCreateInvoice(t *testing.T) {
	var authCalls int32
	srv := newTestServer(t, STATUS_CREATED, &authCalls)
	p := NewProvider(Config{EntrypointURL: srv.URL, ClientID: "id", ClientSecret: "secret", WalletID: "w-1"})

	h, err := p.CreateInvoice(context.Background(), provider.CreateInvoiceRequest{
		Amount:      decimal.RequireFromString("25"),
		ReferenceID: "42",
	})
	require.NoError(t, err)
	assert.Equal(t, "777", h.ProviderID)
	assert.Equal(t, "TXYZ", h.Display["address"])

	_, err = p.CheckStatus(context.Background(), "777")
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&authCalls), "token is reused until it expires")
}

func TestCheckStatus(t *testing.T) {
	tests := []struct {
		status int
		paid   bool
	}{
		{STATUS_CREATED, false},
		{STATUS_PAID, true},
		{1, false},
		{4, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("status %d", tt.status), func(t *testing.T) {
			var authCalls int32
			srv := newTestServer(t, tt.status, &authCalls)
			p := NewProvider(Config{EntrypointURL: srv.URL, WalletID: "w-1"})
			st, err := p.CheckStatus(context.Background(), "777")
			require.NoError(t, err)
			assert.Equal(t, tt.paid, st.Paid)
			assert.False(t, st.Failed)
			assert.Equal(t, fmt.Sprint(tt.status), st.RawStatus)
		})
	}
}
