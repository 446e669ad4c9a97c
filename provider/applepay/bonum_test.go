package applepay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motforex/merchant/provider"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		success bool
		status  string
		paid    bool
		failed  bool
	}{
		{true, "SUCCESS", true, false},
		{true, "completed", true, false},
		{true, " Paid ", true, false},
		{true, "executed", true, false},
		{false, "PAID", false, false},
		{false, "failed", false, true},
		{true, "Declined", false, true},
		{false, "FAIL", false, true},
		{true, "cancelled", false, true},
		{true, "PENDING", false, false},
		{true, "", false, false},
	}
	for _, tt := range tests {
		st := classify(tt.success, tt.status)
		assert.Equal(t, tt.paid, st.Paid, "%v %q", tt.success, tt.status)
		assert.Equal(t, tt.failed, st.Failed, "%v %q", tt.success, tt.status)
	}
}

func newTestServer(t *testing.T, statusBody string) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/bonum-gateway/ecommerce/auth/create", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "AppSecret app-secret", r.Header.Get("Authorization"))
		require.Equal(t, "T1", r.Header.Get("X-TERMINAL-ID"))
		json.NewEncoder(w).Encode(authResponse{AccessToken: "bonum-token", ExpiresIn: 600})
	})
	mux.HandleFunc("/bonum-gateway/ecommerce/invoices", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer bonum-token", r.Header.Get("Authorization"))
		var in invoiceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, int64(900), in.ExpiresIn)
		json.NewEncoder(w).Encode(invoiceResponse{InvoiceID: "b-1", FollowUpLink: "https://ecommerce.bonum.mn/b-1"})
	})
	mux.HandleFunc("/bonum-gateway/ecommerce/invoices/b-1", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer bonum-token", r.Header.Get("Authorization"))
		w.Write([]byte(statusBody))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCreateAndCheck(t *testing.T) {
	srv := newTestServer(t, `{"success":true,"status":"completed","invoiceId":"b-1","amount":100.4}`)
	p := NewProvider(Config{EntrypointURL: srv.URL, AppSecret: "app-secret", TerminalID: "T1"})

	h, err := p.CreateInvoice(context.Background(), provider.CreateInvoiceRequest{
		Amount:      decimal.RequireFromString("100.40"),
		ReferenceID: "42",
		TTL:         15 * time.Minute,
	})
	require.NoError(t, err)
	assert.Equal(t, "b-1", h.ProviderID)
	assert.Equal(t, "https://ecommerce.bonum.mn/b-1", h.Display["followUpLink"])

	st, err := p.CheckStatus(context.Background(), "b-1")
	require.NoError(t, err)
	assert.True(t, st.Paid)
	assert.Equal(t, "COMPLETED", st.RawStatus)
}
