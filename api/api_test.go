package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motforex/merchant"
	"github.com/motforex/merchant/engine"
)

type fakeBackend struct {
	mu       sync.Mutex
	invoices map[int64]*merchant.MerchantInvoice
	owners   map[int64]string
	obtained []engine.ObtainRequest
	checked  []int64
	err      error
}

func (b *fakeBackend) ObtainInvoice(ctx context.Context, method merchant.MerchantMethod, req engine.ObtainRequest) (*merchant.MerchantInvoice, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.obtained = append(b.obtained, req)
	if b.err != nil {
		return nil, b.err
	}
	inv := &merchant.MerchantInvoice{
		ID:                  req.DepositID,
		MerchantMethod:      method,
		TransactionAmount:   decimal.RequireFromString("15000.40"),
		TransactionCurrency: "MNT",
		InvoiceStatus:       merchant.StatusPending,
		ExecutionStatus:     merchant.StatusPending,
		ProviderID:          "secret-provider-id",
		Metadata:            merchant.Metadata{"qrText": "qr"},
	}
	b.invoices[inv.ID] = inv
	return inv, nil
}

func (b *fakeBackend) CheckInvoice(ctx context.Context, invoiceID int64) (*merchant.MerchantInvoice, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checked = append(b.checked, invoiceID)
	inv, ok := b.invoices[invoiceID]
	if !ok {
		return nil, merchant.ErrNotFound
	}
	return inv, nil
}

func (b *fakeBackend) RetryExecution(ctx context.Context, invoiceID int64) (*merchant.MerchantInvoice, error) {
	return nil, merchant.InvalidRequest("execution can be retried only for paid invoices with failed execution")
}

func (b *fakeBackend) GetInvoice(ctx context.Context, invoiceID int64) (*merchant.MerchantInvoice, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	inv, ok := b.invoices[invoiceID]
	if !ok {
		return nil, merchant.ErrNotFound
	}
	return inv, nil
}

func (b *fakeBackend) InvoiceOwnedBy(ctx context.Context, invoiceID int64, email string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.invoices[invoiceID]; !ok {
		return false, merchant.ErrNotFound
	}
	return b.owners[invoiceID] == email, nil
}

type recordingQueue struct {
	ids []int64
	err error
}

func (q *recordingQueue) RequestCheck(ctx context.Context, invoiceID int64, source string) error {
	q.ids = append(q.ids, invoiceID)
	return q.err
}

const testSecret = "test-secret"

func signToken(t *testing.T, email string) string {
	t.Helper()
	token, err := NewVerifier(testSecret, "motforex").Sign(&Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	require.NoError(t, err)
	return token
}

func newTestServer(t *testing.T, b *fakeBackend, opts ...Option) (*echo.Echo, string) {
	v := NewVerifier(testSecret, "motforex")
	token := signToken(t, "a@b.com")

	e := echo.New()
	NewServer(b, v, "admin-key", opts...).Register(e)
	return e, token
}

func do(e *echo.Echo, method, path, token string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestObtainInvoice(t *testing.T) {
	b := &fakeBackend{invoices: map[int64]*merchant.MerchantInvoice{}}
	e, token := newTestServer(t, b)

	rec := do(e, http.MethodPost, "/deposits/42/invoice/qpay", token, `{"locale":"mn"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "PENDING", resp["invoiceStatus"])
	assert.Equal(t, "15000.4", resp["transactionAmount"])
	assert.NotContains(t, rec.Body.String(), "secret-provider-id")

	require.Len(t, b.obtained, 1)
	assert.Equal(t, engine.ObtainRequest{DepositID: 42, PayerEmail: "a@b.com", Locale: "mn"}, b.obtained[0])
}

func TestObtainInvoiceErrors(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		token bool
		err   error
		code  int
	}{
		{"no token", "/deposits/42/invoice/qpay", false, nil, http.StatusUnauthorized},
		{"unknown method", "/deposits/42/invoice/paypal", true, nil, http.StatusBadRequest},
		{"bad id", "/deposits/x/invoice/qpay", true, nil, http.StatusBadRequest},
		{"not found", "/deposits/42/invoice/qpay", true, errors.Wrap(merchant.ErrNotFound, "Failed get deposit request"), http.StatusNotFound},
		{"provider down", "/deposits/42/invoice/qpay", true, errors.Wrap(merchant.ErrProviderUnavailable, "status 503"), http.StatusBadGateway},
		{"not supported", "/deposits/42/invoice/coinsbuy", true, merchant.ErrNotSupported, http.StatusNotImplemented},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBackend{invoices: map[int64]*merchant.MerchantInvoice{}, err: tt.err}
			e, token := newTestServer(t, b)
			if !tt.token {
				token = ""
			}
			rec := do(e, http.MethodPost, tt.path, token, "")
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}

func TestRejectsForeignToken(t *testing.T) {
	b := &fakeBackend{invoices: map[int64]*merchant.MerchantInvoice{}}
	e, _ := newTestServer(t, b)

	forged, err := NewVerifier("other-secret", "motforex").Sign(&Claims{Email: "a@b.com"})
	require.NoError(t, err)
	rec := do(e, http.MethodPost, "/deposits/42/invoice/qpay", forged, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, b.obtained)
}

func TestCallback(t *testing.T) {
	b := &fakeBackend{invoices: map[int64]*merchant.MerchantInvoice{
		42: {ID: 42, MerchantMethod: merchant.MethodQPay, InvoiceStatus: merchant.StatusPending},
	}}
	e, _ := newTestServer(t, b)

	rec := do(e, http.MethodPost, "/callback/qpay/42", "", `{"paid_amount":"999999"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []int64{42}, b.checked)

	rec = do(e, http.MethodGet, "/callback/socialpay/42", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(e, http.MethodGet, "/callback/qpay/7", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCallbackQueued(t *testing.T) {
	b := &fakeBackend{invoices: map[int64]*merchant.MerchantInvoice{
		42: {ID: 42, MerchantMethod: merchant.MethodMerchant, InvoiceStatus: merchant.StatusPending},
	}}
	q := &recordingQueue{}
	e, _ := newTestServer(t, b, WithCheckQueue(q))

	rec := do(e, http.MethodGet, "/callback/merchant/42", "", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []int64{42}, q.ids)
	assert.Empty(t, b.checked)

	q.err = errors.New("nats: connection closed")
	rec = do(e, http.MethodGet, "/callback/merchant/42", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{42}, b.checked)
}

func TestAdmin(t *testing.T) {
	b := &fakeBackend{invoices: map[int64]*merchant.MerchantInvoice{
		42: {ID: 42, MerchantMethod: merchant.MethodQPay, ProviderID: "p-1"},
	}}
	e, token := newTestServer(t, b)

	rec := do(e, http.MethodGet, "/admin/invoices/42", token, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/admin/invoices/42", nil)
	req.Header.Set("X-Api-Key", "admin-key")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "p-1")

	req = httptest.NewRequest(http.MethodPost, "/admin/invoices/42/retry-execution", nil)
	req.Header.Set("X-Api-Key", "admin-key")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "failed execution")
}

func TestCheckInvoiceOwnership(t *testing.T) {
	b := &fakeBackend{
		invoices: map[int64]*merchant.MerchantInvoice{
			42: {ID: 42, MerchantMethod: merchant.MethodQPay, InvoiceStatus: merchant.StatusPending, TransactionAmount: decimal.NewFromInt(100)},
		},
		owners: map[int64]string{42: "a@b.com"},
	}
	var streamed []string
	e, token := newTestServer(t, b, WithUpdates(func(c echo.Context) error {
		streamed = append(streamed, c.Param("id"))
		return c.NoContent(http.StatusOK)
	}))

	rec := do(e, http.MethodGet, "/invoices/42", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{42}, b.checked)

	other := signToken(t, "other@b.com")
	rec = do(e, http.MethodGet, "/invoices/42", other, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(e, http.MethodGet, "/invoices/42/updates", other, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, []int64{42}, b.checked)
	assert.Empty(t, streamed)

	rec = do(e, http.MethodGet, "/invoices/42/updates", token, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"42"}, streamed)

	rec = do(e, http.MethodGet, "/invoices/7", token, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	e, _ := newTestServer(t, &fakeBackend{})
	rec := do(e, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
