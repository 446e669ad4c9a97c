package updater

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motforex/merchant"
	"github.com/motforex/merchant/natsbus"
)

type fakeFeed struct {
	mu   sync.Mutex
	subs map[int64]func(u *natsbus.InvoiceUpdate)
	sub  chan int64
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{subs: map[int64]func(u *natsbus.InvoiceUpdate){}, sub: make(chan int64, 1)}
}

func (f *fakeFeed) SubscribeInvoice(invoiceID int64, cb func(u *natsbus.InvoiceUpdate)) (func(), error) {
	f.mu.Lock()
	f.subs[invoiceID] = cb
	f.mu.Unlock()
	f.sub <- invoiceID
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, invoiceID)
	}, nil
}

func (f *fakeFeed) publish(u *natsbus.InvoiceUpdate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cb, ok := f.subs[u.InvoiceID]; ok {
		cb(u)
	}
}

type invoices map[int64]*merchant.MerchantInvoice

func (m invoices) GetInvoice(ctx context.Context, id int64) (*merchant.MerchantInvoice, error) {
	if inv, ok := m[id]; ok {
		return inv, nil
	}
	return nil, merchant.ErrNotFound
}

func setup(t *testing.T, feed *fakeFeed, invs invoices) string {
	e := echo.New()
	e.GET("/invoices/:id/updates", NewServer(feed, invs).Stream)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestStream(t *testing.T) {
	feed := newFakeFeed()
	url := setup(t, feed, invoices{
		42: {ID: 42, MerchantMethod: merchant.MethodQPay, InvoiceStatus: merchant.StatusPending, ExecutionStatus: merchant.StatusPending},
	})

	conn, _, err := websocket.DefaultDialer.Dial(url+"/invoices/42/updates", nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var u natsbus.InvoiceUpdate
	require.NoError(t, conn.ReadJSON(&u))
	assert.Equal(t, merchant.StatusPending, u.InvoiceStatus)

	<-feed.sub
	feed.publish(&natsbus.InvoiceUpdate{InvoiceID: 42, InvoiceStatus: merchant.StatusExecuted, ExecutionStatus: merchant.StatusPending})
	feed.publish(&natsbus.InvoiceUpdate{InvoiceID: 42, InvoiceStatus: merchant.StatusExecuted, ExecutionStatus: merchant.StatusExecuted})

	require.NoError(t, conn.ReadJSON(&u))
	assert.Equal(t, merchant.StatusPending, u.ExecutionStatus)
	require.NoError(t, conn.ReadJSON(&u))
	assert.Equal(t, merchant.StatusExecuted, u.ExecutionStatus)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestStreamFinalInvoice(t *testing.T) {
	feed := newFakeFeed()
	url := setup(t, feed, invoices{
		7: {ID: 7, InvoiceStatus: merchant.StatusExpired, ExecutionStatus: merchant.StatusExpired},
	})

	conn, _, err := websocket.DefaultDialer.Dial(url+"/invoices/7/updates", nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var u natsbus.InvoiceUpdate
	require.NoError(t, conn.ReadJSON(&u))
	assert.Equal(t, merchant.StatusExpired, u.InvoiceStatus)
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestStreamUnknownInvoice(t *testing.T) {
	url := setup(t, newFakeFeed(), invoices{})

	_, resp, err := websocket.DefaultDialer.Dial(url+"/invoices/9/updates", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 404, resp.StatusCode)
}
