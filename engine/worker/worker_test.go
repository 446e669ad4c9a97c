package worker

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/motforex/merchant"
	"github.com/motforex/merchant/natsbus"
)

type recordingChecker struct {
	mu  sync.Mutex
	ids []int64
	err error
}

func (c *recordingChecker) CheckInvoice(ctx context.Context, invoiceID int64) (*merchant.MerchantInvoice, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, invoiceID)
	if c.err != nil {
		return nil, c.err
	}
	return &merchant.MerchantInvoice{ID: invoiceID, InvoiceStatus: merchant.StatusPending}, nil
}

func TestHandle(t *testing.T) {
	c := &recordingChecker{}
	w := New(c)

	w.Handle(&natsbus.CheckRequest{InvoiceID: 42, Source: "callback"})
	w.Handle(&natsbus.CheckRequest{})
	w.Handle(nil)

	c.err = merchant.ErrNotFound
	w.Handle(&natsbus.CheckRequest{InvoiceID: 43})

	assert.Equal(t, []int64{42, 43}, c.ids)
}
