// Package worker reconciles invoices queued for a provider status check.
package worker

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/motforex/merchant"
	"github.com/motforex/merchant/natsbus"
)

const (
	queueGroup   = "merchant-checkers"
	checkTimeout = 30 * time.Second
)

type Checker interface {
	CheckInvoice(ctx context.Context, invoiceID int64) (*merchant.MerchantInvoice, error)
}

type Worker struct {
	checker Checker
	l       *zap.Logger
}

func New(checker Checker) *Worker {
	return &Worker{checker: checker, l: zap.L().Named("worker")}
}

// SubToNATS consumes check requests in a queue group so that every request
// is handled by one instance.
func (w *Worker) SubToNATS(ec *nats.EncodedConn) (*nats.Subscription, error) {
	sub, err := ec.QueueSubscribe(natsbus.SubjectInvoiceCheck, queueGroup, w.Handle)
	if err != nil {
		return nil, errors.Wrap(err, "Failed subscribe to check requests")
	}
	return sub, nil
}

func (w *Worker) Handle(m *natsbus.CheckRequest) {
	if m == nil || m.InvoiceID == 0 {
		w.l.Warn("Skip empty check request.")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	inv, err := w.checker.CheckInvoice(ctx, m.InvoiceID)
	if err != nil {
		w.l.Error("Failed check invoice.",
			zap.Int64("invoice_id", m.InvoiceID),
			zap.String("source", m.Source),
			zap.Error(err),
		)
		return
	}
	w.l.Debug("Invoice checked.",
		zap.Int64("invoice_id", inv.ID),
		zap.String("invoice_status", string(inv.InvoiceStatus)),
		zap.String("source", m.Source),
	)
}
