package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/reform.v1"
)

// OrderJournal records provider invoices and the raw statuses seen for them.
type OrderJournal interface {
	RecordOrder(ctx context.Context, p Provider, invoiceID int64, providerID, rawStatus string) error
	RecordStatus(ctx context.Context, p Provider, providerID, rawStatus string) error
}

// Store is the reform backed OrderJournal.
type Store struct {
	DB *reform.DB
}

const (
	prefixOrderId = "merchant"
)

func (s *Store) RecordOrder(ctx context.Context, p Provider, invoiceID int64, providerID, rawStatus string) error {
	err := s.DB.Insert(&ProviderOrder{
		OrderNumber:       formatOrderID(p, providerID),
		PaymentSystemName: p,
		InvoiceID:         invoiceID,
		RawOrderStatus:    rawStatus,
	})
	if err != nil {
		return errors.Wrap(err, "Failed insert provider order")
	}
	return nil
}

func (s *Store) GetByOrderID(ctx context.Context, p Provider, providerID string) (*ProviderOrder, error) {
	so := &ProviderOrder{OrderNumber: formatOrderID(p, providerID)}
	err := s.DB.Reload(so)
	if err != nil {
		if err == reform.ErrNoRows {
			return nil, err
		}
		return nil, errors.Wrap(err, "Failed get provider order")
	}
	return so, nil
}

// RecordStatus saves rawStatus when it differs from the last one recorded.
func (s *Store) RecordStatus(ctx context.Context, p Provider, providerID, rawStatus string) error {
	o, err := s.GetByOrderID(ctx, p, providerID)
	if err != nil {
		return err
	}
	if o.RawOrderStatus == rawStatus {
		return nil
	}
	o.RawOrderStatus = rawStatus
	o.ExtUpdatedAt = time.Now()
	return s.DB.Save(o)
}

func (s *Store) ListByInvoice(ctx context.Context, invoiceID int64) ([]*ProviderOrder, error) {
	rows, err := s.DB.SelectAllFrom(ProviderOrderTable, "WHERE invoice_id = $1 ORDER BY created_at", invoiceID)
	if err != nil {
		return nil, errors.Wrap(err, "Failed list provider orders")
	}
	res := make([]*ProviderOrder, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.(*ProviderOrder))
	}
	return res, nil
}

//go:generate reform

//reform:merchant.provider_orders
type ProviderOrder struct {
	OrderNumber       string    `reform:"order_number,pk"`
	PaymentSystemName Provider  `reform:"payment_system_name"`
	InvoiceID         int64     `reform:"invoice_id"`
	RawOrderStatus    string    `reform:"raw_order_status"`
	CreatedAt         time.Time `reform:"created_at"`
	UpdatedAt         time.Time `reform:"updated_at"`
	ExtUpdatedAt      time.Time `reform:"ext_updated_at"`
}

func (o *ProviderOrder) BeforeInsert() error {
	o.UpdatedAt = time.Now()
	o.CreatedAt = time.Now()
	o.ExtUpdatedAt = o.CreatedAt
	return nil
}

func (o *ProviderOrder) BeforeUpdate() error {
	o.UpdatedAt = time.Now()
	return nil
}

func formatOrderID(p Provider, extOrderID string) string {
	return prefixOrderId + fmt.Sprintf("-%s-%s", p, extOrderID)
}

// NopJournal discards everything.
type NopJournal struct{}

func (NopJournal) RecordOrder(ctx context.Context, p Provider, invoiceID int64, providerID, rawStatus string) error {
	return nil
}

func (NopJournal) RecordStatus(ctx context.Context, p Provider, providerID, rawStatus string) error {
	return nil
}

// check interfaces
var (
	_ OrderJournal = (*Store)(nil)
	_ OrderJournal = NopJournal{}
)
