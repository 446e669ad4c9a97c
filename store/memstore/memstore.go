// Package memstore keeps deposit requests and merchant invoices in process.
// It is used by tests and by the single instance development setup.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/motforex/merchant"
)

type Invoices struct {
	mu   sync.Mutex
	rows map[int64]*merchant.MerchantInvoice
}

func NewInvoices() *Invoices {
	return &Invoices{rows: map[int64]*merchant.MerchantInvoice{}}
}

func (s *Invoices) GetByID(ctx context.Context, id int64) (*merchant.MerchantInvoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.rows[id]
	if !ok {
		return nil, merchant.ErrNotFound
	}
	return inv.Clone(), nil
}

func (s *Invoices) Create(ctx context.Context, inv *merchant.MerchantInvoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[inv.ID]; ok {
		return merchant.ErrAlreadyExists
	}
	inv.BeforeInsert()
	s.rows[inv.ID] = inv.Clone()
	return nil
}

func (s *Invoices) ConditionalUpdate(ctx context.Context, inv *merchant.MerchantInvoice, conds ...merchant.Precondition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.rows[inv.ID]
	if !ok {
		return merchant.ErrNotFound
	}
	for _, c := range conds {
		if !c.Holds(cur) {
			return merchant.ErrPreconditionFailed
		}
	}
	inv.BeforeUpdate()
	s.rows[inv.ID] = inv.Clone()
	return nil
}

// Put stores inv unconditionally.
func (s *Invoices) Put(inv *merchant.MerchantInvoice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[inv.ID] = inv.Clone()
}

type DepositRequests struct {
	mu   sync.RWMutex
	rows map[int64]merchant.DepositRequest
}

func NewDepositRequests() *DepositRequests {
	return &DepositRequests{rows: map[int64]merchant.DepositRequest{}}
}

func (s *DepositRequests) GetByID(ctx context.Context, id int64) (*merchant.DepositRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.rows[id]
	if !ok {
		return nil, merchant.ErrNotFound
	}
	return &d, nil
}

func (s *DepositRequests) Put(d merchant.DepositRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	s.rows[d.ID] = d
}

// SetStatus mimics the deposit service moving a request along.
func (s *DepositRequests) SetStatus(id int64, status merchant.DepositStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.rows[id]; ok {
		d.Status = status
		s.rows[id] = d
	}
}

// check interfaces
var (
	_ merchant.MerchantInvoiceStore  = (*Invoices)(nil)
	_ merchant.DepositRequestGateway = (*DepositRequests)(nil)
)
