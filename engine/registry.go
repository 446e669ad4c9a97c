package engine

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/motforex/merchant"
)

// Registry routes invoice operations to the Reconciler of a merchant method.
type Registry struct {
	mu          sync.RWMutex
	reconcilers map[merchant.MerchantMethod]*Reconciler
	invoices    merchant.MerchantInvoiceStore
	deposits    merchant.DepositRequestGateway
}

func NewRegistry(invoices merchant.MerchantInvoiceStore, deposits merchant.DepositRequestGateway) *Registry {
	return &Registry{
		reconcilers: make(map[merchant.MerchantMethod]*Reconciler),
		invoices:    invoices,
		deposits:    deposits,
	}
}

func (r *Registry) Register(rec *Reconciler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reconcilers[rec.Method()]; ok {
		panic("reconciler for method " + string(rec.Method()) + " is registered")
	}
	r.reconcilers[rec.Method()] = rec
}

// Get returns the reconciler of method or merchant.ErrNotSupported.
func (r *Registry) Get(method merchant.MerchantMethod) (*Reconciler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.reconcilers[method]
	if !ok {
		return nil, merchant.ErrNotSupported
	}
	return rec, nil
}

func (r *Registry) Methods() []merchant.MerchantMethod {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]merchant.MerchantMethod, 0, len(r.reconcilers))
	for m := range r.reconcilers {
		res = append(res, m)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

func (r *Registry) ObtainInvoice(ctx context.Context, method merchant.MerchantMethod, req ObtainRequest) (*merchant.MerchantInvoice, error) {
	rec, err := r.Get(method)
	if err != nil {
		return nil, err
	}
	return rec.ObtainInvoice(ctx, req)
}

// CheckInvoice dispatches on the method the invoice was issued with.
func (r *Registry) CheckInvoice(ctx context.Context, invoiceID int64) (*merchant.MerchantInvoice, error) {
	inv, err := r.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	rec, err := r.Get(inv.MerchantMethod)
	if err != nil {
		return nil, err
	}
	return rec.check(ctx, inv)
}

func (r *Registry) RetryExecution(ctx context.Context, invoiceID int64) (*merchant.MerchantInvoice, error) {
	inv, err := r.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	rec, err := r.Get(inv.MerchantMethod)
	if err != nil {
		return nil, err
	}
	return rec.RetryExecution(ctx, invoiceID)
}

func (r *Registry) GetInvoice(ctx context.Context, invoiceID int64) (*merchant.MerchantInvoice, error) {
	return r.invoices.GetByID(ctx, invoiceID)
}

// InvoiceOwnedBy reports whether the deposit paid by the invoice belongs to
// email. A missing invoice or deposit is merchant.ErrNotFound.
func (r *Registry) InvoiceOwnedBy(ctx context.Context, invoiceID int64, email string) (bool, error) {
	inv, err := r.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return false, err
	}
	dep, err := r.deposits.GetByID(ctx, inv.ID)
	if err != nil {
		return false, err
	}
	email = strings.TrimSpace(email)
	return email != "" && strings.EqualFold(strings.TrimSpace(dep.Email), email), nil
}
