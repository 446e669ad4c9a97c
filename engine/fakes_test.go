package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/motforex/merchant"
	"github.com/motforex/merchant/provider"
	"github.com/motforex/merchant/store/memstore"
)

type fakeAdapter struct {
	mu           sync.Mutex
	seq          int
	created      []provider.CreateInvoiceRequest
	cancelled    []string
	checks       int
	status       map[string]*provider.PaymentStatus
	checkErr     error
	createErr    error
	beforeCreate func()
	// byReference issues the reference as provider id and rejects a reused
	// one, the way Golomt treats transactionId
	byReference bool
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{status: map[string]*provider.PaymentStatus{}}
}

func (a *fakeAdapter) Name() provider.Provider { return "fake" }

func (a *fakeAdapter) CreateInvoice(ctx context.Context, req provider.CreateInvoiceRequest) (*provider.InvoiceHandle, error) {
	if a.beforeCreate != nil {
		a.beforeCreate()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.createErr != nil {
		return nil, a.createErr
	}
	a.seq++
	id := fmt.Sprintf("prov-%d", a.seq)
	if a.byReference {
		id = req.ReferenceID
		for _, c := range a.created {
			if c.ReferenceID == id {
				return nil, errors.Wrap(merchant.ErrProviderRejected, "duplicate transactionId")
			}
		}
	}
	a.created = append(a.created, req)
	return &provider.InvoiceHandle{
		ProviderID: id,
		Display:    merchant.Metadata{"qrText": "qr-" + id},
		Info:       merchant.Metadata{"ref": req.ReferenceID},
	}, nil
}

func (a *fakeAdapter) CheckStatus(ctx context.Context, providerID string) (*provider.PaymentStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checks++
	if a.checkErr != nil {
		return nil, a.checkErr
	}
	if st, ok := a.status[providerID]; ok {
		return st, nil
	}
	return &provider.PaymentStatus{RawStatus: "PENDING"}, nil
}

func (a *fakeAdapter) Cancel(ctx context.Context, providerID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelled = append(a.cancelled, providerID)
	return nil
}

func (a *fakeAdapter) setPaid(providerID string, amount string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := &provider.PaymentStatus{Paid: true, RawStatus: "PAID"}
	if amount != "" {
		d := decimal.RequireFromString(amount)
		st.PaidAmount = &d
	}
	a.status[providerID] = st
}

func (a *fakeAdapter) setFailed(providerID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status[providerID] = &provider.PaymentStatus{Failed: true, RawStatus: "DECLINED"}
}

func (a *fakeAdapter) counts() (created, cancelled, checks int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.created), len(a.cancelled), a.checks
}

type fakeNotifier struct {
	mu       sync.Mutex
	executed []int64
	expired  []int64
	execErr  error
}

func (n *fakeNotifier) Execute(ctx context.Context, depositID int64, reason string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.executed = append(n.executed, depositID)
	return n.execErr
}

func (n *fakeNotifier) MarkExpired(ctx context.Context, depositID int64, reason string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.expired = append(n.expired, depositID)
	return nil
}

func (n *fakeNotifier) counts() (executed, expired int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.executed), len(n.expired)
}

type recordingPublisher struct {
	mu      sync.Mutex
	updates []merchant.MerchantInvoice
}

func (p *recordingPublisher) PublishInvoice(ctx context.Context, inv *merchant.MerchantInvoice) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, *inv)
	return nil
}

// flakyInvoices fails the n-th ConditionalUpdate with err.
type flakyInvoices struct {
	*memstore.Invoices
	mu      sync.Mutex
	updates int
	failAt  int
	err     error
}

func (s *flakyInvoices) ConditionalUpdate(ctx context.Context, inv *merchant.MerchantInvoice, conds ...merchant.Precondition) error {
	s.mu.Lock()
	s.updates++
	fail := s.updates == s.failAt
	s.mu.Unlock()
	if fail {
		return s.err
	}
	return s.Invoices.ConditionalUpdate(ctx, inv, conds...)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	adapter   *fakeAdapter
	notifier  *fakeNotifier
	publisher *recordingPublisher
	deposits  *memstore.DepositRequests
	invoices  *memstore.Invoices
	clock     *clock
	rec       *Reconciler
}

func (f *fixture) deps(invoices merchant.MerchantInvoiceStore) Deps {
	return Deps{
		Deposits:  f.deposits,
		Invoices:  invoices,
		Notifier:  f.notifier,
		Publisher: f.publisher,
		Metrics:   NewMetrics(),
		Now:       f.clock.Now,
	}
}

// withInvoices rebuilds the reconciler over s, which should wrap f.invoices.
func (f *fixture) withInvoices(s merchant.MerchantInvoiceStore) {
	f.rec = NewReconciler(f.rec.Policy(), f.adapter, f.deps(s))
}

func newFixture(method merchant.MerchantMethod) *fixture {
	f := &fixture{
		adapter:   newFakeAdapter(),
		notifier:  &fakeNotifier{},
		publisher: &recordingPublisher{},
		deposits:  memstore.NewDepositRequests(),
		invoices:  memstore.NewInvoices(),
		clock:     &clock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
	}
	f.rec = NewReconciler(DefaultPolicy(method), f.adapter, f.deps(f.invoices))
	return f
}

func (f *fixture) putDeposit(id int64, title, amount string) {
	f.deposits.Put(merchant.DepositRequest{
		ID:                  id,
		UserID:              7,
		Email:               "a@b.com",
		Status:              merchant.DepositPending,
		PaymentMethodTitle:  title,
		Amount:              decimal.RequireFromString(amount),
		Currency:            "MNT",
		ConversionRate:      decimal.RequireFromString("3450"),
		AmountInUsd:         decimal.RequireFromString(amount).Div(decimal.RequireFromString("3450")).Round(2),
		TransactionCurrency: "MNT",
	})
}

// putPending stores a pending invoice as if it had been created earlier.
func (f *fixture) putPending(id int64, providerID, amount string, regenerations int, expiry time.Time) {
	f.invoices.Put(&merchant.MerchantInvoice{
		ID:                  id,
		ReferenceID:         fmt.Sprint(id),
		ReferenceType:       merchant.ReferenceDeposit,
		MerchantMethod:      f.rec.Method(),
		ProviderID:          providerID,
		ProviderReference:   fmt.Sprint(id),
		RegenerationCount:   regenerations,
		ExpiryDate:          millis(expiry),
		TransactionAmount:   decimal.RequireFromString(amount),
		TransactionCurrency: "MNT",
		InvoiceStatus:       merchant.StatusPending,
		ExecutionStatus:     merchant.StatusPending,
		Metadata:            merchant.Metadata{},
	})
}
