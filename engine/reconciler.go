package engine

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/motforex/merchant"
	"github.com/motforex/merchant/provider"
)

const (
	opObtain = "obtain"
	opCheck  = "check"
	opRetry  = "retry_execution"

	// finalizeTimeout bounds the writes that follow a won transition.
	finalizeTimeout = 30 * time.Second
	// staleExecutionAfter is how long an EXECUTED invoice may keep a PENDING
	// execution before an operator may take it over.
	staleExecutionAfter = 2 * finalizeTimeout

	rejectedReloadAttempts = 5
	rejectedReloadInterval = 100 * time.Millisecond
)

// InvoicePublisher announces persisted invoice changes.
type InvoicePublisher interface {
	PublishInvoice(ctx context.Context, inv *merchant.MerchantInvoice) error
}

type nopPublisher struct{}

func (nopPublisher) PublishInvoice(ctx context.Context, inv *merchant.MerchantInvoice) error {
	return nil
}

// Deps are the collaborators shared by every Reconciler.
type Deps struct {
	Deposits  merchant.DepositRequestGateway
	Invoices  merchant.MerchantInvoiceStore
	Notifier  merchant.DepositExecutionNotifier
	Journal   provider.OrderJournal
	Publisher InvoicePublisher
	Metrics   *Metrics
	Now       func() time.Time
}

// Reconciler drives the invoices of one merchant method through their
// lifecycle. Every mutation is a conditional write; the caller that loses a
// race returns the stored record instead of retrying.
type Reconciler struct {
	policy    Policy
	adapter   provider.Adapter
	deposits  merchant.DepositRequestGateway
	invoices  merchant.MerchantInvoiceStore
	notifier  merchant.DepositExecutionNotifier
	journal   provider.OrderJournal
	publisher InvoicePublisher
	metrics   *Metrics
	now       func() time.Time
	l         *zap.Logger
}

func NewReconciler(policy Policy, adapter provider.Adapter, deps Deps) *Reconciler {
	r := &Reconciler{
		policy:    policy,
		adapter:   adapter,
		deposits:  deps.Deposits,
		invoices:  deps.Invoices,
		notifier:  deps.Notifier,
		journal:   deps.Journal,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		now:       deps.Now,
		l:         zap.L().Named("reconciler").With(zap.String("method", string(policy.Method))),
	}
	if r.journal == nil {
		r.journal = provider.NopJournal{}
	}
	if r.publisher == nil {
		r.publisher = nopPublisher{}
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

func (r *Reconciler) Method() merchant.MerchantMethod {
	return r.policy.Method
}

func (r *Reconciler) Policy() Policy {
	return r.policy
}

type ObtainRequest struct {
	DepositID  int64
	PayerEmail string
	Locale     string
}

// ObtainInvoice returns the invoice the payer should pay for a deposit,
// creating, regenerating or expiring the provider invoice as needed.
func (r *Reconciler) ObtainInvoice(ctx context.Context, req ObtainRequest) (*merchant.MerchantInvoice, error) {
	ctx, span := trace.StartSpan(ctx, "merchant/engine.ObtainInvoice")
	defer span.End()
	span.AddAttributes(
		trace.Int64Attribute("deposit_id", req.DepositID),
		trace.StringAttribute("method", string(r.policy.Method)),
	)

	var (
		dep *merchant.DepositRequest
		inv *merchant.MerchantInvoice
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d, err := r.deposits.GetByID(gctx, req.DepositID)
		if err != nil {
			return errors.Wrap(err, "Failed get deposit request")
		}
		dep = d
		return nil
	})
	g.Go(func() error {
		i, err := r.invoices.GetByID(gctx, req.DepositID)
		if err != nil {
			if errors.Cause(err) == merchant.ErrNotFound {
				return nil
			}
			return errors.Wrap(err, "Failed get merchant invoice")
		}
		inv = i
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := r.validate(dep, inv, req); err != nil {
		return nil, err
	}

	if inv == nil {
		return r.create(ctx, dep, req)
	}
	if !inv.Pending() || !inv.Expired(r.now()) {
		r.metrics.inc(r.policy.Method, opObtain, outcomeReturned)
		return inv, nil
	}
	if inv.RegenerationCount <= 0 {
		return r.expire(ctx, inv)
	}
	return r.regenerate(ctx, dep, inv, req)
}

func (r *Reconciler) validate(dep *merchant.DepositRequest, inv *merchant.MerchantInvoice, req ObtainRequest) error {
	if !dep.Eligible() {
		return merchant.InvalidRequest("deposit request is " + string(dep.Status))
	}
	if req.PayerEmail != "" && !strings.EqualFold(strings.TrimSpace(dep.Email), strings.TrimSpace(req.PayerEmail)) {
		return merchant.InvalidRequest("deposit request belongs to another user")
	}
	if !r.policy.matchesTitle(dep.PaymentMethodTitle) {
		return merchant.InvalidRequest("payment method " + dep.PaymentMethodTitle + " is not " + r.policy.PaymentMethodKeyword)
	}
	if inv != nil && !inv.MerchantMethod.Match(r.policy.Method) {
		return merchant.InvalidRequest("invoice was issued with " + string(inv.MerchantMethod))
	}
	return nil
}

func (r *Reconciler) invoiceRequest(dep *merchant.DepositRequest, ref string, locale string) provider.CreateInvoiceRequest {
	return provider.CreateInvoiceRequest{
		Amount:      dep.Amount,
		Currency:    transactionCurrency(dep),
		ReferenceID: ref,
		CallbackURL: r.policy.callbackURL(dep.ID),
		Description: r.policy.description(dep.ID),
		Email:       dep.Email,
		Locale:      locale,
		TTL:         r.policy.TTL,
	}
}

func (r *Reconciler) create(ctx context.Context, dep *merchant.DepositRequest, req ObtainRequest) (*merchant.MerchantInvoice, error) {
	ref := strconv.FormatInt(dep.ID, 10)
	h, err := r.adapter.CreateInvoice(ctx, r.invoiceRequest(dep, ref, req.Locale))
	if err != nil {
		// processors keyed on the reference refuse the second of two
		// concurrent creates
		if cur, ok := r.createdConcurrently(ctx, dep.ID, "", err); ok {
			return cur, nil
		}
		r.metrics.inc(r.policy.Method, opObtain, outcomeProviderErr)
		return nil, err
	}

	now := r.now()
	inv := &merchant.MerchantInvoice{
		ID:                  dep.ID,
		ReferenceID:         ref,
		ReferenceType:       merchant.ReferenceDeposit,
		MerchantMethod:      r.policy.Method,
		ProviderID:          h.ProviderID,
		ProviderReference:   ref,
		ProviderInfo:        h.Info.Merge(nil),
		RegenerationCount:   r.policy.RegenerationCeiling,
		ExpiryDate:          millis(now.Add(r.policy.TTL)),
		ConversionRate:      dep.ConversionRate,
		TransactionAmount:   dep.Amount,
		TransactionCurrency: transactionCurrency(dep),
		AmountInUsd:         dep.AmountInUsd,
		InvoiceStatus:       merchant.StatusPending,
		ExecutionStatus:     merchant.StatusPending,
		Metadata:            h.Display.Merge(nil),
		PostDate:            now,
		CreatedAt:           now,
	}
	if err := r.invoices.Create(ctx, inv); err != nil {
		if errors.Cause(err) != merchant.ErrAlreadyExists {
			return nil, errors.Wrap(err, "Failed create merchant invoice")
		}
		// a concurrent call created the invoice first
		r.metrics.inc(r.policy.Method, opObtain, outcomeLostRace)
		cur, err := r.invoices.GetByID(ctx, dep.ID)
		if err != nil {
			return nil, err
		}
		if cur.ProviderID != h.ProviderID {
			r.cancelQuietly(ctx, h.ProviderID)
		}
		return cur, nil
	}

	r.recordOrder(ctx, inv)
	r.publish(ctx, inv)
	r.metrics.inc(r.policy.Method, opObtain, outcomeCreated)
	r.l.Info("invoice created", zap.Int64("invoice_id", inv.ID), zap.String("provider_id", inv.ProviderID))
	return inv, nil
}

// createdConcurrently reports whether a processor rejection on create is
// explained by another call storing an invoice whose provider id differs from
// prevProviderID, and returns that invoice. The winner may still be
// persisting, so the record is polled briefly.
func (r *Reconciler) createdConcurrently(ctx context.Context, id int64, prevProviderID string, createErr error) (*merchant.MerchantInvoice, bool) {
	if errors.Cause(createErr) != merchant.ErrProviderRejected {
		return nil, false
	}
	for attempt := 1; ; attempt++ {
		cur, err := r.invoices.GetByID(ctx, id)
		if err == nil && cur.ProviderID != prevProviderID {
			r.metrics.inc(r.policy.Method, opObtain, outcomeLostRace)
			r.l.Info("create rejected, invoice stored concurrently",
				zap.Int64("invoice_id", id),
				zap.String("provider_id", cur.ProviderID),
				zap.Error(createErr),
			)
			return cur, true
		}
		if err != nil && errors.Cause(err) != merchant.ErrNotFound {
			return nil, false
		}
		if attempt == rejectedReloadAttempts {
			return nil, false
		}
		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(rejectedReloadInterval):
		}
	}
}

func (r *Reconciler) expire(ctx context.Context, inv *merchant.MerchantInvoice) (*merchant.MerchantInvoice, error) {
	next := inv.Clone()
	next.InvoiceStatus = merchant.StatusExpired
	next.ExecutionStatus = merchant.StatusExpired
	next.Message = "invoice expired"

	won, cur, err := r.transition(ctx, inv, next,
		merchant.InvoiceStatusIs(merchant.StatusPending),
		merchant.ProviderIDIs(inv.ProviderID),
	)
	if err != nil || !won {
		return cur, err
	}

	ctx, cancel := detach(ctx)
	defer cancel()
	if err := r.notifier.MarkExpired(ctx, inv.ID, "merchant invoice expired"); err != nil {
		r.l.Error("mark deposit expired", zap.Int64("invoice_id", inv.ID), zap.Error(err))
	}
	r.metrics.inc(r.policy.Method, opObtain, outcomeExpired)
	return next, nil
}

func (r *Reconciler) regenerate(ctx context.Context, dep *merchant.DepositRequest, inv *merchant.MerchantInvoice, req ObtainRequest) (*merchant.MerchantInvoice, error) {
	st, err := r.adapter.CheckStatus(ctx, inv.ProviderID)
	switch {
	case err != nil:
		r.l.Warn("check expired invoice", zap.Int64("invoice_id", inv.ID), zap.Error(err))
	case r.isPaid(inv, st):
		return r.finalizeSuccess(ctx, inv, opObtain)
	}

	r.cancelQuietly(ctx, inv.ProviderID)

	now := r.now()
	ref := strconv.FormatInt(inv.ID, 10) + strconv.FormatInt(millis(now), 10)
	h, err := r.adapter.CreateInvoice(ctx, r.invoiceRequest(dep, ref, req.Locale))
	if err != nil {
		if cur, ok := r.createdConcurrently(ctx, inv.ID, inv.ProviderID, err); ok {
			return cur, nil
		}
		r.metrics.inc(r.policy.Method, opObtain, outcomeProviderErr)
		return nil, err
	}

	next := inv.Clone()
	next.ProviderID = h.ProviderID
	next.ProviderReference = ref
	next.ProviderInfo = inv.ProviderInfo.Merge(h.Info)
	next.Metadata = h.Display.Merge(nil)
	next.RegenerationCount = inv.RegenerationCount - 1
	next.ExpiryDate = millis(now.Add(r.policy.TTL))
	next.Message = ""

	won, cur, err := r.transition(ctx, inv, next,
		merchant.InvoiceStatusIs(merchant.StatusPending),
		merchant.ProviderIDIs(inv.ProviderID),
	)
	if err != nil || !won {
		if cur == nil || cur.ProviderID != h.ProviderID {
			r.cancelQuietly(ctx, h.ProviderID)
		}
		return cur, err
	}
	r.recordOrder(ctx, next)
	r.metrics.inc(r.policy.Method, opObtain, outcomeRegenerated)
	r.l.Info("invoice regenerated",
		zap.Int64("invoice_id", next.ID),
		zap.String("provider_id", next.ProviderID),
		zap.Int("regeneration_count", next.RegenerationCount),
	)
	return next, nil
}

// CheckInvoice reconciles a pending invoice with its provider. Provider errors
// are logged and leave the invoice unchanged.
func (r *Reconciler) CheckInvoice(ctx context.Context, invoiceID int64) (*merchant.MerchantInvoice, error) {
	inv, err := r.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	return r.check(ctx, inv)
}

func (r *Reconciler) check(ctx context.Context, inv *merchant.MerchantInvoice) (*merchant.MerchantInvoice, error) {
	ctx, span := trace.StartSpan(ctx, "merchant/engine.CheckInvoice")
	defer span.End()
	span.AddAttributes(
		trace.Int64Attribute("invoice_id", inv.ID),
		trace.StringAttribute("method", string(r.policy.Method)),
	)

	if !inv.Pending() {
		r.metrics.inc(r.policy.Method, opCheck, outcomeReturned)
		return inv, nil
	}

	st, err := r.adapter.CheckStatus(ctx, inv.ProviderID)
	if err != nil {
		r.l.Warn("check status: provider call", zap.Int64("invoice_id", inv.ID), zap.Error(err))
		r.metrics.inc(r.policy.Method, opCheck, outcomeProviderErr)
		return inv, nil
	}
	if err := r.journal.RecordStatus(ctx, r.adapter.Name(), inv.ProviderID, st.RawStatus); err != nil {
		r.l.Debug("record provider status", zap.Int64("invoice_id", inv.ID), zap.Error(err))
	}

	switch {
	case r.isPaid(inv, st):
		return r.finalizeSuccess(ctx, inv, opCheck)
	case st.Failed:
		return r.finalizeFailure(ctx, inv, st)
	}
	r.metrics.inc(r.policy.Method, opCheck, outcomeUnchanged)
	return inv, nil
}

// isPaid applies the amount tolerance when the provider reports a paid amount.
func (r *Reconciler) isPaid(inv *merchant.MerchantInvoice, st *provider.PaymentStatus) bool {
	if st == nil || !st.Paid {
		return false
	}
	if st.PaidAmount == nil {
		return true
	}
	if provider.AmountMatches(inv.TransactionAmount, *st.PaidAmount) {
		return true
	}
	r.l.Warn("paid amount mismatch",
		zap.Int64("invoice_id", inv.ID),
		zap.String("expected", inv.TransactionAmount.String()),
		zap.String("paid", st.PaidAmount.String()),
	)
	return false
}

// finalizeSuccess marks the invoice executed and triggers the deposit. Only
// the caller whose PENDING -> EXECUTED write succeeds calls the notifier.
func (r *Reconciler) finalizeSuccess(ctx context.Context, inv *merchant.MerchantInvoice, op string) (*merchant.MerchantInvoice, error) {
	paid := inv.Clone()
	paid.InvoiceStatus = merchant.StatusExecuted
	paid.Message = ""

	won, cur, err := r.transition(ctx, inv, paid, merchant.InvoiceStatusIs(merchant.StatusPending))
	if err != nil || !won {
		return cur, err
	}
	return r.execute(ctx, paid, op)
}

// execute calls the notifier for an invoice whose execution status this
// caller owns and persists the result.
func (r *Reconciler) execute(ctx context.Context, inv *merchant.MerchantInvoice, op string) (*merchant.MerchantInvoice, error) {
	ctx, cancel := detach(ctx)
	defer cancel()

	done := inv.Clone()
	if err := r.notifier.Execute(ctx, inv.ID, "merchant invoice paid"); err != nil {
		r.l.Error("execute deposit", zap.Int64("invoice_id", inv.ID), zap.Error(err))
		done.ExecutionStatus = merchant.StatusFailed
		done.Message = "deposit execution failed: " + err.Error()
		r.metrics.inc(r.policy.Method, op, outcomeExecFailed)
	} else {
		done.ExecutionStatus = merchant.StatusExecuted
		done.Message = ""
		r.metrics.inc(r.policy.Method, op, outcomeExecuted)
	}

	_, cur, err := r.transition(ctx, inv, done, merchant.ExecutionStatusIs(merchant.StatusPending))
	if err != nil {
		r.l.Error("persist execution status",
			zap.Int64("invoice_id", inv.ID),
			zap.String("execution_status", string(done.ExecutionStatus)),
			zap.Error(err),
		)
		return nil, err
	}
	return cur, nil
}

func (r *Reconciler) finalizeFailure(ctx context.Context, inv *merchant.MerchantInvoice, st *provider.PaymentStatus) (*merchant.MerchantInvoice, error) {
	next := inv.Clone()
	next.InvoiceStatus = merchant.StatusFailed
	next.ExecutionStatus = merchant.StatusFailed
	next.Message = "payment failed: " + st.RawStatus

	won, cur, err := r.transition(ctx, inv, next, merchant.InvoiceStatusIs(merchant.StatusPending))
	if err == nil && won {
		r.metrics.inc(r.policy.Method, opCheck, outcomeFailed)
	}
	return cur, err
}

// RetryExecution re-runs the deposit execution of a paid invoice whose
// execution failed, or whose execution result was never persisted.
func (r *Reconciler) RetryExecution(ctx context.Context, invoiceID int64) (*merchant.MerchantInvoice, error) {
	inv, err := r.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if !inv.InvoiceStatus.Match(merchant.StatusExecuted) {
		return nil, merchant.InvalidRequest("execution can be retried only for paid invoices")
	}

	switch {
	case inv.ExecutionStatus.Match(merchant.StatusFailed):
	case inv.ExecutionStatus.Match(merchant.StatusPending):
		if age := r.now().Sub(inv.UpdatedAt); age < staleExecutionAfter {
			return nil, merchant.InvalidRequest("deposit execution is in progress")
		}
		// the invocation that won the payment died before persisting the result
		interrupted := inv.Clone()
		interrupted.ExecutionStatus = merchant.StatusFailed
		interrupted.Message = "deposit execution interrupted"
		won, cur, err := r.transition(ctx, inv, interrupted,
			merchant.InvoiceStatusIs(merchant.StatusExecuted),
			merchant.ExecutionStatusIs(merchant.StatusPending),
			merchant.UpdatedAtIs(inv.UpdatedAt),
		)
		if err != nil || !won {
			return cur, err
		}
		r.l.Warn("interrupted execution taken over", zap.Int64("invoice_id", inv.ID), zap.Time("updated_at", inv.UpdatedAt))
		inv = interrupted
	default:
		return nil, merchant.InvalidRequest("deposit execution is " + string(inv.ExecutionStatus))
	}

	claimed := inv.Clone()
	claimed.ExecutionStatus = merchant.StatusPending
	won, cur, err := r.transition(ctx, inv, claimed,
		merchant.InvoiceStatusIs(merchant.StatusExecuted),
		merchant.ExecutionStatusIs(merchant.StatusFailed),
	)
	if err != nil || !won {
		return cur, err
	}
	return r.execute(ctx, claimed, opRetry)
}

// transition conditionally writes next. It reports whether this caller won;
// on a lost race it returns the stored record.
func (r *Reconciler) transition(ctx context.Context, prev, next *merchant.MerchantInvoice, conds ...merchant.Precondition) (bool, *merchant.MerchantInvoice, error) {
	if !transitionAllowed(prev, next) {
		return false, nil, errors.Errorf("transition %s/%s -> %s/%s is not allowed",
			prev.InvoiceStatus, prev.ExecutionStatus, next.InvoiceStatus, next.ExecutionStatus)
	}
	err := r.invoices.ConditionalUpdate(ctx, next, conds...)
	if err == nil {
		r.publish(ctx, next)
		return true, next, nil
	}
	if errors.Cause(err) != merchant.ErrPreconditionFailed {
		return false, nil, errors.Wrap(err, "Failed update merchant invoice")
	}
	r.l.Info("lost race", zap.Int64("invoice_id", prev.ID), zap.Any("preconditions", conds))
	r.metrics.inc(r.policy.Method, "write", outcomeLostRace)
	cur, err := r.invoices.GetByID(ctx, prev.ID)
	if err != nil {
		return false, nil, errors.Wrap(err, "Failed reload merchant invoice")
	}
	return false, cur, nil
}

func (r *Reconciler) cancelQuietly(ctx context.Context, providerID string) {
	if err := r.adapter.Cancel(ctx, providerID); err != nil && errors.Cause(err) != merchant.ErrNotSupported {
		r.l.Warn("cancel provider invoice", zap.String("provider_id", providerID), zap.Error(err))
	}
}

func (r *Reconciler) recordOrder(ctx context.Context, inv *merchant.MerchantInvoice) {
	if err := r.journal.RecordOrder(ctx, r.adapter.Name(), inv.ID, inv.ProviderID, string(inv.InvoiceStatus)); err != nil {
		r.l.Warn("record provider order", zap.Int64("invoice_id", inv.ID), zap.Error(err))
	}
}

func (r *Reconciler) publish(ctx context.Context, inv *merchant.MerchantInvoice) {
	if err := r.publisher.PublishInvoice(ctx, inv); err != nil {
		r.l.Warn("publish invoice update", zap.Int64("invoice_id", inv.ID), zap.Error(err))
	}
}

func transactionCurrency(dep *merchant.DepositRequest) string {
	if dep.TransactionCurrency != "" {
		return dep.TransactionCurrency
	}
	return dep.Currency
}

func millis(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}

// detach keeps the post transition side effects running when the caller goes away.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
}
