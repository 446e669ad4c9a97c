package engine

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motforex/merchant"
)

func TestRegistry(t *testing.T) {
	qpay := newFixture(merchant.MethodQPay)
	reg := NewRegistry(qpay.invoices, qpay.deposits)
	reg.Register(qpay.rec)

	card := NewReconciler(DefaultPolicy(merchant.MethodMerchant), newFakeAdapter(), Deps{
		Deposits: qpay.deposits,
		Invoices: qpay.invoices,
		Notifier: qpay.notifier,
		Now:      qpay.clock.Now,
	})
	reg.Register(card)

	assert.Equal(t, []merchant.MerchantMethod{merchant.MethodMerchant, merchant.MethodQPay}, reg.Methods())
	assert.Panics(t, func() { reg.Register(card) })

	_, err := reg.Get(merchant.MethodCoinsBuy)
	assert.Equal(t, merchant.ErrNotSupported, err)
	_, err = reg.ObtainInvoice(context.Background(), merchant.MethodCoinsBuy, ObtainRequest{DepositID: 1})
	assert.Equal(t, merchant.ErrNotSupported, errors.Cause(err))

	qpay.putDeposit(42, "QPAY Transfer", "100")
	inv, err := reg.ObtainInvoice(context.Background(), merchant.MethodQPay, ObtainRequest{DepositID: 42})
	require.NoError(t, err)
	require.Equal(t, merchant.MethodQPay, inv.MerchantMethod)

	// checks dispatch on the method stored with the invoice
	qpay.adapter.setPaid(inv.ProviderID, "100")
	inv, err = reg.CheckInvoice(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, merchant.StatusExecuted, inv.InvoiceStatus)
	_, _, checks := qpay.adapter.counts()
	assert.Equal(t, 1, checks)

	got, err := reg.GetInvoice(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, merchant.StatusExecuted, got.ExecutionStatus)

	_, err = reg.RetryExecution(context.Background(), 42)
	assert.Equal(t, merchant.ErrInvalidRequest, errors.Cause(err))

	_, err = reg.CheckInvoice(context.Background(), 7)
	assert.Equal(t, merchant.ErrNotFound, errors.Cause(err))
}

func TestRegistryObtainWithOtherMethod(t *testing.T) {
	f := newFixture(merchant.MethodQPay)
	f.putDeposit(42, "QPAY card", "100")
	f.putPending(42, "prov-0", "100", 5, f.clock.Now().Add(time.Minute))

	card := NewReconciler(DefaultPolicy(merchant.MethodMerchant), newFakeAdapter(), Deps{
		Deposits: f.deposits,
		Invoices: f.invoices,
		Notifier: f.notifier,
		Now:      f.clock.Now,
	})
	_, err := card.ObtainInvoice(context.Background(), ObtainRequest{DepositID: 42})
	assert.Equal(t, merchant.ErrInvalidRequest, errors.Cause(err))
}

func TestRegistryInvoiceOwnedBy(t *testing.T) {
	f := newFixture(merchant.MethodQPay)
	reg := NewRegistry(f.invoices, f.deposits)
	f.putDeposit(42, "QPAY", "100")
	f.putPending(42, "prov-0", "100", 5, f.clock.Now().Add(time.Minute))

	ok, err := reg.InvoiceOwnedBy(context.Background(), 42, " A@B.com")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = reg.InvoiceOwnedBy(context.Background(), 42, "other@b.com")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = reg.InvoiceOwnedBy(context.Background(), 42, "")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = reg.InvoiceOwnedBy(context.Background(), 7, "a@b.com")
	assert.Equal(t, merchant.ErrNotFound, errors.Cause(err))

	// invoice without its deposit
	f.putPending(8, "prov-1", "100", 5, f.clock.Now().Add(time.Minute))
	_, err = reg.InvoiceOwnedBy(context.Background(), 8, "a@b.com")
	assert.Equal(t, merchant.ErrNotFound, errors.Cause(err))
}
