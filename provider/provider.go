package provider

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/motforex/merchant"
)

type Provider string

func (p Provider) Match(in Provider) bool {
	return p == in
}

const (
	UNKNOWN_PROVIDER Provider = ""
	QPAY             Provider = "qpay"
	GOLOMT           Provider = "golomt"
	BONUM            Provider = "bonum"
	COINSBUY         Provider = "coinsbuy"
)

// AmountTolerance absorbs provider side rounding of the paid amount.
var AmountTolerance = decimal.NewFromInt(1)

// AmountMatches reports whether paid is within AmountTolerance of expected.
func AmountMatches(expected, paid decimal.Decimal) bool {
	return expected.Sub(paid).Abs().LessThanOrEqual(AmountTolerance)
}

type CreateInvoiceRequest struct {
	Amount      decimal.Decimal
	Currency    string
	ReferenceID string
	CallbackURL string
	Description string
	Email       string
	Locale      string
	TTL         time.Duration
}

type InvoiceHandle struct {
	ProviderID string
	// Display is shown to the payer: QR payloads, deep links, redirect urls.
	Display merchant.Metadata
	// Info is kept on the invoice for operators.
	Info merchant.Metadata
}

type PaymentStatus struct {
	Paid       bool
	Failed     bool
	PaidAmount *decimal.Decimal
	RawStatus  string
	Raw        interface{}
}

// Adapter is implemented by every payment processor integration.
//
// CreateInvoice and CheckStatus return merchant.ErrProviderUnavailable on
// network or auth failures and merchant.ErrProviderRejected when the processor
// refuses the request. CheckStatus never mutates provider state.
// Cancel returns merchant.ErrNotSupported when the processor has no cancel call.
type Adapter interface {
	Name() Provider
	CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*InvoiceHandle, error)
	CheckStatus(ctx context.Context, providerID string) (*PaymentStatus, error)
	Cancel(ctx context.Context, providerID string) error
}
