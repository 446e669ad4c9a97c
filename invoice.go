package merchant

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type InvoiceStatus string

func (s InvoiceStatus) Match(in InvoiceStatus) bool {
	return s == in
}

// Statuses shared by invoiceStatus and executionStatus.
const (
	StatusInitial   InvoiceStatus = "INITIAL"
	StatusPending   InvoiceStatus = "PENDING"
	StatusExecuted  InvoiceStatus = "EXECUTED"
	StatusFailed    InvoiceStatus = "FAILED"
	StatusExpired   InvoiceStatus = "EXPIRED"
	StatusCancelled InvoiceStatus = "CANCELLED"
)

type MerchantMethod string

func (m MerchantMethod) Match(in MerchantMethod) bool {
	return m == in
}

const (
	MethodQPay      MerchantMethod = "QPAY"
	MethodSocialPay MerchantMethod = "SOCIALPAY"
	MethodMerchant  MerchantMethod = "MERCHANT"
	MethodApplePay  MerchantMethod = "APPLEPAY"
	MethodCoinsBuy  MerchantMethod = "COINSBUY"
)

var AllMethods = []MerchantMethod{MethodQPay, MethodSocialPay, MethodMerchant, MethodApplePay, MethodCoinsBuy}

// ParseMethod accepts the method name in any case.
func ParseMethod(s string) (MerchantMethod, error) {
	for _, m := range AllMethods {
		if strings.EqualFold(string(m), s) {
			return m, nil
		}
	}
	return "", InvalidRequest("unknown merchant method " + s)
}

type ReferenceType string

const (
	ReferenceDeposit    ReferenceType = "DEPOSIT"
	ReferenceWithdrawal ReferenceType = "WITHDRAWAL"
)

// Metadata is a provider specific payload: QR codes, deep links, redirect urls.
type Metadata map[string]interface{}

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *Metadata) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.Errorf("metadata: unsupported type %T", src)
	}
	out := Metadata{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return errors.Wrap(err, "Failed unmarshal metadata")
	}
	*m = out
	return nil
}

// Merge returns a copy of m overlaid with other.
func (m Metadata) Merge(other Metadata) Metadata {
	out := make(Metadata, len(m)+len(other))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

//go:generate reform

// MerchantInvoice shares its id with the deposit request it pays.
//
//reform:merchant.merchant_invoices
type MerchantInvoice struct {
	ID            int64         `reform:"id,pk"`
	ReferenceID   string        `reform:"reference_id"`
	ReferenceType ReferenceType `reform:"reference_type"`

	MerchantMethod    MerchantMethod `reform:"merchant_method"`
	ProviderID        string         `reform:"provider_id"`
	ProviderReference string         `reform:"provider_reference"` // sent to the provider as the order reference
	ProviderInfo      Metadata       `reform:"provider_info"`

	RegenerationCount int   `reform:"regeneration_count"`
	ExpiryDate        int64 `reform:"expiry_date"` // epoch millis

	ConversionRate      decimal.Decimal `reform:"conversion_rate"`
	TransactionAmount   decimal.Decimal `reform:"transaction_amount"`
	TransactionCurrency string          `reform:"transaction_currency"`
	AmountInUsd         decimal.Decimal `reform:"amount_in_usd"`

	InvoiceStatus   InvoiceStatus `reform:"invoice_status"`
	ExecutionStatus InvoiceStatus `reform:"execution_status"`

	Message   string    `reform:"message"`
	Metadata  Metadata  `reform:"metadata"`
	PostDate  time.Time `reform:"post_date"`
	CreatedAt time.Time `reform:"created_at"`
	UpdatedAt time.Time `reform:"updated_at"`
}

// stamp is the current time at the precision Postgres keeps, so a reloaded
// updated_at compares equal to the value written.
func stamp() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func (i *MerchantInvoice) BeforeInsert() error {
	now := stamp()
	if i.CreatedAt.IsZero() {
		i.CreatedAt = now
	}
	if i.PostDate.IsZero() {
		i.PostDate = now
	}
	i.UpdatedAt = now
	return nil
}

func (i *MerchantInvoice) BeforeUpdate() error {
	i.UpdatedAt = stamp()
	return nil
}

// Expired reports whether the provider invoice is past its expiry date at now.
func (i *MerchantInvoice) Expired(now time.Time) bool {
	return now.UnixNano()/int64(time.Millisecond) >= i.ExpiryDate
}

func (i *MerchantInvoice) Pending() bool {
	return i.InvoiceStatus.Match(StatusPending)
}

// Clone returns a copy safe to mutate before a conditional update.
func (i *MerchantInvoice) Clone() *MerchantInvoice {
	c := *i
	c.ProviderInfo = i.ProviderInfo.Merge(nil)
	c.Metadata = i.Metadata.Merge(nil)
	return &c
}

type InvoiceResponse struct {
	InvoiceStatus       InvoiceStatus   `json:"invoiceStatus"`
	ExecutionStatus     InvoiceStatus   `json:"executionStatus"`
	TransactionAmount   decimal.Decimal `json:"transactionAmount"`
	TransactionCurrency string          `json:"transactionCurrency"`
	Message             string          `json:"message"`
	Metadata            Metadata        `json:"metadata"`
}

// Response is the projection returned to clients. The full record stays internal.
func (i *MerchantInvoice) Response() *InvoiceResponse {
	return &InvoiceResponse{
		InvoiceStatus:       i.InvoiceStatus,
		ExecutionStatus:     i.ExecutionStatus,
		TransactionAmount:   i.TransactionAmount,
		TransactionCurrency: i.TransactionCurrency,
		Message:             i.Message,
		Metadata:            i.Metadata,
	}
}

// MerchantInvoiceStore persists merchant invoices.
//
// Create returns ErrAlreadyExists when an invoice with the same id exists.
// ConditionalUpdate writes inv only if every precondition holds on the stored
// record at write time, otherwise it returns ErrPreconditionFailed.
type MerchantInvoiceStore interface {
	GetByID(ctx context.Context, id int64) (*MerchantInvoice, error)
	Create(ctx context.Context, inv *MerchantInvoice) error
	ConditionalUpdate(ctx context.Context, inv *MerchantInvoice, conds ...Precondition) error
}
