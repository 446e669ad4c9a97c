package merchant

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type DepositStatus string

func (s DepositStatus) Match(in DepositStatus) bool {
	return s == in
}

const (
	DepositInitial    DepositStatus = "INITIAL"
	DepositPending    DepositStatus = "PENDING"
	DepositCancelled  DepositStatus = "CANCELLED"
	DepositExpired    DepositStatus = "EXPIRED"
	DepositProcessing DepositStatus = "PROCESSING"
	DepositPayout     DepositStatus = "PAYOUT"
	DepositHalted     DepositStatus = "HALTED"
	DepositFailed     DepositStatus = "FAILED"
	DepositExecuted   DepositStatus = "EXECUTED"
	DepositRejected   DepositStatus = "REJECTED"
)

//go:generate reform

// DepositRequest is owned by the deposit service. This package only reads it.
//
//reform:merchant.deposit_requests
type DepositRequest struct {
	ID                 int64           `reform:"id,pk"`
	UserID             int64           `reform:"user_id"`
	Email              string          `reform:"email"`
	Status             DepositStatus   `reform:"status"`
	PaymentMethodTitle string          `reform:"payment_method_title"`
	Amount             decimal.Decimal `reform:"amount"` // amount with commission
	Currency           string          `reform:"currency"`
	ConversionRate     decimal.Decimal `reform:"conversion_rate"`
	AmountInUsd        decimal.Decimal `reform:"amount_in_usd"`
	// TransactionCurrency is the currency the provider charges in.
	TransactionCurrency string    `reform:"transaction_currency"`
	CreatedAt           time.Time `reform:"created_at"`
}

// Eligible reports whether an invoice may be issued or re-issued for the request.
func (d *DepositRequest) Eligible() bool {
	return d.Status.Match(DepositPending)
}

// DepositRequestGateway reads deposit requests.
// GetByID returns ErrNotFound when the request does not exist.
type DepositRequestGateway interface {
	GetByID(ctx context.Context, id int64) (*DepositRequest, error)
}

// DepositExecutionNotifier triggers the deposit side effects owned by the deposit service.
type DepositExecutionNotifier interface {
	Execute(ctx context.Context, depositID int64, reason string) error
	MarkExpired(ctx context.Context, depositID int64, reason string) error
}
