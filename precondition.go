package merchant

import (
	"fmt"
	"time"
)

type InvoiceField string

const (
	FieldInvoiceStatus   InvoiceField = "invoice_status"
	FieldExecutionStatus InvoiceField = "execution_status"
	FieldProviderID      InvoiceField = "provider_id"
	FieldUpdatedAt       InvoiceField = "updated_at"
)

// attribute names used by document stores
var fieldAttributes = map[InvoiceField]string{
	FieldInvoiceStatus:   "invoiceStatus",
	FieldExecutionStatus: "executionStatus",
	FieldProviderID:      "providerId",
	FieldUpdatedAt:       "updatedAt",
}

// Precondition is an equality check a store enforces atomically with a write.
type Precondition struct {
	Field    InvoiceField
	Expected string
}

func InvoiceStatusIs(s InvoiceStatus) Precondition {
	return Precondition{Field: FieldInvoiceStatus, Expected: string(s)}
}

func ExecutionStatusIs(s InvoiceStatus) Precondition {
	return Precondition{Field: FieldExecutionStatus, Expected: string(s)}
}

func ProviderIDIs(id string) Precondition {
	return Precondition{Field: FieldProviderID, Expected: id}
}

// UpdatedAtIs guards a write on the record not having changed since t.
func UpdatedAtIs(t time.Time) Precondition {
	return Precondition{Field: FieldUpdatedAt, Expected: formatStamp(t)}
}

func formatStamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Column is the SQL column the precondition checks.
func (p Precondition) Column() string {
	return string(p.Field)
}

// Attribute is the document attribute the precondition checks.
func (p Precondition) Attribute() string {
	if a, ok := fieldAttributes[p.Field]; ok {
		return a
	}
	return string(p.Field)
}

// Holds evaluates the precondition against a stored record.
func (p Precondition) Holds(inv *MerchantInvoice) bool {
	switch p.Field {
	case FieldInvoiceStatus:
		return string(inv.InvoiceStatus) == p.Expected
	case FieldExecutionStatus:
		return string(inv.ExecutionStatus) == p.Expected
	case FieldProviderID:
		return inv.ProviderID == p.Expected
	case FieldUpdatedAt:
		return formatStamp(inv.UpdatedAt) == p.Expected
	}
	return false
}

func (p Precondition) String() string {
	return fmt.Sprintf("%s = %q", p.Field, p.Expected)
}
