package merchant

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPreconditionHolds(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 123456000, time.UTC)
	inv := &MerchantInvoice{
		ProviderID:      "p-1",
		InvoiceStatus:   StatusExecuted,
		ExecutionStatus: StatusPending,
		UpdatedAt:       at,
	}

	assert.True(t, InvoiceStatusIs(StatusExecuted).Holds(inv))
	assert.False(t, InvoiceStatusIs(StatusPending).Holds(inv))
	assert.True(t, ExecutionStatusIs(StatusPending).Holds(inv))
	assert.True(t, ProviderIDIs("p-1").Holds(inv))
	assert.False(t, ProviderIDIs("p-2").Holds(inv))

	assert.True(t, UpdatedAtIs(at).Holds(inv))
	assert.True(t, UpdatedAtIs(at.In(time.FixedZone("ULAT", 8*3600))).Holds(inv))
	assert.False(t, UpdatedAtIs(at.Add(time.Microsecond)).Holds(inv))

	assert.Equal(t, "updated_at", UpdatedAtIs(at).Column())
	assert.Equal(t, "updatedAt", UpdatedAtIs(at).Attribute())
	assert.Equal(t, "2024-03-01T10:00:00.123456Z", UpdatedAtIs(at).Expected)
}

func TestStampKeepsMicroseconds(t *testing.T) {
	inv := &MerchantInvoice{}
	assert.NoError(t, inv.BeforeUpdate())
	assert.Equal(t, time.UTC, inv.UpdatedAt.Location())
	assert.Zero(t, inv.UpdatedAt.Nanosecond()%1000)
}
