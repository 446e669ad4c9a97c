package merchant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/reform.v1/parse"
)

func TestTablesUpToDate(t *testing.T) {
	assert.NotPanics(t, func() { parse.AssertUpToDate(&MerchantInvoiceTable.s, new(MerchantInvoice)) })
	assert.NotPanics(t, func() { parse.AssertUpToDate(&DepositRequestTable.s, new(DepositRequest)) })
}

func TestMerchantInvoiceTableFields(t *testing.T) {
	fields := MerchantInvoiceTable.s.Fields
	require.Len(t, fields, len(MerchantInvoiceTable.Columns()))

	types := map[string]string{}
	for _, f := range fields {
		types[f.Column] = f.Type
	}
	assert.Equal(t, "int64", types["id"])
	assert.Equal(t, "Metadata", types["metadata"])
	assert.Equal(t, "InvoiceStatus", types["execution_status"])
	assert.Equal(t, "decimal.Decimal", types["amount_in_usd"])
	assert.Equal(t, "time.Time", types["updated_at"])
	assert.Equal(t, "id", MerchantInvoiceTable.Columns()[MerchantInvoiceTable.PKColumnIndex()])
}
