package engine

import "github.com/motforex/merchant"

var invoiceStatusTransitionChart = StatusTransitionChart{
	merchant.StatusInitial: {merchant.StatusPending},
	merchant.StatusPending: {merchant.StatusExecuted, merchant.StatusFailed, merchant.StatusExpired, merchant.StatusCancelled},
}

var executionStatusTransitionChart = StatusTransitionChart{
	merchant.StatusInitial: {merchant.StatusPending},
	merchant.StatusPending: {merchant.StatusExecuted, merchant.StatusFailed, merchant.StatusExpired, merchant.StatusCancelled},
	// operator retry claims a failed execution back to pending
	merchant.StatusFailed: {merchant.StatusPending},
}

type StatusTransitionChart map[merchant.InvoiceStatus][]merchant.InvoiceStatus

func (s StatusTransitionChart) Allowed(from, to merchant.InvoiceStatus) bool {
	if from.Match(to) {
		return true
	}
	list, exists := s[from]
	if !exists {
		return false
	}
	for _, status := range list {
		if status.Match(to) {
			return true
		}
	}
	return false
}

// transitionAllowed checks both status axes of an invoice update.
func transitionAllowed(from, to *merchant.MerchantInvoice) bool {
	return invoiceStatusTransitionChart.Allowed(from.InvoiceStatus, to.InvoiceStatus) &&
		executionStatusTransitionChart.Allowed(from.ExecutionStatus, to.ExecutionStatus)
}
