package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/motforex/merchant"
)

// Policy holds the per method knobs of a Reconciler.
type Policy struct {
	Method merchant.MerchantMethod
	// PaymentMethodKeyword must appear in the deposit payment method title, case insensitive.
	PaymentMethodKeyword string
	// RegenerationCeiling is the number of times an expired invoice may be re-issued.
	RegenerationCeiling int
	TTL                 time.Duration
	// CallbackBaseURL is the public base url of the callback endpoint.
	CallbackBaseURL string
	Description     string
}

var DefaultPolicies = map[merchant.MerchantMethod]Policy{
	merchant.MethodQPay:      {Method: merchant.MethodQPay, PaymentMethodKeyword: "qpay", RegenerationCeiling: 5, TTL: 300000 * time.Millisecond},
	merchant.MethodMerchant:  {Method: merchant.MethodMerchant, PaymentMethodKeyword: "card", RegenerationCeiling: 5, TTL: 300000 * time.Millisecond},
	merchant.MethodSocialPay: {Method: merchant.MethodSocialPay, PaymentMethodKeyword: "socialpay", RegenerationCeiling: 5, TTL: 300000 * time.Millisecond},
	merchant.MethodApplePay:  {Method: merchant.MethodApplePay, PaymentMethodKeyword: "applepay", RegenerationCeiling: 10, TTL: 15 * time.Minute},
	merchant.MethodCoinsBuy:  {Method: merchant.MethodCoinsBuy, PaymentMethodKeyword: "coinsbuy", RegenerationCeiling: 10, TTL: time.Hour},
}

// DefaultPolicy returns the built in policy for m.
func DefaultPolicy(m merchant.MerchantMethod) Policy {
	if p, ok := DefaultPolicies[m]; ok {
		return p
	}
	return Policy{Method: m, PaymentMethodKeyword: strings.ToLower(string(m)), RegenerationCeiling: 5, TTL: 300000 * time.Millisecond}
}

func (p Policy) callbackURL(invoiceID int64) string {
	if p.CallbackBaseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/callback/%s/%d", strings.TrimRight(p.CallbackBaseURL, "/"), strings.ToLower(string(p.Method)), invoiceID)
}

func (p Policy) description(depositID int64) string {
	if p.Description != "" {
		return fmt.Sprintf("%s #%d", p.Description, depositID)
	}
	return fmt.Sprintf("Deposit #%d", depositID)
}

func (p Policy) matchesTitle(title string) bool {
	return strings.Contains(strings.ToLower(title), strings.ToLower(p.PaymentMethodKeyword))
}
