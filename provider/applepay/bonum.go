package applepay

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/motforex/merchant"
	"github.com/motforex/merchant/provider"
)

var (
	paidStatuses   = []string{"SUCCESS", "COMPLETED", "PAID", "EXECUTED"}
	failedStatuses = []string{"FAIL", "FAILED", "DECLINED", "CANCELLED"}
)

type Config struct {
	EntrypointURL string
	AppSecret     string
	TerminalID    string
}

type authResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"`
}

type invoiceRequest struct {
	Amount        float64 `json:"amount"`
	Callback      string  `json:"callback"`
	TransactionID string  `json:"transactionId"`
	ExpiresIn     int64   `json:"expiresIn"`
}

type invoiceResponse struct {
	InvoiceID    string `json:"invoiceId"`
	FollowUpLink string `json:"followUpLink"`
}

type statusResponse struct {
	Success       bool    `json:"success"`
	Status        string  `json:"status"`
	InvoiceID     string  `json:"invoiceId"`
	TransactionID string  `json:"transactionId"`
	Amount        float64 `json:"amount"`
	Message       string  `json:"message"`
}

// NewProvider integrates Apple Pay through the Bonum gateway. Bonum access
// tokens are short lived and requested inline for each call.
func NewProvider(cfg Config, opts ...provider.ClientOption) *Provider {
	p := &Provider{
		cfg: cfg,
		l:   zap.L().Named("applepay_provider"),
	}
	authOpts := append([]provider.ClientOption{provider.WithAuth(p.appSecretAuth)}, opts...)
	p.authClient = provider.NewClient(provider.BONUM, cfg.EntrypointURL, authOpts...)
	apiOpts := append([]provider.ClientOption{provider.WithAuth(p.bearerAuth)}, opts...)
	p.c = provider.NewClient(provider.BONUM, cfg.EntrypointURL, apiOpts...)
	return p
}

type Provider struct {
	cfg        Config
	authClient *provider.Client
	c          *provider.Client
	l          *zap.Logger
}

func (p *Provider) Name() provider.Provider {
	return provider.BONUM
}

func (p *Provider) appSecretAuth(ctx context.Context, req *http.Request) error {
	req.Header.Set("Authorization", "AppSecret "+p.cfg.AppSecret)
	req.Header.Set("X-TERMINAL-ID", p.cfg.TerminalID)
	return nil
}

func (p *Provider) bearerAuth(ctx context.Context, req *http.Request) error {
	var out authResponse
	if err := p.authClient.GETAndUnmarshalJson(ctx, "/bonum-gateway/ecommerce/auth/create", &out); err != nil {
		return errors.Wrap(err, "Failed bonum auth")
	}
	if out.AccessToken == "" {
		return errors.Wrap(merchant.ErrAuthTokenMissing, "bonum returned empty token")
	}
	req.Header.Set("Authorization", "Bearer "+out.AccessToken)
	return nil
}

func (p *Provider) CreateInvoice(ctx context.Context, req provider.CreateInvoiceRequest) (*provider.InvoiceHandle, error) {
	in := invoiceRequest{
		Amount:        req.Amount.InexactFloat64(),
		Callback:      req.CallbackURL,
		TransactionID: req.ReferenceID,
		ExpiresIn:     int64(req.TTL / time.Second),
	}
	var out invoiceResponse
	if err := p.c.POSTAndUnmarshalJson(ctx, "/bonum-gateway/ecommerce/invoices", in, &out); err != nil {
		return nil, errors.Wrap(err, "Failed create bonum invoice")
	}
	if out.InvoiceID == "" {
		return nil, errors.Wrap(merchant.ErrProviderRejected, "bonum returned empty invoice id")
	}
	return &provider.InvoiceHandle{
		ProviderID: out.InvoiceID,
		Display: merchant.Metadata{
			"followUpLink": out.FollowUpLink,
		},
		Info: merchant.Metadata{
			"transactionId": req.ReferenceID,
		},
	}, nil
}

func (p *Provider) CheckStatus(ctx context.Context, providerID string) (*provider.PaymentStatus, error) {
	var out statusResponse
	if err := p.c.GETAndUnmarshalJson(ctx, "/bonum-gateway/ecommerce/invoices/"+providerID, &out); err != nil {
		return nil, errors.Wrap(err, "Failed bonum invoice status")
	}
	st := classify(out.Success, out.Status)
	st.Raw = out
	return st, nil
}

func (p *Provider) Cancel(ctx context.Context, providerID string) error {
	return merchant.ErrNotSupported
}

// classify normalizes the status case insensitively. A paid status only counts
// together with success=true.
func classify(success bool, status string) *provider.PaymentStatus {
	s := strings.ToUpper(strings.TrimSpace(status))
	st := &provider.PaymentStatus{RawStatus: s}
	switch {
	case contains(failedStatuses, s):
		st.Failed = true
	case success && contains(paidStatuses, s):
		st.Paid = true
	}
	return st
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// check interfaces
var (
	_ provider.Adapter = (*Provider)(nil)
)
