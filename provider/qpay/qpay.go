package qpay

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/motforex/merchant"
	"github.com/motforex/merchant/provider"
)

const TokenKey = "qpay"

const (
	PAID    = "PAID"
	PENDING = "PENDING"
)

type Config struct {
	EntrypointURL       string
	Username            string
	Password            string
	InvoiceCode         string
	InvoiceReceiverCode string
}

func NewProvider(cfg Config, tokens provider.TokenStore, opts ...provider.ClientOption) *Provider {
	opts = append([]provider.ClientOption{provider.WithAuth(provider.BearerAuth(tokens, TokenKey))}, opts...)
	return &Provider{
		cfg: cfg,
		c:   provider.NewClient(provider.QPAY, cfg.EntrypointURL, opts...),
		l:   zap.L().Named("qpay_provider"),
	}
}

type Provider struct {
	cfg Config
	c   *provider.Client
	l   *zap.Logger
}

func (p *Provider) Name() provider.Provider {
	return provider.QPAY
}

func (p *Provider) CreateInvoice(ctx context.Context, req provider.CreateInvoiceRequest) (*provider.InvoiceHandle, error) {
	in := invoiceRequest{
		InvoiceCode:         p.cfg.InvoiceCode,
		SenderInvoiceNo:     req.ReferenceID,
		InvoiceReceiverCode: p.cfg.InvoiceReceiverCode,
		InvoiceDescription:  req.Description,
		Amount:              req.Amount.InexactFloat64(),
		CallbackURL:         req.CallbackURL,
	}
	if in.InvoiceReceiverCode == "" {
		in.InvoiceReceiverCode = "terminal"
	}
	var out invoiceResponse
	if err := p.c.POSTAndUnmarshalJson(ctx, "/v2/invoice", in, &out); err != nil {
		return nil, errors.Wrap(err, "Failed create qpay invoice")
	}
	if out.InvoiceID == "" {
		return nil, errors.Wrap(merchant.ErrProviderRejected, "qpay returned empty invoice id")
	}
	links := make([]interface{}, 0, len(out.URLs))
	for _, u := range out.URLs {
		links = append(links, map[string]interface{}{
			"name":        u.Name,
			"description": u.Description,
			"logo":        u.Logo,
			"link":        u.Link,
		})
	}
	p.l.Debug("invoice created", zap.String("reference_id", req.ReferenceID), zap.String("invoice_id", out.InvoiceID))
	return &provider.InvoiceHandle{
		ProviderID: out.InvoiceID,
		Display: merchant.Metadata{
			"qrText":   out.QRText,
			"qrImage":  out.QRImage,
			"shortUrl": out.ShortURL,
			"urls":     links,
		},
		Info: merchant.Metadata{
			"senderInvoiceNo": req.ReferenceID,
		},
	}, nil
}

// CheckStatus reports paid when the invoice has payment rows. The paid amount
// is left to the caller to compare against the expected amount.
func (p *Provider) CheckStatus(ctx context.Context, providerID string) (*provider.PaymentStatus, error) {
	in := checkRequest{
		ObjectType: "INVOICE",
		ObjectID:   providerID,
		Offset:     checkOffset{PageNumber: 1, PageLimit: 100},
	}
	var out checkResponse
	if err := p.c.POSTAndUnmarshalJson(ctx, "/v2/payment/check", in, &out); err != nil {
		return nil, errors.Wrap(err, "Failed check qpay payment")
	}
	st := &provider.PaymentStatus{
		RawStatus: PENDING,
		Raw:       out,
	}
	if len(out.Rows) > 0 {
		paid := out.PaidAmount
		st.Paid = true
		st.PaidAmount = &paid
		st.RawStatus = PAID
	}
	return st, nil
}

func (p *Provider) Cancel(ctx context.Context, providerID string) error {
	if err := p.c.DELETE(ctx, "/v2/invoice/"+providerID); err != nil {
		return errors.Wrap(err, "Failed cancel qpay invoice")
	}
	return nil
}

// TokenSource logs in with basic credentials.
type TokenSource struct {
	cfg Config
	c   *provider.Client
}

func NewTokenSource(cfg Config, opts ...provider.ClientOption) *TokenSource {
	s := &TokenSource{cfg: cfg}
	opts = append([]provider.ClientOption{provider.WithAuth(func(ctx context.Context, req *http.Request) error {
		req.SetBasicAuth(s.cfg.Username, s.cfg.Password)
		return nil
	})}, opts...)
	s.c = provider.NewClient(provider.QPAY, cfg.EntrypointURL, opts...)
	return s
}

func (s *TokenSource) TokenKey() string {
	return TokenKey
}

func (s *TokenSource) FetchToken(ctx context.Context) (string, time.Duration, error) {
	var out tokenResponse
	if err := s.c.POSTAndUnmarshalJson(ctx, "/v2/auth/token", struct{}{}, &out); err != nil {
		return "", 0, errors.Wrap(err, "Failed fetch qpay token")
	}
	if out.AccessToken == "" {
		return "", 0, errors.Wrap(merchant.ErrProviderRejected, "qpay returned empty token")
	}
	var ttl time.Duration
	if out.ExpiresIn > 0 {
		// expires_in is an epoch second timestamp
		ttl = time.Until(time.Unix(out.ExpiresIn, 0))
	}
	return out.AccessToken, ttl, nil
}

// check interfaces
var (
	_ provider.Adapter     = (*Provider)(nil)
	_ provider.TokenSource = (*TokenSource)(nil)
)
