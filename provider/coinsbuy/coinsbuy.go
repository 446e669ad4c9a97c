package coinsbuy

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/motforex/merchant"
	"github.com/motforex/merchant/provider"
)

const contentType = "application/vnd.api+json"

// Deposit status codes.
const (
	STATUS_CREATED = 2
	STATUS_PAID    = 3
)

type Config struct {
	EntrypointURL         string
	ClientID              string
	ClientSecret          string
	WalletID              string
	ConfirmationsNeeded   int
	PaymentPageRedirect   string
	PaymentPageButtonText string
}

type resource struct {
	Type          string                 `json:"type"`
	ID            string                 `json:"id,omitempty"`
	Attributes    map[string]interface{} `json:"attributes,omitempty"`
	Relationships map[string]relation    `json:"relationships,omitempty"`
}

type relation struct {
	Data resource `json:"data"`
}

type document struct {
	Data resource `json:"data"`
}

type depositAttributes struct {
	Address     string `json:"address"`
	PaymentPage string `json:"payment_page"`
	Status      int    `json:"status"`
	TrackingID  string `json:"tracking_id"`
	Label       string `json:"label"`
}

type depositDocument struct {
	Data struct {
		Type       string            `json:"type"`
		ID         string            `json:"id"`
		Attributes depositAttributes `json:"attributes"`
	} `json:"data"`
}

type tokenDocument struct {
	Data struct {
		Attributes struct {
			Access          string `json:"access"`
			Refresh         string `json:"refresh"`
			AccessExpiredAt int64  `json:"access_expired_at"`
		} `json:"attributes"`
	} `json:"data"`
}

func NewProvider(cfg Config, opts ...provider.ClientOption) *Provider {
	p := &Provider{
		cfg: cfg,
		l:   zap.L().Named("coinsbuy_provider"),
	}
	opts = append([]provider.ClientOption{provider.WithContentType(contentType)}, opts...)
	p.authClient = provider.NewClient(provider.COINSBUY, cfg.EntrypointURL, opts...)
	p.c = provider.NewClient(provider.COINSBUY, cfg.EntrypointURL, append(opts, provider.WithAuth(p.bearerAuth))...)
	return p
}

type Provider struct {
	cfg        Config
	authClient *provider.Client
	c          *provider.Client
	l          *zap.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func (p *Provider) Name() provider.Provider {
	return provider.COINSBUY
}

func (p *Provider) accessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token != "" && time.Now().Before(p.expiresAt) {
		return p.token, nil
	}
	in := document{Data: resource{
		Type: "auth-token",
		Attributes: map[string]interface{}{
			"login":    p.cfg.ClientID,
			"password": p.cfg.ClientSecret,
		},
	}}
	var out tokenDocument
	if err := p.authClient.POSTAndUnmarshalJson(ctx, "/token/", in, &out); err != nil {
		return "", errors.Wrap(err, "Failed coinsbuy auth")
	}
	if out.Data.Attributes.Access == "" {
		return "", errors.Wrap(merchant.ErrAuthTokenMissing, "coinsbuy returned empty token")
	}
	p.token = out.Data.Attributes.Access
	p.expiresAt = time.Now().Add(time.Minute)
	if exp := out.Data.Attributes.AccessExpiredAt; exp > 0 {
		p.expiresAt = time.Unix(exp, 0).Add(-time.Minute)
	}
	return p.token, nil
}

func (p *Provider) bearerAuth(ctx context.Context, req *http.Request) error {
	token, err := p.accessToken(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (p *Provider) CreateInvoice(ctx context.Context, req provider.CreateInvoiceRequest) (*provider.InvoiceHandle, error) {
	attrs := map[string]interface{}{
		"label":                req.ReferenceID,
		"tracking_id":          req.ReferenceID,
		"confirmations_needed": p.cfg.ConfirmationsNeeded,
		"callback_url":         req.CallbackURL,
		"target_paid":          req.Amount.String(),
	}
	if p.cfg.PaymentPageRedirect != "" {
		attrs["payment_page_redirect_url"] = p.cfg.PaymentPageRedirect
	}
	if p.cfg.PaymentPageButtonText != "" {
		attrs["payment_page_button_text"] = p.cfg.PaymentPageButtonText
	}
	in := document{Data: resource{
		Type:       "deposit",
		Attributes: attrs,
		Relationships: map[string]relation{
			"wallet": {Data: resource{Type: "wallet", ID: p.cfg.WalletID}},
		},
	}}
	var out depositDocument
	if err := p.c.POSTAndUnmarshalJson(ctx, "/deposit/", in, &out); err != nil {
		return nil, errors.Wrap(err, "Failed create coinsbuy deposit")
	}
	if out.Data.ID == "" {
		return nil, errors.Wrap(merchant.ErrProviderRejected, "coinsbuy returned empty deposit id")
	}
	return &provider.InvoiceHandle{
		ProviderID: out.Data.ID,
		Display: merchant.Metadata{
			"address":     out.Data.Attributes.Address,
			"paymentPage": out.Data.Attributes.PaymentPage,
		},
		Info: merchant.Metadata{
			"trackingId": req.ReferenceID,
			"walletId":   p.cfg.WalletID,
		},
	}, nil
}

// CheckStatus maps status 3 to paid. Every other code stays pending.
func (p *Provider) CheckStatus(ctx context.Context, providerID string) (*provider.PaymentStatus, error) {
	var out depositDocument
	if err := p.c.GETAndUnmarshalJson(ctx, "/deposit/"+providerID+"/", &out); err != nil {
		return nil, errors.Wrap(err, "Failed get coinsbuy deposit")
	}
	code := out.Data.Attributes.Status
	if code != STATUS_CREATED && code != STATUS_PAID {
		p.l.Info("unexpected deposit status", zap.String("deposit_id", providerID), zap.Int("status", code))
	}
	return &provider.PaymentStatus{
		Paid:      code == STATUS_PAID,
		RawStatus: strconv.Itoa(code),
		Raw:       out.Data.Attributes,
	}, nil
}

func (p *Provider) Cancel(ctx context.Context, providerID string) error {
	return merchant.ErrNotSupported
}

// check interfaces
var (
	_ provider.Adapter = (*Provider)(nil)
)
