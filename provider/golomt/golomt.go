package golomt

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/motforex/merchant"
	"github.com/motforex/merchant/provider"
)

const TokenKey = "golomt"

const (
	// SUCCESS is the only inquiry error code meaning the card was charged.
	SUCCESS = "000"

	CARD      = "payment"
	SOCIALPAY = "socialpay"
)

type Config struct {
	EntrypointURL string
	// PaymentURL is the hosted payment page base, e.g. https://ecommerce.golomtbank.com
	PaymentURL string
	Secret     string
	Token      string
	// Page selects the hosted page: CARD for MERCHANT, SOCIALPAY for SOCIALPAY.
	Page       string
	ReturnType string
}

type invoiceRequest struct {
	Amount        string `json:"amount"`
	Callback      string `json:"callback"`
	Checksum      string `json:"checksum"`
	GenToken      string `json:"genToken"`
	ReturnType    string `json:"returnType"`
	TransactionID string `json:"transactionId"`
}

type invoiceResponse struct {
	Invoice       string `json:"invoice"`
	Checksum      string `json:"checksum"`
	TransactionID string `json:"transactionId"`
	Message       string `json:"message"`
}

type inquiryRequest struct {
	Checksum      string `json:"checksum"`
	TransactionID string `json:"transactionId"`
}

type inquiryResponse struct {
	Amount        string `json:"amount"`
	Bank          string `json:"bank"`
	Status        string `json:"status"`
	ErrorDesc     string `json:"errorDesc"`
	ErrorCode     string `json:"errorCode"`
	CardHolder    string `json:"cardHolder"`
	CardNumber    string `json:"cardNumber"`
	TransactionID string `json:"transactionId"`
}

// NewProvider serves both card (MERCHANT) and SocialPay invoices; cfg.Page selects which.
func NewProvider(cfg Config, tokens provider.TokenStore, opts ...provider.ClientOption) *Provider {
	if cfg.Page == "" {
		cfg.Page = CARD
	}
	if cfg.ReturnType == "" {
		cfg.ReturnType = "POST"
	}
	opts = append([]provider.ClientOption{provider.WithAuth(provider.BearerAuth(tokens, TokenKey))}, opts...)
	return &Provider{
		cfg: cfg,
		c:   provider.NewClient(provider.GOLOMT, cfg.EntrypointURL, opts...),
		l:   zap.L().Named("golomt_provider").With(zap.String("page", cfg.Page)),
	}
}

type Provider struct {
	cfg Config
	c   *provider.Client
	l   *zap.Logger
}

func (p *Provider) Name() provider.Provider {
	return provider.GOLOMT
}

// The transaction id doubles as the provider id: inquiries are keyed by it.
func (p *Provider) CreateInvoice(ctx context.Context, req provider.CreateInvoiceRequest) (*provider.InvoiceHandle, error) {
	amount := req.Amount.StringFixed(2)
	in := invoiceRequest{
		Amount:        amount,
		Callback:      req.CallbackURL,
		GenToken:      "N",
		ReturnType:    p.cfg.ReturnType,
		TransactionID: req.ReferenceID,
		Checksum:      p.checksum(req.ReferenceID, amount, p.cfg.ReturnType, req.CallbackURL),
	}
	var out invoiceResponse
	if err := p.c.POSTAndUnmarshalJson(ctx, "/api/invoice", in, &out); err != nil {
		return nil, errors.Wrap(err, "Failed create golomt invoice")
	}
	if out.Invoice == "" {
		return nil, errors.Wrap(merchant.ErrProviderRejected, "golomt: "+out.Message)
	}
	lang := "en"
	if strings.HasPrefix(strings.ToLower(req.Locale), "mn") {
		lang = "mn"
	}
	payURL := fmt.Sprintf("%s/%s/%s/%s", strings.TrimRight(p.cfg.PaymentURL, "/"), p.cfg.Page, lang, out.Invoice)
	p.l.Debug("invoice created", zap.String("transaction_id", req.ReferenceID), zap.String("invoice", out.Invoice))
	return &provider.InvoiceHandle{
		ProviderID: req.ReferenceID,
		Display: merchant.Metadata{
			"invoice":    out.Invoice,
			"paymentUrl": payURL,
		},
		Info: merchant.Metadata{
			"invoice": out.Invoice,
			"page":    p.cfg.Page,
		},
	}, nil
}

// CheckStatus treats error code "000" as paid. Other codes leave the invoice
// pending since the payer may still complete the hosted page.
func (p *Provider) CheckStatus(ctx context.Context, providerID string) (*provider.PaymentStatus, error) {
	in := inquiryRequest{
		TransactionID: providerID,
		Checksum:      p.checksum(providerID, providerID),
	}
	var out inquiryResponse
	if err := p.c.POSTAndUnmarshalJson(ctx, "/api/inquiry", in, &out); err != nil {
		return nil, errors.Wrap(err, "Failed golomt inquiry")
	}
	return &provider.PaymentStatus{
		Paid:      out.ErrorCode == SUCCESS,
		RawStatus: out.ErrorCode,
		Raw:       out,
	}, nil
}

func (p *Provider) Cancel(ctx context.Context, providerID string) error {
	return merchant.ErrNotSupported
}

func (p *Provider) checksum(parts ...string) string {
	mac := hmac.New(sha256.New, []byte(p.cfg.Secret))
	mac.Write([]byte(strings.Join(parts, "")))
	return hex.EncodeToString(mac.Sum(nil))
}

// NewTokenSource publishes the provisioned merchant token.
func NewTokenSource(cfg Config, ttl time.Duration) *provider.StaticTokenSource {
	return &provider.StaticTokenSource{Key: TokenKey, Token: cfg.Token, TTL: ttl}
}

// check interfaces
var (
	_ provider.Adapter = (*Provider)(nil)
)
