package qpay

import "github.com/shopspring/decimal"

type tokenResponse struct {
	TokenType        string `json:"token_type"`
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshToken     string `json:"refresh_token"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
}

type invoiceRequest struct {
	InvoiceCode         string  `json:"invoice_code"`
	SenderInvoiceNo     string  `json:"sender_invoice_no"`
	InvoiceReceiverCode string  `json:"invoice_receiver_code"`
	InvoiceDescription  string  `json:"invoice_description"`
	Amount              float64 `json:"amount"`
	CallbackURL         string  `json:"callback_url"`
}

type deeplink struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Logo        string `json:"logo"`
	Link        string `json:"link"`
}

type invoiceResponse struct {
	InvoiceID string     `json:"invoice_id"`
	QRText    string     `json:"qr_text"`
	QRImage   string     `json:"qr_image"`
	ShortURL  string     `json:"qPay_shortUrl"`
	URLs      []deeplink `json:"urls"`
}

type checkOffset struct {
	PageNumber int `json:"page_number"`
	PageLimit  int `json:"page_limit"`
}

type checkRequest struct {
	ObjectType string      `json:"object_type"`
	ObjectID   string      `json:"object_id"`
	Offset     checkOffset `json:"offset"`
}

type paymentRow struct {
	PaymentID       string          `json:"payment_id"`
	PaymentStatus   string          `json:"payment_status"`
	PaymentDate     string          `json:"payment_date"`
	PaymentAmount   decimal.Decimal `json:"payment_amount"`
	PaymentCurrency string          `json:"payment_currency"`
	PaymentWallet   string          `json:"payment_wallet"`
}

type checkResponse struct {
	Count      int             `json:"count"`
	PaidAmount decimal.Decimal `json:"paid_amount"`
	Rows       []paymentRow    `json:"rows"`
}
