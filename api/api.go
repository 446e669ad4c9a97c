// Package api is the HTTP surface of the merchant service.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/motforex/merchant"
	"github.com/motforex/merchant/engine"
	"github.com/motforex/merchant/httputils"
)

// Backend is implemented by *engine.Registry.
type Backend interface {
	ObtainInvoice(ctx context.Context, method merchant.MerchantMethod, req engine.ObtainRequest) (*merchant.MerchantInvoice, error)
	CheckInvoice(ctx context.Context, invoiceID int64) (*merchant.MerchantInvoice, error)
	RetryExecution(ctx context.Context, invoiceID int64) (*merchant.MerchantInvoice, error)
	GetInvoice(ctx context.Context, invoiceID int64) (*merchant.MerchantInvoice, error)
	InvoiceOwnedBy(ctx context.Context, invoiceID int64, email string) (bool, error)
}

// CheckQueue hands provider callbacks to the check workers.
type CheckQueue interface {
	RequestCheck(ctx context.Context, invoiceID int64, source string) error
}

type Server struct {
	backend  Backend
	verifier *Verifier
	apiKey   string
	queue    CheckQueue
	updates  echo.HandlerFunc
	health   map[string]httputils.HealthCheck
	l        *zap.Logger
}

type Option func(s *Server)

// WithCheckQueue makes callbacks asynchronous.
func WithCheckQueue(q CheckQueue) Option {
	return func(s *Server) { s.queue = q }
}

// WithUpdates mounts the websocket stream of invoice updates.
func WithUpdates(h echo.HandlerFunc) Option {
	return func(s *Server) { s.updates = h }
}

func WithHealthChecks(checks map[string]httputils.HealthCheck) Option {
	return func(s *Server) { s.health = checks }
}

func NewServer(backend Backend, verifier *Verifier, apiKey string, opts ...Option) *Server {
	s := &Server{
		backend:  backend,
		verifier: verifier,
		apiKey:   apiKey,
		l:        zap.L().Named("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register mounts every route on e.
func (s *Server) Register(e *echo.Echo) {
	e.HTTPErrorHandler = s.errorHandler

	e.GET("/healthz", echo.WrapHandler(httputils.HealthHandler(s.health)))

	auth := JWT(s.verifier)
	e.POST("/deposits/:id/invoice/:method", s.obtainInvoice, auth)
	e.GET("/invoices/:id", s.checkInvoice, auth, s.invoiceOwner)
	if s.updates != nil {
		e.GET("/invoices/:id/updates", s.updates, auth, s.invoiceOwner)
	}

	e.GET("/callback/:method/:id", s.callback)
	e.POST("/callback/:method/:id", s.callback)

	admin := e.Group("/admin", APIKey(s.apiKey))
	admin.GET("/invoices/:id", s.adminGetInvoice)
	admin.POST("/invoices/:id/check", s.adminCheckInvoice)
	admin.POST("/invoices/:id/retry-execution", s.adminRetryExecution)
}

type obtainInvoiceRequest struct {
	Locale string `json:"locale"`
}

func (s *Server) obtainInvoice(c echo.Context) error {
	depositID, err := idParam(c)
	if err != nil {
		return err
	}
	method, err := merchant.ParseMethod(c.Param("method"))
	if err != nil {
		return err
	}
	var body obtainInvoiceRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&body); err != nil {
			return merchant.InvalidRequest("malformed body")
		}
	}

	inv, err := s.backend.ObtainInvoice(c.Request().Context(), method, engine.ObtainRequest{
		DepositID:  depositID,
		PayerEmail: claimsFrom(c).Email,
		Locale:     body.Locale,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inv.Response())
}

// invoiceOwner lets through only the user whose deposit the invoice pays.
// Other users get merchant.ErrNotFound.
func (s *Server) invoiceOwner(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		invoiceID, err := idParam(c)
		if err != nil {
			return err
		}
		email := claimsFrom(c).Email
		ok, err := s.backend.InvoiceOwnedBy(c.Request().Context(), invoiceID, email)
		if err != nil {
			return err
		}
		if !ok {
			s.l.Warn("Invoice of another user requested.", zap.Int64("invoice_id", invoiceID), zap.String("email", email))
			return merchant.ErrNotFound
		}
		return next(c)
	}
}

func (s *Server) checkInvoice(c echo.Context) error {
	invoiceID, err := idParam(c)
	if err != nil {
		return err
	}
	inv, err := s.backend.CheckInvoice(c.Request().Context(), invoiceID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inv.Response())
}

type callbackResponse struct {
	InvoiceID     int64                  `json:"invoiceId"`
	InvoiceStatus merchant.InvoiceStatus `json:"invoiceStatus,omitempty"`
	Queued        bool                   `json:"queued,omitempty"`
}

// callback trusts only the invoice id: the status is always read back from
// the provider.
func (s *Server) callback(c echo.Context) error {
	method, err := merchant.ParseMethod(c.Param("method"))
	if err != nil {
		return err
	}
	invoiceID, err := idParam(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	ri := httputils.GetRequestInfo(ctx)
	s.l.Info("Provider callback.", append(ri.Fields(),
		zap.String("method", string(method)),
		zap.Int64("invoice_id", invoiceID),
	)...)

	inv, err := s.backend.GetInvoice(ctx, invoiceID)
	if err != nil {
		return err
	}
	if !inv.MerchantMethod.Match(method) {
		return merchant.ErrNotFound
	}

	if s.queue != nil {
		err := s.queue.RequestCheck(ctx, invoiceID, "callback:"+string(method))
		if err == nil {
			return c.JSON(http.StatusAccepted, callbackResponse{InvoiceID: invoiceID, Queued: true})
		}
		s.l.Warn("Failed queue check, checking inline.", zap.Int64("invoice_id", invoiceID), zap.Error(err))
	}
	inv, err = s.backend.CheckInvoice(ctx, invoiceID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, callbackResponse{InvoiceID: invoiceID, InvoiceStatus: inv.InvoiceStatus})
}

func (s *Server) adminGetInvoice(c echo.Context) error {
	invoiceID, err := idParam(c)
	if err != nil {
		return err
	}
	inv, err := s.backend.GetInvoice(c.Request().Context(), invoiceID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inv)
}

func (s *Server) adminCheckInvoice(c echo.Context) error {
	invoiceID, err := idParam(c)
	if err != nil {
		return err
	}
	inv, err := s.backend.CheckInvoice(c.Request().Context(), invoiceID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inv)
}

func (s *Server) adminRetryExecution(c echo.Context) error {
	invoiceID, err := idParam(c)
	if err != nil {
		return err
	}
	inv, err := s.backend.RetryExecution(c.Request().Context(), invoiceID)
	if err != nil {
		return err
	}
	s.l.Info("Execution retried.",
		zap.Int64("invoice_id", invoiceID),
		zap.String("execution_status", string(inv.ExecutionStatus)),
		zap.String("request_id", httputils.GetRequestInfo(c.Request().Context()).RequestID),
	)
	return c.JSON(http.StatusOK, inv)
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func (s *Server) errorHandler(err error, c echo.Context) {
	code := merchant.ErrorCode(err)
	msg := err.Error()
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(code)
		}
	}
	ri := httputils.GetRequestInfo(c.Request().Context())
	if code >= http.StatusInternalServerError {
		s.l.Error("Request failed.", zap.String("path", c.Path()), zap.String("request_id", ri.RequestID), zap.Error(err))
		if code == http.StatusInternalServerError {
			msg = http.StatusText(code)
		}
	}
	if c.Response().Committed {
		return
	}
	if err := c.JSON(code, errorResponse{Error: msg, RequestID: ri.RequestID}); err != nil {
		s.l.Warn("Failed write error response.", zap.Error(err))
	}
}

func idParam(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Wrap(merchant.ErrInvalidRequest, "invalid id "+c.Param("id"))
	}
	return id, nil
}
