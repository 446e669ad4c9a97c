package httputils

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo"
	"go.uber.org/zap"
)

type ctxKey int

const (
	requestInfoCtxKey ctxKey = iota
)

const HeaderRequestID = "X-Request-Id"

// RequestInfo describes the caller of an HTTP request.
type RequestInfo struct {
	RequestID  string
	ClientIP   string
	Forwarded  []string
	UserAgent  string
	Method     string
	Path       string
	AppVersion string
}

// SetRequestInfo returns a new context with set (or re-set) RequestInfo.
// The client ip is the first X-Forwarded-For hop, else the remote address.
func SetRequestInfo(ctx context.Context, r *http.Request, appVersion string) (context.Context, RequestInfo) {
	ri := RequestInfo{
		RequestID:  r.Header.Get(HeaderRequestID),
		UserAgent:  r.UserAgent(),
		Method:     r.Method,
		Path:       r.URL.Path,
		AppVersion: appVersion,
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := range hops {
			hops[i] = strings.TrimSpace(hops[i])
		}
		ri.ClientIP, ri.Forwarded = hops[0], hops[1:]
	}
	if ri.ClientIP == "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			ri.ClientIP = host
		}
	}
	if ri.RequestID == "" {
		ri.RequestID = uuid.NewString()
	}
	return context.WithValue(ctx, requestInfoCtxKey, ri), ri
}

// GetRequestInfo returns RequestInfo from the context, zero when unset.
func GetRequestInfo(ctx context.Context) (res RequestInfo) {
	res, _ = ctx.Value(requestInfoCtxKey).(RequestInfo)
	return res
}

func (ri RequestInfo) Fields() []zap.Field {
	return []zap.Field{
		zap.String("request_id", ri.RequestID),
		zap.String("client_ip", ri.ClientIP),
		zap.String("path", ri.Path),
	}
}

// RequestInfoMiddleware stores RequestInfo in the request context and echoes
// the request id back.
func RequestInfoMiddleware(appVersion string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx, ri := SetRequestInfo(req.Context(), req, appVersion)
			c.SetRequest(req.WithContext(ctx))
			c.Response().Header().Set(HeaderRequestID, ri.RequestID)
			return next(c)
		}
	}
}
