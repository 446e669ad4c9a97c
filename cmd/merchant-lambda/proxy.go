package main

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// proxy serves API Gateway proxy requests with a regular http.Handler.
type proxy struct {
	h http.Handler
}

func (p *proxy) Serve(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	r, err := newHTTPRequest(ctx, req)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	rec := httptest.NewRecorder()
	p.h.ServeHTTP(rec, r)

	res := events.APIGatewayProxyResponse{
		StatusCode:        rec.Code,
		MultiValueHeaders: map[string][]string(rec.Header()),
		Body:              rec.Body.String(),
	}
	return res, nil
}

func newHTTPRequest(ctx context.Context, req events.APIGatewayProxyRequest) (*http.Request, error) {
	q := url.Values{}
	for k, v := range req.QueryStringParameters {
		q.Set(k, v)
	}
	for k, vs := range req.MultiValueQueryStringParameters {
		q[k] = vs
	}
	u := url.URL{Path: req.Path, RawQuery: q.Encode()}

	body := req.Body
	if req.IsBase64Encoded {
		b, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return nil, errors.Wrap(err, "Failed decode body")
		}
		body = string(b)
	}

	r, err := http.NewRequestWithContext(ctx, req.HTTPMethod, u.String(), strings.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "Failed build request")
	}
	for k, v := range req.Headers {
		r.Header.Set(k, v)
	}
	for k, vs := range req.MultiValueHeaders {
		r.Header[http.CanonicalHeaderKey(k)] = vs
	}
	if r.Header.Get("X-Request-Id") == "" && req.RequestContext.RequestID != "" {
		r.Header.Set("X-Request-Id", req.RequestContext.RequestID)
	}
	if ip := req.RequestContext.Identity.SourceIP; ip != "" {
		r.RemoteAddr = ip + ":0"
	}
	return r, nil
}

// Configure configure zap logger.
func defaultLogger(levelSet string) {
	level := zapcore.InfoLevel
	if err := level.Set(levelSet); err != nil {
		panic(err)
	}
	config := zap.NewProductionConfig()
	config.Level.SetLevel(level)
	l, err := config.Build(zap.AddStacktrace(zap.ErrorLevel))
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(l)
	zap.RedirectStdLog(l.Named("stdlog"))
}
