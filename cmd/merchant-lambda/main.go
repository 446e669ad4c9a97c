package main

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/motforex/merchant/app"
	"github.com/motforex/merchant/config"
	"github.com/motforex/merchant/provider"
)

var VERSION = "dev"

type handler struct {
	http      *proxy
	refresher *provider.Refresher
}

// probe tells API Gateway proxy requests from scheduled events.
type probe struct {
	HTTPMethod string `json:"httpMethod"`
	Source     string `json:"source"`
}

func (h *handler) Invoke(ctx context.Context, evt json.RawMessage) (interface{}, error) {
	var p probe
	if err := json.Unmarshal(evt, &p); err != nil {
		return nil, errors.Wrap(err, "Failed decode event")
	}
	switch {
	case p.HTTPMethod != "":
		var req events.APIGatewayProxyRequest
		if err := json.Unmarshal(evt, &req); err != nil {
			return nil, errors.Wrap(err, "Failed decode api gateway request")
		}
		return h.http.Serve(ctx, req)

	case p.Source == "aws.events":
		zap.L().Info("Scheduled token refresh.")
		return nil, h.refresher.RefreshAll(ctx)
	}
	return nil, errors.New("unsupported event")
}

func main() {
	defaultLogger("INFO")

	cfg, err := config.Load("")
	if err != nil {
		zap.L().Panic("Failed load config.", zap.Error(err))
	}
	defaultLogger(cfg.LoggerLevel)

	a, err := app.New(context.Background(), cfg, prometheus.DefaultRegisterer)
	if err != nil {
		zap.L().Panic("Failed setup app.", zap.Error(err))
	}
	defer a.Close()

	h := &handler{http: &proxy{h: a.Echo(VERSION)}, refresher: a.Refresher}
	lambda.Start(h.Invoke)
}
