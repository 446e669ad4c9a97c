package httputils

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type logFunc func(v ...interface{})

func (l logFunc) Println(v ...interface{}) {
	l(v...)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// DebugMux serves /metrics from the default gatherer and /healthz from checks.
func DebugMux(checks map[string]HealthCheck) http.Handler {
	l := zap.L().Named("debugMux")
	sugar := l.Sugar()

	s := http.NewServeMux()

	s.Handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		ErrorLog:      logFunc(sugar.Warn),
		ErrorHandling: promhttp.HTTPErrorOnError,
	}))
	s.Handle("/healthz", HealthHandler(checks))

	return s
}

func HealthHandler(checks map[string]HealthCheck) http.Handler {
	l := zap.L().Named("health")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		for name, check := range checks {
			if err := check(ctx); err != nil {
				l.Warn("Health check failed.", zap.String("check", name), zap.Error(err))
				http.Error(w, name+": "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.Write([]byte("ok"))
	})
}
