package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opencensus.io/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sys/unix"

	"github.com/motforex/merchant/app"
	"github.com/motforex/merchant/config"
	"github.com/motforex/merchant/httputils"
)

var (
	VERSION = "dev"

	configPathF  = flag.String("config", "", "Path to YAML config file.")
	loggerLevelF = flag.String("logger-level", "", "Overrides logger level (DEBUG, INFO, WARN, ERROR).")
	traceF       = flag.Bool("trace", false, "Sample every request for tracing.")
)

func main() {
	var wg sync.WaitGroup
	defaultLogger("INFO")
	flag.Parse()

	cfg, err := config.Load(*configPathF)
	if err != nil {
		zap.L().Panic("Failed load config.", zap.Error(err))
	}
	level := cfg.LoggerLevel
	if *loggerLevelF != "" {
		level = *loggerLevelF
	}
	defaultLogger(level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	zap.L().Info("Starting merchant service...", zap.String("version", VERSION))
	defer func() { zap.L().Info("Done.") }()

	if *traceF {
		trace.ApplyConfig(trace.Config{DefaultSampler: trace.AlwaysSample()})
	}

	a, err := app.New(ctx, cfg, prometheus.DefaultRegisterer)
	if err != nil {
		zap.L().Panic("Failed setup app.", zap.Error(err))
	}
	defer a.Close()

	if err := a.StartWorkers(); err != nil {
		zap.L().Panic("Failed start check workers.", zap.Error(err))
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.Refresher.Run(ctx)
	}()

	e := a.Echo(VERSION)
	httpServer := &http.Server{Addr: cfg.Server.Addr, Handler: e}
	debugServer := &http.Server{Addr: cfg.Server.DebugAddr, Handler: httputils.DebugMux(a.HealthChecks())}

	handleTerm(cancel)

	// graceful stop
	go func() {
		<-ctx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			zap.L().Warn("Failed shutdown http server.", zap.Error(err))
		}
		debugServer.Close()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		zap.L().Info("Debug server start.", zap.String("address", debugServer.Addr))
		if err := debugServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Error("Debug serve error.", zap.Error(err))
		}
	}()

	zap.L().Info("HTTP server start.", zap.String("address", httpServer.Addr))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		zap.L().Panic("Failed to serve.", zap.Error(err))
	}

	wg.Wait()
}

func handleTerm(cancel context.CancelFunc) {
	// first signal stops gracefully, the second one exits
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, unix.SIGTERM, unix.SIGINT)
	go func() {
		s := <-signals
		zap.L().Warn("Shutting down.", zap.String("signal", unix.SignalName(s.(unix.Signal))))
		cancel()

		s = <-signals
		zap.L().Panic("Exiting!", zap.String("signal", unix.SignalName(s.(unix.Signal))))
	}()
}

// Configure configure zap logger.
//
// Available values of level:
// - DEBUG
// - INFO
// - WARN
// - ERROR
// - DPANIC
// - PANIC
// - FATAL
func defaultLogger(levelSet string) {
	level := zapcore.InfoLevel
	if err := level.Set(levelSet); err != nil {
		panic(err)
	}
	config := zap.NewDevelopmentConfig()
	config.Level.SetLevel(level)
	l, err := config.Build(zap.AddStacktrace(zap.ErrorLevel))
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(l)
	zap.RedirectStdLog(l.Named("stdlog"))
}
