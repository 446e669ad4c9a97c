// Package app assembles the service from its configuration. Every binary
// builds the same graph and differs only in how it serves it.
package app

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/labstack/echo"
	echo_middleware "github.com/labstack/echo/middleware"
	_ "github.com/lib/pq" // register database driver
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gopkg.in/reform.v1"
	"gopkg.in/reform.v1/dialects/postgresql"

	"github.com/motforex/merchant"
	"github.com/motforex/merchant/api"
	"github.com/motforex/merchant/config"
	"github.com/motforex/merchant/engine"
	"github.com/motforex/merchant/engine/worker"
	"github.com/motforex/merchant/httputils"
	"github.com/motforex/merchant/natsbus"
	"github.com/motforex/merchant/provider"
	"github.com/motforex/merchant/provider/applepay"
	"github.com/motforex/merchant/provider/coinsbuy"
	"github.com/motforex/merchant/provider/golomt"
	"github.com/motforex/merchant/provider/qpay"
	"github.com/motforex/merchant/services/auditor"
	"github.com/motforex/merchant/services/updater"
	"github.com/motforex/merchant/store/dynamostore"
	"github.com/motforex/merchant/store/memstore"
	"github.com/motforex/merchant/store/pgstore"
)

type App struct {
	Config    *config.Configuration
	Registry  *engine.Registry
	Refresher *provider.Refresher
	Tokens    provider.TokenStore

	invoices  merchant.MerchantInvoiceStore
	deposits  merchant.DepositRequestGateway
	journal   provider.OrderJournal
	notifier  merchant.DepositExecutionNotifier
	ec        *nats.EncodedConn
	publisher *natsbus.Publisher
	auditor   *auditor.ProviderAuditor
	health    map[string]httputils.HealthCheck
	closers   []func()
	l         *zap.Logger
}

// New connects every configured backend and registers a Reconciler per
// configured processor. Metrics are registered on reg.
func New(ctx context.Context, cfg *config.Configuration, reg prometheus.Registerer) (*App, error) {
	a := &App{
		Config: cfg,
		health: map[string]httputils.HealthCheck{},
		l:      zap.L().Named("app"),
	}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	if err := a.setupStore(ctx); err != nil {
		return nil, err
	}
	a.setupTokens()
	if err := a.setupNATS(); err != nil {
		return nil, err
	}
	if err := a.setupAuditor(ctx, reg); err != nil {
		return nil, err
	}

	providerMetrics := provider.NewMetrics()
	engineMetrics := engine.NewMetrics()
	if err := registerAll(reg, providerMetrics, engineMetrics); err != nil {
		return nil, err
	}

	clientOpts := []provider.ClientOption{
		provider.WithMetrics(providerMetrics),
		provider.WithHTTPClient(provider.NewHTTPClient(cfg.ProviderTimeout)),
	}
	if a.auditor != nil {
		clientOpts = append(clientOpts, provider.WithAuditor(a.auditor))
	}

	deps := engine.Deps{
		Deposits: a.deposits,
		Invoices: a.invoices,
		Notifier: a.notifier,
		Journal:  a.journal,
		Metrics:  engineMetrics,
	}
	if a.publisher != nil {
		deps.Publisher = a.publisher
	}

	a.Registry = engine.NewRegistry(a.invoices, a.deposits)
	var sources []provider.TokenSource

	if c := cfg.QPay; c.Enabled() {
		qcfg := qpay.Config{
			EntrypointURL:       c.EntrypointURL,
			Username:            c.Username,
			Password:            c.Password,
			InvoiceCode:         c.InvoiceCode,
			InvoiceReceiverCode: c.InvoiceReceiverCode,
		}
		a.Registry.Register(engine.NewReconciler(a.policy(merchant.MethodQPay), qpay.NewProvider(qcfg, a.Tokens, clientOpts...), deps))
		sources = append(sources, qpay.NewTokenSource(qcfg, clientOpts...))
	}
	if c := cfg.Golomt; c.Enabled() {
		gcfg := golomt.Config{
			EntrypointURL: c.EntrypointURL,
			PaymentURL:    c.PaymentURL,
			Secret:        c.Secret,
			Token:         c.Token,
			ReturnType:    c.ReturnType,
		}
		card, social := gcfg, gcfg
		card.Page, social.Page = golomt.CARD, golomt.SOCIALPAY
		a.Registry.Register(engine.NewReconciler(a.policy(merchant.MethodMerchant), golomt.NewProvider(card, a.Tokens, clientOpts...), deps))
		a.Registry.Register(engine.NewReconciler(a.policy(merchant.MethodSocialPay), golomt.NewProvider(social, a.Tokens, clientOpts...), deps))
		sources = append(sources, golomt.NewTokenSource(gcfg, cfg.Tokens.RefreshInterval+time.Hour))
	}
	if c := cfg.Bonum; c.Enabled() {
		a.Registry.Register(engine.NewReconciler(a.policy(merchant.MethodApplePay), applepay.NewProvider(applepay.Config{
			EntrypointURL: c.EntrypointURL,
			AppSecret:     c.AppSecret,
			TerminalID:    c.TerminalID,
		}, clientOpts...), deps))
	}
	if c := cfg.CoinsBuy; c.Enabled() {
		a.Registry.Register(engine.NewReconciler(a.policy(merchant.MethodCoinsBuy), coinsbuy.NewProvider(coinsbuy.Config{
			EntrypointURL:         c.EntrypointURL,
			ClientID:              c.ClientID,
			ClientSecret:          c.ClientSecret,
			WalletID:              c.WalletID,
			ConfirmationsNeeded:   c.ConfirmationsNeeded,
			PaymentPageRedirect:   c.PaymentPageRedirect,
			PaymentPageButtonText: c.PaymentPageButtonText,
		}, clientOpts...), deps))
	}

	a.Refresher = provider.NewRefresher(a.Tokens, cfg.Tokens.RefreshInterval, sources...)
	a.l.Info("Configured.",
		zap.String("store", cfg.Store.Driver),
		zap.Any("methods", a.Registry.Methods()),
		zap.Bool("nats", a.ec != nil),
		zap.Bool("audit", a.auditor != nil),
	)
	ok = true
	return a, nil
}

func (a *App) setupStore(ctx context.Context) error {
	cfg := a.Config.Store
	switch cfg.Driver {
	case config.StorePostgres:
		sqlDB, err := sql.Open("postgres", cfg.PostgresConn)
		if err != nil {
			return errors.Wrap(err, "Failed open postgres")
		}
		sqlDB.SetMaxOpenConns(5)
		sqlDB.SetMaxIdleConns(5)
		a.closers = append(a.closers, func() { sqlDB.Close() })
		if err := sqlDB.PingContext(ctx); err != nil {
			return errors.Wrap(err, "Failed ping postgres")
		}
		db := reform.NewDB(sqlDB, postgresql.Dialect, reform.NewPrintfLogger(zap.L().Sugar().Debugf))
		if cfg.Migrate {
			if err := pgstore.Migrate(db); err != nil {
				return err
			}
		}
		a.invoices = pgstore.NewInvoices(db)
		a.deposits = pgstore.NewDepositRequests(db)
		a.journal = &provider.Store{DB: db}
		a.health["postgres"] = sqlDB.PingContext

	case config.StoreDynamoDB:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return errors.Wrap(err, "Failed load aws config")
		}
		client := dynamodb.NewFromConfig(awsCfg)
		a.invoices = dynamostore.NewInvoices(client, cfg.InvoiceTable)
		a.deposits = dynamostore.NewDepositRequests(client, cfg.DepositTable)

	default:
		a.l.Warn("Using in-memory store.")
		a.invoices = memstore.NewInvoices()
		a.deposits = memstore.NewDepositRequests()
	}
	return nil
}

func (a *App) setupTokens() {
	cfg := a.Config.Redis
	if cfg.Addr == "" {
		a.Tokens = provider.NewMemoryTokenStore()
		return
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	a.closers = append(a.closers, func() { rdb.Close() })
	a.Tokens = provider.NewRedisTokenStore(rdb)
	a.health["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
}

func (a *App) setupNATS() error {
	cfg := a.Config.NATS
	if cfg.URL == "" {
		a.notifier = unconfiguredNotifier{l: zap.L().Named("notifier")}
		return nil
	}
	ec, err := natsbus.Connect(cfg.URL)
	if err != nil {
		return err
	}
	a.ec = ec
	a.closers = append(a.closers, func() {
		if err := ec.Drain(); err != nil {
			ec.Close()
		}
	})
	a.notifier = natsbus.NewNotifier(ec, cfg.ExecuteTimeout)
	a.publisher = natsbus.NewPublisher(ec)
	a.health["nats"] = func(ctx context.Context) error {
		if !ec.Conn.IsConnected() {
			return errors.New("not connected")
		}
		return nil
	}
	return nil
}

func (a *App) setupAuditor(ctx context.Context, reg prometheus.Registerer) error {
	cfg := a.Config.BigQuery
	if cfg.Project == "" {
		return nil
	}
	cl, err := bigquery.NewClient(ctx, cfg.Project)
	if err != nil {
		return errors.Wrap(err, "Failed new client bigquery")
	}
	a.auditor = auditor.NewProviderAuditor(auditor.NewBigQueryInserter(cl, cfg.Dataset, cfg.Table))
	a.closers = append(a.closers, func() {
		a.auditor.Stop()
		cl.Close()
	})
	return registerAll(reg, a.auditor)
}

// policy applies configured overrides to the built in policy of m.
func (a *App) policy(m merchant.MerchantMethod) engine.Policy {
	p := engine.DefaultPolicy(m)
	p.CallbackBaseURL = a.Config.Server.PublicURL
	o, ok := a.Config.Policies[strings.ToLower(string(m))]
	if !ok {
		return p
	}
	if o.PaymentMethodKeyword != "" {
		p.PaymentMethodKeyword = o.PaymentMethodKeyword
	}
	if o.RegenerationCeiling != nil {
		p.RegenerationCeiling = *o.RegenerationCeiling
	}
	if o.TTL > 0 {
		p.TTL = o.TTL
	}
	if o.Description != "" {
		p.Description = o.Description
	}
	return p
}

// Echo builds the HTTP router with every route of the service.
func (a *App) Echo(version string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(echo_middleware.CORSWithConfig(echo_middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.GET, echo.POST, echo.OPTIONS},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, httputils.HeaderRequestID},
	}))
	e.Use(echo_middleware.Recover())
	e.Use(echo_middleware.BodyLimit(a.Config.Server.BodyLimit))
	e.Use(httputils.RequestInfoMiddleware(version))

	opts := []api.Option{api.WithHealthChecks(a.health)}
	if a.ec != nil {
		opts = append(opts, api.WithUpdates(updater.NewServer(natsbus.NewFeed(a.ec), a.Registry).Stream))
		if a.Config.NATS.Workers {
			opts = append(opts, api.WithCheckQueue(a.publisher))
		}
	}
	verifier := api.NewVerifier(a.Config.Auth.JWTSecret, a.Config.Auth.JWTIssuer)
	api.NewServer(a.Registry, verifier, a.Config.Auth.AdminAPIKey, opts...).Register(e)
	return e
}

// StartWorkers consumes queued check requests when enabled.
func (a *App) StartWorkers() error {
	if a.ec == nil || !a.Config.NATS.Workers {
		return nil
	}
	sub, err := worker.New(a.Registry).SubToNATS(a.ec)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() { sub.Unsubscribe() })
	a.l.Info("Check workers started.")
	return nil
}

func (a *App) HealthChecks() map[string]httputils.HealthCheck {
	return a.health
}

// Journal exposes the provider order log; nil unless the postgres store is used.
func (a *App) Journal() *provider.Store {
	s, _ := a.journal.(*provider.Store)
	return s
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func registerAll(reg prometheus.Registerer, cs ...prometheus.Collector) error {
	if reg == nil {
		return nil
	}
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return errors.Wrap(err, "Failed register metrics")
		}
	}
	return nil
}

// unconfiguredNotifier fails executions so that they stay retriable until a
// deposit service is connected.
type unconfiguredNotifier struct {
	l *zap.Logger
}

func (n unconfiguredNotifier) Execute(ctx context.Context, depositID int64, reason string) error {
	return errors.Errorf("deposit notifier is not configured, deposit %d", depositID)
}

func (n unconfiguredNotifier) MarkExpired(ctx context.Context, depositID int64, reason string) error {
	n.l.Warn("Deposit expired, notifier is not configured.", zap.Int64("deposit_id", depositID), zap.String("reason", reason))
	return nil
}
