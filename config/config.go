// Package config loads the service configuration once at startup. Nothing else
// in the module reads the environment.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const envPrefix = "MERCHANT"

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreDynamoDB = "dynamodb"
)

type Configuration struct {
	LoggerLevel string `mapstructure:"logger_level"`

	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Store    StoreConfig    `mapstructure:"store"`
	Redis    RedisConfig    `mapstructure:"redis"`
	NATS     NATSConfig     `mapstructure:"nats"`
	BigQuery BigQueryConfig `mapstructure:"bigquery"`
	Tokens   TokensConfig   `mapstructure:"tokens"`

	// ProviderTimeout bounds every request to a processor.
	ProviderTimeout time.Duration `mapstructure:"provider_timeout"`

	QPay     QPayConfig     `mapstructure:"qpay"`
	Golomt   GolomtConfig   `mapstructure:"golomt"`
	Bonum    BonumConfig    `mapstructure:"bonum"`
	CoinsBuy CoinsBuyConfig `mapstructure:"coinsbuy"`

	// Policies override the built in per method policy, keyed by method name.
	Policies map[string]PolicyConfig `mapstructure:"policies"`
}

type ServerConfig struct {
	Addr      string `mapstructure:"addr"`
	DebugAddr string `mapstructure:"debug_addr"`
	// PublicURL is where providers reach the callback endpoint.
	PublicURL string `mapstructure:"public_url"`
	BodyLimit string `mapstructure:"body_limit"`
}

type AuthConfig struct {
	JWTSecret   string `mapstructure:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer"`
	AdminAPIKey string `mapstructure:"admin_api_key"`
}

type StoreConfig struct {
	Driver       string `mapstructure:"driver"`
	PostgresConn string `mapstructure:"postgres_conn"`
	Migrate      bool   `mapstructure:"migrate"`
	AWSRegion    string `mapstructure:"aws_region"`
	InvoiceTable string `mapstructure:"invoice_table"`
	DepositTable string `mapstructure:"deposit_table"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	ExecuteTimeout time.Duration `mapstructure:"execute_timeout"`
	// Workers consume queued check requests in this process.
	Workers bool `mapstructure:"workers"`
}

type BigQueryConfig struct {
	Project string `mapstructure:"project"`
	Dataset string `mapstructure:"dataset"`
	Table   string `mapstructure:"table"`
}

type TokensConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

type QPayConfig struct {
	EntrypointURL       string `mapstructure:"entrypoint_url"`
	Username            string `mapstructure:"username"`
	Password            string `mapstructure:"password"`
	InvoiceCode         string `mapstructure:"invoice_code"`
	InvoiceReceiverCode string `mapstructure:"invoice_receiver_code"`
}

func (c QPayConfig) Enabled() bool { return c.EntrypointURL != "" }

type GolomtConfig struct {
	EntrypointURL string `mapstructure:"entrypoint_url"`
	PaymentURL    string `mapstructure:"payment_url"`
	Secret        string `mapstructure:"secret"`
	Token         string `mapstructure:"token"`
	ReturnType    string `mapstructure:"return_type"`
}

func (c GolomtConfig) Enabled() bool { return c.EntrypointURL != "" }

type BonumConfig struct {
	EntrypointURL string `mapstructure:"entrypoint_url"`
	AppSecret     string `mapstructure:"app_secret"`
	TerminalID    string `mapstructure:"terminal_id"`
}

func (c BonumConfig) Enabled() bool { return c.EntrypointURL != "" }

type CoinsBuyConfig struct {
	EntrypointURL         string `mapstructure:"entrypoint_url"`
	ClientID              string `mapstructure:"client_id"`
	ClientSecret          string `mapstructure:"client_secret"`
	WalletID              string `mapstructure:"wallet_id"`
	ConfirmationsNeeded   int    `mapstructure:"confirmations_needed"`
	PaymentPageRedirect   string `mapstructure:"payment_page_redirect"`
	PaymentPageButtonText string `mapstructure:"payment_page_button_text"`
}

func (c CoinsBuyConfig) Enabled() bool { return c.EntrypointURL != "" }

type PolicyConfig struct {
	PaymentMethodKeyword string        `mapstructure:"payment_method_keyword"`
	RegenerationCeiling  *int          `mapstructure:"regeneration_ceiling"`
	TTL                  time.Duration `mapstructure:"ttl"`
	Description          string        `mapstructure:"description"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger_level", "INFO")
	v.SetDefault("server.addr", ":8081")
	v.SetDefault("server.debug_addr", ":8082")
	v.SetDefault("server.body_limit", "64K")
	v.SetDefault("store.driver", StoreMemory)
	v.SetDefault("store.aws_region", "ap-northeast-2")
	v.SetDefault("nats.execute_timeout", 10*time.Second)
	v.SetDefault("bigquery.dataset", "merchant")
	v.SetDefault("bigquery.table", "provider_exchanges")
	v.SetDefault("tokens.refresh_interval", 12*time.Hour)
	v.SetDefault("provider_timeout", 30*time.Second)
	v.SetDefault("golomt.return_type", "POST")
	v.SetDefault("coinsbuy.confirmations_needed", 1)
}

// keys that environment overrides may target; viper only maps env vars for
// keys it knows about.
var envKeys = []string{
	"logger_level",
	"server.addr", "server.debug_addr", "server.public_url", "server.body_limit",
	"auth.jwt_secret", "auth.jwt_issuer", "auth.admin_api_key",
	"store.driver", "store.postgres_conn", "store.migrate", "store.aws_region", "store.invoice_table", "store.deposit_table",
	"redis.addr", "redis.password", "redis.db",
	"nats.url", "nats.execute_timeout", "nats.workers",
	"bigquery.project", "bigquery.dataset", "bigquery.table",
	"tokens.refresh_interval",
	"qpay.entrypoint_url", "qpay.username", "qpay.password", "qpay.invoice_code", "qpay.invoice_receiver_code",
	"golomt.entrypoint_url", "golomt.payment_url", "golomt.secret", "golomt.token", "golomt.return_type",
	"bonum.entrypoint_url", "bonum.app_secret", "bonum.terminal_id",
	"coinsbuy.entrypoint_url", "coinsbuy.client_id", "coinsbuy.client_secret", "coinsbuy.wallet_id",
	"coinsbuy.confirmations_needed", "coinsbuy.payment_page_redirect", "coinsbuy.payment_page_button_text",
}

// Load reads .env (when present), the optional YAML file at path and
// MERCHANT_* environment variables, in increasing priority.
func Load(path string) (*Configuration, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "Failed load .env")
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range envKeys {
		if err := v.BindEnv(k); err != nil {
			return nil, errors.Wrapf(err, "Failed bind env %s", k)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "Failed read config %s", path)
		}
	}

	cfg := new(Configuration)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "Failed unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Configuration) Validate() error {
	switch c.Store.Driver {
	case StoreMemory, StoreDynamoDB:
	case StorePostgres:
		if c.Store.PostgresConn == "" {
			return errors.New("store.postgres_conn is required for the postgres store")
		}
	default:
		return errors.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Tokens.RefreshInterval <= 0 {
		return errors.New("tokens.refresh_interval must be positive")
	}
	if c.QPay.Enabled() && (c.QPay.Username == "" || c.QPay.InvoiceCode == "") {
		return errors.New("qpay.username and qpay.invoice_code are required")
	}
	if c.Golomt.Enabled() && (c.Golomt.Secret == "" || c.Golomt.PaymentURL == "") {
		return errors.New("golomt.secret and golomt.payment_url are required")
	}
	if c.Bonum.Enabled() && (c.Bonum.AppSecret == "" || c.Bonum.TerminalID == "") {
		return errors.New("bonum.app_secret and bonum.terminal_id are required")
	}
	if c.CoinsBuy.Enabled() && (c.CoinsBuy.ClientID == "" || c.CoinsBuy.WalletID == "") {
		return errors.New("coinsbuy.client_id and coinsbuy.wallet_id are required")
	}
	for name, p := range c.Policies {
		if p.RegenerationCeiling != nil && *p.RegenerationCeiling < 0 {
			return errors.Errorf("policies.%s.regeneration_ceiling must not be negative", name)
		}
		if p.TTL < 0 {
			return errors.Errorf("policies.%s.ttl must not be negative", name)
		}
	}
	return nil
}
