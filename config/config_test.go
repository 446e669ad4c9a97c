package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8081", cfg.Server.Addr)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, 12*time.Hour, cfg.Tokens.RefreshInterval)
	assert.Equal(t, 10*time.Second, cfg.NATS.ExecuteTimeout)
	assert.Equal(t, 30*time.Second, cfg.ProviderTimeout)
	assert.False(t, cfg.QPay.Enabled())
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "merchant.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9000"
  public_url: https://pay.example.com
qpay:
  entrypoint_url: https://merchant.qpay.mn
  username: MOTFOREX
  invoice_code: MOTFOREX_INVOICE
policies:
  QPAY:
    regeneration_ceiling: 3
    ttl: 10m
`), 0o600))

	t.Setenv("MERCHANT_SERVER_ADDR", ":9100")
	t.Setenv("MERCHANT_QPAY_PASSWORD", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Server.Addr)
	assert.Equal(t, "https://pay.example.com", cfg.Server.PublicURL)
	assert.Equal(t, "from-env", cfg.QPay.Password)
	assert.True(t, cfg.QPay.Enabled())

	p, ok := cfg.Policies["qpay"]
	require.True(t, ok)
	require.NotNil(t, p.RegenerationCeiling)
	assert.Equal(t, 3, *p.RegenerationCeiling)
	assert.Equal(t, 10*time.Minute, p.TTL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Configuration)
	}{
		{"unknown driver", func(c *Configuration) { c.Store.Driver = "mongo" }},
		{"postgres without conn", func(c *Configuration) { c.Store.Driver = StorePostgres }},
		{"qpay without username", func(c *Configuration) { c.QPay.EntrypointURL = "https://merchant.qpay.mn" }},
		{"golomt without secret", func(c *Configuration) { c.Golomt.EntrypointURL = "https://ecommerce.golomtbank.com" }},
		{"zero refresh", func(c *Configuration) { c.Tokens.RefreshInterval = 0 }},
		{"negative ceiling", func(c *Configuration) {
			n := -1
			c.Policies = map[string]PolicyConfig{"QPAY": {RegenerationCeiling: &n}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
