package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumauth-io/quantum-dex-client/internal/assets"
	"github.com/quantumauth-io/quantum-dex-client/internal/networks"
)

func TestEmbeddedDefaults(t *testing.T) {
	cfg, err := ParseConfigWithEmbedded(nil, EmbeddedConfigYAML)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.ClientSettings.LocalHost)
	assert.Equal(t, "8090", cfg.ClientSettings.Port)
	assert.Equal(t, GatewayRPC, cfg.ClientSettings.Gateway)
	assert.Equal(t, 2*time.Second, cfg.ClientSettings.PollInterval)
	assert.Equal(t, 15*time.Second, cfg.Status.PollInterval)

	assert.Equal(t, uint64(100), cfg.History.MaxBlocks)
	assert.Equal(t, 10, cfg.History.MaxRecords)
	assert.Equal(t, uint32(50), cfg.Swap.DefaultSlippageBps)
	assert.Equal(t, int64(1200), cfg.Swap.DeadlineSeconds)
	assert.True(t, cfg.Swap.RevokeOnFailure)

	require.Len(t, cfg.Assets["11155111"], 4)
	assert.Equal(t, "USDC", cfg.Assets["11155111"][0].Symbol)
	assert.Equal(t, "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D", cfg.Routers["11155111"].Router)

	// the defaults must build the runtime registries
	nets, err := networks.NewRegistry(cfg.Networks, "")
	require.NoError(t, err)
	_, ok := nets.Lookup(11155111)
	assert.True(t, ok)

	reg, err := assets.NewRegistry(cfg.Assets, cfg.Routers)
	require.NoError(t, err)
	ri, err := reg.Router(11155111)
	require.NoError(t, err)
	usdc, err := reg.Resolve(11155111, "ETH", "USDC")
	require.NoError(t, err)
	usdt, err := reg.Resolve(11155111, "ETH", "USDT")
	require.NoError(t, err)
	assert.True(t, ri.HasDirectPair(usdc, usdt))
}

func TestFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ClientSettings:
  port: "9100"
  gateway: "LOCAL"
Swap:
  defaultSlippageBps: 100
`), 0o600))

	t.Setenv("QDC_HISTORY_MAXRECORDS", "25")

	cfg, err := ParseConfigWithEmbedded([]string{filepath.Join(dir, "missing.yaml"), path}, EmbeddedConfigYAML)
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.ClientSettings.Port)
	assert.Equal(t, GatewayLocal, cfg.ClientSettings.Gateway, "gateway kind is case-insensitive")
	assert.Equal(t, uint32(100), cfg.Swap.DefaultSlippageBps)
	assert.Equal(t, int64(1200), cfg.Swap.DeadlineSeconds, "unset keys keep embedded values")
	assert.Equal(t, 25, cfg.History.MaxRecords)
}

func TestNormalize(t *testing.T) {
	valid := func() Config {
		return Config{
			ClientSettings: ClientSettings{Port: "8090", Gateway: "rpc", WalletRPC: "http://127.0.0.1:1248"},
			Assets: map[string][]assets.TokenConfig{
				"0xaa36a7": {
					{Address: "94a9d9ac8a22534e3faca9f4e7f2e2cf85d5e4c8", Symbol: " USDC "},
					{Address: "0x94A9D9AC8A22534E3FACA9F4E7F2E2CF85D5E4C8", Symbol: "USDC"},
				},
			},
		}
	}

	t.Run("canonicalizes", func(t *testing.T) {
		cfg := valid()
		require.NoError(t, cfg.Normalize())
		require.Len(t, cfg.Assets["11155111"], 1, "hex chain key rewritten, duplicate dropped")
		tok := cfg.Assets["11155111"][0]
		assert.Equal(t, "0x94a9D9AC8a22534E3FaCa9F4e7F2E2cf85d5E4C8", tok.Address)
		assert.Equal(t, "USDC", tok.Symbol)
		assert.Equal(t, "127.0.0.1", cfg.ClientSettings.LocalHost)
		assert.Equal(t, 15*time.Second, cfg.Status.PollInterval)
	})

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad port", func(c *Config) { c.ClientSettings.Port = "http" }},
		{"unknown gateway", func(c *Config) { c.ClientSettings.Gateway = "metamask" }},
		{"rpc gateway without url", func(c *Config) { c.ClientSettings.WalletRPC = " " }},
		{"bad chain key", func(c *Config) { c.Assets["sepolia"] = nil }},
		{"bad token address", func(c *Config) {
			c.Assets["1"] = []assets.TokenConfig{{Address: "0x1234", Symbol: "BAD"}}
		}},
		{"bad router", func(c *Config) {
			c.Routers = map[string]assets.RouterConfig{"1": {Router: "", WrappedNative: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"}}
		}},
		{"slippage above 100%", func(c *Config) { c.Swap.DefaultSlippageBps = 10_001 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Normalize())
		})
	}
}
