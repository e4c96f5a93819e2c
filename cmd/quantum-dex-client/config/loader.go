package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"github.com/quantumauth-io/quantum-dex-client/internal/assets"
	"github.com/quantumauth-io/quantum-dex-client/internal/constants"
	"github.com/quantumauth-io/quantum-dex-client/internal/networks"
	"github.com/quantumauth-io/quantum-dex-client/internal/swap"
)

//go:embed config.yaml
var EmbeddedConfigYAML []byte

const (
	EnvPrefix     = "QDC"
	EnvConfigFile = "QDC_CONFIG"

	GatewayRPC   = "rpc"
	GatewayLocal = "local"
)

type ClientSettings struct {
	LocalHost       string        `mapstructure:"localHost"`
	Port            string        `mapstructure:"port"`
	Gateway         string        `mapstructure:"gateway"`
	WalletRPC       string        `mapstructure:"walletRpc"`
	KeyPath         string        `mapstructure:"keyPath"`
	PollInterval    time.Duration `mapstructure:"pollInterval"`
	RequestTimeout  time.Duration `mapstructure:"requestTimeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
	UIOrigins       []string      `mapstructure:"uiOrigins"`

	// LocalChains limits the chains the local wallet starts with.
	LocalChains  []int64 `mapstructure:"localChains"`
	DefaultChain int64   `mapstructure:"defaultChain"`
}

type HistorySettings struct {
	MaxBlocks       uint64 `mapstructure:"maxBlocks"`
	MaxRecords      int    `mapstructure:"maxRecords"`
	ScanConcurrency int    `mapstructure:"scanConcurrency"`
}

type StatusSettings struct {
	PollInterval time.Duration `mapstructure:"pollInterval"`
}

type Config struct {
	ClientSettings ClientSettings                  `mapstructure:"ClientSettings"`
	Networks       []networks.Network              `mapstructure:"Networks"`
	Assets         map[string][]assets.TokenConfig `mapstructure:"Assets"`
	Routers        map[string]assets.RouterConfig  `mapstructure:"Routers"`
	History        HistorySettings                 `mapstructure:"History"`
	Swap           swap.Config                     `mapstructure:"Swap"`
	Status         StatusSettings                  `mapstructure:"Status"`
}

// SearchPaths lists the directories searched for config.yaml, lowest priority first.
func SearchPaths() []string {
	home, _ := os.UserHomeDir()
	return []string{
		filepath.Join(home, ".config", constants.AppName),
		".",
	}
}

// Load reads the embedded defaults, merges config.yaml from SearchPaths (or
// the file named by QDC_CONFIG), applies QDC_* environment overrides and
// normalizes the result.
func Load() (*Config, error) {
	var files []string
	if explicit := strings.TrimSpace(os.Getenv(EnvConfigFile)); explicit != "" {
		files = []string{explicit}
	} else {
		for _, dir := range SearchPaths() {
			files = append(files, filepath.Join(dir, "config.yaml"))
		}
	}
	return ParseConfigWithEmbedded(files, EmbeddedConfigYAML)
}

// ParseConfigWithEmbedded parses embedded, then merges each existing file in order.
func ParseConfigWithEmbedded(files []string, embedded []byte) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadConfig(bytes.NewReader(embedded)); err != nil {
		return nil, fmt.Errorf("config: embedded: %w", err)
	}

	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		v.SetConfigFile(f)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("config: merge %s: %w", f, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Normalize() error {
	if err := c.NormalizeClientSettings(); err != nil {
		return err
	}
	if err := c.NormalizeAssets(); err != nil {
		return err
	}
	if err := c.NormalizeRouters(); err != nil {
		return err
	}
	if c.Swap.DefaultSlippageBps > constants.MaxSlippageBps {
		return fmt.Errorf("config: Swap.defaultSlippageBps %d exceeds %d", c.Swap.DefaultSlippageBps, constants.MaxSlippageBps)
	}
	if c.Status.PollInterval <= 0 {
		c.Status.PollInterval = constants.DefaultStatusPollInterval
	}
	return nil
}

func (c *Config) NormalizeClientSettings() error {
	s := &c.ClientSettings

	s.LocalHost = strings.TrimSpace(s.LocalHost)
	if s.LocalHost == "" {
		s.LocalHost = "127.0.0.1"
	}
	s.Port = strings.TrimSpace(s.Port)
	if p, err := strconv.Atoi(s.Port); err != nil || p <= 0 || p > 65535 {
		return fmt.Errorf("config: ClientSettings.port %q is not a valid port", s.Port)
	}

	s.Gateway = strings.ToLower(strings.TrimSpace(s.Gateway))
	switch s.Gateway {
	case "":
		s.Gateway = GatewayRPC
	case GatewayRPC, GatewayLocal:
	default:
		return fmt.Errorf("config: ClientSettings.gateway %q (allowed: rpc, local)", s.Gateway)
	}
	s.WalletRPC = strings.TrimSpace(s.WalletRPC)
	if s.Gateway == GatewayRPC && s.WalletRPC == "" {
		return fmt.Errorf("config: ClientSettings.walletRpc is required for the rpc gateway")
	}

	if s.PollInterval <= 0 {
		s.PollInterval = constants.DefaultGatewayPollInterval
	}
	if s.RequestTimeout <= 0 {
		s.RequestTimeout = constants.DefaultRequestTimeout
	}
	if s.ShutdownTimeout <= 0 {
		s.ShutdownTimeout = 5 * time.Second
	}
	return nil
}

// NormalizeAssets rewrites chain keys as decimal ids and addresses in
// checksummed form, dropping duplicate addresses per chain.
func (c *Config) NormalizeAssets() error {
	if c.Assets == nil {
		c.Assets = map[string][]assets.TokenConfig{}
		return nil
	}

	out := make(map[string][]assets.TokenConfig, len(c.Assets))
	for key, list := range c.Assets {
		id, err := networks.ParseChainID(key)
		if err != nil || id <= 0 {
			return fmt.Errorf("config: Assets has invalid chain key %q", key)
		}
		ck := strconv.FormatInt(id, 10)

		seen := map[string]struct{}{}
		for i, tc := range list {
			canon, err := checksum(tc.Address)
			if err != nil {
				return fmt.Errorf("config: Assets[%q][%d]: %w", key, i, err)
			}
			if _, ok := seen[canon]; ok {
				continue
			}
			seen[canon] = struct{}{}
			tc.Address = canon
			tc.Symbol = strings.TrimSpace(tc.Symbol)
			out[ck] = append(out[ck], tc)
		}
	}
	c.Assets = out
	return nil
}

func (c *Config) NormalizeRouters() error {
	if c.Routers == nil {
		c.Routers = map[string]assets.RouterConfig{}
		return nil
	}

	out := make(map[string]assets.RouterConfig, len(c.Routers))
	for key, rc := range c.Routers {
		id, err := networks.ParseChainID(key)
		if err != nil || id <= 0 {
			return fmt.Errorf("config: Routers has invalid chain key %q", key)
		}
		if rc.Router, err = checksum(rc.Router); err != nil {
			return fmt.Errorf("config: Routers[%q].router: %w", key, err)
		}
		if rc.WrappedNative, err = checksum(rc.WrappedNative); err != nil {
			return fmt.Errorf("config: Routers[%q].wrappedNative: %w", key, err)
		}
		out[strconv.FormatInt(id, 10)] = rc
	}
	c.Routers = out
	return nil
}

func checksum(raw string) (string, error) {
	a := strings.TrimSpace(raw)
	if a == "" {
		return "", fmt.Errorf("empty address")
	}
	if !strings.HasPrefix(a, "0x") && !strings.HasPrefix(a, "0X") {
		a = "0x" + a
	}
	if !common.IsHexAddress(a) {
		return "", fmt.Errorf("invalid address %q", raw)
	}
	return common.HexToAddress(a).Hex(), nil
}
