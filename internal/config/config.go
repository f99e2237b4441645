package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/detradefund/stack-mon-prime/internal/domain/entity"
)

// Config holds the overall configuration for the oracle.
type Config struct {
	Server    ServerConfig        `yaml:"server"`
	Networks  []NetworkConfig     `yaml:"networks"`
	Tokens    []entity.Token      `yaml:"tokens"`
	Fund      FundConfig          `yaml:"fund"`
	Quote     QuoteServiceConfig  `yaml:"quoteService"`
	Pendle    PendleConfig        `yaml:"pendle"`
	Pools     PoolsConfig         `yaml:"pools"`
	Mongo     MongoConfig         `yaml:"mongo"`
	Runner    RunnerConfig        `yaml:"runner"`
	RpcClient RpcClientConfig     `yaml:"rpcClient"`
	Logging   LoggingConfig       `yaml:"logging"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port         string `yaml:"port"`
	ReadTimeout  int    `yaml:"readTimeout"`
	WriteTimeout int    `yaml:"writeTimeout"`
	IdleTimeout  int    `yaml:"idleTimeout"`
}

// NetworkConfig holds the configuration for one EVM network.
// RPC endpoints may reference environment variables ("${ETHEREUM_RPC}")
// so secrets stay out of the file.
type NetworkConfig struct {
	Name                 string `yaml:"name"`
	ChainID              int64  `yaml:"chainID"`
	RPCURL               string `yaml:"rpcURL"`
	QuoteAPIName         string `yaml:"quoteAPIName"`
	NativeSymbol         string `yaml:"nativeSymbol"`
	NativeDecimals       uint8  `yaml:"nativeDecimals"`
	WrappedNativeAddress string `yaml:"wrappedNativeAddress"`
	ReferenceAddress     string `yaml:"referenceAddress"`
	ReferenceDecimals    uint8  `yaml:"referenceDecimals"`
}

// FundConfig identifies the fund share token whose total supply divides
// the NAV into a share price, and the tracked vault address.
type FundConfig struct {
	Address       string `yaml:"address"`
	ShareToken    string `yaml:"shareToken"`
	ShareNetwork  string `yaml:"shareNetwork"`
	ShareDecimals uint8  `yaml:"shareDecimals"`
}

// QuoteServiceConfig holds configuration for the CoW Protocol client.
type QuoteServiceConfig struct {
	BaseURL              string `yaml:"baseURL"`
	RequestTimeoutMillis int64  `yaml:"requestTimeoutMillis"`
	MaxRetries           int    `yaml:"maxRetries"`
	RetryDelayMs         int64  `yaml:"retryDelayMs"`
	// FallbackReferenceUnits is the notional token count used for price
	// discovery when the real amount is too small to route.
	FallbackReferenceUnits int64 `yaml:"fallbackReferenceUnits"`
}

// PendleConfig holds configuration for the Pendle SDK API client.
type PendleConfig struct {
	BaseURL              string `yaml:"baseURL"`
	RequestTimeoutMillis int64  `yaml:"requestTimeoutMillis"`
	Slippage             string `yaml:"slippage"`
}

// PoolsConfig lists the staked LP positions per protocol.
type PoolsConfig struct {
	Convex     []ConvexPoolConfig     `yaml:"convex"`
	Equilibria []EquilibriaPoolConfig `yaml:"equilibria"`
}

// ConvexPoolConfig describes one staked Curve LP position. Coins are
// resolved against the token registry; reserves and supply are always
// read live, never assumed.
type ConvexPoolConfig struct {
	Name            string   `yaml:"name"`
	Network         string   `yaml:"network"`
	LPToken         string   `yaml:"lpToken"`
	RewardsContract string   `yaml:"rewardsContract"`
	NCoins          int      `yaml:"nCoins"`
	CoinSymbols     []string `yaml:"coins"`
	RewardSymbols   []string `yaml:"rewardTokens"`
}

// EquilibriaPoolConfig describes one staked Pendle LP position held
// through the Equilibria booster.
type EquilibriaPoolConfig struct {
	Name          string   `yaml:"name"`
	Network       string   `yaml:"network"`
	RewardPool    string   `yaml:"rewardPool"`
	Market        string   `yaml:"market"`
	LPDecimals    uint8    `yaml:"lpDecimals"`
	RewardSymbols []string `yaml:"rewardTokens"`
}

// MongoConfig holds the snapshot store settings. URI comes from the
// environment, the rest from the file.
type MongoConfig struct {
	URIEnv         string `yaml:"uriEnv"`
	Database       string `yaml:"database"`
	Collection     string `yaml:"collection"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
	MaxRetries     int    `yaml:"maxRetries"`
	RetryDelayMs   int64  `yaml:"retryDelayMs"`
}

// RunnerConfig bounds one aggregation run.
type RunnerConfig struct {
	MaxConcurrentAdapters int `yaml:"maxConcurrentAdapters"`
	AdapterTimeoutSeconds int `yaml:"adapterTimeoutSeconds"`
	RunBudgetSeconds      int `yaml:"runBudgetSeconds"`
}

// RpcClientConfig holds configuration for chain read clients.
type RpcClientConfig struct {
	DialTimeoutMs int64 `yaml:"dialTimeoutMs"`
	CallTimeoutMs int64 `yaml:"callTimeoutMs"`
	MaxRetries    int   `yaml:"maxRetries"`
	RetryDelayMs  int64 `yaml:"retryDelayMs"`
	RateLimit     int   `yaml:"rateLimit"`
	BurstLimit    int   `yaml:"burstLimit"`
}

// LoggingConfig holds the configuration for logging.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
}

// LoadConfig loads configuration from a YAML file, expands environment
// references in RPC endpoints and applies defaults.
func LoadConfig(path string) (*Config, error) {
	logrus.Infof("Loading configuration from path: %s", path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config data from %s: %w", path, err)
	}

	applyDefaults(&cfg)

	for i := range cfg.Networks {
		cfg.Networks[i].RPCURL = os.ExpandEnv(cfg.Networks[i].RPCURL)
		if cfg.Networks[i].RPCURL == "" {
			return nil, fmt.Errorf("network %q has no RPC endpoint configured: %w",
				cfg.Networks[i].Name, entity.ErrUnknownNetwork)
		}
		if cfg.Networks[i].QuoteAPIName == "" {
			cfg.Networks[i].QuoteAPIName = cfg.Networks[i].Name
		}
	}

	if cfg.Fund.Address == "" {
		return nil, fmt.Errorf("fund.address is required")
	}
	if cfg.Fund.ShareToken == "" || cfg.Fund.ShareNetwork == "" {
		return nil, fmt.Errorf("fund share token configuration is required")
	}

	logrus.Info("Configuration loaded successfully.")
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60
	}

	if cfg.Quote.BaseURL == "" {
		cfg.Quote.BaseURL = "https://api.cow.fi"
		logrus.Infof("quoteService.baseURL not set, defaulting to %s", cfg.Quote.BaseURL)
	}
	if cfg.Quote.RequestTimeoutMillis == 0 {
		cfg.Quote.RequestTimeoutMillis = 10000
	}
	if cfg.Quote.MaxRetries == 0 {
		cfg.Quote.MaxRetries = 3
	}
	if cfg.Quote.RetryDelayMs == 0 {
		cfg.Quote.RetryDelayMs = 1000
	}
	if cfg.Quote.FallbackReferenceUnits == 0 {
		cfg.Quote.FallbackReferenceUnits = 1000
		logrus.Infof("quoteService.fallbackReferenceUnits not set, defaulting to %d", cfg.Quote.FallbackReferenceUnits)
	}

	if cfg.Pendle.BaseURL == "" {
		cfg.Pendle.BaseURL = "https://api-v2.pendle.finance/core/v1/sdk"
	}
	if cfg.Pendle.RequestTimeoutMillis == 0 {
		cfg.Pendle.RequestTimeoutMillis = 10000
	}
	if cfg.Pendle.Slippage == "" {
		cfg.Pendle.Slippage = "1"
	}

	if cfg.Mongo.URIEnv == "" {
		cfg.Mongo.URIEnv = "MONGO_URI"
	}
	if cfg.Mongo.TimeoutSeconds == 0 {
		cfg.Mongo.TimeoutSeconds = 10
	}
	if cfg.Mongo.MaxRetries == 0 {
		cfg.Mongo.MaxRetries = 3
	}
	if cfg.Mongo.RetryDelayMs == 0 {
		cfg.Mongo.RetryDelayMs = 2000
	}

	if cfg.Runner.MaxConcurrentAdapters <= 0 {
		cfg.Runner.MaxConcurrentAdapters = 4
	}
	if cfg.Runner.AdapterTimeoutSeconds <= 0 {
		cfg.Runner.AdapterTimeoutSeconds = 120
	}
	if cfg.Runner.RunBudgetSeconds <= 0 {
		cfg.Runner.RunBudgetSeconds = 600
	}

	if cfg.RpcClient.DialTimeoutMs == 0 {
		cfg.RpcClient.DialTimeoutMs = 10000
	}
	if cfg.RpcClient.CallTimeoutMs == 0 {
		cfg.RpcClient.CallTimeoutMs = 10000
	}
	if cfg.RpcClient.MaxRetries == 0 {
		cfg.RpcClient.MaxRetries = 3
	}
	if cfg.RpcClient.RetryDelayMs == 0 {
		cfg.RpcClient.RetryDelayMs = 1000
	}
	if cfg.RpcClient.RateLimit == 0 {
		cfg.RpcClient.RateLimit = 20
	}
	if cfg.RpcClient.BurstLimit == 0 {
		cfg.RpcClient.BurstLimit = 40
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = 100
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 3
	}
}

// MongoURI resolves the store connection string from the environment.
func (c *Config) MongoURI() (string, error) {
	uri := os.Getenv(c.Mongo.URIEnv)
	if uri == "" {
		return "", fmt.Errorf("environment variable %s is not set", c.Mongo.URIEnv)
	}
	return uri, nil
}

// Registry is the immutable lookup view over networks and tokens,
// constructed once at startup and passed into every component. No
// ambient global state.
type Registry struct {
	networks       map[string]entity.Network
	tokensBySymbol map[string]entity.Token // "network/symbol"
	tokensByAddr   map[string]entity.Token // "network/0x..." lowercased
}

// NewRegistry builds the registry from loaded configuration.
func NewRegistry(cfg *Config) (*Registry, error) {
	r := &Registry{
		networks:       make(map[string]entity.Network, len(cfg.Networks)),
		tokensBySymbol: make(map[string]entity.Token, len(cfg.Tokens)),
		tokensByAddr:   make(map[string]entity.Token, len(cfg.Tokens)),
	}
	for _, nc := range cfg.Networks {
		r.networks[nc.Name] = entity.Network{
			Name:                 nc.Name,
			ChainID:              nc.ChainID,
			RPCURL:               nc.RPCURL,
			QuoteAPIName:         nc.QuoteAPIName,
			NativeSymbol:         nc.NativeSymbol,
			NativeDecimals:       nc.NativeDecimals,
			WrappedNativeAddress: nc.WrappedNativeAddress,
			ReferenceAddress:     nc.ReferenceAddress,
			ReferenceDecimals:    nc.ReferenceDecimals,
		}
	}
	for _, t := range cfg.Tokens {
		if _, ok := r.networks[t.Network]; !ok {
			return nil, fmt.Errorf("token %s references network %q: %w",
				t.Symbol, t.Network, entity.ErrUnknownNetwork)
		}
		r.tokensBySymbol[t.Network+"/"+t.Symbol] = t
		r.tokensByAddr[t.Network+"/"+strings.ToLower(t.Address)] = t
	}
	return r, nil
}

// Network returns the definition for the named network.
func (r *Registry) Network(name string) (entity.Network, error) {
	n, ok := r.networks[name]
	if !ok {
		return entity.Network{}, fmt.Errorf("%q: %w", name, entity.ErrUnknownNetwork)
	}
	return n, nil
}

// Networks returns all registered networks.
func (r *Registry) Networks() []entity.Network {
	out := make([]entity.Network, 0, len(r.networks))
	for _, n := range r.networks {
		out = append(out, n)
	}
	return out
}

// Token looks a token up by network and symbol.
func (r *Registry) Token(network, symbol string) (entity.Token, error) {
	t, ok := r.tokensBySymbol[network+"/"+symbol]
	if !ok {
		return entity.Token{}, fmt.Errorf("%s on %s: %w", symbol, network, entity.ErrUnknownToken)
	}
	return t, nil
}

// TokenByAddress looks a token up by network and contract address.
func (r *Registry) TokenByAddress(network, address string) (entity.Token, error) {
	t, ok := r.tokensByAddr[network+"/"+strings.ToLower(address)]
	if !ok {
		return entity.Token{}, fmt.Errorf("%s on %s: %w", address, network, entity.ErrUnknownToken)
	}
	return t, nil
}

// TokensByProtocol returns every registry token tagged for a protocol.
func (r *Registry) TokensByProtocol(protocol string) []entity.Token {
	var out []entity.Token
	for _, t := range r.tokensBySymbol {
		if t.Protocol == protocol {
			out = append(out, t)
		}
	}
	return out
}

// SpotTokens returns the plain (untagged) holdings for one network.
func (r *Registry) SpotTokens(network string) []entity.Token {
	var out []entity.Token
	for _, t := range r.tokensBySymbol {
		if t.Network == network && t.Protocol == "" {
			out = append(out, t)
		}
	}
	return out
}
