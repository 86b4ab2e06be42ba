// Package config provides configuration loading for claimsctl.
//
// The configuration record mirrors a Hardhat project config: a compiler list, one entry per
// named network (RPC URL, chain ID, accounts, request timeout) and explorer API keys. Built-in
// networks read their parameters from the same environment variables the contracts project
// uses (BSC_RPC, BSC_CID, PKEY, ...), optionally loaded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for claimsctl's own environment overrides (registry, lock, metrics, signer).
const EnvPrefix = "CLAIMSCTL"

// DefaultNetworkName is used when no network is selected.
const DefaultNetworkName = "hardhat"

// Config holds all configuration for claimsctl.
type Config struct {
	DefaultNetwork string                    `mapstructure:"default_network"`
	Solidity       SolidityConfig            `mapstructure:"solidity"`
	Networks       map[string]NetworkConfig  `mapstructure:"networks"`
	Explorers      map[string]ExplorerConfig `mapstructure:"explorers"`
	Artifacts      ArtifactsConfig           `mapstructure:"artifacts"`
	Signer         SignerConfig              `mapstructure:"signer"`
	Registry       RegistryConfig            `mapstructure:"registry"`
	Lock           LockConfig                `mapstructure:"lock"`
	Metrics        MetricsConfig             `mapstructure:"metrics"`
}

// SolidityConfig lists the compiler versions the contracts are built with.
type SolidityConfig struct {
	Compilers []CompilerConfig `mapstructure:"compilers"`
}

// CompilerConfig is a single solc version entry.
type CompilerConfig struct {
	Version string `mapstructure:"version"`
}

// ExplorerConfig holds an Etherscan-compatible explorer endpoint.
type ExplorerConfig struct {
	APIURL     string `mapstructure:"api_url"`
	BrowserURL string `mapstructure:"browser_url"`
	APIKey     string `mapstructure:"api_key"`
}

// ArtifactsConfig locates compiled contract artifacts.
type ArtifactsConfig struct {
	Root string `mapstructure:"root"`
}

// SignerConfig selects a signer source other than the network's accounts.
type SignerConfig struct {
	RemoteURL        string `mapstructure:"remote_url"`
	RemoteAPIKey     string `mapstructure:"remote_api_key"`
	RemoteAddress    string `mapstructure:"remote_address"`
	Keystore         string `mapstructure:"keystore"`
	KeystorePassword string `mapstructure:"keystore_password"`
}

// RegistryConfig selects where deployment records are kept.
type RegistryConfig struct {
	Driver string `mapstructure:"driver"` // file, postgres, none
	Dir    string `mapstructure:"dir"`
	DSN    string `mapstructure:"dsn"`
}

// LockConfig holds Redis configuration for the per-account deploy lock.
type LockConfig struct {
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// Enabled reports whether a Redis address is configured.
func (c LockConfig) Enabled() bool {
	return c.RedisAddr != ""
}

// MetricsConfig holds Prometheus Pushgateway configuration.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// LoadOptions controls where configuration is read from.
type LoadOptions struct {
	// ConfigFile is an explicit YAML config path. When empty, claimsctl.yaml is searched
	// in the working directory and ./config.
	ConfigFile string
	// EnvFile is a dotenv file merged into the process environment. Missing files are ignored.
	EnvFile string
}

// Load reads configuration from files and environment variables.
func Load(opts LoadOptions) (*Config, error) {
	if opts.EnvFile != "" {
		if err := loadEnvFile(opts.EnvFile); err != nil {
			return nil, err
		}
	}

	v := viper.New()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("claimsctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindNetworkEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || opts.ConfigFile != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file: built-in networks and environment only.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile merges a dotenv file into the process environment.
// Variables already present in the environment win.
func loadEnvFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read env file %s: %w", path, err)
	}

	for _, key := range v.AllKeys() {
		name := strings.ToUpper(key)
		if _, set := os.LookupEnv(name); set {
			continue
		}
		if err := os.Setenv(name, v.GetString(key)); err != nil {
			return fmt.Errorf("set %s: %w", name, err)
		}
	}
	return nil
}

// setDefaults configures default values for all settings.
func setDefaults(v *viper.Viper) {
	v.SetDefault("default_network", DefaultNetworkName)

	v.SetDefault("solidity.compilers", []map[string]any{
		{"version": "0.8.18"},
		{"version": "0.8.20"},
	})

	for _, n := range builtinNetworks {
		prefix := "networks." + n.name + "."
		v.SetDefault(prefix+"timeout", defaultRPCTimeout)
		v.SetDefault(prefix+"polling_interval", defaultPollingInterval)
		if n.explorer != "" {
			v.SetDefault(prefix+"explorer", n.explorer)
		}
		if n.local {
			v.SetDefault(prefix+"url", localRPCURL)
			v.SetDefault(prefix+"chain_id", localChainID)
			v.SetDefault(prefix+"local", true)
		}
	}

	for name, e := range builtinExplorers {
		prefix := "explorers." + name + "."
		v.SetDefault(prefix+"api_url", e.APIURL)
		v.SetDefault(prefix+"browser_url", e.BrowserURL)
	}

	v.SetDefault("artifacts.root", "artifacts")

	v.SetDefault("registry.driver", "file")
	v.SetDefault("registry.dir", "deployments")

	v.SetDefault("lock.redis_db", 0)
	v.SetDefault("lock.ttl", "5m")

	v.SetDefault("metrics.job", "claimsctl")
}

// bindNetworkEnv binds the built-in networks and explorers to the environment
// variables of the contracts project.
func bindNetworkEnv(v *viper.Viper) {
	for _, n := range builtinNetworks {
		if n.local {
			continue
		}
		prefix := "networks." + n.name + "."
		_ = v.BindEnv(prefix+"url", n.urlEnv)
		_ = v.BindEnv(prefix+"chain_id", n.chainIDEnv)
		_ = v.BindEnv(prefix+"accounts", accountsEnv)
	}
	for name, env := range explorerKeyEnv {
		_ = v.BindEnv("explorers."+name+".api_key", env)
	}
}

// Network resolves and validates a named network. An empty name selects DefaultNetwork.
func (c *Config) Network(name string) (*Network, error) {
	if name == "" {
		name = c.DefaultNetwork
	}
	if name == "" {
		name = DefaultNetworkName
	}

	nc, ok := c.Networks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownNetwork, name, strings.Join(c.NetworkNames(), ", "))
	}
	return nc.resolve(name)
}

// NetworkNames returns the configured network names in sorted order.
func (c *Config) NetworkNames() []string {
	names := make([]string, 0, len(c.Networks))
	for name := range c.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Explorer returns the explorer configuration for a network.
func (c *Config) Explorer(n *Network) (ExplorerConfig, error) {
	if n.Explorer == "" {
		return ExplorerConfig{}, fmt.Errorf("%w: network %s", ErrNoExplorer, n.Name)
	}
	e, ok := c.Explorers[n.Explorer]
	if !ok || e.APIURL == "" {
		return ExplorerConfig{}, fmt.Errorf("%w: %s", ErrNoExplorer, n.Explorer)
	}
	return e, nil
}

// HasCompiler reports whether a solc version is configured. Long versions such as
// "0.8.20+commit.a1b79de6" match on their release part.
func (c *Config) HasCompiler(version string) bool {
	version = strings.TrimPrefix(version, "v")
	if i := strings.IndexByte(version, '+'); i >= 0 {
		version = version[:i]
	}
	for _, compiler := range c.Solidity.Compilers {
		if compiler.Version == version {
			return true
		}
	}
	return false
}
