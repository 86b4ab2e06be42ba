package config

import (
	"fmt"
	"math/big"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	localRPCURL            = "http://127.0.0.1:8545"
	localChainID           = 31337
	accountsEnv            = "PKEY"
	defaultRPCTimeout      = 2 * time.Second
	defaultPollingInterval = 4 * time.Second
	etherscanV2URL         = "https://api.etherscan.io/v2/api"
)

// builtinNetwork describes a network that is always available and how its
// parameters map onto environment variables.
type builtinNetwork struct {
	name       string
	urlEnv     string
	chainIDEnv string
	explorer   string
	local      bool
}

var builtinNetworks = []builtinNetwork{
	{name: "hardhat", local: true},
	{name: "bsc", urlEnv: "BSC_RPC", chainIDEnv: "BSC_CID", explorer: "bsc"},
	{name: "tbsc", urlEnv: "TBSC_RPC", chainIDEnv: "TBSC_CID", explorer: "tbsc"},
	{name: "pol", urlEnv: "POL_RPC", chainIDEnv: "POL_CID", explorer: "pol"},
	{name: "tpol", urlEnv: "TPOL_RPC", chainIDEnv: "TPOL_CID", explorer: "tpol"},
	{name: "eth", urlEnv: "ETH_RPC", chainIDEnv: "ETH_CID", explorer: "eth"},
	{name: "sep", urlEnv: "SEP_RPC", chainIDEnv: "SEP_CID", explorer: "sep"},
}

// Built-in explorers use the Etherscan V2 API; the client selects the chain with a chainid parameter.
var builtinExplorers = map[string]ExplorerConfig{
	"eth":  {APIURL: etherscanV2URL, BrowserURL: "https://etherscan.io"},
	"sep":  {APIURL: etherscanV2URL, BrowserURL: "https://sepolia.etherscan.io"},
	"bsc":  {APIURL: etherscanV2URL, BrowserURL: "https://bscscan.com"},
	"tbsc": {APIURL: etherscanV2URL, BrowserURL: "https://testnet.bscscan.com"},
	"pol":  {APIURL: etherscanV2URL, BrowserURL: "https://polygonscan.com"},
	"tpol": {APIURL: etherscanV2URL, BrowserURL: "https://amoy.polygonscan.com"},
}

// Testnet explorers share the key of their mainnet family.
var explorerKeyEnv = map[string]string{
	"eth":  "ETH_APIKEY",
	"sep":  "ETH_APIKEY",
	"bsc":  "BSC_APIKEY",
	"tbsc": "BSC_APIKEY",
	"pol":  "POL_APIKEY",
	"tpol": "POL_APIKEY",
}

// NetworkConfig is a network entry as read from the config file and environment.
// Values stay textual until resolve so that errors can name the variable at fault.
type NetworkConfig struct {
	URL             string        `mapstructure:"url" validate:"required,url"`
	ChainID         string        `mapstructure:"chain_id" validate:"required"`
	Accounts        []string      `mapstructure:"accounts" validate:"required_unless=Local true,dive,required"`
	Timeout         time.Duration `mapstructure:"timeout" validate:"gte=0"`
	PollingInterval time.Duration `mapstructure:"polling_interval" validate:"gte=0"`
	GasPrice        string        `mapstructure:"gas_price"`
	Explorer        string        `mapstructure:"explorer"`
	Local           bool          `mapstructure:"local"`
}

// Network is a resolved, validated network.
type Network struct {
	Name            string
	URL             string
	ChainID         int64
	Accounts        []string
	Timeout         time.Duration
	PollingInterval time.Duration
	// GasPrice overrides fee suggestion when set (legacy pricing).
	GasPrice *big.Int
	Explorer string
	Local    bool
}

// Host returns the RPC host without path or credentials, for display.
func (n *Network) Host() string {
	u, err := url.Parse(n.URL)
	if err != nil || u.Host == "" {
		return "?"
	}
	return u.Scheme + "://" + u.Host
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// resolve validates the raw entry and converts it into a Network.
func (nc NetworkConfig) resolve(name string) (*Network, error) {
	verr := &ValidationError{Network: name}

	if err := validate.Struct(nc); err != nil {
		fieldErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return nil, fmt.Errorf("validate network %s: %w", name, err)
		}
		for _, fe := range fieldErrs {
			verr.add(name, fe)
		}
	}

	n := &Network{
		Name:            name,
		URL:             nc.URL,
		Accounts:        nc.Accounts,
		Timeout:         nc.Timeout,
		PollingInterval: nc.PollingInterval,
		Explorer:        nc.Explorer,
		Local:           nc.Local,
	}

	if nc.ChainID != "" {
		id, err := parseChainID(nc.ChainID)
		if err != nil || id <= 0 {
			verr.Fields = append(verr.Fields, FieldError{
				Field:   "chain_id",
				Source:  sourceName(name, "chain_id"),
				Message: fmt.Sprintf("must be a positive integer, got %q", nc.ChainID),
			})
		}
		n.ChainID = id
	}

	if nc.GasPrice != "" {
		price, ok := new(big.Int).SetString(strings.TrimSpace(nc.GasPrice), 0)
		if !ok || price.Sign() <= 0 {
			verr.Fields = append(verr.Fields, FieldError{
				Field:   "gas_price",
				Source:  sourceName(name, "gas_price"),
				Message: fmt.Sprintf("must be a positive integer (wei), got %q", nc.GasPrice),
			})
		}
		n.GasPrice = price
	}

	if len(verr.Fields) > 0 {
		return nil, verr
	}

	if n.Timeout == 0 {
		n.Timeout = defaultRPCTimeout
	}
	if n.PollingInterval == 0 {
		n.PollingInterval = defaultPollingInterval
	}
	return n, nil
}

// parseChainID reads a decimal chain id, or hex with a 0x prefix. Leading zeros stay decimal.
func parseChainID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if hex, ok := strings.CutPrefix(strings.ToLower(s), "0x"); ok {
		return strconv.ParseInt(hex, 16, 64)
	}
	return strconv.ParseInt(s, 10, 64)
}

// sourceName returns the environment variable behind a built-in network field,
// or the config key for everything else.
func sourceName(network, field string) string {
	for _, b := range builtinNetworks {
		if b.name != network || b.local {
			continue
		}
		switch field {
		case "url":
			return b.urlEnv
		case "chain_id":
			return b.chainIDEnv
		case "accounts":
			return accountsEnv
		}
	}
	return "networks." + network + "." + field
}
