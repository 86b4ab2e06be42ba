// Package claims holds the constructor argument list for the Claims contract.
package claims

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ContractName is the artifact name of the Claims contract.
const ContractName = "Claims"

// Default constructor values.
const (
	DefaultLabel       = "Holders"
	DefaultStartOffset = 100 // milliseconds added to the current time
	DefaultMin         = 10
	DefaultMax         = 1000
)

// DeployerPlaceholder in an explicit argument list is replaced by the signer address.
const DeployerPlaceholder = "deployer"

// Overrides replaces individual default constructor values. Nil fields keep the default.
type Overrides struct {
	Token     *common.Address
	Label     *string
	Start     *big.Int
	Min       *big.Int
	Max       *big.Int
	Recipient *common.Address
}

// DefaultArgs returns the six constructor arguments in order:
// token (zero address), label, start time (Unix milliseconds + 100), 10, 1000, recipient (the deployer).
func DefaultArgs(deployer common.Address, now time.Time) []any {
	return []any{
		common.Address{},
		DefaultLabel,
		big.NewInt(now.UnixMilli() + DefaultStartOffset),
		big.NewInt(DefaultMin),
		big.NewInt(DefaultMax),
		deployer,
	}
}

// Args returns DefaultArgs with any overrides applied.
func Args(deployer common.Address, now time.Time, o Overrides) []any {
	args := DefaultArgs(deployer, now)
	if o.Token != nil {
		args[0] = *o.Token
	}
	if o.Label != nil {
		args[1] = *o.Label
	}
	if o.Start != nil {
		args[2] = new(big.Int).Set(o.Start)
	}
	if o.Min != nil {
		args[3] = new(big.Int).Set(o.Min)
	}
	if o.Max != nil {
		args[4] = new(big.Int).Set(o.Max)
	}
	if o.Recipient != nil {
		args[5] = *o.Recipient
	}
	return args
}

// Explicit turns a raw argument list into constructor values, substituting
// DeployerPlaceholder with the deployer address. Values are coerced later against the ABI.
func Explicit(raw []string, deployer common.Address) []any {
	args := make([]any, len(raw))
	for i, r := range raw {
		if strings.EqualFold(strings.TrimSpace(r), DeployerPlaceholder) {
			args[i] = deployer
			continue
		}
		args[i] = r
	}
	return args
}

// ParseAddress parses a flag value into an address.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}
