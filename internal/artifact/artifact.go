// Package artifact loads compiled contract artifacts produced by Hardhat (or Foundry).
package artifact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Sentinel errors
var (
	ErrEmptyBytecode    = errors.New("artifact: empty bytecode")
	ErrUnlinkedBytecode = errors.New("artifact: bytecode has unlinked library references")
	ErrNoBuildInfo      = errors.New("artifact: build info not found")
)

// ContractArtifact represents a compiled Solidity contract with ABI and bytecode.
type ContractArtifact struct {
	ContractName string          `json:"contractName"`
	SourceName   string          `json:"sourceName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     Bytecode        `json:"bytecode"`
}

// Bytecode contains the contract bytecode.
// It handles both formats:
// - Simple string: "0x608060..."
// - Object with "object" field: {"object": "0x608060..."}
type Bytecode struct {
	hex string
}

// NewBytecode wraps a hex string.
func NewBytecode(hex string) Bytecode {
	return Bytecode{hex: hex}
}

// UnmarshalJSON handles both string and object bytecode formats.
func (b *Bytecode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		b.hex = s
		return nil
	}

	var obj struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		b.hex = obj.Object
		return nil
	}

	return fmt.Errorf("bytecode must be a string or object with 'object' field")
}

// MarshalJSON marshals the bytecode as a string.
func (b Bytecode) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.hex)
}

// String returns the bytecode hex string.
func (b Bytecode) String() string {
	return b.hex
}

// Bytes decodes the bytecode.
func (b Bytecode) Bytes() ([]byte, error) {
	code := strings.TrimPrefix(strings.TrimSpace(b.hex), "0x")
	if code == "" {
		return nil, ErrEmptyBytecode
	}
	// Library placeholders look like __$<34 hex chars>$__.
	if strings.Contains(code, "__") {
		return nil, ErrUnlinkedBytecode
	}
	return hexutil.Decode("0x" + code)
}

// Path returns the Hardhat artifact path for a contract whose source file is named after it.
func Path(root, contract string) string {
	return filepath.Join(root, "contracts", contract+".sol", contract+".json")
}

// Load reads an artifact file.
func Load(path string) (*ContractArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}

	var a ContractArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parse artifact %s: %w", path, err)
	}
	if len(a.ABI) == 0 {
		return nil, fmt.Errorf("parse artifact %s: missing abi", path)
	}
	if a.ContractName == "" {
		a.ContractName = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &a, nil
}

// ParsedABI returns the parsed ABI.
func (a *ContractArtifact) ParsedABI() (abi.ABI, error) {
	parsed, err := abi.JSON(bytes.NewReader(a.ABI))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse ABI of %s: %w", a.ContractName, err)
	}
	return parsed, nil
}

// BytecodeBytes returns the creation bytecode.
func (a *ContractArtifact) BytecodeBytes() ([]byte, error) {
	code, err := a.Bytecode.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.ContractName, err)
	}
	return code, nil
}

// FullyQualifiedName returns "contracts/Claims.sol:Claims", the form explorers expect.
func (a *ContractArtifact) FullyQualifiedName() string {
	if a.SourceName == "" {
		return a.ContractName
	}
	return a.SourceName + ":" + a.ContractName
}
