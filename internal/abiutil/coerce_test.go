package abiutil

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustType(t *testing.T, s string) abi.Type {
	t.Helper()
	typ, err := abi.NewType(s, "", nil)
	require.NoError(t, err)
	return typ
}

func TestCoerce(t *testing.T) {
	addr := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

	tests := []struct {
		typ  string
		in   any
		want any
	}{
		{"address", addr.Hex(), addr},
		{"address", strings.ToLower(addr.Hex()), addr},
		{"address", addr, addr},
		{"string", "Holders", "Holders"},
		{"bool", "true", true},
		{"bool", false, false},
		{"bytes", "0x0102", []byte{1, 2}},
		{"bytes2", "0x0102", [2]byte{1, 2}},
		{"uint256", "1000", big.NewInt(1000)},
		{"uint256", "0x10", big.NewInt(16)},
		{"uint256", "1_000_000", big.NewInt(1_000_000)},
		{"uint256", 10, big.NewInt(10)},
		{"uint256", json.Number("12345678901234567890"), new(big.Int).SetUint64(12345678901234567890)},
		{"uint8", "255", uint8(255)},
		{"int64", "-5", int64(-5)},
		{"uint64", float64(42), uint64(42)},
		{"address[]", `["` + addr.Hex() + `"]`, []common.Address{addr}},
		{"uint256[2]", []any{"1", 2}, [2]*big.Int{big.NewInt(1), big.NewInt(2)}},
	}

	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			got, err := Coerce(mustType(t, tt.typ), tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerce_Errors(t *testing.T) {
	tests := []struct {
		typ     string
		in      any
		wantErr error
	}{
		{"address", "0x1234", nil},
		{"address", 12, ErrUnsupported},
		{"uint8", "256", ErrOutOfRange},
		{"uint256", "-1", ErrOutOfRange},
		{"int8", "128", ErrOutOfRange},
		{"int8", "-129", ErrOutOfRange},
		{"uint256", "ten", nil},
		{"uint256", 1.5, nil},
		{"bool", "maybe", nil},
		{"bytes2", "0x010203", nil},
		{"uint256[2]", []any{"1"}, nil},
		{"address[]", "not json", nil},
	}

	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			_, err := Coerce(mustType(t, tt.typ), tt.in)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestCoerce_BoundaryValues(t *testing.T) {
	_, err := Coerce(mustType(t, "int8"), "-128")
	assert.NoError(t, err)
	_, err = Coerce(mustType(t, "int8"), "127")
	assert.NoError(t, err)

	max256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	got, err := Coerce(mustType(t, "uint256"), max256.String())
	require.NoError(t, err)
	assert.Equal(t, max256, got)
}

const ctorABI = `[{"type":"constructor","inputs":[
	{"name":"token","type":"address"},
	{"name":"label","type":"string"},
	{"name":"start","type":"uint256"}]}]`

func TestPackConstructor(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(ctorABI))
	require.NoError(t, err)

	packed, err := PackConstructor(parsed, []any{common.Address{}, "Holders", "1700000000100"})
	require.NoError(t, err)

	// Three head words plus the string length and one data word.
	require.Len(t, packed, 5*32)
	assert.Equal(t, big.NewInt(1700000000100), new(big.Int).SetBytes(packed[64:96]))

	values, err := parsed.Constructor.Inputs.Unpack(packed)
	require.NoError(t, err)
	assert.Equal(t, "Holders", values[1])
}

func TestPackConstructor_Errors(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(ctorABI))
	require.NoError(t, err)

	_, err = PackConstructor(parsed, []any{common.Address{}, "Holders"})
	assert.ErrorIs(t, err, ErrArity)

	_, err = PackConstructor(parsed, []any{"bad", "Holders", "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "argument 0 (address token)")

	empty, err := PackConstructor(abi.ABI{}, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestFormatArgs(t *testing.T) {
	addr := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

	got := FormatArgs([]any{
		common.Address{},
		"Holders",
		big.NewInt(10),
		[]byte{0xab},
		[2]byte{0x01, 0x02},
		&addr,
		true,
	})
	assert.Equal(t, []string{
		"0x0000000000000000000000000000000000000000",
		"Holders",
		"10",
		"0xab",
		"0x0102",
		addr.Hex(),
		"true",
	}, got)
}
