// Package abiutil converts loosely typed constructor arguments (flag strings, JSON values,
// native Go numbers) into the exact Go types the go-ethereum ABI packer expects.
package abiutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Sentinel errors
var (
	ErrArity       = errors.New("abiutil: wrong number of constructor arguments")
	ErrUnsupported = errors.New("abiutil: unsupported argument type")
	ErrOutOfRange  = errors.New("abiutil: integer out of range")
)

var bigIntType = reflect.TypeOf((*big.Int)(nil))

// Coerce converts v into the Go value the ABI packer requires for t.
func Coerce(t abi.Type, v any) (any, error) {
	switch t.T {
	case abi.AddressTy:
		return toAddress(v)
	case abi.StringTy:
		return toString(v)
	case abi.BoolTy:
		return toBool(v)
	case abi.BytesTy:
		return toBytes(v)
	case abi.FixedBytesTy:
		return toFixedBytes(t, v)
	case abi.IntTy, abi.UintTy:
		return toInteger(t, v)
	case abi.SliceTy, abi.ArrayTy:
		return toList(t, v)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, t.String())
	}
}

// PackConstructor checks arity, coerces every argument and ABI-encodes them.
// The result is appended to the creation bytecode.
func PackConstructor(parsed abi.ABI, args []any) ([]byte, error) {
	inputs := parsed.Constructor.Inputs
	if len(args) != len(inputs) {
		return nil, fmt.Errorf("%w: constructor takes %d, got %d", ErrArity, len(inputs), len(args))
	}
	if len(inputs) == 0 {
		return nil, nil
	}

	values := make([]any, len(args))
	for i, input := range inputs {
		val, err := Coerce(input.Type, args[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d (%s %s): %w", i, input.Type.String(), input.Name, err)
		}
		values[i] = val
	}

	packed, err := inputs.Pack(values...)
	if err != nil {
		return nil, fmt.Errorf("pack constructor args: %w", err)
	}
	return packed, nil
}

// FormatArgs renders arguments for logs and deployment records.
func FormatArgs(args []any) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = Format(a)
	}
	return out
}

// Format renders a single argument.
func Format(v any) string {
	switch val := v.(type) {
	case common.Address:
		return val.Hex()
	case *common.Address:
		return val.Hex()
	case *big.Int:
		return val.String()
	case []byte:
		return hexutil.Encode(val)
	case string:
		return val
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Array && rv.Type().Elem().Kind() == reflect.Uint8 {
		b := make([]byte, rv.Len())
		reflect.Copy(reflect.ValueOf(b), rv)
		return hexutil.Encode(b)
	}
	return fmt.Sprint(v)
}

func toAddress(v any) (common.Address, error) {
	switch val := v.(type) {
	case common.Address:
		return val, nil
	case *common.Address:
		if val == nil {
			return common.Address{}, fmt.Errorf("nil address")
		}
		return *val, nil
	case string:
		s := strings.TrimSpace(val)
		if !common.IsHexAddress(s) {
			return common.Address{}, fmt.Errorf("invalid address %q", val)
		}
		return common.HexToAddress(s), nil
	}
	return common.Address{}, fmt.Errorf("%w: %T as address", ErrUnsupported, v)
}

func toString(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case fmt.Stringer:
		return val.String(), nil
	}
	return "", fmt.Errorf("%w: %T as string", ErrUnsupported, v)
}

func toBool(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "1":
			return true, nil
		case "false", "0":
			return false, nil
		}
		return false, fmt.Errorf("invalid bool %q", val)
	}
	return false, fmt.Errorf("%w: %T as bool", ErrUnsupported, v)
}

func toBytes(v any) ([]byte, error) {
	switch val := v.(type) {
	case []byte:
		return val, nil
	case string:
		b, err := hexutil.Decode(strings.TrimSpace(val))
		if err != nil {
			return nil, fmt.Errorf("invalid hex bytes %q: %w", val, err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("%w: %T as bytes", ErrUnsupported, v)
}

func toFixedBytes(t abi.Type, v any) (any, error) {
	raw, err := toBytes(v)
	if err != nil {
		return nil, err
	}
	if len(raw) != t.Size {
		return nil, fmt.Errorf("bytes%d needs %d bytes, got %d", t.Size, t.Size, len(raw))
	}
	out := reflect.New(t.GetType()).Elem()
	reflect.Copy(out, reflect.ValueOf(raw))
	return out.Interface(), nil
}

func toBigInt(v any) (*big.Int, error) {
	switch val := v.(type) {
	case *big.Int:
		if val == nil {
			return nil, fmt.Errorf("nil integer")
		}
		return new(big.Int).Set(val), nil
	case big.Int:
		return new(big.Int).Set(&val), nil
	case int:
		return big.NewInt(int64(val)), nil
	case int64:
		return big.NewInt(val), nil
	case int32:
		return big.NewInt(int64(val)), nil
	case uint:
		return new(big.Int).SetUint64(uint64(val)), nil
	case uint64:
		return new(big.Int).SetUint64(val), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(val)), nil
	case json.Number:
		return parseBigInt(val.String())
	case float64:
		f := new(big.Float).SetFloat64(val)
		if !f.IsInt() {
			return nil, fmt.Errorf("non-integer number %v", val)
		}
		i, _ := f.Int(nil)
		return i, nil
	case string:
		return parseBigInt(val)
	}
	return nil, fmt.Errorf("%w: %T as integer", ErrUnsupported, v)
}

func parseBigInt(s string) (*big.Int, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "_", "")
	i, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return i, nil
}

func toInteger(t abi.Type, v any) (any, error) {
	i, err := toBigInt(v)
	if err != nil {
		return nil, err
	}
	if err := checkRange(t, i); err != nil {
		return nil, err
	}

	goType := t.GetType()
	if goType == bigIntType {
		return i, nil
	}

	out := reflect.New(goType).Elem()
	if t.T == abi.UintTy {
		out.SetUint(i.Uint64())
	} else {
		out.SetInt(i.Int64())
	}
	return out.Interface(), nil
}

func checkRange(t abi.Type, i *big.Int) error {
	if t.T == abi.UintTy {
		if i.Sign() < 0 || i.BitLen() > t.Size {
			return fmt.Errorf("%w: %s does not fit uint%d", ErrOutOfRange, i, t.Size)
		}
		return nil
	}
	limit := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
	minimum := new(big.Int).Neg(limit)
	if i.Cmp(minimum) < 0 || i.Cmp(limit) >= 0 {
		return fmt.Errorf("%w: %s does not fit int%d", ErrOutOfRange, i, t.Size)
	}
	return nil
}

func toList(t abi.Type, v any) (any, error) {
	var items []any
	switch val := v.(type) {
	case []any:
		items = val
	case []string:
		items = make([]any, len(val))
		for i, s := range val {
			items[i] = s
		}
	case string:
		// JSON array literal, e.g. ["0xabc...","0xdef..."]
		dec := json.NewDecoder(strings.NewReader(val))
		dec.UseNumber()
		if err := dec.Decode(&items); err != nil {
			return nil, fmt.Errorf("%s needs a JSON array: %w", t.String(), err)
		}
	default:
		return nil, fmt.Errorf("%w: %T as %s", ErrUnsupported, v, t.String())
	}

	if t.T == abi.ArrayTy && len(items) != t.Size {
		return nil, fmt.Errorf("%s needs %d elements, got %d", t.String(), t.Size, len(items))
	}

	goType := t.GetType()
	var out reflect.Value
	if t.T == abi.ArrayTy {
		out = reflect.New(goType).Elem()
	} else {
		out = reflect.MakeSlice(goType, len(items), len(items))
	}
	for i, item := range items {
		elem, err := Coerce(*t.Elem, item)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out.Index(i).Set(reflect.ValueOf(elem))
	}
	return out.Interface(), nil
}
