package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/pvgupta24/embark/internal/models"
)

// PackDeployData returns the creation data of a contract: its bytecode
// followed by the ABI encoded constructor arguments
func PackDeployData(c *models.Contract, args []interface{}) ([]byte, error) {
	code, err := hexutil.Decode(c.HexCode())
	if err != nil {
		return nil, fmt.Errorf("invalid bytecode for %s: %w", c.ClassName, err)
	}

	abiJSON, err := json.Marshal(c.ABIDefinition)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ABI of %s: %w", c.ClassName, err)
	}
	parsed, err := abi.JSON(bytes.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("invalid ABI for %s: %w", c.ClassName, err)
	}

	inputs := parsed.Constructor.Inputs
	if len(inputs) != len(args) {
		return nil, fmt.Errorf("%w: attempted to deploy %s with %d arguments, constructor expects %d",
			ErrMissingArguments, c.ClassName, len(args), len(inputs))
	}

	values := make([]interface{}, len(args))
	for i, input := range inputs {
		v, err := coerceArg(input.Type, args[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d (%s %s) of %s: %w", i, input.Type.String(), input.Name, c.ClassName, err)
		}
		values[i] = v
	}

	packed, err := parsed.Pack("", values...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode constructor arguments of %s: %w", c.ClassName, err)
	}
	return append(code, packed...), nil
}

// coerceArg converts a manifest value (JSON decoded or resolved) into the
// Go type abi.Pack expects for typ
func coerceArg(typ abi.Type, v interface{}) (interface{}, error) {
	switch typ.T {
	case abi.AddressTy:
		s, ok := v.(string)
		if !ok {
			if addr, ok := v.(common.Address); ok {
				return addr, nil
			}
			return nil, fmt.Errorf("expected an address, got %T", v)
		}
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		return common.HexToAddress(s), nil

	case abi.IntTy, abi.UintTy:
		n, err := toBigInt(v)
		if err != nil {
			return nil, err
		}
		return fitInteger(typ, n)

	case abi.BoolTy:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			return strconv.ParseBool(b)
		}
		return nil, fmt.Errorf("expected a bool, got %T", v)

	case abi.StringTy:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprint(v), nil

	case abi.BytesTy:
		return toBytes(v)

	case abi.FixedBytesTy:
		b, err := toBytes(v)
		if err != nil {
			return nil, err
		}
		if len(b) > typ.Size {
			return nil, fmt.Errorf("value has %d bytes, bytes%d holds %d", len(b), typ.Size, typ.Size)
		}
		arr := reflect.New(typ.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(b))
		return arr.Interface(), nil

	case abi.SliceTy, abi.ArrayTy:
		items, ok := v.([]interface{})
		if !ok {
			return nil, fmt.Errorf("expected a list, got %T", v)
		}
		if typ.T == abi.ArrayTy && len(items) != typ.Size {
			return nil, fmt.Errorf("expected %d elements, got %d", typ.Size, len(items))
		}

		var out reflect.Value
		if typ.T == abi.SliceTy {
			out = reflect.MakeSlice(typ.GetType(), len(items), len(items))
		} else {
			out = reflect.New(typ.GetType()).Elem()
		}
		for i, item := range items {
			elem, err := coerceArg(*typ.Elem, item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out.Index(i).Set(reflect.ValueOf(elem))
		}
		return out.Interface(), nil
	}

	return nil, fmt.Errorf("unsupported argument type %s", typ.String())
}

func toBigInt(v interface{}) (*big.Int, error) {
	switch n := v.(type) {
	case *big.Int:
		return new(big.Int).Set(n), nil
	case int:
		return big.NewInt(int64(n)), nil
	case int64:
		return big.NewInt(n), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return nil, fmt.Errorf("%v is not an integer", n)
		}
		b, _ := new(big.Float).SetFloat64(n).Int(nil)
		return b, nil
	case json.Number:
		return parseBigInt(n.String())
	case string:
		return parseBigInt(n)
	}
	return nil, fmt.Errorf("expected an integer, got %T", v)
}

func parseBigInt(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	n, ok := new(big.Int).SetString(s, 0)
	if ok {
		return n, nil
	}
	// Large values written in exponent form, e.g. "1e18"
	f, _, err := big.ParseFloat(s, 10, 256, big.ToNearestEven)
	if err != nil || !f.IsInt() {
		return nil, fmt.Errorf("%q is not an integer", s)
	}
	n, _ = f.Int(nil)
	return n, nil
}

// fitInteger range checks n and converts it to the Go type of typ
func fitInteger(typ abi.Type, n *big.Int) (interface{}, error) {
	if typ.T == abi.UintTy {
		if n.Sign() < 0 || n.BitLen() > typ.Size {
			return nil, fmt.Errorf("%s does not fit in uint%d", n, typ.Size)
		}
	} else {
		limit := new(big.Int).Lsh(big.NewInt(1), uint(typ.Size-1))
		if n.Cmp(limit) >= 0 || n.Cmp(new(big.Int).Neg(limit)) < 0 {
			return nil, fmt.Errorf("%s does not fit in int%d", n, typ.Size)
		}
	}

	goType := typ.GetType()
	if goType == reflect.TypeOf(&big.Int{}) {
		return n, nil
	}
	if typ.T == abi.UintTy {
		return reflect.ValueOf(n.Uint64()).Convert(goType).Interface(), nil
	}
	return reflect.ValueOf(n.Int64()).Convert(goType).Interface(), nil
}

func toBytes(v interface{}) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		if !strings.HasPrefix(b, "0x") && !strings.HasPrefix(b, "0X") {
			return []byte(b), nil
		}
		return hexutil.Decode(b)
	}
	return nil, fmt.Errorf("expected bytes, got %T", v)
}
