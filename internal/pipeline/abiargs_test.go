package pipeline

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pvgupta24/embark/internal/models"
)

func constructor(inputs ...models.ABIArgument) []models.ABIEntry {
	return []models.ABIEntry{{Type: "constructor", Inputs: inputs}}
}

func TestPackDeployData(t *testing.T) {
	c := &models.Contract{
		ClassName: "Token",
		Code:      "6080",
		ABIDefinition: constructor(
			models.ABIArgument{Name: "supply", Type: "uint256"},
			models.ABIArgument{Name: "owner", Type: "address"},
		),
	}

	data, err := PackDeployData(c, []interface{}{float64(1000), accountA})
	require.NoError(t, err)
	require.Len(t, data, 2+64)

	assert.Equal(t, []byte{0x60, 0x80}, data[:2])
	assert.Equal(t, int64(1000), new(big.Int).SetBytes(data[2:34]).Int64())
	assert.Equal(t, common.HexToAddress(accountA), common.BytesToAddress(data[34:66]))
}

func TestPackDeployData_NoConstructor(t *testing.T) {
	c := &models.Contract{ClassName: "Foo", Code: "0x600a"}

	data, err := PackDeployData(c, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x0a}, data)
}

func TestPackDeployData_ArgumentCount(t *testing.T) {
	c := &models.Contract{
		ClassName:     "Foo",
		Code:          "0x600a",
		ABIDefinition: constructor(models.ABIArgument{Name: "value", Type: "uint8"}),
	}

	_, err := PackDeployData(c, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingArguments))
}

func TestPackDeployData_InvalidBytecode(t *testing.T) {
	c := &models.Contract{ClassName: "Foo", Code: "0x60zz"}

	_, err := PackDeployData(c, nil)
	assert.Error(t, err)
}

func TestCoerceArg(t *testing.T) {
	c := &models.Contract{
		ClassName: "Everything",
		Code:      "00",
		ABIDefinition: constructor(
			models.ABIArgument{Name: "small", Type: "uint8"},
			models.ABIArgument{Name: "signed", Type: "int64"},
			models.ABIArgument{Name: "big", Type: "uint256"},
			models.ABIArgument{Name: "flag", Type: "bool"},
			models.ABIArgument{Name: "label", Type: "string"},
			models.ABIArgument{Name: "blob", Type: "bytes"},
			models.ABIArgument{Name: "tag", Type: "bytes4"},
			models.ABIArgument{Name: "owners", Type: "address[]"},
			models.ABIArgument{Name: "pair", Type: "uint16[2]"},
		),
	}

	args := []interface{}{
		float64(255),
		"-42",
		"1e18",
		"true",
		"hello",
		"0xdeadbeef",
		"0xcafe",
		[]interface{}{accountA, accountB},
		[]interface{}{float64(1), "0x2"},
	}

	_, err := PackDeployData(c, args)
	require.NoError(t, err)
}

func TestCoerceArg_Errors(t *testing.T) {
	tests := []struct {
		name string
		typ  string
		arg  interface{}
	}{
		{"uint8 overflow", "uint8", float64(256)},
		{"negative unsigned", "uint256", float64(-1)},
		{"fractional integer", "uint256", 1.5},
		{"bad address", "address", "0x123"},
		{"address of wrong type", "address", float64(1)},
		{"fixed bytes too long", "bytes2", "0xdeadbeef"},
		{"list expected", "address[]", accountA},
		{"array size", "uint8[2]", []interface{}{float64(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &models.Contract{
				ClassName:     "Foo",
				Code:          "00",
				ABIDefinition: constructor(models.ABIArgument{Name: "v", Type: tt.typ}),
			}
			_, err := PackDeployData(c, []interface{}{tt.arg})
			assert.Error(t, err)
		})
	}
}

func TestParseBigInt(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"42", "42"},
		{"0x2a", "42"},
		{" 7 ", "7"},
		{"1e18", "1000000000000000000"},
		{"-5", "-5"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			n, err := parseBigInt(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n.String())
		})
	}

	_, err := parseBigInt("1.5")
	assert.Error(t, err)
	_, err = parseBigInt("ten")
	assert.Error(t, err)
}
