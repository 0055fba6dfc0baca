package codegen

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pvgupta24/embark/internal/events"
	"github.com/pvgupta24/embark/internal/models"
)

func testContract() *models.Contract {
	return &models.Contract{
		ClassName:       "SimpleStorage",
		DeployedAddress: "0x00000000000000000000000000000000000000aa",
		ABIDefinition: []models.ABIEntry{
			{Type: "function", Name: "get", Outputs: []models.ABIArgument{{Name: "", Type: "uint256"}}},
		},
	}
}

func TestGenerator_Vanilla(t *testing.T) {
	src, err := NewGenerator().Vanilla(Request{Contract: testContract()})
	require.NoError(t, err)

	assert.Equal(t, "SimpleStorage", src.ClassName)
	assert.Contains(t, src.Code, `SimpleStorageAbi = [{"type":"function","name":"get"`)
	assert.Contains(t, src.Code, "SimpleStorage = new web3.eth.Contract(SimpleStorageAbi);")
	assert.Contains(t, src.Code, "SimpleStorage.options.address = '0x00000000000000000000000000000000000000aa';")
	assert.NotContains(t, src.Code, "options.gas")
}

func TestGenerator_VanillaWithGasLimit(t *testing.T) {
	src, err := NewGenerator().Vanilla(Request{Contract: testContract(), GasLimit: 6000000})
	require.NoError(t, err)
	assert.Contains(t, src.Code, "SimpleStorage.options.gas = 6000000;")
}

func TestGenerator_RequiresContract(t *testing.T) {
	_, err := NewGenerator().Vanilla(Request{})
	assert.Error(t, err)
}

func TestFileSink_WritesBinding(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "bindings")
	sink := NewFileSink(dir)

	require.NoError(t, sink.Eval(Source{ClassName: "My/Token", Code: "x = 1;"}))

	data, err := os.ReadFile(filepath.Join(dir, "My_Token.js"))
	require.NoError(t, err)
	assert.Equal(t, "x = 1;", string(data))
}

func TestRegisterCommands(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	dir := t.TempDir()
	RegisterCommands(bus, NewGenerator(), NewFileSink(dir))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := bus.RequestWait(ctx, TopicVanilla, Request{Contract: testContract()})
	require.NoError(t, err)
	src, ok := result.(Source)
	require.True(t, ok)

	_, err = bus.RequestWait(ctx, TopicEval, src)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "SimpleStorage.js"))

	_, err = bus.RequestWait(ctx, TopicVanilla, "not a request")
	assert.Error(t, err)
}
