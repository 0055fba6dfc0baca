package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pvgupta24/embark/internal/models"
)

func names(list []*models.Contract) []string {
	out := make([]string, len(list))
	for i, c := range list {
		out[i] = c.ClassName
	}
	return out
}

func TestOrder(t *testing.T) {
	lib := &models.Contract{ClassName: "Lib", Filename: "lib.sol", Code: "6001"}
	token := &models.Contract{ClassName: "Token", Code: "73" + padReference("__lib.sol:Lib")}
	sale := &models.Contract{ClassName: "Sale", Code: "6002", Args: []interface{}{"$Token", "$accounts[0]"}}
	registry := &models.Contract{ClassName: "Registry", Code: "6003",
		Args: map[string]interface{}{"entries": []interface{}{"$Sale"}}}
	standalone := &models.Contract{ClassName: "Standalone", Code: "6004"}

	ordered, err := Order([]*models.Contract{registry, sale, standalone, token, lib})
	require.NoError(t, err)
	assert.Equal(t, []string{"Lib", "Token", "Sale", "Registry", "Standalone"}, names(ordered))
}

func TestOrder_KeepsInputOrderWithoutDependencies(t *testing.T) {
	list := []*models.Contract{
		{ClassName: "C", Code: "01"},
		{ClassName: "A", Code: "02"},
		{ClassName: "B", Code: "03"},
	}

	ordered, err := Order(list)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A", "B"}, names(ordered))
}

func TestOrder_HashedPlaceholder(t *testing.T) {
	lib := &models.Contract{ClassName: "Lib", Filename: "lib.sol", Code: "6001"}
	main := &models.Contract{ClassName: "Main", Code: "73" + HashedPlaceholder("lib.sol", "Lib")}

	ordered, err := Order([]*models.Contract{main, lib})
	require.NoError(t, err)
	assert.Equal(t, []string{"Lib", "Main"}, names(ordered))
}

func TestOrder_Cycle(t *testing.T) {
	a := &models.Contract{ClassName: "A", Args: []interface{}{"$B"}}
	b := &models.Contract{ClassName: "B", Args: []interface{}{"$A"}}

	_, err := Order([]*models.Contract{a, b})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dependency cycle")
}

func TestDependencies_IgnoresUnknownAndSelf(t *testing.T) {
	c := &models.Contract{ClassName: "A", Args: []interface{}{"$A", "$Missing", "$accounts[1]", "plain"}}
	assert.Empty(t, Dependencies(c, []*models.Contract{c}))
}

func TestDeployAll(t *testing.T) {
	lib := &models.Contract{ClassName: "Lib", Filename: "lib.sol", Code: "0x6001"}
	main := &models.Contract{ClassName: "Main", Filename: "main.sol", Code: "0x73" + padReference("__lib.sol:Lib")}
	skipped := &models.Contract{ClassName: "Skipped", Code: "0x6002", Deploy: boolPtr(false)}
	broken := &models.Contract{ClassName: "Broken", Code: "0x6003", Address: "nope"}

	h := newHarness(t, main, skipped, broken, lib)

	summary, err := DeployAll(context.Background(), h.bus, h.registry.List())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Deployed)
	assert.Equal(t, 1, summary.Undeployed)
	assert.Equal(t, 1, summary.Failed)
	assert.Len(t, summary.Receipts, 2)
	assert.Contains(t, summary.Errors, "Broken")

	assert.Equal(t, models.StatusDeployed, main.Status)
	assert.NotContains(t, main.Code, "__")
}
