// Package codegen renders JavaScript bindings for deployed contracts and
// hands them to an evaluator
package codegen

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/pvgupta24/embark/internal/models"
)

// Request asks for the vanilla binding of a contract. A zero GasLimit
// leaves the gas option unset
type Request struct {
	Contract *models.Contract
	GasLimit uint64
}

// Source is a generated binding
type Source struct {
	ClassName string
	Code      string
}

var vanillaTemplate = template.Must(template.New("vanilla").Parse(
	`{{.ClassName}}Abi = {{.ABI}};
{{.ClassName}} = new web3.eth.Contract({{.ClassName}}Abi);
{{.ClassName}}.options.address = '{{.Address}}';
{{.ClassName}}.address = '{{.Address}}';
{{.ClassName}}.options.from = web3.eth.defaultAccount;
{{- if .GasLimit}}
{{.ClassName}}.options.gas = {{.GasLimit}};
{{- end}}
`))

// Generator renders contract bindings
type Generator struct{}

// NewGenerator creates a Generator
func NewGenerator() *Generator {
	return &Generator{}
}

// Vanilla renders the web3 binding of a deployed contract
func (g *Generator) Vanilla(req Request) (Source, error) {
	if req.Contract == nil {
		return Source{}, fmt.Errorf("codegen: no contract given")
	}

	abiDefinition := req.Contract.ABIDefinition
	if abiDefinition == nil {
		abiDefinition = []models.ABIEntry{}
	}
	abiJSON, err := json.Marshal(abiDefinition)
	if err != nil {
		return Source{}, fmt.Errorf("failed to marshal ABI of %s: %w", req.Contract.ClassName, err)
	}

	var buf bytes.Buffer
	err = vanillaTemplate.Execute(&buf, struct {
		ClassName string
		ABI       string
		Address   string
		GasLimit  uint64
	}{
		ClassName: req.Contract.ClassName,
		ABI:       string(abiJSON),
		Address:   req.Contract.DeployedAddress,
		GasLimit:  req.GasLimit,
	})
	if err != nil {
		return Source{}, fmt.Errorf("failed to render binding of %s: %w", req.Contract.ClassName, err)
	}

	return Source{ClassName: req.Contract.ClassName, Code: buf.String()}, nil
}
