package models

import (
	"math/big"
	"strings"
	"sync"
)

// ContractStatus is the terminal state a contract reached in a deploy run
type ContractStatus string

const (
	StatusPending         ContractStatus = ""
	StatusDeployed        ContractStatus = "deployed"
	StatusAlreadyDeployed ContractStatus = "already-deployed"
	StatusUndeployed      ContractStatus = "undeployed"
	StatusError           ContractStatus = "error"
)

// Contract is a compiled contract handed to the deployment pipeline
type Contract struct {
	// Identification
	ClassName string `json:"className"`
	Filename  string `json:"filename,omitempty"` // Source path, used for link placeholders

	// Compiled artifacts
	ABIDefinition []ABIEntry `json:"abiDefinition"`
	Code          string     `json:"code"` // May contain link placeholders

	// Constructor arguments: []interface{} (positional) or map[string]interface{} (named)
	Args interface{} `json:"args,omitempty"`

	// Deploy options
	Deploy    *bool    `json:"deploy,omitempty"` // nil means true
	Track     *bool    `json:"track,omitempty"`  // nil means true
	Address   string   `json:"address,omitempty"`
	From      string   `json:"from,omitempty"`
	FromIndex *int     `json:"fromIndex,omitempty"`
	Gas       Gas      `json:"gas,omitempty"`
	GasPrice  *big.Int `json:"gasPrice,omitempty"`
	GasLimit  uint64   `json:"gasLimit,omitempty"` // Override used by generated bindings
	Silent    bool     `json:"silent,omitempty"`

	// Results of the last deploy run
	Status            ContractStatus `json:"status,omitempty"`
	DeployedAddress   string         `json:"deployedAddress,omitempty"`
	TransactionHash   string         `json:"transactionHash,omitempty"`
	DeploymentAccount string         `json:"deploymentAccount,omitempty"`
	RealArgs          []interface{}  `json:"realArgs,omitempty"`
	Error             string         `json:"error,omitempty"`

	// Guards the fields above while a deploy run writes them
	mu sync.RWMutex
}

// Update runs fn with the write lock held. Every write made while other
// goroutines may read c goes through it
func (c *Contract) Update(fn func(c *Contract)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}

// Snapshot returns a consistent copy of c
func (c *Contract) Snapshot() *Contract {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clone()
}

// Apply overwrites c with the fields of src, e.g. a copy edited by a plugin
func (c *Contract) Apply(src *Contract) {
	if src == nil || src == c {
		return
	}
	copied := src.Snapshot()
	c.Update(func(c *Contract) {
		c.assign(copied)
	})
}

// Skipped reports whether the contract is marked not to be deployed
func (c *Contract) Skipped() bool {
	return c.Deploy != nil && !*c.Deploy
}

// Tracked reports whether an existing deployment may be reused
func (c *Contract) Tracked() bool {
	return c.Track == nil || *c.Track
}

// Constructor returns the constructor ABI entry, or nil if none is declared
func (c *Contract) Constructor() *ABIEntry {
	for i := range c.ABIDefinition {
		if c.ABIDefinition[i].Type == "constructor" {
			return &c.ABIDefinition[i]
		}
	}
	return nil
}

// HexCode returns the bytecode with a 0x prefix
func (c *Contract) HexCode() string {
	if strings.HasPrefix(c.Code, "0x") || strings.HasPrefix(c.Code, "0X") {
		return c.Code
	}
	return "0x" + c.Code
}

// Clone returns a copy that shares no mutable state with c
func (c *Contract) Clone() *Contract {
	return c.Snapshot()
}

func (c *Contract) clone() *Contract {
	out := &Contract{}
	out.assign(c)
	out.ABIDefinition = append([]ABIEntry(nil), c.ABIDefinition...)
	out.Args = copyArgs(c.Args)
	if c.RealArgs != nil {
		out.RealArgs = append([]interface{}(nil), c.RealArgs...)
	}
	if c.GasPrice != nil {
		out.GasPrice = new(big.Int).Set(c.GasPrice)
	}
	return out
}

// assign copies every field but the lock
func (c *Contract) assign(src *Contract) {
	c.ClassName = src.ClassName
	c.Filename = src.Filename
	c.ABIDefinition = src.ABIDefinition
	c.Code = src.Code
	c.Args = src.Args
	c.Deploy = src.Deploy
	c.Track = src.Track
	c.Address = src.Address
	c.From = src.From
	c.FromIndex = src.FromIndex
	c.Gas = src.Gas
	c.GasPrice = src.GasPrice
	c.GasLimit = src.GasLimit
	c.Silent = src.Silent
	c.Status = src.Status
	c.DeployedAddress = src.DeployedAddress
	c.TransactionHash = src.TransactionHash
	c.DeploymentAccount = src.DeploymentAccount
	c.RealArgs = src.RealArgs
	c.Error = src.Error
}

func copyArgs(args interface{}) interface{} {
	switch a := args.(type) {
	case []interface{}:
		return append([]interface{}(nil), a...)
	case []string:
		return append([]string(nil), a...)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(a))
		for k, v := range a {
			out[k] = v
		}
		return out
	}
	return args
}

// ABIEntry describes one function, constructor or event of a contract ABI
type ABIEntry struct {
	Type            string        `json:"type"`
	Name            string        `json:"name,omitempty"`
	Inputs          []ABIArgument `json:"inputs,omitempty"`
	Outputs         []ABIArgument `json:"outputs,omitempty"`
	StateMutability string        `json:"stateMutability,omitempty"`
	Payable         bool          `json:"payable,omitempty"`
	Constant        bool          `json:"constant,omitempty"`
	Anonymous       bool          `json:"anonymous,omitempty"`
}

// ABIArgument is a single typed input or output
type ABIArgument struct {
	Name         string        `json:"name"`
	Type         string        `json:"type"`
	InternalType string        `json:"internalType,omitempty"`
	Components   []ABIArgument `json:"components,omitempty"`
	Indexed      bool          `json:"indexed,omitempty"`
}
