// Package ens resolves human readable names ending in .eth to addresses
package ens

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Suffix marks a deploy argument as a name to resolve
const Suffix = ".eth"

// ErrNameNotFound is returned when a name has no address
var ErrNameNotFound = errors.New("name not found")

// Resolver resolves a name to a hex address
type Resolver interface {
	Resolve(ctx context.Context, name string) (string, error)
}

// IsName reports whether value should be resolved through ENS
func IsName(value string) bool {
	return len(value) > len(Suffix) && strings.HasSuffix(value, Suffix)
}

// NameHash computes the EIP-137 node of name
func NameHash(name string) common.Hash {
	var node common.Hash
	if name == "" {
		return node
	}

	labels := strings.Split(strings.ToLower(name), ".")
	for i := len(labels) - 1; i >= 0; i-- {
		labelHash := crypto.Keccak256([]byte(labels[i]))
		node = common.BytesToHash(crypto.Keccak256(node.Bytes(), labelHash))
	}
	return node
}

// StaticResolver answers from a fixed name to address table
type StaticResolver struct {
	names map[string]string
}

// NewStaticResolver creates a resolver over names. Keys are matched
// case-insensitively
func NewStaticResolver(names map[string]string) *StaticResolver {
	table := make(map[string]string, len(names))
	for name, addr := range names {
		table[strings.ToLower(name)] = addr
	}
	return &StaticResolver{names: table}
}

// Resolve looks name up in the table
func (r *StaticResolver) Resolve(ctx context.Context, name string) (string, error) {
	addr, ok := r.names[strings.ToLower(name)]
	if !ok {
		return "", fmt.Errorf("%s: %w", name, ErrNameNotFound)
	}
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("%s maps to invalid address %q", name, addr)
	}
	return common.HexToAddress(addr).Hex(), nil
}

// MultiResolver tries each resolver in order until one knows the name
type MultiResolver []Resolver

// Resolve returns the first answer; other errors than ErrNameNotFound stop the search
func (m MultiResolver) Resolve(ctx context.Context, name string) (string, error) {
	for _, r := range m {
		addr, err := r.Resolve(ctx, name)
		if err == nil {
			return addr, nil
		}
		if !errors.Is(err, ErrNameNotFound) {
			return "", err
		}
	}
	return "", fmt.Errorf("%s: %w", name, ErrNameNotFound)
}
