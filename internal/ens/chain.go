package ens

import (
	"context"
	"fmt"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const registryABIJSON = `[{"constant":true,"inputs":[{"name":"node","type":"bytes32"}],"name":"resolver","outputs":[{"name":"","type":"address"}],"type":"function"}]`

const resolverABIJSON = `[{"constant":true,"inputs":[{"name":"node","type":"bytes32"}],"name":"addr","outputs":[{"name":"","type":"address"}],"type":"function"}]`

var (
	registryABI = mustParseABI(registryABIJSON)
	resolverABI = mustParseABI(resolverABIJSON)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ChainResolver resolves names through an ENS registry deployed on chain
type ChainResolver struct {
	caller   ethereum.ContractCaller
	registry common.Address
}

// NewChainResolver creates a resolver querying the registry at registryAddr
func NewChainResolver(caller ethereum.ContractCaller, registryAddr string) (*ChainResolver, error) {
	if !common.IsHexAddress(registryAddr) {
		return nil, fmt.Errorf("invalid ENS registry address %q", registryAddr)
	}
	return &ChainResolver{
		caller:   caller,
		registry: common.HexToAddress(registryAddr),
	}, nil
}

// Resolve asks the registry for the resolver of name, then the resolver
// for its address
func (r *ChainResolver) Resolve(ctx context.Context, name string) (string, error) {
	node := NameHash(name)

	resolverAddr, err := r.callAddress(ctx, registryABI, "resolver", r.registry, node)
	if err != nil {
		return "", fmt.Errorf("failed to get resolver of %s: %w", name, err)
	}
	if resolverAddr == (common.Address{}) {
		return "", fmt.Errorf("%s has no resolver: %w", name, ErrNameNotFound)
	}

	addr, err := r.callAddress(ctx, resolverABI, "addr", resolverAddr, node)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", name, err)
	}
	if addr == (common.Address{}) {
		return "", fmt.Errorf("%s: %w", name, ErrNameNotFound)
	}
	return addr.Hex(), nil
}

func (r *ChainResolver) callAddress(ctx context.Context, contractABI abi.ABI, method string, to common.Address, node common.Hash) (common.Address, error) {
	data, err := contractABI.Pack(method, [32]byte(node))
	if err != nil {
		return common.Address{}, err
	}

	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return common.Address{}, err
	}
	if len(out) == 0 {
		// No contract at the address
		return common.Address{}, nil
	}

	values, err := contractABI.Unpack(method, out)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected %s result %T", method, values[0])
	}
	return addr, nil
}
