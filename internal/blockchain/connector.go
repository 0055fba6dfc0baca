package blockchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/pvgupta24/embark/internal/events"
	"github.com/pvgupta24/embark/internal/models"
	"github.com/pvgupta24/embark/internal/pipeline"
)

const defaultPollInterval = 500 * time.Millisecond

// EthConnector deploys through a JSON-RPC node whose accounts are
// unlocked. Signing is left to the node
type EthConnector struct {
	rpc            *rpc.Client
	eth            *ethclient.Client
	defaultAccount string
	pollInterval   time.Duration
}

// NewEthConnector wraps an RPC client
func NewEthConnector(client *rpc.Client, cfg ClientConfig) *EthConnector {
	poll := cfg.TimeoutConfig.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	return &EthConnector{
		rpc:            client,
		eth:            ethclient.NewClient(client),
		defaultAccount: cfg.DefaultAccount,
		pollInterval:   poll,
	}
}

// DialConnector dials the endpoint of cfg and wraps it
func DialConnector(ctx context.Context, cfg ClientConfig) (*EthConnector, error) {
	client, err := Dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewEthConnector(client, cfg), nil
}

func (c *EthConnector) Accounts(ctx context.Context) ([]string, error) {
	var accounts []common.Address
	if err := c.rpc.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, fmt.Errorf("eth_accounts: %w", err)
	}
	result := make([]string, len(accounts))
	for i, a := range accounts {
		result[i] = a.Hex()
	}
	return result, nil
}

func (c *EthConnector) DefaultAccount() string {
	return c.defaultAccount
}

func (c *EthConnector) Code(ctx context.Context, address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("%w: %q", pipeline.ErrInvalidAddress, address)
	}
	code, err := c.eth.CodeAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(code), nil
}

func (c *EthConnector) GasPrice(ctx context.Context) (*big.Int, error) {
	return c.eth.SuggestGasPrice(ctx)
}

func (c *EthConnector) EstimateDeployGas(ctx context.Context, tx pipeline.DeployTx) (uint64, error) {
	msg := ethereum.CallMsg{Data: tx.Data}
	if tx.From != "" {
		msg.From = common.HexToAddress(tx.From)
	}
	return c.eth.EstimateGas(ctx, msg)
}

// Deploy sends the creation transaction with eth_sendTransaction and
// polls for its receipt
func (c *EthConnector) Deploy(ctx context.Context, tx pipeline.DeployTx, gas uint64, gasPrice *big.Int) (*models.Receipt, error) {
	args := map[string]interface{}{
		"from": common.HexToAddress(tx.From),
		"data": hexutil.Bytes(tx.Data),
	}
	if gas > 0 {
		args["gas"] = hexutil.Uint64(gas)
	}
	if gasPrice != nil {
		args["gasPrice"] = (*hexutil.Big)(gasPrice)
	}

	var hash common.Hash
	if err := c.rpc.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return nil, err
	}
	slog.Debug("Deployment transaction sent", "tx_hash", hash.Hex(), "from", tx.From)

	receipt, err := c.waitReceipt(ctx, hash)
	if err != nil {
		return nil, err
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return nil, fmt.Errorf("transaction %s reverted", hash.Hex())
	}

	result := &models.Receipt{
		ContractAddress: receipt.ContractAddress.Hex(),
		TransactionHash: hash.Hex(),
		GasUsed:         receipt.GasUsed,
	}
	if receipt.BlockNumber != nil {
		result.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return result, nil
}

func (c *EthConnector) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("failed to get receipt of %s: %w", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for receipt of %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// Client returns the underlying ethclient, e.g. for contract calls
func (c *EthConnector) Client() *ethclient.Client {
	return c.eth
}

// Close releases the RPC client
func (c *EthConnector) Close() {
	c.rpc.Close()
}

// RegisterConnector answers blockchain:object requests with connector
func RegisterConnector(bus *events.Bus, connector pipeline.Connector) {
	bus.SetCommandHandler(pipeline.TopicBlockchainObject, func(payload interface{}, reply events.ReplyFunc) {
		reply(connector, nil)
	})
}
