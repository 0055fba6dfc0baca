package pipeline

import (
	"context"
	"math/big"

	"github.com/pvgupta24/embark/internal/models"
	"github.com/pvgupta24/embark/internal/plugins"
)

// DeployTx is a contract creation transaction
type DeployTx struct {
	From string
	Data []byte // Bytecode followed by the packed constructor arguments
}

// Connector is the live blockchain capability the pipeline deploys through
type Connector interface {
	Accounts(ctx context.Context) ([]string, error)
	DefaultAccount() string
	// Code returns the hex encoded code at address ("0x" when empty)
	Code(ctx context.Context, address string) (string, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	EstimateDeployGas(ctx context.Context, tx DeployTx) (uint64, error)
	// Deploy submits tx and waits for its receipt. A zero gas lets the node pick
	Deploy(ctx context.Context, tx DeployTx, gas uint64, gasPrice *big.Int) (*models.Receipt, error)
}

// HookRunner runs plugin actions for a hook point
type HookRunner interface {
	Run(ctx context.Context, event string, params *plugins.Params) error
}

// Tracker stores the deployment record consulted to decide skip or redeploy
type Tracker interface {
	GetTracked(ctx context.Context, className string) (*models.TrackedContract, error)
	SaveTracked(ctx context.Context, tracked *models.TrackedContract) error
	SaveReceipt(ctx context.Context, receipt *models.Receipt) error
}
