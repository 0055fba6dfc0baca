// Package pipeline deploys compiled contracts: it resolves constructor
// arguments, links libraries, decides between reuse and redeploy, estimates
// gas and submits the creation transaction
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pvgupta24/embark/internal/codegen"
	"github.com/pvgupta24/embark/internal/config"
	"github.com/pvgupta24/embark/internal/contracts"
	"github.com/pvgupta24/embark/internal/events"
	"github.com/pvgupta24/embark/internal/metrics"
	"github.com/pvgupta24/embark/internal/models"
	"github.com/pvgupta24/embark/internal/plugins"
	"github.com/pvgupta24/embark/internal/storage"
)

// Bus topics used by the deployer
const (
	CommandDeployContract = "deploy:contract"
	TopicBlockchainObject = "blockchain:object"

	EventUndeployed = "deploy:contract:undeployed"
	EventError      = "deploy:contract:error"
	EventDeployed   = "deploy:contract:deployed"
	EventReceipt    = "deploy:contract:receipt"
)

const defaultRequestTimeout = 30 * time.Second

// Options configures a Deployer
type Options struct {
	Bus     *events.Bus
	Hooks   HookRunner // nil runs no plugins
	Tracker Tracker    // nil disables tracking

	// RequestTimeout bounds each bus request made by the pipeline
	RequestTimeout time.Duration

	Logger *slog.Logger

	// Rand returns the gas margin factor in [0, 1)
	Rand func() float64
}

// Deployer runs the deployment pipeline, one contract at a time per call
type Deployer struct {
	bus            *events.Bus
	hooks          HookRunner
	tracker        Tracker
	requestTimeout time.Duration
	logger         *slog.Logger
	rand           func() float64
}

// NewDeployer creates a Deployer
func NewDeployer(opts Options) *Deployer {
	d := &Deployer{
		bus:            opts.Bus,
		hooks:          opts.Hooks,
		tracker:        opts.Tracker,
		requestTimeout: opts.RequestTimeout,
		logger:         opts.Logger,
		rand:           opts.Rand,
	}
	if d.requestTimeout <= 0 {
		d.requestTimeout = defaultRequestTimeout
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.rand == nil {
		d.rand = rand.Float64
	}
	return d
}

// RegisterCommandHandler answers deploy:contract requests. Each request
// runs on its own goroutine and replies with (*models.Receipt, error); the
// receipt is nil when nothing was submitted
func (d *Deployer) RegisterCommandHandler() {
	d.bus.SetCommandHandler(CommandDeployContract, func(payload interface{}, reply events.ReplyFunc) {
		c, ok := payload.(*models.Contract)
		if !ok {
			reply(nil, fmt.Errorf("deploy:contract: unexpected payload %T", payload))
			return
		}
		go func() {
			receipt, err := d.Deploy(context.Background(), c)
			reply(receipt, err)
		}()
	})
}

type stage int

const (
	stageSkipCheck stage = iota
	stageConnector
	stageAccounts
	stageArgumentHooks
	stageArguments
	stageDecide
	stageLink
	stageBeforeDeploy
	stageGas
	stageSubmit
	stageDone
)

var stageNames = [...]string{
	stageSkipCheck:     "skip check",
	stageConnector:     "connector",
	stageAccounts:      "accounts",
	stageArgumentHooks: "argument hooks",
	stageArguments:     "arguments",
	stageDecide:        "decide",
	stageLink:          "link",
	stageBeforeDeploy:  "before deploy",
	stageGas:           "gas",
	stageSubmit:        "submit",
	stageDone:          "done",
}

func (s stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// deployment is the state carried from step to step for one contract
type deployment struct {
	ctx       context.Context
	contract  *models.Contract
	connector Connector
	accounts  []string
	data      []byte
	receipt   *models.Receipt
}

// Deploy runs the pipeline for c. Per-contract failures are recorded on
// c.Error, emitted as deploy:contract:error and returned
func (d *Deployer) Deploy(ctx context.Context, c *models.Contract) (*models.Receipt, error) {
	start := time.Now()
	defer func() {
		metrics.DeployDuration.Observe(time.Since(start).Seconds())
	}()

	dep := &deployment{ctx: ctx, contract: c}
	for st := stageSkipCheck; st != stageDone; {
		next, err := d.step(st, dep)
		if err != nil {
			d.fail(dep, st, err)
			return nil, err
		}
		st = next
	}
	return dep.receipt, nil
}

func (d *Deployer) step(st stage, dep *deployment) (stage, error) {
	switch st {
	case stageSkipCheck:
		return d.skipCheck(dep)
	case stageConnector:
		return d.acquireConnector(dep)
	case stageAccounts:
		return d.resolveAccount(dep)
	case stageArgumentHooks:
		d.runHook(dep.ctx, plugins.EventArguments, dep.contract)
		return stageArguments, nil
	case stageArguments:
		return d.resolveArguments(dep)
	case stageDecide:
		return d.decide(dep)
	case stageLink:
		return d.link(dep)
	case stageBeforeDeploy:
		d.runHook(dep.ctx, plugins.EventBeforeDeploy, dep.contract)
		return stageGas, nil
	case stageGas:
		return d.gas(dep)
	case stageSubmit:
		return d.submit(dep)
	}
	return stageDone, fmt.Errorf("unknown pipeline stage %s", st)
}

func (d *Deployer) skipCheck(dep *deployment) (stage, error) {
	c := dep.contract
	c.Update(func(c *models.Contract) { c.Error = "" })

	if c.Skipped() {
		d.undeployed(c)
		return stageDone, nil
	}

	// A forced address is validated before anything else is touched
	if c.Address != "" && !common.IsHexAddress(c.Address) {
		return stageDone, fmt.Errorf("%w: %q given for %s", ErrInvalidAddress, c.Address, c.ClassName)
	}
	return stageConnector, nil
}

func (d *Deployer) acquireConnector(dep *deployment) (stage, error) {
	result, err := d.request(dep.ctx, TopicBlockchainObject, nil)
	if err != nil {
		return stageDone, fmt.Errorf("%w: %v", ErrConnectorUnavailable, err)
	}
	connector, ok := result.(Connector)
	if !ok || connector == nil {
		return stageDone, fmt.Errorf("%w: got %T", ErrConnectorUnavailable, result)
	}
	dep.connector = connector
	return stageAccounts, nil
}

func (d *Deployer) resolveAccount(dep *deployment) (stage, error) {
	c := dep.contract

	accounts, err := dep.connector.Accounts(dep.ctx)
	if err != nil {
		return stageDone, fmt.Errorf("failed to get accounts: %w", err)
	}
	dep.accounts = accounts

	account := dep.connector.DefaultAccount()
	if c.FromIndex != nil {
		index := *c.FromIndex
		if index < 0 || index >= len(accounts) {
			return stageDone, fmt.Errorf("%w: error deploying %s: no account found at index %d, check the config",
				ErrNoSuchAccount, c.ClassName, index)
		}
		account = accounts[index]
	}
	if c.From != "" && c.FromIndex != nil {
		d.logger.Warn(fmt.Sprintf(`Both "from" and "fromIndex" are defined for contract "%s". Using "from" as deployer account.`, c.ClassName),
			"contract", c.ClassName,
		)
	}
	if c.From != "" {
		account = c.From
	}
	if account == "" && len(accounts) > 0 {
		account = accounts[0]
	}

	c.Update(func(c *models.Contract) { c.DeploymentAccount = account })
	return stageArgumentHooks, nil
}

func (d *Deployer) resolveArguments(dep *deployment) (stage, error) {
	args, err := d.determineArguments(dep.ctx, dep.contract, dep.accounts)
	if err != nil {
		return stageDone, err
	}
	dep.contract.Update(func(c *models.Contract) { c.RealArgs = args })
	return stageDecide, nil
}

func (d *Deployer) decide(dep *deployment) (stage, error) {
	c := dep.contract

	if c.Address != "" {
		c.Update(func(c *models.Contract) { c.DeployedAddress = c.Address })
		d.alreadyDeployed(dep, c.Address)
		return stageDone, nil
	}

	if !d.runHook(dep.ctx, plugins.EventShouldDeploy, c) {
		deploy := false
		c.Update(func(c *models.Contract) { c.Deploy = &deploy })
		d.undeployed(c)
		return stageDone, nil
	}

	tracked := d.tracked(dep.ctx, c.ClassName)
	if tracked == nil || tracked.Address == "" {
		return stageLink, nil
	}

	if !c.Tracked() {
		d.logFunction(c)(c.ClassName+" will be redeployed", "contract", c.ClassName)
		return stageLink, nil
	}

	code, err := dep.connector.Code(dep.ctx, tracked.Address)
	if err != nil {
		return stageDone, fmt.Errorf("failed to get code at %s: %w", tracked.Address, err)
	}
	// "0x" or "0x0" for empty code, depending on the node
	if len(code) > 3 {
		c.Update(func(c *models.Contract) { c.DeployedAddress = tracked.Address })
		d.alreadyDeployed(dep, tracked.Address)
		return stageDone, nil
	}
	return stageLink, nil
}

func (d *Deployer) link(dep *deployment) (stage, error) {
	c := dep.contract

	result, err := d.request(dep.ctx, contracts.TopicList, nil)
	if err != nil {
		return stageDone, fmt.Errorf("failed to list contracts: %w", err)
	}
	listed, _ := result.([]*models.Contract)
	libraries := make([]*models.Contract, 0, len(listed))
	for _, lib := range listed {
		libraries = append(libraries, lib.Snapshot())
	}

	code, err := Link(c.Code, c.ClassName, libraries)
	if err != nil {
		return stageDone, err
	}

	c.Update(func(c *models.Contract) { c.Code = code })
	update := contracts.BytecodeUpdate{ClassName: c.ClassName, Code: code}
	if _, err := d.request(dep.ctx, contracts.TopicSetBytecode, update); err != nil {
		d.logger.Warn("Failed to save linked bytecode", "contract", c.ClassName, "error", err)
	}
	return stageBeforeDeploy, nil
}

func (d *Deployer) gas(dep *deployment) (stage, error) {
	c := dep.contract

	if c.GasPrice == nil {
		price, err := dep.connector.GasPrice(dep.ctx)
		if err != nil {
			return stageDone, fmt.Errorf("could not get the gas price: %w", err)
		}
		c.Update(func(c *models.Contract) { c.GasPrice = price })
	}

	data, err := PackDeployData(c, c.RealArgs)
	if err != nil {
		return stageDone, err
	}
	dep.data = data

	if c.Gas.Auto {
		estimate, err := dep.connector.EstimateDeployGas(dep.ctx, DeployTx{From: c.DeploymentAccount, Data: data})
		if err != nil {
			return stageDone, fmt.Errorf("failed to estimate gas: %w", err)
		}
		gas := models.FixedGas(inflateGas(estimate, d.rand()))
		c.Update(func(c *models.Contract) { c.Gas = gas })
	}
	return stageSubmit, nil
}

func (d *Deployer) submit(dep *deployment) (stage, error) {
	c := dep.contract

	d.logFunction(c)(fmt.Sprintf("deploying %s with %d gas at the price of %s Wei, estimated cost: %s Wei",
		c.ClassName, c.Gas.Limit, c.GasPrice, estimatedCost(c.Gas.Limit, c.GasPrice)),
		"contract", c.ClassName,
		"from", c.DeploymentAccount,
	)

	receipt, err := dep.connector.Deploy(dep.ctx, DeployTx{From: c.DeploymentAccount, Data: dep.data}, c.Gas.Limit, c.GasPrice)
	if err != nil {
		if strings.Contains(err.Error(), "replacement transaction underpriced") {
			d.logger.Warn("replacement transaction underpriced: This warning typically means a transaction exactly like this one is still pending on the blockchain",
				"contract", c.ClassName,
			)
		}
		return stageDone, fmt.Errorf("error deploying =%s= due to error: %w", c.ClassName, err)
	}

	receipt.ClassName = c.ClassName
	d.logFunction(c)(fmt.Sprintf("%s deployed at %s using %d gas (txHash: %s)",
		c.ClassName, receipt.ContractAddress, receipt.GasUsed, receipt.TransactionHash),
		"contract", c.ClassName,
	)

	c.Update(func(c *models.Contract) {
		c.DeployedAddress = receipt.ContractAddress
		c.TransactionHash = receipt.TransactionHash
		c.Status = models.StatusDeployed
	})
	dep.receipt = receipt

	metrics.ContractsProcessed.WithLabelValues(metrics.OutcomeDeployed).Inc()
	metrics.GasUsed.Observe(float64(receipt.GasUsed))

	d.bus.Emit(EventReceipt, receipt)
	d.bus.Emit(EventDeployed, c)

	d.track(dep.ctx, c, receipt)
	d.generateCode(c)
	d.runHook(dep.ctx, plugins.EventDeployed, c)
	return stageDone, nil
}

func (d *Deployer) undeployed(c *models.Contract) {
	c.Update(func(c *models.Contract) { c.Status = models.StatusUndeployed })
	metrics.ContractsProcessed.WithLabelValues(metrics.OutcomeUndeployed).Inc()
	d.logger.Log(context.Background(), config.LevelTrace, "Contract will not be deployed", "contract", c.ClassName)
	d.bus.Emit(EventUndeployed, c)
}

func (d *Deployer) alreadyDeployed(dep *deployment, address string) {
	c := dep.contract
	d.logFunction(c)(c.ClassName+" already deployed at "+address, "contract", c.ClassName)

	c.Update(func(c *models.Contract) { c.Status = models.StatusAlreadyDeployed })
	metrics.ContractsProcessed.WithLabelValues(metrics.OutcomeAlreadyDeployed).Inc()
	d.bus.Emit(EventDeployed, c)

	d.track(dep.ctx, c, nil)
	d.generateCode(c)
}

// fail records a per-contract error and emits it
func (d *Deployer) fail(dep *deployment, st stage, err error) {
	c := dep.contract
	c.Update(func(c *models.Contract) {
		c.Error = err.Error()
		c.Status = models.StatusError
	})

	metrics.ContractsProcessed.WithLabelValues(metrics.OutcomeError).Inc()
	metrics.ErrorsTotal.WithLabelValues("pipeline").Inc()
	d.logger.Error("error deploying "+c.ClassName,
		"contract", c.ClassName,
		"stage", st.String(),
		"error", err,
	)
	d.bus.Emit(EventError, c)
}

// logFunction picks trace for silent contracts, info otherwise
func (d *Deployer) logFunction(c *models.Contract) func(msg string, args ...any) {
	if c.Silent {
		return func(msg string, args ...any) {
			d.logger.Log(context.Background(), config.LevelTrace, msg, args...)
		}
	}
	return d.logger.Info
}

// runHook runs the plugin actions of event on a copy of c and reports
// whether the contract should still be deployed. Plugins are not required
// to answer: past the request timeout the pipeline goes on with the
// defaults and drops whatever the actions write later. Failures never stop
// the pipeline
func (d *Deployer) runHook(ctx context.Context, event string, c *models.Contract) bool {
	if d.hooks == nil {
		return true
	}

	params := &plugins.Params{Contract: c.Clone(), ShouldDeploy: true}
	ctx, cancel := context.WithTimeout(ctx, d.requestTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- d.hooks.Run(ctx, event, params)
	}()

	select {
	case err := <-done:
		if err != nil {
			d.logger.Debug("Plugin actions reported errors", "event", event, "error", err)
		}
		c.Apply(params.Contract)
		return params.ShouldDeploy
	case <-ctx.Done():
		metrics.ErrorsTotal.WithLabelValues("plugin").Inc()
		d.logger.Warn("Plugin actions did not respond, using defaults",
			"event", event,
			"contract", c.ClassName,
			"timeout", d.requestTimeout,
		)
		return true
	}
}

// tracked returns the recorded deployment of a contract, nil if none
func (d *Deployer) tracked(ctx context.Context, className string) *models.TrackedContract {
	if d.tracker == nil {
		return nil
	}
	tracked, err := d.tracker.GetTracked(ctx, className)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			d.logger.Warn("Failed to read tracked deployment, deploying anew",
				"contract", className,
				"error", err,
			)
		}
		return nil
	}
	return tracked
}

// track records a deployment; failures are logged only
func (d *Deployer) track(ctx context.Context, c *models.Contract, receipt *models.Receipt) {
	if d.tracker == nil {
		return
	}

	tracked := &models.TrackedContract{
		ClassName:       c.ClassName,
		Address:         c.DeployedAddress,
		TransactionHash: c.TransactionHash,
		Deployer:        c.DeploymentAccount,
		Track:           c.Tracked(),
		DeployedAt:      time.Now().UTC(),
	}
	if err := d.tracker.SaveTracked(ctx, tracked); err != nil {
		metrics.ErrorsTotal.WithLabelValues("storage").Inc()
		d.logger.Warn("Failed to save tracked deployment", "contract", c.ClassName, "error", err)
	}
	if receipt != nil {
		if err := d.tracker.SaveReceipt(ctx, receipt); err != nil {
			metrics.ErrorsTotal.WithLabelValues("storage").Inc()
			d.logger.Warn("Failed to save receipt", "contract", c.ClassName, "error", err)
		}
	}
}

// generateCode asks for the binding of c and evaluates it without waiting
func (d *Deployer) generateCode(c *models.Contract) {
	req := codegen.Request{Contract: c.Clone(), GasLimit: c.GasLimit}
	d.bus.Request(codegen.TopicVanilla, req, func(result interface{}, err error) {
		if err != nil {
			d.logger.Warn("Failed to generate binding", "contract", c.ClassName, "error", err)
			return
		}
		d.bus.Request(codegen.TopicEval, result, nil)
	})
}

// request is a bus request bounded by the request timeout
func (d *Deployer) request(ctx context.Context, topic string, payload interface{}) (interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, d.requestTimeout)
	defer cancel()
	return d.bus.RequestWait(ctx, topic, payload)
}

