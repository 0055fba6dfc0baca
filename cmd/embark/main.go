package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pvgupta24/embark/internal/api"
	"github.com/pvgupta24/embark/internal/blockchain"
	"github.com/pvgupta24/embark/internal/codegen"
	"github.com/pvgupta24/embark/internal/config"
	"github.com/pvgupta24/embark/internal/contracts"
	"github.com/pvgupta24/embark/internal/debug"
	"github.com/pvgupta24/embark/internal/ens"
	"github.com/pvgupta24/embark/internal/events"
	"github.com/pvgupta24/embark/internal/ipc"
	"github.com/pvgupta24/embark/internal/models"
	"github.com/pvgupta24/embark/internal/pipeline"
	"github.com/pvgupta24/embark/internal/plugins"
	"github.com/pvgupta24/embark/internal/retry"
	"github.com/pvgupta24/embark/internal/storage"
)

func main() {
	command := "run"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case blockchain.WorkerCommand:
		runBlockchainWorker()
	case "run":
		os.Exit(run())
	default:
		fmt.Fprintf(os.Stderr, "usage: %s [run]\n", os.Args[0])
		os.Exit(2)
	}
}

// runBlockchainWorker is the entry point of the child process started by
// the blockchain launcher. Its logs travel over the IPC channel
func runBlockchainWorker() {
	_ = godotenv.Load()

	conn, err := ipc.FromEnv()
	if err != nil {
		log.Fatalf("❌ Blockchain worker must be started by embark: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := blockchain.RunWorker(ctx, conn); err != nil {
		fmt.Fprintf(os.Stderr, "blockchain worker: %v\n", err)
		os.Exit(1)
	}
}

// run starts the node, deploys the contracts and keeps the node up. Fatal
// setup errors exit directly; later failures return a non-zero code so the
// deferred teardown still runs
func run() int {
	fmt.Println("🚀 Starting Embark...")

	// 1. Load configuration
	_ = godotenv.Load()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}

	// 2. Configure logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("Configuration loaded",
		"client", cfg.BlockchainClient,
		"rpc", cfg.RPCURL(),
		"contracts", cfg.ContractsFile,
		"log_level", cfg.LogLevel,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	bus := events.NewBus()
	defer bus.Close()

	// 3. Tracked deployments store
	repository, err := openRepository(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer repository.Close()

	// 4. Contracts, names and bindings
	registry, err := contracts.Load(cfg.ContractsFile)
	if err != nil {
		log.Fatalf("❌ Failed to load contracts: %v", err)
	}
	registry.RegisterCommands(bus)
	slog.Info("Contracts loaded", "count", len(registry.List()))

	staticNames := ens.NewStaticResolver(cfg.ENSNames)
	ens.RegisterCommands(bus, staticNames)

	var sink codegen.Evaluator = codegen.DiscardSink{}
	if cfg.BindingsDir != "" {
		sink = codegen.NewFileSink(cfg.BindingsDir)
	}
	codegen.RegisterCommands(bus, codegen.NewGenerator(), sink)

	// 5. Deployment pipeline
	hooks := plugins.New()
	hooks.RegisterFunc(plugins.EventDeployed, "debug-printer", func(ctx context.Context, params *plugins.Params) error {
		debug.PrintContract(params.Contract)
		return nil
	})
	bus.On(pipeline.EventReceipt, func(payload interface{}) {
		if receipt, ok := payload.(*models.Receipt); ok {
			debug.PrintReceipt(receipt)
		}
	})

	deployer := pipeline.NewDeployer(pipeline.Options{
		Bus:     bus,
		Hooks:   hooks,
		Tracker: repository,
		Logger:  logger,
	})
	deployer.RegisterCommandHandler()

	// 6. Blockchain worker
	executable, err := os.Executable()
	if err != nil {
		log.Fatalf("❌ Cannot locate embark executable: %v", err)
	}

	launcher := blockchain.NewLauncher(blockchain.LauncherOptions{
		Bus:        bus,
		Executable: executable,
		Args:       []string{blockchain.WorkerCommand},
		Init: blockchain.InitOptions{
			Client:          cfg.BlockchainClient,
			Args:            cfg.BlockchainArgs,
			DataDir:         cfg.DataDir,
			RPCHost:         cfg.RPCHost,
			RPCPort:         cfg.RPCPort,
			ProxyPort:       cfg.ProxyPort,
			TLSKey:          cfg.TLSKey,
			TLSCert:         cfg.TLSCert,
			ReadyTimeoutSec: int(cfg.ReadyTimeout / time.Second),
		},
		// Client output only shows at trace level until logs:ethereum:enable
		Silent: cfg.SlogLevel() > config.LevelTrace,
		Logger: logger,
	})
	nodeGone := make(chan struct{})
	bus.Once(blockchain.TopicExit, func(interface{}) { close(nodeGone) })

	if err := launcher.Start(); err != nil {
		log.Fatalf("❌ Failed to start blockchain: %v", err)
	}
	defer launcher.Stop()

	// 7. Optional status API
	var server *api.Server
	if cfg.APIPort > 0 {
		server = api.NewServer(cfg.APIPort, registry, repository, launcher.Handles)
		if err := server.Start(); err != nil {
			log.Fatalf("❌ Failed to start API server: %v", err)
		}
		defer func() {
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelShutdown()
			if err := server.Shutdown(shutdownCtx); err != nil {
				slog.Error("Error stopping API server", "error", err)
			}
		}()
	}

	// 8. Wait for the node, then deploy
	readyCtx, cancelReady := context.WithTimeout(ctx, cfg.ReadyTimeout+10*time.Second)
	err = launcher.WaitReady(readyCtx)
	cancelReady()
	if err != nil {
		slog.Error("Blockchain node did not become ready", "error", err)
		return 1
	}
	fmt.Println("✅ Blockchain node ready at", cfg.RPCURL())

	connector, err := blockchain.DialConnector(ctx, blockchain.ClientConfig{
		Endpoint:       cfg.RPCURL(),
		DefaultAccount: cfg.DefaultAccount,
	})
	if err != nil {
		slog.Error("Failed to connect to blockchain node", "error", err)
		return 1
	}
	defer connector.Close()
	blockchain.RegisterConnector(bus, connector)

	if cfg.ENSRegistry != "" {
		chainNames, err := ens.NewChainResolver(connector.Client(), cfg.ENSRegistry)
		if err != nil {
			slog.Warn("ENS registry disabled", "error", err)
		} else {
			ens.RegisterCommands(bus, ens.MultiResolver{staticNames, chainNames})
		}
	}

	summary, err := pipeline.DeployAll(ctx, bus, registry.List())
	if err != nil {
		slog.Error("Deployment aborted", "error", err)
		return 1
	}
	fmt.Printf("📦 Deployed %d, reused %d, skipped %d, failed %d\n",
		summary.Deployed, summary.AlreadyDeployed, summary.Undeployed, summary.Failed)
	for name, deployErr := range summary.Errors {
		slog.Error("Contract failed to deploy", "contract", name, "error", deployErr)
	}

	// 9. Keep the node up until interrupted or gone
	select {
	case <-ctx.Done():
		slog.Warn("Interrupt received, shutting down...")
	case <-nodeGone:
		slog.Warn("Blockchain node exited, shutting down...")
	}
	bus.Emit(blockchain.TopicToolExit, nil)

	slog.Info("Embark stopped")
	return 0
}

// openRepository connects to Postgres when configured, retrying while
// the database comes up, and falls back to memory otherwise
func openRepository(ctx context.Context, cfg *config.Config) (storage.Repository, error) {
	if cfg.DatabaseURL == "" {
		slog.Info("No DATABASE_URL, tracking deployments in memory")
		return storage.NewMemoryRepository(), nil
	}

	var repository *storage.PostgresRepository
	strategy := retry.NewStrategy(retry.LoadConfig())
	err := strategy.Execute(ctx, "connect to database", func(ctx context.Context) error {
		var err error
		repository, err = storage.NewPostgresRepository(ctx, cfg.DatabaseURL)
		return err
	})
	if err != nil {
		return nil, err
	}
	slog.Info("Database connected successfully")
	return repository, nil
}
