package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Worker metrics - Track supervised processes
var (
	WorkersLaunched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embark_workers_launched_total",
			Help: "Total number of worker processes launched",
		},
		[]string{"worker"},
	)

	WorkerExits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embark_worker_exits_total",
			Help: "Total number of worker process exits",
		},
		[]string{"worker"},
	)

	WorkerHeartbeats = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embark_worker_heartbeats_total",
			Help: "Total number of heartbeats received from workers",
		},
		[]string{"worker"},
	)

	WorkersAlive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "embark_workers_alive",
		Help: "Number of worker processes currently running",
	})
)

// Blockchain metrics - Track the node lifecycle
var (
	BlockchainReady = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "embark_blockchain_ready",
		Help: "1 when the blockchain node answers RPC, 0 otherwise",
	})
)

// Deployment metrics - Track the contract pipeline
var (
	ContractsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embark_contracts_processed_total",
			Help: "Contracts processed by the deployment pipeline, by outcome",
		},
		[]string{"outcome"},
	)

	DeployDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "embark_contract_deploy_duration_seconds",
		Help:    "Time taken to run the deployment pipeline for one contract",
		Buckets: prometheus.DefBuckets,
	})

	GasUsed = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "embark_contract_gas_used",
		Help:    "Gas used by contract deployment transactions",
		Buckets: prometheus.ExponentialBuckets(21000, 2, 10),
	})

	TrackedContracts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "embark_tracked_contracts",
		Help: "Number of contracts with a recorded deployment",
	})
)

// Error metrics - Track failures
var (
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embark_errors_total",
			Help: "Total number of errors by component",
		},
		[]string{"component"},
	)
)

// Outcome labels for ContractsProcessed
const (
	OutcomeDeployed        = "deployed"
	OutcomeAlreadyDeployed = "already_deployed"
	OutcomeUndeployed      = "undeployed"
	OutcomeError           = "error"
)
