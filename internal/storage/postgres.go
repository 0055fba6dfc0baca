package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pvgupta24/embark/internal/models"
)

const schema = `
	CREATE TABLE IF NOT EXISTS tracked_contracts (
		class_name       TEXT PRIMARY KEY,
		address          TEXT NOT NULL,
		transaction_hash TEXT NOT NULL DEFAULT '',
		deployer         TEXT NOT NULL DEFAULT '',
		track            BOOLEAN NOT NULL DEFAULT TRUE,
		deployed_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS deploy_receipts (
		id               BIGSERIAL PRIMARY KEY,
		class_name       TEXT NOT NULL,
		contract_address TEXT NOT NULL,
		transaction_hash TEXT NOT NULL,
		gas_used         BIGINT NOT NULL,
		block_number     BIGINT NOT NULL DEFAULT 0,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_deploy_receipts_class_name
		ON deploy_receipts (class_name, id DESC);
`

// PostgresRepository implements the Repository interface using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository and makes
// sure its tables exist
func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}
	if err := r.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

// EnsureSchema creates the tables used by the repository if missing
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveTracked records (or replaces) the deployment of a contract
func (r *PostgresRepository) SaveTracked(ctx context.Context, tracked *models.TrackedContract) error {
	query := `
		INSERT INTO tracked_contracts (
			class_name, address, transaction_hash, deployer, track, deployed_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (class_name) DO UPDATE SET
			address = EXCLUDED.address,
			transaction_hash = EXCLUDED.transaction_hash,
			deployer = EXCLUDED.deployer,
			track = EXCLUDED.track,
			deployed_at = EXCLUDED.deployed_at
	`

	_, err := r.pool.Exec(ctx, query,
		tracked.ClassName,
		tracked.Address,
		tracked.TransactionHash,
		tracked.Deployer,
		tracked.Track,
		tracked.DeployedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save tracked contract: %w", err)
	}

	return nil
}

// GetTracked retrieves the tracked deployment of a contract
func (r *PostgresRepository) GetTracked(ctx context.Context, className string) (*models.TrackedContract, error) {
	query := `
		SELECT class_name, address, transaction_hash, deployer, track, deployed_at
		FROM tracked_contracts
		WHERE class_name = $1
	`

	var tracked models.TrackedContract
	err := r.pool.QueryRow(ctx, query, className).Scan(
		&tracked.ClassName,
		&tracked.Address,
		&tracked.TransactionHash,
		&tracked.Deployer,
		&tracked.Track,
		&tracked.DeployedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("tracked contract %s: %w", className, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tracked contract: %w", err)
	}

	return &tracked, nil
}

// ListTracked lists every tracked deployment ordered by class name
func (r *PostgresRepository) ListTracked(ctx context.Context) ([]*models.TrackedContract, error) {
	query := `
		SELECT class_name, address, transaction_hash, deployer, track, deployed_at
		FROM tracked_contracts
		ORDER BY class_name
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked contracts: %w", err)
	}
	defer rows.Close()

	var result []*models.TrackedContract
	for rows.Next() {
		var tracked models.TrackedContract
		if err := rows.Scan(
			&tracked.ClassName,
			&tracked.Address,
			&tracked.TransactionHash,
			&tracked.Deployer,
			&tracked.Track,
			&tracked.DeployedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan tracked contract: %w", err)
		}
		result = append(result, &tracked)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tracked contracts: %w", err)
	}

	return result, nil
}

// SaveReceipt appends a deploy receipt
func (r *PostgresRepository) SaveReceipt(ctx context.Context, receipt *models.Receipt) error {
	query := `
		INSERT INTO deploy_receipts (
			class_name, contract_address, transaction_hash, gas_used, block_number
		) VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.pool.Exec(ctx, query,
		receipt.ClassName,
		receipt.ContractAddress,
		receipt.TransactionHash,
		int64(receipt.GasUsed),
		int64(receipt.BlockNumber),
	)
	if err != nil {
		return fmt.Errorf("failed to save receipt: %w", err)
	}

	return nil
}

// ListReceipts lists the latest receipts of a contract
func (r *PostgresRepository) ListReceipts(ctx context.Context, className string, limit int) ([]*models.Receipt, error) {
	query := `
		SELECT class_name, contract_address, transaction_hash, gas_used, block_number
		FROM deploy_receipts
		WHERE class_name = $1
		ORDER BY id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, className, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	defer rows.Close()

	var result []*models.Receipt
	for rows.Next() {
		var receipt models.Receipt
		var gasUsed, blockNumber int64
		if err := rows.Scan(
			&receipt.ClassName,
			&receipt.ContractAddress,
			&receipt.TransactionHash,
			&gasUsed,
			&blockNumber,
		); err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		receipt.GasUsed = uint64(gasUsed)
		receipt.BlockNumber = uint64(blockNumber)
		result = append(result, &receipt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating receipts: %w", err)
	}

	return result, nil
}

// Ping checks if the database connection is alive
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}
