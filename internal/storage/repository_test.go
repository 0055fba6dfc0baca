package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pvgupta24/embark/internal/models"
)

// exerciseRepository runs the shared contract of every Repository
func exerciseRepository(t *testing.T, repo Repository) {
	ctx := context.Background()

	_, err := repo.GetTracked(ctx, "Missing")
	assert.ErrorIs(t, err, ErrNotFound)

	deployedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, repo.SaveTracked(ctx, &models.TrackedContract{
		ClassName:  "Token",
		Address:    "0x00000000000000000000000000000000000000aa",
		Deployer:   "0x00000000000000000000000000000000000000bb",
		Track:      true,
		DeployedAt: deployedAt,
	}))
	require.NoError(t, repo.SaveTracked(ctx, &models.TrackedContract{
		ClassName:  "Library",
		Address:    "0x00000000000000000000000000000000000000cc",
		Track:      true,
		DeployedAt: deployedAt,
	}))

	// Redeploy replaces the record
	require.NoError(t, repo.SaveTracked(ctx, &models.TrackedContract{
		ClassName:       "Token",
		Address:         "0x00000000000000000000000000000000000000dd",
		TransactionHash: "0xfeed",
		Track:           false,
		DeployedAt:      deployedAt,
	}))

	tracked, err := repo.GetTracked(ctx, "Token")
	require.NoError(t, err)
	assert.Equal(t, "0x00000000000000000000000000000000000000dd", tracked.Address)
	assert.Equal(t, "0xfeed", tracked.TransactionHash)
	assert.False(t, tracked.Track)
	assert.True(t, deployedAt.Equal(tracked.DeployedAt))

	all, err := repo.ListTracked(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Library", all[0].ClassName)
	assert.Equal(t, "Token", all[1].ClassName)

	for i, hash := range []string{"0x01", "0x02", "0x03"} {
		require.NoError(t, repo.SaveReceipt(ctx, &models.Receipt{
			ClassName:       "Token",
			ContractAddress: "0x00000000000000000000000000000000000000dd",
			TransactionHash: hash,
			GasUsed:         uint64(21000 + i),
		}))
	}
	receipts, err := repo.ListReceipts(ctx, "Token", 2)
	require.NoError(t, err)
	require.Len(t, receipts, 2)
	assert.Equal(t, "0x03", receipts[0].TransactionHash)
	assert.Equal(t, "0x02", receipts[1].TransactionHash)

	assert.NoError(t, repo.Ping(ctx))
}

func TestMemoryRepository(t *testing.T) {
	exerciseRepository(t, NewMemoryRepository())
}

func TestPostgresRepository(t *testing.T) {
	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping PostgreSQL integration test")
	}

	ctx := context.Background()
	repo, err := NewPostgresRepository(ctx, databaseURL)
	require.NoError(t, err)
	defer repo.Close()

	_, err = repo.pool.Exec(ctx, `TRUNCATE tracked_contracts, deploy_receipts`)
	require.NoError(t, err)

	exerciseRepository(t, repo)
}
