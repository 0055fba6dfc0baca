package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pvgupta24/embark/internal/models"
)

// MemoryRepository keeps tracked deployments for the lifetime of the process
type MemoryRepository struct {
	mu       sync.RWMutex
	tracked  map[string]models.TrackedContract
	receipts []models.Receipt
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		tracked: make(map[string]models.TrackedContract),
	}
}

// SaveTracked records (or replaces) the deployment of a contract
func (r *MemoryRepository) SaveTracked(ctx context.Context, tracked *models.TrackedContract) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracked[tracked.ClassName] = *tracked
	return nil
}

// GetTracked retrieves the tracked deployment of a contract
func (r *MemoryRepository) GetTracked(ctx context.Context, className string) (*models.TrackedContract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tracked, ok := r.tracked[className]
	if !ok {
		return nil, fmt.Errorf("tracked contract %s: %w", className, ErrNotFound)
	}
	return &tracked, nil
}

// ListTracked lists every tracked deployment ordered by class name
func (r *MemoryRepository) ListTracked(ctx context.Context) ([]*models.TrackedContract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*models.TrackedContract, 0, len(r.tracked))
	for _, tracked := range r.tracked {
		tracked := tracked
		result = append(result, &tracked)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ClassName < result[j].ClassName
	})
	return result, nil
}

// SaveReceipt appends a deploy receipt
func (r *MemoryRepository) SaveReceipt(ctx context.Context, receipt *models.Receipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receipts = append(r.receipts, *receipt)
	return nil
}

// ListReceipts lists the latest receipts of a contract
func (r *MemoryRepository) ListReceipts(ctx context.Context, className string, limit int) ([]*models.Receipt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*models.Receipt
	for i := len(r.receipts) - 1; i >= 0 && (limit <= 0 || len(result) < limit); i-- {
		if r.receipts[i].ClassName != className {
			continue
		}
		receipt := r.receipts[i]
		result = append(result, &receipt)
	}
	return result, nil
}

// Ping always succeeds
func (r *MemoryRepository) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (r *MemoryRepository) Close() error {
	return nil
}
