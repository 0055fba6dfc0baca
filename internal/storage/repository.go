package storage

import (
	"context"
	"errors"

	"github.com/pvgupta24/embark/internal/models"
)

// ErrNotFound is returned when no record exists for the requested key
var ErrNotFound = errors.New("not found")

// Repository defines the interface for all storage operations
type Repository interface {
	// Tracked deployments, keyed by class name
	SaveTracked(ctx context.Context, tracked *models.TrackedContract) error
	GetTracked(ctx context.Context, className string) (*models.TrackedContract, error)
	ListTracked(ctx context.Context) ([]*models.TrackedContract, error)

	// Deploy receipts, newest first
	SaveReceipt(ctx context.Context, receipt *models.Receipt) error
	ListReceipts(ctx context.Context, className string, limit int) ([]*models.Receipt, error)

	// Health & Maintenance
	Ping(ctx context.Context) error
	Close() error
}
