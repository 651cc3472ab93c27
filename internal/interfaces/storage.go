package interfaces

import (
	"context"

	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/models"
)

// MappingStorage persists irregular model name mappings
type MappingStorage interface {
	// ListMappings returns all mappings ordered by original name
	ListMappings(ctx context.Context) ([]models.IrregularMapping, error)

	// GetMapping returns ErrNotFound when id does not exist
	GetMapping(ctx context.Context, id string) (*models.IrregularMapping, error)

	// FindByOriginalName returns ErrNotFound when no mapping covers name
	FindByOriginalName(ctx context.Context, name string) (*models.IrregularMapping, error)

	// SaveMapping inserts or updates by ID
	SaveMapping(ctx context.Context, mapping *models.IrregularMapping) error

	// DeleteMapping returns ErrNotFound when id does not exist
	DeleteMapping(ctx context.Context, id string) error

	Close() error
}
