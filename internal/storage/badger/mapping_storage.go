package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/common"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/interfaces"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/models"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// MappingStorage implements interfaces.MappingStorage for Badger
type MappingStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	now    func() time.Time
}

// NewMappingStorage creates a new MappingStorage instance
func NewMappingStorage(db *BadgerDB, logger arbor.ILogger) *MappingStorage {
	return &MappingStorage{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// ListMappings returns all mappings ordered by original name
func (s *MappingStorage) ListMappings(ctx context.Context) ([]models.IrregularMapping, error) {
	var mappings []models.IrregularMapping
	err := s.db.Store().Find(&mappings, badgerhold.Where("ID").Ne("").SortBy("OriginalName"))
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	if mappings == nil {
		mappings = []models.IrregularMapping{}
	}
	return mappings, nil
}

func (s *MappingStorage) GetMapping(ctx context.Context, id string) (*models.IrregularMapping, error) {
	var mapping models.IrregularMapping
	err := s.db.Store().Get(id, &mapping)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mapping: %w", err)
	}
	return &mapping, nil
}

// FindByOriginalName looks a mapping up by the name used inside workflows (case-insensitive)
func (s *MappingStorage) FindByOriginalName(ctx context.Context, name string) (*models.IrregularMapping, error) {
	var mappings []models.IrregularMapping
	err := s.db.Store().Find(&mappings, badgerhold.Where("OriginalName").Eq(normalizeName(name)).Index("OriginalName"))
	if err != nil {
		return nil, fmt.Errorf("failed to find mapping: %w", err)
	}
	if len(mappings) == 0 {
		return nil, interfaces.ErrNotFound
	}
	return &mappings[0], nil
}

// SaveMapping inserts a mapping (assigning an ID when empty) or updates it, preserving CreatedAt
func (s *MappingStorage) SaveMapping(ctx context.Context, mapping *models.IrregularMapping) error {
	if err := validateMapping(mapping); err != nil {
		return err
	}

	mapping.OriginalName = normalizeName(mapping.OriginalName)
	mapping.CorrectedName = strings.TrimSpace(mapping.CorrectedName)

	now := s.now()
	if mapping.ID == "" {
		mapping.ID = common.NewMappingID()
	}
	mapping.CreatedAt = now
	mapping.UpdatedAt = now

	var existing models.IrregularMapping
	err := s.db.Store().Get(mapping.ID, &existing)
	switch {
	case err == nil:
		mapping.CreatedAt = existing.CreatedAt
	case !errors.Is(err, badgerhold.ErrNotFound):
		return fmt.Errorf("failed to check mapping existence: %w", err)
	}

	if err := s.db.Store().Upsert(mapping.ID, mapping); err != nil {
		return fmt.Errorf("failed to save mapping: %w", err)
	}

	s.logger.Debug().
		Str("id", mapping.ID).
		Str("original_name", mapping.OriginalName).
		Msg("Mapping saved")
	return nil
}

func (s *MappingStorage) DeleteMapping(ctx context.Context, id string) error {
	err := s.db.Store().Delete(id, &models.IrregularMapping{})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return interfaces.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete mapping: %w", err)
	}
	return nil
}

// Close closes the underlying database
func (s *MappingStorage) Close() error {
	return s.db.Close()
}

func validateMapping(mapping *models.IrregularMapping) error {
	if mapping == nil || strings.TrimSpace(mapping.OriginalName) == "" || strings.TrimSpace(mapping.CorrectedName) == "" {
		return fmt.Errorf("%w: original_name and corrected_name are required", interfaces.ErrInvalidInput)
	}
	return nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
