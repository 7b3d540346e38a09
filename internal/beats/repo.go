package beats

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
	"github.com/angelmondragon/beatstore-backend/pkg/pagination"
)

// Repository persists catalog entries. FindByID returns (nil, nil) when absent.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Beat, error)
	List(ctx context.Context, filters ListFilters, cursor *pagination.Cursor, limit int) ([]models.Beat, error)
	Create(ctx context.Context, beat *models.Beat) error
	All(ctx context.Context, fn func(models.Beat) error) error
}

// ListFilters mirrors the catalog's public filter set.
type ListFilters struct {
	Genre  string
	Scale  string
	BPM    *int
	BPMMin *int
	BPMMax *int
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Beat, error) {
	var beat models.Beat
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&beat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &beat, nil
}

func (r *repository) List(ctx context.Context, filters ListFilters, cursor *pagination.Cursor, limit int) ([]models.Beat, error) {
	qb := r.db.WithContext(ctx).Model(&models.Beat{})
	if genre := strings.TrimSpace(filters.Genre); genre != "" {
		qb = qb.Where("LOWER(genre) = ?", strings.ToLower(genre))
	}
	if scale := strings.TrimSpace(filters.Scale); scale != "" {
		qb = qb.Where("LOWER(scale) = ?", strings.ToLower(scale))
	}
	if filters.BPM != nil {
		qb = qb.Where("bpm = ?", *filters.BPM)
	}
	if filters.BPMMin != nil {
		qb = qb.Where("bpm >= ?", *filters.BPMMin)
	}
	if filters.BPMMax != nil {
		qb = qb.Where("bpm <= ?", *filters.BPMMax)
	}
	if cursor != nil {
		qb = qb.Where("((created_at < ?) OR (created_at = ? AND id < ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Beat
	err := qb.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *repository) Create(ctx context.Context, beat *models.Beat) error {
	if beat.ID == uuid.Nil {
		beat.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(beat).Error
}

// All streams every beat in creation order, in batches.
func (r *repository) All(ctx context.Context, fn func(models.Beat) error) error {
	var batch []models.Beat
	return r.db.WithContext(ctx).
		Order("created_at ASC").
		FindInBatches(&batch, 100, func(tx *gorm.DB, _ int) error {
			for _, beat := range batch {
				if err := fn(beat); err != nil {
					return err
				}
			}
			return nil
		}).Error
}
