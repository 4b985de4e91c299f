package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/d60-Lab/geofeed/internal/model"
	"github.com/d60-Lab/geofeed/pkg/errs"
)

// PlaceRepository 地点频道仓储
type PlaceRepository interface {
	Create(ctx context.Context, p *model.Place) error
	Get(ctx context.Context, id string) (*model.Place, error)
}

type placeRepository struct {
	db *gorm.DB
}

func NewPlaceRepository(db *gorm.DB) PlaceRepository { return &placeRepository{db: db} }

func (r *placeRepository) Create(ctx context.Context, p *model.Place) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *placeRepository) Get(ctx context.Context, id string) (*model.Place, error) {
	var p model.Place
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: place %s", errs.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
