package repository

import (
	"context"

	"prs/internal/model"

	"gorm.io/gorm"
)

type LineItemRepository interface {
	Create(ctx context.Context, item *model.LineItem) error
	Update(ctx context.Context, item *model.LineItem) error
	Delete(ctx context.Context, id uint) error
	FindByID(ctx context.Context, id uint) (*model.LineItem, error)
	List(ctx context.Context) ([]model.LineItem, error)
	ListByRequest(ctx context.Context, requestID uint) ([]model.LineItem, error)
	CountByRequest(ctx context.Context, requestID uint) (int64, error)
}

type lineItemRepository struct {
	db *gorm.DB
}

func NewLineItemRepository(db *gorm.DB) LineItemRepository {
	return &lineItemRepository{db: db}
}

func (r *lineItemRepository) Create(ctx context.Context, item *model.LineItem) error {
	return translate(GetDB(ctx, r.db).Omit("Product", "Request").Create(item).Error)
}

// Update replaces every column of an existing line item.
func (r *lineItemRepository) Update(ctx context.Context, item *model.LineItem) error {
	result := GetDB(ctx, r.db).Model(&model.LineItem{}).
		Where("id = ?", item.ID).
		Updates(map[string]interface{}{
			"request_id": item.RequestID,
			"product_id": item.ProductID,
			"quantity":   item.Quantity,
		})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *lineItemRepository) Delete(ctx context.Context, id uint) error {
	result := GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.LineItem{})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *lineItemRepository) FindByID(ctx context.Context, id uint) (*model.LineItem, error) {
	var item model.LineItem
	if err := GetDB(ctx, r.db).Preload("Product").First(&item, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &item, nil
}

func (r *lineItemRepository) List(ctx context.Context) ([]model.LineItem, error) {
	var items []model.LineItem
	if err := GetDB(ctx, r.db).Preload("Product").Order("id").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *lineItemRepository) ListByRequest(ctx context.Context, requestID uint) ([]model.LineItem, error) {
	var items []model.LineItem
	if err := GetDB(ctx, r.db).Preload("Product").
		Where("request_id = ?", requestID).
		Order("id").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *lineItemRepository) CountByRequest(ctx context.Context, requestID uint) (int64, error) {
	var count int64
	if err := GetDB(ctx, r.db).Model(&model.LineItem{}).Where("request_id = ?", requestID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
