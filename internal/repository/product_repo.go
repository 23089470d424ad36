package repository

import (
	"context"

	"prs/internal/model"

	"gorm.io/gorm"
)

type ProductRepository interface {
	Create(ctx context.Context, product *model.Product) error
	Update(ctx context.Context, product *model.Product) error
	Delete(ctx context.Context, id uint) error
	FindByID(ctx context.Context, id uint) (*model.Product, error)
	FindByIDs(ctx context.Context, ids []uint) ([]model.Product, error)
	List(ctx context.Context) ([]model.Product, error)
}

type productRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) Create(ctx context.Context, product *model.Product) error {
	return translate(GetDB(ctx, r.db).Omit("Vendor").Create(product).Error)
}

func (r *productRepository) Update(ctx context.Context, product *model.Product) error {
	return translate(GetDB(ctx, r.db).Omit("Vendor").Save(product).Error)
}

// Delete fails with ErrInUse while line items still reference the product.
func (r *productRepository) Delete(ctx context.Context, id uint) error {
	result := GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Product{})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *productRepository) FindByID(ctx context.Context, id uint) (*model.Product, error) {
	var product model.Product
	if err := GetDB(ctx, r.db).Preload("Vendor").First(&product, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &product, nil
}

// FindByIDs loads the current rows for ids; missing ids are simply absent from the result.
func (r *productRepository) FindByIDs(ctx context.Context, ids []uint) ([]model.Product, error) {
	var products []model.Product
	if len(ids) == 0 {
		return products, nil
	}
	if err := GetDB(ctx, r.db).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

func (r *productRepository) List(ctx context.Context) ([]model.Product, error) {
	var products []model.Product
	if err := GetDB(ctx, r.db).Preload("Vendor").Order("name").Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}
