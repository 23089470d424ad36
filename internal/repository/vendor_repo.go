package repository

import (
	"context"

	"prs/internal/model"

	"gorm.io/gorm"
)

type VendorRepository interface {
	Create(ctx context.Context, vendor *model.Vendor) error
	FindByID(ctx context.Context, id uint) (*model.Vendor, error)
	List(ctx context.Context) ([]model.Vendor, error)
}

type vendorRepository struct {
	db *gorm.DB
}

func NewVendorRepository(db *gorm.DB) VendorRepository {
	return &vendorRepository{db: db}
}

func (r *vendorRepository) Create(ctx context.Context, vendor *model.Vendor) error {
	return translate(GetDB(ctx, r.db).Create(vendor).Error)
}

func (r *vendorRepository) FindByID(ctx context.Context, id uint) (*model.Vendor, error) {
	var vendor model.Vendor
	if err := GetDB(ctx, r.db).First(&vendor, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &vendor, nil
}

func (r *vendorRepository) List(ctx context.Context) ([]model.Vendor, error) {
	var vendors []model.Vendor
	if err := GetDB(ctx, r.db).Order("name").Find(&vendors).Error; err != nil {
		return nil, err
	}
	return vendors, nil
}
