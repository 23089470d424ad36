package repository

import (
	"context"

	"prs/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RequestRepository persists purchase requests. Writes that touch Total or Status bump Version.
type RequestRepository interface {
	Create(ctx context.Context, req *model.Request) error
	FindByID(ctx context.Context, id uint) (*model.Request, error)
	FindByIDWithRelations(ctx context.Context, id uint) (*model.Request, error)
	FindByIDForUpdate(ctx context.Context, id uint) (*model.Request, error)
	Exists(ctx context.Context, id uint) (bool, error)
	List(ctx context.Context) ([]model.Request, error)
	ListByStatusExcludingUser(ctx context.Context, status model.RequestStatus, userID uint) ([]model.Request, error)
	ListIDsByProduct(ctx context.Context, productID uint) ([]uint, error)
	Update(ctx context.Context, req *model.Request) error
	UpdateTotal(ctx context.Context, id uint, total decimal.Decimal) error
	UpdateStatus(ctx context.Context, req *model.Request) error
	Delete(ctx context.Context, id uint) error
	CountByNumberPrefix(ctx context.Context, prefix string) (int64, error)
	LockNumberPrefix(ctx context.Context, prefix string) error
}

type requestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) RequestRepository {
	return &requestRepository{db: db}
}

func (r *requestRepository) Create(ctx context.Context, req *model.Request) error {
	return translate(GetDB(ctx, r.db).Create(req).Error)
}

func (r *requestRepository) FindByID(ctx context.Context, id uint) (*model.Request, error) {
	var req model.Request
	if err := GetDB(ctx, r.db).First(&req, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &req, nil
}

func (r *requestRepository) FindByIDWithRelations(ctx context.Context, id uint) (*model.Request, error) {
	var req model.Request
	if err := GetDB(ctx, r.db).
		Preload("User").
		Preload("LineItems", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("LineItems.Product").
		First(&req, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &req, nil
}

// FindByIDForUpdate locks the request row until the surrounding transaction ends.
func (r *requestRepository) FindByIDForUpdate(ctx context.Context, id uint) (*model.Request, error) {
	var req model.Request
	if err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&req).Error; err != nil {
		return nil, translate(err)
	}
	return &req, nil
}

func (r *requestRepository) Exists(ctx context.Context, id uint) (bool, error) {
	var count int64
	if err := GetDB(ctx, r.db).Model(&model.Request{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *requestRepository) List(ctx context.Context) ([]model.Request, error) {
	var requests []model.Request
	if err := GetDB(ctx, r.db).Preload("User").Order("id").Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *requestRepository) ListByStatusExcludingUser(ctx context.Context, status model.RequestStatus, userID uint) ([]model.Request, error) {
	var requests []model.Request
	if err := GetDB(ctx, r.db).
		Preload("User").
		Preload("LineItems").
		Where("status = ? AND user_id <> ?", status, userID).
		Order("submitted_date").
		Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

// ListIDsByProduct returns every request holding a line item for the product.
func (r *requestRepository) ListIDsByProduct(ctx context.Context, productID uint) ([]uint, error) {
	var ids []uint
	if err := GetDB(ctx, r.db).Model(&model.LineItem{}).
		Distinct("request_id").
		Where("product_id = ? AND request_id IS NOT NULL", productID).
		Order("request_id").
		Pluck("request_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// Update writes the client-editable fields when req.Version still matches the stored row.
func (r *requestRepository) Update(ctx context.Context, req *model.Request) error {
	result := GetDB(ctx, r.db).Model(&model.Request{}).
		Where("id = ? AND version = ?", req.ID, req.Version).
		Updates(map[string]interface{}{
			"description":   req.Description,
			"justification": req.Justification,
			"date_needed":   req.DateNeeded,
			"delivery_mode": req.DeliveryMode,
			"version":       gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStaleVersion
	}
	req.Version++
	return nil
}

func (r *requestRepository) UpdateTotal(ctx context.Context, id uint, total decimal.Decimal) error {
	result := GetDB(ctx, r.db).Model(&model.Request{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"total":   total,
			"version": gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus writes Status and ReasonForRejection when req.Version still matches.
func (r *requestRepository) UpdateStatus(ctx context.Context, req *model.Request) error {
	result := GetDB(ctx, r.db).Model(&model.Request{}).
		Where("id = ? AND version = ?", req.ID, req.Version).
		Updates(map[string]interface{}{
			"status":               req.Status,
			"reason_for_rejection": req.ReasonForRejection,
			"version":              gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleVersion
	}
	req.Version++
	return nil
}

// Delete removes the request together with its line items.
func (r *requestRepository) Delete(ctx context.Context, id uint) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("request_id = ?", id).Delete(&model.LineItem{}).Error; err != nil {
		return err
	}
	result := db.Where("id = ?", id).Delete(&model.Request{})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *requestRepository) CountByNumberPrefix(ctx context.Context, prefix string) (int64, error) {
	var count int64
	if err := GetDB(ctx, r.db).Model(&model.Request{}).
		Where("request_number LIKE ?", prefix+"%").
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// LockNumberPrefix serializes number allocation for one day until the transaction ends.
func (r *requestRepository) LockNumberPrefix(ctx context.Context, prefix string) error {
	return GetDB(ctx, r.db).Exec("SELECT pg_advisory_xact_lock(hashtext(?))", prefix).Error
}
