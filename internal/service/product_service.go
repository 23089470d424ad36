package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"prs/internal/apperror"
	"prs/internal/model"
	"prs/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DTOs

type CreateVendorDTO struct {
	Code    string `json:"code" binding:"required,max=10"`
	Name    string `json:"name" binding:"required"`
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state" binding:"omitempty,len=2"`
	Zip     string `json:"zip" binding:"omitempty,max=5"`
	Phone   string `json:"phone" binding:"omitempty,max=12"`
	Email   string `json:"email" binding:"omitempty,email"`
}

type ProductDTO struct {
	VendorID   uint            `json:"vendor_id" binding:"required"`
	PartNumber string          `json:"part_number" binding:"required,max=50"`
	Name       string          `json:"name" binding:"required,max=150"`
	Price      decimal.Decimal `json:"price" swaggertype:"string" example:"12.50"`
	Unit       string          `json:"unit"`
	PhotoPath  string          `json:"photo_path"`
}

// ProductService manages the catalogue. A price change flows into every open request total.
type ProductService interface {
	CreateVendor(ctx context.Context, req CreateVendorDTO) (*model.Vendor, error)
	ListVendors(ctx context.Context) ([]model.Vendor, error)

	CreateProduct(ctx context.Context, actorID uint, req ProductDTO) (*model.Product, error)
	UpdateProduct(ctx context.Context, actorID, id uint, req ProductDTO) (*model.Product, error)
	DeleteProduct(ctx context.Context, actorID, id uint) error
	GetProduct(ctx context.Context, id uint) (*model.Product, error)
	ListProducts(ctx context.Context) ([]model.Product, error)
}

type productService struct {
	productRepo repository.ProductRepository
	vendorRepo  repository.VendorRepository
	requestRepo repository.RequestRepository
	auditRepo   repository.AuditRepository
	txManager   repository.TransactionManager
	totals      TotalService
	locks       *RequestLocks
	notifier    Notifier
	log         *zap.Logger
}

func NewProductService(
	productRepo repository.ProductRepository,
	vendorRepo repository.VendorRepository,
	requestRepo repository.RequestRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	totals TotalService,
	locks *RequestLocks,
	notifier Notifier,
	log *zap.Logger,
) ProductService {
	return &productService{
		productRepo: productRepo,
		vendorRepo:  vendorRepo,
		requestRepo: requestRepo,
		auditRepo:   auditRepo,
		txManager:   txManager,
		totals:      totals,
		locks:       locks,
		notifier:    notifierOrNop(notifier),
		log:         log,
	}
}

// --- Vendors ---

func (s *productService) CreateVendor(ctx context.Context, req CreateVendorDTO) (*model.Vendor, error) {
	vendor := &model.Vendor{
		Code:    strings.ToUpper(strings.TrimSpace(req.Code)),
		Name:    strings.TrimSpace(req.Name),
		Address: req.Address,
		City:    req.City,
		State:   strings.ToUpper(req.State),
		Zip:     req.Zip,
		Phone:   req.Phone,
		Email:   req.Email,
	}
	if err := s.vendorRepo.Create(ctx, vendor); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperror.Conflict("vendor code %s already exists", vendor.Code)
		}
		return nil, fmt.Errorf("failed to create vendor: %w", err)
	}
	return vendor, nil
}

func (s *productService) ListVendors(ctx context.Context) ([]model.Vendor, error) {
	vendors, err := s.vendorRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list vendors: %w", err)
	}
	return vendors, nil
}

// --- Products ---

func (s *productService) CreateProduct(ctx context.Context, actorID uint, req ProductDTO) (*model.Product, error) {
	product, err := s.productFromDTO(ctx, req)
	if err != nil {
		return nil, err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.productRepo.Create(txCtx, product); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperror.Conflict("vendor %d already lists part %s", product.VendorID, product.PartNumber)
			}
			return fmt.Errorf("failed to create product: %w", err)
		}
		return recordAudit(txCtx, s.auditRepo, actorID, model.ActionCreateProduct, model.EntityProduct, product.ID, product.Name, req)
	})
	if err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, product.ID)
}

// UpdateProduct saves the product and, when the price moved, recomputes every
// request that holds it, whatever its status.
func (s *productService) UpdateProduct(ctx context.Context, actorID, id uint, req ProductDTO) (*model.Product, error) {
	current, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	product, err := s.productFromDTO(ctx, req)
	if err != nil {
		return nil, err
	}
	product.ID = id
	product.CreatedAt = current.CreatedAt

	var affected []uint
	if !current.Price.Equal(product.Price) {
		affected, err = s.requestRepo.ListIDsByProduct(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to find requests for product %d: %w", id, err)
		}
	}

	unlock := s.locks.Lock(affected...)
	defer unlock()

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.productRepo.Update(txCtx, product); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperror.Conflict("vendor %d already lists part %s", product.VendorID, product.PartNumber)
			}
			return fmt.Errorf("failed to update product %d: %w", id, err)
		}
		if !current.Price.Equal(product.Price) {
			// Pick up requests that gained the product after the ids were locked; the row lock covers them.
			latest, err := s.requestRepo.ListIDsByProduct(txCtx, id)
			if err != nil {
				return fmt.Errorf("failed to find requests for product %d: %w", id, err)
			}
			affected = uniqueIDs(append(affected, latest...)...)
		}
		for _, requestID := range affected {
			if err := s.totals.Recompute(txCtx, requestID); err != nil {
				return err
			}
		}
		return recordAudit(txCtx, s.auditRepo, actorID, model.ActionUpdateProduct, model.EntityProduct, id, product.Name, map[string]interface{}{
			"old_price":         current.Price.StringFixed(2),
			"new_price":         product.Price.StringFixed(2),
			"requests_repriced": affected,
		})
	})
	if err != nil {
		return nil, err
	}

	if len(affected) > 0 {
		s.log.Info("product price changed",
			zap.Uint("product_id", id),
			zap.String("old_price", current.Price.StringFixed(2)),
			zap.String("new_price", product.Price.StringFixed(2)),
			zap.Int("requests_repriced", len(affected)))
	}
	for _, requestID := range affected {
		s.notifier.Publish(EventRequestTotalChanged, map[string]interface{}{"request_id": requestID})
	}
	return s.GetProduct(ctx, id)
}

// DeleteProduct refuses while any line item still references the product.
func (s *productService) DeleteProduct(ctx context.Context, actorID, id uint) error {
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.productRepo.Delete(txCtx, id); err != nil {
			switch {
			case errors.Is(err, repository.ErrNotFound):
				return apperror.NotFound("product %d not found", id)
			case errors.Is(err, repository.ErrInUse):
				return apperror.Conflict("product %d is used by line items", id)
			}
			return fmt.Errorf("failed to delete product %d: %w", id, err)
		}
		return recordAudit(txCtx, s.auditRepo, actorID, model.ActionDeleteProduct, model.EntityProduct, id, "", map[string]interface{}{"deleted": true})
	})
}

func (s *productService) GetProduct(ctx context.Context, id uint) (*model.Product, error) {
	product, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.NotFound("product %d not found", id)
		}
		return nil, fmt.Errorf("failed to load product %d: %w", id, err)
	}
	return product, nil
}

func (s *productService) ListProducts(ctx context.Context) ([]model.Product, error) {
	products, err := s.productRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

func (s *productService) productFromDTO(ctx context.Context, req ProductDTO) (*model.Product, error) {
	if req.Price.IsNegative() {
		return nil, apperror.Validation("price must not be negative")
	}
	if _, err := s.vendorRepo.FindByID(ctx, req.VendorID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.NotFound("vendor %d not found", req.VendorID)
		}
		return nil, fmt.Errorf("failed to load vendor %d: %w", req.VendorID, err)
	}
	return &model.Product{
		VendorID:   req.VendorID,
		PartNumber: strings.TrimSpace(req.PartNumber),
		Name:       strings.TrimSpace(req.Name),
		Price:      req.Price.Round(2),
		Unit:       req.Unit,
		PhotoPath:  req.PhotoPath,
	}, nil
}
