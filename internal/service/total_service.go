package service

import (
	"context"
	"errors"
	"fmt"

	"prs/internal/model"
	"prs/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TotalService keeps Request.Total equal to the sum of its line items at current product prices.
type TotalService interface {
	// Recompute rewrites the total of one request. A missing request is a no-op.
	Recompute(ctx context.Context, requestID uint) error
}

type totalService struct {
	requestRepo  repository.RequestRepository
	lineItemRepo repository.LineItemRepository
	productRepo  repository.ProductRepository
	log          *zap.Logger
}

func NewTotalService(
	requestRepo repository.RequestRepository,
	lineItemRepo repository.LineItemRepository,
	productRepo repository.ProductRepository,
	log *zap.Logger,
) TotalService {
	return &totalService{
		requestRepo:  requestRepo,
		lineItemRepo: lineItemRepo,
		productRepo:  productRepo,
		log:          log,
	}
}

// Recompute must run in the same transaction as the line item write it follows.
func (s *totalService) Recompute(ctx context.Context, requestID uint) error {
	if _, err := s.requestRepo.FindByIDForUpdate(ctx, requestID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Debug("skipping total for missing request", zap.Uint("request_id", requestID))
			return nil
		}
		return fmt.Errorf("failed to lock request %d: %w", requestID, err)
	}

	items, err := s.lineItemRepo.ListByRequest(ctx, requestID)
	if err != nil {
		return fmt.Errorf("failed to load line items for request %d: %w", requestID, err)
	}

	productIDs := make([]uint, 0, len(items))
	for _, item := range items {
		if item.ProductID != nil {
			productIDs = append(productIDs, *item.ProductID)
		}
	}

	products, err := s.productRepo.FindByIDs(ctx, uniqueIDs(productIDs...))
	if err != nil {
		return fmt.Errorf("failed to load product prices for request %d: %w", requestID, err)
	}
	prices := make(map[uint]decimal.Decimal, len(products))
	for _, p := range products {
		prices[p.ID] = p.Price
	}

	total := SumLineItems(items, prices)
	if err := s.requestRepo.UpdateTotal(ctx, requestID, total); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to save total for request %d: %w", requestID, err)
	}

	s.log.Debug("request total recomputed",
		zap.Uint("request_id", requestID),
		zap.Int("line_items", len(items)),
		zap.String("total", total.StringFixed(2)))
	return nil
}

// SumLineItems adds quantity × price over items that reference a priced product.
// Items without a product, or whose product is gone, contribute zero.
func SumLineItems(items []model.LineItem, prices map[uint]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		if item.ProductID == nil {
			continue
		}
		price, ok := prices[*item.ProductID]
		if !ok {
			continue
		}
		total = total.Add(price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total.Round(2)
}
