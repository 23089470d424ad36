package service

import (
	"context"
	"errors"
	"fmt"

	"prs/internal/apperror"
	"prs/internal/model"
	"prs/internal/repository"

	"go.uber.org/zap"
)

// DTOs

type CreateLineItemDTO struct {
	RequestID *uint `json:"request_id"`
	ProductID *uint `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// UpdateLineItemDTO is a full replacement; ID must match the addressed line item.
type UpdateLineItemDTO struct {
	ID        uint  `json:"id" binding:"required"`
	RequestID *uint `json:"request_id"`
	ProductID *uint `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type LineItemService interface {
	CreateLineItem(ctx context.Context, actorID uint, req CreateLineItemDTO) (*model.LineItem, error)
	UpdateLineItem(ctx context.Context, actorID, id uint, req UpdateLineItemDTO) (*model.LineItem, error)
	DeleteLineItem(ctx context.Context, actorID, id uint) error
	GetLineItem(ctx context.Context, id uint) (*model.LineItem, error)
	ListLineItems(ctx context.Context) ([]model.LineItem, error)
	ListByRequest(ctx context.Context, requestID uint) ([]model.LineItem, error)
}

type lineItemService struct {
	lineItemRepo repository.LineItemRepository
	requestRepo  repository.RequestRepository
	productRepo  repository.ProductRepository
	auditRepo    repository.AuditRepository
	txManager    repository.TransactionManager
	totals       TotalService
	locks        *RequestLocks
	notifier     Notifier
	log          *zap.Logger
}

func NewLineItemService(
	lineItemRepo repository.LineItemRepository,
	requestRepo repository.RequestRepository,
	productRepo repository.ProductRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	totals TotalService,
	locks *RequestLocks,
	notifier Notifier,
	log *zap.Logger,
) LineItemService {
	return &lineItemService{
		lineItemRepo: lineItemRepo,
		requestRepo:  requestRepo,
		productRepo:  productRepo,
		auditRepo:    auditRepo,
		txManager:    txManager,
		totals:       totals,
		locks:        locks,
		notifier:     notifierOrNop(notifier),
		log:          log,
	}
}

func (s *lineItemService) CreateLineItem(ctx context.Context, actorID uint, req CreateLineItemDTO) (*model.LineItem, error) {
	if err := validateQuantity(req.Quantity); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(derefID(req.RequestID))
	defer unlock()

	item := model.LineItem{
		RequestID: req.RequestID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.checkReferences(txCtx, item.RequestID, item.ProductID); err != nil {
			return err
		}

		if err := s.lineItemRepo.Create(txCtx, &item); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperror.Conflict("request already has a line item for product %d", derefID(item.ProductID))
			}
			return fmt.Errorf("failed to create line item: %w", err)
		}

		if err := s.recompute(txCtx, item.RequestID); err != nil {
			return err
		}
		return s.audit(txCtx, actorID, model.ActionCreateLineItem, &item)
	})
	if err != nil {
		return nil, err
	}

	s.totalChanged(item.RequestID)
	return s.GetLineItem(ctx, item.ID)
}

// UpdateLineItem replaces a line item and recomputes both the old and the new owning request.
func (s *lineItemService) UpdateLineItem(ctx context.Context, actorID, id uint, req UpdateLineItemDTO) (*model.LineItem, error) {
	if req.ID != id {
		return nil, apperror.Conflict("line item id %d in body does not match path id %d", req.ID, id)
	}
	if err := validateQuantity(req.Quantity); err != nil {
		return nil, err
	}

	current, err := s.GetLineItem(ctx, id)
	if err != nil {
		return nil, err
	}
	oldRequestID := derefID(current.RequestID)

	unlock := s.locks.Lock(oldRequestID, derefID(req.RequestID))
	defer unlock()

	item := model.LineItem{
		ID:        id,
		RequestID: req.RequestID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		existing, err := s.lineItemRepo.FindByID(txCtx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperror.NotFound("line item %d not found", id)
			}
			return fmt.Errorf("failed to load line item %d: %w", id, err)
		}
		if derefID(existing.RequestID) != oldRequestID {
			return apperror.ConcurrencyConflict("line item %d moved to another request while updating", id)
		}

		if err := s.checkReferences(txCtx, item.RequestID, item.ProductID); err != nil {
			return err
		}

		if err := s.lineItemRepo.Update(txCtx, &item); err != nil {
			switch {
			case errors.Is(err, repository.ErrNotFound):
				return apperror.NotFound("line item %d not found", id)
			case errors.Is(err, repository.ErrDuplicate):
				return apperror.Conflict("request already has a line item for product %d", derefID(item.ProductID))
			}
			return fmt.Errorf("failed to update line item %d: %w", id, err)
		}

		for _, requestID := range uniqueIDs(oldRequestID, derefID(item.RequestID)) {
			if err := s.totals.Recompute(txCtx, requestID); err != nil {
				return err
			}
		}
		return s.audit(txCtx, actorID, model.ActionUpdateLineItem, &item)
	})
	if err != nil {
		return nil, err
	}

	for _, requestID := range uniqueIDs(oldRequestID, derefID(item.RequestID)) {
		rid := requestID
		s.totalChanged(&rid)
	}
	return s.GetLineItem(ctx, id)
}

// DeleteLineItem removes a line item and recomputes the request that owned it.
func (s *lineItemService) DeleteLineItem(ctx context.Context, actorID, id uint) error {
	current, err := s.GetLineItem(ctx, id)
	if err != nil {
		return err
	}
	ownerID := derefID(current.RequestID)

	unlock := s.locks.Lock(ownerID)
	defer unlock()

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		existing, err := s.lineItemRepo.FindByID(txCtx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperror.NotFound("line item %d not found", id)
			}
			return fmt.Errorf("failed to load line item %d: %w", id, err)
		}
		if derefID(existing.RequestID) != ownerID {
			return apperror.ConcurrencyConflict("line item %d moved to another request while deleting", id)
		}

		if err := s.lineItemRepo.Delete(txCtx, id); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperror.NotFound("line item %d not found", id)
			}
			return fmt.Errorf("failed to delete line item %d: %w", id, err)
		}
		if err := s.recompute(txCtx, existing.RequestID); err != nil {
			return err
		}
		return s.audit(txCtx, actorID, model.ActionDeleteLineItem, existing)
	})
	if err != nil {
		return err
	}

	s.totalChanged(current.RequestID)
	return nil
}

func (s *lineItemService) GetLineItem(ctx context.Context, id uint) (*model.LineItem, error) {
	item, err := s.lineItemRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.NotFound("line item %d not found", id)
		}
		return nil, fmt.Errorf("failed to load line item %d: %w", id, err)
	}
	return item, nil
}

func (s *lineItemService) ListLineItems(ctx context.Context) ([]model.LineItem, error) {
	items, err := s.lineItemRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list line items: %w", err)
	}
	return items, nil
}

// ListByRequest reports an existing request with no line items as not found.
func (s *lineItemService) ListByRequest(ctx context.Context, requestID uint) ([]model.LineItem, error) {
	exists, err := s.requestRepo.Exists(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to check request %d: %w", requestID, err)
	}
	if !exists {
		return nil, apperror.NotFound("request %d not found", requestID)
	}

	items, err := s.lineItemRepo.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list line items for request %d: %w", requestID, err)
	}
	if len(items) == 0 {
		return nil, apperror.EmptyResult("request %d has no line items", requestID)
	}
	return items, nil
}

// --- Helpers ---

func validateQuantity(quantity int) error {
	if quantity < 1 {
		return apperror.Validation("quantity must be at least 1, got %d", quantity)
	}
	return nil
}

// checkReferences verifies that the optional request and product exist.
func (s *lineItemService) checkReferences(ctx context.Context, requestID, productID *uint) error {
	if requestID != nil {
		exists, err := s.requestRepo.Exists(ctx, *requestID)
		if err != nil {
			return fmt.Errorf("failed to check request %d: %w", *requestID, err)
		}
		if !exists {
			return apperror.NotFound("request %d not found", *requestID)
		}
	}
	if productID != nil {
		if _, err := s.productRepo.FindByID(ctx, *productID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperror.NotFound("product %d not found", *productID)
			}
			return fmt.Errorf("failed to check product %d: %w", *productID, err)
		}
	}
	return nil
}

func (s *lineItemService) recompute(ctx context.Context, requestID *uint) error {
	if requestID == nil {
		return nil
	}
	return s.totals.Recompute(ctx, *requestID)
}

func (s *lineItemService) audit(ctx context.Context, actorID uint, action string, item *model.LineItem) error {
	details := map[string]interface{}{
		"line_item_id": item.ID,
		"request_id":   item.RequestID,
		"product_id":   item.ProductID,
		"quantity":     item.Quantity,
	}
	if err := recordAudit(ctx, s.auditRepo, actorID, action, model.EntityLineItem, item.ID, "", details); err != nil {
		return err
	}
	// Mirror onto the owning request so its history shows line item changes.
	if item.RequestID != nil {
		return recordAudit(ctx, s.auditRepo, actorID, action, model.EntityRequest, *item.RequestID, "", details)
	}
	return nil
}

func (s *lineItemService) totalChanged(requestID *uint) {
	if requestID == nil {
		return
	}
	s.notifier.Publish(EventRequestTotalChanged, map[string]interface{}{
		"request_id": *requestID,
	})
}
