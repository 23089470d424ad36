package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"prs/internal/apperror"
	"prs/internal/model"
	"prs/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// --- DTOs ---

type CreateRequestDTO struct {
	Description   string    `json:"description" binding:"required"`
	Justification string    `json:"justification" binding:"required"`
	DateNeeded    time.Time `json:"date_needed" binding:"required"`
	DeliveryMode  string    `json:"delivery_mode" binding:"required"`
}

// UpdateRequestDTO replaces the descriptive fields. Version must echo the value last read.
type UpdateRequestDTO struct {
	ID            uint      `json:"id" binding:"required"`
	Description   string    `json:"description" binding:"required"`
	Justification string    `json:"justification" binding:"required"`
	DateNeeded    time.Time `json:"date_needed" binding:"required"`
	DeliveryMode  string    `json:"delivery_mode" binding:"required"`
	Version       int       `json:"version" binding:"required"`
}

type RejectRequestDTO struct {
	Reason string `json:"reason"`
}

type SubmitResult struct {
	Message string         `json:"message"`
	Request *model.Request `json:"request"`
}

// --- Interface ---

type RequestService interface {
	CreateRequest(ctx context.Context, actorID uint, req CreateRequestDTO) (*model.Request, error)
	GetRequest(ctx context.Context, id uint) (*model.Request, error)
	ListRequests(ctx context.Context) ([]model.Request, error)
	UpdateRequest(ctx context.Context, actorID, id uint, req UpdateRequestDTO) (*model.Request, error)
	DeleteRequest(ctx context.Context, actorID, id uint) error
	SubmitForReview(ctx context.Context, actorID, id uint) (*SubmitResult, error)
	ApproveRequest(ctx context.Context, actorID, id uint) (*model.Request, error)
	RejectRequest(ctx context.Context, actorID, id uint, reason string) (*model.Request, error)
	ListPendingReview(ctx context.Context, actorID uint) ([]model.Request, error)
}

type requestService struct {
	requestRepo  repository.RequestRepository
	lineItemRepo repository.LineItemRepository
	userRepo     repository.UserRepository
	auditRepo    repository.AuditRepository
	txManager    repository.TransactionManager
	numbering    NumberingService
	locks        *RequestLocks
	notifier     Notifier
	threshold    decimal.Decimal
	now          func() time.Time
	log          *zap.Logger
}

type RequestServiceDeps struct {
	RequestRepo  repository.RequestRepository
	LineItemRepo repository.LineItemRepository
	UserRepo     repository.UserRepository
	AuditRepo    repository.AuditRepository
	TxManager    repository.TransactionManager
	Numbering    NumberingService
	Locks        *RequestLocks
	Notifier     Notifier
	// AutoApproveThreshold is the highest total approved on submit without review.
	AutoApproveThreshold decimal.Decimal
	Now                  func() time.Time
	Log                  *zap.Logger
}

func NewRequestService(deps RequestServiceDeps) RequestService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &requestService{
		requestRepo:  deps.RequestRepo,
		lineItemRepo: deps.LineItemRepo,
		userRepo:     deps.UserRepo,
		auditRepo:    deps.AuditRepo,
		txManager:    deps.TxManager,
		numbering:    deps.Numbering,
		locks:        deps.Locks,
		notifier:     notifierOrNop(deps.Notifier),
		threshold:    deps.AutoApproveThreshold,
		now:          now,
		log:          deps.Log,
	}
}

// --- Implementation ---

func (s *requestService) CreateRequest(ctx context.Context, actorID uint, req CreateRequestDTO) (*model.Request, error) {
	if _, err := s.findUser(ctx, actorID); err != nil {
		return nil, err
	}

	var request model.Request
	number, err := s.numbering.Assign(ctx, func(txCtx context.Context, number string) error {
		request = model.Request{
			UserID:        actorID,
			RequestNumber: number,
			Description:   strings.TrimSpace(req.Description),
			Justification: strings.TrimSpace(req.Justification),
			DateNeeded:    req.DateNeeded,
			DeliveryMode:  strings.TrimSpace(req.DeliveryMode),
			Status:        model.RequestStatusNew,
			Total:         decimal.Zero,
			SubmittedDate: s.now().UTC(),
			Version:       1,
		}
		if err := s.requestRepo.Create(txCtx, &request); err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		return recordAudit(txCtx, s.auditRepo, actorID, model.ActionCreateRequest, model.EntityRequest, request.ID, number, req)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("request created",
		zap.Uint("request_id", request.ID),
		zap.String("request_number", number),
		zap.Uint("user_id", actorID))
	s.notifier.Publish(EventRequestCreated, map[string]interface{}{
		"request_id":     request.ID,
		"request_number": number,
		"user_id":        actorID,
	})

	return &request, nil
}

func (s *requestService) GetRequest(ctx context.Context, id uint) (*model.Request, error) {
	request, err := s.requestRepo.FindByIDWithRelations(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.NotFound("request %d not found", id)
		}
		return nil, fmt.Errorf("failed to load request %d: %w", id, err)
	}
	return request, nil
}

func (s *requestService) ListRequests(ctx context.Context) ([]model.Request, error) {
	requests, err := s.requestRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	return requests, nil
}

// UpdateRequest retries a stale write once by re-checking existence:
// a vanished request is NotFound, a surviving one is a ConcurrencyConflict.
func (s *requestService) UpdateRequest(ctx context.Context, actorID, id uint, req UpdateRequestDTO) (*model.Request, error) {
	if req.ID != id {
		return nil, apperror.Conflict("request id %d in body does not match path id %d", req.ID, id)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	request := &model.Request{
		ID:            id,
		Description:   strings.TrimSpace(req.Description),
		Justification: strings.TrimSpace(req.Justification),
		DateNeeded:    req.DateNeeded,
		DeliveryMode:  strings.TrimSpace(req.DeliveryMode),
		Version:       req.Version,
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.requestRepo.Update(txCtx, request); err != nil {
			return err
		}
		return recordAudit(txCtx, s.auditRepo, actorID, model.ActionUpdateRequest, model.EntityRequest, id, "", req)
	})
	if errors.Is(err, repository.ErrStaleVersion) {
		exists, existsErr := s.requestRepo.Exists(ctx, id)
		if existsErr != nil {
			return nil, fmt.Errorf("failed to re-check request %d: %w", id, existsErr)
		}
		if !exists {
			return nil, apperror.NotFound("request %d not found", id)
		}
		return nil, apperror.ConcurrencyConflict("request %d was modified by someone else; reload and retry", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update request %d: %w", id, err)
	}

	return s.GetRequest(ctx, id)
}

// DeleteRequest removes the request and its line items.
func (s *requestService) DeleteRequest(ctx context.Context, actorID, id uint) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		request, err := s.requestRepo.FindByIDForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if err := s.requestRepo.Delete(txCtx, id); err != nil {
			return err
		}
		return recordAudit(txCtx, s.auditRepo, actorID, model.ActionDeleteRequest, model.EntityRequest, id, request.RequestNumber,
			map[string]interface{}{"deleted": true})
	})
	if errors.Is(err, repository.ErrNotFound) {
		return apperror.NotFound("request %d not found", id)
	}
	if err != nil {
		return fmt.Errorf("failed to delete request %d: %w", id, err)
	}
	return nil
}

// SubmitForReview moves a NEW request on: totals at or below the threshold are
// approved at once, anything above waits for an administrator.
func (s *requestService) SubmitForReview(ctx context.Context, actorID, id uint) (*SubmitResult, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	var (
		request *model.Request
		message string
	)
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		request, err = s.lockRequest(txCtx, id)
		if err != nil {
			return err
		}
		if !request.Status.Accepts(model.TriggerSubmit) {
			return apperror.Conflict("request %d is %s and cannot be submitted", id, request.Status)
		}

		count, err := s.lineItemRepo.CountByRequest(txCtx, id)
		if err != nil {
			return fmt.Errorf("failed to count line items: %w", err)
		}
		if count == 0 {
			return apperror.Validation("cannot submit a request without line items")
		}

		target := model.RequestStatusReview
		message = "Request submitted for review."
		action := model.ActionSubmitRequest
		if request.Total.LessThanOrEqual(s.threshold) {
			target = model.RequestStatusApproved
			message = "Request automatically approved."
			action = model.ActionAutoApproveRequest
		}

		if !model.CanTransition(request.Status, model.TriggerSubmit, target) {
			return apperror.Conflict("request %d is %s and cannot be submitted", id, request.Status)
		}

		from := request.Status
		request.Status = target
		request.ReasonForRejection = nil
		if err := s.saveStatus(txCtx, request); err != nil {
			return err
		}

		return recordAudit(txCtx, s.auditRepo, actorID, action, model.EntityRequest, id, request.RequestNumber, map[string]interface{}{
			"from":      from,
			"to":        target,
			"total":     request.Total.StringFixed(2),
			"threshold": s.threshold.StringFixed(2),
		})
	})
	if err != nil {
		return nil, err
	}

	s.statusChanged(request, actorID)
	return &SubmitResult{Message: message, Request: request}, nil
}

func (s *requestService) ApproveRequest(ctx context.Context, actorID, id uint) (*model.Request, error) {
	return s.review(ctx, actorID, id, model.TriggerApprove, model.RequestStatusApproved, nil)
}

func (s *requestService) RejectRequest(ctx context.Context, actorID, id uint, reason string) (*model.Request, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperror.Validation("reason for rejection is required")
	}
	return s.review(ctx, actorID, id, model.TriggerReject, model.RequestStatusRejected, &reason)
}

// review applies an administrator decision to a request in REVIEW.
func (s *requestService) review(ctx context.Context, actorID, id uint, trigger model.RequestTrigger, target model.RequestStatus, reason *string) (*model.Request, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	var request *model.Request
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		actor, err := s.findUser(txCtx, actorID)
		if err != nil {
			return err
		}
		if !actor.Admin {
			return apperror.Forbidden("only administrators can %s requests", trigger)
		}

		request, err = s.lockRequest(txCtx, id)
		if err != nil {
			return err
		}

		if request.Status == target {
			return apperror.Conflict("request %d is already %s", id, strings.ToLower(string(target)))
		}
		if !model.CanTransition(request.Status, trigger, target) {
			return apperror.Conflict("cannot %s request %d while it is %s", trigger, id, request.Status)
		}

		from := request.Status
		request.Status = target
		request.ReasonForRejection = reason
		if err := s.saveStatus(txCtx, request); err != nil {
			return err
		}

		action := model.ActionApproveRequest
		details := map[string]interface{}{"from": from, "to": target}
		if trigger == model.TriggerReject {
			action = model.ActionRejectRequest
			details["reason"] = *reason
		}
		return recordAudit(txCtx, s.auditRepo, actorID, action, model.EntityRequest, id, request.RequestNumber, details)
	})
	if err != nil {
		return nil, err
	}

	s.statusChanged(request, actorID)
	return request, nil
}

// ListPendingReview returns requests waiting in REVIEW that the actor did not raise.
func (s *requestService) ListPendingReview(ctx context.Context, actorID uint) ([]model.Request, error) {
	if _, err := s.findUser(ctx, actorID); err != nil {
		return nil, err
	}

	requests, err := s.requestRepo.ListByStatusExcludingUser(ctx, model.RequestStatusReview, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests for review: %w", err)
	}
	if len(requests) == 0 {
		return nil, apperror.EmptyResult("no requests found for review")
	}
	return requests, nil
}

// --- Helpers ---

func (s *requestService) findUser(ctx context.Context, id uint) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.NotFound("user %d not found", id)
		}
		return nil, fmt.Errorf("failed to load user %d: %w", id, err)
	}
	return user, nil
}

func (s *requestService) lockRequest(ctx context.Context, id uint) (*model.Request, error) {
	request, err := s.requestRepo.FindByIDForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.NotFound("request %d not found", id)
		}
		return nil, fmt.Errorf("failed to load request %d: %w", id, err)
	}
	return request, nil
}

func (s *requestService) saveStatus(ctx context.Context, request *model.Request) error {
	if err := s.requestRepo.UpdateStatus(ctx, request); err != nil {
		if errors.Is(err, repository.ErrStaleVersion) {
			return apperror.ConcurrencyConflict("request %d changed while updating its status", request.ID)
		}
		return fmt.Errorf("failed to update request status: %w", err)
	}
	return nil
}

func (s *requestService) statusChanged(request *model.Request, actorID uint) {
	s.log.Info("request status changed",
		zap.Uint("request_id", request.ID),
		zap.String("status", request.Status.String()),
		zap.String("total", request.Total.StringFixed(2)),
		zap.Uint("actor_id", actorID))
	s.notifier.Publish(EventRequestStatusChanged, map[string]interface{}{
		"request_id":     request.ID,
		"request_number": request.RequestNumber,
		"status":         request.Status,
		"total":          request.Total.StringFixed(2),
	})
}
