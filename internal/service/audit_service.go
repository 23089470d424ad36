package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"prs/internal/apperror"
	"prs/internal/model"
	"prs/internal/repository"
)

type AuditLogResponse struct {
	ID         uint   `json:"id"`
	UserID     *uint  `json:"user_id"`
	Username   string `json:"username"`
	Action     string `json:"action"`
	EntityType string `json:"entity_type"`
	EntityID   uint   `json:"entity_id"`
	EntityName string `json:"entity_name"`
	Details    string `json:"details"`
	CreatedAt  string `json:"created_at"`
}

type AuditService interface {
	RequestHistory(ctx context.Context, requestID uint) ([]AuditLogResponse, error)
}

type auditService struct {
	auditRepo   repository.AuditRepository
	requestRepo repository.RequestRepository
}

// NewAuditService creates a new AuditService instance
func NewAuditService(auditRepo repository.AuditRepository, requestRepo repository.RequestRepository) AuditService {
	return &auditService{auditRepo: auditRepo, requestRepo: requestRepo}
}

// RequestHistory lists every recorded change of a request, oldest first
func (s *auditService) RequestHistory(ctx context.Context, requestID uint) ([]AuditLogResponse, error) {
	if _, err := s.requestRepo.FindByID(ctx, requestID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.NotFound("request %d not found", requestID)
		}
		return nil, fmt.Errorf("failed to load request %d: %w", requestID, err)
	}

	logs, err := s.auditRepo.ListByEntity(ctx, model.EntityRequest, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history for request %d: %w", requestID, err)
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		username := "System"
		if l.User != nil {
			username = l.User.Username
		}
		res = append(res, AuditLogResponse{
			ID:         l.ID,
			UserID:     l.UserID,
			Username:   username,
			Action:     l.Action,
			EntityType: l.EntityType,
			EntityID:   l.EntityID,
			EntityName: l.EntityName,
			Details:    l.Details,
			CreatedAt:  l.CreatedAt.Format(time.RFC3339),
		})
	}
	return res, nil
}

// recordAudit writes one audit row in the caller's transaction. actorID 0 means the system.
func recordAudit(ctx context.Context, repo repository.AuditRepository, actorID uint, action, entityType string, entityID uint, entityName string, details interface{}) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}

	var uid *uint
	if actorID != 0 {
		uid = &actorID
	}

	entry := &model.AuditLog{
		UserID:     uid,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    string(payload),
	}
	if err := repo.Log(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}
