package model

import (
	"time"
)

const (
	ActionCreateRequest      = "CREATE_REQUEST"
	ActionUpdateRequest      = "UPDATE_REQUEST"
	ActionDeleteRequest      = "DELETE_REQUEST"
	ActionSubmitRequest      = "SUBMIT_REQUEST"
	ActionAutoApproveRequest = "AUTO_APPROVE_REQUEST"
	ActionApproveRequest     = "APPROVE_REQUEST"
	ActionRejectRequest      = "REJECT_REQUEST"

	ActionCreateLineItem = "CREATE_LINE_ITEM"
	ActionUpdateLineItem = "UPDATE_LINE_ITEM"
	ActionDeleteLineItem = "DELETE_LINE_ITEM"

	ActionCreateProduct = "CREATE_PRODUCT"
	ActionUpdateProduct = "UPDATE_PRODUCT"
	ActionDeleteProduct = "DELETE_PRODUCT"
)

// Audit entity kinds
const (
	EntityRequest  = "request"
	EntityLineItem = "line_item"
	EntityProduct  = "product"
)

// AuditLog tracks Who, What, and When for every request and line item change
type AuditLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     *uint     `gorm:"index" json:"user_id"` // nil for system-driven changes
	User       *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Action     string    `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityType string    `gorm:"type:varchar(20);not null;index:idx_audit_entity" json:"entity_type"`
	EntityID   uint      `gorm:"not null;index:idx_audit_entity" json:"entity_id"`
	EntityName string    `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    string    `gorm:"type:jsonb" json:"details"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}
