package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RequestStatus is the lifecycle state of a purchase request.
type RequestStatus string

const (
	RequestStatusNew      RequestStatus = "NEW"
	RequestStatusReview   RequestStatus = "REVIEW"
	RequestStatusApproved RequestStatus = "APPROVED"
	RequestStatusRejected RequestStatus = "REJECTED"
)

// RequestTrigger names an action that moves a request between states.
type RequestTrigger string

const (
	TriggerSubmit  RequestTrigger = "submit"
	TriggerApprove RequestTrigger = "approve"
	TriggerReject  RequestTrigger = "reject"
)

// requestTransitions lists every allowed (from, trigger) pair and its possible targets.
// Submit from NEW has two targets; the threshold decides between them.
var requestTransitions = map[RequestStatus]map[RequestTrigger][]RequestStatus{
	RequestStatusNew: {
		TriggerSubmit: {RequestStatusApproved, RequestStatusReview},
	},
	RequestStatusReview: {
		TriggerApprove: {RequestStatusApproved},
		TriggerReject:  {RequestStatusRejected},
	},
}

// Valid reports whether s is one of the four known states.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusNew, RequestStatusReview, RequestStatusApproved, RequestStatusRejected:
		return true
	}
	return false
}

// Accepts reports whether trigger can move a request out of s.
func (s RequestStatus) Accepts(trigger RequestTrigger) bool {
	return s.Valid() && len(requestTransitions[s][trigger]) > 0
}

func (s RequestStatus) String() string {
	return string(s)
}

// CanTransition reports whether trigger may move a request from `from` to `to`.
func CanTransition(from RequestStatus, trigger RequestTrigger, to RequestStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	for _, target := range requestTransitions[from][trigger] {
		if target == to {
			return true
		}
	}
	return false
}

// Request is a purchase request raised by a user and made up of line items.
type Request struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	UserID             uint            `gorm:"not null;index" json:"user_id"`
	User               *User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	RequestNumber      string          `gorm:"type:varchar(20);uniqueIndex;not null" json:"request_number"`
	Description        string          `gorm:"type:varchar(100);not null" json:"description"`
	Justification      string          `gorm:"type:varchar(255);not null" json:"justification"`
	DateNeeded         time.Time       `gorm:"type:date;not null" json:"date_needed"`
	DeliveryMode       string          `gorm:"type:varchar(25);not null" json:"delivery_mode"`
	Status             RequestStatus   `gorm:"type:varchar(20);not null;default:'NEW';index" json:"status"`
	Total              decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"total"`
	SubmittedDate      time.Time       `gorm:"not null" json:"submitted_date"`
	ReasonForRejection *string         `gorm:"type:varchar(100)" json:"reason_for_rejection"`
	Version            int             `gorm:"not null;default:1" json:"version"`
	LineItems          []LineItem      `gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE" json:"line_items,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// LineItem is a quantity of one product attached to a request.
// Both references are optional; a line item without a product contributes nothing to the total.
type LineItem struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RequestID *uint     `gorm:"uniqueIndex:idx_line_item_request_product;index" json:"request_id"`
	Request   *Request  `gorm:"foreignKey:RequestID" json:"-"`
	ProductID *uint     `gorm:"uniqueIndex:idx_line_item_request_product" json:"product_id"`
	Product   *Product  `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	Quantity  int       `gorm:"type:int;not null" json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
