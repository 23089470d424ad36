package model

import (
	"time"
)

// User represents a person who raises requests; admins review them.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"type:varchar(20);uniqueIndex;not null" json:"username"`
	Password  string    `gorm:"type:varchar(255);not null" json:"-"` // bcrypt hash, never serialized
	FirstName string    `gorm:"type:varchar(20);not null" json:"first_name"`
	LastName  string    `gorm:"type:varchar(20);not null" json:"last_name"`
	Phone     string    `gorm:"type:varchar(12)" json:"phone"`
	Email     string    `gorm:"type:varchar(75);uniqueIndex;not null" json:"email"`
	Reviewer  bool      `gorm:"default:false" json:"reviewer"`
	Admin     bool      `gorm:"default:false" json:"admin"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
