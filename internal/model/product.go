package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Vendor supplies products
type Vendor struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Code      string    `gorm:"type:varchar(10);uniqueIndex;not null" json:"code"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	Address   string    `gorm:"type:varchar(255)" json:"address"`
	City      string    `gorm:"type:varchar(255)" json:"city"`
	State     string    `gorm:"type:varchar(2)" json:"state"`
	Zip       string    `gorm:"type:varchar(5)" json:"zip"`
	Phone     string    `gorm:"type:varchar(12)" json:"phone"`
	Email     string    `gorm:"type:varchar(100)" json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Product is an orderable item. Its current price feeds every request total that references it.
type Product struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	VendorID   uint            `gorm:"not null;index;uniqueIndex:idx_product_vendor_part" json:"vendor_id"`
	Vendor     *Vendor         `gorm:"foreignKey:VendorID" json:"vendor,omitempty"`
	PartNumber string          `gorm:"type:varchar(50);not null;uniqueIndex:idx_product_vendor_part" json:"part_number"`
	Name       string          `gorm:"type:varchar(150);not null" json:"name"`
	Price      decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	Unit       string          `gorm:"type:varchar(255)" json:"unit"`
	PhotoPath  string          `gorm:"type:varchar(255)" json:"photo_path"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
