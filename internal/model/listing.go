package model

import (
	"time"
)

// ListingStatus 描述农产品挂单的生命周期状态。
type ListingStatus string

const (
	ListingAvailable          ListingStatus = "available"
	ListingPartiallyCommitted ListingStatus = "partially_committed"
	ListingFulfilled          ListingStatus = "fulfilled"
	ListingExpired            ListingStatus = "expired"
	ListingCancelled          ListingStatus = "cancelled"
)

// ProduceListing 农户挂单：可售农产品、数量、单价、有效期。
// QuantityCommitted 由订单创建/取消双向增减，库存权威在 DB。
type ProduceListing struct {
	ID        string    `gorm:"size:36;primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	FarmerID   string `gorm:"size:36;not null;index" json:"farmer_id"`
	FarmerName string `gorm:"size:128" json:"farmer_name"`

	ProduceName string  `gorm:"size:128;not null" json:"produce_name"`
	Category    string  `gorm:"size:64" json:"category"`
	Quantity    float64 `gorm:"not null;default:0" json:"quantity"`
	// QuantityUnit 如 kg / sack / crate
	QuantityUnit      string  `gorm:"size:32" json:"quantity_unit"`
	QuantityCommitted float64 `gorm:"not null;default:0" json:"quantity_committed"`

	PricePerUnit float64 `gorm:"not null;default:0" json:"price_per_unit"`
	Currency     string  `gorm:"size:8" json:"currency"`
	Description  string  `gorm:"size:512" json:"description"`

	Location Location `gorm:"embedded;embeddedPrefix:pickup_" json:"location"`

	ListingTimestamp time.Time  `json:"listing_timestamp"`
	ExpiryTimestamp  *time.Time `gorm:"index" json:"expiry_timestamp"`

	Status ListingStatus `gorm:"size:32;not null;index" json:"status"`
}

func (ProduceListing) TableName() string { return "produce_listings" }
