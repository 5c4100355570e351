package model

import (
	"strings"
	"time"
)

// RequestStatus 描述买家采购需求的生命周期状态。
type RequestStatus string

const (
	RequestPendingMatch       RequestStatus = "pending_match"
	RequestPartiallyFulfilled RequestStatus = "partially_fulfilled"
	RequestFulfilled          RequestStatus = "fulfilled"
	RequestExpired            RequestStatus = "expired"
	RequestCancelled          RequestStatus = "cancelled"
)

// BuyerRequest 买家采购需求：所需农产品、数量、价格区间、送达期限。
// IsAiMatchPreferred=false 表示买家不参与自动撮合。
type BuyerRequest struct {
	ID        string    `gorm:"size:36;primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	BuyerID   string `gorm:"size:36;not null;index" json:"buyer_id"`
	BuyerName string `gorm:"size:128" json:"buyer_name"`

	ProduceNeededName string  `gorm:"size:128;not null" json:"produce_needed_name"`
	Category          string  `gorm:"size:64" json:"category"`
	DesiredQuantity   float64 `gorm:"not null;default:0" json:"desired_quantity"`
	QuantityUnit      string  `gorm:"size:32" json:"quantity_unit"`

	// 价格区间可缺省（nil 表示买家未给出）
	PriceRangeMinPerUnit *float64 `json:"price_range_min_per_unit"`
	PriceRangeMaxPerUnit *float64 `json:"price_range_max_per_unit"`

	Description      string   `gorm:"size:512" json:"description"`
	DeliveryLocation Location `gorm:"embedded;embeddedPrefix:delivery_" json:"delivery_location"`

	RequestTimestamp time.Time  `json:"request_timestamp"`
	DeliveryDeadline *time.Time `gorm:"index" json:"delivery_deadline"`

	Status             RequestStatus `gorm:"size:32;not null;index" json:"status"`
	IsAiMatchPreferred bool          `gorm:"not null;default:false" json:"is_ai_match_preferred"`

	// 履约进度（由订单创建流程在同一事务内维护）
	TotalQuantityFulfilled float64 `gorm:"not null;default:0" json:"total_quantity_fulfilled"`
	// FulfilledByOrderIDs 逗号分隔的订单 ID 列表（sqlite 内的轻量 arrayUnion）
	FulfilledByOrderIDs string `gorm:"size:1024" json:"fulfilled_by_order_ids"`
}

func (BuyerRequest) TableName() string { return "buyer_requests" }

// AppendFulfilledOrderID 把订单 ID 追加进 FulfilledByOrderIDs，已存在则不重复。
func (r *BuyerRequest) AppendFulfilledOrderID(orderID string) {
	if orderID == "" {
		return
	}
	for _, id := range strings.Split(r.FulfilledByOrderIDs, ",") {
		if id == orderID {
			return
		}
	}
	if r.FulfilledByOrderIDs == "" {
		r.FulfilledByOrderIDs = orderID
		return
	}
	r.FulfilledByOrderIDs += "," + orderID
}
