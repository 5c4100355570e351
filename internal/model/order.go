package model

import "time"

// OrderStatus 订单状态机：正常链路 pending → confirmed → picked_up →
// out_for_delivery → delivered → completed，交付前任意点可转取消/失败。
type OrderStatus string

const (
	OrderPendingFarmerConfirmation OrderStatus = "pending_farmer_confirmation"
	OrderFarmerConfirmed           OrderStatus = "farmer_confirmed_awaiting_driver"
	OrderPickedUpEnroute           OrderStatus = "driver_picked_up_enroute_to_delivery"
	OrderOutForDelivery            OrderStatus = "out_for_delivery"
	OrderDeliveredPendingConfirm   OrderStatus = "delivered_pending_buyer_confirmation"
	OrderCompleted                 OrderStatus = "completed"
	OrderCancelledByBuyer          OrderStatus = "cancelled_by_buyer"
	OrderCancelledByFarmer         OrderStatus = "cancelled_by_farmer"
	OrderDeliveryFailed            OrderStatus = "delivery_failed"
)

// PaymentStatus 支付状态（本系统不接支付网关，仅作记录字段）。
type PaymentStatus string

const (
	PaymentPendingCOD              PaymentStatus = "pending_cod"
	PaymentPaidCOD                 PaymentStatus = "paid_cod"
	PaymentSettlementPendingFarmer PaymentStatus = "settlement_pending_farmer"
)

// PointOfNoReturnStatuses：货已在途/已交付，取消不再回补挂单库存。
var PointOfNoReturnStatuses = []OrderStatus{
	OrderPickedUpEnroute,
	OrderDeliveredPendingConfirm,
	OrderCompleted,
}

// IsPastPointOfNoReturn 判断某状态是否已越过库存可回补的边界。
func IsPastPointOfNoReturn(s OrderStatus) bool {
	for _, st := range PointOfNoReturnStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// Order 由撮合建议创建的订单，买卖双方共同持有。
// 金额/名称字段是建单时刻的快照，后续挂单变化不回写。
type Order struct {
	ID        string    `gorm:"size:36;primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	BuyerID    string `gorm:"size:36;not null;index" json:"buyer_id"`
	BuyerName  string `gorm:"size:128" json:"buyer_name"`
	FarmerID   string `gorm:"size:36;not null;index" json:"farmer_id"`
	FarmerName string `gorm:"size:128" json:"farmer_name"`

	ListingID string `gorm:"size:36;not null;index" json:"listing_id"`
	// BuyerRequestID 可为空：订单不一定源自某条具体需求
	BuyerRequestID string `gorm:"size:36;index" json:"buyer_request_id"`

	ProduceName         string  `gorm:"size:128" json:"produce_name"`
	PricePerUnit        float64 `gorm:"not null;default:0" json:"price_per_unit"`
	OrderedQuantity     float64 `gorm:"not null;default:0" json:"ordered_quantity"`
	OrderedQuantityUnit string  `gorm:"size:32" json:"ordered_quantity_unit"`
	TotalGoodsPrice     float64 `gorm:"not null;default:0" json:"total_goods_price"`
	Currency            string  `gorm:"size:8" json:"currency"`

	PickupLocation   Location `gorm:"embedded;embeddedPrefix:pickup_" json:"pickup_location"`
	DeliveryLocation Location `gorm:"embedded;embeddedPrefix:delivery_" json:"delivery_location"`

	Status        OrderStatus   `gorm:"size:48;not null;index" json:"status"`
	PaymentStatus PaymentStatus `gorm:"size:48" json:"payment_status"`

	PayoutInitiationTimestamp *time.Time `json:"payout_initiation_timestamp"`

	OriginatingMatchSuggestionID string `gorm:"size:36;uniqueIndex" json:"originating_match_suggestion_id"`
}

func (Order) TableName() string { return "orders" }
