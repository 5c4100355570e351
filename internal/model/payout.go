package model

import "time"

// PayoutStatus 打款队列条目状态，本系统只写入初始态，后续由结算侧推进。
type PayoutStatus string

const (
	PayoutPendingProcessing PayoutStatus = "pending_processing"
)

// PayoutQueueEntry 农户打款队列条目：订单完成后写入一条，追加写不修改。
type PayoutQueueEntry struct {
	ID        string    `gorm:"size:36;primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OrderID  string  `gorm:"size:36;not null;uniqueIndex" json:"order_id"`
	FarmerID string  `gorm:"size:36;not null;index" json:"farmer_id"`
	Amount   float64 `gorm:"not null" json:"amount"`
	Currency string  `gorm:"size:8;not null" json:"currency"`

	Status           PayoutStatus `gorm:"size:32;not null" json:"status"`
	RequestTimestamp time.Time    `json:"request_timestamp"`
}

func (PayoutQueueEntry) TableName() string { return "payout_queue" }
