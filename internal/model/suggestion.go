package model

import "time"

// SuggestionStatus 描述 AI 撮合建议的状态机。
// order_processing 是建单的唯一触发点；order_created 至多进入一次。
type SuggestionStatus string

const (
	SuggestionForFarmer          SuggestionStatus = "ai_suggestion_for_farmer"
	SuggestionForBuyer           SuggestionStatus = "ai_suggestion_for_buyer"
	SuggestionAcceptedByFarmer   SuggestionStatus = "accepted_by_farmer"
	SuggestionAcceptedByBuyer    SuggestionStatus = "accepted_by_buyer"
	SuggestionDeclinedByFarmer   SuggestionStatus = "declined_by_farmer"
	SuggestionDeclinedByBuyer    SuggestionStatus = "declined_by_buyer"
	SuggestionOrderProcessing    SuggestionStatus = "order_processing"
	SuggestionOrderCreated       SuggestionStatus = "order_created"
	SuggestionErrorCreatingOrder SuggestionStatus = "error_creating_order"
	SuggestionExpired            SuggestionStatus = "expired"
)

// UnresolvedSuggestionStatuses 是过期清扫视为“悬而未决”的状态集合。
var UnresolvedSuggestionStatuses = []SuggestionStatus{
	SuggestionForFarmer,
	SuggestionForBuyer,
	SuggestionAcceptedByFarmer,
	SuggestionAcceptedByBuyer,
}

// MatchSuggestion AI 撮合建议：一条挂单与一条需求的打分配对。
// 只会被标记 expired，不做程序化删除。
type MatchSuggestion struct {
	ID        string    `gorm:"size:36;primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ListingID      string `gorm:"size:36;not null;index" json:"listing_id"`
	FarmerID       string `gorm:"size:36;not null" json:"farmer_id"`
	BuyerRequestID string `gorm:"size:36;not null;index" json:"buyer_request_id"`
	BuyerID        string `gorm:"size:36;not null" json:"buyer_id"`

	SuggestedOrderQuantity     float64 `gorm:"not null;default:0" json:"suggested_order_quantity"`
	SuggestedOrderQuantityUnit string  `gorm:"size:32" json:"suggested_order_quantity_unit"`

	// AiMatchScore ∈ [0,1]，由 1–10 原始分除以 10 得到
	AiMatchScore     float64 `gorm:"not null;default:0" json:"ai_match_score"`
	AiMatchRationale string  `gorm:"size:1024" json:"ai_match_rationale"`

	Status SuggestionStatus `gorm:"size:32;not null;index" json:"status"`

	SuggestionTimestamp       time.Time `gorm:"index" json:"suggestion_timestamp"`
	SuggestionExpiryTimestamp time.Time `json:"suggestion_expiry_timestamp"`

	// RelatedOrderID / ErrorMessage 由建单流程回填
	RelatedOrderID string `gorm:"size:36" json:"related_order_id"`
	ErrorMessage   string `gorm:"size:255" json:"error_message"`
}

func (MatchSuggestion) TableName() string { return "match_suggestions" }
