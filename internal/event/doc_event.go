package event

import "fmt"

// ChangeType 文档写入的变更类型。
type ChangeType string

const (
	ChangeCreated ChangeType = "created"
	ChangeUpdated ChangeType = "updated"
	ChangeDeleted ChangeType = "deleted"
)

// 事件携带的集合名，对应各 gorm 表。
const (
	CollectionListings    = "produce_listings"
	CollectionRequests    = "buyer_requests"
	CollectionSuggestions = "match_suggestions"
	CollectionOrders      = "orders"
)

// DocEvent 是写入事件总线的文档变更通知。
// Before/AfterStatus 是写入时刻捕获的快照对，边沿触发的判定只信这一对，
// 不假设总线 exactly-once 或有序投递。
type DocEvent struct {
	EventID      string     `json:"event_id"`
	Collection   string     `json:"collection"`
	DocID        string     `json:"doc_id"`
	Change       ChangeType `json:"change"`
	BeforeStatus string     `json:"before_status"`
	AfterStatus  string     `json:"after_status"`
	// UnixMilli，仅用于排查
	OccurredAt int64 `json:"occurred_at"`
}

// Validate 做最小字段校验，防止消费侧处理脏消息。
func (e DocEvent) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if e.Collection == "" {
		return fmt.Errorf("collection is required")
	}
	if e.DocID == "" {
		return fmt.Errorf("doc_id is required")
	}
	switch e.Change {
	case ChangeCreated, ChangeUpdated, ChangeDeleted:
	default:
		return fmt.Errorf("unknown change type %q", e.Change)
	}
	return nil
}

// Key 用作 Kafka 分区键：同一文档的事件落同一分区，保证按文档串行消费。
func (e DocEvent) Key() string {
	return e.Collection + "/" + e.DocID
}
