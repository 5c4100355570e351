package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEvent() DocEvent {
	return DocEvent{
		EventID:      "evt-1",
		Collection:   CollectionSuggestions,
		DocID:        "suggestion-1",
		Change:       ChangeUpdated,
		BeforeStatus: "accepted_by_buyer",
		AfterStatus:  "order_processing",
		OccurredAt:   1700000000000,
	}
}

func TestDocEventValidate(t *testing.T) {
	assert.NoError(t, validEvent().Validate())

	ev := validEvent()
	ev.EventID = ""
	assert.Error(t, ev.Validate())

	ev = validEvent()
	ev.Collection = ""
	assert.Error(t, ev.Validate())

	ev = validEvent()
	ev.DocID = ""
	assert.Error(t, ev.Validate())

	ev = validEvent()
	ev.Change = "upserted"
	assert.Error(t, ev.Validate())

	// 创建事件没有 before 状态，得是合法的
	ev = validEvent()
	ev.Change = ChangeCreated
	ev.BeforeStatus = ""
	assert.NoError(t, ev.Validate())
}

func TestDocEventKey(t *testing.T) {
	assert.Equal(t, "match_suggestions/suggestion-1", validEvent().Key())
}

func TestParseDocEvent(t *testing.T) {
	values := map[string]interface{}{
		"event_id":      "evt-1",
		"collection":    CollectionOrders,
		"doc_id":        "order-1",
		"change":        "updated",
		"before_status": "delivered_pending_buyer_confirmation",
		"after_status":  "completed",
		"occurred_at":   "1700000000000",
	}
	ev, err := parseDocEvent(values)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", ev.EventID)
	assert.Equal(t, CollectionOrders, ev.Collection)
	assert.Equal(t, "order-1", ev.DocID)
	assert.Equal(t, ChangeUpdated, ev.Change)
	assert.Equal(t, "delivered_pending_buyer_confirmation", ev.BeforeStatus)
	assert.Equal(t, "completed", ev.AfterStatus)
	assert.Equal(t, int64(1700000000000), ev.OccurredAt)
}

func TestParseDocEvent_OptionalStatusesAndTimestamp(t *testing.T) {
	values := map[string]interface{}{
		"event_id":   "evt-2",
		"collection": CollectionListings,
		"doc_id":     "listing-1",
		"change":     "created",
	}
	ev, err := parseDocEvent(values)
	require.NoError(t, err)
	assert.Empty(t, ev.BeforeStatus)
	assert.Empty(t, ev.AfterStatus)
	assert.Zero(t, ev.OccurredAt)
}

func TestParseDocEvent_Rejects(t *testing.T) {
	// 缺必填字段
	_, err := parseDocEvent(map[string]interface{}{
		"collection": CollectionListings,
		"doc_id":     "listing-1",
		"change":     "created",
	})
	assert.Error(t, err)

	// 变更类型不合法
	_, err = parseDocEvent(map[string]interface{}{
		"event_id":   "evt-3",
		"collection": CollectionListings,
		"doc_id":     "listing-1",
		"change":     "touched",
	})
	assert.Error(t, err)
}
