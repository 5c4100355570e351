package event

import (
	"context"
	"testing"

	"agrimatch/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchRoutesByCollection(t *testing.T) {
	var (
		listingID  string
		requestID  string
		sugBefore  model.SuggestionStatus
		sugAfter   model.SuggestionStatus
		ordBefore  model.OrderStatus
		ordAfter   model.OrderStatus
		orderCalls int
	)
	c := &Consumer{handlers: Handlers{
		OnListingCreated: func(_ context.Context, docID string) error {
			listingID = docID
			return nil
		},
		OnRequestCreated: func(_ context.Context, docID string) error {
			requestID = docID
			return nil
		},
		OnSuggestionWritten: func(_ context.Context, docID string, before, after model.SuggestionStatus) error {
			sugBefore, sugAfter = before, after
			return nil
		},
		OnOrderWritten: func(_ context.Context, docID string, before, after model.OrderStatus) error {
			orderCalls++
			ordBefore, ordAfter = before, after
			return nil
		},
	}}

	ctx := context.Background()
	require.NoError(t, c.dispatch(ctx, DocEvent{
		EventID: "e1", Collection: CollectionListings, DocID: "listing-1", Change: ChangeCreated,
	}))
	assert.Equal(t, "listing-1", listingID)

	require.NoError(t, c.dispatch(ctx, DocEvent{
		EventID: "e2", Collection: CollectionRequests, DocID: "request-1", Change: ChangeCreated,
	}))
	assert.Equal(t, "request-1", requestID)

	require.NoError(t, c.dispatch(ctx, DocEvent{
		EventID: "e3", Collection: CollectionSuggestions, DocID: "sug-1", Change: ChangeUpdated,
		BeforeStatus: "accepted_by_buyer", AfterStatus: "order_processing",
	}))
	assert.Equal(t, model.SuggestionAcceptedByBuyer, sugBefore)
	assert.Equal(t, model.SuggestionOrderProcessing, sugAfter)

	require.NoError(t, c.dispatch(ctx, DocEvent{
		EventID: "e4", Collection: CollectionOrders, DocID: "order-1", Change: ChangeUpdated,
		BeforeStatus: "delivered_pending_buyer_confirmation", AfterStatus: "completed",
	}))
	assert.Equal(t, model.OrderDeliveredPendingConfirm, ordBefore)
	assert.Equal(t, model.OrderCompleted, ordAfter)

	// 删除事件不触发订单处理器
	require.NoError(t, c.dispatch(ctx, DocEvent{
		EventID: "e5", Collection: CollectionOrders, DocID: "order-1", Change: ChangeDeleted,
	}))
	assert.Equal(t, 1, orderCalls)

	// 未知集合静默丢弃
	require.NoError(t, c.dispatch(ctx, DocEvent{
		EventID: "e6", Collection: "payout_queue", DocID: "p-1", Change: ChangeCreated,
	}))
}

func TestDispatchUpdateOnListingsIsIgnored(t *testing.T) {
	called := false
	c := &Consumer{handlers: Handlers{
		OnListingCreated: func(_ context.Context, _ string) error {
			called = true
			return nil
		},
	}}
	// 撮合只在创建时触发一次
	require.NoError(t, c.dispatch(context.Background(), DocEvent{
		EventID: "e1", Collection: CollectionListings, DocID: "listing-1", Change: ChangeUpdated,
	}))
	assert.False(t, called)
}
