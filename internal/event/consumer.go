package event

import (
	"context"
	"encoding/json"
	"log"

	"agrimatch/internal/model"

	"github.com/segmentio/kafka-go"
)

// Handlers 是触发分发表：每类文档事件对应一个处理函数。
// 处理函数之间无共享内存，依赖都在构造时注入。
type Handlers struct {
	OnListingCreated    func(ctx context.Context, docID string) error
	OnRequestCreated    func(ctx context.Context, docID string) error
	OnSuggestionWritten func(ctx context.Context, docID string, before, after model.SuggestionStatus) error
	OnOrderWritten      func(ctx context.Context, docID string, before, after model.OrderStatus) error
}

// Consumer 从 Kafka 读取文档变更事件并分发到对应触发处理器。
type Consumer struct {
	r        *kafka.Reader
	handlers Handlers
}

func NewConsumer(brokers []string, topic, groupID string, handlers Handlers) *Consumer {
	return &Consumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1e3,
			MaxBytes: 1e6,
		}),
		handlers: handlers,
	}
}

func (c *Consumer) Close() error { return c.r.Close() }

func (c *Consumer) Run(ctx context.Context) {
	for {
		m, err := c.r.ReadMessage(ctx)
		if err != nil {
			return // ctx cancel / 连接断开等
		}

		var ev DocEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			log.Printf("consumer unmarshal: %v", err)
			continue
		}
		if err := ev.Validate(); err != nil {
			log.Printf("consumer drop invalid event: %v", err)
			continue
		}

		// 处理器失败只记日志不重试：总线层面 at-least-once，
		// 业务层面靠边沿判断 + 幂等门闩消化重复。
		if err := c.dispatch(ctx, ev); err != nil {
			log.Printf("consumer handle %s %s/%s: %v", ev.Change, ev.Collection, ev.DocID, err)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, ev DocEvent) error {
	switch ev.Collection {
	case CollectionListings:
		if ev.Change == ChangeCreated && c.handlers.OnListingCreated != nil {
			return c.handlers.OnListingCreated(ctx, ev.DocID)
		}
	case CollectionRequests:
		if ev.Change == ChangeCreated && c.handlers.OnRequestCreated != nil {
			return c.handlers.OnRequestCreated(ctx, ev.DocID)
		}
	case CollectionSuggestions:
		if ev.Change != ChangeDeleted && c.handlers.OnSuggestionWritten != nil {
			return c.handlers.OnSuggestionWritten(ctx, ev.DocID,
				model.SuggestionStatus(ev.BeforeStatus), model.SuggestionStatus(ev.AfterStatus))
		}
	case CollectionOrders:
		if ev.Change != ChangeDeleted && c.handlers.OnOrderWritten != nil {
			return c.handlers.OnOrderWritten(ctx, ev.DocID,
				model.OrderStatus(ev.BeforeStatus), model.OrderStatus(ev.AfterStatus))
		}
	default:
		log.Printf("consumer: no handler for collection %q, drop", ev.Collection)
	}
	return nil
}
