package event

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
)

// Emitter 把文档变更事件写入 Redis Stream outbox。
// API 写文档后立刻入流，Relay 再异步转 Kafka，解耦请求路径与总线可用性。
type Emitter struct {
	rdb    *rd.Client
	stream string
}

func NewEmitter(rdb *rd.Client, stream string) *Emitter {
	return &Emitter{rdb: rdb, stream: stream}
}

// Emit 追加一条变更事件。EventID 自动生成。
func (e *Emitter) Emit(ctx context.Context, collection, docID string, change ChangeType, beforeStatus, afterStatus string) error {
	ev := DocEvent{
		EventID:      uuid.New().String(),
		Collection:   collection,
		DocID:        docID,
		Change:       change,
		BeforeStatus: beforeStatus,
		AfterStatus:  afterStatus,
		OccurredAt:   time.Now().UnixMilli(),
	}
	if err := ev.Validate(); err != nil {
		return err
	}
	return e.rdb.XAdd(ctx, &rd.XAddArgs{
		Stream: e.stream,
		Values: map[string]any{
			"event_id":      ev.EventID,
			"collection":    ev.Collection,
			"doc_id":        ev.DocID,
			"change":        string(ev.Change),
			"before_status": ev.BeforeStatus,
			"after_status":  ev.AfterStatus,
			"occurred_at":   strconv.FormatInt(ev.OccurredAt, 10),
		},
	}).Err()
}
