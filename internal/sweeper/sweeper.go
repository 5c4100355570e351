package sweeper

import (
	"context"
	"fmt"
	"log"
	"time"

	"agrimatch/internal/model"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// Sweeper 定时把过了期限的挂单/需求/建议批量置为 expired。
// 三个子清扫互相独立：某一个失败只记日志，不影响其余两个。
type Sweeper struct {
	db        *gorm.DB
	staleness time.Duration
}

func New(db *gorm.DB, suggestionStaleness time.Duration) *Sweeper {
	return &Sweeper{db: db, staleness: suggestionStaleness}
}

// Schedule 按 cron 表达式 + 时区注册每日清扫。返回的 cron 由调用方 Start/Stop。
func (s *Sweeper) Schedule(spec, timezone string) (*cron.Cron, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", timezone, err)
	}
	c := cron.New(cron.WithLocation(loc))
	_, err = c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 9*time.Minute)
		defer cancel()
		s.SweepAll(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("register sweep cron %q: %w", spec, err)
	}
	return c, nil
}

// SweepAll 跑一轮全部清扫。
func (s *Sweeper) SweepAll(ctx context.Context) {
	log.Printf("sweeper: starting expiry sweep")
	now := time.Now()

	if n, err := s.SweepListings(ctx, now); err != nil {
		log.Printf("sweeper: listings sweep failed: %v", err)
	} else if n > 0 {
		log.Printf("sweeper: expired %d produce listings", n)
	}

	if n, err := s.SweepRequests(ctx, now); err != nil {
		log.Printf("sweeper: requests sweep failed: %v", err)
	} else if n > 0 {
		log.Printf("sweeper: expired %d buyer requests", n)
	}

	if n, err := s.SweepSuggestions(ctx, now); err != nil {
		log.Printf("sweeper: suggestions sweep failed: %v", err)
	} else if n > 0 {
		log.Printf("sweeper: expired %d match suggestions", n)
	}
}

// SweepListings 处理 expiryTimestamp 已过、状态仍活跃的挂单。
// 单次清扫的全部更新落在一个事务里。
func (s *Sweeper) SweepListings(ctx context.Context, now time.Time) (int64, error) {
	var affected int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.ProduceListing{}).
			Where("expiry_timestamp IS NOT NULL AND expiry_timestamp <= ?", now).
			Where("status IN ?", []model.ListingStatus{model.ListingAvailable, model.ListingPartiallyCommitted}).
			Update("status", model.ListingExpired)
		affected = res.RowsAffected
		return res.Error
	})
	return affected, err
}

// SweepRequests 处理 deliveryDeadline 已过、状态仍活跃的需求。
func (s *Sweeper) SweepRequests(ctx context.Context, now time.Time) (int64, error) {
	var affected int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.BuyerRequest{}).
			Where("delivery_deadline IS NOT NULL AND delivery_deadline <= ?", now).
			Where("status IN ?", []model.RequestStatus{model.RequestPendingMatch, model.RequestPartiallyFulfilled}).
			Update("status", model.RequestExpired)
		affected = res.RowsAffected
		return res.Error
	})
	return affected, err
}

// SweepSuggestions 处理创建超过 staleness（默认 3 天）仍悬而未决的建议。
func (s *Sweeper) SweepSuggestions(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-s.staleness)
	var affected int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.MatchSuggestion{}).
			Where("suggestion_timestamp <= ?", cutoff).
			Where("status IN ?", model.UnresolvedSuggestionStatuses).
			Update("status", model.SuggestionExpired)
		affected = res.RowsAffected
		return res.Error
	})
	return affected, err
}
