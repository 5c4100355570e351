package matching

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"agrimatch/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Lifecycle 负责撮合建议的产生：响应新挂单/新需求，取候选、跑 Generator、
// 批量落建议文档（带 24h 有效期）。
type Lifecycle struct {
	db  *gorm.DB
	gen *Generator

	minScoreThreshold float64
	suggestionTTL     time.Duration
	topN              int
}

func NewLifecycle(db *gorm.DB, gen *Generator, minScoreThreshold float64, suggestionTTL time.Duration, topN int) *Lifecycle {
	return &Lifecycle{
		db:                db,
		gen:               gen,
		minScoreThreshold: minScoreThreshold,
		suggestionTTL:     suggestionTTL,
		topN:              topN,
	}
}

// HandleNewListing 挂单触发路径：对所有在期的活跃需求全量撮合，
// 入选项全部落为 ai_suggestion_for_farmer，不做排名截断。
func (lc *Lifecycle) HandleNewListing(ctx context.Context, listingID string) error {
	var listing model.ProduceListing
	err := lc.db.WithContext(ctx).First(&listing, "id = ?", listingID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("matching: listing %s not found, skip", listingID)
			return nil
		}
		return fmt.Errorf("load listing %s: %w", listingID, err)
	}

	// 查询只按状态过滤，截止时间在内存里筛，避免组合索引要求。
	var requests []model.BuyerRequest
	err = lc.db.WithContext(ctx).
		Where("status IN ?", []model.RequestStatus{model.RequestPendingMatch, model.RequestPartiallyFulfilled}).
		Find(&requests).Error
	if err != nil {
		return fmt.Errorf("query active requests: %w", err)
	}

	now := time.Now()
	candidates := make([]model.BuyerRequest, 0, len(requests))
	for _, r := range requests {
		if r.DeliveryDeadline != nil && r.DeliveryDeadline.After(now) {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		log.Printf("matching: no active buyer requests for listing %s", listingID)
		return nil
	}
	log.Printf("matching: listing %s against %d buyer requests", listingID, len(candidates))

	outputs := lc.gen.Generate(ctx, Input{
		Context:           ListingTriggered,
		Listing:           &listing,
		Requests:          candidates,
		MinScoreThreshold: lc.minScoreThreshold,
	})
	return lc.persistSuggestions(ctx, outputs, model.SuggestionForFarmer)
}

// HandleNewRequest 需求触发路径：只处理 isAiMatchPreferred 的需求，
// 入选项按分数降序取前 topN 落为 ai_suggestion_for_buyer。
func (lc *Lifecycle) HandleNewRequest(ctx context.Context, requestID string) error {
	var request model.BuyerRequest
	err := lc.db.WithContext(ctx).First(&request, "id = ?", requestID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("matching: request %s not found, skip", requestID)
			return nil
		}
		return fmt.Errorf("load request %s: %w", requestID, err)
	}

	if !request.IsAiMatchPreferred {
		log.Printf("matching: request %s does not prefer AI matching, skip", requestID)
		return nil
	}

	var listings []model.ProduceListing
	err = lc.db.WithContext(ctx).
		Where("status IN ?", []model.ListingStatus{model.ListingAvailable, model.ListingPartiallyCommitted}).
		Find(&listings).Error
	if err != nil {
		return fmt.Errorf("query available listings: %w", err)
	}

	now := time.Now()
	candidates := make([]model.ProduceListing, 0, len(listings))
	for _, l := range listings {
		if l.ExpiryTimestamp != nil && l.ExpiryTimestamp.After(now) {
			candidates = append(candidates, l)
		}
	}
	if len(candidates) == 0 {
		log.Printf("matching: no available listings for request %s", requestID)
		return nil
	}
	log.Printf("matching: request %s against %d listings", requestID, len(candidates))

	outputs := lc.gen.Generate(ctx, Input{
		Context:           RequestTriggered,
		Request:           &request,
		Listings:          candidates,
		MinScoreThreshold: lc.minScoreThreshold,
	})

	// 按分数降序，平分保持输入序（稳定排序），只留前 topN。
	sort.SliceStable(outputs, func(i, j int) bool {
		return outputs[i].AiMatchScore > outputs[j].AiMatchScore
	})
	if len(outputs) > lc.topN {
		outputs = outputs[:lc.topN]
	}
	return lc.persistSuggestions(ctx, outputs, model.SuggestionForBuyer)
}

// persistSuggestions 把入选撮合结果整体写成建议文档（单批事务，全有或全无）。
func (lc *Lifecycle) persistSuggestions(ctx context.Context, outputs []Output, status model.SuggestionStatus) error {
	if len(outputs) == 0 {
		return nil
	}

	now := time.Now()
	expiry := now.Add(lc.suggestionTTL)
	suggestions := make([]model.MatchSuggestion, 0, len(outputs))
	for _, o := range outputs {
		suggestions = append(suggestions, model.MatchSuggestion{
			ID:                         uuid.New().String(),
			ListingID:                  o.ListingID,
			FarmerID:                   o.FarmerID,
			BuyerRequestID:             o.BuyerRequestID,
			BuyerID:                    o.BuyerID,
			SuggestedOrderQuantity:     o.SuggestedOrderQuantity,
			SuggestedOrderQuantityUnit: o.SuggestedOrderQuantityUnit,
			AiMatchScore:               o.AiMatchScore,
			AiMatchRationale:           o.AiMatchRationale,
			Status:                     status,
			SuggestionTimestamp:        now,
			SuggestionExpiryTimestamp:  expiry,
		})
	}

	err := lc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&suggestions).Error
	})
	if err != nil {
		return fmt.Errorf("commit %d match suggestions: %w", len(suggestions), err)
	}
	log.Printf("matching: created %d match suggestions (%s)", len(suggestions), status)
	return nil
}
