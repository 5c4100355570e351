package matching

import (
	"context"
	"log"
	"time"

	"agrimatch/internal/model"
)

// TriggerContext 标记撮合由哪一侧触发。
type TriggerContext string

const (
	ListingTriggered TriggerContext = "listing_triggered"
	RequestTriggered TriggerContext = "request_triggered"
)

// Input 一次撮合运行的输入：触发项 + 对侧候选集 + 阈值。
// listing_triggered 时 Listing 是触发项、Requests 是候选；
// request_triggered 时反过来。两种情况都是 触发项×候选 的 N 个配对。
type Input struct {
	Context           TriggerContext
	Listing           *model.ProduceListing
	Request           *model.BuyerRequest
	Listings          []model.ProduceListing
	Requests          []model.BuyerRequest
	MinScoreThreshold float64
}

// Output 单个入选配对的撮合结果。
type Output struct {
	ListingID                  string
	FarmerID                   string
	BuyerRequestID             string
	BuyerID                    string
	SuggestedOrderQuantity     float64
	SuggestedOrderQuantityUnit string
	AiMatchScore               float64
	AiMatchRationale           string
}

// Generator 驱动 Oracle 对每个配对打分并按阈值过滤。
type Generator struct {
	oracle Oracle
}

func NewGenerator(oracle Oracle) *Generator {
	return &Generator{oracle: oracle}
}

type pair struct {
	listing *model.ProduceListing
	request *model.BuyerRequest
}

// Generate 对全部配对逐一打分：
// - 任一侧产品名为空 → 跳过该对（记日志，不中断批次）
// - 原始 1–10 分除以 10 得 0–1 匹配分，低于阈值不入选
// - 缺 farmerId/buyerId 的配对即使高分也不入选
// - 建议量 = min(挂单量, 需求量)，单位取挂单单位，缺省退需求单位再退 "unit"
func (g *Generator) Generate(ctx context.Context, in Input) []Output {
	threshold := in.MinScoreThreshold
	if threshold <= 0 {
		threshold = 0.7
	}

	pairs := g.buildPairs(in)
	now := time.Now()
	outputs := make([]Output, 0, len(pairs))

	for _, p := range pairs {
		if p.listing == nil || p.request == nil ||
			p.listing.ProduceName == "" || p.request.ProduceNeededName == "" {
			log.Printf("matching: skip pair with missing data L:%s R:%s", safeID(p.listing), safeReqID(p.request))
			continue
		}

		prompt := renderMatchPrompt(p.listing, p.request, now)
		score := g.oracle.ScoreMatch(ctx, prompt)
		matchScore := score.Value / 10

		if matchScore < threshold {
			continue
		}
		if p.listing.FarmerID == "" || p.request.BuyerID == "" {
			log.Printf("matching: missing farmerId/buyerId for L:%s R:%s, dropping match", p.listing.ID, p.request.ID)
			continue
		}

		unit := p.listing.QuantityUnit
		if unit == "" {
			unit = p.request.QuantityUnit
		}
		if unit == "" {
			unit = "unit"
		}

		outputs = append(outputs, Output{
			ListingID:                  p.listing.ID,
			FarmerID:                   p.listing.FarmerID,
			BuyerRequestID:             p.request.ID,
			BuyerID:                    p.request.BuyerID,
			SuggestedOrderQuantity:     minQuantity(p.listing.Quantity, p.request.DesiredQuantity),
			SuggestedOrderQuantityUnit: unit,
			AiMatchScore:               matchScore,
			AiMatchRationale:           score.Rationale,
		})
	}
	return outputs
}

// buildPairs 生成 触发项×候选 的全量配对（恰好 N 对，不做候选×候选）。
func (g *Generator) buildPairs(in Input) []pair {
	switch in.Context {
	case ListingTriggered:
		pairs := make([]pair, 0, len(in.Requests))
		for i := range in.Requests {
			pairs = append(pairs, pair{listing: in.Listing, request: &in.Requests[i]})
		}
		return pairs
	case RequestTriggered:
		pairs := make([]pair, 0, len(in.Listings))
		for i := range in.Listings {
			pairs = append(pairs, pair{listing: &in.Listings[i], request: in.Request})
		}
		return pairs
	default:
		log.Printf("matching: unknown trigger context %q", in.Context)
		return nil
	}
}

// minQuantity 取两侧数量的较小值，负数视作 0。
func minQuantity(a, b float64) float64 {
	if a < 0 {
		a = 0
	}
	if b < 0 {
		b = 0
	}
	if a < b {
		return a
	}
	return b
}

func safeID(l *model.ProduceListing) string {
	if l == nil {
		return "?"
	}
	return l.ID
}

func safeReqID(r *model.BuyerRequest) string {
	if r == nil {
		return "?"
	}
	return r.ID
}
