package matching

import (
	"context"
	"strings"
	"testing"
	"time"

	"agrimatch/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubOracle 按 prompt 内容给分的确定性 Oracle。
type stubOracle struct {
	fn func(prompt string) Score
}

func (s stubOracle) ScoreMatch(_ context.Context, prompt string) Score {
	return s.fn(prompt)
}

func fixedOracle(value float64) stubOracle {
	return stubOracle{fn: func(string) Score {
		return Score{Value: value, Rationale: "stub"}
	}}
}

func ptrTime(t time.Time) *time.Time { return &t }

func testListing() model.ProduceListing {
	return model.ProduceListing{
		ID:              "listing-1",
		FarmerID:        "farmer-1",
		ProduceName:     "Tomatoes",
		Category:        "Vegetables",
		Quantity:        50,
		QuantityUnit:    "kg",
		PricePerUnit:    45,
		Location:        model.Location{City: "Tarlac City", Region: "Central Luzon"},
		ExpiryTimestamp: ptrTime(time.Now().Add(5 * 24 * time.Hour)),
		Status:          model.ListingAvailable,
	}
}

func testRequest() model.BuyerRequest {
	return model.BuyerRequest{
		ID:                "request-1",
		BuyerID:           "buyer-1",
		ProduceNeededName: "Tomatoes",
		Category:          "Vegetables",
		DesiredQuantity:   30,
		QuantityUnit:      "kg",
		DeliveryLocation:  model.Location{City: "Quezon City", Region: "NCR"},
		DeliveryDeadline:  ptrTime(time.Now().Add(3 * 24 * time.Hour)),
		Status:            model.RequestPendingMatch,
	}
}

func TestGenerate_AcceptsAboveThreshold(t *testing.T) {
	g := NewGenerator(fixedOracle(8))
	listing := testListing()
	req := testRequest()

	out := g.Generate(context.Background(), Input{
		Context:           ListingTriggered,
		Listing:           &listing,
		Requests:          []model.BuyerRequest{req},
		MinScoreThreshold: 0.7,
	})
	require.Len(t, out, 1)
	assert.Equal(t, "listing-1", out[0].ListingID)
	assert.Equal(t, "farmer-1", out[0].FarmerID)
	assert.Equal(t, "request-1", out[0].BuyerRequestID)
	assert.Equal(t, "buyer-1", out[0].BuyerID)
	assert.Equal(t, 0.8, out[0].AiMatchScore)
	// 建议量 = min(50, 30)
	assert.Equal(t, 30.0, out[0].SuggestedOrderQuantity)
	assert.Equal(t, "kg", out[0].SuggestedOrderQuantityUnit)
}

func TestGenerate_RejectsBelowThreshold(t *testing.T) {
	g := NewGenerator(fixedOracle(6))
	listing := testListing()

	out := g.Generate(context.Background(), Input{
		Context:           ListingTriggered,
		Listing:           &listing,
		Requests:          []model.BuyerRequest{testRequest()},
		MinScoreThreshold: 0.7,
	})
	assert.Empty(t, out)
}

func TestGenerate_SkipsPairWithMissingName(t *testing.T) {
	g := NewGenerator(fixedOracle(10))
	listing := testListing()
	noName := testRequest()
	noName.ID = "request-noname"
	noName.ProduceNeededName = ""
	ok := testRequest()
	ok.ID = "request-ok"

	out := g.Generate(context.Background(), Input{
		Context:           ListingTriggered,
		Listing:           &listing,
		Requests:          []model.BuyerRequest{noName, ok},
		MinScoreThreshold: 0.7,
	})
	// 缺名的那对被跳过，其余照常
	require.Len(t, out, 1)
	assert.Equal(t, "request-ok", out[0].BuyerRequestID)
}

func TestGenerate_DropsHighScorePairWithoutIdentifiers(t *testing.T) {
	g := NewGenerator(fixedOracle(10))
	listing := testListing()
	listing.FarmerID = ""

	out := g.Generate(context.Background(), Input{
		Context:           ListingTriggered,
		Listing:           &listing,
		Requests:          []model.BuyerRequest{testRequest()},
		MinScoreThreshold: 0.7,
	})
	assert.Empty(t, out, "满分也不能弥补缺失的 farmerId")
}

func TestGenerate_UnitFallbackChain(t *testing.T) {
	g := NewGenerator(fixedOracle(9))
	listing := testListing()
	listing.QuantityUnit = ""
	req := testRequest()

	out := g.Generate(context.Background(), Input{
		Context:           ListingTriggered,
		Listing:           &listing,
		Requests:          []model.BuyerRequest{req},
		MinScoreThreshold: 0.7,
	})
	require.Len(t, out, 1)
	assert.Equal(t, "kg", out[0].SuggestedOrderQuantityUnit, "挂单单位缺失时退需求单位")

	req.QuantityUnit = ""
	out = g.Generate(context.Background(), Input{
		Context:           ListingTriggered,
		Listing:           &listing,
		Requests:          []model.BuyerRequest{req},
		MinScoreThreshold: 0.7,
	})
	require.Len(t, out, 1)
	assert.Equal(t, "unit", out[0].SuggestedOrderQuantityUnit, "两侧都缺时用通用单位")
}

func TestGenerate_RequestTriggeredPairsEveryListing(t *testing.T) {
	var prompts []string
	g := NewGenerator(stubOracle{fn: func(p string) Score {
		prompts = append(prompts, p)
		return Score{Value: 9, Rationale: "stub"}
	}})

	req := testRequest()
	l1 := testListing()
	l2 := testListing()
	l2.ID = "listing-2"
	l2.ProduceName = "Cherry Tomatoes"

	out := g.Generate(context.Background(), Input{
		Context:           RequestTriggered,
		Request:           &req,
		Listings:          []model.ProduceListing{l1, l2},
		MinScoreThreshold: 0.7,
	})
	// 触发项×候选：N 个候选恰好 N 对
	require.Len(t, prompts, 2)
	require.Len(t, out, 2)
	assert.Equal(t, "listing-1", out[0].ListingID)
	assert.Equal(t, "listing-2", out[1].ListingID)
}

func TestRenderMatchPrompt_Content(t *testing.T) {
	listing := testListing()
	req := testRequest()
	now := time.Now()
	prompt := renderMatchPrompt(&listing, &req, now)

	assert.Contains(t, prompt, "Name: Tomatoes")
	assert.Contains(t, prompt, "Available Quantity: 50 kg")
	assert.Contains(t, prompt, "Desired Quantity: 30 kg")
	assert.Contains(t, prompt, "45 per kg")
	assert.Contains(t, prompt, "Pickup Location: Tarlac City, Central Luzon")
	assert.Contains(t, prompt, "Days Until Expiry: 5")
	assert.Contains(t, prompt, `"score" and "rationale"`)
}

func TestRenderMatchPrompt_Defaults(t *testing.T) {
	listing := testListing()
	listing.ExpiryTimestamp = nil
	listing.Location = model.Location{}
	listing.Description = ""
	req := testRequest()
	req.PriceRangeMinPerUnit = nil

	prompt := renderMatchPrompt(&listing, &req, time.Now())
	assert.Contains(t, prompt, "Days Until Expiry: 999", "无过期时间用大数占位")
	assert.Contains(t, prompt, "Pickup Location: Unknown, Unknown")
	assert.Contains(t, prompt, "Expiry Date: Unknown")
	assert.Contains(t, prompt, `Farmer's Notes: "No notes provided"`)
	assert.Contains(t, prompt, "Desired Price Range: Not specified")
}

func TestDaysUntil(t *testing.T) {
	now := time.Now()
	assert.Equal(t, 999, daysUntil(nil, now))
	past := now.Add(-48 * time.Hour)
	assert.Equal(t, 0, daysUntil(&past, now), "已过期保底为 0")
	soon := now.Add(12 * time.Hour)
	assert.Equal(t, 1, daysUntil(&soon, now), "不足一天按 1 天算（向上取整）")
	later := now.Add(71 * time.Hour)
	assert.Equal(t, 3, daysUntil(&later, now))
}

func TestMinQuantity(t *testing.T) {
	assert.Equal(t, 30.0, minQuantity(50, 30))
	assert.Equal(t, 0.0, minQuantity(-5, 30), "缺失/负数按 0 处理")
	assert.Equal(t, 0.0, minQuantity(50, 0))
}

func TestGenerate_LowConfidenceFallbackNeverPasses(t *testing.T) {
	// Oracle 全挂时的兜底分必须低于任何现实阈值
	g := NewGenerator(fixedOracle(FallbackScore))
	listing := testListing()
	out := g.Generate(context.Background(), Input{
		Context:           ListingTriggered,
		Listing:           &listing,
		Requests:          []model.BuyerRequest{testRequest()},
		MinScoreThreshold: 0.7,
	})
	assert.Empty(t, out)
}

func TestGenerate_PromptEmbedsBothSides(t *testing.T) {
	var captured string
	g := NewGenerator(stubOracle{fn: func(p string) Score {
		captured = p
		return Score{Value: 9, Rationale: "stub"}
	}})
	listing := testListing()
	req := testRequest()
	req.Description = "need for weekend menu"

	g.Generate(context.Background(), Input{
		Context:           ListingTriggered,
		Listing:           &listing,
		Requests:          []model.BuyerRequest{req},
		MinScoreThreshold: 0.7,
	})
	require.True(t, strings.Contains(captured, "Produce Listing Details"))
	require.True(t, strings.Contains(captured, "Buyer Request Details"))
	assert.Contains(t, captured, "need for weekend menu")
}
