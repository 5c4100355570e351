package matching

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"agrimatch/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "matching_test.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.ProduceListing{},
		&model.BuyerRequest{},
		&model.MatchSuggestion{},
	))
	return db
}

func TestHandleNewListing_CreatesSuggestionsForEligibleRequests(t *testing.T) {
	db := openTestDB(t)
	listing := testListing()
	require.NoError(t, db.Create(&listing).Error)

	eligible := testRequest()
	expired := testRequest()
	expired.ID = "request-expired"
	expired.DeliveryDeadline = ptrTime(time.Now().Add(-time.Hour))
	resolved := testRequest()
	resolved.ID = "request-done"
	resolved.Status = model.RequestFulfilled
	require.NoError(t, db.Create(&eligible).Error)
	require.NoError(t, db.Create(&expired).Error)
	require.NoError(t, db.Create(&resolved).Error)

	lc := NewLifecycle(db, NewGenerator(fixedOracle(8)), 0.7, 24*time.Hour, 3)
	require.NoError(t, lc.HandleNewListing(context.Background(), listing.ID))

	var got []model.MatchSuggestion
	require.NoError(t, db.Find(&got).Error)
	// 过期/已完结的需求不参与撮合
	require.Len(t, got, 1)
	s := got[0]
	assert.Equal(t, "request-1", s.BuyerRequestID)
	assert.Equal(t, model.SuggestionForFarmer, s.Status)
	assert.Equal(t, 0.8, s.AiMatchScore)
	assert.NotEmpty(t, s.ID)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), s.SuggestionExpiryTimestamp, 5*time.Second)
}

func TestHandleNewListing_PersistsAllAcceptedWithoutTruncation(t *testing.T) {
	db := openTestDB(t)
	listing := testListing()
	require.NoError(t, db.Create(&listing).Error)

	// 五个合格需求，全部入选；挂单触发路径不做 topN 截断
	for i := 1; i <= 5; i++ {
		r := testRequest()
		r.ID = fmt.Sprintf("request-%d", i)
		require.NoError(t, db.Create(&r).Error)
	}

	lc := NewLifecycle(db, NewGenerator(fixedOracle(9)), 0.7, 24*time.Hour, 3)
	require.NoError(t, lc.HandleNewListing(context.Background(), listing.ID))

	var got []model.MatchSuggestion
	require.NoError(t, db.Find(&got).Error)
	require.Len(t, got, 5, "入选项多于 topN 也全部落库")
	for _, s := range got {
		assert.Equal(t, model.SuggestionForFarmer, s.Status)
	}
}

func TestHandleNewListing_MissingListingIsNoop(t *testing.T) {
	db := openTestDB(t)
	lc := NewLifecycle(db, NewGenerator(fixedOracle(8)), 0.7, 24*time.Hour, 3)
	require.NoError(t, lc.HandleNewListing(context.Background(), "ghost"))

	var count int64
	require.NoError(t, db.Model(&model.MatchSuggestion{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestHandleNewRequest_SkipsWhenAiMatchNotPreferred(t *testing.T) {
	db := openTestDB(t)
	listing := testListing()
	require.NoError(t, db.Create(&listing).Error)
	req := testRequest()
	req.IsAiMatchPreferred = false
	require.NoError(t, db.Create(&req).Error)

	lc := NewLifecycle(db, NewGenerator(fixedOracle(10)), 0.7, 24*time.Hour, 3)
	require.NoError(t, lc.HandleNewRequest(context.Background(), req.ID))

	var count int64
	require.NoError(t, db.Model(&model.MatchSuggestion{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestHandleNewRequest_KeepsTopNByScore(t *testing.T) {
	db := openTestDB(t)
	req := testRequest()
	req.IsAiMatchPreferred = true
	require.NoError(t, db.Create(&req).Error)

	// 五个候选挂单，名字里埋上不同分数
	scores := map[string]float64{
		"Alpha": 7, "Bravo": 9, "Charlie": 8, "Delta": 10, "Echo": 7.5,
	}
	for name := range scores {
		l := testListing()
		l.ID = "listing-" + name
		l.ProduceName = name
		require.NoError(t, db.Create(&l).Error)
	}

	oracle := stubOracle{fn: func(prompt string) Score {
		for name, v := range scores {
			if strings.Contains(prompt, "Name: "+name+"\n") {
				return Score{Value: v, Rationale: "stub"}
			}
		}
		t.Fatalf("prompt matched no fixture listing:\n%s", prompt)
		return Score{}
	}}

	lc := NewLifecycle(db, NewGenerator(oracle), 0.7, 24*time.Hour, 3)
	require.NoError(t, lc.HandleNewRequest(context.Background(), req.ID))

	var got []model.MatchSuggestion
	require.NoError(t, db.Order("ai_match_score DESC").Find(&got).Error)
	require.Len(t, got, 3, "只保留前 topN 条建议")
	assert.Equal(t, "listing-Delta", got[0].ListingID)
	assert.Equal(t, "listing-Bravo", got[1].ListingID)
	assert.Equal(t, "listing-Charlie", got[2].ListingID)
	for _, s := range got {
		assert.Equal(t, model.SuggestionForBuyer, s.Status)
	}
}

func TestHandleNewRequest_TopNTiesKeepInputOrder(t *testing.T) {
	db := openTestDB(t)
	req := testRequest()
	req.IsAiMatchPreferred = true
	require.NoError(t, db.Create(&req).Error)

	// Bravo/Charlie/Delta 平分，稳定排序下按入库顺序截断：Delta 落选
	scores := map[string]float64{
		"Alpha": 10, "Bravo": 8, "Charlie": 8, "Delta": 8,
	}
	for _, name := range []string{"Alpha", "Bravo", "Charlie", "Delta"} {
		l := testListing()
		l.ID = "listing-" + name
		l.ProduceName = name
		require.NoError(t, db.Create(&l).Error)
	}

	oracle := stubOracle{fn: func(prompt string) Score {
		for name, v := range scores {
			if strings.Contains(prompt, "Name: "+name+"\n") {
				return Score{Value: v, Rationale: "stub"}
			}
		}
		t.Fatalf("prompt matched no fixture listing:\n%s", prompt)
		return Score{}
	}}

	lc := NewLifecycle(db, NewGenerator(oracle), 0.7, 24*time.Hour, 3)
	require.NoError(t, lc.HandleNewRequest(context.Background(), req.ID))

	var got []model.MatchSuggestion
	require.NoError(t, db.Find(&got).Error)
	require.Len(t, got, 3)
	kept := make([]string, 0, len(got))
	for _, s := range got {
		kept = append(kept, s.ListingID)
	}
	assert.ElementsMatch(t, []string{"listing-Alpha", "listing-Bravo", "listing-Charlie"}, kept)
	assert.NotContains(t, kept, "listing-Delta")
}

func TestHandleNewRequest_IgnoresExpiredListings(t *testing.T) {
	db := openTestDB(t)
	req := testRequest()
	req.IsAiMatchPreferred = true
	require.NoError(t, db.Create(&req).Error)

	gone := testListing()
	gone.ID = "listing-expired"
	gone.ExpiryTimestamp = ptrTime(time.Now().Add(-time.Hour))
	noExpiry := testListing()
	noExpiry.ID = "listing-no-expiry"
	noExpiry.ExpiryTimestamp = nil
	require.NoError(t, db.Create(&gone).Error)
	require.NoError(t, db.Create(&noExpiry).Error)

	lc := NewLifecycle(db, NewGenerator(fixedOracle(10)), 0.7, 24*time.Hour, 3)
	require.NoError(t, lc.HandleNewRequest(context.Background(), req.ID))

	var count int64
	require.NoError(t, db.Model(&model.MatchSuggestion{}).Count(&count).Error)
	assert.Zero(t, count, "没有可用过期时间的挂单不进入候选")
}
