package orders

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"agrimatch/internal/model"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakeGuard 内存版幂等门闩：同一 key 只放行一次。
type fakeGuard struct {
	seen map[string]bool
	err  error
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{seen: make(map[string]bool)}
}

func (g *fakeGuard) Acquire(_ context.Context, key string) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	if g.seen[key] {
		return false, nil
	}
	g.seen[key] = true
	return true, nil
}

func (g *fakeGuard) Release(_ context.Context, key string) error {
	if g.err != nil {
		return g.err
	}
	delete(g.seen, key)
	return nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "orders_test.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.AppUser{},
		&model.ProduceListing{},
		&model.BuyerRequest{},
		&model.MatchSuggestion{},
		&model.Order{},
		&model.PayoutQueueEntry{},
	))
	return db
}

func ptrTime(t time.Time) *time.Time { return &t }

// seedMatchFixtures 铺好一条可建单的完整链路：农户、买家、挂单、需求、建议。
func seedMatchFixtures(t *testing.T, db *gorm.DB, suggestionStatus model.SuggestionStatus) model.MatchSuggestion {
	t.Helper()
	farmer := model.AppUser{ID: "farmer-1", DisplayName: "Mang Tomas", Role: "farmer"}
	buyer := model.AppUser{
		ID:          "buyer-1",
		DisplayName: "Aling Nena",
		Role:        "buyer",
		DefaultDeliveryLocation: model.Location{
			City: "Makati", Region: "NCR",
		},
	}
	listing := model.ProduceListing{
		ID:              "listing-1",
		FarmerID:        farmer.ID,
		ProduceName:     "Tomatoes",
		Quantity:        50,
		QuantityUnit:    "kg",
		PricePerUnit:    45,
		Currency:        "PHP",
		Location:        model.Location{City: "Tarlac City", Region: "Central Luzon"},
		ExpiryTimestamp: ptrTime(time.Now().Add(5 * 24 * time.Hour)),
		Status:          model.ListingAvailable,
	}
	request := model.BuyerRequest{
		ID:                "request-1",
		BuyerID:           buyer.ID,
		ProduceNeededName: "Tomatoes",
		DesiredQuantity:   30,
		QuantityUnit:      "kg",
		DeliveryLocation:  model.Location{City: "Quezon City", Region: "NCR"},
		DeliveryDeadline:  ptrTime(time.Now().Add(3 * 24 * time.Hour)),
		Status:            model.RequestPendingMatch,
	}
	sug := model.MatchSuggestion{
		ID:                         "suggestion-1",
		ListingID:                  listing.ID,
		FarmerID:                   farmer.ID,
		BuyerRequestID:             request.ID,
		BuyerID:                    buyer.ID,
		SuggestedOrderQuantity:     30,
		SuggestedOrderQuantityUnit: "kg",
		AiMatchScore:               0.8,
		AiMatchRationale:           "fixture",
		Status:                     suggestionStatus,
		SuggestionTimestamp:        time.Now(),
		SuggestionExpiryTimestamp:  time.Now().Add(24 * time.Hour),
	}
	require.NoError(t, db.Create(&farmer).Error)
	require.NoError(t, db.Create(&buyer).Error)
	require.NoError(t, db.Create(&listing).Error)
	require.NoError(t, db.Create(&request).Error)
	require.NoError(t, db.Create(&sug).Error)
	return sug
}
