package orders

import (
	"context"
	"errors"
	"fmt"
	"log"

	"agrimatch/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// errSuggestionNotProcessing：事务内的 CAS 发现建议已被别人推进。
var errSuggestionNotProcessing = errors.New("suggestion no longer in order_processing")

// CreateFromSuggestion 响应撮合建议的写入事件。
// 边沿触发：只有状态从非 order_processing 变为 order_processing 才建单，
// 重复写入（状态不变）不会再触发，这是防止重复订单的正确性机制。
// 建单本身是全有或全无的一个事务；引用文档缺失时建议标记
// error_creating_order，不写订单。
func (s *Service) CreateFromSuggestion(ctx context.Context, suggestionID string, before, after model.SuggestionStatus) error {
	if after != model.SuggestionOrderProcessing || before == model.SuggestionOrderProcessing {
		log.Printf("orders: suggestion %s status '%s' (before '%s'), no order creation", suggestionID, after, before)
		return nil
	}
	log.Printf("orders: suggestion %s entered order_processing, creating order", suggestionID)

	var sug model.MatchSuggestion
	if err := s.db.WithContext(ctx).First(&sug, "id = ?", suggestionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("orders: suggestion %s vanished, skip", suggestionID)
			return nil
		}
		return fmt.Errorf("load suggestion %s: %w", suggestionID, err)
	}
	// 消息重复投递时建议早已离开 order_processing，干净跳过而不是标错。
	if sug.Status != model.SuggestionOrderProcessing {
		log.Printf("orders: suggestion %s already in '%s', skip", suggestionID, sug.Status)
		return nil
	}

	var farmer, buyer model.AppUser
	var listing model.ProduceListing
	missing := ""
	if err := s.db.WithContext(ctx).First(&farmer, "id = ?", sug.FarmerID).Error; err != nil {
		missing = "farmer"
	}
	if missing == "" {
		if err := s.db.WithContext(ctx).First(&buyer, "id = ?", sug.BuyerID).Error; err != nil {
			missing = "buyer"
		}
	}
	if missing == "" {
		if err := s.db.WithContext(ctx).First(&listing, "id = ?", sug.ListingID).Error; err != nil {
			missing = "listing"
		}
	}
	if missing != "" {
		log.Printf("orders: %s not found for suggestion %s, marking error", missing, suggestionID)
		return s.markSuggestionError(ctx, suggestionID, "Farmer, buyer, or listing not found.")
	}

	// 送达地点优先取需求文档，需求缺失时退买家默认地址。
	deliveryLocation := buyer.DefaultDeliveryLocation
	if sug.BuyerRequestID != "" {
		var req model.BuyerRequest
		if err := s.db.WithContext(ctx).First(&req, "id = ?", sug.BuyerRequestID).Error; err == nil {
			deliveryLocation = req.DeliveryLocation
		}
	}

	currency := listing.Currency
	if currency == "" {
		currency = s.defaultCurrency
	}

	order := model.Order{
		ID:                           uuid.New().String(),
		BuyerID:                      sug.BuyerID,
		BuyerName:                    buyer.DisplayName,
		FarmerID:                     sug.FarmerID,
		FarmerName:                   farmer.DisplayName,
		ListingID:                    sug.ListingID,
		BuyerRequestID:               sug.BuyerRequestID,
		ProduceName:                  listing.ProduceName,
		PricePerUnit:                 listing.PricePerUnit,
		OrderedQuantity:              sug.SuggestedOrderQuantity,
		OrderedQuantityUnit:          sug.SuggestedOrderQuantityUnit,
		TotalGoodsPrice:              listing.PricePerUnit * sug.SuggestedOrderQuantity,
		Currency:                     currency,
		PickupLocation:               listing.Location,
		DeliveryLocation:             deliveryLocation,
		Status:                       model.OrderPendingFarmerConfirmation,
		PaymentStatus:                model.PaymentPendingCOD,
		OriginatingMatchSuggestionID: sug.ID,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 建议状态推进带条件，事务内的 CAS 兜底并发的同一边沿。
		res := tx.Model(&model.MatchSuggestion{}).
			Where("id = ? AND status = ?", sug.ID, model.SuggestionOrderProcessing).
			Updates(map[string]any{
				"status":           model.SuggestionOrderCreated,
				"related_order_id": order.ID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errSuggestionNotProcessing
		}

		if err := tx.Create(&order).Error; err != nil {
			return err
		}

		if err := tx.Model(&model.ProduceListing{}).
			Where("id = ?", sug.ListingID).
			Update("quantity_committed", gorm.Expr("quantity_committed + ?", sug.SuggestedOrderQuantity)).Error; err != nil {
			return err
		}

		if sug.BuyerRequestID != "" {
			var req model.BuyerRequest
			if err := tx.First(&req, "id = ?", sug.BuyerRequestID).Error; err != nil {
				// 需求文档缺失不阻断建单，只是没有履约进度可记。
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil
				}
				return err
			}
			req.AppendFulfilledOrderID(order.ID)
			if err := tx.Model(&model.BuyerRequest{}).
				Where("id = ?", sug.BuyerRequestID).
				Updates(map[string]any{
					"total_quantity_fulfilled": gorm.Expr("total_quantity_fulfilled + ?", sug.SuggestedOrderQuantity),
					"fulfilled_by_order_ids":   req.FulfilledByOrderIDs,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errSuggestionNotProcessing) {
			// 并发处理者赢了同一边沿，订单已由对方创建。
			log.Printf("orders: suggestion %s claimed by a concurrent processor, skip", suggestionID)
			return nil
		}
		log.Printf("orders: creating order for suggestion %s failed: %v", suggestionID, err)
		return s.markSuggestionError(ctx, suggestionID, "Internal error during order creation.")
	}

	log.Printf("orders: order %s created from suggestion %s", order.ID, suggestionID)
	return nil
}

// markSuggestionError 把建议置为 error_creating_order 并记录诊断信息。
func (s *Service) markSuggestionError(ctx context.Context, suggestionID, message string) error {
	err := s.db.WithContext(ctx).Model(&model.MatchSuggestion{}).
		Where("id = ?", suggestionID).
		Updates(map[string]any{
			"status":        model.SuggestionErrorCreatingOrder,
			"error_message": message,
		}).Error
	if err != nil {
		log.Printf("orders: failed to mark suggestion %s error state: %v", suggestionID, err)
	}
	return nil
}
