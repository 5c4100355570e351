package orders

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"agrimatch/internal/model"
	rediskey "agrimatch/pkg/redis"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// HandleStatusChange 响应订单文档的写入事件，按状态迁移执行副作用：
// - 状态未变：no-op
// - 进入 completed：发起农户打款并盖打款时间戳（失败只记日志，不回滚状态）
// - 进入取消/失败：未过“不可回头点”时回补挂单的已承诺量
// 打款与回补都经过幂等门闩，消息重复投递也只执行一次。
func (s *Service) HandleStatusChange(ctx context.Context, orderID string, before, after model.OrderStatus) error {
	if before == after {
		return nil
	}
	log.Printf("orders: order %s status '%s' -> '%s'", orderID, before, after)

	var order model.Order
	if err := s.db.WithContext(ctx).First(&order, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("orders: order %s not found, skip", orderID)
			return nil
		}
		return fmt.Errorf("load order %s: %w", orderID, err)
	}

	switch after {
	case model.OrderOutForDelivery:
		log.Printf("orders: placeholder notify buyer %s - order %s out for delivery", order.BuyerID, orderID)
	case model.OrderDeliveredPendingConfirm:
		log.Printf("orders: placeholder notify buyer %s - order %s delivered", order.BuyerID, orderID)
	case model.OrderCompleted:
		log.Printf("orders: placeholder notify buyer %s & farmer %s - order %s completed", order.BuyerID, order.FarmerID, orderID)
		s.initiatePayout(ctx, &order)
	case model.OrderCancelledByBuyer, model.OrderCancelledByFarmer, model.OrderDeliveryFailed:
		log.Printf("orders: placeholder notify for cancelled/failed order %s", orderID)
		s.revertCommittedQuantity(ctx, &order, before)
	}
	return nil
}

// initiatePayout 订单完成后向打款队列追加一条，并在订单上盖打款发起时间。
// 打款插入失败是对账缺口：记日志，订单保持 completed，由带外流程重试。
func (s *Service) initiatePayout(ctx context.Context, order *model.Order) {
	if order.FarmerID == "" || order.TotalGoodsPrice <= 0 {
		log.Printf("orders: cannot initiate payout for order %s (farmer=%q goodsPrice=%g)", order.ID, order.FarmerID, order.TotalGoodsPrice)
		return
	}

	ok, err := s.guard.Acquire(ctx, rediskey.PayoutOnceKey(order.ID))
	if err != nil {
		log.Printf("orders: payout once-guard for order %s failed: %v (reconciliation gap)", order.ID, err)
		return
	}
	if !ok {
		log.Printf("orders: payout for order %s already initiated, skip", order.ID)
		return
	}

	currency := order.Currency
	if currency == "" {
		currency = s.defaultCurrency
	}
	now := time.Now()
	entry := model.PayoutQueueEntry{
		ID:               uuid.New().String(),
		OrderID:          order.ID,
		FarmerID:         order.FarmerID,
		Amount:           order.TotalGoodsPrice,
		Currency:         currency,
		Status:           model.PayoutPendingProcessing,
		RequestTimestamp: now,
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		log.Printf("orders: payout enqueue for order %s failed: %v", order.ID, err)
		// 归还门闩，重复投递还能重试；归还也失败才是真正的对账缺口
		if relErr := s.guard.Release(ctx, rediskey.PayoutOnceKey(order.ID)); relErr != nil {
			log.Printf("orders: releasing payout guard for order %s failed: %v (reconciliation gap)", order.ID, relErr)
		}
		return
	}
	if err := s.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ?", order.ID).
		Update("payout_initiation_timestamp", now).Error; err != nil {
		log.Printf("orders: stamping payout timestamp on order %s failed: %v", order.ID, err)
		return
	}
	log.Printf("orders: payout %s queued for order %s (%g %s)", entry.ID, order.ID, entry.Amount, entry.Currency)
}

// revertCommittedQuantity 取消/失败时的补偿写：把挂单的已承诺量减回订单量。
// 旧状态已过不可回头点（货已在途或已交付）则不回补。
func (s *Service) revertCommittedQuantity(ctx context.Context, order *model.Order, before model.OrderStatus) {
	if model.IsPastPointOfNoReturn(before) {
		log.Printf("orders: order %s cancelled after '%s', goods already moving, no quantity revert", order.ID, before)
		return
	}
	if order.ListingID == "" || order.OrderedQuantity <= 0 {
		return
	}

	ok, err := s.guard.Acquire(ctx, rediskey.ReversalOnceKey(order.ID))
	if err != nil {
		log.Printf("orders: reversal once-guard for order %s failed: %v", order.ID, err)
		return
	}
	if !ok {
		log.Printf("orders: quantity for order %s already reverted, skip", order.ID)
		return
	}

	err = s.db.WithContext(ctx).Model(&model.ProduceListing{}).
		Where("id = ?", order.ListingID).
		Update("quantity_committed", gorm.Expr("quantity_committed - ?", order.OrderedQuantity)).Error
	if err != nil {
		log.Printf("orders: reverting committed quantity for listing %s failed: %v", order.ListingID, err)
		if relErr := s.guard.Release(ctx, rediskey.ReversalOnceKey(order.ID)); relErr != nil {
			log.Printf("orders: releasing reversal guard for order %s failed: %v", order.ID, relErr)
		}
		return
	}
	log.Printf("orders: reverted %g committed quantity on listing %s (order %s)", order.OrderedQuantity, order.ListingID, order.ID)
}
