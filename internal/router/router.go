package router

import (
	"errors"
	"net/http"
	"time"

	"agrimatch/internal/config"
	"agrimatch/internal/event"
	"agrimatch/internal/middleware"
	"agrimatch/internal/model"
	"agrimatch/internal/sweeper"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Setup 注册全部 HTTP 路由。
// 写接口在落库后把变更事件写入 outbox（带写入时刻的 before/after 状态快照），
// 触发处理全部走事件总线异步执行。
func Setup(r *gin.Engine, db *gorm.DB, rdb *rd.Client, emitter *event.Emitter, sweep *sweeper.Sweeper, cfg config.AppConfig) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})

	// Users
	r.POST("/api/users", createUser(db))
	r.GET("/api/users/:id", getUser(db))

	// Listings / Requests（创建即触发撮合）
	rateLimit := func(scope string) gin.HandlerFunc {
		return middleware.RedisRateLimit(rdb, scope, cfg.WriteRateLimit, cfg.WriteRateWindow)
	}
	r.POST("/api/listings", rateLimit("listing"), createListing(db, emitter))
	r.GET("/api/listings", listListings(db))
	r.POST("/api/requests", rateLimit("request"), createRequest(db, emitter))
	r.GET("/api/requests", listRequests(db))

	// Suggestions（接受/拒绝/推进建单）
	r.GET("/api/suggestions", listSuggestions(db))
	r.POST("/api/suggestions/:id/status", updateSuggestionStatus(db, emitter))

	// Orders
	r.GET("/api/orders/:id", getOrder(db))
	r.POST("/api/orders/:id/status", updateOrderStatus(db, emitter))

	// 配送费 stub（可调用接口，需登录态 + 必要参数）
	r.POST("/api/delivery_fee/quote", quoteDeliveryFee(cfg))

	// 管理端：手工触发一轮过期清扫
	r.POST("/api/admin/sweep", runSweep(sweep, cfg.AdminToken))
}

// createUser 创建农户/买家档案。
func createUser(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			DisplayName string         `json:"display_name" binding:"required"`
			Role        string         `json:"role" binding:"omitempty,oneof=farmer buyer"`
			Delivery    model.Location `json:"default_delivery_location"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		u := &model.AppUser{
			ID:                      uuid.New().String(),
			DisplayName:             req.DisplayName,
			Role:                    req.Role,
			DefaultDeliveryLocation: req.Delivery,
		}
		if err := db.Create(u).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": u})
	}
}

func getUser(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var u model.AppUser
		if err := db.First(&u, "id = ?", c.Param("id")).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "用户不存在"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": u})
	}
}

// createListing 农户挂单。落库后发 created 事件，撮合由消费端异步执行。
func createListing(db *gorm.DB, emitter *event.Emitter) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			FarmerID     string         `json:"farmer_id" binding:"required"`
			FarmerName   string         `json:"farmer_name"`
			ProduceName  string         `json:"produce_name" binding:"required"`
			Category     string         `json:"category"`
			Quantity     float64        `json:"quantity" binding:"required,gt=0"`
			QuantityUnit string         `json:"quantity_unit" binding:"required"`
			PricePerUnit float64        `json:"price_per_unit" binding:"required,gt=0"`
			Currency     string         `json:"currency"`
			Description  string         `json:"description"`
			Location     model.Location `json:"location"`
			ExpiryTime   string         `json:"expiry_time" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		expiry, err := time.Parse(time.RFC3339, req.ExpiryTime)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "expiry_time 格式错误，请用 RFC3339"})
			return
		}
		now := time.Now()
		if !expiry.After(now) {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "expiry_time 必须在未来"})
			return
		}

		l := &model.ProduceListing{
			ID:               uuid.New().String(),
			FarmerID:         req.FarmerID,
			FarmerName:       req.FarmerName,
			ProduceName:      req.ProduceName,
			Category:         req.Category,
			Quantity:         req.Quantity,
			QuantityUnit:     req.QuantityUnit,
			PricePerUnit:     req.PricePerUnit,
			Currency:         req.Currency,
			Description:      req.Description,
			Location:         req.Location,
			ListingTimestamp: now,
			ExpiryTimestamp:  &expiry,
			Status:           model.ListingAvailable,
		}
		if err := db.Create(l).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		if err := emitter.Emit(c.Request.Context(), event.CollectionListings, l.ID,
			event.ChangeCreated, "", string(l.Status)); err != nil {
			// 文档已落库但事件入流失败：撮合不会触发，记入响应供排查。
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "enqueue event failed: " + err.Error(), "data": l})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": l})
	}
}

func listListings(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := db.Order("created_at DESC")
		if fid := c.Query("farmer_id"); fid != "" {
			q = q.Where("farmer_id = ?", fid)
		}
		if st := c.Query("status"); st != "" {
			q = q.Where("status = ?", st)
		}
		var list []model.ProduceListing
		if err := q.Find(&list).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": list})
	}
}

// createRequest 买家发布采购需求。
func createRequest(db *gorm.DB, emitter *event.Emitter) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			BuyerID            string         `json:"buyer_id" binding:"required"`
			BuyerName          string         `json:"buyer_name"`
			ProduceNeededName  string         `json:"produce_needed_name" binding:"required"`
			Category           string         `json:"category"`
			DesiredQuantity    float64        `json:"desired_quantity" binding:"required,gt=0"`
			QuantityUnit       string         `json:"quantity_unit" binding:"required"`
			PriceRangeMin      *float64       `json:"price_range_min_per_unit"`
			PriceRangeMax      *float64       `json:"price_range_max_per_unit"`
			Description        string         `json:"description"`
			DeliveryLocation   model.Location `json:"delivery_location"`
			DeliveryDeadline   string         `json:"delivery_deadline" binding:"required"`
			IsAiMatchPreferred *bool          `json:"is_ai_match_preferred"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		deadline, err := time.Parse(time.RFC3339, req.DeliveryDeadline)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "delivery_deadline 格式错误，请用 RFC3339"})
			return
		}
		now := time.Now()
		if !deadline.After(now) {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "delivery_deadline 必须在未来"})
			return
		}

		// 缺省偏好自动撮合
		aiPreferred := true
		if req.IsAiMatchPreferred != nil {
			aiPreferred = *req.IsAiMatchPreferred
		}

		r := &model.BuyerRequest{
			ID:                   uuid.New().String(),
			BuyerID:              req.BuyerID,
			BuyerName:            req.BuyerName,
			ProduceNeededName:    req.ProduceNeededName,
			Category:             req.Category,
			DesiredQuantity:      req.DesiredQuantity,
			QuantityUnit:         req.QuantityUnit,
			PriceRangeMinPerUnit: req.PriceRangeMin,
			PriceRangeMaxPerUnit: req.PriceRangeMax,
			Description:          req.Description,
			DeliveryLocation:     req.DeliveryLocation,
			RequestTimestamp:     now,
			DeliveryDeadline:     &deadline,
			Status:               model.RequestPendingMatch,
			IsAiMatchPreferred:   aiPreferred,
		}
		if err := db.Create(r).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		if err := emitter.Emit(c.Request.Context(), event.CollectionRequests, r.ID,
			event.ChangeCreated, "", string(r.Status)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "enqueue event failed: " + err.Error(), "data": r})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": r})
	}
}

func listRequests(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := db.Order("created_at DESC")
		if bid := c.Query("buyer_id"); bid != "" {
			q = q.Where("buyer_id = ?", bid)
		}
		if st := c.Query("status"); st != "" {
			q = q.Where("status = ?", st)
		}
		var list []model.BuyerRequest
		if err := q.Find(&list).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": list})
	}
}

func listSuggestions(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := db.Order("ai_match_score DESC")
		if fid := c.Query("farmer_id"); fid != "" {
			q = q.Where("farmer_id = ?", fid)
		}
		if bid := c.Query("buyer_id"); bid != "" {
			q = q.Where("buyer_id = ?", bid)
		}
		if st := c.Query("status"); st != "" {
			q = q.Where("status = ?", st)
		}
		var list []model.MatchSuggestion
		if err := q.Find(&list).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": list})
	}
}

// suggestionActionStatuses 是允许经 API 写入的建议状态（建单/过期由系统推进）。
var suggestionActionStatuses = map[model.SuggestionStatus]bool{
	model.SuggestionAcceptedByFarmer: true,
	model.SuggestionAcceptedByBuyer:  true,
	model.SuggestionDeclinedByFarmer: true,
	model.SuggestionDeclinedByBuyer:  true,
	model.SuggestionOrderProcessing:  true,
}

// updateSuggestionStatus 人工接受/拒绝建议，或推进到 order_processing 触发建单。
// 事件携带写入时刻捕获的 before/after 快照，消费端按边沿判定是否建单。
func updateSuggestionStatus(db *gorm.DB, emitter *event.Emitter) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Status model.SuggestionStatus `json:"status" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		if !suggestionActionStatuses[req.Status] {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "不允许的建议状态"})
			return
		}

		id := c.Param("id")
		var sug model.MatchSuggestion
		if err := db.First(&sug, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "建议不存在"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}

		// 终态不可再改
		switch sug.Status {
		case model.SuggestionOrderCreated, model.SuggestionErrorCreatingOrder, model.SuggestionExpired:
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "建议已是终态：" + string(sug.Status)})
			return
		}

		before := sug.Status
		if err := db.Model(&model.MatchSuggestion{}).
			Where("id = ?", id).
			Update("status", req.Status).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		if err := emitter.Emit(c.Request.Context(), event.CollectionSuggestions, id,
			event.ChangeUpdated, string(before), string(req.Status)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "enqueue event failed: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{
			"id":     id,
			"status": req.Status,
		}})
	}
}

func getOrder(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var o model.Order
		if err := db.First(&o, "id = ?", c.Param("id")).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "订单不存在"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": o})
	}
}

// orderStatuses 订单状态全集（API 写入校验用）。
var orderStatuses = map[model.OrderStatus]bool{
	model.OrderPendingFarmerConfirmation: true,
	model.OrderFarmerConfirmed:           true,
	model.OrderPickedUpEnroute:           true,
	model.OrderOutForDelivery:            true,
	model.OrderDeliveredPendingConfirm:   true,
	model.OrderCompleted:                 true,
	model.OrderCancelledByBuyer:          true,
	model.OrderCancelledByFarmer:         true,
	model.OrderDeliveryFailed:            true,
}

// updateOrderStatus 推进订单状态。副作用（打款、库存回补）由消费端执行。
func updateOrderStatus(db *gorm.DB, emitter *event.Emitter) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Status model.OrderStatus `json:"status" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		if !orderStatuses[req.Status] {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "未知的订单状态"})
			return
		}

		id := c.Param("id")
		var o model.Order
		if err := db.First(&o, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "订单不存在"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}

		before := o.Status
		if err := db.Model(&model.Order{}).
			Where("id = ?", id).
			Update("status", req.Status).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		if err := emitter.Emit(c.Request.Context(), event.CollectionOrders, id,
			event.ChangeUpdated, string(before), string(req.Status)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "enqueue event failed: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{
			"id":     id,
			"status": req.Status,
		}})
	}
}

// quoteDeliveryFee 配送费 stub：固定基础费 + 按量费率，不做真实地理距离。
// 未带登录态（X-User-Id）返回 401；缺参数返回 400。
func quoteDeliveryFee(cfg config.AppConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-User-Id") == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"code": 401, "msg": "需要登录态"})
			return
		}
		var req struct {
			PickupCity   string  `json:"pickup_city" binding:"required"`
			DeliveryCity string  `json:"delivery_city" binding:"required"`
			Quantity     float64 `json:"quantity" binding:"required,gt=0"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		fee := cfg.DeliveryFeeBase + cfg.DeliveryFeePerKg*req.Quantity
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{
			"fee":      fee,
			"currency": cfg.DefaultCurrency,
		}})
	}
}

// runSweep 管理端手工触发一轮过期清扫（与 cron 互不影响）。
func runSweep(sweep *sweeper.Sweeper, adminToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-Admin-Token") != adminToken {
			c.JSON(http.StatusUnauthorized, gin.H{"code": 401, "msg": "admin token 无效"})
			return
		}
		sweep.SweepAll(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "清扫完成"})
	}
}
