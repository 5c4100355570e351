package orders

import (
	"gorm.io/gorm"

	rediskey "agrimatch/pkg/redis"
)

// Service 聚合订单侧触发处理所需的依赖：
// 文档库、补偿副作用的幂等门闩、缺省币种。
// 依赖在进程启动时显式注入，不走全局单例。
type Service struct {
	db    *gorm.DB
	guard rediskey.OnceGuard

	defaultCurrency string
}

func NewService(db *gorm.DB, guard rediskey.OnceGuard, defaultCurrency string) *Service {
	if defaultCurrency == "" {
		defaultCurrency = "PHP"
	}
	return &Service{db: db, guard: guard, defaultCurrency: defaultCurrency}
}
