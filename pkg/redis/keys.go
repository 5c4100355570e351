package redis

import "fmt"

// PayoutOnceKey 标记某订单是否已发起过农户打款。
func PayoutOnceKey(orderID string) string {
	return fmt.Sprintf("agrimatch:payout:initiated:%s", orderID)
}

// ReversalOnceKey 标记某订单是否已做过挂单库存回补。
func ReversalOnceKey(orderID string) string {
	return fmt.Sprintf("agrimatch:listing:reverted:%s", orderID)
}

// RateLimitKey 写接口限流键，按操作者维度。
func RateLimitKey(scope, actor string) string {
	return fmt.Sprintf("rate_limit:agrimatch:%s:%s", scope, actor)
}
