package matching

import (
	"fmt"
	"math"
	"strings"
	"time"

	"agrimatch/internal/model"
)

// daysUntilSentinel：挂单缺少可用的过期时间时，用一个大数占位，
// 让模型不把“新鲜度未知”当成临期。
const daysUntilSentinel = 999

// daysUntil 计算距过期的天数：ceil((expiry-now)/24h)，最低 0。
func daysUntil(expiry *time.Time, now time.Time) int {
	if expiry == nil || expiry.IsZero() {
		return daysUntilSentinel
	}
	diff := expiry.Sub(now)
	days := int(math.Ceil(diff.Hours() / 24))
	if days < 0 {
		return 0
	}
	return days
}

// orDefault 空字符串换成占位文案。
func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

// listingPriceLine 渲染挂单报价行。
func listingPriceLine(l *model.ProduceListing) string {
	if l.PricePerUnit <= 0 {
		return "Not specified"
	}
	return fmt.Sprintf("%g per %s", l.PricePerUnit, orDefault(l.QuantityUnit, "unit"))
}

// requestPriceLine 渲染买家价格区间行：有区间渲染区间，只有下限标 unspecified。
func requestPriceLine(r *model.BuyerRequest) string {
	unit := orDefault(r.QuantityUnit, "unit")
	if r.PriceRangeMinPerUnit != nil {
		if r.PriceRangeMaxPerUnit != nil {
			return fmt.Sprintf("%g - %g per %s", *r.PriceRangeMinPerUnit, *r.PriceRangeMaxPerUnit, unit)
		}
		return fmt.Sprintf("%g - unspecified per %s", *r.PriceRangeMinPerUnit, unit)
	}
	return "Not specified"
}

// renderMatchPrompt 把一对 挂单×需求 渲染成结构化撮合 prompt。
// 字段缺失全部降级为占位值，不让单个脏文档毁掉整个批次。
func renderMatchPrompt(l *model.ProduceListing, r *model.BuyerRequest, now time.Time) string {
	expiryDateStr := "Unknown"
	if l.ExpiryTimestamp != nil && !l.ExpiryTimestamp.IsZero() {
		expiryDateStr = l.ExpiryTimestamp.UTC().Format("2006-01-02")
	}

	var b strings.Builder
	b.WriteString("You are an AI assistant helping to match fresh produce listings from farmers with requests from buyers. Analyze the following Produce Listing and Buyer Request in detail:\n")
	b.WriteString("Produce Listing Details:\n")
	fmt.Fprintf(&b, "- Name: %s\n", orDefault(l.ProduceName, "Unknown produce"))
	fmt.Fprintf(&b, "- Category: %s\n", orDefault(l.Category, "Uncategorized"))
	fmt.Fprintf(&b, "- Available Quantity: %g %s\n", l.Quantity, orDefault(l.QuantityUnit, "units"))
	fmt.Fprintf(&b, "- Price: %s\n", listingPriceLine(l))
	fmt.Fprintf(&b, "- Expiry Date: %s\n", expiryDateStr)
	fmt.Fprintf(&b, "- Days Until Expiry: %d\n", daysUntil(l.ExpiryTimestamp, now))
	fmt.Fprintf(&b, "- Current Date: %s\n", now.UTC().Format("2006-01-02"))
	fmt.Fprintf(&b, "- Farmer's Notes: %q\n", orDefault(l.Description, "No notes provided"))
	fmt.Fprintf(&b, "- Pickup Location: %s\n", l.Location.DisplayString())
	b.WriteString("Buyer Request Details:\n")
	fmt.Fprintf(&b, "- Needed Produce Name: %s\n", orDefault(r.ProduceNeededName, "Unknown needed produce"))
	fmt.Fprintf(&b, "- Needed Category: %s\n", orDefault(r.Category, "Uncategorized"))
	fmt.Fprintf(&b, "- Desired Quantity: %g %s\n", r.DesiredQuantity, orDefault(r.QuantityUnit, "units"))
	fmt.Fprintf(&b, "- Desired Price Range: %s\n", requestPriceLine(r))
	fmt.Fprintf(&b, "- Buyer's Notes: %q\n", orDefault(r.Description, "No notes provided"))
	fmt.Fprintf(&b, "- Delivery Location: %s\n", r.DeliveryLocation.DisplayString())
	b.WriteString("Considering all these factors (name/category similarity, quantity alignment, freshness based on days until expiry, price compatibility, and any specific notes from farmer or buyer), please:\n")
	b.WriteString("1. Provide a suitability score for this match on a scale of 1 to 10 (where 10 is a perfect match).\n")
	b.WriteString("2. Provide a concise rationale for your score, highlighting the key factors.\n")
	b.WriteString(`Output your response as a JSON object with "score" and "rationale" fields only.`)
	return b.String()
}
