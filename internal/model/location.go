package model

import "strings"

// Location 简化的地点信息：不做真实地理计算，只保留展示/匹配用字符串。
type Location struct {
	City    string `gorm:"size:64" json:"city"`
	Region  string `gorm:"size:64" json:"region"`
	Address string `gorm:"size:255" json:"address"`
}

// DisplayString 渲染成 "City, Region"，缺失字段用 Unknown 占位。
func (l Location) DisplayString() string {
	city := strings.TrimSpace(l.City)
	if city == "" {
		city = "Unknown"
	}
	region := strings.TrimSpace(l.Region)
	if region == "" {
		region = "Unknown"
	}
	return city + ", " + region
}
