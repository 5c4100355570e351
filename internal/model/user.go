package model

import "time"

// AppUser 农户/买家档案。建单时做引用完整性校验并取展示名。
type AppUser struct {
	ID        string    `gorm:"size:36;primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	DisplayName string `gorm:"size:128;not null" json:"display_name"`
	// Role: farmer / buyer（仅展示用途，不做权限控制）
	Role string `gorm:"size:16" json:"role"`

	DefaultDeliveryLocation Location `gorm:"embedded;embeddedPrefix:delivery_" json:"default_delivery_location"`
}

func (AppUser) TableName() string { return "app_users" }
