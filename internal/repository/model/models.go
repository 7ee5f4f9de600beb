package model

import "time"

type Generator struct {
	TriggerChannelID string `gorm:"size:32;primaryKey"`
	GuildID          string `gorm:"size:32;index;not null"`
	VoiceCategoryID  string `gorm:"size:32"`
	TextCategoryID   string `gorm:"size:32"`
	DefaultSize      int    `gorm:"not null"`
	DefaultBitrate   int    `gorm:"not null"`
	NameTemplate     string `gorm:"size:255;not null"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type NameFilter struct {
	ID        uint   `gorm:"primaryKey"`
	GuildID   string `gorm:"size:32;index;not null"`
	Position  int    `gorm:"not null"`
	Pattern   string `gorm:"size:255;not null"`
	CreatedAt time.Time
}
