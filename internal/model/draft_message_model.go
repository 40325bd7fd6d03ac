package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DraftMessage struct {
	Id             uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	DraftSessionId uuid.UUID      `gorm:"type:uuid;not null;index"`
	Role           string         `gorm:"type:varchar(50);not null"`
	Provider       string         `gorm:"type:varchar(50)"`
	Content        string         `gorm:"type:text;not null"`
	CreatedAt      time.Time      `gorm:"autoCreateTime"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime"`
	DeletedAt      gorm.DeletedAt `gorm:"index"`
}

func (DraftMessage) TableName() string {
	return "draft_messages"
}
