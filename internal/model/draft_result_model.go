package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type DraftResult struct {
	Id             uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	DraftSessionId uuid.UUID      `gorm:"type:uuid;not null;index"`
	Provider       string         `gorm:"type:varchar(50);not null"`
	Slot           string         `gorm:"type:varchar(50);not null"`
	Success        bool           `gorm:"not null;default:false"`
	Document       datatypes.JSON `gorm:"type:jsonb"`
	RawText        string         `gorm:"type:text"`
	ChangeNotes    string         `gorm:"type:text"`
	CreatedAt      time.Time      `gorm:"autoCreateTime"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime"`
	DeletedAt      gorm.DeletedAt `gorm:"index"`
}

func (DraftResult) TableName() string {
	return "draft_results"
}
