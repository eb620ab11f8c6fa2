package model

import "time"

type Requirement struct {
	ID          uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	JiraKey     string    `gorm:"column:jira_key;type:text;not null;uniqueIndex"`
	Summary     string    `gorm:"column:summary;type:text;not null"`
	Description string    `gorm:"column:description;type:text"`
	Priority    string    `gorm:"column:priority;type:text;not null"`
	Status      string    `gorm:"column:status;type:text;not null"`
	AppID       uint64    `gorm:"column:app_id;not null;index"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null"`
}

func (Requirement) TableName() string {
	return "requirements"
}
