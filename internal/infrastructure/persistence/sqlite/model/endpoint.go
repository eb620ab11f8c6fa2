package model

import "time"

type Endpoint struct {
	ID          uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	AppID       uint64    `gorm:"column:app_id;not null;uniqueIndex:idx_endpoints_app_method_path"`
	Method      string    `gorm:"column:method;type:text;not null;uniqueIndex:idx_endpoints_app_method_path"`
	Path        string    `gorm:"column:path;type:text;not null;uniqueIndex:idx_endpoints_app_method_path"`
	Description string    `gorm:"column:description;type:text"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
}

func (Endpoint) TableName() string {
	return "endpoints"
}
