package model

import "time"

type Application struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	AppKey    string    `gorm:"column:app_key;type:text;not null;uniqueIndex"`
	Name      string    `gorm:"column:name;type:text;not null"`
	TeamOwner *string   `gorm:"column:team_owner;type:text"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (Application) TableName() string {
	return "applications"
}
