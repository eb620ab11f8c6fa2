package model

import "time"

// Test carries both the synced attributes and the derived stats columns.
// last_result, flaky_count, avg_duration_ms and last_run_at are recomputed
// from test_executions and never written by the sync upsert path.
type Test struct {
	ID            uint64     `gorm:"column:id;primaryKey;autoIncrement"`
	TestKey       string     `gorm:"column:test_key;type:text;not null;uniqueIndex"`
	Name          string     `gorm:"column:name;type:text;not null"`
	FilePath      string     `gorm:"column:file_path;type:text"`
	TestType      string     `gorm:"column:test_type;type:text;not null"`
	Status        string     `gorm:"column:status;type:text;not null"`
	AppID         uint64     `gorm:"column:app_id;not null;index"`
	LastResult    *string    `gorm:"column:last_result;type:text"`
	FlakyCount    int64      `gorm:"column:flaky_count;not null;default:0"`
	AvgDurationMS *int64     `gorm:"column:avg_duration_ms"`
	LastRunAt     *time.Time `gorm:"column:last_run_at"`
	CreatedAt     time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;not null"`
}

func (Test) TableName() string {
	return "tests"
}
