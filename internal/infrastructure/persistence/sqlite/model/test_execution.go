package model

import "time"

// TestExecution rows are append-only and immutable once inserted.
// Duplicates are kept out by the repository's (test_id, run_at) guard, not
// by a unique index, so rows without a run_at remain representable.
type TestExecution struct {
	ID           uint64     `gorm:"column:id;primaryKey;autoIncrement"`
	TestID       uint64     `gorm:"column:test_id;not null;index:idx_executions_test_run"`
	Result       string     `gorm:"column:result;type:text;not null"`
	DurationMS   *int64     `gorm:"column:duration_ms"`
	ErrorMessage *string    `gorm:"column:error_message;type:text"`
	RunAt        *time.Time `gorm:"column:run_at;index:idx_executions_test_run"`
	BuildID      *string    `gorm:"column:build_id;type:text"`
	CreatedAt    time.Time  `gorm:"column:created_at;not null"`
}

func (TestExecution) TableName() string {
	return "test_executions"
}
