package gormstore

import (
	"time"

	"gorm.io/datatypes"
)

// userRow is the relational form of a user memory document.
type userRow struct {
	UserID      string `gorm:"primaryKey;size:255"`
	NextSeq     int64  `gorm:"not null;default:0"`
	CreatedAt   time.Time
	LastUpdated time.Time
}

func (userRow) TableName() string { return "user_memories" }

// memoryRow is one memory; Seq orders a user's memories by insertion.
type memoryRow struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	UserID      string `gorm:"not null;size:255;uniqueIndex:idx_memory_records_user_seq,priority:1"`
	Seq         int64  `gorm:"not null;uniqueIndex:idx_memory_records_user_seq,priority:2"`
	Date        string `gorm:"not null"`
	Description string `gorm:"not null"`
	Tags        datatypes.JSONSlice[string]
	Mood        *string `gorm:"index"`
	Location    *string
	CreatedAt   time.Time `gorm:"index"`
}

func (memoryRow) TableName() string { return "memory_records" }

func models() []any {
	return []any{&userRow{}, &memoryRow{}}
}
