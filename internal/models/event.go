package models

import (
	"time"

	"gorm.io/gorm"
)

// Event is the append-only mutation record. Its auto-increment id is the
// global version clock: every committed content mutation writes exactly one
// event, and the id is the ordering token stamped on every downstream
// payload for that mutation.
type Event struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	Action    string `gorm:"size:64;not null"`
	ContentID string `gorm:"type:char(36);index"`
	Locale    string `gorm:"size:12"`
	Payload   JSON   `gorm:"type:json"`
	CreatedAt time.Time
}

// TableName overrides the table name for Event
func (Event) TableName() string {
	return "events"
}

// LatestEventID returns the highest version issued so far, 0 when the event
// log is empty. Used by bulk requeue to stamp resynchronized content.
func LatestEventID(db *gorm.DB) (uint64, error) {
	var max *uint64
	if err := db.Model(&Event{}).Select("MAX(id)").Scan(&max).Error; err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}
