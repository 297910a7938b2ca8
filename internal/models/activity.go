package models

import "time"

// Activity sources.
const (
	SourceWindow  = "window"  // detected inside a supervised browser surface
	SourceBackend = "backend" // pushed by the dashboard backend's data layer
)

// ActivityRecord logs one detected activity delta. It carries a count only,
// never message content. The dashboard derives its badge count from the
// unseen rows.
type ActivityRecord struct {
	ID        uint     `gorm:"primaryKey;autoIncrement"`
	AccountID string   `gorm:"size:64;index"`
	Platform  Platform `gorm:"size:32"`
	Delta     int      `gorm:"not null"`
	Source    string   `gorm:"size:16;default:window"`
	Seen      bool     `gorm:"default:false;index"`
	CreatedAt time.Time
}
