package models

import "time"

// Platform identifies one of the linked external platforms.
type Platform string

const (
	// PlatformBookingA and PlatformBookingB are the two booking platforms.
	PlatformBookingA Platform = "booking-a"
	PlatformBookingB Platform = "booking-b"
	// PlatformMessenger is the guest messaging platform.
	PlatformMessenger Platform = "messenger"
)

// Platforms lists all supported platforms.
func Platforms() []Platform {
	return []Platform{PlatformBookingA, PlatformBookingB, PlatformMessenger}
}

// Valid reports whether p is a supported platform.
func (p Platform) Valid() bool {
	switch p {
	case PlatformBookingA, PlatformBookingB, PlatformMessenger:
		return true
	}
	return false
}

// AccountBinding links an external platform account to an isolated browser
// session. The partition key selects the storage partition and must never be
// derived from mutable fields; changing it would silently start a new, empty
// session.
type AccountBinding struct {
	ID           string    `gorm:"primaryKey;size:64" json:"id"`
	Platform     Platform  `gorm:"size:32;not null;index" json:"platform"`
	DisplayName  string    `gorm:"size:128" json:"display_name"`
	PartitionKey string    `gorm:"size:128;not null" json:"partition_key"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
