package model

import "time"

// PushSubscription holds the information for a browser push subscription.
// The endpoint is the recipient's identity; at most one row exists per endpoint.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey" json:"endpoint"`
	P256DH    string    `gorm:"column:p256dh;not null" json:"-"`
	Auth      string    `gorm:"not null" json:"-"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
}
