package model

import (
	"time"

	"github.com/google/uuid"
)

// PushSubscription is a browser Web Push endpoint registered by a user.
type PushSubscription struct {
	ID         int64     `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	Endpoint   string    `json:"endpoint"`
	P256dhKey  string    `json:"p256dh"`
	AuthKey    string    `json:"-"`
	DeviceName string    `json:"device_name"`
	CreatedAt  time.Time `json:"created_at"`
}
