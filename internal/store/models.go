package store

import (
	"crypto/rand"
	"time"

	"gorm.io/gorm"
)

// Delivery events
const (
	DeliveryScheduled = "scheduled"
	DeliveryFired     = "fired"
	DeliveryCancelled = "cancelled"
)

// ReminderDelivery is one audit row for a scheduled notification handle.
type ReminderDelivery struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	MedicationID string    `gorm:"index" json:"medication_id"`
	Handle       string    `gorm:"index" json:"handle"`
	Kind         string    `json:"kind"`  // dose, refill
	Event        string    `json:"event"` // scheduled, fired, cancelled
	Title        string    `json:"title"`
	Body         string    `json:"body"`
	CreatedAt    time.Time `json:"created_at"`
}

// BeforeCreate hook for ReminderDelivery
func (d *ReminderDelivery) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = generateID("dlv")
	}
	return nil
}

// generateID creates a unique ID with nanosecond precision
func generateID(prefix string) string {
	return prefix + "_" + time.Now().Format("20060102150405") + "_" + randomString(8)
}

// randomString generates a cryptographically secure random string
func randomString(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, n)
	rand.Read(b)
	for i := range b {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return string(b)
}
