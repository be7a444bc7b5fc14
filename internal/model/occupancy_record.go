package model

import "time"

// GardenState is the occupancy state reported by the sensor. The wire values
// are the Italian ones the sensor publishes.
type GardenState string

const (
	StateOccupied GardenState = "occupato"
	StateFree     GardenState = "libero"
)

// Valid reports whether s is one of the two known sensor states.
func (s GardenState) Valid() bool {
	return s == StateOccupied || s == StateFree
}

// OccupancyRecord is one persisted state transition of the garden. Records are
// append-only: once created they are never updated or deleted.
type OccupancyRecord struct {
	ID        int64       `gorm:"autoIncrement;primaryKey" json:"id"`
	Timestamp time.Time   `gorm:"not null;index" json:"timestamp"`
	Family    string      `gorm:"column:famiglia;size:128;not null;index" json:"famiglia"`
	State     GardenState `gorm:"column:stato;size:16;not null;index" json:"stato"`
	// DurationMinutes is set only on a "libero" record that closes an
	// occupation interval: minutes since the family's latest "occupato" record.
	DurationMinutes *int64    `gorm:"column:durata" json:"durata"`
	Note            string    `gorm:"default:''" json:"note"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// TableName keeps the legacy collection name for the occupancy history.
func (OccupancyRecord) TableName() string {
	return "prenotazioni"
}

// OccupancyEvent is a decoded sensor event. It is transient: consumed once by
// the ingestion pipeline and never persisted as-is.
type OccupancyEvent struct {
	Family    string
	State     GardenState
	Timestamp time.Time
}
