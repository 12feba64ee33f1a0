package models

import (
	"encoding/json"
	"time"
)

// Plant is a locally registered installation. UID is the same identifier the
// remote V2 plant API uses.
type Plant struct {
	ID                     int64     `db:"id" json:"id"`
	UID                    string    `db:"uid" json:"uid"`
	Owner                  *string   `db:"owner" json:"owner"`
	PlantName              *string   `db:"plant_name" json:"plant_name"`
	Capacity               *float64  `db:"capacity" json:"capacity"`
	Latitude               *float64  `db:"latitude" json:"latitude"`
	Longitude              *float64  `db:"longitude" json:"longitude"`
	Status                 *string   `db:"status" json:"status"`
	PriceCalculationMethod *string   `db:"price_calculation_method" json:"price_calculation_method"`
	CreatedAt              time.Time `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time `db:"updated_at" json:"updated_at"`
}

// PlantNameMapping overrides the display name of a plant. Only active
// mappings apply.
type PlantNameMapping struct {
	ID          int64     `db:"id" json:"id"`
	PlantUUID   string    `db:"plant_uuid" json:"plant_uuid"`
	DisplayName string    `db:"display_name" json:"display_name"`
	Description *string   `db:"description" json:"description"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// PlantEvent is an alarm or notice raised for a plant or one of its devices.
type PlantEvent struct {
	ID             int64            `db:"id" json:"id"`
	PlantUID       string           `db:"plant_uid" json:"plant_uid"`
	DeviceUID      *string          `db:"device_uid" json:"device_uid"`
	EventType      string           `db:"event_type" json:"event_type"`
	EventCategory  *string          `db:"event_category" json:"event_category"`
	Title          string           `db:"title" json:"title"`
	Description    *string          `db:"description" json:"description"`
	Severity       string           `db:"severity" json:"severity"`
	Status         string           `db:"status" json:"status"`
	Metadata       *json.RawMessage `db:"metadata" json:"metadata"`
	EventTimestamp time.Time        `db:"event_timestamp" json:"event_timestamp"`
	ResolvedAt     *time.Time       `db:"resolved_at" json:"resolved_at"`
	ResolvedBy     *int64           `db:"resolved_by" json:"resolved_by"`
}
