package models

import "time"

// EntityActivity is the minimal projection of a CRM record the inactivity
// scanner sweeps: what kind of thing it is and when it was last touched.
// The CRM proper owns these rows; the engine only reads them and bumps
// last_activity_at through the field-update collaborator.
type EntityActivity struct {
	EntityType     string    `json:"entity_type" db:"entity_type"`
	EntityID       string    `json:"entity_id" db:"entity_id"`
	Name           string    `json:"name" db:"name"`
	LastActivityAt time.Time `json:"last_activity_at" db:"last_activity_at"`
}
