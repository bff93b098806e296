package models

import "time"

type LogStatus string

const (
	SuccessLogStatus LogStatus = "success"
	FailedLogStatus  LogStatus = "failed"
	SkippedLogStatus LogStatus = "skipped"
)

// ExecutionLog records one rule's evaluation outcome against one event.
// Rows are append-only: the engine never updates or deletes them, and they
// keep their rule_id even after the rule itself is deleted.
type ExecutionLog struct {
	ID           int64     `json:"id" db:"id"`                       // Auto-incremented log ID
	RuleID       string    `json:"rule_id" db:"rule_id"`             // May dangle after rule deletion
	TriggerEvent string    `json:"trigger_event" db:"trigger_event"` // Human-readable event description
	ActionTaken  string    `json:"action_taken" db:"action_taken"`   // Human-readable action description
	Status       LogStatus `json:"status" db:"status"`               // "success", "failed" or "skipped"
	ErrorDetail  string    `json:"error_detail,omitempty" db:"error_detail"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
