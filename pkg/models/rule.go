package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// TriggerType discriminates the shape of a rule's TriggerConfig.
type TriggerType string

const (
	StageChangeTriggerType   TriggerType = "stage_change"
	InactivityTriggerType    TriggerType = "inactivity"
	TaskOverdueTriggerType   TriggerType = "task_overdue"
	TicketCreatedTriggerType TriggerType = "ticket_created"
)

// ActionType discriminates the shape of a rule's ActionConfig.
type ActionType string

const (
	CreateTaskActionType   ActionType = "create_task"
	SendReminderActionType ActionType = "send_reminder"
	UpdateFieldActionType  ActionType = "update_field"
)

// TriggerTypes lists every trigger type the engine evaluates.
func TriggerTypes() []TriggerType {
	return []TriggerType{
		StageChangeTriggerType,
		InactivityTriggerType,
		TaskOverdueTriggerType,
		TicketCreatedTriggerType,
	}
}

// ActionTypes lists every action type the executor can dispatch.
func ActionTypes() []ActionType {
	return []ActionType{
		CreateTaskActionType,
		SendReminderActionType,
		UpdateFieldActionType,
	}
}

// JSONDoc is a schema-tagged config document stored as a JSONB column.
type JSONDoc map[string]interface{}

func (d JSONDoc) Value() (driver.Value, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d)
}

func (d *JSONDoc) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = nil
		return nil
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("cannot scan %T into JSONDoc", src)
	}
}

// WorkflowRule pairs a typed trigger condition with a typed action.
// The config documents are discriminated unions keyed by TriggerType and
// ActionType; a rule whose config fails its type's schema is rejected at
// write time and never stored.
type WorkflowRule struct {
	ID            string      `json:"id" db:"id"`                         // UUID assigned on create
	Name          string      `json:"name" db:"name"`                     // Descriptive name (e.g., "Follow up stalled deals")
	Description   string      `json:"description,omitempty" db:"description"`
	TriggerType   TriggerType `json:"trigger_type" db:"trigger_type"`     // Discriminator for TriggerConfig
	TriggerConfig JSONDoc     `json:"trigger_config" db:"trigger_config"` // Schema keyed by TriggerType
	ActionType    ActionType  `json:"action_type" db:"action_type"`       // Discriminator for ActionConfig
	ActionConfig  JSONDoc     `json:"action_config" db:"action_config"`   // Schema keyed by ActionType
	IsActive      bool        `json:"is_active" db:"is_active"`           // Inactive rules never fire
	CreatedBy     string      `json:"created_by" db:"created_by"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at" db:"updated_at"`
}
