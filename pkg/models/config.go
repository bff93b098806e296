package models

import (
	"fmt"

	"github.com/pkg/errors"
)

// TriggerConfig is the decoded, typed form of a rule's trigger_config
// document. The concrete type is determined by the rule's TriggerType.
type TriggerConfig interface {
	triggerConfig()
}

// ActionConfig is the decoded, typed form of a rule's action_config
// document. The concrete type is determined by the rule's ActionType.
type ActionConfig interface {
	actionConfig()
}

// StageChangeConfig matches when a sales stage moves between the configured
// stages. Either side may be the wildcard "any".
type StageChangeConfig struct {
	FromStage string `json:"from_stage"`
	ToStage   string `json:"to_stage"`
}

// InactivityConfig matches entities whose days_inactive reached the threshold.
type InactivityConfig struct {
	Days int `json:"days"`
}

// TaskOverdueConfig matches every task_overdue event; it carries no filter.
type TaskOverdueConfig struct{}

// TicketCreatedConfig matches tickets in the configured category, or every
// ticket when the category is "any".
type TicketCreatedConfig struct {
	Category string `json:"category"`
}

func (StageChangeConfig) triggerConfig()   {}
func (InactivityConfig) triggerConfig()    {}
func (TaskOverdueConfig) triggerConfig()   {}
func (TicketCreatedConfig) triggerConfig() {}

// CreateTaskConfig creates a follow-up task due DueDays after the event.
type CreateTaskConfig struct {
	TaskTitle string `json:"task_title"`
	DueDays   int    `json:"due_days"`
}

// SendReminderConfig sends a reminder through the notification collaborator.
type SendReminderConfig struct {
	ReminderTitle string `json:"reminder_title"`
	Priority      string `json:"priority"`
}

// UpdateFieldConfig sets a single field on the triggering entity.
type UpdateFieldConfig struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (CreateTaskConfig) actionConfig()   {}
func (SendReminderConfig) actionConfig() {}
func (UpdateFieldConfig) actionConfig()  {}

// ParseTriggerConfig decodes and validates a trigger_config document against
// the schema of the given trigger type. Both the write path (rule service)
// and the match path (condition matcher) go through it, so a malformed
// document is rejected identically in either place.
func ParseTriggerConfig(t TriggerType, doc JSONDoc) (TriggerConfig, error) {
	switch t {
	case StageChangeTriggerType:
		from, err := stringField(doc, "from_stage")
		if err != nil {
			return nil, err
		}
		to, err := stringField(doc, "to_stage")
		if err != nil {
			return nil, err
		}
		return StageChangeConfig{FromStage: from, ToStage: to}, nil
	case InactivityTriggerType:
		days, err := intField(doc, "days")
		if err != nil {
			return nil, err
		}
		if days < 1 {
			return nil, errors.New("'days' must be at least 1")
		}
		return InactivityConfig{Days: days}, nil
	case TaskOverdueTriggerType:
		return TaskOverdueConfig{}, nil
	case TicketCreatedTriggerType:
		category, err := stringField(doc, "category")
		if err != nil {
			return nil, err
		}
		return TicketCreatedConfig{Category: category}, nil
	default:
		return nil, errors.Errorf("unknown trigger type %q", t)
	}
}

// ParseActionConfig decodes and validates an action_config document against
// the schema of the given action type.
func ParseActionConfig(t ActionType, doc JSONDoc) (ActionConfig, error) {
	switch t {
	case CreateTaskActionType:
		title, err := stringField(doc, "task_title")
		if err != nil {
			return nil, err
		}
		dueDays, err := intField(doc, "due_days")
		if err != nil {
			return nil, err
		}
		if dueDays < 0 {
			return nil, errors.New("'due_days' cannot be negative")
		}
		return CreateTaskConfig{TaskTitle: title, DueDays: dueDays}, nil
	case SendReminderActionType:
		title, err := stringField(doc, "reminder_title")
		if err != nil {
			return nil, err
		}
		priority, err := stringField(doc, "priority")
		if err != nil {
			return nil, err
		}
		return SendReminderConfig{ReminderTitle: title, Priority: priority}, nil
	case UpdateFieldActionType:
		field, err := stringField(doc, "field")
		if err != nil {
			return nil, err
		}
		value, err := stringField(doc, "value")
		if err != nil {
			return nil, err
		}
		return UpdateFieldConfig{Field: field, Value: value}, nil
	default:
		return nil, errors.Errorf("unknown action type %q", t)
	}
}

func stringField(doc JSONDoc, key string) (string, error) {
	v, ok := doc[key]
	if !ok {
		return "", errors.Errorf("missing field '%s'", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.Errorf("field '%s' must be a string, got %T", key, v)
	}
	if s == "" {
		return "", errors.Errorf("field '%s' cannot be empty", key)
	}
	return s, nil
}

// intField accepts both native ints and the float64 that encoding/json
// produces, rejecting fractional values.
func intField(doc JSONDoc, key string) (int, error) {
	v, ok := doc[key]
	if !ok {
		return 0, errors.Errorf("missing field '%s'", key)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, errors.Errorf("field '%s' must be a whole number, got %v", key, n)
		}
		return int(n), nil
	default:
		return 0, errors.Errorf("field '%s' must be a number, got %T", key, v)
	}
}

// describe helpers used when a handler never ran and the log row still needs
// a human-readable action description.

// DescribeAction renders a short description of what an action type would do
// with the given raw config, tolerating malformed documents.
func DescribeAction(t ActionType, doc JSONDoc) string {
	switch t {
	case CreateTaskActionType:
		return fmt.Sprintf("create task %q", doc["task_title"])
	case SendReminderActionType:
		return fmt.Sprintf("send reminder %q", doc["reminder_title"])
	case UpdateFieldActionType:
		return fmt.Sprintf("update field %q", doc["field"])
	default:
		return string(t)
	}
}
