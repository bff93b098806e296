package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/crmhub/ruleflow/pkg/models"
	"github.com/pkg/errors"
)

// TaskRequest is the payload handed to the task-creation collaborator.
type TaskRequest struct {
	Title      string
	EntityType string
	EntityID   string
	DueAt      time.Time
}

// Reminder is the payload handed to the notification collaborator.
type Reminder struct {
	Title      string
	Priority   string
	EntityType string
	EntityID   string
}

// FieldUpdate is the payload handed to the generic field-update collaborator.
type FieldUpdate struct {
	EntityType string
	EntityID   string
	Field      string
	Value      string
}

// Outbound collaborators. Each call carries an idempotency key; the
// collaborator is expected to dedupe on it so redelivery of the same event
// cannot double-fire a side effect.
type TaskCreator interface {
	CreateTask(ctx context.Context, idempotencyKey string, req TaskRequest) error
}

type Notifier interface {
	SendReminder(ctx context.Context, idempotencyKey string, r Reminder) error
}

type FieldUpdater interface {
	UpdateField(ctx context.Context, idempotencyKey string, u FieldUpdate) error
}

// Collaborators bundles the action targets the executor dispatches to.
type Collaborators struct {
	Tasks         TaskCreator
	Notifications Notifier
	Fields        FieldUpdater
}

// IdempotencyKey derives the deterministic key for one (rule, event) pair.
func IdempotencyKey(ruleID string, ev models.DomainEvent) string {
	sum := sha256.Sum256([]byte(ruleID + "\n" + ev.DedupKey()))
	return hex.EncodeToString(sum[:])
}

type handlerFunc func(ctx context.Context, key string, cfg models.ActionConfig, ev models.DomainEvent) (string, error)

// Executor maps action types to handlers calling external collaborators.
type Executor struct {
	handlers map[models.ActionType]handlerFunc
}

func NewExecutor(c Collaborators) *Executor {
	x := &Executor{handlers: make(map[models.ActionType]handlerFunc)}
	x.handlers[models.CreateTaskActionType] = createTaskHandler(c.Tasks)
	x.handlers[models.SendReminderActionType] = sendReminderHandler(c.Notifications)
	x.handlers[models.UpdateFieldActionType] = updateFieldHandler(c.Fields)
	return x
}

// Execute runs the handler for the rule's action type against a resolved
// config. It returns a human-readable description of the action taken, or
// an *ActionExecutionError when the collaborator call fails.
func (x *Executor) Execute(ctx context.Context, rule models.WorkflowRule, cfg models.ActionConfig, ev models.DomainEvent) (string, error) {
	handler, ok := x.handlers[rule.ActionType]
	if !ok {
		return "", &ActionExecutionError{RuleID: rule.ID, Reason: errors.Errorf("no handler for action type %q", rule.ActionType)}
	}
	detail, err := handler(ctx, IdempotencyKey(rule.ID, ev), cfg, ev)
	if err != nil {
		return "", &ActionExecutionError{RuleID: rule.ID, Reason: err}
	}
	return detail, nil
}

func createTaskHandler(tasks TaskCreator) handlerFunc {
	return func(ctx context.Context, key string, cfg models.ActionConfig, ev models.DomainEvent) (string, error) {
		c, ok := cfg.(models.CreateTaskConfig)
		if !ok {
			return "", errors.Errorf("expected CreateTaskConfig, got %T", cfg)
		}
		if tasks == nil {
			return "", errors.New("no task collaborator configured")
		}
		dueAt := ev.OccurredAt.AddDate(0, 0, c.DueDays)
		req := TaskRequest{
			Title:      c.TaskTitle,
			EntityType: ev.EntityType,
			EntityID:   ev.EntityID,
			DueAt:      dueAt,
		}
		if err := tasks.CreateTask(ctx, key, req); err != nil {
			return "", err
		}
		return fmt.Sprintf("created task %q due %s", c.TaskTitle, dueAt.Format("2006-01-02")), nil
	}
}

func sendReminderHandler(notifications Notifier) handlerFunc {
	return func(ctx context.Context, key string, cfg models.ActionConfig, ev models.DomainEvent) (string, error) {
		c, ok := cfg.(models.SendReminderConfig)
		if !ok {
			return "", errors.Errorf("expected SendReminderConfig, got %T", cfg)
		}
		if notifications == nil {
			return "", errors.New("no notification collaborator configured")
		}
		r := Reminder{
			Title:      c.ReminderTitle,
			Priority:   c.Priority,
			EntityType: ev.EntityType,
			EntityID:   ev.EntityID,
		}
		if err := notifications.SendReminder(ctx, key, r); err != nil {
			return "", err
		}
		return fmt.Sprintf("sent reminder %q with priority %s", c.ReminderTitle, c.Priority), nil
	}
}

func updateFieldHandler(fields FieldUpdater) handlerFunc {
	return func(ctx context.Context, key string, cfg models.ActionConfig, ev models.DomainEvent) (string, error) {
		c, ok := cfg.(models.UpdateFieldConfig)
		if !ok {
			return "", errors.Errorf("expected UpdateFieldConfig, got %T", cfg)
		}
		if fields == nil {
			return "", errors.New("no field-update collaborator configured")
		}
		u := FieldUpdate{
			EntityType: ev.EntityType,
			EntityID:   ev.EntityID,
			Field:      c.Field,
			Value:      c.Value,
		}
		if err := fields.UpdateField(ctx, key, u); err != nil {
			return "", err
		}
		return fmt.Sprintf("set %s to %q on %s %s", c.Field, c.Value, ev.EntityType, ev.EntityID), nil
	}
}
