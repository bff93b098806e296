package engine_test

import (
	"testing"
	"time"

	"github.com/crmhub/ruleflow/pkg/engine"
	"github.com/crmhub/ruleflow/pkg/models"
	"github.com/crmhub/ruleflow/pkg/storage"
	"github.com/stretchr/testify/assert"
)

func validInput() engine.RuleInput {
	return engine.RuleInput{
		Name:          "Follow up stalled deals",
		Description:   "Create a task when a deal reaches closing",
		TriggerType:   models.StageChangeTriggerType,
		TriggerConfig: models.JSONDoc{"from_stage": "negotiation", "to_stage": "closing"},
		ActionType:    models.CreateTaskActionType,
		ActionConfig:  models.JSONDoc{"task_title": "Follow up with {client_name}", "due_days": 3},
		CreatedBy:     "admin",
	}
}

func TestRuleServiceCreateRule(t *testing.T) {
	t.Run("valid rule is stored active by default", func(t *testing.T) {
		store := storage.NewMockStore()
		svc := engine.NewRuleService(store, testLogger{})

		rule, err := svc.CreateRule(validInput())
		assert.NoError(t, err)
		assert.NotEmpty(t, rule.ID)
		assert.True(t, rule.IsActive)

		stored, err := store.GetRule(rule.ID)
		assert.NoError(t, err)
		assert.Equal(t, "Follow up stalled deals", stored.Name)
	})

	t.Run("empty name is rejected", func(t *testing.T) {
		svc := engine.NewRuleService(storage.NewMockStore(), testLogger{})
		in := validInput()
		in.Name = ""
		_, err := svc.CreateRule(in)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "name cannot be empty")
	})

	t.Run("invalid trigger config is rejected and never stored", func(t *testing.T) {
		store := storage.NewMockStore()
		svc := engine.NewRuleService(store, testLogger{})
		in := validInput()
		in.TriggerConfig = models.JSONDoc{"from_stage": 1}
		_, err := svc.CreateRule(in)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid trigger config")

		rules, err := store.ListRules()
		assert.NoError(t, err)
		assert.Empty(t, rules)
	})

	t.Run("invalid action config is rejected", func(t *testing.T) {
		svc := engine.NewRuleService(storage.NewMockStore(), testLogger{})
		in := validInput()
		in.ActionConfig = models.JSONDoc{"task_title": "x", "due_days": "three"}
		_, err := svc.CreateRule(in)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid action config")
	})

	t.Run("unknown trigger type is rejected", func(t *testing.T) {
		svc := engine.NewRuleService(storage.NewMockStore(), testLogger{})
		in := validInput()
		in.TriggerType = "email_opened"
		_, err := svc.CreateRule(in)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown trigger type")
	})
}

func TestRuleServiceUpdateRule(t *testing.T) {
	store := storage.NewMockStore()
	svc := engine.NewRuleService(store, testLogger{})
	rule, err := svc.CreateRule(validInput())
	assert.NoError(t, err)

	t.Run("edit is re-validated against the type schema", func(t *testing.T) {
		in := validInput()
		in.TriggerConfig = models.JSONDoc{"from_stage": "any"} // missing to_stage
		_, err := svc.UpdateRule(rule.ID, in)
		assert.Error(t, err)

		stored, err := store.GetRule(rule.ID)
		assert.NoError(t, err)
		assert.Equal(t, "negotiation", stored.TriggerConfig["from_stage"])
	})

	t.Run("valid edit is persisted", func(t *testing.T) {
		in := validInput()
		in.Name = "Renamed"
		in.TriggerConfig = models.JSONDoc{"from_stage": "any", "to_stage": "closing"}
		updated, err := svc.UpdateRule(rule.ID, in)
		assert.NoError(t, err)
		assert.Equal(t, "Renamed", updated.Name)
		assert.Equal(t, rule.CreatedAt, updated.CreatedAt)
	})

	t.Run("unknown rule yields not found", func(t *testing.T) {
		_, err := svc.UpdateRule("missing", validInput())
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestRuleServiceToggleRule(t *testing.T) {
	store := storage.NewMockStore()
	svc := engine.NewRuleService(store, testLogger{})
	rule, err := svc.CreateRule(validInput())
	assert.NoError(t, err)

	assert.NoError(t, svc.ToggleRule(rule.ID, false))
	stored, err := store.GetRule(rule.ID)
	assert.NoError(t, err)
	assert.False(t, stored.IsActive)

	assert.NoError(t, svc.ToggleRule(rule.ID, true))
	stored, err = store.GetRule(rule.ID)
	assert.NoError(t, err)
	assert.True(t, stored.IsActive)

	assert.ErrorIs(t, svc.ToggleRule("missing", true), storage.ErrNotFound)
}

func TestRuleServiceDeleteRule(t *testing.T) {
	store := storage.NewMockStore()
	svc := engine.NewRuleService(store, testLogger{})
	rule, err := svc.CreateRule(validInput())
	assert.NoError(t, err)

	// simulate prior executions
	_, err = store.AppendExecutionLog(models.ExecutionLog{
		RuleID: rule.ID, TriggerEvent: "client 42 moved", ActionTaken: "created task",
		Status: models.SuccessLogStatus, CreatedAt: time.Now(),
	})
	assert.NoError(t, err)

	assert.NoError(t, svc.DeleteRule(rule.ID))
	_, err = store.GetRule(rule.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// logs survive with the now dangling rule_id
	logs, err := svc.ListExecutionLogs(storage.LogFilter{RuleID: rule.ID})
	assert.NoError(t, err)
	assert.Len(t, logs, 1)
	assert.Equal(t, rule.ID, logs[0].RuleID)
}
