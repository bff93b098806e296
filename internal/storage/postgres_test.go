package storage_test

import (
	"testing"
	"time"

	internal_storage "github.com/crmhub/ruleflow/internal/storage"
	"github.com/crmhub/ruleflow/internal/testutil"
	"github.com/crmhub/ruleflow/pkg/models"
	"github.com/crmhub/ruleflow/pkg/storage"
	"github.com/stretchr/testify/assert"
)

func newRule(id, name string, createdAt time.Time) models.WorkflowRule {
	return models.WorkflowRule{
		ID:            id,
		Name:          name,
		Description:   "test rule",
		TriggerType:   models.StageChangeTriggerType,
		TriggerConfig: models.JSONDoc{"from_stage": "negotiation", "to_stage": "closing"},
		ActionType:    models.CreateTaskActionType,
		ActionConfig:  models.JSONDoc{"task_title": "Follow up with {client_name}", "due_days": float64(3)},
		IsActive:      true,
		CreatedBy:     "admin",
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
}

func TestPostgresStore(t *testing.T) {
	testDB := testutil.SetupTestDB(t)
	defer testDB.Teardown(t)

	// Helper to create a transactional store rolled back after each subtest
	newTxStore := func(t *testing.T) *internal_storage.PostgresStore {
		store, err := internal_storage.NewPostgresStore(testDB.ConnStr)
		assert.NoError(t, err)
		txStore, err := store.Begin()
		assert.NoError(t, err)
		t.Cleanup(func() { txStore.Rollback() })
		return txStore.(*internal_storage.PostgresStore)
	}

	t.Run("SaveRule and GetRule roundtrip configs", func(t *testing.T) {
		store := newTxStore(t)
		rule := newRule("r1", "Follow up", time.Now().UTC())
		assert.NoError(t, store.SaveRule(rule))

		saved, err := store.GetRule("r1")
		assert.NoError(t, err)
		assert.Equal(t, rule.Name, saved.Name)
		assert.Equal(t, models.StageChangeTriggerType, saved.TriggerType)
		assert.Equal(t, "negotiation", saved.TriggerConfig["from_stage"])
		assert.Equal(t, float64(3), saved.ActionConfig["due_days"])
		assert.True(t, saved.IsActive)
	})

	t.Run("GetRule for missing id", func(t *testing.T) {
		store := newTxStore(t)
		_, err := store.GetRule("missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("GetActiveRulesForTrigger filters and orders by creation", func(t *testing.T) {
		store := newTxStore(t)
		base := time.Now().UTC().Add(-time.Hour)

		older := newRule("older", "older", base)
		newer := newRule("newer", "newer", base.Add(time.Minute))
		inactive := newRule("inactive", "inactive", base.Add(2*time.Minute))
		inactive.IsActive = false
		otherTrigger := newRule("overdue", "overdue", base)
		otherTrigger.TriggerType = models.TaskOverdueTriggerType
		otherTrigger.TriggerConfig = models.JSONDoc{}

		for _, r := range []models.WorkflowRule{newer, older, inactive, otherTrigger} {
			assert.NoError(t, store.SaveRule(r))
		}

		rules, err := store.GetActiveRulesForTrigger(models.StageChangeTriggerType)
		assert.NoError(t, err)
		assert.Len(t, rules, 2)
		assert.Equal(t, "older", rules[0].ID)
		assert.Equal(t, "newer", rules[1].ID)
	})

	t.Run("SetRuleActive and DeleteRule", func(t *testing.T) {
		store := newTxStore(t)
		assert.NoError(t, store.SaveRule(newRule("r1", "toggle me", time.Now().UTC())))

		assert.NoError(t, store.SetRuleActive("r1", false))
		saved, err := store.GetRule("r1")
		assert.NoError(t, err)
		assert.False(t, saved.IsActive)

		assert.NoError(t, store.DeleteRule("r1"))
		_, err = store.GetRule("r1")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		assert.ErrorIs(t, store.SetRuleActive("r1", true), storage.ErrNotFound)
		assert.ErrorIs(t, store.DeleteRule("r1"), storage.ErrNotFound)
	})

	t.Run("UpdateRule persists edited configs", func(t *testing.T) {
		store := newTxStore(t)
		rule := newRule("r1", "before", time.Now().UTC())
		assert.NoError(t, store.SaveRule(rule))

		rule.Name = "after"
		rule.TriggerConfig = models.JSONDoc{"from_stage": "any", "to_stage": "closing"}
		rule.UpdatedAt = time.Now().UTC()
		assert.NoError(t, store.UpdateRule(rule))

		saved, err := store.GetRule("r1")
		assert.NoError(t, err)
		assert.Equal(t, "after", saved.Name)
		assert.Equal(t, "any", saved.TriggerConfig["from_stage"])
	})

	t.Run("execution logs append and filter", func(t *testing.T) {
		store := newTxStore(t)
		base := time.Now().UTC().Add(-time.Hour)

		for i, ruleID := range []string{"r1", "r1", "r2"} {
			_, err := store.AppendExecutionLog(models.ExecutionLog{
				RuleID:       ruleID,
				TriggerEvent: "client 42 moved",
				ActionTaken:  "created task",
				Status:       models.SuccessLogStatus,
				CreatedAt:    base.Add(time.Duration(i) * time.Minute),
			})
			assert.NoError(t, err)
		}

		all, err := store.ListExecutionLogs(storage.LogFilter{})
		assert.NoError(t, err)
		assert.Len(t, all, 3)

		r1Logs, err := store.ListExecutionLogs(storage.LogFilter{RuleID: "r1"})
		assert.NoError(t, err)
		assert.Len(t, r1Logs, 2)

		from := base.Add(30 * time.Second)
		to := base.Add(90 * time.Second)
		ranged, err := store.ListExecutionLogs(storage.LogFilter{From: &from, To: &to})
		assert.NoError(t, err)
		assert.Len(t, ranged, 1)
	})

	t.Run("firings upsert last-fired per rule-entity pair", func(t *testing.T) {
		store := newTxStore(t)

		_, err := store.GetLastFired("r1", "client-1")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		first := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
		assert.NoError(t, store.MarkFired("r1", "client-1", first))
		at, err := store.GetLastFired("r1", "client-1")
		assert.NoError(t, err)
		assert.True(t, at.Equal(first))

		second := first.Add(25 * time.Hour)
		assert.NoError(t, store.MarkFired("r1", "client-1", second))
		at, err = store.GetLastFired("r1", "client-1")
		assert.NoError(t, err)
		assert.True(t, at.Equal(second))
	})

	t.Run("stale entity listing and touch", func(t *testing.T) {
		store := newTxStore(t)
		now := time.Now().UTC()

		assert.NoError(t, store.SaveEntity(models.EntityActivity{
			EntityType: "client", EntityID: "stale", Name: "Acme Co",
			LastActivityAt: now.AddDate(0, 0, -10),
		}))
		assert.NoError(t, store.SaveEntity(models.EntityActivity{
			EntityType: "client", EntityID: "fresh", Name: "Globex",
			LastActivityAt: now,
		}))

		stale, err := store.ListStaleEntities(now.AddDate(0, 0, -7))
		assert.NoError(t, err)
		assert.Len(t, stale, 1)
		assert.Equal(t, "stale", stale[0].EntityID)

		assert.NoError(t, store.TouchEntity("client", "stale", now))
		stale, err = store.ListStaleEntities(now.AddDate(0, 0, -7))
		assert.NoError(t, err)
		assert.Empty(t, stale)

		assert.ErrorIs(t, store.TouchEntity("client", "missing", now), storage.ErrNotFound)
	})
}
