package engine_test

import (
	"context"
	"testing"

	"github.com/crmhub/ruleflow/pkg/engine"
	"github.com/crmhub/ruleflow/pkg/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

// fakeLookup serves entity fields from a map, erroring on unknown fields.
type fakeLookup struct {
	fields map[string]string
}

func (f *fakeLookup) LookupField(ctx context.Context, entityType, entityID, field string) (string, error) {
	if v, ok := f.fields[field]; ok {
		return v, nil
	}
	return "", errors.Errorf("no field %q", field)
}

func TestResolveString(t *testing.T) {
	ev := models.DomainEvent{
		Type:       models.StageChangeTriggerType,
		EntityType: "client",
		EntityID:   "42",
		Payload:    map[string]interface{}{"client_name": "Acme Co", "days_inactive": 10},
	}

	t.Run("substitutes payload fields", func(t *testing.T) {
		out, warnings := engine.ResolveString(context.Background(), "Follow up with {client_name}", ev, nil)
		assert.Equal(t, "Follow up with Acme Co", out)
		assert.Empty(t, warnings)
	})

	t.Run("stringifies numeric payload values", func(t *testing.T) {
		out, warnings := engine.ResolveString(context.Background(), "{client_name} idle {days_inactive}d", ev, nil)
		assert.Equal(t, "Acme Co idle 10d", out)
		assert.Empty(t, warnings)
	})

	t.Run("missing placeholder resolves to empty string with warning", func(t *testing.T) {
		out, warnings := engine.ResolveString(context.Background(), "{unknown_field}", ev, nil)
		assert.Equal(t, "", out)
		assert.Len(t, warnings, 1)
		assert.Contains(t, warnings[0], "{unknown_field}")
	})

	t.Run("falls back to entity lookup", func(t *testing.T) {
		lookup := &fakeLookup{fields: map[string]string{"owner": "m.petrov"}}
		out, warnings := engine.ResolveString(context.Background(), "Assigned to {owner}", ev, lookup)
		assert.Equal(t, "Assigned to m.petrov", out)
		assert.Empty(t, warnings)
	})

	t.Run("lookup failure is a warning, not an error", func(t *testing.T) {
		lookup := &fakeLookup{fields: map[string]string{}}
		out, warnings := engine.ResolveString(context.Background(), "Assigned to {owner}", ev, lookup)
		assert.Equal(t, "Assigned to ", out)
		assert.Len(t, warnings, 1)
		assert.Contains(t, warnings[0], "entity lookup failed")
	})

	t.Run("resolved values are never re-expanded", func(t *testing.T) {
		nested := models.DomainEvent{
			Payload: map[string]interface{}{"a": "{b}", "b": "should not appear"},
		}
		out, warnings := engine.ResolveString(context.Background(), "value: {a}", nested, nil)
		assert.Equal(t, "value: {b}", out)
		assert.Empty(t, warnings)
	})
}

func TestResolveActionConfig(t *testing.T) {
	ev := models.DomainEvent{
		EntityType: "client",
		EntityID:   "42",
		Payload:    map[string]interface{}{"client_name": "Acme Co"},
	}

	t.Run("create task title", func(t *testing.T) {
		cfg := models.CreateTaskConfig{TaskTitle: "Follow up with {client_name}", DueDays: 3}
		resolved, warnings := engine.ResolveActionConfig(context.Background(), cfg, ev, nil)
		assert.Empty(t, warnings)
		assert.Equal(t, models.CreateTaskConfig{TaskTitle: "Follow up with Acme Co", DueDays: 3}, resolved)
	})

	t.Run("update field value", func(t *testing.T) {
		cfg := models.UpdateFieldConfig{Field: "owner_note", Value: "stalled: {client_name}"}
		resolved, warnings := engine.ResolveActionConfig(context.Background(), cfg, ev, nil)
		assert.Empty(t, warnings)
		assert.Equal(t, models.UpdateFieldConfig{Field: "owner_note", Value: "stalled: Acme Co"}, resolved)
	})

	t.Run("reminder title with unknown placeholder keeps warning", func(t *testing.T) {
		cfg := models.SendReminderConfig{ReminderTitle: "Ping {account_manager}", Priority: "high"}
		resolved, warnings := engine.ResolveActionConfig(context.Background(), cfg, ev, nil)
		assert.Len(t, warnings, 1)
		assert.Equal(t, "Ping ", resolved.(models.SendReminderConfig).ReminderTitle)
	})
}
