package models_test

import (
	"testing"

	"github.com/crmhub/ruleflow/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestParseTriggerConfig(t *testing.T) {
	tests := []struct {
		name        string
		triggerType models.TriggerType
		doc         models.JSONDoc
		want        models.TriggerConfig
		wantErr     string
	}{
		{
			name:        "valid stage change",
			triggerType: models.StageChangeTriggerType,
			doc:         models.JSONDoc{"from_stage": "negotiation", "to_stage": "closing"},
			want:        models.StageChangeConfig{FromStage: "negotiation", ToStage: "closing"},
		},
		{
			name:        "stage change missing to_stage",
			triggerType: models.StageChangeTriggerType,
			doc:         models.JSONDoc{"from_stage": "negotiation"},
			wantErr:     "missing field 'to_stage'",
		},
		{
			name:        "stage change with non-string stage",
			triggerType: models.StageChangeTriggerType,
			doc:         models.JSONDoc{"from_stage": 3, "to_stage": "closing"},
			wantErr:     "field 'from_stage' must be a string",
		},
		{
			name:        "valid inactivity from JSON decoded float",
			triggerType: models.InactivityTriggerType,
			doc:         models.JSONDoc{"days": float64(7)},
			want:        models.InactivityConfig{Days: 7},
		},
		{
			name:        "inactivity with fractional days",
			triggerType: models.InactivityTriggerType,
			doc:         models.JSONDoc{"days": 7.5},
			wantErr:     "must be a whole number",
		},
		{
			name:        "inactivity with zero days",
			triggerType: models.InactivityTriggerType,
			doc:         models.JSONDoc{"days": 0},
			wantErr:     "'days' must be at least 1",
		},
		{
			name:        "inactivity with string days",
			triggerType: models.InactivityTriggerType,
			doc:         models.JSONDoc{"days": "7"},
			wantErr:     "field 'days' must be a number",
		},
		{
			name:        "task overdue needs no fields",
			triggerType: models.TaskOverdueTriggerType,
			doc:         models.JSONDoc{},
			want:        models.TaskOverdueConfig{},
		},
		{
			name:        "valid ticket created",
			triggerType: models.TicketCreatedTriggerType,
			doc:         models.JSONDoc{"category": "billing"},
			want:        models.TicketCreatedConfig{Category: "billing"},
		},
		{
			name:        "unknown trigger type",
			triggerType: models.TriggerType("email_opened"),
			doc:         models.JSONDoc{},
			wantErr:     "unknown trigger type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := models.ParseTriggerConfig(tt.triggerType, tt.doc)
			if tt.wantErr != "" {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseActionConfig(t *testing.T) {
	tests := []struct {
		name       string
		actionType models.ActionType
		doc        models.JSONDoc
		want       models.ActionConfig
		wantErr    string
	}{
		{
			name:       "valid create task",
			actionType: models.CreateTaskActionType,
			doc:        models.JSONDoc{"task_title": "Follow up with {client_name}", "due_days": 3},
			want:       models.CreateTaskConfig{TaskTitle: "Follow up with {client_name}", DueDays: 3},
		},
		{
			name:       "create task with negative due days",
			actionType: models.CreateTaskActionType,
			doc:        models.JSONDoc{"task_title": "Follow up", "due_days": -1},
			wantErr:    "'due_days' cannot be negative",
		},
		{
			name:       "create task with empty title",
			actionType: models.CreateTaskActionType,
			doc:        models.JSONDoc{"task_title": "", "due_days": 1},
			wantErr:    "field 'task_title' cannot be empty",
		},
		{
			name:       "valid send reminder",
			actionType: models.SendReminderActionType,
			doc:        models.JSONDoc{"reminder_title": "Check in", "priority": "high"},
			want:       models.SendReminderConfig{ReminderTitle: "Check in", Priority: "high"},
		},
		{
			name:       "send reminder missing priority",
			actionType: models.SendReminderActionType,
			doc:        models.JSONDoc{"reminder_title": "Check in"},
			wantErr:    "missing field 'priority'",
		},
		{
			name:       "valid update field",
			actionType: models.UpdateFieldActionType,
			doc:        models.JSONDoc{"field": "status", "value": "stalled"},
			want:       models.UpdateFieldConfig{Field: "status", Value: "stalled"},
		},
		{
			name:       "unknown action type",
			actionType: models.ActionType("send_email"),
			doc:        models.JSONDoc{},
			wantErr:    "unknown action type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := models.ParseActionConfig(tt.actionType, tt.doc)
			if tt.wantErr != "" {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDomainEventDescribe(t *testing.T) {
	ev := models.DomainEvent{
		Type:       models.StageChangeTriggerType,
		EntityType: "client",
		EntityID:   "42",
		Payload:    map[string]interface{}{"from_stage": "negotiation", "to_stage": "closing"},
	}
	assert.Equal(t, `client 42 moved from stage "negotiation" to "closing"`, ev.Describe())
}

func TestDomainEventDedupKey(t *testing.T) {
	withID := models.DomainEvent{ID: "evt-1", Type: models.StageChangeTriggerType}
	assert.Equal(t, "evt-1", withID.DedupKey())

	withoutID := models.DomainEvent{Type: models.TaskOverdueTriggerType, EntityType: "task", EntityID: "7"}
	assert.NotEmpty(t, withoutID.DedupKey())
	assert.Equal(t, withoutID.DedupKey(), withoutID.DedupKey())
}
