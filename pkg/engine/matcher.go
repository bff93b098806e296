package engine

import (
	"github.com/crmhub/ruleflow/pkg/models"
	"github.com/pkg/errors"
)

// Wildcard matches any value in a stage or category filter.
const Wildcard = "any"

// Match decides whether an event satisfies a rule's trigger condition.
// It is a pure function: no I/O, no side effects. A malformed trigger config
// yields a *ConfigError, an incompatible event payload a *MatchError; both
// affect that rule only.
func Match(rule models.WorkflowRule, ev models.DomainEvent) (bool, error) {
	if rule.TriggerType != ev.Type {
		return false, nil
	}
	cfg, err := models.ParseTriggerConfig(rule.TriggerType, rule.TriggerConfig)
	if err != nil {
		return false, &ConfigError{RuleID: rule.ID, Err: err}
	}

	switch c := cfg.(type) {
	case models.StageChangeConfig:
		from, err := payloadString(ev, "from_stage")
		if err != nil {
			return false, &MatchError{RuleID: rule.ID, Field: "from_stage", Err: err}
		}
		to, err := payloadString(ev, "to_stage")
		if err != nil {
			return false, &MatchError{RuleID: rule.ID, Field: "to_stage", Err: err}
		}
		return (c.FromStage == Wildcard || c.FromStage == from) &&
			(c.ToStage == Wildcard || c.ToStage == to), nil

	case models.InactivityConfig:
		days, err := payloadInt(ev, "days_inactive")
		if err != nil {
			return false, &MatchError{RuleID: rule.ID, Field: "days_inactive", Err: err}
		}
		return days >= c.Days, nil

	case models.TaskOverdueConfig:
		return true, nil

	case models.TicketCreatedConfig:
		category, err := payloadString(ev, "category")
		if err != nil {
			return false, &MatchError{RuleID: rule.ID, Field: "category", Err: err}
		}
		return c.Category == Wildcard || c.Category == category, nil

	default:
		return false, &ConfigError{RuleID: rule.ID, Err: errors.Errorf("unhandled trigger config %T", cfg)}
	}
}

func payloadString(ev models.DomainEvent, key string) (string, error) {
	v, ok := ev.Payload[key]
	if !ok {
		return "", errors.New("missing in event payload")
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.Errorf("expected string, got %T", v)
	}
	return s, nil
}

func payloadInt(ev models.DomainEvent, key string) (int, error) {
	v, ok := ev.Payload[key]
	if !ok {
		return 0, errors.New("missing in event payload")
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, errors.Errorf("expected number, got %T", v)
	}
}
