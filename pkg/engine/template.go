package engine

import (
	"context"
	"fmt"
	"regexp"

	"github.com/crmhub/ruleflow/pkg/models"
)

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// EntityLookup is the best-effort fallback for placeholders that are not in
// the event payload: a field read against the entity the event refers to.
type EntityLookup interface {
	LookupField(ctx context.Context, entityType, entityID, field string) (string, error)
}

// ResolveString substitutes {field} tokens in s from the event payload,
// falling back to the entity lookup. Missing placeholders resolve to the
// empty string; each miss is reported as a warning, never an error.
// Substitution is single-pass: a resolved value is never re-scanned for
// further tokens.
func ResolveString(ctx context.Context, s string, ev models.DomainEvent, lookup EntityLookup) (string, []string) {
	var warnings []string
	resolved := placeholderPattern.ReplaceAllStringFunc(s, func(token string) string {
		field := token[1 : len(token)-1]
		if v, ok := ev.Payload[field]; ok {
			return fmt.Sprintf("%v", v)
		}
		if lookup != nil {
			v, err := lookup.LookupField(ctx, ev.EntityType, ev.EntityID, field)
			if err == nil {
				return v
			}
			warnings = append(warnings, fmt.Sprintf("placeholder {%s}: entity lookup failed: %v", field, err))
			return ""
		}
		warnings = append(warnings, fmt.Sprintf("placeholder {%s} not found, resolved to empty string", field))
		return ""
	})
	return resolved, warnings
}

// ResolveActionConfig applies placeholder resolution to every string field
// of a typed action config and returns the resolved copy plus any warnings.
func ResolveActionConfig(ctx context.Context, cfg models.ActionConfig, ev models.DomainEvent, lookup EntityLookup) (models.ActionConfig, []string) {
	switch c := cfg.(type) {
	case models.CreateTaskConfig:
		title, warnings := ResolveString(ctx, c.TaskTitle, ev, lookup)
		c.TaskTitle = title
		return c, warnings
	case models.SendReminderConfig:
		title, warnings := ResolveString(ctx, c.ReminderTitle, ev, lookup)
		c.ReminderTitle = title
		return c, warnings
	case models.UpdateFieldConfig:
		value, warnings := ResolveString(ctx, c.Value, ev, lookup)
		c.Value = value
		return c, warnings
	default:
		return cfg, nil
	}
}
