package engine

import "fmt"

// ConfigError marks a rule whose stored config fails its type's schema.
// Validation at save time should make this unreachable at runtime, but the
// matcher still catches it per rule so one bad rule cannot poison an event.
type ConfigError struct {
	RuleID string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config for rule %s: %v", e.RuleID, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// MatchError marks an event whose payload is incompatible with a rule's
// trigger type at runtime, e.g. a missing or mistyped payload field.
type MatchError struct {
	RuleID string
	Field  string
	Err    error
}

func (e *MatchError) Error() string {
	return fmt.Sprintf("rule %s cannot match on field '%s': %v", e.RuleID, e.Field, e.Err)
}

func (e *MatchError) Unwrap() error { return e.Err }

// ActionExecutionError marks a downstream collaborator failure. The engine
// logs it as a failed execution and moves on; there is no automatic retry.
type ActionExecutionError struct {
	RuleID string
	Reason error
}

func (e *ActionExecutionError) Error() string {
	return fmt.Sprintf("action for rule %s failed: %v", e.RuleID, e.Reason)
}

func (e *ActionExecutionError) Unwrap() error { return e.Reason }
