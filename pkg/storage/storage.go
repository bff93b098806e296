package storage

import (
	"time"

	"github.com/crmhub/ruleflow/pkg/models"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// LogFilter narrows an execution-log audit query.
type LogFilter struct {
	RuleID string     // Empty means all rules
	From   *time.Time // Inclusive lower bound on created_at
	To     *time.Time // Inclusive upper bound on created_at
}

// Store defines the persistence operations for RuleFlow.
type Store interface {
	Begin() (Store, error)
	Commit() error
	Rollback() error
	Close() error

	// Rule operations
	SaveRule(r models.WorkflowRule) error
	GetRule(id string) (models.WorkflowRule, error)
	ListRules() ([]models.WorkflowRule, error)
	UpdateRule(r models.WorkflowRule) error
	SetRuleActive(id string, active bool) error
	DeleteRule(id string) error
	// GetActiveRulesForTrigger returns the active rules for one trigger
	// type ordered by created_at ascending (id as tie-break), giving the
	// dispatcher a deterministic evaluation order.
	GetActiveRulesForTrigger(t models.TriggerType) ([]models.WorkflowRule, error)

	// Execution log operations (append-only)
	AppendExecutionLog(l models.ExecutionLog) (int64, error)
	ListExecutionLogs(f LogFilter) ([]models.ExecutionLog, error)

	// Cooldown bookkeeping for time-based triggers
	GetLastFired(ruleID, entityID string) (time.Time, error)
	MarkFired(ruleID, entityID string, at time.Time) error

	// Entity activity projection swept by the inactivity scanner
	SaveEntity(e models.EntityActivity) error
	GetEntity(entityType, entityID string) (models.EntityActivity, error)
	TouchEntity(entityType, entityID string, at time.Time) error
	ListStaleEntities(cutoff time.Time) ([]models.EntityActivity, error)
}
