package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/crmhub/ruleflow/pkg/models"
	"github.com/crmhub/ruleflow/pkg/storage"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type DBInterface interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	QueryRowx(query string, args ...interface{}) *sqlx.Row
	Exec(query string, args ...interface{}) (sql.Result, error)
}

type PostgresStore struct {
	db DBInterface
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Begin() (storage.Store, error) {
	if db, ok := s.db.(*sqlx.DB); ok {
		tx, err := db.Beginx()
		if err != nil {
			return nil, err
		}
		return &PostgresStore{db: tx}, nil
	}
	return nil, fmt.Errorf("cannot begin transaction on unknown type")
}

func (s *PostgresStore) Commit() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Commit()
	}
	return fmt.Errorf("cannot commit: not a transaction")
}

func (s *PostgresStore) Rollback() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Rollback()
	}
	return fmt.Errorf("cannot rollback: not a transaction")
}

func (s *PostgresStore) Close() error {
	if db, ok := s.db.(*sqlx.DB); ok {
		return db.Close()
	}
	return nil // No-op for *sqlx.Tx
}

// SaveRule inserts a new rule. Config validation happens in the service
// layer before this point.
func (s *PostgresStore) SaveRule(r models.WorkflowRule) error {
	_, err := s.db.Exec(`
		INSERT INTO workflow_rules (id, name, description, trigger_type, trigger_config, action_type, action_config, is_active, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID, r.Name, r.Description, r.TriggerType, r.TriggerConfig, r.ActionType, r.ActionConfig, r.IsActive, r.CreatedBy, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save rule: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRule(id string) (models.WorkflowRule, error) {
	var r models.WorkflowRule
	err := s.db.Get(&r, "SELECT * FROM workflow_rules WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return models.WorkflowRule{}, storage.ErrNotFound
	}
	if err != nil {
		return models.WorkflowRule{}, err
	}
	return r, nil
}

func (s *PostgresStore) ListRules() ([]models.WorkflowRule, error) {
	rules := []models.WorkflowRule{}
	err := s.db.Select(&rules, "SELECT * FROM workflow_rules ORDER BY created_at ASC, id ASC")
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (s *PostgresStore) UpdateRule(r models.WorkflowRule) error {
	res, err := s.db.Exec(`
		UPDATE workflow_rules
		SET name = $1, description = $2, trigger_type = $3, trigger_config = $4, action_type = $5, action_config = $6, is_active = $7, updated_at = $8
		WHERE id = $9`,
		r.Name, r.Description, r.TriggerType, r.TriggerConfig, r.ActionType, r.ActionConfig, r.IsActive, r.UpdatedAt, r.ID)
	if err != nil {
		return fmt.Errorf("update rule %s: %w", r.ID, err)
	}
	return checkAffected(res)
}

func (s *PostgresStore) SetRuleActive(id string, active bool) error {
	res, err := s.db.Exec("UPDATE workflow_rules SET is_active = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2", active, id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// DeleteRule removes only the rule row; execution logs keep their rule_id.
func (s *PostgresStore) DeleteRule(id string) error {
	res, err := s.db.Exec("DELETE FROM workflow_rules WHERE id = $1", id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// GetActiveRulesForTrigger returns active rules for one trigger type in
// creation order, id as the deterministic tie-break.
func (s *PostgresStore) GetActiveRulesForTrigger(t models.TriggerType) ([]models.WorkflowRule, error) {
	rules := []models.WorkflowRule{}
	err := s.db.Select(&rules,
		"SELECT * FROM workflow_rules WHERE trigger_type = $1 AND is_active = TRUE ORDER BY created_at ASC, id ASC", t)
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (s *PostgresStore) AppendExecutionLog(l models.ExecutionLog) (int64, error) {
	var id int64
	err := s.db.QueryRowx(`
		INSERT INTO workflow_execution_logs (rule_id, trigger_event, action_taken, status, error_detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		l.RuleID, l.TriggerEvent, l.ActionTaken, l.Status, l.ErrorDetail, l.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("append execution log: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) ListExecutionLogs(f storage.LogFilter) ([]models.ExecutionLog, error) {
	query := "SELECT * FROM workflow_execution_logs WHERE 1=1"
	args := []interface{}{}
	if f.RuleID != "" {
		args = append(args, f.RuleID)
		query += fmt.Sprintf(" AND rule_id = $%d", len(args))
	}
	if f.From != nil {
		args = append(args, *f.From)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	query += " ORDER BY created_at ASC, id ASC"

	logs := []models.ExecutionLog{}
	if err := s.db.Select(&logs, query, args...); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *PostgresStore) GetLastFired(ruleID, entityID string) (time.Time, error) {
	var at time.Time
	err := s.db.Get(&at, "SELECT fired_at FROM workflow_rule_firings WHERE rule_id = $1 AND entity_id = $2", ruleID, entityID)
	if err == sql.ErrNoRows {
		return time.Time{}, storage.ErrNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	return at, nil
}

func (s *PostgresStore) MarkFired(ruleID, entityID string, at time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO workflow_rule_firings (rule_id, entity_id, fired_at) VALUES ($1, $2, $3)
		ON CONFLICT (rule_id, entity_id) DO UPDATE SET fired_at = EXCLUDED.fired_at`,
		ruleID, entityID, at)
	return err
}

func (s *PostgresStore) SaveEntity(e models.EntityActivity) error {
	_, err := s.db.Exec(`
		INSERT INTO crm_entities (entity_type, entity_id, name, last_activity_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (entity_type, entity_id) DO UPDATE SET name = EXCLUDED.name, last_activity_at = EXCLUDED.last_activity_at`,
		e.EntityType, e.EntityID, e.Name, e.LastActivityAt)
	return err
}

func (s *PostgresStore) GetEntity(entityType, entityID string) (models.EntityActivity, error) {
	var e models.EntityActivity
	err := s.db.Get(&e, "SELECT * FROM crm_entities WHERE entity_type = $1 AND entity_id = $2", entityType, entityID)
	if err == sql.ErrNoRows {
		return models.EntityActivity{}, storage.ErrNotFound
	}
	if err != nil {
		return models.EntityActivity{}, err
	}
	return e, nil
}

func (s *PostgresStore) TouchEntity(entityType, entityID string, at time.Time) error {
	res, err := s.db.Exec("UPDATE crm_entities SET last_activity_at = $1 WHERE entity_type = $2 AND entity_id = $3", at, entityType, entityID)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (s *PostgresStore) ListStaleEntities(cutoff time.Time) ([]models.EntityActivity, error) {
	entities := []models.EntityActivity{}
	err := s.db.Select(&entities, "SELECT * FROM crm_entities WHERE last_activity_at <= $1 ORDER BY last_activity_at ASC", cutoff)
	if err != nil {
		return nil, err
	}
	return entities, nil
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
