package engine

import (
	"time"

	"github.com/crmhub/ruleflow/pkg/models"
	"github.com/crmhub/ruleflow/pkg/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// RuleInput carries the writable fields of a rule through create and update.
type RuleInput struct {
	Name          string             `json:"name"`
	Description   string             `json:"description"`
	TriggerType   models.TriggerType `json:"trigger_type"`
	TriggerConfig models.JSONDoc     `json:"trigger_config"`
	ActionType    models.ActionType  `json:"action_type"`
	ActionConfig  models.JSONDoc     `json:"action_config"`
	CreatedBy     string             `json:"created_by"`
}

// RuleService owns the write side of the rule store: every rule is validated
// against its type's config schema before it is accepted, so a rule with a
// malformed config is never stored as active.
type RuleService struct {
	store  storage.Store
	logger Logger
}

func NewRuleService(store storage.Store, logger Logger) *RuleService {
	return &RuleService{store: store, logger: logger}
}

func validateInput(in RuleInput) error {
	if in.Name == "" {
		return errors.New("rule name cannot be empty")
	}
	if len(in.Name) > 100 {
		return errors.New("rule name too long (max 100 characters)")
	}
	if _, err := models.ParseTriggerConfig(in.TriggerType, in.TriggerConfig); err != nil {
		return errors.Wrapf(err, "invalid trigger config for %q", in.TriggerType)
	}
	if _, err := models.ParseActionConfig(in.ActionType, in.ActionConfig); err != nil {
		return errors.Wrapf(err, "invalid action config for %q", in.ActionType)
	}
	return nil
}

// CreateRule validates and stores a new rule, active by default.
func (s *RuleService) CreateRule(in RuleInput) (rule models.WorkflowRule, err error) {
	if err := validateInput(in); err != nil {
		return models.WorkflowRule{}, err
	}

	txStore, err := s.store.Begin()
	if err != nil {
		return models.WorkflowRule{}, err
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	now := time.Now()
	rule = models.WorkflowRule{
		ID:            uuid.NewString(),
		Name:          in.Name,
		Description:   in.Description,
		TriggerType:   in.TriggerType,
		TriggerConfig: in.TriggerConfig,
		ActionType:    in.ActionType,
		ActionConfig:  in.ActionConfig,
		IsActive:      true,
		CreatedBy:     in.CreatedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err = txStore.SaveRule(rule); err != nil {
		return models.WorkflowRule{}, err
	}
	s.logger.Infof("Created rule '%s' (%s) with ID %s", rule.Name, rule.TriggerType, rule.ID)
	return rule, nil
}

// UpdateRule re-validates the edited rule against its type schema before
// persisting. An event already in flight keeps evaluating the snapshot it
// was dispatched with.
func (s *RuleService) UpdateRule(id string, in RuleInput) (rule models.WorkflowRule, err error) {
	if err := validateInput(in); err != nil {
		return models.WorkflowRule{}, err
	}

	txStore, err := s.store.Begin()
	if err != nil {
		return models.WorkflowRule{}, err
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	existing, err := txStore.GetRule(id)
	if err != nil {
		return models.WorkflowRule{}, err
	}

	rule = existing
	rule.Name = in.Name
	rule.Description = in.Description
	rule.TriggerType = in.TriggerType
	rule.TriggerConfig = in.TriggerConfig
	rule.ActionType = in.ActionType
	rule.ActionConfig = in.ActionConfig
	rule.UpdatedAt = time.Now()
	if err = txStore.UpdateRule(rule); err != nil {
		return models.WorkflowRule{}, err
	}
	s.logger.Infof("Updated rule %s", id)
	return rule, nil
}

// ToggleRule flips a rule between Active and Inactive. The change is
// observed starting from the next event dispatched, never mid-flight.
func (s *RuleService) ToggleRule(id string, active bool) (err error) {
	txStore, err := s.store.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	if err = txStore.SetRuleActive(id, active); err != nil {
		return err
	}
	s.logger.Infof("Set rule %s active=%v", id, active)
	return nil
}

// DeleteRule removes the rule. Its execution logs are retained with a now
// dangling rule_id; deletion is not cascading.
func (s *RuleService) DeleteRule(id string) (err error) {
	txStore, err := s.store.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	if err = txStore.DeleteRule(id); err != nil {
		return err
	}
	s.logger.Infof("Deleted rule %s", id)
	return nil
}

func (s *RuleService) GetRule(id string) (models.WorkflowRule, error) {
	return s.store.GetRule(id)
}

func (s *RuleService) ListRules() ([]models.WorkflowRule, error) {
	return s.store.ListRules()
}

// ListExecutionLogs serves the audit view: logs filtered by rule and
// created_at range.
func (s *RuleService) ListExecutionLogs(f storage.LogFilter) ([]models.ExecutionLog, error) {
	return s.store.ListExecutionLogs(f)
}
