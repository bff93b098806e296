package engine

import (
	"context"
	"time"

	"github.com/crmhub/ruleflow/pkg/models"
	"github.com/crmhub/ruleflow/pkg/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// DefaultCooldown is the minimum interval before the same inactivity rule
// may re-fire for the same entity.
const DefaultCooldown = 24 * time.Hour

// EventSink receives the synthetic events the scanner produces. The
// dispatcher implements it; tests substitute a recording fake.
type EventSink interface {
	Dispatch(ev models.DomainEvent) error
}

// Scanner is the periodic producer of synthetic inactivity events. An
// external scheduler invokes Scan at a fixed interval, supplying "now".
type Scanner struct {
	store    storage.Store
	sink     EventSink
	logger   Logger
	cooldown time.Duration
}

func NewScanner(store storage.Store, sink EventSink, logger Logger) *Scanner {
	return &Scanner{
		store:    store,
		sink:     sink,
		logger:   logger,
		cooldown: DefaultCooldown,
	}
}

// Scan sweeps the entity activity projection against every active
// inactivity rule and feeds one synthetic event per (rule, entity) pair
// that is past the rule's threshold and outside its cooldown window.
// It returns the number of events fired. Errors on one rule are logged and
// do not stop the sweep.
func (s *Scanner) Scan(ctx context.Context, now time.Time) (int, error) {
	rules, err := s.store.GetActiveRulesForTrigger(models.InactivityTriggerType)
	if err != nil {
		return 0, errors.Wrap(err, "load inactivity rules")
	}

	fired := 0
	for _, rule := range rules {
		n, err := s.scanRule(ctx, rule, now)
		if err != nil {
			s.logger.Errorf("Inactivity scan failed for rule %s: %v", rule.ID, err)
			continue
		}
		fired += n
	}
	return fired, nil
}

func (s *Scanner) scanRule(ctx context.Context, rule models.WorkflowRule, now time.Time) (int, error) {
	cfg, err := models.ParseTriggerConfig(rule.TriggerType, rule.TriggerConfig)
	if err != nil {
		return 0, &ConfigError{RuleID: rule.ID, Err: err}
	}
	inactivity, ok := cfg.(models.InactivityConfig)
	if !ok {
		return 0, errors.Errorf("expected InactivityConfig, got %T", cfg)
	}

	cutoff := now.AddDate(0, 0, -inactivity.Days)
	stale, err := s.store.ListStaleEntities(cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "list stale entities")
	}

	fired := 0
	for _, entity := range stale {
		if ctx.Err() != nil {
			return fired, ctx.Err()
		}
		lastFired, err := s.store.GetLastFired(rule.ID, entity.EntityID)
		if err == nil && now.Sub(lastFired) < s.cooldown {
			continue
		}
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.logger.Errorf("Cooldown lookup failed for rule %s entity %s: %v", rule.ID, entity.EntityID, err)
			continue
		}

		// confirm-then-fire: re-read the entity so one reactivated
		// between listing and firing does not trigger a stale action
		current, err := s.store.GetEntity(entity.EntityType, entity.EntityID)
		if err != nil {
			s.logger.Errorf("Confirm read failed for %s %s: %v", entity.EntityType, entity.EntityID, err)
			continue
		}
		if current.LastActivityAt.After(cutoff) {
			continue
		}

		if err := s.store.MarkFired(rule.ID, entity.EntityID, now); err != nil {
			s.logger.Errorf("Failed to record firing for rule %s entity %s: %v", rule.ID, entity.EntityID, err)
			continue
		}

		daysInactive := int(now.Sub(current.LastActivityAt).Hours() / 24)
		ev := models.DomainEvent{
			ID:         uuid.NewString(),
			Type:       models.InactivityTriggerType,
			EntityType: current.EntityType,
			EntityID:   current.EntityID,
			Payload: map[string]interface{}{
				"entity_name":   current.Name,
				"days_inactive": daysInactive,
			},
			OccurredAt: now,
		}
		if err := s.sink.Dispatch(ev); err != nil {
			s.logger.Errorf("Failed to dispatch inactivity event for %s %s: %v", current.EntityType, current.EntityID, err)
			continue
		}
		fired++
	}
	return fired, nil
}
