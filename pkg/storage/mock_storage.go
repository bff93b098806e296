package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/crmhub/ruleflow/pkg/models"
	"github.com/pkg/errors"
)

// mockStore implements storage.Store with in-memory storage. Appends are
// guarded by a mutex since dispatcher workers log concurrently.
type mockStore struct {
	mu        sync.Mutex
	rules     []models.WorkflowRule
	logs      []models.ExecutionLog
	firings   map[string]time.Time // keyed by ruleID + "\x00" + entityID
	entities  []models.EntityActivity
	nextLogID int64
}

func NewMockStore() Store {
	return &mockStore{firings: make(map[string]time.Time)}
}

func (m *mockStore) Begin() (Store, error) {
	return m, nil
}

func (m *mockStore) Commit() error {
	return nil
}

func (m *mockStore) Rollback() error {
	return nil
}

func (m *mockStore) Close() error {
	return nil
}

func (m *mockStore) SaveRule(r models.WorkflowRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.rules {
		if existing.ID == r.ID {
			return errors.Errorf("rule %s already exists", r.ID)
		}
	}
	m.rules = append(m.rules, r)
	return nil
}

func (m *mockStore) GetRule(id string) (models.WorkflowRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rules {
		if r.ID == id {
			return r, nil
		}
	}
	return models.WorkflowRule{}, ErrNotFound
}

func (m *mockStore) ListRules() ([]models.WorkflowRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.WorkflowRule, len(m.rules))
	copy(out, m.rules)
	sortRules(out)
	return out, nil
}

func (m *mockStore) UpdateRule(r models.WorkflowRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.rules {
		if existing.ID == r.ID {
			r.CreatedAt = existing.CreatedAt
			m.rules[i] = r
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockStore) SetRuleActive(id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.rules {
		if r.ID == id {
			m.rules[i].IsActive = active
			m.rules[i].UpdatedAt = time.Now()
			return nil
		}
	}
	return ErrNotFound
}

// DeleteRule removes the rule but keeps its execution logs; log rows retain
// a dangling rule_id by design of the audit trail.
func (m *mockStore) DeleteRule(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.rules {
		if r.ID == id {
			m.rules = append(m.rules[:i], m.rules[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockStore) GetActiveRulesForTrigger(t models.TriggerType) ([]models.WorkflowRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.WorkflowRule
	for _, r := range m.rules {
		if r.TriggerType == t && r.IsActive {
			out = append(out, r)
		}
	}
	sortRules(out)
	return out, nil
}

func (m *mockStore) AppendExecutionLog(l models.ExecutionLog) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextLogID++
	l.ID = m.nextLogID
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	m.logs = append(m.logs, l)
	return l.ID, nil
}

func (m *mockStore) ListExecutionLogs(f LogFilter) ([]models.ExecutionLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ExecutionLog
	for _, l := range m.logs {
		if f.RuleID != "" && l.RuleID != f.RuleID {
			continue
		}
		if f.From != nil && l.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && l.CreatedAt.After(*f.To) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (m *mockStore) GetLastFired(ruleID, entityID string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.firings[ruleID+"\x00"+entityID]
	if !ok {
		return time.Time{}, ErrNotFound
	}
	return at, nil
}

func (m *mockStore) MarkFired(ruleID, entityID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.firings[ruleID+"\x00"+entityID] = at
	return nil
}

func (m *mockStore) SaveEntity(e models.EntityActivity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.entities {
		if existing.EntityType == e.EntityType && existing.EntityID == e.EntityID {
			m.entities[i] = e
			return nil
		}
	}
	m.entities = append(m.entities, e)
	return nil
}

func (m *mockStore) GetEntity(entityType, entityID string) (models.EntityActivity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entities {
		if e.EntityType == entityType && e.EntityID == entityID {
			return e, nil
		}
	}
	return models.EntityActivity{}, ErrNotFound
}

func (m *mockStore) TouchEntity(entityType, entityID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entities {
		if e.EntityType == entityType && e.EntityID == entityID {
			m.entities[i].LastActivityAt = at
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockStore) ListStaleEntities(cutoff time.Time) ([]models.EntityActivity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.EntityActivity
	for _, e := range m.entities {
		if !e.LastActivityAt.After(cutoff) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivityAt.Before(out[j].LastActivityAt)
	})
	return out, nil
}

func sortRules(rules []models.WorkflowRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].ID < rules[j].ID
		}
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})
}
