// Package collab holds the in-process implementations of the engine's
// outbound collaborators used by the ruleflow binary. Real deployments are
// expected to swap these for clients of the CRM's task and notification
// services; the contracts live in pkg/engine.
package collab

import (
	"context"
	"sync"
	"time"

	"github.com/crmhub/ruleflow/pkg/engine"
	"github.com/crmhub/ruleflow/pkg/storage"
	"github.com/pkg/errors"
)

// dedupe tracks idempotency keys already acted upon, making redelivery of
// the same (rule, event) pair a no-op as the engine contract requires.
type dedupe struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func newDedupe() *dedupe {
	return &dedupe{seen: make(map[string]struct{})}
}

// Seen records the key and reports whether it was already present.
func (d *dedupe) Seen(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[key]; ok {
		return true
	}
	d.seen[key] = struct{}{}
	return false
}

// LogTaskCreator fulfils task creation by logging the outbound call.
type LogTaskCreator struct {
	logger engine.Logger
	dedupe *dedupe
}

func NewLogTaskCreator(logger engine.Logger) *LogTaskCreator {
	return &LogTaskCreator{logger: logger, dedupe: newDedupe()}
}

func (c *LogTaskCreator) CreateTask(ctx context.Context, key string, req engine.TaskRequest) error {
	if c.dedupe.Seen(key) {
		c.logger.Infof("Task %q already created for key %s, skipping", req.Title, key)
		return nil
	}
	c.logger.Infof("Creating task %q for %s %s, due %s (key %s)",
		req.Title, req.EntityType, req.EntityID, req.DueAt.Format("2006-01-02"), key)
	return nil
}

// LogNotifier fulfils reminders by logging the outbound call.
type LogNotifier struct {
	logger engine.Logger
	dedupe *dedupe
}

func NewLogNotifier(logger engine.Logger) *LogNotifier {
	return &LogNotifier{logger: logger, dedupe: newDedupe()}
}

func (n *LogNotifier) SendReminder(ctx context.Context, key string, r engine.Reminder) error {
	if n.dedupe.Seen(key) {
		n.logger.Infof("Reminder %q already sent for key %s, skipping", r.Title, key)
		return nil
	}
	n.logger.Infof("Sending reminder %q (priority %s) for %s %s (key %s)",
		r.Title, r.Priority, r.EntityType, r.EntityID, key)
	return nil
}

// StoreFieldUpdater applies field updates to the entity activity projection
// for the fields it materializes, and logs the rest for the CRM to pick up.
type StoreFieldUpdater struct {
	store  storage.Store
	logger engine.Logger
	dedupe *dedupe
}

func NewStoreFieldUpdater(store storage.Store, logger engine.Logger) *StoreFieldUpdater {
	return &StoreFieldUpdater{store: store, logger: logger, dedupe: newDedupe()}
}

func (f *StoreFieldUpdater) UpdateField(ctx context.Context, key string, u engine.FieldUpdate) error {
	if f.dedupe.Seen(key) {
		f.logger.Infof("Field update %s on %s %s already applied for key %s, skipping", u.Field, u.EntityType, u.EntityID, key)
		return nil
	}
	switch u.Field {
	case "last_activity_at":
		at, err := time.Parse(time.RFC3339, u.Value)
		if err != nil {
			return errors.Wrapf(err, "value for %s must be RFC3339", u.Field)
		}
		return f.store.TouchEntity(u.EntityType, u.EntityID, at)
	case "name":
		entity, err := f.store.GetEntity(u.EntityType, u.EntityID)
		if err != nil {
			return err
		}
		entity.Name = u.Value
		return f.store.SaveEntity(entity)
	default:
		f.logger.Infof("Field update %s=%q on %s %s (key %s)", u.Field, u.Value, u.EntityType, u.EntityID, key)
		return nil
	}
}

// StoreEntityLookup serves placeholder fallbacks from the entity projection.
type StoreEntityLookup struct {
	store storage.Store
}

func NewStoreEntityLookup(store storage.Store) *StoreEntityLookup {
	return &StoreEntityLookup{store: store}
}

func (l *StoreEntityLookup) LookupField(ctx context.Context, entityType, entityID, field string) (string, error) {
	entity, err := l.store.GetEntity(entityType, entityID)
	if err != nil {
		return "", err
	}
	switch field {
	case "name", "entity_name", "client_name":
		return entity.Name, nil
	case "last_activity_at":
		return entity.LastActivityAt.Format(time.RFC3339), nil
	default:
		return "", errors.Errorf("unknown entity field %q", field)
	}
}
