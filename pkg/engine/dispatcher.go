package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/crmhub/ruleflow/pkg/models"
	"github.com/crmhub/ruleflow/pkg/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Logger defines the logging interface the engine components use.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

const defaultQueueSize = 64

// Dispatcher evaluates incoming domain events against the active rule set.
//
// The synchronous core is TriggerEvent: one snapshot read of the active
// rules for the event's trigger type, then sequential evaluation in rule
// creation order, appending one log row per matched or config-errored rule.
//
// Dispatch is the asynchronous surface collaborators use: each trigger type
// gets one FIFO worker goroutine, so events of the same type are evaluated
// in arrival order (which yields per-rule causal log order, since a rule
// belongs to exactly one trigger type) while distinct trigger types run
// concurrently. The caller is never blocked on a slow downstream
// collaborator beyond a buffered channel send.
type Dispatcher struct {
	store    storage.Store
	executor *Executor
	lookup   EntityLookup
	logger   Logger
	queues   map[models.TriggerType]chan models.DomainEvent
	wg       sync.WaitGroup
	mu       sync.Mutex
	started  bool
	stopped  bool
}

func NewDispatcher(store storage.Store, executor *Executor, lookup EntityLookup, logger Logger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		executor: executor,
		lookup:   lookup,
		logger:   logger,
		queues:   make(map[models.TriggerType]chan models.DomainEvent),
	}
}

// Start launches one worker per trigger type.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true
	for _, t := range models.TriggerTypes() {
		queue := make(chan models.DomainEvent, defaultQueueSize)
		d.queues[t] = queue
		d.wg.Add(1)
		go d.worker(ctx, queue)
	}
}

// Stop closes the queues and waits for in-flight evaluations to finish.
// Events already queued are still evaluated; new dispatches are rejected.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped || !d.started {
		d.stopped = true
		d.mu.Unlock()
		return
	}
	d.stopped = true
	for _, queue := range d.queues {
		close(queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// Dispatch queues an event for asynchronous evaluation. An event without an
// ID gets a fresh one; producers that redeliver should supply their own so
// idempotency keys stay stable across deliveries.
func (d *Dispatcher) Dispatch(ev models.DomainEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return errors.New("dispatcher not started")
	}
	if d.stopped {
		return errors.New("dispatcher stopped")
	}
	queue, ok := d.queues[ev.Type]
	if !ok {
		return errors.Errorf("unknown trigger type %q", ev.Type)
	}
	queue <- ev
	return nil
}

func (d *Dispatcher) worker(ctx context.Context, queue <-chan models.DomainEvent) {
	defer d.wg.Done()
	for ev := range queue {
		if ctx.Err() != nil {
			return
		}
		d.TriggerEvent(ctx, ev)
	}
}

// TriggerEvent evaluates one event against all active rules for its trigger
// type, in store order. The rule set is read once per event: a rule edited
// mid-evaluation does not affect an event already in flight.
func (d *Dispatcher) TriggerEvent(ctx context.Context, ev models.DomainEvent) {
	rules, err := d.store.GetActiveRulesForTrigger(ev.Type)
	if err != nil {
		d.logger.Errorf("Failed to load rules for trigger %s: %v", ev.Type, err)
		return
	}
	for _, rule := range rules {
		d.evaluateRule(ctx, rule, ev)
	}
}

// evaluateRule runs one rule against one event. Every error path ends here:
// a failure in this rule never prevents the next rule from being evaluated.
func (d *Dispatcher) evaluateRule(ctx context.Context, rule models.WorkflowRule, ev models.DomainEvent) {
	matched, err := Match(rule, ev)
	if err != nil {
		var cfgErr *ConfigError
		status := models.FailedLogStatus
		if errors.As(err, &cfgErr) {
			status = models.SkippedLogStatus
		}
		d.appendLog(rule, ev, status, models.DescribeAction(rule.ActionType, rule.ActionConfig), err.Error())
		return
	}
	if !matched {
		// clean non-match, no log row
		return
	}

	cfg, err := models.ParseActionConfig(rule.ActionType, rule.ActionConfig)
	if err != nil {
		cfgErr := &ConfigError{RuleID: rule.ID, Err: err}
		d.appendLog(rule, ev, models.SkippedLogStatus, models.DescribeAction(rule.ActionType, rule.ActionConfig), cfgErr.Error())
		return
	}

	resolved, warnings := ResolveActionConfig(ctx, cfg, ev, d.lookup)
	detail, err := d.executor.Execute(ctx, rule, resolved, ev)
	if err != nil {
		d.appendLog(rule, ev, models.FailedLogStatus, models.DescribeAction(rule.ActionType, rule.ActionConfig), err.Error())
		return
	}

	errorDetail := ""
	if len(warnings) > 0 {
		errorDetail = "template warnings: " + strings.Join(warnings, "; ")
	}
	d.appendLog(rule, ev, models.SuccessLogStatus, detail, errorDetail)
	d.logger.Infof("Rule %s fired on %s", rule.ID, ev.Describe())
}

func (d *Dispatcher) appendLog(rule models.WorkflowRule, ev models.DomainEvent, status models.LogStatus, actionTaken, errorDetail string) {
	_, err := d.store.AppendExecutionLog(models.ExecutionLog{
		RuleID:       rule.ID,
		TriggerEvent: ev.Describe(),
		ActionTaken:  actionTaken,
		Status:       status,
		ErrorDetail:  errorDetail,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		d.logger.Errorf("Failed to append execution log for rule %s: %v", rule.ID, err)
	}
}
