package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/zhuermu/zmead-sub004/internal/adapter/memstore"
	"github.com/zhuermu/zmead-sub004/internal/domain"
	"github.com/zhuermu/zmead-sub004/internal/domain/action"
	"github.com/zhuermu/zmead-sub004/internal/domain/credit"
	"github.com/zhuermu/zmead-sub004/internal/domain/intent"
	"github.com/zhuermu/zmead-sub004/internal/port/ledger"
	"github.com/zhuermu/zmead-sub004/internal/port/recognizer"
	"github.com/zhuermu/zmead-sub004/internal/port/tooling"
	"github.com/zhuermu/zmead-sub004/internal/resilience"
	"github.com/zhuermu/zmead-sub004/internal/service"
)

// fakeLedger is a deterministic in-memory ledger. Deductions are
// idempotent on the operation ID, matching the real service contract.
type fakeLedger struct {
	mu              sync.Mutex
	balance         int64
	transientChecks int // leading Check calls that fail as transient
	deductErr       error
	checkCalls      int
	deductCalls     int
	charged         map[string]int64
	deductions      []ledger.DeductRequest
}

func newFakeLedger(balance int64) *fakeLedger {
	return &fakeLedger{balance: balance, charged: make(map[string]int64)}
}

func (l *fakeLedger) available() int64 {
	total := l.balance
	for _, amount := range l.charged {
		total -= amount
	}
	return total
}

func (l *fakeLedger) Balance(_ context.Context, _ string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.available(), nil
}

func (l *fakeLedger) Check(_ context.Context, _ string, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.checkCalls++
	if l.transientChecks > 0 {
		l.transientChecks--
		return domain.Transient(domain.TransientConnection, errors.New("ledger unreachable"))
	}
	if l.available() < amount {
		return &credit.InsufficientError{Required: amount, Available: l.available()}
	}
	return nil
}

func (l *fakeLedger) Deduct(_ context.Context, req ledger.DeductRequest) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.deductCalls++
	if l.deductErr != nil {
		return l.deductErr
	}
	if _, done := l.charged[req.OperationID]; done {
		return nil
	}
	l.charged[req.OperationID] = req.Amount
	l.deductions = append(l.deductions, req)
	return nil
}

// fakeRecognizer returns a canned intent (or error) for every message.
type fakeRecognizer struct {
	mu     sync.Mutex
	intent *intent.Intent
	err    error
	calls  int
}

func (r *fakeRecognizer) Recognize(_ context.Context, _ recognizer.Request) (*intent.Intent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	cp := *r.intent
	return &cp, nil
}

// engine wires a full in-memory stack around the service layer.
type engine struct {
	store     *memstore.Store
	events    *memstore.EventStore
	ledger    *fakeLedger
	registry  *tooling.Registry
	planner   *service.Planner
	gate      *service.Gate
	router    *service.Router
	assistant *service.Assistant
	rec       *fakeRecognizer

	mu        sync.Mutex
	toolCalls map[string]int
}

type engineOption func(*engineConfig)

type engineConfig struct {
	turnTimeout time.Duration
	gateTTL     time.Duration
}

func withTurnTimeout(d time.Duration) engineOption {
	return func(c *engineConfig) { c.turnTimeout = d }
}

func newEngine(t *testing.T, lg *fakeLedger) *engine {
	return newEngineWith(t, lg, nil)
}

func newEngineWith(t *testing.T, lg *fakeLedger, opts []engineOption) *engine {
	t.Helper()

	cfg := engineConfig{gateTTL: time.Hour}
	for _, opt := range opts {
		opt(&cfg)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memstore.NewStore()
	events := memstore.NewEventStore()
	registry := tooling.NewRegistry()

	e := &engine{
		store:     store,
		events:    events,
		ledger:    lg,
		registry:  registry,
		rec:       &fakeRecognizer{},
		toolCalls: make(map[string]int),
	}

	retrier := resilience.NewRetrier(resilience.Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Factor:      2,
	})
	emitter := service.NewEmitter(events, nil, nil, log)
	meter := service.NewMeter(lg, store, credit.NewEstimator(), retrier, emitter, nil, log)
	e.planner = service.NewPlanner(registry, meter, emitter, log)
	e.gate = service.NewGate(cfg.gateTTL, emitter, nil, log)
	e.router = service.NewRouter(e.planner, e.gate, store, emitter, 20, cfg.turnTimeout, log)
	e.assistant = service.NewAssistant(e.rec, store, e.router, e.gate, emitter, retrier, log)
	return e
}

// tool registers a counting tool whose handler is fn. fn may be nil for
// a tool that just succeeds with empty data.
func (e *engine) tool(name string, module action.Module, fn func(ctx context.Context, params map[string]json.RawMessage) (*tooling.Result, error)) {
	e.registry.Register(tooling.Definition{
		Name:   name,
		Module: module,
		Handler: tooling.HandlerFunc(func(ctx context.Context, params map[string]json.RawMessage) (*tooling.Result, error) {
			e.mu.Lock()
			e.toolCalls[name]++
			e.mu.Unlock()
			if fn == nil {
				return &tooling.Result{Data: map[string]any{}}, nil
			}
			return fn(ctx, params)
		}),
	})
}

func (e *engine) calls(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.toolCalls[name]
}

// step builds an action step with JSON-encoded params.
func step(id int, tool string, module action.Module, params map[string]any, deps ...string) action.Step {
	raw := make(map[string]json.RawMessage, len(params))
	for k, v := range params {
		data, err := json.Marshal(v)
		if err != nil {
			panic(err)
		}
		raw[k] = data
	}
	return action.Step{
		ID:        strconv.Itoa(id),
		Tool:      tool,
		Module:    module,
		Params:    raw,
		DependsOn: deps,
	}
}

func taskIntent(steps ...action.Step) *intent.Intent {
	return &intent.Intent{
		Kind:       intent.KindTask,
		Name:       "marketing_task",
		Confidence: 0.95,
		Actions:    steps,
	}
}
