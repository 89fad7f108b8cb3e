package agent

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/resolvemeq/agent-service/internal/analysis"
	"github.com/resolvemeq/agent-service/internal/config"
	"github.com/resolvemeq/agent-service/internal/domain"
	"github.com/resolvemeq/agent-service/internal/events"
	"github.com/resolvemeq/agent-service/internal/locking"
	"github.com/resolvemeq/agent-service/internal/observability"
	"github.com/resolvemeq/agent-service/internal/repository"
	apperrors "github.com/resolvemeq/agent-service/pkg/util"
)

// promauto registers against the default registry; one set per test binary.
var testMetrics = observability.NewMetrics()

func testAgentConfig() config.AgentConfig {
	return config.AgentConfig{
		HighConfidence:         0.8,
		MediumConfidence:       0.6,
		MinSuccessProbability:  0.8,
		FollowUpBufferMinutes:  15,
		FollowUpDefaultMinutes: 30,
		GraceWindowMinutes:     60,
		HistoryWindow:          20,
		DefaultTeam:            "IT Support",
		Workers:                2,
		PollIntervalSeconds:    1,
		LockTTLSeconds:         5,
		ScheduleRetries:        1,
	}
}

// memStore is an in-memory TicketStore and InteractionRepository with the
// same atomicity contract as the pgx implementation: writes made inside
// WithTicket apply together when fn succeeds and are discarded otherwise.
type memStore struct {
	mu           sync.Mutex
	tickets      map[string]*domain.Ticket
	interactions map[string][]domain.Interaction
	commitErr    error
}

func newMemStore() *memStore {
	return &memStore{
		tickets:      make(map[string]*domain.Ticket),
		interactions: make(map[string][]domain.Interaction),
	}
}

func (s *memStore) addTicket(ticket *domain.Ticket) *domain.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	now := time.Now()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	s.tickets[ticket.ID] = ticket
	return ticket
}

func (s *memStore) Create(ctx context.Context, ticket *domain.Ticket) error {
	s.addTicket(ticket)
	return nil
}

func (s *memStore) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[id]
	if !ok {
		return nil, apperrors.NewNotFound("ticket", nil)
	}
	clone := *ticket
	return &clone, nil
}

func (s *memStore) GetByExternalKey(ctx context.Context, key string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ticket := range s.tickets {
		if ticket.ExternalKey == key {
			clone := *ticket
			return &clone, nil
		}
	}
	return nil, apperrors.NewNotFound("ticket", nil)
}

func (s *memStore) ListWithFilter(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []domain.Ticket
	for _, ticket := range s.tickets {
		if filter.RequesterID != nil && ticket.RequesterID != *filter.RequesterID {
			continue
		}
		result = append(result, *ticket)
	}
	return result, nil
}

func (s *memStore) WithTicket(ctx context.Context, ticketID string, fn func(tx repository.TicketTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[ticketID]
	if !ok {
		return apperrors.NewNotFound("ticket", nil)
	}

	work := *ticket
	tx := &memTx{ticket: &work}
	if err := fn(tx); err != nil {
		return err
	}
	if s.commitErr != nil {
		return s.commitErr
	}

	work.UpdatedAt = time.Now()
	*ticket = work
	s.interactions[ticketID] = append(s.interactions[ticketID], tx.appended...)
	return nil
}

func (s *memStore) ListByTicket(ctx context.Context, ticketID string, limit int) ([]domain.Interaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.interactions[ticketID]
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return append([]domain.Interaction{}, entries...), nil
}

func (s *memStore) LatestByKind(ctx context.Context, ticketID string, kind domain.InteractionKind, after time.Time) (*domain.Interaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.interactions[ticketID]
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Kind == kind && entries[i].CreatedAt.After(after) {
			clone := entries[i]
			return &clone, nil
		}
	}
	return nil, nil
}

func (s *memStore) byKind(ticketID string, kind domain.InteractionKind) []domain.Interaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []domain.Interaction
	for _, entry := range s.interactions[ticketID] {
		if entry.Kind == kind {
			result = append(result, entry)
		}
	}
	return result
}

type memTx struct {
	ticket   *domain.Ticket
	appended []domain.Interaction
}

func (tx *memTx) Ticket() *domain.Ticket { return tx.ticket }

func (tx *memTx) UpdateStatus(ctx context.Context, status domain.TicketStatus) error {
	tx.ticket.Status = status
	if status == domain.TicketStatusClosed {
		now := time.Now()
		tx.ticket.ClosedAt = &now
	}
	return nil
}

func (tx *memTx) SetAssignment(ctx context.Context, team, assignee *string) error {
	tx.ticket.AssignedTeam = team
	tx.ticket.AssigneeID = assignee
	return nil
}

func (tx *memTx) AppendInteraction(ctx context.Context, interaction *domain.Interaction) error {
	entry := *interaction
	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now()
	tx.appended = append(tx.appended, entry)
	return nil
}

// fakeScheduler mirrors the Redis backend's replace-per-ticket semantics.
type fakeScheduler struct {
	mu          sync.Mutex
	tasks       map[string]domain.FollowUpTask
	cancelled   []string
	scheduleErr error
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{tasks: make(map[string]domain.FollowUpTask)}
}

func (f *fakeScheduler) Schedule(ctx context.Context, task domain.FollowUpTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scheduleErr != nil {
		return f.scheduleErr
	}
	f.tasks[task.TicketID] = task
	return nil
}

func (f *fakeScheduler) Cancel(ctx context.Context, ticketID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tasks, ticketID)
	f.cancelled = append(f.cancelled, ticketID)
	return nil
}

func (f *fakeScheduler) pending(ticketID string) (domain.FollowUpTask, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[ticketID]
	return task, ok
}

type fakeAnalyzer struct {
	mu     sync.Mutex
	result *domain.Analysis
	err    error
	calls  int
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, ticketCtx analysis.TicketContext) (*domain.Analysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	clone := *f.result
	return &clone, nil
}

// countingDispatcher wraps the in-memory dispatcher with per-type counters.
type countingDispatcher struct {
	events.Dispatcher
	mu     sync.Mutex
	counts map[events.EventType]int
	last   map[events.EventType]events.Event
}

func newCountingDispatcher() *countingDispatcher {
	return &countingDispatcher{
		Dispatcher: events.NewInMemoryDispatcher(),
		counts:     make(map[events.EventType]int),
		last:       make(map[events.EventType]events.Event),
	}
}

func (d *countingDispatcher) Publish(ctx context.Context, event events.Event) error {
	d.mu.Lock()
	d.counts[event.Type]++
	d.last[event.Type] = event
	d.mu.Unlock()
	return d.Dispatcher.Publish(ctx, event)
}

func (d *countingDispatcher) count(eventType events.EventType) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counts[eventType]
}

type harness struct {
	store      *memStore
	analyzer   *fakeAnalyzer
	sched      *fakeScheduler
	dispatcher *countingDispatcher
	executor   *Executor
	engine     *Engine
}

func newHarness(analyzer *fakeAnalyzer) *harness {
	cfg := testAgentConfig()
	store := newMemStore()
	sched := newFakeScheduler()
	dispatcher := newCountingDispatcher()
	logger := zap.NewNop()

	executor := NewExecutor(store, sched, dispatcher, testMetrics, logger, cfg)
	engine := NewEngine(cfg, EngineDependencies{
		Store:        store,
		Interactions: store,
		Analyzer:     analyzer,
		Executor:     executor,
		Scheduler:    sched,
		Locker:       locking.NewLocalLocker(),
		Dispatcher:   dispatcher,
		Metrics:      testMetrics,
		Logger:       logger,
	})
	return &harness{
		store:      store,
		analyzer:   analyzer,
		sched:      sched,
		dispatcher: dispatcher,
		executor:   executor,
		engine:     engine,
	}
}
