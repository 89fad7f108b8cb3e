package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resolvemeq/agent-service/internal/domain"
	"github.com/resolvemeq/agent-service/internal/events"
	"github.com/resolvemeq/agent-service/internal/repository"
	apperrors "github.com/resolvemeq/agent-service/pkg/util"
)

func TestProcessTicketAutoResolves(t *testing.T) {
	analyzer := &fakeAnalyzer{result: strongAnalysis()}
	h := newHarness(analyzer)
	ticket := openTicket(h)

	require.NoError(t, h.engine.ProcessTicket(context.Background(), ticket.ID))

	current, err := h.store.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, current.Status)
	assert.Len(t, h.store.byKind(ticket.ID, domain.InteractionAgentResponse), 1)

	_, pending := h.sched.pending(ticket.ID)
	assert.True(t, pending)
}

func TestProcessTicketLowConfidenceCriticalEscalates(t *testing.T) {
	a := strongAnalysis()
	a.Confidence = 0.45
	a.Detail.Severity = "critical"
	h := newHarness(&fakeAnalyzer{result: a})
	ticket := openTicket(h)

	require.NoError(t, h.engine.ProcessTicket(context.Background(), ticket.ID))

	current, err := h.store.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusEscalated, current.Status)
	assert.Len(t, h.store.byKind(ticket.ID, domain.InteractionEscalation), 1)
}

func TestProcessTicketUrgentTagCountsAsCritical(t *testing.T) {
	a := strongAnalysis()
	a.Confidence = 0.3
	a.Detail.Severity = "low"
	h := newHarness(&fakeAnalyzer{result: a})
	ticket := h.store.addTicket(&domain.Ticket{
		RequesterID: "user-1",
		Title:       "everything is down",
		Tags:        []string{"urgent"},
		Status:      domain.TicketStatusOpen,
	})

	require.NoError(t, h.engine.ProcessTicket(context.Background(), ticket.ID))

	current, err := h.store.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusEscalated, current.Status)
}

func TestProcessTicketAnalysisFailure(t *testing.T) {
	h := newHarness(&fakeAnalyzer{err: apperrors.NewAnalysisUnavailable(errors.New("timeout"))})
	ticket := openTicket(h)

	err := h.engine.ProcessTicket(context.Background(), ticket.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "ANALYSIS_UNAVAILABLE"))

	// ticket stays OPEN, flagged for manual review, no agent response
	current, getErr := h.store.GetByID(context.Background(), ticket.ID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.TicketStatusOpen, current.Status)
	assert.Len(t, h.store.byKind(ticket.ID, domain.InteractionPendingReview), 1)
	assert.Empty(t, h.store.byKind(ticket.ID, domain.InteractionAgentResponse))
	assert.Equal(t, 1, h.dispatcher.count(events.EventAnalysisFailed))
}

func TestProcessTicketSkipsTerminal(t *testing.T) {
	analyzer := &fakeAnalyzer{result: strongAnalysis()}
	h := newHarness(analyzer)
	ticket := h.store.addTicket(&domain.Ticket{
		RequesterID: "user-1",
		Title:       "done",
		Status:      domain.TicketStatusClosed,
	})

	require.NoError(t, h.engine.ProcessTicket(context.Background(), ticket.ID))
	assert.Zero(t, analyzer.calls)
}

func followUpFor(ticket *domain.Ticket, scheduledAt time.Time, critical bool, attempt int) domain.FollowUpTask {
	return domain.FollowUpTask{
		TicketID:     ticket.ID,
		ScheduledAt:  scheduledAt,
		DueAt:        time.Now(),
		ScheduledFor: domain.DecisionAutoResolve,
		Critical:     critical,
		Attempt:      attempt,
	}
}

func addFeedback(t *testing.T, h *harness, ticketID string, confirmed bool) {
	t.Helper()
	actor := "user-1"
	err := h.store.WithTicket(context.Background(), ticketID, func(tx repository.TicketTx) error {
		return tx.AppendInteraction(context.Background(), &domain.Interaction{
			TicketID:  ticketID,
			Kind:      domain.InteractionFeedback,
			ActorType: domain.SubjectTypeUser,
			ActorID:   &actor,
			Content:   map[string]any{"message": "update", "confirmed": confirmed},
		})
	})
	require.NoError(t, err)
}

func TestHandleFollowUpPositiveCloses(t *testing.T) {
	h := newHarness(&fakeAnalyzer{result: strongAnalysis()})
	ticket := h.store.addTicket(&domain.Ticket{
		RequesterID: "user-1",
		Title:       "VPN keeps dropping",
		Status:      domain.TicketStatusResolved,
	})
	scheduledAt := time.Now().Add(-30 * time.Minute)
	addFeedback(t, h, ticket.ID, true)

	require.NoError(t, h.engine.HandleFollowUp(context.Background(), followUpFor(ticket, scheduledAt, false, 0)))

	current, err := h.store.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, current.Status)
}

func TestHandleFollowUpNegativeReentersEngine(t *testing.T) {
	a := strongAnalysis()
	a.RecommendedAction = domain.ActionEscalate
	analyzer := &fakeAnalyzer{result: a}
	h := newHarness(analyzer)
	ticket := h.store.addTicket(&domain.Ticket{
		RequesterID: "user-1",
		Title:       "VPN keeps dropping",
		Status:      domain.TicketStatusResolved,
	})
	scheduledAt := time.Now().Add(-30 * time.Minute)
	addFeedback(t, h, ticket.ID, false)

	require.NoError(t, h.engine.HandleFollowUp(context.Background(), followUpFor(ticket, scheduledAt, false, 0)))

	// negative confirmation re-ran analysis and the new decision applied
	assert.Equal(t, 1, analyzer.calls)
	current, err := h.store.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusEscalated, current.Status)
}

func TestHandleFollowUpNegativeLowConfidenceAsksClarification(t *testing.T) {
	a := strongAnalysis()
	a.Confidence = 0.4
	a.Detail.Severity = "low"
	analyzer := &fakeAnalyzer{result: a}
	h := newHarness(analyzer)
	ticket := h.store.addTicket(&domain.Ticket{
		RequesterID: "user-1",
		Title:       "VPN keeps dropping",
		Status:      domain.TicketStatusSolutionPending,
	})
	scheduledAt := time.Now().Add(-30 * time.Minute)
	addFeedback(t, h, ticket.ID, false)

	require.NoError(t, h.engine.HandleFollowUp(context.Background(), followUpFor(ticket, scheduledAt, false, 0)))

	// the failed solution re-entered analysis; low confidence falls back to
	// asking questions instead of stranding the ticket in SOLUTION_PENDING
	assert.Equal(t, 1, analyzer.calls)
	current, err := h.store.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClarifying, current.Status)
	assert.Len(t, h.store.byKind(ticket.ID, domain.InteractionClarification), 1)
}

func TestHandleFollowUpNoReplyDefersOnce(t *testing.T) {
	h := newHarness(&fakeAnalyzer{result: strongAnalysis()})
	ticket := h.store.addTicket(&domain.Ticket{
		RequesterID: "user-1",
		Title:       "VPN keeps dropping",
		Status:      domain.TicketStatusResolved,
	})
	scheduledAt := time.Now().Add(-5 * time.Minute)

	require.NoError(t, h.engine.HandleFollowUp(context.Background(), followUpFor(ticket, scheduledAt, true, 0)))

	// still inside the grace window: rescheduled to its end, nothing else
	retry, pending := h.sched.pending(ticket.ID)
	require.True(t, pending)
	assert.Equal(t, 1, retry.Attempt)
	assert.WithinDuration(t, scheduledAt.Add(time.Hour), retry.DueAt, time.Second)

	current, err := h.store.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, current.Status)
}

func TestHandleFollowUpNoReplyCriticalEscalates(t *testing.T) {
	h := newHarness(&fakeAnalyzer{result: strongAnalysis()})
	ticket := h.store.addTicket(&domain.Ticket{
		RequesterID: "user-1",
		Title:       "server unreachable",
		Status:      domain.TicketStatusResolved,
	})
	scheduledAt := time.Now().Add(-2 * time.Hour)

	require.NoError(t, h.engine.HandleFollowUp(context.Background(), followUpFor(ticket, scheduledAt, true, 1)))

	current, err := h.store.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusEscalated, current.Status)
	assert.Len(t, h.store.byKind(ticket.ID, domain.InteractionEscalation), 1)
}

func TestHandleFollowUpNoReplyAutoCloses(t *testing.T) {
	h := newHarness(&fakeAnalyzer{result: strongAnalysis()})
	ticket := h.store.addTicket(&domain.Ticket{
		RequesterID: "user-1",
		Title:       "VPN keeps dropping",
		Status:      domain.TicketStatusResolved,
	})
	scheduledAt := time.Now().Add(-2 * time.Hour)

	require.NoError(t, h.engine.HandleFollowUp(context.Background(), followUpFor(ticket, scheduledAt, false, 1)))

	// silence on a low-severity ticket counts as confirmation
	current, err := h.store.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, current.Status)
}

func TestHandleFollowUpSkipsTerminal(t *testing.T) {
	analyzer := &fakeAnalyzer{result: strongAnalysis()}
	h := newHarness(analyzer)
	ticket := h.store.addTicket(&domain.Ticket{
		RequesterID: "user-1",
		Title:       "handled by a human",
		Status:      domain.TicketStatusEscalated,
	})

	require.NoError(t, h.engine.HandleFollowUp(context.Background(), followUpFor(ticket, time.Now().Add(-time.Hour), false, 0)))
	assert.Zero(t, analyzer.calls)
	assert.Empty(t, h.store.interactions[ticket.ID])
}

func TestProcessTicketConcurrentTriggersApplyOnce(t *testing.T) {
	h := newHarness(&fakeAnalyzer{result: strongAnalysis()})
	ticket := openTicket(h)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.engine.ProcessTicket(context.Background(), ticket.ID))
		}()
	}
	wg.Wait()

	// simultaneous triggers serialize on the ticket lock: one decision
	// applied, one follow-up, one event, no duplicate interactions
	current, err := h.store.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, current.Status)
	assert.Len(t, h.store.byKind(ticket.ID, domain.InteractionAgentResponse), 1)
	assert.Equal(t, 1, h.dispatcher.count(events.EventAgentDecision))

	_, pending := h.sched.pending(ticket.ID)
	assert.True(t, pending)
}

func TestProcessTicketAndFollowUpDoNotInterleave(t *testing.T) {
	h := newHarness(&fakeAnalyzer{result: strongAnalysis()})
	ticket := h.store.addTicket(&domain.Ticket{
		RequesterID: "user-1",
		Title:       "VPN keeps dropping",
		Status:      domain.TicketStatusResolved,
	})
	scheduledAt := time.Now().Add(-30 * time.Minute)
	addFeedback(t, h, ticket.ID, true)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, h.engine.ProcessTicket(context.Background(), ticket.ID))
	}()
	go func() {
		defer wg.Done()
		assert.NoError(t, h.engine.HandleFollowUp(context.Background(), followUpFor(ticket, scheduledAt, false, 0)))
	}()
	wg.Wait()

	// whichever order the lock grants, the confirmation closes the ticket
	// exactly once and the history stays intact
	current, err := h.store.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, current.Status)
	assert.Len(t, h.store.byKind(ticket.ID, domain.InteractionFollowUp), 1)
	assert.Len(t, h.store.byKind(ticket.ID, domain.InteractionFeedback), 1)
	assert.Zero(t, h.dispatcher.count(events.EventAgentDecision))
}
