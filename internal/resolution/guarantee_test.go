package resolution

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/OwonaMedia/support-engine/internal/domain"
	"github.com/OwonaMedia/support-engine/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	mu         sync.Mutex
	tickets    map[string]*domain.Ticket
	messages   []*domain.TicketMessage
	created    []*domain.Ticket
	assigned   []string
	failStatus map[domain.TicketStatus]error
}

func newFakeRepo(ts ...*domain.Ticket) *fakeRepo {
	r := &fakeRepo{tickets: map[string]*domain.Ticket{}, failStatus: map[domain.TicketStatus]error{}}
	for _, t := range ts {
		r.tickets[t.ID] = t
	}
	return r
}

func (r *fakeRepo) Create(_ context.Context, t *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, t)
	r.tickets[t.ID] = t
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return nil, errors.New("ticket not found")
	}
	return t, nil
}

func (r *fakeRepo) ListByStatus(_ context.Context, _ ...domain.TicketStatus) ([]*domain.Ticket, error) {
	return nil, nil
}

func (r *fakeRepo) UpdateStatus(_ context.Context, id string, status domain.TicketStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failStatus[status]; err != nil {
		return err
	}
	if t, ok := r.tickets[id]; ok {
		t.Status = status
	}
	return nil
}

func (r *fakeRepo) AssignAgent(_ context.Context, id, agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assigned = append(r.assigned, agentID)
	if t, ok := r.tickets[id]; ok {
		t.AssignedAgent = &agentID
	}
	return nil
}

func (r *fakeRepo) UpdateMetadata(_ context.Context, id string, metadata map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tickets[id]; ok {
		t.Metadata = metadata
	}
	return nil
}

func (r *fakeRepo) AppendMessage(_ context.Context, msg *domain.TicketMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return nil
}

func (r *fakeRepo) HasRecentMessage(_ context.Context, _, _ string, _ time.Time) (bool, error) {
	return false, nil
}

func (r *fakeRepo) ListMessages(_ context.Context, _ string) ([]*domain.TicketMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.messages, nil
}

func (r *fakeRepo) customerMessages() []*domain.TicketMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.TicketMessage
	for _, m := range r.messages {
		if !m.InternalOnly {
			out = append(out, m)
		}
	}
	return out
}

type recordingSender struct {
	mu       sync.Mutex
	messages []notify.Message
	err      error
}

func (s *recordingSender) Send(_ context.Context, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.messages = append(s.messages, msg)
	return nil
}

func (s *recordingSender) sent() []notify.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notify.Message(nil), s.messages...)
}

func testTicket(updatedAgo time.Duration) *domain.Ticket {
	return &domain.Ticket{
		ID:          "ticket-1",
		Title:       "Payment fails",
		Description: "Stripe key invalid",
		Priority:    domain.TicketPriorityHigh,
		Status:      domain.TicketStatusNew,
		UpdatedAt:   time.Now().Add(-updatedAgo),
	}
}

func newGuarantee(repo *fakeRepo, sender *recordingSender) *Guarantee {
	return NewGuarantee(repo, sender, 3, 30*time.Minute)
}

func TestEnsureResolution_AutoFixSuccess(t *testing.T) {
	repo := newFakeRepo(testTicket(0))
	sender := &recordingSender{}
	g := newGuarantee(repo, sender)

	res := g.EnsureResolution(context.Background(), testTicket(0), &domain.AutoFixResult{Success: true}, 0)

	assert.True(t, res.Resolved)
	assert.Equal(t, domain.TicketStatusResolved, res.Status)
	assert.Empty(t, sender.sent())
	assert.Empty(t, repo.messages)
}

func TestEnsureResolution_FreshTicketStopsAtManualReview(t *testing.T) {
	ticket := testTicket(0)
	repo := newFakeRepo(ticket)
	sender := &recordingSender{}
	g := newGuarantee(repo, sender)

	res := g.EnsureResolution(context.Background(), ticket, nil, 0)

	assert.False(t, res.Resolved)
	assert.Equal(t, domain.TicketStatusNeedsManualReview, res.Status)
	assert.Equal(t, domain.TicketStatusNeedsManualReview, ticket.Status)
	require.NotNil(t, ticket.AssignedAgent)
	assert.Equal(t, "escalation-agent", *ticket.AssignedAgent)

	// Exactly one notification, from the manual escalation level.
	msgs := sender.sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, "escalation", msgs[0].Action)
	assert.Contains(t, msgs[0].Message, "manual intervention")

	// No customer-visible message yet; escalation is not terminal.
	assert.Empty(t, repo.customerMessages())
	require.Len(t, repo.messages, 2)
	assert.Contains(t, repo.messages[0].Message, "Alternative resolution strategies")
	assert.Contains(t, repo.messages[1].Message, "operator has been notified")
}

func TestEnsureResolution_AttemptsExhaustedSkipsAlternativeStrategies(t *testing.T) {
	ticket := testTicket(0)
	repo := newFakeRepo(ticket)
	g := newGuarantee(repo, &recordingSender{})

	g.EnsureResolution(context.Background(), ticket, nil, 3)

	for _, m := range repo.messages {
		assert.NotContains(t, m.Message, "Alternative resolution strategies")
	}
}

func TestEnsureResolution_CooldownElapsedAppliesWorkaround(t *testing.T) {
	ticket := testTicket(40 * time.Minute)
	repo := newFakeRepo(ticket)
	sender := &recordingSender{}
	g := newGuarantee(repo, sender)

	res := g.EnsureResolution(context.Background(), ticket, &domain.AutoFixResult{Success: false, Error: "patch rejected"}, 3)

	assert.True(t, res.Resolved)
	assert.Equal(t, domain.TicketStatusResolvedWithWorkaround, res.Status)
	assert.Equal(t, domain.TicketStatusResolvedWithWorkaround, ticket.Status)

	// The timeout level fires a second, higher-urgency notification.
	msgs := sender.sent()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Message, "URGENT")

	custMsgs := repo.customerMessages()
	require.Len(t, custMsgs, 1)
	assert.Contains(t, custMsgs[0].Message, "temporarily worked around")
	assert.Equal(t, domain.AuthorTypeSupport, custMsgs[0].AuthorType)

	require.Len(t, repo.created, 1)
	followUp := repo.created[0]
	assert.NotEmpty(t, followUp.ID)
	assert.NotEqual(t, ticket.ID, followUp.ID)
	require.NotNil(t, followUp.Category)
	assert.Equal(t, "follow-up", *followUp.Category)
	assert.Equal(t, domain.TicketStatusNew, followUp.Status)
	assert.Equal(t, domain.TicketPriorityMedium, followUp.Priority)
	assert.Equal(t, ticket.ID, followUp.Metadata["originalTicketId"])
	assert.True(t, strings.Contains(followUp.Title, "Follow-up"))
}

func TestEnsureResolution_FinalGuaranteeWhenWorkaroundFails(t *testing.T) {
	ticket := testTicket(time.Hour)
	repo := newFakeRepo(ticket)
	repo.failStatus[domain.TicketStatusResolvedWithWorkaround] = errors.New("write denied")
	sender := &recordingSender{}
	g := newGuarantee(repo, sender)

	res := g.EnsureResolution(context.Background(), ticket, nil, 3)

	assert.True(t, res.Resolved, "level six terminates unconditionally")
	assert.Equal(t, domain.TicketStatusResolvedManualRequired, res.Status)
	assert.Equal(t, domain.TicketStatusResolvedManualRequired, ticket.Status)

	custMsgs := repo.customerMessages()
	require.Len(t, custMsgs, 1)
	assert.Contains(t, custMsgs[0].Message, "expert team")

	var finalNotified bool
	for _, m := range sender.sent() {
		if strings.Contains(m.Message, "FINAL ESCALATION") {
			finalNotified = true
		}
	}
	assert.True(t, finalNotified)
}

func TestEnsureResolution_NotificationOutageDoesNotBlock(t *testing.T) {
	ticket := testTicket(time.Hour)
	repo := newFakeRepo(ticket)
	repo.failStatus[domain.TicketStatusResolvedWithWorkaround] = errors.New("write denied")
	g := newGuarantee(repo, &recordingSender{err: errors.New("webhook down")})

	res := g.EnsureResolution(context.Background(), ticket, nil, 3)

	assert.True(t, res.Resolved)
	assert.Equal(t, domain.TicketStatusResolvedManualRequired, res.Status)
}

func TestCheckManualResolution(t *testing.T) {
	resolved := testTicket(0)
	resolved.Status = domain.TicketStatusResolvedWithWorkaround
	open := testTicket(0)
	open.ID = "ticket-2"
	open.Status = domain.TicketStatusNeedsManualReview

	repo := newFakeRepo(resolved, open)
	g := newGuarantee(repo, &recordingSender{})

	done, err := g.CheckManualResolution(context.Background(), resolved.ID)
	require.NoError(t, err)
	assert.True(t, done)

	done, err = g.CheckManualResolution(context.Background(), open.ID)
	require.NoError(t, err)
	assert.False(t, done)

	_, err = g.CheckManualResolution(context.Background(), "missing")
	require.Error(t, err)
}
