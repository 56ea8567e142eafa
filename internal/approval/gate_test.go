package approval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/OwonaMedia/support-engine/internal/domain"
	"github.com/OwonaMedia/support-engine/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	mu       sync.Mutex
	pending  bool
	response *domain.ApprovalResponse
	markErr  error
	marked   int
}

func (f *fakeRepo) HasPendingRequest(_ context.Context, _ string, _ domain.InstructionType) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending, nil
}

func (f *fakeRepo) GetResponse(_ context.Context, _ string, _ domain.InstructionType) (*domain.ApprovalResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.response, nil
}

func (f *fakeRepo) MarkRequested(_ context.Context, _ string, _ domain.InstructionType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked++
	return f.markErr
}

func (f *fakeRepo) SaveResponse(_ context.Context, resp *domain.ApprovalResponse, _ domain.InstructionType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.response = resp
	return nil
}

func (f *fakeRepo) setResponse(resp *domain.ApprovalResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.response = resp
}

type fakeSender struct {
	mu       sync.Mutex
	messages []notify.Message
	err      error
}

func (f *fakeSender) Send(_ context.Context, msg notify.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeSender) sent() []notify.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notify.Message(nil), f.messages...)
}

func testRequest() domain.ApprovalRequest {
	return domain.ApprovalRequest{
		TicketID:        "ticket-1",
		InstructionType: domain.InstructionRemoteCommand,
		Description:     "restart the worker process",
		Command:         "pm2 restart worker",
	}
}

func TestGate_SendRequest(t *testing.T) {
	repo := &fakeRepo{}
	sender := &fakeSender{}
	gate := NewGate(repo, sender, time.Minute, time.Millisecond)

	err := gate.SendRequest(context.Background(), testRequest())
	require.NoError(t, err)

	msgs := sender.sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, "approval_request", msgs[0].Action)
	assert.Equal(t, "ticket-1", msgs[0].TicketID)
	assert.Equal(t, "remote-command", msgs[0].InstructionType)
	assert.Equal(t, "pm2 restart worker", msgs[0].Command)
	assert.Equal(t, 1, repo.marked)
}

func TestGate_SendRequestDeduplicatesPending(t *testing.T) {
	repo := &fakeRepo{pending: true}
	sender := &fakeSender{}
	gate := NewGate(repo, sender, time.Minute, time.Millisecond)

	err := gate.SendRequest(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Empty(t, sender.sent(), "pending request must not be dispatched again")
	assert.Zero(t, repo.marked)
}

func TestGate_SendRequestSkipsWhenAlreadyAnswered(t *testing.T) {
	repo := &fakeRepo{response: &domain.ApprovalResponse{TicketID: "ticket-1", Approved: true}}
	sender := &fakeSender{}
	gate := NewGate(repo, sender, time.Minute, time.Millisecond)

	err := gate.SendRequest(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Empty(t, sender.sent())
}

func TestGate_SendRequestDispatchErrorPropagates(t *testing.T) {
	repo := &fakeRepo{}
	sender := &fakeSender{err: errors.New("webhook down")}
	gate := NewGate(repo, sender, time.Minute, time.Millisecond)

	err := gate.SendRequest(context.Background(), testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDispatchFailed)
	assert.Zero(t, repo.marked, "marker must not be written when dispatch fails")
}

func TestGate_SendRequestMarkerFailureIsNotFatal(t *testing.T) {
	repo := &fakeRepo{markErr: errors.New("insert failed")}
	sender := &fakeSender{}
	gate := NewGate(repo, sender, time.Minute, time.Millisecond)

	err := gate.SendRequest(context.Background(), testRequest())
	require.NoError(t, err)
	require.Len(t, sender.sent(), 1)
}

func TestGate_WaitForApprovalCachedResponse(t *testing.T) {
	repo := &fakeRepo{response: &domain.ApprovalResponse{TicketID: "ticket-1", Approved: true}}
	gate := NewGate(repo, &fakeSender{}, time.Minute, time.Millisecond)

	resp, err := gate.WaitForApproval(context.Background(), "ticket-1", domain.InstructionRemoteCommand, 50*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.Approved)
}

func TestGate_WaitForApprovalPollsUntilAnswered(t *testing.T) {
	repo := &fakeRepo{}
	gate := NewGate(repo, &fakeSender{}, time.Minute, time.Millisecond)

	go func() {
		time.Sleep(10 * time.Millisecond)
		repo.setResponse(&domain.ApprovalResponse{TicketID: "ticket-1", Approved: false, Timestamp: time.Now()})
	}()

	resp, err := gate.WaitForApproval(context.Background(), "ticket-1", domain.InstructionDatastoreMigration, time.Second)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.False(t, resp.Approved)
}

func TestGate_WaitForApprovalTimeout(t *testing.T) {
	repo := &fakeRepo{}
	gate := NewGate(repo, &fakeSender{}, time.Minute, time.Millisecond)

	resp, err := gate.WaitForApproval(context.Background(), "ticket-1", domain.InstructionRemoteCommand, 20*time.Millisecond)
	require.NoError(t, err, "timeout is not an error")
	assert.Nil(t, resp, "timeout yields a nil response")
}

func TestGate_WaitForApprovalContextCancelled(t *testing.T) {
	repo := &fakeRepo{}
	gate := NewGate(repo, &fakeSender{}, time.Minute, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	_, err := gate.WaitForApproval(ctx, "ticket-1", domain.InstructionRemoteCommand, time.Second)
	require.ErrorIs(t, err, context.Canceled)
}

func TestGate_SendResultSwallowsErrors(t *testing.T) {
	sender := &fakeSender{err: errors.New("webhook down")}
	gate := NewGate(&fakeRepo{}, sender, time.Minute, time.Millisecond)

	// Must not panic or block; errors are logged only.
	gate.SendResult(context.Background(), "ticket-1", domain.InstructionRemoteCommand, true, "done")
}
