package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-qualitygate/internal/domain"
)

var testMessages = []domain.Message{
	domain.SystemMessage("You are a helpful assistant."),
	domain.UserMessage("How far is the Moon?"),
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingBreakerMetrics struct {
	mu        sync.Mutex
	states    []CircuitBreakerState
	trips     int
	successes int
	failures  int
}

func (m *recordingBreakerMetrics) RecordState(s CircuitBreakerState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, s)
}

func (m *recordingBreakerMetrics) RecordTrip() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trips++
}

func (m *recordingBreakerMetrics) RecordSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.successes++
}

func (m *recordingBreakerMetrics) RecordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

func TestCircuitBreakerMiddleware_AllowsRequestsWhenClosed(t *testing.T) {
	mock := NewMockCoreLLM()
	wrapped := CircuitBreakerMiddleware(3, time.Minute)(mock)

	response, tokensIn, tokensOut, err := wrapped.DoRequest(context.Background(), testMessages, nil)

	require.NoError(t, err)
	assert.Equal(t, "test response", response)
	assert.Equal(t, 10, tokensIn)
	assert.Equal(t, 20, tokensOut)
	assert.Equal(t, 1, mock.GetCallCount())
	assert.Equal(t, testMessages, mock.GetLastMessages(), "messages should reach the provider unchanged")
}

func TestCircuitBreakerMiddleware_OpensAfterMaxFailures(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Error = errors.New("service error")
	wrapped := CircuitBreakerMiddleware(2, time.Minute)(mock)
	ctx := context.Background()

	_, _, _, err1 := wrapped.DoRequest(ctx, testMessages, nil)
	_, _, _, err2 := wrapped.DoRequest(ctx, testMessages, nil)
	_, _, _, err3 := wrapped.DoRequest(ctx, testMessages, nil)

	assert.EqualError(t, err1, "service error")
	assert.EqualError(t, err2, "service error")
	assert.ErrorIs(t, err3, ErrCircuitOpen)
	assert.Equal(t, 2, mock.GetCallCount(), "open circuit must not reach the provider")
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	tests := []struct {
		name       string
		probeErr   error
		wantState  CircuitBreakerState
		nextResult error
	}{
		{
			name:       "successful probe closes the circuit",
			probeErr:   nil,
			wantState:  StateClosed,
			nextResult: nil,
		},
		{
			name:       "failed probe reopens the circuit",
			probeErr:   errors.New("still down"),
			wantState:  StateOpen,
			nextResult: ErrCircuitOpen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
			cb := NewCircuitBreaker(1, 30*time.Second)
			cb.now = clock.Now

			require.Error(t, cb.Call(func() error { return errors.New("boom") }))
			assert.Equal(t, StateOpen, cb.GetState())

			clock.Advance(31 * time.Second)
			err := cb.Call(func() error { return tt.probeErr })
			assert.Equal(t, tt.probeErr, err)
			assert.Equal(t, tt.wantState, cb.GetState())

			err = cb.Call(func() error { return nil })
			if tt.nextResult == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.nextResult)
			}
		})
	}
}

func TestCircuitBreaker_HalfOpenAdmitsSingleProbe(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	cb := NewCircuitBreaker(1, time.Second)
	cb.now = clock.Now

	require.Error(t, cb.Call(func() error { return errors.New("boom") }))
	clock.Advance(2 * time.Second)

	probeStarted := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Call(func() error {
			close(probeStarted)
			<-release
			return nil
		})
	}()

	<-probeStarted
	assert.ErrorIs(t, cb.Call(func() error { return nil }), ErrCircuitOpen,
		"a second request during the probe should be rejected")

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_CancellationDoesNotTrip(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute)

	err := cb.Call(func() error { return context.Canceled })

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute)
	fail := func() error { return errors.New("boom") }

	require.Error(t, cb.Call(fail))
	require.NoError(t, cb.Call(func() error { return nil }))
	require.Error(t, cb.Call(fail))

	assert.Equal(t, StateClosed, cb.GetState(), "failures must be consecutive to open the circuit")
}

func TestCircuitBreakerMiddlewareWithMetrics(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.FailUntilAttempt = 1
	metrics := &recordingBreakerMetrics{}
	wrapped := CircuitBreakerMiddlewareWithMetrics(1, time.Hour, metrics)(mock)
	ctx := context.Background()

	_, _, _, err := wrapped.DoRequest(ctx, testMessages, nil)
	require.Error(t, err)
	_, _, _, err = wrapped.DoRequest(ctx, testMessages, nil)
	require.ErrorIs(t, err, ErrCircuitOpen)

	assert.Equal(t, 1, metrics.failures)
	assert.Equal(t, 1, metrics.trips)
	assert.Equal(t, 0, metrics.successes)
	assert.Equal(t, []CircuitBreakerState{StateOpen, StateOpen}, metrics.states)
}

func TestCircuitBreakerState_String(t *testing.T) {
	tests := []struct {
		state CircuitBreakerState
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half_open"},
		{CircuitBreakerState(99), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.String())
		})
	}
}

func TestCircuitBreakerMiddleware_IsolatedPerClient(t *testing.T) {
	mw := CircuitBreakerMiddleware(1, time.Hour)
	failing := NewMockCoreLLM()
	failing.Error = errors.New("down")
	healthy := NewMockCoreLLM()
	failingClient, healthyClient := mw(failing), mw(healthy)

	for range 3 {
		_, _, _, err := failingClient.DoRequest(context.Background(), testMessages, nil)
		require.Error(t, err)
	}
	_, _, _, err := failingClient.DoRequest(context.Background(), testMessages, nil)
	require.ErrorIs(t, err, ErrCircuitOpen)

	_, _, _, err = healthyClient.DoRequest(context.Background(), testMessages, nil)
	require.NoError(t, err, "an open circuit on one client must not reject another")
	assert.Equal(t, 1, healthy.GetCallCount())
}
