package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"

	"greevil/internal/core"
)

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{10, 30 * time.Second},
		{64, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			if got := exponentialBackoff(tt.attempt); got != tt.expected {
				t.Errorf("exponentialBackoff(%d) = %v, want %v", tt.attempt, got, tt.expected)
			}
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"unexpected EOF", errors.New("unexpected EOF"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"amqp closed", fmt.Errorf("consume: %w", amqp091.ErrClosed), true},
		{"other error", errors.New("invalid input"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isConnectionError(tt.err); got != tt.expected {
				t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestClient_CircuitBreaker(t *testing.T) {
	client := &Client{exchangeName: "test_exchange", queueName: "test_queue"}

	t.Run("initial state is closed", func(t *testing.T) {
		if client.isCircuitOpen() {
			t.Error("circuit breaker should be closed initially")
		}
	})

	t.Run("failures open the circuit", func(t *testing.T) {
		for i := 0; i < maxFailures; i++ {
			client.recordFailure()
		}
		if !client.isCircuitOpen() {
			t.Error("circuit breaker should be open after max failures")
		}
	})

	t.Run("half-open after timeout", func(t *testing.T) {
		client.lastFailure = time.Now().Add(-openTimeout - time.Second)
		if client.isCircuitOpen() {
			t.Error("circuit should allow a trial call after the timeout")
		}
		if atomic.LoadInt32(&client.state) != StateHalfOpen {
			t.Error("state should be half-open")
		}
	})

	t.Run("failure while half-open reopens", func(t *testing.T) {
		client.recordFailure()
		if !client.isCircuitOpen() {
			t.Error("circuit should reopen after a failed trial")
		}
	})

	t.Run("success closes", func(t *testing.T) {
		client.recordSuccess()
		if client.isCircuitOpen() || atomic.LoadInt64(&client.failureCount) != 0 {
			t.Error("success should reset the breaker")
		}
	})
}

func TestPublishShortCircuits(t *testing.T) {
	client := &Client{exchangeName: "test_exchange", queueName: "test_queue"}
	event := NewExpenseEvent(ExpenseAdded, core.Expense{ID: "e1"})

	atomic.StoreInt32(&client.state, StateOpen)
	client.lastFailure = time.Now()
	if err := client.Publish(context.Background(), event); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}

	client.recordSuccess()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.Publish(ctx, event); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestExpenseEventRoundTrip(t *testing.T) {
	e := core.Expense{
		ID: "e1", UserID: "a@x.io", Payor: "b@x.io",
		Amount: decimal.RequireFromString("12.50"), Date: core.NewDate(2024, 3, 1), Description: "pizza",
	}
	event := NewExpenseEvent(ExpenseUpdated, e)
	if event.Timestamp.IsZero() {
		t.Fatal("timestamp not set")
	}
	body, err := event.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	for _, key := range []string{`"type":"expense.updated"`, `"expense_id":"e1"`, `"amount":"12.5"`, `"date":"2024-03-01"`} {
		if !strings.Contains(string(body), key) {
			t.Errorf("body %s missing %s", body, key)
		}
	}
	got, err := ExpenseEventFromJSON(body)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if got.ExpenseID != "e1" || got.Payor != "b@x.io" || !got.Timestamp.Equal(event.Timestamp) {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestExpenseEventFromJSONRejects(t *testing.T) {
	for _, body := range []string{
		`{"type": 1}`,
		`{"type": "expense.archived", "expense_id": "e1"}`,
		`{"type": "expense.added"}`,
		`not json`,
	} {
		if _, err := ExpenseEventFromJSON([]byte(body)); !errors.Is(err, ErrInvalidEvent) {
			t.Errorf("%s: expected ErrInvalidEvent, got %v", body, err)
		}
	}
}

type fakeAck struct {
	acked, nacked, requeued bool
}

func (f *fakeAck) Ack(bool) error { f.acked = true; return nil }

func (f *fakeAck) Nack(_, requeue bool) error {
	f.nacked, f.requeued = true, requeue
	return nil
}

func TestDispatch(t *testing.T) {
	valid := []byte(`{"type":"expense.deleted","expense_id":"e1"}`)
	tests := []struct {
		name       string
		body       []byte
		handlerErr error
		want       fakeAck
	}{
		{"handled", valid, nil, fakeAck{acked: true}},
		{"handler fails requeues", valid, errors.New("sheet down"), fakeAck{nacked: true, requeued: true}},
		{"malformed dropped", []byte(`{}`), nil, fakeAck{nacked: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ack fakeAck
			dispatch(context.Background(), tt.body, &ack, func(_ context.Context, e *ExpenseEvent) error {
				if e.ExpenseID != "e1" {
					t.Errorf("unexpected event %+v", e)
				}
				return tt.handlerErr
			})
			if ack != tt.want {
				t.Errorf("ack = %+v, want %+v", ack, tt.want)
			}
		})
	}
}
