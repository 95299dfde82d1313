package event

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Iron-Ham/tinytree/internal/logging"
)

var testRun = Run{RequestID: "U1_1700000000000", UserID: "U1", ChannelID: "C1"}

func TestBus_Subscribe(t *testing.T) {
	bus := NewBus()

	called := false
	id := bus.Subscribe(TypeRunProgress, func(e Event) {
		called = true
	})

	if id == "" {
		t.Error("Subscribe should return a non-empty ID")
	}
	if bus.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", bus.SubscriptionCount())
	}
	if called {
		t.Error("handler called before any publish")
	}
}

func TestBus_PublishDeliversTypedEvent(t *testing.T) {
	bus := NewBus()

	var received ProgressEvent
	bus.Subscribe(TypeRunProgress, func(e Event) {
		received = e.(ProgressEvent)
	})

	bus.Publish(NewProgressEvent(testRun, "build", "Building").WithDetails(map[string]string{"k": "v"}))

	if received.RequestID != testRun.RequestID || received.Phase != "build" || received.Message != "Building" {
		t.Errorf("received = %+v", received)
	}
	if received.Details["k"] != "v" {
		t.Errorf("Details = %v", received.Details)
	}
	if received.Timestamp().IsZero() {
		t.Error("Timestamp() is zero")
	}
}

func TestBus_OrderSpecificBeforeWildcard(t *testing.T) {
	bus := NewBus()

	var order []string
	bus.SubscribeAll(func(e Event) { order = append(order, "all-1") })
	bus.Subscribe(TypeRunAccepted, func(e Event) { order = append(order, "specific-1") })
	bus.Subscribe(TypeRunAccepted, func(e Event) { order = append(order, "specific-2") })
	bus.SubscribeAll(func(e Event) { order = append(order, "all-2") })
	bus.Subscribe(TypeRunCompleted, func(e Event) { order = append(order, "other") })

	bus.Publish(NewRunAcceptedEvent(testRun, "light", "todo", "idea"))

	want := "specific-1,specific-2,all-1,all-2"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("order = %s, want %s", got, want)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()

	var calls atomic.Int32
	first := bus.Subscribe(TypeRunProgress, func(e Event) { calls.Add(1) })
	bus.Subscribe(TypeRunProgress, func(e Event) { calls.Add(10) })

	if !bus.Unsubscribe(first) {
		t.Fatal("Unsubscribe() = false for a live subscription")
	}
	if bus.Unsubscribe(first) {
		t.Error("Unsubscribe() = true for a removed subscription")
	}

	bus.Publish(NewProgressEvent(testRun, "plan", "x"))
	if calls.Load() != 10 {
		t.Errorf("calls = %d, want only the remaining handler", calls.Load())
	}
}

func TestBus_PanickingHandlerIsIsolated(t *testing.T) {
	var buf bytes.Buffer
	bus := NewBus(WithLogger(logging.NewWriterLogger(&buf, logging.LevelError)))

	reached := false
	bus.Subscribe(TypeRunCompleted, func(e Event) { panic("boom") })
	bus.Subscribe(TypeRunCompleted, func(e Event) { reached = true })

	bus.Publish(NewRunCompletedEvent(testRun))

	if !reached {
		t.Error("handler after the panicking one was not called")
	}
	if !strings.Contains(buf.String(), "event handler panicked") || !strings.Contains(buf.String(), "boom") {
		t.Errorf("panic not logged: %s", buf.String())
	}
}

func TestBus_ConcurrentPublishAndSubscribe(t *testing.T) {
	bus := NewBus()

	var count atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			bus.Subscribe(TypeRunProgress, func(e Event) { count.Add(1) })
		}()
		go func() {
			defer wg.Done()
			bus.Publish(NewProgressEvent(testRun, "plan", "x"))
		}()
	}
	wg.Wait()

	if bus.SubscriptionCount() != 10 {
		t.Errorf("SubscriptionCount() = %d", bus.SubscriptionCount())
	}
}

func TestRunCompletedEvent_Outcome(t *testing.T) {
	tests := []struct {
		name string
		ev   RunCompletedEvent
		want string
	}{
		{"success", RunCompletedEvent{Success: true}, "success"},
		{"error", RunCompletedEvent{Err: errors.New("x")}, "error"},
		{"cancelled wins", RunCompletedEvent{Cancelled: true, Err: errors.New("x")}, "cancelled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ev.Outcome(); got != tt.want {
				t.Errorf("Outcome() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEventConstructors(t *testing.T) {
	tests := []struct {
		ev   Event
		want string
	}{
		{NewRunAcceptedEvent(testRun, "full", "idea", "spec"), TypeRunAccepted},
		{NewProgressEvent(testRun, "deploy", "x"), TypeRunProgress},
		{NewRunCompletedEvent(testRun), TypeRunCompleted},
		{NewPhaseFinishedEvent(testRun, "build", "success", time.Second), TypePhaseFinished},
	}
	for _, tt := range tests {
		if tt.ev.EventType() != tt.want {
			t.Errorf("EventType() = %q, want %q", tt.ev.EventType(), tt.want)
		}
	}
}
