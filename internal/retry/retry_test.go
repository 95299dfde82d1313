package retry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/tinytree/internal/logging"
)

// recordingSleep records requested delays without waiting.
type recordingSleep struct {
	delays []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func testPolicy(rec *recordingSleep) Policy {
	p := DefaultPolicy()
	p.sleep = rec.sleep
	return p
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	rec := &recordingSleep{}
	calls := 0

	got, err := Do(context.Background(), testPolicy(rec), func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != "ok" || calls != 1 {
		t.Errorf("got %q after %d calls", got, calls)
	}
	if len(rec.delays) != 0 {
		t.Errorf("slept %v on success", rec.delays)
	}
}

func TestDo_RecoversOnSecondAttempt(t *testing.T) {
	rec := &recordingSleep{}
	calls := 0

	got, err := Do(context.Background(), testPolicy(rec), func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Fatalf("Do() = %d, %v", got, err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	rec := &recordingSleep{}
	calls := 0

	_, err := Do(context.Background(), testPolicy(rec), func(ctx context.Context) (string, error) {
		calls++
		return "", fmt.Errorf("failure %d", calls)
	})

	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if err == nil || err.Error() != "failure 3" {
		t.Errorf("err = %v, want the third failure", err)
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(rec.delays) != len(want) {
		t.Fatalf("delays = %v, want %v", rec.delays, want)
	}
	for i := range want {
		if rec.delays[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, rec.delays[i], want[i])
		}
	}
}

func TestDo_AttemptBound(t *testing.T) {
	tests := []struct {
		maxAttempts int
		wantCalls   int
	}{
		{1, 1},
		{3, 3},
		{5, 5},
		{0, DefaultMaxAttempts},
		{-2, DefaultMaxAttempts},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("max=%d", tt.maxAttempts), func(t *testing.T) {
			rec := &recordingSleep{}
			p := testPolicy(rec)
			p.MaxAttempts = tt.maxAttempts

			calls := 0
			err := p.Run(context.Background(), func(ctx context.Context) error {
				calls++
				return errors.New("always")
			})
			if err == nil {
				t.Fatal("Run() error = nil")
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if len(rec.delays) != tt.wantCalls-1 {
				t.Errorf("slept %d times, want %d", len(rec.delays), tt.wantCalls-1)
			}
		})
	}
}

func TestDo_PermanentStopsEarly(t *testing.T) {
	rec := &recordingSleep{}
	cause := errors.New("invalid_auth")
	calls := 0

	err := testPolicy(rec).Run(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(cause)
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if err != cause {
		t.Errorf("err = %v, want the unwrapped cause", err)
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) != nil")
	}
}

func TestDo_ContextCanceledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := DefaultPolicy()
	p.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}

	last := errors.New("slack 503")
	calls := 0
	err := p.Run(ctx, func(ctx context.Context) error {
		calls++
		return last
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if !errors.Is(err, last) {
		t.Errorf("err = %v, want the last failure joined", err)
	}
}

func TestDo_ContextAlreadyDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := DefaultPolicy().Run(ctx, func(ctx context.Context) error {
		calls++
		return nil
	})
	if calls != 0 {
		t.Errorf("op called %d times with a done context", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}

func TestDo_LogsIntermediateFailures(t *testing.T) {
	var buf bytes.Buffer
	rec := &recordingSleep{}
	p := testPolicy(rec).WithLogger(logging.NewWriterLogger(&buf, logging.LevelDebug))
	p.Name = "slack.post"

	_ = p.Run(context.Background(), func(ctx context.Context) error {
		return errors.New("rate limited")
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("logged %d warnings, want 2: %s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], `"level":"WARN"`) || !strings.Contains(lines[0], `"operation":"slack.post"`) {
		t.Errorf("unexpected log line %s", lines[0])
	}
}

func TestPolicy_Delay(t *testing.T) {
	p := Policy{BaseDelay: 500 * time.Millisecond}
	if got := p.Delay(3); got != 1500*time.Millisecond {
		t.Errorf("Delay(3) = %v", got)
	}
	if got := (Policy{BaseDelay: -time.Second}).Delay(2); got != 0 {
		t.Errorf("negative base delay = %v, want 0", got)
	}
}

func TestSleepContext(t *testing.T) {
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("sleepContext() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("sleepContext() on done ctx = %v", err)
	}
}
