package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	tterrors "github.com/Iron-Ham/tinytree/internal/errors"
	"github.com/Iron-Ham/tinytree/internal/event"
	"github.com/Iron-Ham/tinytree/internal/logging"
	"github.com/Iron-Ham/tinytree/internal/retry"
	"github.com/Iron-Ham/tinytree/internal/thread"
)

// recordingPoster stores every message and hands out sequential handles.
// failures[i] > 0 makes the next failures[i] calls fail.
type recordingPoster struct {
	mu       sync.Mutex
	messages []Message
	calls    int
	failNext int
	failErr  error
}

func (p *recordingPoster) Post(_ context.Context, msg Message) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.failNext > 0 {
		p.failNext--
		if p.failErr != nil {
			return "", p.failErr
		}
		return "", errors.New("transient")
	}
	p.messages = append(p.messages, msg)
	return fmt.Sprintf("ts-%d", len(p.messages)), nil
}

func (p *recordingPoster) snapshot() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.messages...)
}

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
}

func newTestMessenger(p Poster, opts ...MessengerOption) *Messenger {
	opts = append([]MessengerOption{
		WithRetryPolicy(fastPolicy()),
		WithRateLimit(rate.Inf, 1),
	}, opts...)
	return NewMessenger(p, thread.NewStore(), opts...)
}

func TestMessenger_ThreadsMessagesPerRequest(t *testing.T) {
	p := &recordingPoster{}
	m := newTestMessenger(p)
	ctx := context.Background()

	root, err := m.PostToChannel(ctx, "C1", "started", "R1")
	if err != nil || root != "ts-1" {
		t.Fatalf("PostToChannel() = %q, %v", root, err)
	}
	if err := m.PostToThread(ctx, "C1", "building", "R1"); err != nil {
		t.Fatal(err)
	}
	if err := m.PostDetails(ctx, "C1", "deploy", []Field{{"URL", "https://x.web.app"}}, "R1"); err != nil {
		t.Fatal(err)
	}

	msgs := p.snapshot()
	if msgs[1].ThreadHandle != "ts-1" || msgs[2].ThreadHandle != "ts-1" {
		t.Errorf("replies not threaded: %+v", msgs)
	}
	if msgs[2].Title != "deploy" || msgs[2].Text != "deploy\n- URL: https://x.web.app" {
		t.Errorf("detail message = %+v", msgs[2])
	}

	m.Forget("R1")
	if _, ok := m.ThreadHandle("R1"); ok {
		t.Error("thread handle survived Forget")
	}
}

func TestMessenger_PostToThreadWithoutRootStartsThread(t *testing.T) {
	p := &recordingPoster{}
	m := newTestMessenger(p)

	if err := m.PostToThread(context.Background(), "C1", "first", "R9"); err != nil {
		t.Fatal(err)
	}
	if err := m.PostToThread(context.Background(), "C1", "second", "R9"); err != nil {
		t.Fatal(err)
	}
	msgs := p.snapshot()
	if msgs[0].ThreadHandle != "" || msgs[1].ThreadHandle != "ts-1" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestMessenger_PostToChannelWithoutRequest(t *testing.T) {
	threads := thread.NewStore()
	m := NewMessenger(&recordingPoster{}, threads, WithRetryPolicy(fastPolicy()), WithRateLimit(rate.Inf, 1))
	if _, err := m.PostToChannel(context.Background(), "C1", "hello", ""); err != nil {
		t.Fatal(err)
	}
	if threads.Len() != 0 {
		t.Errorf("threads.Len() = %d, want 0", threads.Len())
	}
}

func TestMessenger_Retries(t *testing.T) {
	tests := []struct {
		name      string
		failNext  int
		failErr   error
		wantErr   bool
		wantCalls int
		outcome   string
	}{
		{"recovers on second attempt", 1, nil, false, 2, "success"},
		{"gives up after three attempts", 5, nil, true, 3, "failure"},
		{
			name:      "non-retryable delivery error stops at once",
			failNext:  5,
			failErr:   tterrors.NewDeliveryError("C1", errors.New("channel_not_found")).WithRetryable(false),
			wantErr:   true,
			wantCalls: 1,
			outcome:   "failure",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &recordingPoster{failNext: tt.failNext, failErr: tt.failErr}
			var outcomes []string
			m := newTestMessenger(p, WithObserver(func(o string) { outcomes = append(outcomes, o) }))

			_, err := m.PostToChannel(context.Background(), "C1", "x", "R1")
			if (err != nil) != tt.wantErr {
				t.Fatalf("PostToChannel() error = %v, wantErr %v", err, tt.wantErr)
			}
			if p.calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", p.calls, tt.wantCalls)
			}
			if len(outcomes) != 1 || outcomes[0] != tt.outcome {
				t.Errorf("outcomes = %v, want [%s]", outcomes, tt.outcome)
			}
		})
	}
}

func TestMessenger_RateLimitHonoursContext(t *testing.T) {
	p := &recordingPoster{}
	m := newTestMessenger(p, WithRateLimit(rate.Every(time.Hour), 1))

	if _, err := m.PostToChannel(context.Background(), "C1", "one", ""); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := m.PostToChannel(ctx, "C1", "two", ""); err == nil {
		t.Error("second post was not rate limited")
	}
	if p.calls != 1 {
		t.Errorf("calls = %d, want 1", p.calls)
	}
}

var run = event.Run{RequestID: "U1_1", UserID: "U1", ChannelID: "C1"}

func TestListener_DeliversRunInOrder(t *testing.T) {
	bus := event.NewBus()
	p := &recordingPoster{}
	m := newTestMessenger(p)
	l := NewListener(bus, m)
	l.Start()

	bus.Publish(event.NewRunAcceptedEvent(run, "light", "todo app", "idea"))
	for i := 1; i <= 5; i++ {
		bus.Publish(event.NewProgressEvent(run, "build", fmt.Sprintf("step %d", i)))
	}
	bus.Publish(event.NewProgressEvent(run, "deploy", "deployed").WithDetails(map[string]string{
		"Project": "mvp_todo", "Duration": "42s",
	}))
	done := event.NewRunCompletedEvent(run)
	done.Success = true
	done.DeployURL = "https://mvp-todo.web.app"
	done.ProjectPath = "/srv/apps/mvp_todo"
	done.DisplayName = "todo app"
	bus.Publish(done)

	if err := l.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	msgs := p.snapshot()
	if len(msgs) != 9 {
		t.Fatalf("delivered %d messages, want 9", len(msgs))
	}
	if !strings.Contains(msgs[0].Text, "light mode") || msgs[0].ThreadHandle != "" {
		t.Errorf("root = %+v", msgs[0])
	}
	for i := 1; i <= 5; i++ {
		if msgs[i].Text != fmt.Sprintf("step %d", i) || msgs[i].ThreadHandle != "ts-1" {
			t.Errorf("msgs[%d] = %+v", i, msgs[i])
		}
	}
	if msgs[7].Title != "deploy" || len(msgs[7].Fields) != 2 || msgs[7].Fields[0].Label != "Duration" {
		t.Errorf("detail message = %+v", msgs[7])
	}
	if !strings.Contains(msgs[8].Text, "https://mvp-todo.web.app") || !strings.Contains(msgs[8].Text, "mvp_todo") {
		t.Errorf("completion = %q", msgs[8].Text)
	}
	if _, ok := m.ThreadHandle(run.RequestID); ok {
		t.Error("thread handle kept after completion")
	}
}

func TestListener_FailureIsLoggedNotSurfaced(t *testing.T) {
	var buf bytes.Buffer
	bus := event.NewBus()
	p := &recordingPoster{failNext: 100}
	l := NewListener(bus, newTestMessenger(p), WithListenerLogger(logging.NewWriterLogger(&buf, logging.LevelDebug)))
	l.Start()

	bus.Publish(event.NewProgressEvent(run, "plan", "planning"))
	if err := l.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}

	if p.calls != 3 {
		t.Errorf("calls = %d, want 3 attempts", p.calls)
	}
	if !strings.Contains(buf.String(), "notification delivery failed") || !strings.Contains(buf.String(), run.RequestID) {
		t.Errorf("failure not logged: %s", buf.String())
	}
}

func TestListener_SettledAfterCompletionDelivered(t *testing.T) {
	bus := event.NewBus()
	p := &recordingPoster{}
	var settled []event.RunCompletedEvent
	var deliveredFirst bool
	l := NewListener(bus, newTestMessenger(p), WithSettled(func(ev event.RunCompletedEvent) {
		msgs := p.snapshot()
		deliveredFirst = len(msgs) > 0 && strings.Contains(msgs[len(msgs)-1].Text, "Error")
		settled = append(settled, ev)
	}))
	l.Start()

	bus.Publish(event.NewProgressEvent(run, "build", "building"))
	failed := event.NewRunCompletedEvent(run)
	failed.Err = tterrors.NewExitError("flutter", 1, "lib/main.dart: error")
	bus.Publish(failed)

	if err := l.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(settled) != 1 || settled[0].RequestID != run.RequestID {
		t.Fatalf("settled = %+v, want the one completed run", settled)
	}
	if !deliveredFirst {
		t.Errorf("settled before the error message was posted: %+v", p.snapshot())
	}
}

func TestListener_SettledEvenWhenDeliveryFails(t *testing.T) {
	bus := event.NewBus()
	p := &recordingPoster{failNext: 100}
	settled := 0
	l := NewListener(bus, newTestMessenger(p), WithSettled(func(event.RunCompletedEvent) { settled++ }))
	l.Start()

	bus.Publish(event.NewRunCompletedEvent(run))
	if err := l.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if settled != 1 {
		t.Errorf("settled %d times, want 1", settled)
	}
}

func TestListener_StopWithoutStart(t *testing.T) {
	l := NewListener(event.NewBus(), newTestMessenger(&recordingPoster{}))
	if err := l.Stop(context.Background()); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	l.Start()
	if err := l.Stop(context.Background()); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestListener_IgnoresEventsAfterStop(t *testing.T) {
	bus := event.NewBus()
	p := &recordingPoster{}
	l := NewListener(bus, newTestMessenger(p))
	l.Start()
	if err := l.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	bus.Publish(event.NewProgressEvent(run, "plan", "late"))
	if len(p.snapshot()) != 0 {
		t.Error("event delivered after Stop")
	}
}

func TestCompletedText(t *testing.T) {
	ok := event.NewRunCompletedEvent(run)
	ok.Success = true
	ok.DeployURL = "https://a.web.app"
	ok.ProjectPath = "/srv/apps/mvp_a_1"
	ok.DisplayName = "Groceries"

	cancelled := event.NewRunCompletedEvent(run)
	cancelled.Cancelled = true

	failed := event.NewRunCompletedEvent(run)
	failed.Err = tterrors.NewPhaseError("build", tterrors.NewExitError("flutter", 1, "boom"))

	internal := event.NewRunCompletedEvent(run)
	internal.Err = errors.New("secret path /etc/x")

	tests := []struct {
		name string
		ev   event.RunCompletedEvent
		want []string
	}{
		{"success", ok, []string{"Groceries is live", "https://a.web.app", "Project: mvp_a_1"}},
		{"cancelled", cancelled, []string{"cancelled"}},
		{"classified failure", failed, []string{"❌ Error:", "build phase failed", "boom"}},
		{"unclassified failure", internal, []string{"an internal error occurred"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CompletedText(tt.ev)
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("CompletedText() = %q, missing %q", got, want)
				}
			}
		})
	}
}

func TestConsolePoster(t *testing.T) {
	var buf bytes.Buffer
	p := NewConsolePoster(&buf)
	ctx := context.Background()

	root, err := p.Post(ctx, Message{Channel: "C1", Text: "🌱 Starting\n- Idea: todo"})
	if err != nil {
		t.Fatal(err)
	}
	reply, err := p.Post(ctx, Message{Channel: "C1", ThreadHandle: root, Text: "building"})
	if err != nil {
		t.Fatal(err)
	}
	_, _ = p.Post(ctx, Message{Channel: "C1", ThreadHandle: root, Title: "deploy", Text: "fallback", Fields: []Field{{"URL", "https://a.web.app"}}})

	if root == "" || root == reply {
		t.Errorf("handles not unique: %q %q", root, reply)
	}
	want := "#C1 🌱 Starting\n  - Idea: todo\n  │ building\n  │ deploy\n  │   URL: https://a.web.app\n"
	if buf.String() != want {
		t.Errorf("output =\n%q\nwant\n%q", buf.String(), want)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := p.Post(cancelled, Message{Text: "x"}); err == nil {
		t.Error("Post() on a cancelled context succeeded")
	}
}

func TestConsolePoster_Wrap(t *testing.T) {
	text := "the web build failed because the renderer could not find lib/main.dart"

	tests := []struct {
		name      string
		width     int
		wantLines int // 0 means more than one
	}{
		{"disabled", 0, 1},
		{"too narrow to wrap", 15, 1},
		{"wraps", 32, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			p := NewConsolePoster(&buf)
			p.SetWidth(tt.width)

			if _, err := p.Post(context.Background(), Message{Channel: "C1", ThreadHandle: "root", Text: text}); err != nil {
				t.Fatal(err)
			}

			lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
			if tt.wantLines > 0 && len(lines) != tt.wantLines {
				t.Fatalf("got %d lines, want %d:\n%s", len(lines), tt.wantLines, buf.String())
			}
			if tt.wantLines == 0 && len(lines) < 2 {
				t.Fatalf("line not wrapped:\n%s", buf.String())
			}

			var words []string
			for _, line := range lines {
				if !strings.HasPrefix(line, "  │ ") {
					t.Errorf("line %q lost its indent", line)
				}
				if tt.width >= minWrapWidth && len([]rune(line)) > tt.width {
					t.Errorf("line %q wider than %d", line, tt.width)
				}
				words = append(words, strings.Fields(strings.TrimPrefix(line, "  │ "))...)
			}
			if got := strings.Join(words, " "); got != text {
				t.Errorf("wrapped text = %q, want %q", got, text)
			}
		})
	}
}
