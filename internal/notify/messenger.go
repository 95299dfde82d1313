package notify

import (
	"context"
	"strings"

	"golang.org/x/time/rate"

	"github.com/Iron-Ham/tinytree/internal/errors"
	"github.com/Iron-Ham/tinytree/internal/logging"
	"github.com/Iron-Ham/tinytree/internal/retry"
	"github.com/Iron-Ham/tinytree/internal/thread"
)

// Default outbound rate. Slack allows roughly one message per second per
// channel with short bursts.
const (
	DefaultRate  = rate.Limit(1)
	DefaultBurst = 3
)

// Messenger posts messages and threads them per request.
type Messenger struct {
	poster   Poster
	threads  *thread.Store
	policy   retry.Policy
	limiter  *rate.Limiter
	logger   *logging.Logger
	observer func(outcome string)
}

// MessengerOption configures a Messenger.
type MessengerOption func(*Messenger)

// WithRetryPolicy sets the retry policy wrapped around every post.
func WithRetryPolicy(p retry.Policy) MessengerOption {
	return func(m *Messenger) {
		m.policy = p
	}
}

// WithRateLimit sets the outbound rate. A limit of rate.Inf disables it.
func WithRateLimit(limit rate.Limit, burst int) MessengerOption {
	return func(m *Messenger) {
		m.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithMessengerLogger sets the logger.
func WithMessengerLogger(logger *logging.Logger) MessengerOption {
	return func(m *Messenger) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithObserver registers a callback that receives "success" or "failure"
// once per post, after retries.
func WithObserver(fn func(outcome string)) MessengerOption {
	return func(m *Messenger) {
		m.observer = fn
	}
}

// NewMessenger creates a Messenger. threads may be shared with other
// components; a nil store gets a private one.
func NewMessenger(poster Poster, threads *thread.Store, opts ...MessengerOption) *Messenger {
	if threads == nil {
		threads = thread.NewStore()
	}
	m := &Messenger{
		poster:  poster,
		threads: threads,
		policy:  retry.DefaultPolicy(),
		limiter: rate.NewLimiter(DefaultRate, DefaultBurst),
		logger:  logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.policy.Name == "" {
		m.policy.Name = "notify.post"
	}
	if m.policy.Logger == nil {
		m.policy.Logger = m.logger
	}
	return m
}

// PostToChannel posts a top-level message. When requestID is non-empty the
// message becomes that request's thread root.
func (m *Messenger) PostToChannel(ctx context.Context, channel, text, requestID string) (string, error) {
	handle, err := m.post(ctx, Message{Channel: channel, Text: text})
	if err != nil {
		return "", err
	}
	if requestID != "" && handle != "" {
		m.threads.Set(requestID, handle)
	}
	return handle, nil
}

// PostToThread posts into the request's thread. Without a thread yet, the
// message is posted top-level and becomes the thread root.
func (m *Messenger) PostToThread(ctx context.Context, channel, text, requestID string) error {
	threadHandle, hasThread := m.threads.Get(requestID)
	handle, err := m.post(ctx, Message{Channel: channel, ThreadHandle: threadHandle, Text: text})
	if err != nil {
		return err
	}
	if !hasThread && handle != "" {
		m.threads.Set(requestID, handle)
	}
	return nil
}

// PostDetails posts a structured block of labelled fields into the request's
// thread.
func (m *Messenger) PostDetails(ctx context.Context, channel, title string, fields []Field, requestID string) error {
	threadHandle, _ := m.threads.Get(requestID)
	_, err := m.post(ctx, Message{
		Channel:      channel,
		ThreadHandle: threadHandle,
		Text:         FallbackText(title, fields),
		Title:        title,
		Fields:       fields,
	})
	return err
}

// Forget drops the request's thread handle.
func (m *Messenger) Forget(requestID string) {
	m.threads.Delete(requestID)
}

// ThreadHandle returns the request's thread handle, if any.
func (m *Messenger) ThreadHandle(requestID string) (string, bool) {
	return m.threads.Get(requestID)
}

func (m *Messenger) post(ctx context.Context, msg Message) (string, error) {
	handle, err := retry.Do(ctx, m.policy, func(ctx context.Context) (string, error) {
		if err := m.limiter.Wait(ctx); err != nil {
			return "", retry.Permanent(err)
		}
		h, err := m.poster.Post(ctx, msg)
		if err != nil {
			var de *errors.DeliveryError
			if errors.As(err, &de) && !de.IsRetryable() {
				return "", retry.Permanent(err)
			}
			return "", err
		}
		return h, nil
	})
	if m.observer != nil {
		if err != nil {
			m.observer("failure")
		} else {
			m.observer("success")
		}
	}
	return handle, err
}

// FallbackText renders a detail block as plain text.
func FallbackText(title string, fields []Field) string {
	var sb strings.Builder
	sb.WriteString(title)
	for _, f := range fields {
		sb.WriteString("\n- ")
		sb.WriteString(f.Label)
		sb.WriteString(": ")
		sb.WriteString(f.Value)
	}
	return sb.String()
}
