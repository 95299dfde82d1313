package slackbridge

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/slack-go/slack"

	"github.com/Iron-Ham/tinytree/internal/errors"
	"github.com/Iron-Ham/tinytree/internal/notify"
)

// permanentErrors are Slack API error codes that no retry can fix.
var permanentErrors = map[string]bool{
	"invalid_auth":      true,
	"not_authed":        true,
	"account_inactive":  true,
	"token_revoked":     true,
	"missing_scope":     true,
	"channel_not_found": true,
	"not_in_channel":    true,
	"is_archived":       true,
	"msg_too_long":      true,
	"no_text":           true,
	"invalid_blocks":    true,
}

// Slack rejects longer texts with msg_too_long or invalid_blocks.
const (
	maxTextRunes    = 40000
	maxSectionRunes = 3000
	maxContextRunes = 2000
)

// Poster posts notify messages to Slack. It satisfies notify.Poster.
type Poster struct {
	client *slack.Client
}

// NewPoster creates a Poster using client.
func NewPoster(client *slack.Client) *Poster {
	return &Poster{client: client}
}

// Post sends msg and returns the message timestamp, which Slack uses as the
// thread handle. Failures are *errors.DeliveryError; rate limits and server
// errors are retryable, rejected requests are not.
func (p *Poster) Post(ctx context.Context, msg notify.Message) (string, error) {
	opts := []slack.MsgOption{slack.MsgOptionText(truncate(msg.Text, maxTextRunes), false)}
	if msg.ThreadHandle != "" {
		opts = append(opts, slack.MsgOptionTS(msg.ThreadHandle))
	}
	if msg.Title != "" {
		opts = append(opts, slack.MsgOptionBlocks(DetailBlocks(msg.Title, msg.Fields)...))
	}

	_, ts, err := p.client.PostMessageContext(ctx, msg.Channel, opts...)
	if err != nil {
		return "", classify(msg.Channel, err)
	}
	return ts, nil
}

// DetailBlocks renders a title and its fields as a section block followed
// by a context block.
func DetailBlocks(title string, fields []notify.Field) []slack.Block {
	blocks := []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, truncate("*"+title+"*", maxSectionRunes), false, false), nil, nil),
	}
	if len(fields) == 0 {
		return blocks
	}
	elements := make([]slack.MixedElement, 0, len(fields))
	for _, f := range fields {
		elements = append(elements, slack.NewTextBlockObject(slack.MarkdownType, truncate(fmt.Sprintf("*%s:* %s", f.Label, f.Value), maxContextRunes), false, false))
	}
	return append(blocks, slack.NewContextBlock("", elements...))
}

// truncate shortens s to maxLen runes, ending in "..." when cut.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	runes := []rune(s)
	return string(runes[:maxLen-3]) + "..."
}

func classify(channel string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errors.NewDeliveryError(channel, err).WithRetryable(false)
	}

	var rateLimited *slack.RateLimitedError
	if errors.As(err, &rateLimited) {
		return errors.NewDeliveryError(channel, err)
	}
	var apiErr slack.SlackErrorResponse
	if errors.As(err, &apiErr) && permanentErrors[apiErr.Err] {
		return errors.NewDeliveryError(channel, err).WithRetryable(false)
	}
	return errors.NewDeliveryError(channel, err)
}
