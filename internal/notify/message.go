package notify

import "context"

// Field is a labelled value shown in a detail message.
type Field struct {
	Label string
	Value string
}

// Message is one outbound chat message.
type Message struct {
	Channel string
	// ThreadHandle, if set, posts the message as a reply in that thread.
	ThreadHandle string
	Text         string
	// Title and Fields, when set, render a structured detail block. Text is
	// kept as the plain fallback.
	Title  string
	Fields []Field
}

// Poster sends a message and returns the handle of the posted message, which
// can be used as a ThreadHandle for replies.
type Poster interface {
	Post(ctx context.Context, msg Message) (string, error)
}

// PosterFunc adapts a function to the Poster interface.
type PosterFunc func(ctx context.Context, msg Message) (string, error)

// Post calls f(ctx, msg).
func (f PosterFunc) Post(ctx context.Context, msg Message) (string, error) {
	return f(ctx, msg)
}
