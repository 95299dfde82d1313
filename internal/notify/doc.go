// Package notify delivers run progress to a chat channel.
//
// A [Poster] sends one message to one destination: Slack in production, the
// terminal for `tinytree run`. A [Messenger] sits on top of a Poster and
// keeps each run's messages in one conversation thread: the first message of
// a request becomes the thread root and its handle is remembered in a
// [thread.Store]. Every post is rate limited and retried with a bounded
// [retry.Policy].
//
// A [Listener] subscribes to run events on the [event.Bus] and feeds them to
// a Messenger through a single ordered queue, so a request's messages arrive
// in the order they were published. Final delivery failures are logged and
// never reach the pipeline.
package notify
