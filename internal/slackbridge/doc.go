// Package slackbridge connects tinytree to Slack.
//
//   - [Poster] delivers notify messages with chat.postMessage, using Block
//     Kit for detail messages.
//   - [VerifyRequest] and [Middleware] check the signing secret of HTTP
//     requests sent by Slack.
//   - [SocketListener] receives slash commands over Socket Mode.
//   - [Route] maps a slash command to the command dispatcher.
package slackbridge
