package slackbridge

import (
	"context"

	"github.com/slack-go/slack"

	"github.com/Iron-Ham/tinytree/internal/command"
	"github.com/Iron-Ham/tinytree/internal/errors"
)

// Slash command names.
const (
	CommandTinytree = "/tinytree"
	CommandLegacy   = "/mvp"
)

// ErrUnknownCommand is returned by Route for a slash command tinytree does
// not own.
var ErrUnknownCommand = errors.New("unknown slash command")

// CommandHandler runs chat commands. command.Dispatcher satisfies it.
type CommandHandler interface {
	Handle(ctx context.Context, c command.Context) error
	HandleLegacy(ctx context.Context, c command.Context) error
}

// Route hands a slash command to h.
func Route(ctx context.Context, h CommandHandler, cmd slack.SlashCommand) error {
	c := command.Context{UserID: cmd.UserID, ChannelID: cmd.ChannelID, Text: cmd.Text}
	switch cmd.Command {
	case CommandTinytree:
		return h.Handle(ctx, c)
	case CommandLegacy:
		return h.HandleLegacy(ctx, c)
	default:
		return errors.Wrapf(ErrUnknownCommand, "%s", cmd.Command)
	}
}
