// Package command parses chat commands and runs them against the session
// store and the pipeline.
package command

import (
	"strings"

	"github.com/Iron-Ham/tinytree/internal/session"
)

// Kind identifies a parsed sub-command.
type Kind string

const (
	KindNew     Kind = "new"
	KindCancel  Kind = "cancel"
	KindStatus  Kind = "status"
	KindRename  Kind = "rename"
	KindUnknown Kind = "unknown"
)

// Command is the parsed text of a `/tinytree` invocation.
type Command struct {
	Kind Kind
	Mode session.Mode // KindNew
	Idea string       // KindNew
	Name string       // KindRename
	// Raw is the trimmed input text.
	Raw string
}

// Parse parses command text:
//
//	new light <idea>   new full <idea>
//	cancel             status
//	rename <name>
//
// Anything else, including `new <idea>` without a mode and a missing idea
// or name, is KindUnknown.
func Parse(text string) Command {
	raw := strings.TrimSpace(text)
	tokens := strings.Fields(raw)
	unknown := Command{Kind: KindUnknown, Raw: raw}
	if len(tokens) == 0 {
		return unknown
	}

	switch strings.ToLower(tokens[0]) {
	case "new":
		if len(tokens) < 2 {
			return unknown
		}
		mode, err := session.ParseMode(tokens[1])
		if err != nil {
			return unknown
		}
		idea := strings.Join(tokens[2:], " ")
		if idea == "" {
			return unknown
		}
		return Command{Kind: KindNew, Mode: mode, Idea: idea, Raw: raw}

	case "cancel":
		return Command{Kind: KindCancel, Raw: raw}

	case "status":
		return Command{Kind: KindStatus, Raw: raw}

	case "rename":
		name := strings.Join(tokens[1:], " ")
		if name == "" {
			return unknown
		}
		return Command{Kind: KindRename, Name: name, Raw: raw}

	default:
		return unknown
	}
}

// missingMode reports whether raw is `new <something>` where <something> is
// not a mode.
func missingMode(raw string) bool {
	lower := strings.ToLower(strings.TrimSpace(raw))
	return strings.HasPrefix(lower, "new ") &&
		!strings.HasPrefix(lower, "new light") &&
		!strings.HasPrefix(lower, "new full")
}
