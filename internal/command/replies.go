package command

import (
	"fmt"
	"strings"
	"time"

	"github.com/Iron-Ham/tinytree/internal/session"
)

// Reply texts.
const (
	ReplyBusy            = "⚠️ A job is already running. Check it with `/tinytree status` or cancel it with `/tinytree cancel`."
	ReplyCancelled       = "🛑 Cancelled the running job."
	ReplyNothingToCancel = "⚠️ There is no job to cancel."
	ReplyNoJob           = "📋 There is no job in progress."
	ReplyNothingToRename = "⚠️ There is no job to rename."
	ReplyLegacyNotice    = "ℹ️ `/mvp` is going away soon. Use `/tinytree new light [idea]` instead."
	ReplyModeHint        = "❓ Please choose a mode.\n" +
		"`/tinytree new light [idea]`: a simple MVP (30 minutes to an hour)\n" +
		"`/tinytree new full [idea]`: a larger project (2 to 4 hours)"
	ReplyUsage = "❓ Usage:\n" +
		"`/tinytree new light [idea]`\n" +
		"`/tinytree new full [idea]`\n" +
		"`/tinytree status`\n" +
		"`/tinytree cancel`\n" +
		"`/tinytree rename [name]`"

	// legacyDefaultIdea stands in for an empty `/mvp` text.
	legacyDefaultIdea = "no idea given"
)

var statusLabels = map[session.Status]string{
	session.StatusPlanning:     "📋 Planning",
	session.StatusImplementing: "🔨 Implementing",
	session.StatusBuilding:     "📦 Building",
	session.StatusDeploying:    "🚀 Deploying",
	session.StatusDone:         "✅ Done",
	session.StatusError:        "❌ Failed",
	session.StatusCancelled:    "🛑 Cancelled",
}

// StatusLabel returns the display label of a status.
func StatusLabel(s session.Status) string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return s.String()
}

// StatusText renders a session for the status command. Elapsed time is in
// whole seconds.
func StatusText(s session.Session, now time.Time) string {
	var sb strings.Builder
	sb.WriteString("📊 Current job status\n")
	fmt.Fprintf(&sb, "- Mode: %s\n", s.Mode)
	fmt.Fprintf(&sb, "- Idea: %s\n", s.Idea)
	if s.DisplayName != "" {
		fmt.Fprintf(&sb, "- Name: %s\n", s.DisplayName)
	}
	fmt.Fprintf(&sb, "- Status: %s\n", StatusLabel(s.Status))
	if s.Phase != "" {
		fmt.Fprintf(&sb, "- Phase: %s\n", s.Phase)
	}
	fmt.Fprintf(&sb, "- Elapsed: %ds", int64(s.Elapsed(now)/time.Second))
	return sb.String()
}

// RenamedText confirms a rename.
func RenamedText(name string) string {
	return fmt.Sprintf("✏️ The current job is now called %q.", name)
}
