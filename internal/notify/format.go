package notify

import (
	"fmt"
	"sort"

	"github.com/Iron-Ham/tinytree/internal/errors"
	"github.com/Iron-Ham/tinytree/internal/event"
)

// AcceptedText is the thread root message of a new run.
func AcceptedText(e event.RunAcceptedEvent) string {
	if e.Variant == "spec" {
		return fmt.Sprintf("🌱 Starting MVP generation from a specification. (%s mode)\n- Title: %s", e.Mode, e.Idea)
	}
	return fmt.Sprintf("🌱 Starting MVP generation. (%s mode)\n- Idea: %s", e.Mode, e.Idea)
}

// CompletedText is the final message of a run.
func CompletedText(e event.RunCompletedEvent) string {
	switch e.Outcome() {
	case "success":
		return fmt.Sprintf("✅ %s is live!\n🔗 URL: %s\n📁 Project: %s", e.DisplayName, e.DeployURL, projectDir(e.ProjectPath))
	case "cancelled":
		return "🛑 The run was cancelled."
	default:
		return "❌ Error: " + errors.UserMessage(e.Err)
	}
}

// DetailFields converts event details into fields sorted by label.
func DetailFields(details map[string]string) []Field {
	fields := make([]Field, 0, len(details))
	for k, v := range details {
		fields = append(fields, Field{Label: k, Value: v})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Label < fields[j].Label })
	return fields
}

func projectDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
