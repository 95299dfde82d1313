package command

import (
	"testing"

	"github.com/Iron-Ham/tinytree/internal/session"
)

func TestParse(t *testing.T) {
	tests := []struct {
		text string
		want Command
	}{
		{"new light a todo app", Command{Kind: KindNew, Mode: session.ModeLight, Idea: "a todo app", Raw: "new light a todo app"}},
		{"  NEW Full   habit   tracker ", Command{Kind: KindNew, Mode: session.ModeFull, Idea: "habit tracker", Raw: "NEW Full   habit   tracker"}},
		{"new todo app", Command{Kind: KindUnknown, Raw: "new todo app"}},
		{"new light", Command{Kind: KindUnknown, Raw: "new light"}},
		{"new", Command{Kind: KindUnknown, Raw: "new"}},
		{"cancel", Command{Kind: KindCancel, Raw: "cancel"}},
		{"Status", Command{Kind: KindStatus, Raw: "Status"}},
		{"rename My  Groceries", Command{Kind: KindRename, Name: "My Groceries", Raw: "rename My  Groceries"}},
		{"rename", Command{Kind: KindUnknown, Raw: "rename"}},
		{"", Command{Kind: KindUnknown}},
		{"deploy now", Command{Kind: KindUnknown, Raw: "deploy now"}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := Parse(tt.text); got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.text, got, tt.want)
			}
		})
	}
}

func TestMissingMode(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"new todo app", true},
		{"NEW todo", true},
		{"new light", false},
		{"new full", false},
		{"new", false},
		{"status", false},
	}
	for _, tt := range tests {
		if got := missingMode(tt.raw); got != tt.want {
			t.Errorf("missingMode(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}
