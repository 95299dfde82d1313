package pipeline

import (
	"testing"
	"time"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Todo App", "todo_app"},
		{"habit-tracker!", "habit_tracker_"},
		{"가계부 앱", "가계부_앱"},
		{"ABCDEFGHIJKLMNOPQRSTUVWXYZ", "abcdefghijklmnopqrst"},
		{"한국어로 된 아주 아주 긴 아이디어 설명입니다", "한국어로_된_아주_아주_긴_아이디어_"},
		{"", ""},
		{"日本語", "___"},
	}
	for _, tt := range tests {
		if got := Slug(tt.in); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestProjectNameAndRequestID(t *testing.T) {
	at := time.UnixMilli(1700000000123)

	if got := ProjectName("Todo App", at); got != "mvp_todo_app_1700000000123" {
		t.Errorf("ProjectName() = %q", got)
	}
	if got := NewRequestID("U123", at); got != "U123_1700000000123" {
		t.Errorf("NewRequestID() = %q", got)
	}
}
