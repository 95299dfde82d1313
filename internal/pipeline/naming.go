package pipeline

import (
	"fmt"
	"strings"
	"time"
)

const maxSlugRunes = 20

// NewRequestID returns the request id for a run a user starts at t.
func NewRequestID(userID string, t time.Time) string {
	return fmt.Sprintf("%s_%d", userID, t.UnixMilli())
}

// Slug lowercases s and replaces every rune outside a-z, 0-9 and the Hangul
// syllable block with an underscore. The result is at most 20 runes.
func Slug(s string) string {
	var sb strings.Builder
	n := 0
	for _, r := range strings.ToLower(s) {
		if n == maxSlugRunes {
			break
		}
		if !slugRune(r) {
			r = '_'
		}
		sb.WriteRune(r)
		n++
	}
	return sb.String()
}

func slugRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || (r >= '가' && r <= '힣')
}

// ProjectName returns the directory name of a project generated from title
// at t: mvp_<slug>_<unix millis>.
func ProjectName(title string, t time.Time) string {
	return fmt.Sprintf("mvp_%s_%d", Slug(title), t.UnixMilli())
}
