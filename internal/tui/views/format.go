package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/schoolmsg/internal/delivery"
	"github.com/matheus3301/schoolmsg/internal/messaging"
)

// formatTimestamp renders t relative to now: clock time for today, month/day otherwise.
func formatTimestamp(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.In(now.Location())
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}

// statusGlyph marks an outgoing message by origin and delivery status.
func statusGlyph(m messaging.Message) string {
	switch m.Origin.(type) {
	case messaging.Pending:
		return "…"
	case messaging.Failed:
		return "✗"
	}
	switch m.Status {
	case delivery.Sending:
		return "…"
	case delivery.Sent:
		return "✓"
	case delivery.Delivered:
		return "✓✓"
	case delivery.Read:
		return "[blue]✓✓[-]"
	case delivery.Failed:
		return "✗"
	}
	return ""
}

// flagBadges packs conversation flags into a fixed five-column string.
func flagBadges(f messaging.Flags) string {
	b := []byte(".....")
	if f.Pinned {
		b[0] = 'P'
	}
	if f.Starred {
		b[1] = 'S'
	}
	if f.Muted {
		b[2] = 'M'
	}
	if f.Resolved {
		b[3] = 'R'
	}
	if f.Archived {
		b[4] = 'A'
	}
	return string(b)
}

// reactionSummary groups reactions by type in first-seen order, e.g. "like×2 heart".
func reactionSummary(rs []messaging.Reaction) string {
	if len(rs) == 0 {
		return ""
	}
	var order []string
	counts := make(map[string]int)
	for _, r := range rs {
		if counts[r.Type] == 0 {
			order = append(order, r.Type)
		}
		counts[r.Type]++
	}
	parts := make([]string, len(order))
	for i, typ := range order {
		parts[i] = typ
		if n := counts[typ]; n > 1 {
			parts[i] = fmt.Sprintf("%s×%d", typ, n)
		}
	}
	return strings.Join(parts, " ")
}

// fit pads or truncates s to exactly n runes.
func fit(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s + strings.Repeat(" ", n-len(r))
}
