package views

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/schoolmsg/internal/messaging"
	"github.com/matheus3301/schoolmsg/internal/tui/ui"
)

func testConversations(n int) []messaging.Conversation {
	convs := make([]messaging.Conversation, n)
	for i := range convs {
		convs[i] = messaging.Conversation{
			ID:        fmt.Sprintf("c%d", i),
			Recipient: messaging.Participant{ID: fmt.Sprintf("p%d", i), Name: fmt.Sprintf("Parent %d", i), Role: messaging.RoleParent},
		}
	}
	return convs
}

func TestConversationListSelectionScrolls(t *testing.T) {
	cl := NewConversationList(ui.DefaultTheme())
	defer cl.Stop()
	cl.Update(testConversations(100), "")
	cl.resize(10)

	cl.Select(15)
	if got := cl.window.ScrollTop(); got != 6 {
		t.Errorf("expected scrollTop 6 to reveal row 15 at the bottom, got %d", got)
	}
	start, end := cl.window.Range()
	if start > 15 || end <= 15 {
		t.Errorf("selected row outside rendered range [%d,%d)", start, end)
	}

	cl.Select(2)
	if got := cl.window.ScrollTop(); got != 2 {
		t.Errorf("expected scrollTop 2 to reveal row 2 at the top, got %d", got)
	}

	cl.Select(500)
	if got := cl.SelectedID(); got != "c99" {
		t.Errorf("expected selection clamped to last row, got %q", got)
	}
	if got := cl.window.ScrollTop(); got != 90 {
		t.Errorf("expected scrollTop 90, got %d", got)
	}
}

func TestConversationListKeepsSelectionAcrossUpdates(t *testing.T) {
	cl := NewConversationList(ui.DefaultTheme())
	defer cl.Stop()
	convs := testConversations(5)
	cl.Update(convs, "")
	cl.Select(3)

	reordered := []messaging.Conversation{convs[3], convs[0], convs[1], convs[2], convs[4]}
	cl.Update(reordered, "sort: unread")
	if got := cl.SelectedID(); got != "c3" {
		t.Errorf("expected selection to follow c3, got %q", got)
	}

	cl.Select(4)
	cl.Update(convs[:2], "")
	if got := cl.SelectedID(); got != "c1" {
		t.Errorf("expected selection clamped to c1, got %q", got)
	}

	cl.Update(nil, "")
	if got := cl.SelectedID(); got != "" {
		t.Errorf("expected no selection, got %q", got)
	}
}

func TestConversationListScrollClamp(t *testing.T) {
	cl := NewConversationList(ui.DefaultTheme())
	defer cl.Stop()
	cl.Update(testConversations(20), "")
	cl.resize(10)

	cl.ScrollTo(50, "")
	if got := cl.window.ScrollTop(); got != 10 {
		t.Errorf("expected scroll clamped to 10, got %d", got)
	}
	if !cl.window.IsScrolling() {
		t.Error("expected scrolling state after a scroll")
	}

	cl.Update(testConversations(12), "")
	if got := cl.window.ScrollTop(); got != 2 {
		t.Errorf("expected scroll pulled back after shrink, got %d", got)
	}
}

func TestConversationListRow(t *testing.T) {
	cl := NewConversationList(ui.DefaultTheme())
	defer cl.Stop()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	c := messaging.Conversation{
		ID:          "c1",
		Recipient:   messaging.Participant{ID: "p1", Name: "Mrs. Okafor", Role: messaging.RoleParent},
		UnreadCount: 2,
		Flags:       messaging.Flags{Starred: true},
		LastMessage: &messaging.Summary{Content: "See you at pickup", At: now.Add(-time.Hour)},
	}
	cl.SetTypingFunc(func(id string) bool { return id == "c1" })

	row := cl.formatRow(c, 100, now, false)
	for _, want := range []string{"(2)", "Mrs. Okafor", "parent", ".S...", "typing…", "11:00", "[::b]"} {
		if !strings.Contains(row, want) {
			t.Errorf("row %q missing %q", row, want)
		}
	}

	row = cl.formatRow(c, 100, now, true)
	if !strings.Contains(row, "See you at pickup") {
		t.Errorf("expected preview while scrolling, got %q", row)
	}
}
