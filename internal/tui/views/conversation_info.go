package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/schoolmsg/internal/messaging"
	"github.com/matheus3301/schoolmsg/internal/tui/ui"
	"github.com/rivo/tview"
)

// ConversationInfo shows the recipient, flags and pinned messages of a conversation.
type ConversationInfo struct {
	*tview.TextView
	theme *ui.Theme
}

func NewConversationInfo(theme *ui.Theme) *ConversationInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Conversation Details ")
	tv.SetTitleColor(theme.TitleColor)

	return &ConversationInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders details for c and the pinned subset of msgs.
func (ci *ConversationInfo) Update(c messaging.Conversation, msgs []messaging.Message) {
	ci.Clear()

	fg := ui.Tag(ci.theme.FgColor)
	ct := ui.Tag(ci.theme.CounterColor)
	row := func(label, value string) string {
		return fmt.Sprintf(" [%s::b]%-14s[-:-:-] [%s]%s[-]\n", fg, label, ct, tview.Escape(value))
	}

	var flags []string
	for _, f := range []struct {
		on   bool
		name string
	}{
		{c.Flags.Pinned, "pinned"},
		{c.Flags.Starred, "starred"},
		{c.Flags.Muted, "muted"},
		{c.Flags.Resolved, "resolved"},
		{c.Flags.Archived, "archived"},
	} {
		if f.on {
			flags = append(flags, f.name)
		}
	}
	if len(flags) == 0 {
		flags = []string{"-"}
	}

	last := "-"
	if c.LastMessage != nil {
		last = fmt.Sprintf("%s (%s)", c.LastMessage.Content, formatTimestamp(c.LastMessage.At, time.Now()))
	}

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(row("Name:", c.Recipient.Name))
	b.WriteString(row("Participant:", c.Recipient.ID))
	b.WriteString(row("Role:", string(c.Recipient.Role)))
	b.WriteString(row("Conversation:", c.ID))
	b.WriteString(row("Unread:", fmt.Sprintf("%d", c.UnreadCount)))
	b.WriteString(row("Flags:", strings.Join(flags, ", ")))
	b.WriteString(row("Last message:", last))

	pinned := 0
	for _, m := range orderedMessages(msgs) {
		if !m.Pinned {
			continue
		}
		if pinned == 0 {
			fmt.Fprintf(&b, "\n [%s::b]Pinned messages[-:-:-]\n", fg)
		}
		pinned++
		fmt.Fprintf(&b, "  • %s\n", tview.Escape(sanitizeForTerminal(m.Content)))
	}

	_, _ = fmt.Fprint(ci, b.String())
	ci.SetTitle(fmt.Sprintf(" %s Details ", tview.Escape(c.Recipient.Name)))
}
