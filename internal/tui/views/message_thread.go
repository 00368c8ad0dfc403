package views

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/schoolmsg/internal/convview"
	"github.com/matheus3301/schoolmsg/internal/messaging"
	"github.com/matheus3301/schoolmsg/internal/notify"
	"github.com/matheus3301/schoolmsg/internal/tui/ui"
	"github.com/rivo/tview"
)

// MessageThread shows one conversation with a typing line and a composer.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	typing   *tview.TextView
	composer *tview.InputField
	view     *convview.View
	selfID   string
	title    string
	now      func() time.Time
	quiet    bool
	onSend   func(text string)
	onChange func(text string)
}

func NewMessageThread(theme *ui.Theme) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitleColor(theme.TitleColor)

	typing := tview.NewTextView().SetDynamicColors(true)
	typing.SetBackgroundColor(theme.BgColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus, Enter to send) ")
	composer.SetTitleColor(theme.TitleColor)

	mt := &MessageThread{
		Flex: tview.NewFlex().
			SetDirection(tview.FlexRow).
			AddItem(messages, 0, 1, true).
			AddItem(typing, 1, 0, false).
			AddItem(composer, 3, 0, false),
		theme:    theme,
		messages: messages,
		typing:   typing,
		composer: composer,
		now:      time.Now,
	}

	composer.SetChangedFunc(func(text string) {
		if !mt.quiet && mt.onChange != nil {
			mt.onChange(text)
		}
	})
	composer.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || mt.onSend == nil {
			return
		}
		if text := strings.TrimSpace(composer.GetText()); text != "" {
			mt.onSend(text)
			mt.SetDraft("")
		}
	})
	return mt
}

// Bind points the thread at a conversation view and clears the screen.
func (mt *MessageThread) Bind(v *convview.View, title, selfID string) {
	mt.view = v
	mt.title = title
	mt.selfID = selfID
	mt.messages.SetTitle(fmt.Sprintf(" %s ", tview.Escape(title)))
	mt.messages.Clear()
	mt.typing.Clear()
}

// View returns the bound conversation view, or nil.
func (mt *MessageThread) View() *convview.View {
	return mt.view
}

func (mt *MessageThread) Name() string {
	if mt.title != "" {
		return mt.title
	}
	return "Messages"
}

// SetOnSend sets the callback for a submitted composer line.
func (mt *MessageThread) SetOnSend(fn func(text string)) {
	mt.onSend = fn
}

// SetOnChange sets the callback for composer edits made by the user.
func (mt *MessageThread) SetOnChange(fn func(text string)) {
	mt.onChange = fn
}

// SetDraft replaces the composer text without firing the change callback.
func (mt *MessageThread) SetDraft(text string) {
	mt.quiet = true
	mt.composer.SetText(text)
	mt.quiet = false
}

// AppendDraft adds text to the composer, separated by a space.
func (mt *MessageThread) AppendDraft(text string) {
	cur := mt.composer.GetText()
	if cur != "" && !strings.HasSuffix(cur, " ") {
		cur += " "
	}
	mt.composer.SetText(cur + text)
}

// Render redraws the bound conversation. It keeps the viewport pinned to the
// newest message unless the user has scrolled up.
func (mt *MessageThread) Render() {
	if mt.view == nil {
		return
	}
	row, _ := mt.messages.GetScrollOffset()
	_, _, _, height := mt.messages.GetInnerRect()
	atEnd := row+height >= mt.messages.GetOriginalLineCount()

	var b strings.Builder
	if mt.view.HasMore() {
		fmt.Fprintf(&b, "[%s]── l: load older messages ──[-]\n\n", ui.Tag(mt.theme.PendingColor))
	}
	now := mt.now()
	for _, m := range orderedMessages(mt.view.Messages()) {
		b.WriteString(mt.renderMessage(m, now))
	}
	mt.messages.SetText(b.String())
	if atEnd {
		mt.messages.ScrollToEnd()
	}

	mt.typing.Clear()
	if mt.view.IsTyping() {
		fmt.Fprintf(mt.typing, " [%s::i]%s is typing…[-:-:-]", ui.Tag(mt.theme.PendingColor), tview.Escape(mt.title))
	}
}

func (mt *MessageThread) renderMessage(m messaging.Message, now time.Time) string {
	sender := m.Sender.Name
	if sender == "" {
		sender = m.Sender.ID
	}
	mine := m.Sender.ID == mt.selfID
	if mine {
		sender = "You"
	}

	var meta []string
	meta = append(meta, formatTimestamp(m.Timestamp, now))
	if m.Category != "" && m.Category != messaging.CategoryGeneral {
		meta = append(meta, string(m.Category))
	}
	if mine {
		meta = append(meta, statusGlyph(m))
	}
	if m.Pinned {
		meta = append(meta, "pinned")
	}
	if m.Forwarded {
		meta = append(meta, "forwarded")
	}

	nameColor := ui.Tag(mt.theme.FgColor)
	if m.Priority == notify.PriorityUrgent {
		nameColor = ui.Tag(mt.theme.UrgentColor)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s::b]%s[-:-:-] [::d]%s[-:-:-]\n", nameColor, tview.Escape(sanitizeForTerminal(sender)), strings.Join(meta, " · "))

	body := tview.Escape(sanitizeForTerminal(m.Content))
	switch o := m.Origin.(type) {
	case messaging.Pending:
		body = fmt.Sprintf("[%s]%s[-]", ui.Tag(mt.theme.PendingColor), body)
	case messaging.Failed:
		body = fmt.Sprintf("[%s]%s[-]\n[%s::i]not sent: %s (:retry or :discard)[-:-:-]",
			ui.Tag(mt.theme.FailedColor), body, ui.Tag(mt.theme.FailedColor), tview.Escape(o.Err))
	}
	b.WriteString(body)
	b.WriteString("\n")

	for _, a := range m.Attachments {
		fmt.Fprintf(&b, "  📎 %s (%s)\n", tview.Escape(a.FileName), a.MimeType)
	}
	if r := reactionSummary(m.Reactions); r != "" {
		fmt.Fprintf(&b, "  [%s]%s[-]\n", ui.Tag(mt.theme.CounterColor), tview.Escape(r))
	}
	b.WriteString("\n")
	return b.String()
}

// Messages returns the message pane for focus and scrolling.
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

// Composer returns the input field for focus management.
func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}

// orderedMessages sorts a copy of msgs oldest first. History pages and local
// sends are stored in arrival order.
func orderedMessages(msgs []messaging.Message) []messaging.Message {
	out := slices.Clone(msgs)
	slices.SortStableFunc(out, func(a, b messaging.Message) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return out
}

// LastFailed returns the newest message whose send was rejected.
func LastFailed(msgs []messaging.Message) (messaging.Message, bool) {
	ordered := orderedMessages(msgs)
	for i := len(ordered) - 1; i >= 0; i-- {
		if _, ok := ordered[i].Origin.(messaging.Failed); ok {
			return ordered[i], true
		}
	}
	return messaging.Message{}, false
}

// LastConfirmed returns the newest backend-confirmed message, optionally
// restricted to ones not sent by selfID.
func LastConfirmed(msgs []messaging.Message, selfID string, incomingOnly bool) (messaging.Message, bool) {
	ordered := orderedMessages(msgs)
	for i := len(ordered) - 1; i >= 0; i-- {
		m := ordered[i]
		if _, ok := m.Origin.(messaging.Confirmed); !ok {
			continue
		}
		if incomingOnly && m.Sender.ID == selfID {
			continue
		}
		return m, true
	}
	return messaging.Message{}, false
}
