package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/schoolmsg/internal/messaging"
	"github.com/matheus3301/schoolmsg/internal/tui/ui"
	"github.com/matheus3301/schoolmsg/internal/vscroll"
	"github.com/rivo/tview"
)

const (
	colUnread = 5
	colName   = 24
	colRole   = 8
	colFlags  = 6
	colTime   = 6
)

// ConversationList draws the conversation list one row per conversation,
// rendering only the rows inside the scroll window.
type ConversationList struct {
	*tview.Box
	theme    *ui.Theme
	window   *vscroll.Window
	convs    []messaging.Conversation
	selected int
	rows     int
	summary  string
	now      func() time.Time
	typing   func(conversationID string) bool
	onOpen   func(conversationID string)
}

func NewConversationList(theme *ui.Theme) *ConversationList {
	cl := &ConversationList{
		Box:   tview.NewBox(),
		theme: theme,
		now:   time.Now,
	}
	cl.window = vscroll.New(vscroll.Config{ItemHeight: 1, Overscan: 3}, cl)
	cl.SetBorder(true)
	cl.SetBorderColor(theme.BorderColor)
	cl.SetBackgroundColor(theme.BgColor)
	cl.SetTitleColor(theme.TitleColor)
	cl.SetTitle(" Conversations ")
	return cl
}

// ScrollTo moves the viewport. It is the window's scroller.
func (cl *ConversationList) ScrollTo(offset int, _ vscroll.Behavior) {
	cl.window.OnScroll(min(offset, cl.maxScroll()))
}

// OnScrollIdle registers a callback run once scrolling settles.
func (cl *ConversationList) OnScrollIdle(fn func()) {
	cl.window.OnIdle(fn)
}

func (cl *ConversationList) SetTypingFunc(fn func(conversationID string) bool) {
	cl.typing = fn
}

func (cl *ConversationList) SetOnOpen(fn func(conversationID string)) {
	cl.onOpen = fn
}

// Update replaces the list contents. The selection follows the previously
// selected conversation when it is still present.
func (cl *ConversationList) Update(convs []messaging.Conversation, summary string) {
	prev := cl.SelectedID()
	cl.convs = convs
	cl.summary = summary
	cl.window.SetItemCount(len(convs))

	cl.selected = min(cl.selected, max(len(convs)-1, 0))
	for i, c := range convs {
		if c.ID == prev {
			cl.selected = i
			break
		}
	}
	if top := cl.window.ScrollTop(); top > cl.maxScroll() {
		cl.window.OnScroll(cl.maxScroll())
	}

	title := fmt.Sprintf(" Conversations (%d) ", len(convs))
	if summary != "" {
		title = fmt.Sprintf(" Conversations (%d) %s ", len(convs), summary)
	}
	cl.SetTitle(title)
}

// SelectedID returns the highlighted conversation, or "" for an empty list.
func (cl *ConversationList) SelectedID() string {
	if cl.selected < 0 || cl.selected >= len(cl.convs) {
		return ""
	}
	return cl.convs[cl.selected].ID
}

// Selected returns the highlighted conversation.
func (cl *ConversationList) Selected() (messaging.Conversation, bool) {
	if cl.selected < 0 || cl.selected >= len(cl.convs) {
		return messaging.Conversation{}, false
	}
	return cl.convs[cl.selected], true
}

// Select highlights index i, clamped to the list, and scrolls it into view.
func (cl *ConversationList) Select(i int) {
	if len(cl.convs) == 0 {
		cl.selected = 0
		return
	}
	cl.selected = max(0, min(i, len(cl.convs)-1))
	cl.ensureVisible()
}

func (cl *ConversationList) ensureVisible() {
	if cl.rows <= 0 {
		return
	}
	top := cl.window.ScrollTop()
	switch {
	case cl.window.OffsetOf(cl.selected) < top:
		cl.window.ScrollToIndex(cl.selected, vscroll.BehaviorAuto)
	case cl.window.OffsetOf(cl.selected) >= top+cl.rows:
		cl.window.ScrollToIndex(cl.selected-cl.rows+1, vscroll.BehaviorAuto)
	}
}

func (cl *ConversationList) resize(rows int) {
	cl.rows = max(rows, 0)
	cl.window.Resize(cl.rows)
}

func (cl *ConversationList) maxScroll() int {
	return max(cl.window.TotalHeight()-cl.rows, 0)
}

// Draw renders the header and the windowed rows.
func (cl *ConversationList) Draw(screen tcell.Screen) {
	cl.DrawForSubclass(screen, cl)
	x, y, width, height := cl.GetInnerRect()
	if height < 2 || width <= 0 {
		return
	}
	cl.resize(height - 1)

	header := fmt.Sprintf("[%s::b]%s%s%s%s%s%s[-:-:-]", ui.Tag(cl.theme.TableHeaderFg),
		fit(" NEW", colUnread), fit("NAME", colName), fit("ROLE", colRole), fit("FLAGS", colFlags),
		fit("LAST MESSAGE", max(width-colUnread-colName-colRole-colFlags-colTime, 0)), fit("TIME", colTime))
	tview.Print(screen, header, x, y, width, tview.AlignLeft, cl.theme.TableHeaderFg)

	start, end := cl.window.Range()
	top := cl.window.ScrollTop()
	scrolling := cl.window.IsScrolling()
	now := cl.now()
	for i := start; i < end; i++ {
		row := cl.window.OffsetOf(i) - top
		if row < 0 || row >= cl.rows {
			continue
		}
		line := cl.formatRow(cl.convs[i], width, now, scrolling)
		fg := cl.theme.FgColor
		if i == cl.selected {
			style := tcell.StyleDefault.Foreground(cl.theme.TableCursorFg).Background(cl.theme.TableCursorBg)
			for col := x; col < x+width; col++ {
				screen.SetContent(col, y+1+row, ' ', nil, style)
			}
			line = fmt.Sprintf("[%s:%s]%s", ui.Tag(cl.theme.TableCursorFg), ui.Tag(cl.theme.TableCursorBg), line)
			fg = cl.theme.TableCursorFg
		}
		tview.Print(screen, line, x, y+1+row, width, tview.AlignLeft, fg)
	}
}

// formatRow renders one conversation. Typing lookups are skipped while the
// list is scrolling.
func (cl *ConversationList) formatRow(c messaging.Conversation, width int, now time.Time, scrolling bool) string {
	unread := ""
	if c.UnreadCount > 0 {
		unread = fmt.Sprintf("(%d)", c.UnreadCount)
	}
	preview, at := "", ""
	if c.LastMessage != nil {
		preview = c.LastMessage.Content
		at = formatTimestamp(c.LastMessage.At, now)
	}
	if !scrolling && cl.typing != nil && cl.typing(c.ID) {
		preview = "typing…"
	}
	name := c.Recipient.Name
	if name == "" {
		name = c.Recipient.ID
	}
	previewWidth := max(width-colUnread-colName-colRole-colFlags-colTime, 0)

	line := fit(" "+unread, colUnread) +
		tview.Escape(fit(sanitizeForTerminal(name), colName)) +
		fit(string(c.Recipient.Role), colRole) +
		fit(flagBadges(c.Flags), colFlags) +
		tview.Escape(fit(sanitizeForTerminal(preview), previewWidth)) +
		fit(at, colTime)
	if c.UnreadCount > 0 {
		line = "[::b]" + line + "[::-]"
	}
	return line
}

// InputHandler moves the selection and opens conversations.
func (cl *ConversationList) InputHandler() func(event *tcell.EventKey, setFocus func(p tview.Primitive)) {
	return cl.WrapInputHandler(func(event *tcell.EventKey, _ func(p tview.Primitive)) {
		page := max(cl.rows-1, 1)
		switch event.Key() {
		case tcell.KeyUp:
			cl.Select(cl.selected - 1)
		case tcell.KeyDown:
			cl.Select(cl.selected + 1)
		case tcell.KeyPgUp:
			cl.Select(cl.selected - page)
		case tcell.KeyPgDn:
			cl.Select(cl.selected + page)
		case tcell.KeyHome:
			cl.Select(0)
		case tcell.KeyEnd:
			cl.Select(len(cl.convs) - 1)
		case tcell.KeyEnter:
			if id := cl.SelectedID(); id != "" && cl.onOpen != nil {
				cl.onOpen(id)
			}
		case tcell.KeyRune:
			switch event.Rune() {
			case 'j':
				cl.Select(cl.selected + 1)
			case 'k':
				cl.Select(cl.selected - 1)
			case 'g':
				cl.Select(0)
			case 'G':
				cl.Select(len(cl.convs) - 1)
			}
		}
	})
}

// MouseHandler scrolls on the wheel and selects on click.
func (cl *ConversationList) MouseHandler() func(action tview.MouseAction, event *tcell.EventMouse, setFocus func(p tview.Primitive)) (consumed bool, capture tview.Primitive) {
	return cl.WrapMouseHandler(func(action tview.MouseAction, event *tcell.EventMouse, setFocus func(p tview.Primitive)) (bool, tview.Primitive) {
		mx, my := event.Position()
		if !cl.InRect(mx, my) {
			return false, nil
		}
		switch action {
		case tview.MouseScrollUp:
			cl.ScrollTo(max(cl.window.ScrollTop()-1, 0), vscroll.BehaviorSmooth)
			return true, nil
		case tview.MouseScrollDown:
			cl.ScrollTo(cl.window.ScrollTop()+1, vscroll.BehaviorSmooth)
			return true, nil
		case tview.MouseLeftClick:
			setFocus(cl)
			_, y, _, _ := cl.GetInnerRect()
			if row := my - y - 1; row >= 0 {
				cl.Select(cl.window.ScrollTop() + row)
			}
			return true, nil
		case tview.MouseLeftDoubleClick:
			if id := cl.SelectedID(); id != "" && cl.onOpen != nil {
				cl.onOpen(id)
			}
			return true, nil
		}
		return false, nil
	})
}

// Stop cancels the scroll idle timer.
func (cl *ConversationList) Stop() {
	cl.window.Stop()
}
