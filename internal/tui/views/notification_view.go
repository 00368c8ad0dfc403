package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/schoolmsg/internal/notify"
	"github.com/matheus3301/schoolmsg/internal/tui/ui"
	"github.com/rivo/tview"
)

// NotificationList shows the in-app notification list, newest first.
type NotificationList struct {
	*tview.Table
	theme *ui.Theme
	items []notify.Notification
	now   func() time.Time
}

func NewNotificationList(theme *ui.Theme) *NotificationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetTitle(" Notifications ")
	table.SetTitleColor(theme.TitleColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	return &NotificationList{Table: table, theme: theme, now: time.Now}
}

// Update replaces the listed notifications, keeping the cursor row.
func (nl *NotificationList) Update(items []notify.Notification, snoozed int) {
	nl.items = items
	row, _ := nl.GetSelection()
	nl.Clear()

	for col, h := range []string{" ", " FROM", " MESSAGE", " PRIORITY", " TIME"} {
		nl.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(nl.theme.TableHeaderFg).
			SetBackgroundColor(nl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold))
	}
	now := nl.now()
	for i, n := range items {
		r := i + 1
		mark := " "
		fg := nl.theme.PendingColor
		if !n.Read {
			mark, fg = "●", nl.theme.UnreadColor
		}
		if n.Priority == notify.PriorityUrgent {
			fg = nl.theme.UrgentColor
		}
		from := n.SenderName
		if from == "" {
			from = n.Title
		}
		nl.SetCell(r, 0, tview.NewTableCell(" "+mark).SetTextColor(fg))
		nl.SetCell(r, 1, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(from))).SetMaxWidth(24).SetTextColor(fg))
		nl.SetCell(r, 2, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(n.Body))).SetExpansion(1).SetTextColor(fg))
		nl.SetCell(r, 3, tview.NewTableCell(" "+string(n.Priority)).SetTextColor(fg))
		nl.SetCell(r, 4, tview.NewTableCell(" "+formatTimestamp(n.Timestamp, now)).SetTextColor(fg))
	}

	title := " Notifications "
	if snoozed > 0 {
		title = fmt.Sprintf(" Notifications (%d snoozed) ", snoozed)
	}
	nl.SetTitle(title)
	if len(items) > 0 {
		nl.Select(max(1, min(row, len(items))), 0)
	}
}

// Selected returns the notification under the cursor.
func (nl *NotificationList) Selected() (notify.Notification, bool) {
	row, _ := nl.GetSelection()
	i := row - 1
	if i < 0 || i >= len(nl.items) {
		return notify.Notification{}, false
	}
	return nl.items[i], true
}
