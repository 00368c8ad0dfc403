package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

// MenuHint describes a keyboard shortcut shown in the header.
type MenuHint struct {
	Key         string
	Description string
}

// HeaderData is the profile summary rendered on the left of the header.
type HeaderData struct {
	Profile       string
	User          string
	Role          string
	Unread        int
	Notifications int
	Scheduled     int
	Connected     bool
}

// Header is the top bar with profile info, key hints, a logo and breadcrumbs.
type Header struct {
	*tview.Flex
	theme  *Theme
	info   *tview.TextView
	menu   *tview.TextView
	logo   *tview.TextView
	crumbs *tview.TextView
}

// NewHeader creates the header. Its fixed height is HeaderHeight.
func NewHeader(theme *Theme) *Header {
	newText := func() *tview.TextView {
		tv := tview.NewTextView().SetDynamicColors(true)
		tv.SetBackgroundColor(theme.BgColor)
		return tv
	}
	h := &Header{
		theme:  theme,
		info:   newText(),
		menu:   newText(),
		logo:   newText(),
		crumbs: newText(),
	}
	h.info.SetBorderPadding(0, 0, 1, 1)
	h.menu.SetBorderPadding(0, 0, 2, 0)
	h.logo.SetBorderPadding(1, 0, 1, 0)

	top := tview.NewFlex().
		AddItem(h.info, 36, 0, false).
		AddItem(h.menu, 0, 1, false).
		AddItem(h.logo, 16, 0, false)
	h.Flex = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(top, HeaderHeight-1, 0, false).
		AddItem(h.crumbs, 1, 0, false)

	title := Tag(theme.TitleColor)
	_, _ = fmt.Fprintf(h.logo,
		"[%s::b]school[-:-:-]\n[%s::b]   msg[-:-:-]\n[%s]terminal client[-]",
		title, title, Tag(theme.FgColor))
	return h
}

// HeaderHeight is the number of rows the header occupies.
const HeaderHeight = 7

// SetInfo renders the profile summary.
func (h *Header) SetInfo(d HeaderData) {
	h.info.Clear()
	fg := Tag(h.theme.FgColor)
	ct := Tag(h.theme.CounterColor)
	link := "[" + Tag(h.theme.FailedColor) + "]offline[-]"
	if d.Connected {
		link = "[green]live[-]"
	}
	row := func(label, value string) string {
		return fmt.Sprintf("[%s::b]%-8s[-:-:-] [%s]%s[-]\n", fg, label, ct, value)
	}
	_, _ = fmt.Fprint(h.info,
		row("Profile:", d.Profile)+
			row("User:", fmt.Sprintf("%s (%s)", tview.Escape(d.User), d.Role))+
			row("Unread:", fmt.Sprintf("%d", d.Unread))+
			row("Alerts:", fmt.Sprintf("%d", d.Notifications))+
			row("Queued:", fmt.Sprintf("%d", d.Scheduled))+
			fmt.Sprintf("[%s::b]%-8s[-:-:-] %s", fg, "Link:", link))
}

// SetHints renders key hints in columns of HeaderHeight-1 rows.
func (h *Header) SetHints(hints []MenuHint) {
	h.menu.Clear()
	rows := HeaderHeight - 1
	lines := make([]string, rows)
	key := Tag(h.theme.MenuKeyColor)
	for i, hint := range hints {
		cell := fmt.Sprintf("[%s::b]<%s>[-:-:-] %-12s", key, hint.Key, hint.Description)
		lines[i%rows] += cell
	}
	_, _ = fmt.Fprint(h.menu, strings.Join(lines, "\n"))
}

// SetCrumbs renders the page stack, the last entry highlighted.
func (h *Header) SetCrumbs(stack []string) {
	h.crumbs.Clear()
	parts := make([]string, 0, len(stack))
	for i, name := range stack {
		fg, bg := h.theme.CrumbInactiveFg, h.theme.CrumbInactiveBg
		attr := ""
		if i == len(stack)-1 {
			fg, bg, attr = h.theme.CrumbActiveFg, h.theme.CrumbActiveBg, "b"
		}
		parts = append(parts, fmt.Sprintf("[%s:%s:%s] %s [-:-:-]", Tag(fg), Tag(bg), attr, tview.Escape(name)))
	}
	_, _ = fmt.Fprint(h.crumbs, strings.Join(parts, " "))
}
