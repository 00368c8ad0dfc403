package views

import (
	"fmt"
	"strings"

	"github.com/matheus3301/schoolmsg/internal/tui/ui"
	"github.com/rivo/tview"
)

// HelpView is the key and command reference.
type HelpView struct {
	*tview.TextView
}

func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{TextView: tv}
	hv.render(ui.Tag(theme.MenuKeyColor))
	return hv
}

var helpSections = []struct {
	title string
	rows  [][2]string
}{
	{"Global", [][2]string{
		{":", "Command mode"},
		{"/", "Search conversations"},
		{"n", "Notifications"},
		{"v", "Open the conversation of the last alert"},
		{"?", "Help"},
		{"Esc", "Back"},
		{"q", "Quit"},
	}},
	{"Conversation list", [][2]string{
		{"Enter", "Open conversation"},
		{"j/k", "Move down / up"},
		{"p s m r a", "Toggle pin, star, mute, resolved, archived"},
		{"u", "Mark unread"},
		{"o", "Cycle sort (recent, unread, name)"},
		{"0", "Clear search and filters"},
		{"d", "Details"},
	}},
	{"Thread", [][2]string{
		{"i", "Focus composer"},
		{"l", "Load older messages"},
		{"t", "Templates"},
		{"+", "React 'like' to the last incoming message"},
		{"d", "Details"},
	}},
	{"Commands", [][2]string{
		{":sort recent|unread|name", "Sort conversations"},
		{":filter unread starred pinned archived resolved role=parent category=academic", "Filter conversations"},
		{":clear", "Clear filters"},
		{":retry / :discard", "Retry or drop the last failed send"},
		{":react <type> / :unreact <type>", "React to the last incoming message"},
		{":pinmsg / :unpinmsg", "Pin or unpin the last message"},
		{":template <id>", "Insert a template into the composer"},
		{":attach <path> [caption]", "Send a file"},
		{":schedule <HH:MM|RFC3339> <text>", "Schedule a message"},
		{":unschedule <id>", "Cancel a scheduled message"},
		{":forward <conversation-id>...", "Forward the last message"},
		{":broadcast <text>", "Send to every listed conversation"},
		{":priority low|normal|high|urgent", "Priority of the next sends"},
		{":category <name>", "Category of the next sends"},
		{":quiet on|off", "Toggle quiet hours"},
		{":read / :unread", "Mark conversation read or unread"},
		{":readall", "Mark every alert read"},
		{":quit", "Quit"},
	}},
}

func (hv *HelpView) render(kc string) {
	var b strings.Builder
	for _, s := range helpSections {
		fmt.Fprintf(&b, "\n  [::b]%s[-:-:-]\n\n", s.title)
		for _, r := range s.rows {
			fmt.Fprintf(&b, "  [%s]%-28s[-:-:-] %s\n", kc, tview.Escape(r[0]), r[1])
		}
	}
	_, _ = fmt.Fprint(hv, b.String())
}
