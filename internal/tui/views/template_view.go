package views

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/schoolmsg/internal/template"
	"github.com/matheus3301/schoolmsg/internal/tui/ui"
	"github.com/rivo/tview"
)

// TemplatePicker lists message templates with a live preview of the highlighted one.
type TemplatePicker struct {
	*tview.Flex
	theme     *ui.Theme
	table     *tview.Table
	preview   *tview.TextView
	templates []template.Template
	onPick    func(id string)
}

func NewTemplatePicker(theme *ui.Theme) *TemplatePicker {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetTitle(" Templates ")
	table.SetTitleColor(theme.TitleColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))

	preview := tview.NewTextView().
		SetDynamicColors(true).
		SetWordWrap(true)
	preview.SetBorder(true)
	preview.SetBorderColor(theme.BorderColor)
	preview.SetBackgroundColor(theme.BgColor)
	preview.SetTextColor(theme.FgColor)
	preview.SetTitle(" Preview ")
	preview.SetTitleColor(theme.TitleColor)

	tp := &TemplatePicker{
		Flex: tview.NewFlex().
			AddItem(table, 0, 1, true).
			AddItem(preview, 0, 1, false),
		theme:   theme,
		table:   table,
		preview: preview,
	}
	table.SetSelectionChangedFunc(func(row, _ int) { tp.showPreview(row - 1) })
	table.SetSelectedFunc(func(row, _ int) {
		if id := tp.idAt(row - 1); id != "" && tp.onPick != nil {
			tp.onPick(id)
		}
	})
	return tp
}

// SetOnPick sets the callback for Enter on a template.
func (tp *TemplatePicker) SetOnPick(fn func(id string)) {
	tp.onPick = fn
}

// Update replaces the listed templates.
func (tp *TemplatePicker) Update(templates []template.Template) {
	tp.templates = templates
	tp.table.Clear()

	for col, h := range []string{" NAME", " CATEGORY", " USES"} {
		tp.table.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(tp.theme.TableHeaderFg).
			SetBackgroundColor(tp.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold))
	}
	for i, t := range templates {
		row := i + 1
		tp.table.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(t.Name)).SetExpansion(1).SetTextColor(tp.theme.FgColor))
		tp.table.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(t.Category)).SetTextColor(tp.theme.FgColor))
		tp.table.SetCell(row, 2, tview.NewTableCell(fmt.Sprintf(" %d", t.UsageCount)).SetAlign(tview.AlignRight).SetTextColor(tp.theme.FgColor))
	}
	if len(templates) > 0 {
		tp.table.Select(1, 0)
		tp.showPreview(0)
	}
}

func (tp *TemplatePicker) idAt(i int) string {
	if i < 0 || i >= len(tp.templates) {
		return ""
	}
	return tp.templates[i].ID
}

func (tp *TemplatePicker) showPreview(i int) {
	tp.preview.Clear()
	if i < 0 || i >= len(tp.templates) {
		return
	}
	t := tp.templates[i]
	_, _ = fmt.Fprintf(tp.preview, "\n%s\n\n[%s]variables:[-] %v\n",
		tview.Escape(template.Preview(t)), ui.Tag(tp.theme.MenuKeyColor), t.Variables)
}

// Table returns the template list for focus management.
func (tp *TemplatePicker) Table() *tview.Table {
	return tp.table
}
