package ui

import (
	"slices"

	"github.com/rivo/tview"
)

// Pages is a navigation stack over tview.Pages. Page names double as
// breadcrumb labels through the titles map.
type Pages struct {
	*tview.Pages
	stack    []string
	titles   map[string]string
	onChange func(stack []string)
}

func NewPages() *Pages {
	return &Pages{
		Pages:  tview.NewPages(),
		titles: make(map[string]string),
	}
}

// SetOnChange registers a callback fired with the crumb trail after every
// stack change.
func (p *Pages) SetOnChange(fn func(crumbs []string)) {
	p.onChange = fn
}

// SetTitle sets the crumb label for page name.
func (p *Pages) SetTitle(name, title string) {
	p.titles[name] = title
	p.notify()
}

// Push shows name on top of the stack. Pushing the page already on top is a no-op;
// pushing a page deeper in the stack pops back to it.
func (p *Pages) Push(name string) {
	if p.Current() == name {
		return
	}
	if i := slices.Index(p.stack, name); i >= 0 {
		for _, n := range p.stack[i+1:] {
			p.HidePage(n)
		}
		p.stack = p.stack[:i+1]
	} else {
		if len(p.stack) > 0 {
			p.HidePage(p.stack[len(p.stack)-1])
		}
		p.stack = append(p.stack, name)
	}
	p.ShowPage(name)
	p.SendToFront(name)
	p.notify()
}

// Pop removes the top page unless it is the root. It returns the popped
// page, or "" when nothing was popped.
func (p *Pages) Pop() string {
	if len(p.stack) <= 1 {
		return ""
	}
	top := p.stack[len(p.stack)-1]
	p.HidePage(top)
	p.stack = p.stack[:len(p.stack)-1]
	current := p.stack[len(p.stack)-1]
	p.ShowPage(current)
	p.SendToFront(current)
	p.notify()
	return top
}

func (p *Pages) Current() string {
	if len(p.stack) == 0 {
		return ""
	}
	return p.stack[len(p.stack)-1]
}

// Stack returns a copy of the page names, root first.
func (p *Pages) Stack() []string {
	return slices.Clone(p.stack)
}

// Reset clears the stack down to name.
func (p *Pages) Reset(name string) {
	for _, n := range p.stack {
		p.HidePage(n)
	}
	p.stack = []string{name}
	p.ShowPage(name)
	p.SendToFront(name)
	p.notify()
}

// Crumbs returns the stack with titles applied.
func (p *Pages) Crumbs() []string {
	out := make([]string, len(p.stack))
	for i, n := range p.stack {
		out[i] = n
		if t, ok := p.titles[n]; ok && t != "" {
			out[i] = t
		}
	}
	return out
}

func (p *Pages) notify() {
	if p.onChange != nil {
		p.onChange(p.Crumbs())
	}
}
