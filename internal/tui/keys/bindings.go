// Package keys maps key events to actions, scoped per page.
package keys

import (
	"fmt"
	"slices"

	"github.com/gdamore/tcell/v2"
)

// Action is a single keybinding.
type Action struct {
	Key         tcell.Key
	Rune        rune
	Description string
	Handler     func()
	Hidden      bool
}

// Rune builds an action bound to a printable key.
func Rune(r rune, desc string, fn func()) *Action {
	return &Action{Key: tcell.KeyRune, Rune: r, Description: desc, Handler: fn}
}

// Key builds an action bound to a special key.
func Key(k tcell.Key, desc string, fn func()) *Action {
	return &Action{Key: k, Description: desc, Handler: fn}
}

// Matches reports whether ev triggers a.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	if a.Key != tcell.KeyRune {
		return ev.Key() == a.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == a.Rune
}

// Label is the key as shown in hints.
func (a *Action) Label() string {
	if a.Key == tcell.KeyRune {
		return string(a.Rune)
	}
	if name, ok := tcell.KeyNames[a.Key]; ok {
		return name
	}
	return fmt.Sprintf("key%d", a.Key)
}

// Hint is a displayable binding.
type Hint struct {
	Key         string
	Description string
}

// Registry holds global and per-page bindings in registration order.
type Registry struct {
	global []*Action
	views  map[string][]*Action
}

func NewRegistry() *Registry {
	return &Registry{views: make(map[string][]*Action)}
}

func (r *Registry) AddGlobal(actions ...*Action) {
	r.global = append(r.global, actions...)
}

func (r *Registry) AddView(view string, actions ...*Action) {
	r.views[view] = append(r.views[view], actions...)
}

// Hints returns the visible bindings for view, page bindings first.
func (r *Registry) Hints(view string) []Hint {
	var hints []Hint
	for _, a := range append(slices.Clone(r.views[view]), r.global...) {
		if !a.Hidden {
			hints = append(hints, Hint{Key: a.Label(), Description: a.Description})
		}
	}
	return hints
}

// HandleEvent runs the first binding matching ev, page bindings taking
// precedence over global ones. It reports whether one matched.
func (r *Registry) HandleEvent(view string, ev *tcell.EventKey) bool {
	for _, a := range r.views[view] {
		if a.Matches(ev) {
			a.Handler()
			return true
		}
	}
	for _, a := range r.global {
		if a.Matches(ev) {
			a.Handler()
			return true
		}
	}
	return false
}
