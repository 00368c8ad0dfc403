// Package tui is the terminal front end: a conversation list, message
// threads, templates and the in-app notification list.
package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/schoolmsg/internal/attachment"
	"github.com/matheus3301/schoolmsg/internal/convview"
	"github.com/matheus3301/schoolmsg/internal/messaging"
	"github.com/matheus3301/schoolmsg/internal/notify"
	"github.com/matheus3301/schoolmsg/internal/schedule"
	"github.com/matheus3301/schoolmsg/internal/template"
	"github.com/matheus3301/schoolmsg/internal/tui/keys"
	"github.com/matheus3301/schoolmsg/internal/tui/ui"
	"github.com/matheus3301/schoolmsg/internal/tui/views"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

// Page names.
const (
	pageConversations = "conversations"
	pageThread        = "thread"
	pageDetails       = "details"
	pageTemplates     = "templates"
	pageNotifications = "notifications"
	pageHelp          = "help"
)

const draftSaveDelay = 500 * time.Millisecond

// DraftStore persists unsent composer text per conversation.
type DraftStore interface {
	SaveDraft(conversationID, content string) error
	Draft(conversationID string) (string, error)
}

// LinkStatus reports whether live updates are flowing.
type LinkStatus interface {
	Connected() bool
}

// Options are the collaborators the UI drives.
type Options struct {
	Profile   string
	Store     *messaging.Store
	Engine    *notify.Engine
	Templates *template.Library
	Validator *attachment.Validator
	Uploader  *attachment.Uploader
	Drafts    DraftStore
	Link      LinkStatus
	Platform  *Platform
	Flash     *ui.FlashModel
	Logger    *zap.Logger
}

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	root     *tview.Flex
	pages    *ui.Pages
	header   *ui.Header
	flashBar *ui.FlashBar
	prompt   *ui.Prompt
	registry *keys.Registry

	list          *views.ConversationList
	thread        *views.MessageThread
	details       *views.ConversationInfo
	templates     *views.TemplatePicker
	notifications *views.NotificationList
	help          *views.HelpView

	store    *messaging.Store
	engine   *notify.Engine
	library  *template.Library
	opts     Options
	flash    *ui.FlashModel
	logger   *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once

	draftMu    sync.Mutex
	draftConv  string
	draftText  string
	draftSaver *schedule.Debouncer

	// Applied to sends from the composer until changed.
	category messaging.Category
	priority messaging.Priority
}

// NewApp builds the UI. Nothing is loaded until Run.
func NewApp(opts Options) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()
	flash := opts.Flash
	if flash == nil {
		flash = ui.NewFlashModel()
	}

	a := &App{
		app:           tview.NewApplication(),
		pages:         ui.NewPages(),
		header:        ui.NewHeader(theme),
		flashBar:      ui.NewFlashBar(theme),
		prompt:        ui.NewPrompt(theme),
		registry:      keys.NewRegistry(),
		list:          views.NewConversationList(theme),
		thread:        views.NewMessageThread(theme),
		details:       views.NewConversationInfo(theme),
		templates:     views.NewTemplatePicker(theme),
		notifications: views.NewNotificationList(theme),
		help:          views.NewHelpView(theme),
		store:         opts.Store,
		engine:        opts.Engine,
		library:       opts.Templates,
		opts:          opts,
		flash:         flash,
		logger:        opts.Logger,
		ctx:           ctx,
		cancel:        cancel,
		category:      messaging.CategoryGeneral,
		priority:      notify.PriorityNormal,
	}
	a.draftSaver = schedule.NewDebouncer(draftSaveDelay, a.flushDraft)

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(
		keys.Rune('?', "Help", func() { a.push(pageHelp) }),
		keys.Rune('n', "Alerts", func() { a.push(pageNotifications) }),
		keys.Rune('v', "Last alert", func() {
			if a.opts.Platform == nil || !a.opts.Platform.OpenLast() {
				a.flash.Info("no recent alert")
			}
		}),
		keys.Rune('q', "Quit", a.Stop),
	)

	a.registry.AddView(pageConversations,
		keys.Key(tcell.KeyEnter, "Open", func() { a.openConversation(a.list.SelectedID()) }),
		keys.Rune('p', "Pin", func() { a.toggleFlag(messaging.FlagPinned) }),
		keys.Rune('s', "Star", func() { a.toggleFlag(messaging.FlagStarred) }),
		keys.Rune('m', "Mute", func() { a.toggleFlag(messaging.FlagMuted) }),
		keys.Rune('r', "Resolve", func() { a.toggleFlag(messaging.FlagResolved) }),
		keys.Rune('a', "Archive", func() { a.toggleFlag(messaging.FlagArchived) }),
		keys.Rune('u', "Unread", func() {
			if id := a.list.SelectedID(); id != "" {
				a.async("marked unread", func(ctx context.Context) error { return a.store.MarkAsUnread(ctx, id) })
			}
		}),
		keys.Rune('o', "Sort", func() {
			next := nextSort(a.store.SortBy())
			a.async("sorted by "+string(next), func(ctx context.Context) error { return a.store.SetSortBy(ctx, next) })
		}),
		keys.Rune('0', "Clear", func() {
			a.async("filters cleared", func(ctx context.Context) error { return a.store.ClearFilters(ctx) })
		}),
		keys.Rune('d', "Details", func() { a.showDetails(a.list.SelectedID()) }),
	)

	a.registry.AddView(pageThread,
		keys.Rune('i', "Compose", func() { a.app.SetFocus(a.thread.Composer()) }),
		keys.Rune('l', "Older", a.loadOlder),
		keys.Rune('t', "Templates", func() { a.push(pageTemplates) }),
		keys.Rune('+', "Like", func() { a.react("like", true) }),
		keys.Rune('d', "Details", func() {
			if v := a.thread.View(); v != nil {
				a.showDetails(v.ConversationID())
			}
		}),
	)

	a.registry.AddView(pageNotifications,
		keys.Key(tcell.KeyEnter, "Open", func() {
			if n, ok := a.notifications.Selected(); ok {
				_ = a.engine.MarkRead(n.ID)
				if n.ConversationID != "" {
					a.openConversation(n.ConversationID)
				}
			}
		}),
		keys.Rune('x', "Dismiss", func() {
			if n, ok := a.notifications.Selected(); ok {
				a.report(a.engine.Dismiss(n.ID), "dismissed")
				a.render()
			}
		}),
		keys.Rune('z', "Snooze 10m", func() {
			if n, ok := a.notifications.Selected(); ok {
				a.report(a.engine.Snooze(n.ID, 10*time.Minute), "snoozed for 10 minutes")
				a.render()
			}
		}),
		keys.Rune('R', "All read", func() {
			a.engine.MarkAllRead()
			a.render()
		}),
	)
}

func (a *App) setupCallbacks() {
	a.list.SetOnOpen(a.openConversation)
	a.list.SetTypingFunc(a.store.IsTyping)
	a.list.OnScrollIdle(func() { go a.app.QueueUpdateDraw(func() {}) })

	a.thread.SetOnSend(a.sendFromComposer)
	a.thread.SetOnChange(func(text string) {
		v := a.thread.View()
		if v == nil {
			return
		}
		v.EmitTyping()
		a.draftMu.Lock()
		a.draftConv, a.draftText = v.ConversationID(), text
		a.draftMu.Unlock()
		a.draftSaver.Trigger()
	})

	a.templates.SetOnPick(a.insertTemplate)

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		switch mode {
		case ui.PromptSearch:
			a.async("", func(ctx context.Context) error { return a.store.SearchConversations(ctx, text) })
		case ui.PromptCommand:
			if err := a.execute(ParseCommand(text)); err != nil {
				a.flash.Err(err)
			}
		}
	})
	a.prompt.SetOnCancel(a.hidePrompt)

	a.pages.SetOnChange(func(crumbs []string) {
		a.header.SetCrumbs(crumbs)
		a.header.SetHints(a.hints())
	})

	if a.engine != nil {
		a.engine.SetFocusHandler(func(conversationID string) {
			go a.app.QueueUpdateDraw(func() { a.openConversation(conversationID) })
		})
	}
	if a.opts.Uploader != nil {
		a.opts.Uploader.OnProgress(func(pct int) {
			if pct > 0 {
				a.flash.Info(fmt.Sprintf("uploading… %d%%", pct))
			}
		})
	}
}

func (a *App) setupLayout() {
	a.pages.AddPage(pageConversations, a.list, true, false)
	a.pages.AddPage(pageThread, a.thread, true, false)
	a.pages.AddPage(pageDetails, a.details, true, false)
	a.pages.AddPage(pageTemplates, a.templates, true, false)
	a.pages.AddPage(pageNotifications, a.notifications, true, false)
	a.pages.AddPage(pageHelp, a.help, true, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.header, ui.HeaderHeight, 0, false).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.flashBar, 1, 0, false)
	a.app.SetRoot(a.root, true).EnableMouse(true)
	a.pages.Reset(pageConversations)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		focused := a.app.GetFocus()
		if focused == a.thread.Composer() && event.Key() == tcell.KeyEscape {
			a.app.SetFocus(a.thread.Messages())
			return nil
		}
		// Text inputs get every other key.
		if _, ok := focused.(*tview.InputField); ok {
			return event
		}

		switch {
		case event.Key() == tcell.KeyEscape:
			if a.pages.Pop() != "" {
				a.focusCurrent()
			}
			return nil
		case event.Key() == tcell.KeyRune && event.Rune() == ':':
			a.showPrompt(ui.PromptCommand)
			return nil
		case event.Key() == tcell.KeyRune && event.Rune() == '/':
			a.showPrompt(ui.PromptSearch)
			return nil
		}

		if a.registry.HandleEvent(a.pages.Current(), event) {
			return nil
		}
		return event
	})
}

func (a *App) hints() []ui.MenuHint {
	var out []ui.MenuHint
	for _, h := range a.registry.Hints(a.pages.Current()) {
		out = append(out, ui.MenuHint{Key: h.Key, Description: h.Description})
	}
	return out
}

func (a *App) push(page string) {
	a.pages.Push(page)
	a.focusCurrent()
	a.render()
}

func (a *App) focusCurrent() {
	switch a.pages.Current() {
	case pageConversations:
		a.app.SetFocus(a.list)
	case pageThread:
		a.app.SetFocus(a.thread.Messages())
	case pageDetails:
		a.app.SetFocus(a.details)
	case pageTemplates:
		a.app.SetFocus(a.templates.Table())
	case pageNotifications:
		a.app.SetFocus(a.notifications)
	case pageHelp:
		a.app.SetFocus(a.help)
	}
}

func (a *App) showPrompt(mode ui.PromptMode) {
	a.prompt.Activate(mode)
	a.root.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.root.ResizeItem(a.prompt, 0, 0)
	a.focusCurrent()
}

// async runs fn off the UI goroutine and flashes the outcome. The store
// signals a refresh when its state changes.
func (a *App) async(success string, fn func(ctx context.Context) error) {
	go func() {
		a.report(fn(a.ctx), success)
	}()
}

func (a *App) report(err error, success string) {
	switch {
	case err != nil:
		a.flash.Err(err)
	case success != "":
		a.flash.Info(success)
	}
}

func (a *App) openConversation(id string) {
	if id == "" {
		return
	}
	a.flushDraft()

	title := id
	if c, ok := a.store.Conversation(id); ok && c.Recipient.Name != "" {
		title = c.Recipient.Name
	}
	v := convview.New(a.store, id)
	a.store.SelectConversation(id)
	a.thread.Bind(v, title, a.store.Self().ID)

	draft := ""
	if a.opts.Drafts != nil {
		d, err := a.opts.Drafts.Draft(id)
		if err != nil {
			a.logger.Warn("load draft", zap.String("conversation_id", id), zap.Error(err))
		}
		draft = d
	}
	a.thread.SetDraft(draft)

	a.pages.SetTitle(pageThread, title)
	a.push(pageThread)

	go func() {
		if err := v.Refresh(a.ctx); err != nil {
			a.flash.Err(err)
			return
		}
		if err := v.MarkAsRead(a.ctx); err != nil {
			a.logger.Warn("mark conversation read", zap.String("conversation_id", id), zap.Error(err))
		}
	}()
}

func (a *App) loadOlder() {
	v := a.thread.View()
	if v == nil {
		return
	}
	if !v.HasMore() {
		a.flash.Info("no older messages")
		return
	}
	a.async("", v.LoadMore)
}

func (a *App) showDetails(id string) {
	c, ok := a.store.Conversation(id)
	if !ok {
		return
	}
	a.details.Update(c, a.store.Messages(id))
	a.pages.SetTitle(pageDetails, "details")
	a.push(pageDetails)
}

func (a *App) toggleFlag(flag messaging.Flag) {
	c, ok := a.list.Selected()
	if !ok {
		return
	}
	var fn func(context.Context, string) error
	var on bool
	switch flag {
	case messaging.FlagPinned:
		on = !c.Flags.Pinned
		fn = pick(on, a.store.PinConversation, a.store.UnpinConversation)
	case messaging.FlagStarred:
		on = !c.Flags.Starred
		fn = pick(on, a.store.StarConversation, a.store.UnstarConversation)
	case messaging.FlagMuted:
		on = !c.Flags.Muted
		fn = pick(on, a.store.MuteConversation, a.store.UnmuteConversation)
	case messaging.FlagResolved:
		on = !c.Flags.Resolved
		fn = pick(on, a.store.ResolveConversation, a.store.UnresolveConversation)
	case messaging.FlagArchived:
		on = !c.Flags.Archived
		fn = pick(on, a.store.ArchiveConversation, a.store.UnarchiveConversation)
	default:
		return
	}
	state := "off"
	if on {
		state = "on"
	}
	a.async(fmt.Sprintf("%s %s", flag, state), func(ctx context.Context) error { return fn(ctx, c.ID) })
}

func pick[T any](cond bool, yes, no T) T {
	if cond {
		return yes
	}
	return no
}

func (a *App) sendFromComposer(text string) {
	v := a.thread.View()
	if v == nil {
		return
	}
	opts := convview.SendOptions{Category: a.category, Priority: a.priority}
	a.draftSaver.Cancel()
	a.draftMu.Lock()
	a.draftConv, a.draftText = v.ConversationID(), ""
	a.draftMu.Unlock()
	a.flushDraft()

	go func() {
		if _, err := v.SendMessage(a.ctx, text, opts); err != nil {
			a.flash.Err(err)
		}
	}()
}

func (a *App) insertTemplate(id string) {
	vars := make(map[string]string)
	self := a.store.Self()
	vars["teacher_name"] = self.Name
	if v := a.thread.View(); v != nil {
		if c, ok := a.store.Conversation(v.ConversationID()); ok && c.Recipient.Role == messaging.RoleParent {
			vars["parent_name"] = c.Recipient.Name
		}
	}

	res, err := a.library.Insert(a.ctx, id, vars)
	if err != nil {
		a.flash.Err(err)
		return
	}
	a.pages.Pop()
	a.focusCurrent()
	a.thread.AppendDraft(res.Content)
	a.app.SetFocus(a.thread.Composer())
	if !res.Complete() {
		a.flash.Warn(fmt.Sprintf("fill in: %s", strings.Join(res.Unresolved, ", ")))
	}
}

func (a *App) react(reaction string, add bool) {
	v := a.thread.View()
	if v == nil {
		return
	}
	m, ok := views.LastConfirmed(v.Messages(), a.store.Self().ID, true)
	if !ok {
		a.flash.Info("no message to react to")
		return
	}
	if add {
		a.async("reacted "+reaction, func(ctx context.Context) error { return a.store.AddReaction(ctx, m.ID, reaction) })
		return
	}
	a.async("removed "+reaction, func(ctx context.Context) error { return a.store.RemoveReaction(ctx, m.ID, reaction) })
}

func (a *App) flushDraft() {
	a.draftMu.Lock()
	conv, text := a.draftConv, a.draftText
	a.draftConv = ""
	a.draftMu.Unlock()
	if conv == "" || a.opts.Drafts == nil {
		return
	}
	if err := a.opts.Drafts.SaveDraft(conv, text); err != nil {
		a.logger.Warn("save draft", zap.String("conversation_id", conv), zap.Error(err))
	}
}

// render pulls fresh snapshots into every view. It runs on the UI goroutine.
func (a *App) render() {
	a.list.Update(a.store.Conversations(), describeFilters(a.store.Filters(), a.store.SortBy()))
	if a.pages.Current() == pageThread {
		a.thread.Render()
	}
	if a.engine != nil {
		a.notifications.Update(a.engine.Active(), a.engine.Snoozed())
	}
	if a.library != nil {
		a.templates.Update(a.library.List())
	}

	if msg := a.store.Err(); msg != "" {
		a.store.ClearErr()
		a.flash.Warn(msg)
	}

	self := a.store.Self()
	data := ui.HeaderData{
		Profile:   a.opts.Profile,
		User:      self.Name,
		Role:      string(self.Role),
		Unread:    a.store.UnreadCount(),
		Scheduled: len(a.store.Scheduled()),
	}
	if a.engine != nil {
		data.Notifications = a.engine.UnreadNotifications()
	}
	if a.opts.Link != nil {
		data.Connected = a.opts.Link.Connected()
	}
	a.header.SetInfo(data)
	a.header.SetHints(a.hints())
	a.flashBar.Update(a.flash.Current())
}

// Run loads the initial state and blocks until the UI exits.
func (a *App) Run() error {
	go func() {
		if err := a.store.LoadConversations(a.ctx); err != nil {
			a.flash.Err(err)
		}
		if a.library != nil {
			if err := a.library.Load(a.ctx); err != nil {
				a.flash.Warn("templates: using built-in set")
			}
		}
		if err := a.store.LoadScheduledMessages(a.ctx); err != nil {
			a.logger.Warn("load scheduled messages", zap.Error(err))
		}
		if a.engine != nil {
			if p := a.engine.RequestPermission(a.ctx); p != notify.PermissionGranted {
				a.flash.Info("system alerts off; notifications stay in the list")
			}
		}
		a.app.QueueUpdateDraw(a.render)
		a.watch()
	}()

	a.render()
	a.focusCurrent()
	if err := a.app.Run(); err != nil {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}

// watch redraws on store changes, new flash messages and once a second for
// expiring typing markers and flash messages.
func (a *App) watch() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-a.store.RefreshCh():
			a.app.QueueUpdateDraw(a.render)
		case <-a.flash.Watch():
			a.app.QueueUpdateDraw(func() { a.flashBar.Update(a.flash.Current()) })
		case <-ticker.C:
			a.app.QueueUpdateDraw(a.render)
		case <-a.ctx.Done():
			return
		}
	}
}

// Stop saves the pending draft and shuts the UI down.
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		a.draftSaver.Cancel()
		a.flushDraft()
		a.list.Stop()
		a.cancel()
		a.app.Stop()
	})
}
