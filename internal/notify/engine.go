package notify

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/schoolmsg/internal/bus"
	"github.com/matheus3301/schoolmsg/internal/schedule"
	"go.uber.org/zap"
)

// ErrNotificationNotFound is returned when an id matches no active or snoozed notification.
var ErrNotificationNotFound = errors.New("notification not found")

// Suppression reasons reported in a Decision.
const (
	ReasonShown          = "shown"
	ReasonDisabled       = "notifications disabled"
	ReasonSystemOff      = "system notifications off"
	ReasonQuietHours     = "quiet hours"
	ReasonNoPermission   = "permission not granted"
	ReasonPlatformFailed = "platform error"
)

// Decision records whether a notification was escalated to a system alert.
type Decision struct {
	Escalated bool
	Reason    string
}

// Engine keeps the in-app notification list and decides which entries become
// system alerts.
type Engine struct {
	mu sync.RWMutex

	platform Platform
	store    SettingsStore
	unread   UnreadCounter
	bus      *bus.Bus
	logger   *zap.Logger
	now      func() time.Time

	settings Settings
	active   []Notification
	snoozed  map[string]*schedule.Handle
	onFocus  func(conversationID string)
	cancel   context.CancelFunc
}

// NewEngine creates an engine and loads settings once. A failed load falls
// back to defaults.
func NewEngine(platform Platform, store SettingsStore, unread UnreadCounter, b *bus.Bus, logger *zap.Logger) *Engine {
	e := &Engine{
		platform: platform,
		store:    store,
		unread:   unread,
		bus:      b,
		logger:   logger,
		now:      time.Now,
		settings: DefaultSettings(),
		snoozed:  make(map[string]*schedule.Handle),
	}
	if store != nil {
		s, err := store.LoadNotificationSettings()
		if err != nil {
			logger.Warn("load notification settings, using defaults", zap.Error(err))
		} else {
			e.settings = s
		}
	}
	return e
}

// SetFocusHandler registers the callback invoked when a system alert is clicked.
func (e *Engine) SetFocusHandler(fn func(conversationID string)) {
	e.mu.Lock()
	e.onFocus = fn
	e.mu.Unlock()
}

// Start consumes notification.raised events from the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	ch, unsub := e.bus.Subscribe("notification.", 64)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				n, ok := evt.Payload.(Notification)
				if !ok {
					continue
				}
				e.Raise(ctx, n)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops consuming events and drops pending snoozes.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.mu.Lock()
	for id, h := range e.snoozed {
		h.Cancel()
		delete(e.snoozed, id)
	}
	e.mu.Unlock()
}

// Raise records n in the active list and escalates it when every gate passes.
// The in-app record is kept regardless of the decision.
func (e *Engine) Raise(ctx context.Context, n Notification) Decision {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = e.now()
	}
	if n.Priority == "" {
		n.Priority = PriorityNormal
	}

	e.mu.Lock()
	e.insertLocked(n)
	e.mu.Unlock()

	d := e.escalate(ctx, n)
	e.logger.Debug("notification raised",
		zap.String("id", n.ID),
		zap.String("type", string(n.Type)),
		zap.Bool("escalated", d.Escalated),
		zap.String("reason", d.Reason))
	return d
}

// ShouldEscalate applies the gate order: enabled, system notifications,
// quiet hours (urgent bypasses), platform permission.
func (e *Engine) ShouldEscalate(n Notification) Decision {
	s := e.Settings()
	if !s.Enabled {
		return Decision{Reason: ReasonDisabled}
	}
	if !s.BrowserNotifications {
		return Decision{Reason: ReasonSystemOff}
	}
	if s.QuietHours.Active(e.now()) && n.Priority != PriorityUrgent {
		return Decision{Reason: ReasonQuietHours}
	}
	if e.platform == nil || e.platform.Permission() != PermissionGranted {
		return Decision{Reason: ReasonNoPermission}
	}
	return Decision{Escalated: true, Reason: ReasonShown}
}

func (e *Engine) escalate(ctx context.Context, n Notification) Decision {
	d := e.ShouldEscalate(n)
	if !d.Escalated {
		return d
	}

	alert := e.Shape(n)
	e.mu.RLock()
	onFocus := e.onFocus
	e.mu.RUnlock()
	alert.OnClick = func() {
		_ = e.MarkRead(n.ID)
		if onFocus != nil && n.ConversationID != "" {
			onFocus(n.ConversationID)
		}
	}

	if err := e.platform.Show(ctx, alert); err != nil {
		e.logger.Warn("show system notification", zap.Error(err), zap.String("id", n.ID))
		return Decision{Reason: ReasonPlatformFailed}
	}

	if mode := e.Settings().Sound; mode != SoundSilent {
		if err := e.platform.PlaySound(ctx, mode); err != nil {
			e.logger.Warn("play notification sound", zap.Error(err), zap.String("mode", string(mode)))
		}
	}
	return d
}

// Shape builds the system alert for n according to the preview mode.
// Only message-like notifications are shaped; others keep their own title/body.
func (e *Engine) Shape(n Notification) Alert {
	s := e.Settings()
	a := Alert{
		Title:          n.Title,
		Body:           n.Body,
		Tag:            n.ID,
		ConversationID: n.ConversationID,
		Urgent:         n.Priority == PriorityUrgent,
	}
	if s.Grouping && n.ConversationID != "" {
		a.Tag = n.ConversationID
	}
	if n.Type != TypeMessage && n.Type != TypeMention {
		return a
	}

	sender := n.SenderName
	if sender == "" {
		sender = "New message"
	}
	switch s.Preview {
	case PreviewSenderOnly:
		a.Title = sender
		a.Body = "You have a new message"
	case PreviewCountOnly:
		a.Title = "School Messages"
		a.Body = unreadBody(e.unreadCount())
	default:
		a.Title = sender
		a.Body = n.Body
	}
	return a
}

func unreadBody(count int) string {
	if count == 1 {
		return "You have 1 unread message"
	}
	return fmt.Sprintf("You have %d unread messages", count)
}

func (e *Engine) unreadCount() int {
	if e.unread != nil {
		return e.unread.UnreadCount()
	}
	return e.UnreadNotifications()
}

// Snooze removes the notification now and re-inserts the captured copy after d.
func (e *Engine) Snooze(id string, d time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.indexLocked(id)
	if idx < 0 {
		return fmt.Errorf("snooze %s: %w", id, ErrNotificationNotFound)
	}
	n := e.active[idx]
	e.active = slices.Delete(e.active, idx, idx+1)

	e.snoozed[id].Cancel()
	e.snoozed[id] = schedule.After(d, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.snoozed, id)
		e.insertLocked(n)
	})
	return nil
}

// Dismiss permanently removes a notification, including a snoozed one.
func (e *Engine) Dismiss(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	found := false
	if idx := e.indexLocked(id); idx >= 0 {
		e.active = slices.Delete(e.active, idx, idx+1)
		found = true
	}
	if h, ok := e.snoozed[id]; ok {
		h.Cancel()
		delete(e.snoozed, id)
		found = true
	}
	if !found {
		return fmt.Errorf("dismiss %s: %w", id, ErrNotificationNotFound)
	}
	return nil
}

// MarkRead flags a single active notification as read.
func (e *Engine) MarkRead(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx := e.indexLocked(id)
	if idx < 0 {
		return fmt.Errorf("mark read %s: %w", id, ErrNotificationNotFound)
	}
	e.active[idx].Read = true
	return nil
}

// MarkAllRead flags every active notification as read.
func (e *Engine) MarkAllRead() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.active {
		e.active[i].Read = true
	}
}

// Active returns a snapshot of the active notifications, newest first.
func (e *Engine) Active() []Notification {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.active)
}

// Snoozed returns the number of notifications waiting to be re-inserted.
func (e *Engine) Snoozed() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.snoozed)
}

// UnreadNotifications counts active notifications not yet read.
func (e *Engine) UnreadNotifications() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	count := 0
	for _, n := range e.active {
		if !n.Read {
			count++
		}
	}
	return count
}

// Settings returns the current settings.
func (e *Engine) Settings() Settings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.settings
}

// UpdateSettings validates and persists s, then makes it current.
func (e *Engine) UpdateSettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if e.store != nil {
		if err := e.store.SaveNotificationSettings(s); err != nil {
			return fmt.Errorf("save notification settings: %w", err)
		}
	}
	e.mu.Lock()
	e.settings = s
	e.mu.Unlock()
	return nil
}

// RequestPermission asks the platform for alert permission. A denial
// degrades to in-app notifications only.
func (e *Engine) RequestPermission(ctx context.Context) Permission {
	if e.platform == nil {
		return PermissionDenied
	}
	p, err := e.platform.RequestPermission(ctx)
	if err != nil {
		e.logger.Warn("request notification permission", zap.Error(err))
		return PermissionDenied
	}
	return p
}

func (e *Engine) indexLocked(id string) int {
	return slices.IndexFunc(e.active, func(n Notification) bool { return n.ID == id })
}

// insertLocked keeps the list ordered newest first.
func (e *Engine) insertLocked(n Notification) {
	idx, _ := slices.BinarySearchFunc(e.active, n, func(a, b Notification) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	e.active = slices.Insert(e.active, idx, n)
}
