package notify

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/schoolmsg/internal/bus"
	"go.uber.org/zap"
)

type mockPlatform struct {
	mu         sync.Mutex
	permission Permission
	shown      []Alert
	sounds     []SoundMode
	soundErr   error
	showErr    error
}

func (m *mockPlatform) Permission() Permission { return m.permission }

func (m *mockPlatform) RequestPermission(context.Context) (Permission, error) {
	m.permission = PermissionGranted
	return m.permission, nil
}

func (m *mockPlatform) Show(_ context.Context, a Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.showErr != nil {
		return m.showErr
	}
	m.shown = append(m.shown, a)
	return nil
}

func (m *mockPlatform) PlaySound(_ context.Context, mode SoundMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sounds = append(m.sounds, mode)
	return m.soundErr
}

func (m *mockPlatform) shownCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.shown)
}

type memSettings struct {
	s     Settings
	saves int
	err   error
}

func (m *memSettings) LoadNotificationSettings() (Settings, error) { return m.s, m.err }

func (m *memSettings) SaveNotificationSettings(s Settings) error {
	if m.err != nil {
		return m.err
	}
	m.s = s
	m.saves++
	return nil
}

type fixedUnread int

func (f fixedUnread) UnreadCount() int { return int(f) }

func newTestEngine(t *testing.T, s Settings, p *mockPlatform) *Engine {
	t.Helper()
	e := NewEngine(p, &memSettings{s: s}, fixedUnread(4), bus.New(), zap.NewNop())
	t.Cleanup(e.Stop)
	return e
}

func at(clock string) func() time.Time {
	return func() time.Time {
		t, _ := time.ParseInLocation("15:04", clock, time.Local)
		return time.Date(2026, 3, 2, t.Hour(), t.Minute(), 0, 0, time.Local)
	}
}

func TestQuietHoursActive(t *testing.T) {
	tests := []struct {
		start, end, now string
		want            bool
	}{
		{"22:00", "06:00", "23:30", true},
		{"22:00", "06:00", "02:00", true},
		{"22:00", "06:00", "10:00", false},
		{"22:00", "06:00", "06:00", false},
		{"22:00", "06:00", "22:00", true},
		{"12:00", "14:00", "13:00", true},
		{"12:00", "14:00", "14:00", false},
		{"12:00", "14:00", "11:59", false},
		{"08:00", "08:00", "08:00", false},
		{"", "06:00", "02:00", false},
	}
	for _, tt := range tests {
		t.Run(tt.start+"-"+tt.end+"@"+tt.now, func(t *testing.T) {
			if got := QuietHoursActive(tt.start, tt.end, tt.now); got != tt.want {
				t.Errorf("QuietHoursActive(%s, %s, %s) = %v, want %v", tt.start, tt.end, tt.now, got, tt.want)
			}
		})
	}
}

func TestGateOrder(t *testing.T) {
	base := DefaultSettings()
	base.QuietHours = QuietHours{Enabled: true, Start: "22:00", End: "06:00"}

	tests := []struct {
		name     string
		mutate   func(*Settings)
		perm     Permission
		clock    string
		priority Priority
		want     string
	}{
		{"all gates pass", nil, PermissionGranted, "10:00", PriorityNormal, ReasonShown},
		{"disabled", func(s *Settings) { s.Enabled = false }, PermissionGranted, "10:00", PriorityNormal, ReasonDisabled},
		{"disabled wins over system off", func(s *Settings) { s.Enabled = false; s.BrowserNotifications = false }, PermissionDenied, "23:00", PriorityNormal, ReasonDisabled},
		{"system notifications off", func(s *Settings) { s.BrowserNotifications = false }, PermissionGranted, "10:00", PriorityNormal, ReasonSystemOff},
		{"quiet hours", nil, PermissionGranted, "23:30", PriorityHigh, ReasonQuietHours},
		{"urgent bypasses quiet hours", nil, PermissionGranted, "23:30", PriorityUrgent, ReasonShown},
		{"quiet hours before permission", nil, PermissionDenied, "02:00", PriorityNormal, ReasonQuietHours},
		{"permission denied", nil, PermissionDenied, "10:00", PriorityNormal, ReasonNoPermission},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base
			if tt.mutate != nil {
				tt.mutate(&s)
			}
			p := &mockPlatform{permission: tt.perm}
			e := newTestEngine(t, s, p)
			e.now = at(tt.clock)

			d := e.Raise(context.Background(), Notification{Type: TypeMessage, Priority: tt.priority, Body: "hi"})
			if d.Reason != tt.want {
				t.Errorf("reason = %q, want %q", d.Reason, tt.want)
			}
			if d.Escalated != (tt.want == ReasonShown) {
				t.Errorf("escalated = %v", d.Escalated)
			}
			// The in-app record is never discarded.
			if n := len(e.Active()); n != 1 {
				t.Errorf("active = %d, want 1", n)
			}
		})
	}
}

func TestShapeByPreviewMode(t *testing.T) {
	n := Notification{ID: "n1", Type: TypeMessage, SenderName: "Ms. Rivera", Body: "Field trip tomorrow", ConversationID: "c1"}
	tests := []struct {
		mode      PreviewMode
		wantTitle string
		wantBody  string
	}{
		{PreviewFull, "Ms. Rivera", "Field trip tomorrow"},
		{PreviewSenderOnly, "Ms. Rivera", "You have a new message"},
		{PreviewCountOnly, "School Messages", "You have 4 unread messages"},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			s := DefaultSettings()
			s.Preview = tt.mode
			e := newTestEngine(t, s, &mockPlatform{})
			a := e.Shape(n)
			if a.Title != tt.wantTitle || a.Body != tt.wantBody {
				t.Errorf("alert = %q/%q, want %q/%q", a.Title, a.Body, tt.wantTitle, tt.wantBody)
			}
			if a.Tag != "c1" {
				t.Errorf("tag = %q, want conversation id when grouping", a.Tag)
			}
		})
	}
}

func TestShapeLeavesSystemNotifications(t *testing.T) {
	e := newTestEngine(t, DefaultSettings(), &mockPlatform{})
	a := e.Shape(Notification{ID: "b1", Type: TypeBroadcast, Title: "Broadcast sent", Body: "Delivered to 30 recipients"})
	if a.Title != "Broadcast sent" || a.Body != "Delivered to 30 recipients" {
		t.Errorf("alert = %q/%q", a.Title, a.Body)
	}
}

func TestSoundSkippedWhenSilent(t *testing.T) {
	s := DefaultSettings()
	s.Sound = SoundSilent
	p := &mockPlatform{permission: PermissionGranted}
	e := newTestEngine(t, s, p)
	e.now = at("10:00")

	e.Raise(context.Background(), Notification{Type: TypeMessage})
	if len(p.sounds) != 0 {
		t.Errorf("sounds = %v, want none", p.sounds)
	}
}

func TestSoundFailureIsSwallowed(t *testing.T) {
	p := &mockPlatform{permission: PermissionGranted, soundErr: errors.New("no audio device")}
	e := newTestEngine(t, DefaultSettings(), p)
	e.now = at("10:00")

	d := e.Raise(context.Background(), Notification{Type: TypeMessage})
	if !d.Escalated {
		t.Errorf("decision = %+v, want escalated despite sound failure", d)
	}
	if len(p.sounds) != 1 {
		t.Errorf("sound attempts = %d, want 1", len(p.sounds))
	}
}

func TestSnoozeReinsertsCapturedState(t *testing.T) {
	e := newTestEngine(t, DefaultSettings(), &mockPlatform{})
	orig := Notification{
		ID: "n1", Type: TypeMessage, ConversationID: "c1", MessageID: "m1",
		Priority: PriorityHigh, Timestamp: time.Now().Add(-time.Minute),
		SenderName: "Coach", Body: "Practice moved",
	}
	e.Raise(context.Background(), orig)

	if err := e.Snooze("n1", 100*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if n := len(e.Active()); n != 0 {
		t.Fatalf("active = %d right after snooze, want 0", n)
	}

	time.Sleep(200 * time.Millisecond)

	active := e.Active()
	if len(active) != 1 {
		t.Fatalf("active = %d after snooze elapsed, want 1", len(active))
	}
	if !reflect.DeepEqual(active[0], orig) {
		t.Errorf("reinserted = %+v, want %+v", active[0], orig)
	}
	if e.Snoozed() != 0 {
		t.Errorf("snoozed = %d, want 0", e.Snoozed())
	}
}

func TestDismissCancelsSnooze(t *testing.T) {
	e := newTestEngine(t, DefaultSettings(), &mockPlatform{})
	e.Raise(context.Background(), Notification{ID: "n1", Type: TypeSystem})

	if err := e.Snooze("n1", 50*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := e.Dismiss("n1"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(120 * time.Millisecond)

	if n := len(e.Active()); n != 0 {
		t.Errorf("active = %d, dismissed notification came back", n)
	}
	if err := e.Dismiss("n1"); !errors.Is(err, ErrNotificationNotFound) {
		t.Errorf("second Dismiss() error = %v, want ErrNotificationNotFound", err)
	}
}

func TestSnoozeUnknown(t *testing.T) {
	e := newTestEngine(t, DefaultSettings(), &mockPlatform{})
	if err := e.Snooze("missing", time.Second); !errors.Is(err, ErrNotificationNotFound) {
		t.Errorf("error = %v, want ErrNotificationNotFound", err)
	}
}

func TestActiveOrderedNewestFirst(t *testing.T) {
	e := newTestEngine(t, DefaultSettings(), &mockPlatform{})
	now := time.Now()
	e.Raise(context.Background(), Notification{ID: "old", Timestamp: now.Add(-2 * time.Minute)})
	e.Raise(context.Background(), Notification{ID: "new", Timestamp: now})
	e.Raise(context.Background(), Notification{ID: "mid", Timestamp: now.Add(-time.Minute)})

	var ids []string
	for _, n := range e.Active() {
		ids = append(ids, n.ID)
	}
	if want := []string{"new", "mid", "old"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("order = %v, want %v", ids, want)
	}
}

func TestMarkReadAndUnreadCount(t *testing.T) {
	e := newTestEngine(t, DefaultSettings(), &mockPlatform{})
	e.Raise(context.Background(), Notification{ID: "a"})
	e.Raise(context.Background(), Notification{ID: "b"})

	if err := e.MarkRead("a"); err != nil {
		t.Fatal(err)
	}
	if got := e.UnreadNotifications(); got != 1 {
		t.Errorf("unread = %d, want 1", got)
	}
	e.MarkAllRead()
	if got := e.UnreadNotifications(); got != 0 {
		t.Errorf("unread = %d, want 0", got)
	}
}

func TestUpdateSettingsPersists(t *testing.T) {
	store := &memSettings{s: DefaultSettings()}
	e := NewEngine(&mockPlatform{}, store, nil, bus.New(), zap.NewNop())

	s := DefaultSettings()
	s.Preview = PreviewCountOnly
	s.QuietHours = QuietHours{Enabled: true, Start: "21:30", End: "06:45"}
	if err := e.UpdateSettings(s); err != nil {
		t.Fatal(err)
	}
	if store.saves != 1 || store.s.Preview != PreviewCountOnly {
		t.Errorf("store = %+v (saves %d), want persisted count_only", store.s, store.saves)
	}

	bad := s
	bad.Preview = "everything"
	if err := e.UpdateSettings(bad); err == nil {
		t.Error("UpdateSettings() should reject unknown preview mode")
	}
	bad = s
	bad.QuietHours.Start = "25:00"
	if err := e.UpdateSettings(bad); err == nil {
		t.Error("UpdateSettings() should reject invalid clock")
	}
	if e.Settings().Preview != PreviewCountOnly {
		t.Error("rejected update changed current settings")
	}
}

func TestLoadFailureFallsBackToDefaults(t *testing.T) {
	e := NewEngine(&mockPlatform{}, &memSettings{err: errors.New("disk gone")}, nil, bus.New(), zap.NewNop())
	if !reflect.DeepEqual(e.Settings(), DefaultSettings()) {
		t.Errorf("settings = %+v, want defaults", e.Settings())
	}
}

func TestStartConsumesBus(t *testing.T) {
	b := bus.New()
	p := &mockPlatform{permission: PermissionGranted}
	e := NewEngine(p, &memSettings{s: DefaultSettings()}, nil, b, zap.NewNop())
	e.now = at("10:00")
	e.Start(context.Background())
	defer e.Stop()

	// Give the consumer goroutine time to subscribe.
	time.Sleep(20 * time.Millisecond)
	b.Publish(bus.NewEvent(bus.KindNotificationRaised, Notification{ID: "x", Type: TypeMessage, SenderName: "Office"}))

	deadline := time.Now().Add(time.Second)
	for p.shownCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if p.shownCount() != 1 {
		t.Fatalf("shown = %d, want 1", p.shownCount())
	}
}

func TestAlertClickFocusesConversation(t *testing.T) {
	p := &mockPlatform{permission: PermissionGranted}
	e := newTestEngine(t, DefaultSettings(), p)
	e.now = at("10:00")
	var focused string
	e.SetFocusHandler(func(id string) { focused = id })

	e.Raise(context.Background(), Notification{ID: "n1", Type: TypeMessage, ConversationID: "c9"})
	p.shown[0].OnClick()

	if focused != "c9" {
		t.Errorf("focused = %q, want c9", focused)
	}
	if e.UnreadNotifications() != 0 {
		t.Error("clicked notification should be read")
	}
}
