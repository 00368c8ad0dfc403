package tui

import (
	"context"
	"io"
	"sync"

	"github.com/matheus3301/schoolmsg/internal/notify"
	"github.com/matheus3301/schoolmsg/internal/tui/ui"
)

// Platform delivers system alerts inside the terminal: the alert goes to
// the flash bar and sounds ring the terminal bell.
type Platform struct {
	mu    sync.Mutex
	perm  notify.Permission
	bell  bool
	out   io.Writer
	flash *ui.FlashModel
	last  *notify.Alert
}

// NewPlatform creates a terminal platform. granted seeds the permission
// from configuration; bell enables audible alerts written to out.
func NewPlatform(granted, bell bool, flash *ui.FlashModel, out io.Writer) *Platform {
	perm := notify.PermissionDefault
	if granted {
		perm = notify.PermissionGranted
	}
	return &Platform{perm: perm, bell: bell, out: out, flash: flash}
}

func (p *Platform) Permission() notify.Permission {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.perm
}

// RequestPermission grants alerts unless they were explicitly denied.
func (p *Platform) RequestPermission(context.Context) (notify.Permission, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.perm == notify.PermissionDefault {
		p.perm = notify.PermissionGranted
	}
	return p.perm, nil
}

// Deny revokes alert permission until restart.
func (p *Platform) Deny() {
	p.mu.Lock()
	p.perm = notify.PermissionDenied
	p.mu.Unlock()
}

// Show flashes the alert and remembers it for OpenLast.
func (p *Platform) Show(_ context.Context, a notify.Alert) error {
	p.mu.Lock()
	p.last = &a
	p.mu.Unlock()

	if a.Urgent {
		p.flash.Warn(a.Title + ": " + a.Body)
		return nil
	}
	p.flash.Alert(a.Title, a.Body)
	return nil
}

// PlaySound rings the terminal bell, twice for the chime.
func (p *Platform) PlaySound(_ context.Context, mode notify.SoundMode) error {
	if !p.bell || p.out == nil || mode == notify.SoundSilent {
		return nil
	}
	bell := "\a"
	if mode == notify.SoundChime {
		bell = "\a\a"
	}
	_, err := io.WriteString(p.out, bell)
	return err
}

// OpenLast runs the click action of the most recent alert. It reports
// whether there was one.
func (p *Platform) OpenLast() bool {
	p.mu.Lock()
	a := p.last
	p.last = nil
	p.mu.Unlock()
	if a == nil || a.OnClick == nil {
		return false
	}
	a.OnClick()
	return true
}
