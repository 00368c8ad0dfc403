package notify

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// SoundMode selects the alert sound. SoundSilent disables playback.
type SoundMode string

const (
	SoundDefault SoundMode = "default"
	SoundChime   SoundMode = "chime"
	SoundSilent  SoundMode = "silent"
)

// PreviewMode controls how much of a message leaks into a system alert.
type PreviewMode string

const (
	PreviewFull       PreviewMode = "full"
	PreviewSenderOnly PreviewMode = "sender_only"
	PreviewCountOnly  PreviewMode = "count_only"
)

// QuietHours is a local time-of-day window ("HH:MM", 24h). A window whose
// start is after its end wraps midnight.
type QuietHours struct {
	Enabled bool   `json:"enabled" toml:"enabled"`
	Start   string `json:"start" toml:"start" validate:"omitempty,datetime=15:04"`
	End     string `json:"end" toml:"end" validate:"omitempty,datetime=15:04"`
}

// Settings is the process-wide notification configuration.
type Settings struct {
	Enabled              bool        `json:"enabled" toml:"enabled"`
	Sound                SoundMode   `json:"sound" toml:"sound" validate:"oneof=default chime silent"`
	Preview              PreviewMode `json:"preview" toml:"preview" validate:"oneof=full sender_only count_only"`
	Grouping             bool        `json:"grouping" toml:"grouping"`
	QuietHours           QuietHours  `json:"quiet_hours" toml:"quiet_hours"`
	BrowserNotifications bool        `json:"browser_notifications" toml:"browser_notifications"`
}

// DefaultSettings returns the settings used before anything is persisted.
func DefaultSettings() Settings {
	return Settings{
		Enabled:              true,
		Sound:                SoundDefault,
		Preview:              PreviewFull,
		Grouping:             true,
		QuietHours:           QuietHours{Enabled: false, Start: "22:00", End: "07:00"},
		BrowserNotifications: true,
	}
}

var validate = validator.New()

// Validate checks enum fields and quiet-hours clock strings.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid notification settings: %w", err)
	}
	return nil
}

// SettingsStore persists settings outside the process.
type SettingsStore interface {
	LoadNotificationSettings() (Settings, error)
	SaveNotificationSettings(Settings) error
}
