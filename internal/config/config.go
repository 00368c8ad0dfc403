package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// Config represents ~/.schoolmsg/config.toml.
type Config struct {
	DefaultProfile string              `toml:"default_profile"`
	User           UserConfig          `toml:"user"`
	Backend        BackendConfig       `toml:"backend"`
	Redis          RedisConfig         `toml:"redis"`
	S3             S3Config            `toml:"s3"`
	Attachments    AttachmentsConfig   `toml:"attachments"`
	Notifications  NotificationsConfig `toml:"notifications"`
	Log            LogConfig           `toml:"log"`
}

// UserConfig identifies the signed-in staff member.
type UserConfig struct {
	ID   string `toml:"id" validate:"required"`
	Name string `toml:"name"`
	Role string `toml:"role" validate:"oneof=teacher parent student admin"`
}

type BackendConfig struct {
	Addr           string        `toml:"addr" validate:"required,hostname_port"`
	RealtimeURL    string        `toml:"realtime_url" validate:"omitempty,url"`
	Token          string        `toml:"token"`
	RequestTimeout time.Duration `toml:"request_timeout" validate:"gte=0"`
}

// RedisConfig enables typing fan-out when Addr is set.
type RedisConfig struct {
	Addr     string `toml:"addr" validate:"omitempty,hostname_port"`
	Password string `toml:"password"`
	DB       int    `toml:"db" validate:"gte=0"`
}

// S3Config enables direct attachment upload when Bucket is set.
type S3Config struct {
	Region     string `toml:"region" validate:"required_with=Bucket"`
	Bucket     string `toml:"bucket"`
	AccessKey  string `toml:"access_key"`
	SecretKey  string `toml:"secret_key"`
	Endpoint   string `toml:"endpoint" validate:"omitempty,url"`
	PublicBase string `toml:"public_base"`
	KeyPrefix  string `toml:"key_prefix"`
}

type AttachmentsConfig struct {
	MaxBytes     int64    `toml:"max_bytes" validate:"gt=0"`
	AllowedTypes []string `toml:"allowed_types"`
}

type NotificationsConfig struct {
	// PermissionGranted is the terminal's stand-in for a platform permission prompt.
	PermissionGranted bool `toml:"permission_granted"`
	Bell              bool `toml:"bell"`
}

type LogConfig struct {
	Level string `toml:"level" validate:"oneof=debug info warn error"`
}

var validate = validator.New()

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		User: UserConfig{Role: "teacher"},
		Backend: BackendConfig{
			Addr:           "localhost:7443",
			RequestTimeout: 10 * time.Second,
		},
		Attachments: AttachmentsConfig{
			MaxBytes: 10 << 20,
			AllowedTypes: []string{
				"image/*",
				"application/pdf",
				"application/msword",
				"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
				"text/plain",
			},
		},
		Notifications: NotificationsConfig{PermissionGranted: true, Bell: true},
		Log:           LogConfig{Level: "info"},
	}
}

// Load reads config from the given path on top of Default. Returns an error
// if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	return validate.Struct(c)
}
