package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "SCHOOLMSG_"

// LoadEnv loads envFile into the process environment (a missing file is
// ignored) and applies SCHOOLMSG_* overrides to cfg. Variables already set
// in the environment win over the file.
func LoadEnv(cfg *Config, envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	cfg.DefaultProfile = getEnv("PROFILE", cfg.DefaultProfile)
	cfg.User.ID = getEnv("USER_ID", cfg.User.ID)
	cfg.User.Name = getEnv("USER_NAME", cfg.User.Name)
	cfg.User.Role = getEnv("USER_ROLE", cfg.User.Role)
	cfg.Backend.Addr = getEnv("BACKEND_ADDR", cfg.Backend.Addr)
	cfg.Backend.RealtimeURL = getEnv("REALTIME_URL", cfg.Backend.RealtimeURL)
	cfg.Backend.Token = getEnv("BACKEND_TOKEN", cfg.Backend.Token)
	cfg.Backend.RequestTimeout = getEnvAsDuration("REQUEST_TIMEOUT", cfg.Backend.RequestTimeout)
	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", cfg.Redis.DB)
	cfg.S3.Region = getEnv("S3_REGION", cfg.S3.Region)
	cfg.S3.Bucket = getEnv("S3_BUCKET", cfg.S3.Bucket)
	cfg.S3.AccessKey = getEnv("S3_ACCESS_KEY", cfg.S3.AccessKey)
	cfg.S3.SecretKey = getEnv("S3_SECRET_KEY", cfg.S3.SecretKey)
	cfg.S3.Endpoint = getEnv("S3_ENDPOINT", cfg.S3.Endpoint)
	cfg.Log.Level = strings.ToLower(getEnv("LOG_LEVEL", cfg.Log.Level))
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(envPrefix + key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}
