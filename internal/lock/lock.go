// Package lock keeps a profile to one running client. The lock file names
// the holder so a second client can say who has the profile open.
package lock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// FileName is the lock file inside a profile directory.
const FileName = "LOCK"

// Holder describes the client holding a profile.
type Holder struct {
	Profile string
	UserID  string
	PID     int
	Since   time.Time
}

// ProfileLockedError is returned when another client already runs the profile.
type ProfileLockedError struct {
	Holder
	Path string
}

func (e *ProfileLockedError) Error() string {
	who := e.UserID
	if who == "" {
		who = "unknown user"
	}
	msg := fmt.Sprintf("profile %q is open for %s by pid %d", e.Profile, who, e.PID)
	if !e.Since.IsZero() {
		msg += " since " + e.Since.Local().Format("2006-01-02 15:04")
	}
	return msg
}

// Lock represents an acquired profile lock file.
type Lock struct {
	file   *os.File
	path   string
	holder Holder
}

// Acquire takes an exclusive lock on the profile directory so two clients
// never share one settings database. The profile name and user id are
// written to the lock file for diagnostics.
func Acquire(profileDir, profileName, userID string) (*Lock, error) {
	lockPath := filepath.Join(profileDir, FileName)

	if err := os.MkdirAll(profileDir, 0700); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		h, _ := readHolder(lockPath)
		if h.Profile == "" {
			h.Profile = profileName
		}
		return nil, &ProfileLockedError{Holder: h, Path: lockPath}
	}

	h := Holder{Profile: profileName, UserID: userID, PID: os.Getpid(), Since: time.Now().UTC().Truncate(time.Second)}
	if err := writeHolder(f, h); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write lock file: %w", err)
	}
	return &Lock{file: f, path: lockPath, holder: h}, nil
}

// Holder returns what this lock recorded about its owner.
func (l *Lock) Holder() Holder {
	return l.holder
}

// Release releases the lock. Safe to call on nil receiver.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	// Remove before closing so the next client never reads a stale holder.
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

// Inspect reports who holds the profile, if anyone. A lock file left
// behind by a crashed client is not held and reports false.
func Inspect(profileDir string) (Holder, bool, error) {
	lockPath := filepath.Join(profileDir, FileName)
	f, err := os.OpenFile(lockPath, os.O_RDWR, 0600)
	if errors.Is(err, fs.ErrNotExist) {
		return Holder{}, false, nil
	}
	if err != nil {
		return Holder{}, false, err
	}
	defer func() { _ = f.Close() }()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err == nil {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		return Holder{}, false, nil
	}
	h, err := readHolder(lockPath)
	return h, true, err
}

func writeHolder(f *os.File, h Holder) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	content := fmt.Sprintf("pid=%d\nprofile=%s\nuser=%s\nsince=%s\n",
		h.PID, h.Profile, h.UserID, h.Since.Format(time.RFC3339))
	_, err := f.WriteString(content)
	return err
}

func readHolder(path string) (Holder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Holder{}, err
	}
	return parseHolder(string(data)), nil
}

func parseHolder(content string) Holder {
	var h Holder
	for _, line := range strings.Split(content, "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			h.PID, _ = strconv.Atoi(value)
		case "profile":
			h.Profile = value
		case "user":
			h.UserID = value
		case "since":
			h.Since, _ = time.Parse(time.RFC3339, value)
		}
	}
	return h
}
