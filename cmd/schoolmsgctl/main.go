package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/schoolmsg/internal/backend"
	"github.com/matheus3301/schoolmsg/internal/config"
	"github.com/matheus3301/schoolmsg/internal/lock"
	"github.com/matheus3301/schoolmsg/internal/messaging"
	"github.com/matheus3301/schoolmsg/internal/notify"
	"github.com/matheus3301/schoolmsg/internal/profile"
	"github.com/matheus3301/schoolmsg/internal/store"
	"github.com/matheus3301/schoolmsg/internal/template"
	"go.uber.org/zap"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	configFlag := flag.String("config", "", "config file (default ~/.schoolmsg/config.toml)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := loadConfig(*configFlag)
	if err != nil {
		fatal(err)
	}
	profileName := profile.Resolve(*profileFlag, cfg)
	if err := profile.ValidateName(profileName); err != nil {
		fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "templates":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: schoolmsgctl templates <list|preview <id>>")
			os.Exit(1)
		}
		cmdTemplates(ctx, cfg, args[1:], *jsonFlag)
	case "settings":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: schoolmsgctl settings <show|set <key> <value>>")
			os.Exit(1)
		}
		cmdSettings(profileName, args[1:], *jsonFlag)
	case "conversations":
		cmdConversations(ctx, cfg, args[1:], *jsonFlag)
	case "scheduled":
		cmdScheduled(ctx, cfg, *jsonFlag)
	case "profiles":
		cmdProfiles(profileName, *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: schoolmsgctl [--profile <name>] [--config <path>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  templates list                 List message templates")
	fmt.Fprintln(os.Stderr, "  templates preview <id>         Show a template with sample values")
	fmt.Fprintln(os.Stderr, "  settings show                  Show notification settings")
	fmt.Fprintln(os.Stderr, "  settings set <key> <value>     Change a setting (applies on next start)")
	fmt.Fprintln(os.Stderr, "  conversations [filter...]      List conversations (unread starred pinned archived resolved role=<r>)")
	fmt.Fprintln(os.Stderr, "  scheduled                      List scheduled messages")
	fmt.Fprintln(os.Stderr, "  profiles                       Show the active profile")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "settings keys: enabled sound preview grouping quiet_hours browser_notifications language")
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func loadConfig(path string) (*config.Config, error) {
	explicit := path != ""
	if !explicit {
		path = profile.ConfigPath()
	}
	cfg, err := config.Load(path)
	switch {
	case err == nil:
	case !explicit && errors.Is(err, fs.ErrNotExist):
		cfg = config.Default()
	default:
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := config.LoadEnv(cfg, profile.EnvPath()); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	return cfg, nil
}

func dialBackend(cfg *config.Config) *backend.Client {
	c, err := backend.New(backend.Options{
		Addr:    cfg.Backend.Addr,
		Token:   cfg.Backend.Token,
		Timeout: cfg.Backend.RequestTimeout,
	}, zap.NewNop())
	if err != nil {
		fatal(err)
	}
	return c
}

func openStore(profileName string) *store.DB {
	if err := profile.EnsureDir(profileName); err != nil {
		fatal(err)
	}
	db, err := store.Open(profile.DBPath(profileName))
	if err != nil {
		fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		_ = db.Close()
		fatal(err)
	}
	return db
}

func cmdTemplates(ctx context.Context, cfg *config.Config, args []string, jsonOut bool) {
	c := dialBackend(cfg)
	defer func() { _ = c.Close() }()

	lib := template.NewLibrary(c, zap.NewNop())
	if err := lib.Load(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v (showing built-in templates)\n", err)
	}

	switch args[0] {
	case "list":
		list := lib.List()
		if jsonOut {
			outputJSON(list)
			return
		}
		for _, t := range list {
			fmt.Printf("%-16s %-12s %-28s used %d\n", t.ID, t.Category, t.Name, t.UsageCount)
		}
	case "preview":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: schoolmsgctl templates preview <id>")
			os.Exit(1)
		}
		t, err := lib.Get(args[1])
		if err != nil {
			fatal(err)
		}
		preview := template.Preview(t)
		if jsonOut {
			outputJSON(map[string]any{"id": t.ID, "variables": template.ExtractVariables(t.Content), "preview": preview})
			return
		}
		fmt.Println(preview)
		if vars := template.ExtractVariables(t.Content); len(vars) > 0 {
			fmt.Printf("\nvariables: %s\n", strings.Join(vars, ", "))
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown templates subcommand: %s\n", args[0])
		os.Exit(1)
	}
}

func cmdSettings(profileName string, args []string, jsonOut bool) {
	db := openStore(profileName)
	defer func() { _ = db.Close() }()

	switch args[0] {
	case "show":
		s, err := db.LoadNotificationSettings()
		if err != nil {
			fatal(err)
		}
		lang, err := db.Language()
		if err != nil {
			fatal(err)
		}
		if jsonOut {
			outputJSON(map[string]any{"notifications": s, "language": lang})
			return
		}
		quiet := "off"
		if s.QuietHours.Enabled {
			quiet = s.QuietHours.Start + "-" + s.QuietHours.End
		}
		fmt.Printf("Enabled:     %v\n", s.Enabled)
		fmt.Printf("Sound:       %s\n", s.Sound)
		fmt.Printf("Preview:     %s\n", s.Preview)
		fmt.Printf("Grouping:    %v\n", s.Grouping)
		fmt.Printf("Quiet hours: %s\n", quiet)
		fmt.Printf("System:      %v\n", s.BrowserNotifications)
		fmt.Printf("Language:    %s\n", lang)
	case "set":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: schoolmsgctl settings set <key> <value>")
			os.Exit(1)
		}
		if args[1] == "language" {
			if err := db.SetLanguage(args[2]); err != nil {
				fatal(err)
			}
			fmt.Printf("language = %s\n", args[2])
			return
		}
		s, err := db.LoadNotificationSettings()
		if err != nil {
			fatal(err)
		}
		if err := applySetting(&s, args[1], args[2]); err != nil {
			fatal(err)
		}
		if err := s.Validate(); err != nil {
			fatal(err)
		}
		if err := db.SaveNotificationSettings(s); err != nil {
			fatal(err)
		}
		fmt.Printf("%s = %s\n", args[1], args[2])
	default:
		fmt.Fprintf(os.Stderr, "unknown settings subcommand: %s\n", args[0])
		os.Exit(1)
	}
}

// applySetting changes one field of s. quiet_hours takes "off" or "HH:MM-HH:MM".
func applySetting(s *notify.Settings, key, value string) error {
	switch key {
	case "enabled", "grouping", "browser_notifications":
		on, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: expected true or false", key)
		}
		switch key {
		case "enabled":
			s.Enabled = on
		case "grouping":
			s.Grouping = on
		default:
			s.BrowserNotifications = on
		}
	case "sound":
		s.Sound = notify.SoundMode(value)
	case "preview":
		s.Preview = notify.PreviewMode(value)
	case "quiet_hours":
		if value == "off" {
			s.QuietHours.Enabled = false
			return nil
		}
		start, end, ok := strings.Cut(value, "-")
		if !ok {
			return fmt.Errorf("quiet_hours: expected off or HH:MM-HH:MM")
		}
		s.QuietHours = notify.QuietHours{Enabled: true, Start: start, End: end}
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}

func cmdConversations(ctx context.Context, cfg *config.Config, args []string, jsonOut bool) {
	var f messaging.Filters
	for _, a := range args {
		switch {
		case a == "unread":
			f.Unread = true
		case a == "starred":
			f.Starred = true
		case a == "pinned":
			f.Pinned = true
		case a == "archived":
			f.Archived = true
		case a == "resolved":
			f.Resolved = true
		case strings.HasPrefix(a, "role="):
			f.Role = messaging.Role(strings.TrimPrefix(a, "role="))
		default:
			f.Query = a
		}
	}

	c := dialBackend(cfg)
	defer func() { _ = c.Close() }()

	convs, err := c.GetConversations(ctx, f, messaging.SortRecent)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(convs)
		return
	}
	if len(convs) == 0 {
		fmt.Println("No conversations found.")
		return
	}
	for _, conv := range convs {
		last := ""
		if conv.LastMessage != nil {
			last = conv.LastMessage.Content
		}
		fmt.Printf("%-14s %-24s %-8s %3d unread  %s\n",
			conv.ID, conv.Recipient.Name, conv.Recipient.Role, conv.UnreadCount, last)
	}
}

func cmdScheduled(ctx context.Context, cfg *config.Config, jsonOut bool) {
	c := dialBackend(cfg)
	defer func() { _ = c.Close() }()

	list, err := c.GetScheduledMessages(ctx)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(list)
		return
	}
	if len(list) == 0 {
		fmt.Println("No scheduled messages.")
		return
	}
	for _, m := range list {
		fmt.Printf("%-14s %s  %-14s %s\n",
			m.ID, m.ScheduledAt.Local().Format("2006-01-02 15:04"), m.Request.ConversationID, m.Request.Content)
	}
}

func cmdProfiles(profileName string, jsonOut bool) {
	dir := profile.Dir(profileName)
	h, held, err := lock.Inspect(dir)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		out := map[string]any{"profile": profileName, "dir": dir, "open": held}
		if held {
			out["holder"] = h
		}
		outputJSON(out)
		return
	}
	state := "not running"
	if held {
		state = fmt.Sprintf("open for %s by pid %d since %s", h.UserID, h.PID, h.Since.Local().Format("2006-01-02 15:04"))
	}
	fmt.Printf("%s (%s): %s\n", profileName, dir, state)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
