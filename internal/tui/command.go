package tui

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/matheus3301/schoolmsg/internal/messaging"
	"github.com/matheus3301/schoolmsg/internal/notify"
)

// Command is a parsed ':' prompt line.
type Command struct {
	Name string
	Args string
}

// ParseCommand parses a command line without the leading ':'.
func ParseCommand(input string) Command {
	name, args, _ := strings.Cut(strings.TrimSpace(input), " ")
	return Command{Name: strings.ToLower(name), Args: strings.TrimSpace(args)}
}

// Fields splits the arguments on whitespace.
func (c Command) Fields() []string {
	return strings.Fields(c.Args)
}

var errUsage = errors.New("usage")

func usage(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{errUsage}, args...)...)
}

var sortOrder = []messaging.SortBy{messaging.SortRecent, messaging.SortUnread, messaging.SortName}

func parseSort(s string) (messaging.SortBy, error) {
	sort := messaging.SortBy(strings.ToLower(s))
	if !slices.Contains(sortOrder, sort) {
		return "", usage("sort recent|unread|name")
	}
	return sort, nil
}

// nextSort cycles recent → unread → name → recent.
func nextSort(cur messaging.SortBy) messaging.SortBy {
	i := slices.Index(sortOrder, cur)
	return sortOrder[(i+1)%len(sortOrder)]
}

func parsePriority(s string) (messaging.Priority, error) {
	p := notify.Priority(strings.ToLower(s))
	switch p {
	case notify.PriorityLow, notify.PriorityNormal, notify.PriorityHigh, notify.PriorityUrgent:
		return p, nil
	}
	return "", usage("priority low|normal|high|urgent")
}

var categories = []messaging.Category{
	messaging.CategoryGeneral, messaging.CategoryAttendance, messaging.CategoryAcademic,
	messaging.CategoryBehavior, messaging.CategoryEvent, messaging.CategoryEmergency,
}

func parseCategory(s string) (messaging.Category, error) {
	c := messaging.Category(strings.ToLower(s))
	if !slices.Contains(categories, c) {
		return "", usage("category general|attendance|academic|behavior|event|emergency")
	}
	return c, nil
}

// parseFilters builds filters from tokens such as "unread starred role=parent".
// Tokens are added on top of base; the search query is kept.
func parseFilters(tokens []string, base messaging.Filters) (messaging.Filters, error) {
	f := base
	for _, tok := range tokens {
		key, value, hasValue := strings.Cut(strings.ToLower(tok), "=")
		switch {
		case !hasValue && key == "unread":
			f.Unread = true
		case !hasValue && key == "starred":
			f.Starred = true
		case !hasValue && key == "pinned":
			f.Pinned = true
		case !hasValue && key == "archived":
			f.Archived = true
		case !hasValue && key == "resolved":
			f.Resolved = true
		case hasValue && key == "role":
			role := messaging.Role(value)
			if !slices.Contains([]messaging.Role{messaging.RoleTeacher, messaging.RoleParent, messaging.RoleStudent, messaging.RoleAdmin}, role) {
				return base, usage("role=teacher|parent|student|admin")
			}
			f.Role = role
		case hasValue && key == "category":
			c, err := parseCategory(value)
			if err != nil {
				return base, err
			}
			f.Category = c
		default:
			return base, usage("unknown filter %q", tok)
		}
	}
	return f, nil
}

// describeFilters renders the active filters for the list title.
func describeFilters(f messaging.Filters, sort messaging.SortBy) string {
	var parts []string
	if f.Query != "" {
		parts = append(parts, fmt.Sprintf("/%s", f.Query))
	}
	for _, b := range []struct {
		on   bool
		name string
	}{{f.Unread, "unread"}, {f.Starred, "starred"}, {f.Pinned, "pinned"}, {f.Archived, "archived"}, {f.Resolved, "resolved"}} {
		if b.on {
			parts = append(parts, b.name)
		}
	}
	if f.Role != "" {
		parts = append(parts, "role="+string(f.Role))
	}
	if f.Category != "" {
		parts = append(parts, "category="+string(f.Category))
	}
	if sort != "" && sort != messaging.SortRecent {
		parts = append(parts, "sort:"+string(sort))
	}
	if len(parts) == 0 {
		return ""
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// parseWhen resolves a schedule time: "HH:MM" (today, or tomorrow once
// passed), a "+30m" style offset, or RFC3339. The result must be in the future.
func parseWhen(when string, now time.Time) (time.Time, error) {
	var at time.Time
	switch {
	case strings.HasPrefix(when, "+"):
		d, err := time.ParseDuration(when[1:])
		if err != nil {
			return time.Time{}, usage("bad offset %q", when)
		}
		at = now.Add(d)
	case len(when) == len("15:04"):
		clock, err := time.ParseInLocation("15:04", when, now.Location())
		if err != nil {
			return time.Time{}, usage("bad time %q", when)
		}
		at = time.Date(now.Year(), now.Month(), now.Day(), clock.Hour(), clock.Minute(), 0, 0, now.Location())
		if !at.After(now) {
			at = at.AddDate(0, 0, 1)
		}
	default:
		t, err := time.Parse(time.RFC3339, when)
		if err != nil {
			return time.Time{}, usage("schedule <HH:MM|+30m|RFC3339> <text>")
		}
		at = t
	}
	if !at.After(now) {
		return time.Time{}, usage("schedule time %s is in the past", at.Format(time.RFC3339))
	}
	return at, nil
}
