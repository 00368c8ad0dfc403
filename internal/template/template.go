// Package template renders message templates with {{variable}} placeholders.
package template

import (
	"regexp"
	"slices"
	"strings"
)

// Template is a reusable message body. The engine never mutates it; usage
// counts are recorded by the backend.
type Template struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Category   string   `json:"category"`
	Content    string   `json:"content"`
	Variables  []string `json:"variables"`
	UsageCount int      `json:"usage_count"`
}

var placeholderRe = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// anyPlaceholderRe matches leftovers, including malformed names.
var anyPlaceholderRe = regexp.MustCompile(`\{\{[^{}]*\}\}`)

// ExtractVariables returns placeholder names in first-seen order, without duplicates.
func ExtractVariables(content string) []string {
	var names []string
	for _, m := range placeholderRe.FindAllStringSubmatch(content, -1) {
		if !slices.Contains(names, m[1]) {
			names = append(names, m[1])
		}
	}
	return names
}

// Result is the outcome of a substitution.
type Result struct {
	Content string
	// Missing lists declared variables that had no value supplied.
	Missing []string
	// Unresolved lists every placeholder still present after substitution,
	// declared or not.
	Unresolved []string
}

// Complete reports whether nothing was left unresolved.
func (r Result) Complete() bool {
	return len(r.Missing) == 0 && len(r.Unresolved) == 0
}

// Substitute replaces every occurrence of each declared variable that has a
// value. Unsupplied placeholders are left verbatim.
func Substitute(t Template, vars map[string]string) Result {
	declared := t.Variables
	if len(declared) == 0 {
		declared = ExtractVariables(t.Content)
	}

	var res Result
	content := t.Content
	for _, name := range declared {
		val, ok := vars[name]
		if !ok {
			res.Missing = append(res.Missing, name)
			continue
		}
		re := regexp.MustCompile(`\{\{\s*` + regexp.QuoteMeta(name) + `\s*\}\}`)
		content = re.ReplaceAllLiteralString(content, val)
	}
	res.Content = content

	for _, m := range anyPlaceholderRe.FindAllString(content, -1) {
		if !slices.Contains(res.Unresolved, m) {
			res.Unresolved = append(res.Unresolved, m)
		}
	}
	return res
}

// SampleValues is the fixed table Preview renders with.
var SampleValues = map[string]string{
	"student_name":   "Emma Johnson",
	"parent_name":    "Mrs. Johnson",
	"teacher_name":   "Mr. Smith",
	"class_name":     "Grade 5B",
	"subject":        "Mathematics",
	"date":           "March 15, 2024",
	"time":           "3:30 PM",
	"event_name":     "Spring Science Fair",
	"location":       "School Gymnasium",
	"days_absent":    "3",
	"attendance_pct": "92%",
	"grade":          "B+",
	"assignment":     "Chapter 7 Worksheet",
	"due_date":       "March 20, 2024",
	"school_name":    "Riverside Elementary",
	"amount":         "$25.00",
}

// Preview renders t with SampleValues. Any placeholder without a sample
// value is replaced with its own name in brackets so authors can spot it.
func Preview(t Template) string {
	vars := make(map[string]string, len(SampleValues))
	for k, v := range SampleValues {
		vars[k] = v
	}
	names := slices.Clone(t.Variables)
	for _, n := range ExtractVariables(t.Content) {
		if !slices.Contains(names, n) {
			names = append(names, n)
		}
	}
	for _, n := range names {
		if _, ok := vars[n]; !ok {
			vars[n] = "[" + strings.ReplaceAll(n, "_", " ") + "]"
		}
	}
	return Substitute(Template{Content: t.Content, Variables: names}, vars).Content
}
