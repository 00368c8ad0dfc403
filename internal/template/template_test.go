package template

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestExtractVariables(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"none", "no placeholders", nil},
		{"ordered", "{{b}} then {{a}}", []string{"b", "a"}},
		{"dedup", "{{a}} {{b}} {{a}}", []string{"a", "b"}},
		{"spaces", "{{ student_name }}", []string{"student_name"}},
		{"malformed", "{{}} {{not valid}}", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractVariables(tt.content)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractVariables(%q) = %v, want %v", tt.content, got, tt.want)
			}
		})
	}
}

func TestSubstituteLeavesUnsuppliedVerbatim(t *testing.T) {
	tpl := Template{
		Content:   "Dear {{parent_name}}, {{student_name}} was absent on {{date}}. {{student_name}} is fine.",
		Variables: []string{"parent_name", "student_name", "date"},
	}
	res := Substitute(tpl, map[string]string{"student_name": "Ana"})

	want := "Dear {{parent_name}}, Ana was absent on {{date}}. Ana is fine."
	if res.Content != want {
		t.Errorf("content = %q, want %q", res.Content, want)
	}
	if !reflect.DeepEqual(res.Missing, []string{"parent_name", "date"}) {
		t.Errorf("missing = %v", res.Missing)
	}
	if !reflect.DeepEqual(res.Unresolved, []string{"{{parent_name}}", "{{date}}"}) {
		t.Errorf("unresolved = %v", res.Unresolved)
	}
	if res.Complete() {
		t.Error("result should not be complete")
	}
}

func TestSubstituteFlagsUndeclaredPlaceholders(t *testing.T) {
	tpl := Template{Content: "Hi {{name}}, see {{room}}", Variables: []string{"name"}}
	res := Substitute(tpl, map[string]string{"name": "Ben", "room": "12"})
	if len(res.Missing) != 0 {
		t.Errorf("missing = %v", res.Missing)
	}
	if !reflect.DeepEqual(res.Unresolved, []string{"{{room}}"}) {
		t.Errorf("unresolved = %v, want undeclared {{room}}", res.Unresolved)
	}
}

func TestSubstituteValueIsLiteral(t *testing.T) {
	tpl := Template{Content: "Total: {{amount}}", Variables: []string{"amount"}}
	res := Substitute(tpl, map[string]string{"amount": "$1 {{x}}"})
	if res.Content != "Total: $1 {{x}}" {
		t.Errorf("content = %q", res.Content)
	}
}

func TestPreviewBuiltinsFullyResolved(t *testing.T) {
	for _, tpl := range Builtin() {
		t.Run(tpl.ID, func(t *testing.T) {
			out := Preview(tpl)
			if strings.Contains(out, "{{") {
				t.Errorf("preview has placeholders: %q", out)
			}
			if out != Preview(tpl) {
				t.Error("preview not deterministic")
			}
			if !reflect.DeepEqual(ExtractVariables(tpl.Content), tpl.Variables) {
				t.Errorf("declared %v, content uses %v", tpl.Variables, ExtractVariables(tpl.Content))
			}
		})
	}
}

func TestPreviewUnknownVariable(t *testing.T) {
	out := Preview(Template{Content: "Bring {{lunch_box}}"})
	if out != "Bring [lunch box]" {
		t.Errorf("preview = %q", out)
	}
}

type mockSource struct {
	templates []Template
	err       error
	usageErr  error
	used      []string
}

func (m *mockSource) GetTemplates(context.Context) ([]Template, error) {
	return m.templates, m.err
}

func (m *mockSource) RecordTemplateUsage(_ context.Context, id string) error {
	m.used = append(m.used, id)
	return m.usageErr
}

func TestLibrary(t *testing.T) {
	src := &mockSource{templates: []Template{
		{ID: "t1", Content: "Hi {{name}}", Variables: []string{"name"}},
	}}
	lib := NewLibrary(src, zap.NewNop())
	ctx := context.Background()

	if len(lib.List()) != len(Builtin()) {
		t.Errorf("before load, list should be builtins")
	}
	if err := lib.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if len(lib.List()) != 1 {
		t.Fatalf("list = %v", lib.List())
	}

	src.usageErr = errors.New("usage endpoint down")
	res, err := lib.Insert(ctx, "t1", map[string]string{"name": "Carla"})
	if err != nil {
		t.Fatalf("usage failure must not fail insert: %v", err)
	}
	if res.Content != "Hi Carla" || !res.Complete() {
		t.Errorf("result = %+v", res)
	}
	if !reflect.DeepEqual(src.used, []string{"t1"}) {
		t.Errorf("usage recorded = %v", src.used)
	}

	if _, err := lib.Insert(ctx, "missing", nil); !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("error = %v, want ErrTemplateNotFound", err)
	}
	if p, err := lib.Preview("t1"); err != nil || p != "Hi [name]" {
		t.Errorf("preview = %q, %v", p, err)
	}

	src.err = errors.New("offline")
	if err := lib.Load(ctx); err == nil {
		t.Error("expected load error")
	}
	if len(lib.List()) != 1 {
		t.Error("failed load should keep cache")
	}
}
