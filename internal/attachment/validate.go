// Package attachment validates files and uploads them to an existing message.
package attachment

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// File is a candidate attachment. Body is optional; when MimeType is empty
// it is sniffed from Body.
type File struct {
	Name     string
	Size     int64
	MimeType string
	Body     io.ReadSeeker
}

// Open builds a File from a path on disk. The caller closes the returned file.
func Open(path string) (File, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return File{}, nil, fmt.Errorf("open attachment: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return File{}, nil, fmt.Errorf("stat attachment: %w", err)
	}
	return File{Name: filepath.Base(path), Size: info.Size(), Body: f}, f, nil
}

// Policy limits what may be attached.
type Policy struct {
	MaxBytes int64 `toml:"max_bytes" validate:"gt=0"`
	// AllowedTypes holds exact types or "type/*" wildcards. Empty allows any type.
	AllowedTypes []string `toml:"allowed_types"`
}

func DefaultPolicy() Policy {
	return Policy{
		MaxBytes: 10 << 20,
		AllowedTypes: []string{
			"image/*",
			"application/pdf",
			"application/msword",
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			"text/plain",
		},
	}
}

// Validation is the field-level outcome of Validate. It is a value, not an error.
type Validation struct {
	Valid  bool
	Field  string
	Reason string
	// MimeType is the declared or sniffed type that was checked.
	MimeType string
}

const (
	FieldName = "name"
	FieldSize = "size"
	FieldType = "type"
)

type Validator struct {
	policy Policy
}

func NewValidator(p Policy) *Validator {
	return &Validator{policy: p}
}

// Validate checks f against the policy without any network call.
func (v *Validator) Validate(f File) Validation {
	if strings.TrimSpace(f.Name) == "" {
		return Validation{Field: FieldName, Reason: "file name is required"}
	}
	if f.Size <= 0 {
		return Validation{Field: FieldSize, Reason: "file is empty"}
	}
	if v.policy.MaxBytes > 0 && f.Size > v.policy.MaxBytes {
		return Validation{
			Field:  FieldSize,
			Reason: fmt.Sprintf("file is %s, the limit is %s", humanSize(f.Size), humanSize(v.policy.MaxBytes)),
		}
	}

	mt := f.MimeType
	if mt == "" {
		sniffed, err := sniff(f.Body)
		if err != nil {
			return Validation{Field: FieldType, Reason: "could not determine file type"}
		}
		mt = sniffed
	}
	mt = baseType(mt)
	if !v.allowed(mt) {
		return Validation{Field: FieldType, Reason: fmt.Sprintf("%s files are not allowed", mt), MimeType: mt}
	}
	return Validation{Valid: true, MimeType: mt}
}

func (v *Validator) allowed(mt string) bool {
	if len(v.policy.AllowedTypes) == 0 {
		return true
	}
	major, _, _ := strings.Cut(mt, "/")
	return slices.ContainsFunc(v.policy.AllowedTypes, func(a string) bool {
		a = strings.ToLower(strings.TrimSpace(a))
		if prefix, ok := strings.CutSuffix(a, "/*"); ok {
			return prefix == major
		}
		return a == mt
	})
}

func sniff(body io.ReadSeeker) (string, error) {
	if body == nil {
		return "", fmt.Errorf("no content to sniff")
	}
	m, err := mimetype.DetectReader(body)
	if err != nil {
		return "", err
	}
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return m.String(), nil
}

// baseType strips parameters such as "; charset=utf-8".
func baseType(mt string) string {
	mt, _, _ = strings.Cut(mt, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
