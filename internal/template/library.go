package template

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
)

var ErrTemplateNotFound = errors.New("template not found")

// Source is the backend side of the template library.
type Source interface {
	GetTemplates(ctx context.Context) ([]Template, error)
	RecordTemplateUsage(ctx context.Context, id string) error
}

// Library caches templates from a Source, falling back to Builtin.
type Library struct {
	mu        sync.RWMutex
	source    Source
	logger    *zap.Logger
	templates []Template
}

func NewLibrary(source Source, logger *zap.Logger) *Library {
	return &Library{
		source:    source,
		logger:    logger,
		templates: Builtin(),
	}
}

// Load replaces the cache from the source. On error the cache is kept.
func (l *Library) Load(ctx context.Context) error {
	if l.source == nil {
		return nil
	}
	list, err := l.source.GetTemplates(ctx)
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}
	l.mu.Lock()
	l.templates = list
	l.mu.Unlock()
	return nil
}

func (l *Library) List() []Template {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.templates)
}

func (l *Library) Get(id string) (Template, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx := slices.IndexFunc(l.templates, func(t Template) bool { return t.ID == id })
	if idx < 0 {
		return Template{}, fmt.Errorf("%s: %w", id, ErrTemplateNotFound)
	}
	return l.templates[idx], nil
}

// Insert renders template id with vars. Missing and unresolved placeholders
// are logged and returned in the Result; they never fail the call.
func (l *Library) Insert(ctx context.Context, id string, vars map[string]string) (Result, error) {
	t, err := l.Get(id)
	if err != nil {
		return Result{}, err
	}
	res := Substitute(t, vars)
	if len(res.Missing) > 0 {
		l.logger.Warn("template variables not supplied",
			zap.String("template_id", id), zap.Strings("missing", res.Missing))
	}
	if len(res.Unresolved) > 0 {
		l.logger.Warn("template has unresolved placeholders",
			zap.String("template_id", id), zap.Strings("unresolved", res.Unresolved))
	}

	if l.source != nil {
		if err := l.source.RecordTemplateUsage(ctx, id); err != nil {
			l.logger.Warn("record template usage failed", zap.String("template_id", id), zap.Error(err))
		}
	}
	return res, nil
}

func (l *Library) Preview(id string) (string, error) {
	t, err := l.Get(id)
	if err != nil {
		return "", err
	}
	return Preview(t), nil
}
