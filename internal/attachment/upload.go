package attachment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/schoolmsg/internal/messaging"
	"github.com/matheus3301/schoolmsg/internal/schedule"
	"go.uber.org/zap"
)

var (
	// ErrPendingMessage means the parent message has no server id yet.
	ErrPendingMessage = errors.New("message is not confirmed yet")
	ErrInvalidFile    = errors.New("invalid attachment")
)

// DefaultResetDelay is how long a finished upload shows 100% before resetting.
const DefaultResetDelay = time.Second

// Transport sends file bytes to the backend, reporting bytes sent so far.
type Transport interface {
	UploadAttachment(ctx context.Context, messageID string, f File, progress func(sent int64)) (messaging.Attachment, error)
}

// ValidationError carries the field-level result for a rejected file.
type ValidationError struct {
	Validation Validation
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Validation.Field, e.Validation.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidFile
}

// Uploader validates then uploads files, tracking the percentage of the most
// recent single-file upload.
type Uploader struct {
	mu         sync.Mutex
	transport  Transport
	validator  *Validator
	logger     *zap.Logger
	resetDelay time.Duration
	progress   int
	reset      *schedule.Handle
	onProgress func(int)
}

func NewUploader(transport Transport, validator *Validator, logger *zap.Logger) *Uploader {
	return &Uploader{
		transport:  transport,
		validator:  validator,
		logger:     logger,
		resetDelay: DefaultResetDelay,
	}
}

// SetResetDelay changes the grace period after a completed upload.
func (u *Uploader) SetResetDelay(d time.Duration) {
	u.mu.Lock()
	u.resetDelay = d
	u.mu.Unlock()
}

// OnProgress registers a callback invoked whenever the percentage changes.
func (u *Uploader) OnProgress(fn func(pct int)) {
	u.mu.Lock()
	u.onProgress = fn
	u.mu.Unlock()
}

// Progress returns 0-100.
func (u *Uploader) Progress() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.progress
}

func (u *Uploader) setProgress(pct int, force bool) {
	u.mu.Lock()
	if !force && pct <= u.progress {
		u.mu.Unlock()
		return
	}
	u.progress = pct
	fn := u.onProgress
	u.mu.Unlock()
	if fn != nil {
		fn(pct)
	}
}

// Upload validates f and sends it to messageID.
func (u *Uploader) Upload(ctx context.Context, messageID string, f File) (messaging.Attachment, error) {
	if messaging.IsTempID(messageID) {
		return messaging.Attachment{}, fmt.Errorf("upload %s: %w", f.Name, ErrPendingMessage)
	}
	v := u.validator.Validate(f)
	if !v.Valid {
		return messaging.Attachment{}, &ValidationError{Validation: v}
	}
	if f.MimeType == "" {
		f.MimeType = v.MimeType
	}

	u.mu.Lock()
	u.reset.Cancel()
	u.reset = nil
	u.mu.Unlock()
	u.setProgress(0, true)

	att, err := u.transport.UploadAttachment(ctx, messageID, f, func(sent int64) {
		// 100 is reserved for a confirmed upload.
		pct := int(sent * 100 / f.Size)
		u.setProgress(min(pct, 99), false)
	})
	if err != nil {
		u.setProgress(0, true)
		return messaging.Attachment{}, fmt.Errorf("upload %s: %w", f.Name, err)
	}

	u.setProgress(100, false)
	u.mu.Lock()
	u.reset = schedule.After(u.resetDelay, func() { u.setProgress(0, true) })
	u.mu.Unlock()

	if att.State == "" {
		att.State = messaging.UploadDone
	}
	return att, nil
}

// UploadAll uploads each file, logging and skipping failures. It returns the
// attachments that succeeded; an error only when the batch could not run at all.
func (u *Uploader) UploadAll(ctx context.Context, messageID string, files []File) ([]messaging.Attachment, error) {
	if messaging.IsTempID(messageID) {
		return nil, fmt.Errorf("upload batch: %w", ErrPendingMessage)
	}
	var out []messaging.Attachment
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		att, err := u.Upload(ctx, messageID, f)
		if err != nil {
			u.logger.Warn("attachment upload skipped",
				zap.String("message_id", messageID),
				zap.String("file", f.Name),
				zap.Error(err))
			continue
		}
		out = append(out, att)
	}
	return out, nil
}

// Task is an in-flight upload that can be aborted.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	att    messaging.Attachment
	err    error
}

// Start runs Upload in the background.
func (u *Uploader) Start(ctx context.Context, messageID string, f File) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		defer cancel()
		t.att, t.err = u.Upload(ctx, messageID, f)
	}()
	return t
}

func (t *Task) Abort() {
	t.cancel()
}

// Done is closed when the upload finishes.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the upload finishes.
func (t *Task) Wait() (messaging.Attachment, error) {
	<-t.done
	return t.att, t.err
}
