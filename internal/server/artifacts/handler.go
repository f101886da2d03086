// Package artifacts validates proof-of-payment uploads before they reach
// the object store.
package artifacts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/dmitrijs2005/hostelpay/internal/common"
	"github.com/dmitrijs2005/hostelpay/internal/server/storage"
	"github.com/google/uuid"
)

// DefaultMaxSize is the largest accepted proof, in bytes.
const DefaultMaxSize int64 = 5 << 20

const keyPrefix = "payments"

var allowedContentTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"application/pdf": ".pdf",
}

type Handler struct {
	store   storage.ObjectStore
	maxSize int64
	now     func() time.Time
	newID   func() string
}

type Option func(*Handler)

func WithMaxSize(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxSize = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

func WithIDGenerator(fn func() string) Option {
	return func(h *Handler) { h.newID = fn }
}

func NewHandler(store storage.ObjectStore, opts ...Option) *Handler {
	h := &Handler{
		store:   store,
		maxSize: DefaultMaxSize,
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) MaxSize() int64 {
	return h.maxSize
}

// NormalizeContentType lowercases the media type and drops parameters.
func NormalizeContentType(declared string) string {
	declared = strings.TrimSpace(declared)
	if mt, _, err := mime.ParseMediaType(declared); err == nil {
		return mt
	}
	return strings.ToLower(declared)
}

// CheckType returns the normalized media type, or ErrUnsupportedFileType
// when it is not an accepted proof format. It needs no body, so callers can
// reject a disallowed upload before reading any of it.
func CheckType(declaredType string) (string, error) {
	ct := NormalizeContentType(declaredType)
	if _, ok := allowedContentTypes[ct]; !ok {
		return "", fmt.Errorf("%w: %q", common.ErrUnsupportedFileType, declaredType)
	}
	return ct, nil
}

// Check validates type then size without reading the body. The type check
// comes first so disallowed files fail the same way at any size.
func (h *Handler) Check(declaredType string, size int64) (string, error) {
	ct, err := CheckType(declaredType)
	if err != nil {
		return "", err
	}
	if size > h.maxSize {
		return "", common.ErrFileTooLarge
	}
	if size < 0 {
		return "", common.NewValidationError("proof", "size is unknown")
	}
	return ct, nil
}

// Accept stores a validated proof for ownerID and returns its object key.
// The body is read fully (bounded by the size limit) before any write, so a
// body longer than declared still fails with ErrFileTooLarge.
func (h *Handler) Accept(ctx context.Context, ownerID string, body io.Reader, declaredType string, size int64) (string, error) {
	ct, err := h.Check(declaredType, size)
	if err != nil {
		return "", err
	}

	data, err := io.ReadAll(io.LimitReader(body, h.maxSize+1))
	if err != nil {
		return "", fmt.Errorf("read proof: %w", err)
	}
	if int64(len(data)) > h.maxSize {
		return "", common.ErrFileTooLarge
	}
	if len(data) == 0 {
		return "", common.NewValidationError("proof", "file is empty")
	}

	key := h.objectKey(ownerID, ct)
	if err := h.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), ct); err != nil {
		return "", err
	}
	return key, nil
}

// Discard removes a stored proof; used to undo Accept when the transition
// that needed it did not commit.
func (h *Handler) Discard(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	return h.store.Delete(ctx, key)
}

func (h *Handler) objectKey(ownerID, contentType string) string {
	d := h.now().UTC()
	return fmt.Sprintf("%s/%s/%d/%02d/%02d/%s%s",
		keyPrefix, ownerID, d.Year(), d.Month(), d.Day(), h.newID(), allowedContentTypes[contentType])
}
