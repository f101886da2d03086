package artifacts

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/hostelpay/internal/common"
	"github.com/dmitrijs2005/hostelpay/internal/server/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mib = 1 << 20

func newTestHandler(store storage.ObjectStore) *Handler {
	return NewHandler(store,
		WithClock(func() time.Time { return time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC) }),
		WithIDGenerator(func() string { return "fixed-id" }),
	)
}

type failingStore struct{ storage.ObjectStore }

func (failingStore) Put(context.Context, string, io.Reader, int64, string) error {
	return errors.New("bucket offline")
}

func TestAccept(t *testing.T) {
	tests := []struct {
		name     string
		ct       string
		size     int
		wantErr  error
		wantKey  string
		declared int64
	}{
		{name: "4 MiB png accepted", ct: "image/png", size: 4 * mib, wantKey: "payments/bob/2024/02/03/fixed-id.png"},
		{name: "pdf with params accepted", ct: "Application/PDF; name=x.pdf", size: 10, wantKey: "payments/bob/2024/02/03/fixed-id.pdf"},
		{name: "jpeg accepted", ct: "image/jpeg", size: 10, wantKey: "payments/bob/2024/02/03/fixed-id.jpg"},
		{name: "exactly 5 MiB accepted", ct: "image/png", size: 5 * mib, wantKey: "payments/bob/2024/02/03/fixed-id.png"},
		{name: "6 MiB rejected", ct: "image/png", size: 6 * mib, wantErr: common.ErrFileTooLarge},
		{name: "exe rejected small", ct: "application/x-msdownload", size: 10, wantErr: common.ErrUnsupportedFileType},
		{name: "exe rejected huge", ct: "application/x-msdownload", size: 6 * mib, wantErr: common.ErrUnsupportedFileType},
		{name: "octet-stream rejected", ct: "application/octet-stream", size: 10, wantErr: common.ErrUnsupportedFileType},
		{name: "empty type rejected", ct: "", size: 10, wantErr: common.ErrUnsupportedFileType},
		{name: "body longer than declared", ct: "image/png", size: 6 * mib, declared: 10, wantErr: common.ErrFileTooLarge},
		{name: "empty body", ct: "image/png", size: 0, wantErr: common.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStore("http://files")
			h := newTestHandler(store)

			declared := int64(tt.size)
			if tt.declared != 0 {
				declared = tt.declared
			}

			key, err := h.Accept(context.Background(), "bob", bytes.NewReader(make([]byte, tt.size)), tt.ct, declared)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, 0, store.Len(), "nothing may be written on failure")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, key)

			obj, ok := store.Get(key)
			require.True(t, ok)
			assert.Len(t, obj.Data, tt.size)
		})
	}
}

func TestAccept_StoreError(t *testing.T) {
	h := newTestHandler(failingStore{})
	_, err := h.Accept(context.Background(), "bob", strings.NewReader("png"), "image/png", 3)
	require.ErrorContains(t, err, "bucket offline")
}

func TestCheck_DoesNotNeedBody(t *testing.T) {
	h := NewHandler(nil, WithMaxSize(100))
	assert.Equal(t, int64(100), h.MaxSize())

	ct, err := h.Check("IMAGE/JPEG", 100)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", ct)

	_, err = h.Check("image/jpeg", 101)
	require.ErrorIs(t, err, common.ErrFileTooLarge)
}

func TestCheckType(t *testing.T) {
	tests := []struct {
		declared string
		want     string
		err      error
	}{
		{"application/pdf", "application/pdf", nil},
		{"image/png; name=receipt.png", "image/png", nil},
		{"application/x-msdownload", "", common.ErrUnsupportedFileType},
		{"", "", common.ErrUnsupportedFileType},
	}
	for _, tt := range tests {
		t.Run(tt.declared, func(t *testing.T) {
			got, err := CheckType(tt.declared)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDiscard(t *testing.T) {
	store := storage.NewMemoryStore("")
	h := newTestHandler(store)
	key, err := h.Accept(context.Background(), "bob", strings.NewReader("%PDF-1.4"), "application/pdf", 8)
	require.NoError(t, err)

	require.NoError(t, h.Discard(context.Background(), key))
	require.NoError(t, h.Discard(context.Background(), ""))
	assert.Equal(t, 0, store.Len())
}
