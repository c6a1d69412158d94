package cache

import (
	"io"
	"log/slog"
	"testing"
)

func TestNew_InvalidURL(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if _, err := New("not a redis url", 0, logger); err == nil {
		t.Fatal("expected error for malformed URL")
	}
	if _, err := New("http://localhost:6379", 0, logger); err == nil {
		t.Fatal("expected error for non-redis scheme")
	}
}
