package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestWithAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithAttrs(ContextWithLogger(context.Background(), base), "draft_id", "draft-1")
	FromContext(ctx).Info("slots selected")

	if !strings.Contains(buf.String(), "draft_id=draft-1") {
		t.Fatalf("expected draft attribute, got %q", buf.String())
	}

	bare := context.Background()
	if got := WithAttrs(bare, "draft_id", "x"); got != bare {
		t.Fatalf("expected context without logger to be returned unchanged")
	}
	if FromContext(bare) != nil {
		t.Fatalf("expected no logger")
	}
}
