package tracing

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpanTree(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "rebuild")
	require.NotEmpty(t, root.TraceID)
	assert.Same(t, root, SpanFromContext(ctx))

	walkCtx, walk := StartChildSpan(ctx, "walk")
	walk.SetAttr("files", 3)
	_, read := StartChildSpan(walkCtx, "read")
	read.End(nil)
	walk.End(nil)
	_, commit := StartChildSpan(ctx, "commit")
	commit.End(errors.New("disk full"))
	root.End(nil)

	assert.Equal(t, root.TraceID, read.TraceID)
	require.Len(t, root.Children(), 2)
	assert.Equal(t, 3, walk.Attr("files"))

	var buf bytes.Buffer
	root.Log(slog.New(slog.NewTextHandler(&buf, nil)))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "span=rebuild")
	assert.Contains(t, lines[1], "span=walk")
	assert.Contains(t, lines[1], "files=3")
	assert.Contains(t, lines[2], "depth=2")
	assert.Contains(t, lines[3], "level=WARN")
	assert.Contains(t, lines[3], `error="disk full"`)
}

func TestChildWithoutParentStartsTrace(t *testing.T) {
	ctx, span := StartChildSpan(context.Background(), "orphan")
	assert.NotEmpty(t, span.TraceID)
	assert.Same(t, span, SpanFromContext(ctx))
	assert.Nil(t, SpanFromContext(context.Background()))
}
