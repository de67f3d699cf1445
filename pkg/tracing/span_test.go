package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/config"
)

func TestChildSpansInheritTrace(t *testing.T) {
	tr := New(config.TracingConfig{})
	ctx, root := tr.Start(context.Background(), "draw", "")
	require.NotEmpty(t, root.TraceID)

	_, child := StartChildSpan(ctx, "load-dataset")
	child.SetAttr("rows", 42)
	child.End()

	assert.Same(t, root, SpanFromContext(ctx))
	require.Len(t, root.Children, 1)
	assert.Equal(t, root.TraceID, child.TraceID)
	assert.Equal(t, 42, child.Attrs["rows"])
}

func TestFinishLogsOnlyWhenEnabled(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	off := New(config.TracingConfig{Enabled: false})
	off.logger = logger
	_, span := off.Start(context.Background(), "quiet", "t-1")
	off.Finish(span)
	assert.Empty(t, buf.String())
	assert.False(t, span.EndTime.IsZero())

	on := New(config.TracingConfig{Enabled: true})
	on.logger = logger
	ctx, span := on.Start(context.Background(), "draw", "t-2")
	_, child := StartChildSpan(ctx, "walk")
	child.End()
	on.Finish(span)

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "msg=span"))
	assert.Contains(t, out, "trace_id=t-2")
	assert.Contains(t, out, "span=walk")
}

func TestStartChildWithoutParent(t *testing.T) {
	_, span := StartChildSpan(context.Background(), "orphan")
	assert.Empty(t, span.TraceID)
	assert.Nil(t, SpanFromContext(context.Background()))
}
