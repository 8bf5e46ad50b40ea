package export

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/fnscope/fnscope/internal/shared/id"
	"github.com/fnscope/fnscope/internal/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func mkSpan(name string, start, end int64) *trace.Span {
	return &trace.Span{
		TraceID:   id.NewTraceID(),
		SpanID:    id.NewSpanID(),
		Name:      name,
		StartTime: start,
		EndTime:   end,
		Duration:  end - start,
		Status:    trace.StatusOK,
	}
}

func TestAppendWritesOneLinePerSpan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spans.ndjson")
	a, err := NewAppender(path, 0, false, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	a.Append(mkSpan("first", 100, 150))
	a.Append(mkSpan("second", 200, 260))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var span trace.Span
		require.NoError(t, sonic.Unmarshal(scanner.Bytes(), &span))
		names = append(names, span.Name)
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []string{"first", "second"}, names)
}

func TestRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spans.ndjson")

	// Tiny rotation limit so the second span triggers a rotation.
	a, err := NewAppender(path, 10, false, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	a.Append(mkSpan("first", 100, 150))
	a.Append(mkSpan("second", 200, 260))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var rotated int
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "spans.ndjson.") {
			rotated++
		}
	}
	assert.GreaterOrEqual(t, rotated, 1, "expected at least one rotated file")
}

func TestAppendSurvivesClosedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spans.ndjson")
	a, err := NewAppender(path, 0, false, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, a.Close())

	assert.NotPanics(t, func() {
		a.Append(mkSpan("late", 100, 150))
	})
}
