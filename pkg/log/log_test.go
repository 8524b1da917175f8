package log

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(buf *bytes.Buffer, opts ...LoggerOption) Logger {
	base := []LoggerOption{WithOutput(NewConsoleOutput(WithWriter(buf)))}
	return NewLogger(append(base, opts...)...)
}

func TestJSONFormatter_WritesFieldsAndComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf).WithComponent("store")
	logger.Info("opened", Str("path", "/data"), Int("tables", 3))

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "INFO", out["level"])
	assert.Equal(t, "opened", out["message"])
	assert.Equal(t, "store", out[ComponentKey])
	assert.Equal(t, "/data", out["path"])
	assert.Equal(t, float64(3), out["tables"])
}

func TestLogger_LevelFilteringIsShared(t *testing.T) {
	var buf bytes.Buffer
	parent := newBufferLogger(&buf, WithLevel(WarnLevel))
	child := parent.WithComponent("auth")

	child.Info("hidden")
	assert.Empty(t, buf.String())

	parent.SetLevel(DebugLevel)
	child.Debug("visible")
	assert.Contains(t, buf.String(), "visible")
	assert.Equal(t, DebugLevel, child.GetLevel())
}

func TestRedactionHook(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, WithHook(NewRedactionHook(DefaultRedactedFields)))
	logger.Warn("bootstrap", Str("shared_key", "s3cr3t"), Str("Private_Key", "k"), Str("client", "admin"))

	out := buf.String()
	assert.NotContains(t, out, "s3cr3t")
	assert.Contains(t, out, redacted)
	assert.Contains(t, out, "admin")
}

func TestSamplingHook_DropsRepeats(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, WithFormatter(&TextFormatter{DisableColors: true, DisableTimestamp: true}),
		WithHook(NewSamplingHook(2, 3)))
	for i := 0; i < 8; i++ {
		logger.Info("tick")
	}
	// kept: 0, 1, then every third after the initial two (2, 5)
	assert.Equal(t, 4, strings.Count(buf.String(), "tick"))

	logger.Error("boom")
	logger.Error("boom")
	logger.Error("boom")
	assert.Equal(t, 3, strings.Count(buf.String(), "boom"))
}

func TestTextFormatter_SortedFieldsNoColor(t *testing.T) {
	f := &TextFormatter{DisableColors: true, DisableTimestamp: true}
	b, err := f.Format(&Entry{Level: WarnLevel, Message: "conflict", Fields: Fields{"b": 2, "a": 1}})
	require.NoError(t, err)
	assert.Equal(t, "WRN conflict a=1 b=2\n", string(b))
}

func TestContextFields(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithClient(ctx, "svc")
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))

	tl := NewTestLogger()
	tl.WithContext(ctx).Info("handled")
	assert.True(t, tl.AssertLoggedWithField(InfoLevel, "handled", RequestIDKey, "req-1"))
	assert.True(t, tl.AssertLoggedWithField(InfoLevel, "handled", ClientKey, "svc"))

	assert.Same(t, tl, FromContext(WithLogger(ctx, tl)))
}

func TestApplyConfig(t *testing.T) {
	_, err := ApplyConfig(&Config{Level: "loud"})
	assert.Error(t, err)
	_, err = ApplyConfig(&Config{Format: "xml"})
	assert.Error(t, err)
	_, err = ApplyConfig(&Config{Output: "file"})
	assert.Error(t, err)

	logger, err := ApplyConfig(&Config{Level: "debug", Format: "json", Output: "null"})
	require.NoError(t, err)
	assert.Equal(t, DebugLevel, logger.GetLevel())
}

func TestFileOutput_Rotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.log")
	out := NewFileOutput(path, WithMaxSize(10), WithMaxBackups(1))
	defer out.Close()

	entry := &Entry{Level: InfoLevel}
	require.NoError(t, out.Write(entry, []byte("0123456789\n")))
	require.NoError(t, out.Write(entry, []byte("abcdefghij\n")))

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abcdefghij\n", string(current))

	backups, err := filepath.Glob(path + ".*")
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

func TestTestLogger_ChildrenShareEntries(t *testing.T) {
	tl := NewTestLogger()
	tl.WithComponent("resolver").Warn("conflict detected", Strs("entries", []string{"a", "b"}))
	assert.True(t, tl.AssertLogged(WarnLevel, "conflict"))
	assert.True(t, tl.AssertLoggedWithField(WarnLevel, "conflict", ComponentKey, "resolver"))
	assert.Equal(t, 1, tl.Count(WarnLevel, "conflict"))
	tl.ClearEntries()
	assert.Empty(t, tl.GetEntries())
}

func TestStdLogWriter(t *testing.T) {
	tl := NewTestLogger()
	ToStdLogger(tl, ErrorLevel).Print("http: TLS handshake error")
	assert.True(t, tl.AssertLogged(ErrorLevel, "TLS handshake"))
}
