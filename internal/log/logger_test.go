package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/wefram/sysui/internal/errors"
)

func newBufferLogger(level Level, format Format) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(Config{
		Level:       level,
		Format:      format,
		Output:      NewOutput(&buf),
		ServiceName: "sysui",
	}), &buf
}

func TestNewRespectsLevel(t *testing.T) {
	logger, buf := newBufferLogger(LevelWarn, FormatJSON)

	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}

	logger.Warn("shown", "key", "value")
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON output: %v", err)
	}
	if entry["msg"] != "shown" || entry["key"] != "value" || entry["service"] != "sysui" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestWithErrorAppError(t *testing.T) {
	logger, buf := newBufferLogger(LevelDebug, FormatJSON)

	err := errors.Wrap(errors.ErrCodeStoreWrite, "write failed", fmt.Errorf("disk full")).
		WithSuggestion("free some space")
	logger.WithError(err).Error("store failure")

	var entry map[string]any
	if jsonErr := json.Unmarshal(buf.Bytes(), &entry); jsonErr != nil {
		t.Fatalf("expected JSON output: %v", jsonErr)
	}
	if entry["error_code"] != "STORE-002" {
		t.Errorf("error_code = %v", entry["error_code"])
	}
	if entry["cause"] != "disk full" {
		t.Errorf("cause = %v", entry["cause"])
	}
}

type requestFailure struct{ status int }

func (e requestFailure) Error() string { return fmt.Sprintf("status %d", e.status) }

func (e requestFailure) LogValue() slog.Value {
	return slog.GroupValue(slog.String("method", "GET"), slog.Int("status", e.status))
}

func TestWithErrorRequestDetails(t *testing.T) {
	logger, buf := newBufferLogger(LevelDebug, FormatJSON)

	err := errors.Wrap(errors.ErrCodeAPIRequest, "touch failed", requestFailure{status: 502})
	logger.WithError(fmt.Errorf("validate session: %w", err)).Warn("request failure")

	var entry struct {
		Error     string `json:"error"`
		ErrorCode string `json:"error_code"`
		Request   struct {
			Method string `json:"method"`
			Status int    `json:"status"`
		} `json:"request"`
	}
	if jsonErr := json.Unmarshal(buf.Bytes(), &entry); jsonErr != nil {
		t.Fatalf("expected JSON output: %v", jsonErr)
	}
	if !strings.HasPrefix(entry.Error, "validate session:") {
		t.Errorf("error = %q, want the full wrapped message", entry.Error)
	}
	if entry.ErrorCode != string(errors.ErrCodeAPIRequest) {
		t.Errorf("error_code = %q", entry.ErrorCode)
	}
	if entry.Request.Method != "GET" || entry.Request.Status != 502 {
		t.Errorf("request = %+v", entry.Request)
	}
}

func TestWithErrorPlainAndNil(t *testing.T) {
	logger, buf := newBufferLogger(LevelDebug, FormatText)

	if logger.WithError(nil) != logger {
		t.Error("WithError(nil) should return the same logger")
	}

	logger.WithError(fmt.Errorf("boom")).Debug("plain")
	if !strings.Contains(buf.String(), "error=boom") {
		t.Errorf("expected error attribute, got %q", buf.String())
	}
}

func TestEnabled(t *testing.T) {
	logger, _ := newBufferLogger(LevelWarn, FormatText)
	ctx := context.Background()

	if logger.Enabled(ctx, LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	if !logger.Enabled(ctx, LevelError) {
		t.Error("error should be enabled at warn level")
	}
}

func TestParseLevelAndFormat(t *testing.T) {
	levels := map[string]Level{
		"debug": LevelDebug, "INFO": LevelInfo, "warning": LevelWarn,
		"error": LevelError, "bogus": LevelInfo,
	}
	for in, want := range levels {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}

	if ParseFormat("console") != FormatText || ParseFormat("json") != FormatJSON || ParseFormat("") != FormatJSON {
		t.Error("ParseFormat mismatch")
	}
}

func TestDefaultLogger(t *testing.T) {
	SetDefaultLogger(nil)
	if DefaultLogger() == nil {
		t.Fatal("expected lazily created default logger")
	}

	custom := Discard()
	SetDefaultLogger(custom)
	if DefaultLogger() != custom {
		t.Error("expected configured default logger")
	}
	SetDefaultLogger(nil)
}
