package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}

	if err := Init(WithFormat("yaml")); err == nil {
		t.Fatal("expected unknown format to fail")
	}
}

func TestLoggerJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithFormat("json"), WithWriter(&buf), WithAttrs(String("service", "refmatch"))); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	Named("matcher").Info(context.Background(), "offer sent",
		String("game_id", "g-1"),
		Float64("score", 93.5),
		Bool("emergency", false),
		Duration("window", 2*time.Hour),
	)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not json: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "offer sent" {
		t.Errorf("unexpected msg %v", rec["msg"])
	}
	if rec["service"] != "refmatch" {
		t.Errorf("static attrs missing: %v", rec)
	}
	group, ok := rec["matcher"].(map[string]any)
	if !ok {
		t.Fatalf("expected named group in %v", rec)
	}
	if group["game_id"] != "g-1" || group["window"] != "2h0m0s" {
		t.Errorf("unexpected group fields %v", group)
	}
	if src, _ := group["source"].(string); !strings.Contains(src, "logger_test.go") {
		t.Errorf("source should point at the caller, got %q", src)
	}
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithWriter(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	ctx := context.Background()

	Get().Debug(ctx, "hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered at info level, got %q", buf.String())
	}

	if err := SetLevelString("DEBUG"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Get().Debug(ctx, "visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("debug record missing after level change: %q", buf.String())
	}

	if err := SetLevelString("verbose"); err == nil {
		t.Error("expected unknown level to fail")
	}
	_ = SetLevelString("info")
}

func TestLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithWriter(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	Get().With(String("assignment_id", "a-9")).Warn(context.Background(), "stale write")
	if !strings.Contains(buf.String(), "assignment_id=a-9") {
		t.Errorf("expected bound field in %q", buf.String())
	}
}
