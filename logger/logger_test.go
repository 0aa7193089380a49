package logger

import (
	"bytes"
	"strings"
	"testing"

	"google.golang.org/protobuf/types/known/structpb"
)

func captureOutput(t *testing.T, level LogLevel) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	prevLevel := GetLevel()
	SetOutput(buf)
	SetLevel(level)
	t.Cleanup(func() {
		SetOutput(nil)
		SetLevel(prevLevel)
	})
	return buf
}

func TestLevelFiltering(t *testing.T) {
	buf := captureOutput(t, WARN)

	Debug("session", "hidden %d", 1)
	Info("session", "hidden too")
	Warn("session", "shown %s", "warn")
	Error("session", "shown error")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Expected DEBUG/INFO to be filtered, got:\n%s", out)
	}
	if !strings.Contains(out, "[session WARN ] shown warn") {
		t.Errorf("Expected warn line, got:\n%s", out)
	}
	if !strings.Contains(out, "[session ERROR] shown error") {
		t.Errorf("Expected error line, got:\n%s", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"trace": TRACE,
		"DEBUG": DEBUG,
		"Info":  INFO,
		"warn":  WARN,
		"error": ERROR,
		"bogus": INFO,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestDebugJSONProtoMessage(t *testing.T) {
	buf := captureOutput(t, DEBUG)

	snapshot, err := structpb.NewStruct(map[string]interface{}{
		"address": "AA:BB:CC:DD:EE:FF",
		"status":  "connected",
	})
	if err != nil {
		t.Fatalf("NewStruct failed: %v", err)
	}

	Default().DebugJSON("session", "state", snapshot)

	out := buf.String()
	if !strings.Contains(out, `"address"`) || !strings.Contains(out, "AA:BB:CC:DD:EE:FF") {
		t.Errorf("Expected protojson rendering of snapshot, got:\n%s", out)
	}
}

func TestNopDiscards(t *testing.T) {
	buf := captureOutput(t, TRACE)
	Nop().Error("tag", "should not appear")
	if buf.Len() != 0 {
		t.Errorf("Expected no output from Nop logger, got %q", buf.String())
	}
}
