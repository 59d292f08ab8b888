package diaglog

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"
	"testing"
)

func TestLogWritesNDJSON(t *testing.T) {
	t.Setenv("ECHOTRIM_DEBUG", "true")

	tmp := t.TempDir() + "/test.ndjson"
	l, err := New(tmp)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	entries := []LogEntry{
		{Component: ComponentTranscoder, Event: EventTranscodeStart},
		{Component: ComponentTrimmer, Event: EventTrimApplied, Reason: "user trim", Recording: "rec-42"},
		{Component: ComponentScheduler, Event: EventCompressDone},
	}
	for _, e := range entries {
		l.Log(e)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(tmp)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []map[string]interface{}
	for scanner.Scan() {
		var m map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			t.Fatalf("invalid JSON line: %v -> %s", err, scanner.Text())
		}
		lines = append(lines, m)
	}
	if len(lines) != len(entries) {
		t.Fatalf("want %d lines, got %d", len(entries), len(lines))
	}
	if lines[0]["component"] != ComponentTranscoder {
		t.Errorf("component mismatch: %v", lines[0]["component"])
	}
	if lines[1]["recording"] != "rec-42" {
		t.Errorf("recording mismatch: %v", lines[1]["recording"])
	}
	if lines[0]["ts"] == nil {
		t.Error("ts field missing")
	}
}

func TestCapWriterRestartsAtCap(t *testing.T) {
	t.Setenv("ECHOTRIM_DEBUG", "true")

	tmp := t.TempDir() + "/roll.ndjson"
	const maxSize = 1024
	rw, err := openCapWriter(tmp, maxSize)
	if err != nil {
		t.Fatalf("openCapWriter: %v", err)
	}
	defer rw.close()

	chunk := []byte(strings.Repeat("x", 512) + "\n")
	for i := 0; i < 3; i++ {
		if _, err := rw.Write(chunk); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	info, err := os.Stat(tmp)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() > maxSize {
		t.Errorf("file size %d exceeds maxSize %d", info.Size(), maxSize)
	}
}

func TestNoOpWhenDisabled(t *testing.T) {
	os.Unsetenv("ECHOTRIM_DEBUG")

	tmp := t.TempDir() + "/noop.ndjson"
	l, err := New(tmp)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Log(LogEntry{Component: ComponentTranscoder, Event: EventTranscodeStart})
	_ = l.Close()

	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Error("log file should not exist when debug disabled")
	}
}
