package audit

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestLogWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	l := New(true, &buf)

	l.Log(Entry{Datasource: "prom", Query: "up", LookbackDays: 7, ForecastDays: 7, Series: 2, Cached: false})
	l.Log(Entry{Datasource: "prom", Query: "up", Cached: true})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}

	var entry Entry
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry.Datasource != "prom" || entry.Series != 2 {
		t.Errorf("entry = %+v", entry)
	}
	if entry.Time.IsZero() {
		t.Errorf("time not stamped")
	}
	if entry.Time.Location() != time.UTC {
		t.Errorf("time not UTC: %v", entry.Time)
	}
}

func TestDisabledAndNilLoggerAreNoOps(t *testing.T) {
	var buf bytes.Buffer
	New(false, &buf).Log(Entry{Datasource: "prom"})
	if buf.Len() != 0 {
		t.Errorf("disabled logger wrote %q", buf.String())
	}

	var l *Logger
	l.Log(Entry{Datasource: "prom"})
}
