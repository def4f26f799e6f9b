package audit

import (
	"encoding/json"
	"io"
	"log"
	"sync"
	"time"
)

// Entry describes a single analyze-request audit record.
type Entry struct {
	User         string        `json:"user,omitempty"`
	Datasource   string        `json:"datasource"`
	Query        string        `json:"query"`
	LookbackDays int           `json:"lookback_days"`
	ForecastDays float64       `json:"forecast_days"`
	Step         string        `json:"step,omitempty"`
	Series       int           `json:"series"`
	Duration     time.Duration `json:"duration"`
	Cached       bool          `json:"cached"`
	Error        string        `json:"error,omitempty"`
	Time         time.Time     `json:"time"`
}

// Logger emits audit entries in JSON lines format.
type Logger struct {
	enabled bool
	mu      sync.Mutex
	out     io.Writer
}

// New creates an audit logger writing to the provided writer.
func New(enabled bool, out io.Writer) *Logger {
	if out == nil {
		out = log.Writer()
	}
	return &Logger{enabled: enabled, out: out}
}

// Log writes an audit entry if enabled. Entries missing a timestamp are
// stamped at write time.
func (l *Logger) Log(entry Entry) {
	if l == nil || !l.enabled {
		return
	}
	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}
	entry.Time = entry.Time.UTC()
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Write(append(data, '\n'))
}
