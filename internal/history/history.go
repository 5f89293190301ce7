// Package history keeps the in-memory, append-only record of a session's actions.
package history

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/dataloom-cli/internal/result"
)

// Action names a recorded step.
type Action string

const (
	ActionLoad        Action = "load"
	ActionPreAnalysis Action = "pre_analysis"
	ActionAnswerQuery Action = "answer_query"
)

// Record is one immutable log entry.
type Record struct {
	ID     string            `json:"id"`
	At     time.Time         `json:"at"`
	Action Action            `json:"action"`
	Params map[string]string `json:"parameters"`
	Result result.Payload    `json:"result"`
}

// Log is safe for concurrent use. The zero value is an unbounded, empty log.
type Log struct {
	mu      sync.Mutex
	records []Record
	start   int // records[:start] have been dropped and await compaction
	limit   int
	now     func() time.Time
}

// New returns a log that keeps at most limit records, dropping the oldest.
// A limit of 0 or less keeps everything.
func New(limit int) *Log {
	return &Log{limit: limit}
}

// Append records an action and returns the stored record.
func (l *Log) Append(action Action, params map[string]string, payload result.Payload) Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now
	if l.now != nil {
		now = l.now
	}
	rec := Record{
		ID:     uuid.NewString(),
		At:     now().UTC(),
		Action: action,
		Params: maps.Clone(params),
		Result: payload,
	}
	if rec.Params == nil {
		rec.Params = map[string]string{}
	}
	l.records = append(l.records, rec)
	if l.limit > 0 && len(l.records)-l.start > l.limit {
		l.records[l.start] = Record{}
		l.start++
		if l.start >= l.limit {
			n := copy(l.records, l.records[l.start:])
			clear(l.records[n:])
			l.records = l.records[:n]
			l.start = 0
		}
	}
	return clone(rec)
}

func clone(rec Record) Record {
	rec.Params = maps.Clone(rec.Params)
	return rec
}

// All returns copies of the records in insertion order.
func (l *Log) All() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	live := l.records[l.start:]
	out := make([]Record, len(live))
	for i, rec := range live {
		out[i] = clone(rec)
	}
	return out
}

// Len reports how many records are held.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records) - l.start
}

// Export writes every record as one JSON object per line.
func (l *Log) Export(w io.Writer) error {
	enc := json.NewEncoder(w)
	for _, rec := range l.All() {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encode record %s: %w", rec.ID, err)
		}
	}
	return nil
}
