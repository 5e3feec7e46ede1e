package conversation

import (
	"encoding/json"
	"fmt"
	"time"
)

type Source string

const (
	SourceClient Source = "client"
	SourceServer Source = "server"
)

// LogEvent keeps the raw protocol payload alongside its discriminator.
type LogEvent struct {
	Type    string          `json:"type"`
	EventID string          `json:"event_id"`
	Raw     json.RawMessage `json:"-"`
}

func (e LogEvent) MarshalJSON() ([]byte, error) {
	if len(e.Raw) > 0 {
		return e.Raw, nil
	}
	type plain struct {
		Type    string `json:"type"`
		EventID string `json:"event_id"`
	}
	return json.Marshal(plain{Type: e.Type, EventID: e.EventID})
}

// Summary renders the payload for inspection with bulky base64 audio fields
// replaced by their byte length. The underlying entry is never mutated.
func (e LogEvent) Summary() string {
	var m map[string]any
	if err := json.Unmarshal(e.Raw, &m); err != nil {
		return string(e.Raw)
	}
	for _, k := range []string{"audio", "delta"} {
		if s, ok := m[k].(string); ok && len(s) > 256 {
			m[k] = fmt.Sprintf("<%d bytes>", len(s))
		}
	}
	out, err := json.Marshal(m)
	if err != nil {
		return string(e.Raw)
	}
	return string(out)
}

// LogEntry is one record of the conversation event log. Count is 0 for a
// single occurrence and N for a run of N same-typed events.
type LogEntry struct {
	Time   time.Time `json:"time"`
	Source Source    `json:"source"`
	Event  LogEvent  `json:"event"`
	Count  int       `json:"count,omitempty"`
}

// Occurrences reports how many events the entry stands for.
func (e LogEntry) Occurrences() int {
	if e.Count == 0 {
		return 1
	}
	return e.Count
}

// Log is the ordered record of every protocol event. Consecutive events of
// the same type collapse into a single entry with an incremented count, so
// the log never holds two adjacent entries of equal type.
type Log struct {
	entries []*LogEntry
}

func NewLog() *Log {
	return &Log{}
}

func (l *Log) Append(src Source, typ, eventID string, raw []byte) {
	if n := len(l.entries); n > 0 {
		last := l.entries[n-1]
		if last.Event.Type == typ {
			if last.Count == 0 {
				last.Count = 2
			} else {
				last.Count++
			}
			return
		}
	}
	l.entries = append(l.entries, &LogEntry{
		Time:   time.Now(),
		Source: src,
		Event:  LogEvent{Type: typ, EventID: eventID, Raw: append([]byte(nil), raw...)},
	})
}

func (l *Log) Len() int { return len(l.entries) }

func (l *Log) Entries() []LogEntry {
	out := make([]LogEntry, len(l.entries))
	for i, e := range l.entries {
		out[i] = *e
	}
	return out
}

func (l *Log) Clear() {
	l.entries = nil
}
