package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogCollapsesRuns(t *testing.T) {
	l := NewLog()

	l.Append(SourceServer, "session.created", "e1", []byte(`{"type":"session.created","event_id":"e1"}`))
	for i := 0; i < 5; i++ {
		l.Append(SourceServer, "response.audio.delta", "e2", []byte(`{"type":"response.audio.delta"}`))
	}
	l.Append(SourceServer, "response.done", "e3", []byte(`{"type":"response.done"}`))

	entries := l.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "session.created", entries[0].Event.Type)
	assert.Equal(t, 0, entries[0].Count)
	assert.Equal(t, 1, entries[0].Occurrences())
	assert.Equal(t, "response.audio.delta", entries[1].Event.Type)
	assert.Equal(t, 5, entries[1].Count)
	assert.Equal(t, "response.done", entries[2].Event.Type)
}

func TestLogNeverHoldsAdjacentEqualTypes(t *testing.T) {
	l := NewLog()
	types := []string{"a", "a", "b", "b", "b", "a", "c", "c", "a"}
	for _, typ := range types {
		l.Append(SourceClient, typ, "", nil)
	}

	entries := l.Entries()
	total := 0
	for i, e := range entries {
		if i > 0 {
			assert.NotEqual(t, entries[i-1].Event.Type, e.Event.Type)
		}
		total += e.Occurrences()
	}
	assert.Equal(t, len(types), total)
}

func TestLogAlternatingSourcesStillCollapseByType(t *testing.T) {
	// run-length compression keys on event type alone
	l := NewLog()
	l.Append(SourceClient, "response.create", "c1", nil)
	l.Append(SourceServer, "response.create", "s1", nil)

	entries := l.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].Count)
}

func TestLogClear(t *testing.T) {
	l := NewLog()
	l.Append(SourceServer, "error", "", nil)
	require.Equal(t, 1, l.Len())
	l.Clear()
	assert.Equal(t, 0, l.Len())
}

func TestLogEventSummaryTruncatesAudio(t *testing.T) {
	big := make([]byte, 1024)
	for i := range big {
		big[i] = 'A'
	}
	raw := []byte(`{"type":"response.audio.delta","delta":"` + string(big) + `"}`)

	l := NewLog()
	l.Append(SourceServer, "response.audio.delta", "e1", raw)

	entries := l.Entries()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Event.Summary(), "<1024 bytes>")
	// underlying payload untouched
	assert.Equal(t, raw, []byte(entries[0].Event.Raw))
}
