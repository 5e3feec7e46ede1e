package voicechat

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/voicechat-go/audio"
	"github.com/codewandler/voicechat-go/conversation"
	"github.com/codewandler/voicechat-go/events"
	"github.com/codewandler/voicechat-go/tool"
)

// recordingTransport captures outbound frames in write order.
type recordingTransport struct {
	mu     sync.Mutex
	frames [][]byte
}

func (r *recordingTransport) WriteText(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, append([]byte(nil), data...))
}

func (r *recordingTransport) Close(context.Context) error { return nil }

func (r *recordingTransport) types(t *testing.T) []string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.frames))
	for i, f := range r.frames {
		var env events.Envelope
		require.NoError(t, json.Unmarshal(f, &env))
		out[i] = env.Type
	}
	return out
}

// attachTransport puts the client into the connected state against a fake
// wire, the way a confirmed Connect would.
func attachTransport(c *Client, tr transport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws = tr
	c.state = stateConnected
}

func newTestClient() *Client {
	return NewClient(
		ConnectionSettings{APIKey: "test-key"},
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func feed(t *testing.T, c *Client, evt string) {
	t.Helper()
	require.NoError(t, c.handleServerMessage([]byte(evt)))
}

func audioDelta(eventID, itemID string, samples []int16) string {
	return fmt.Sprintf(
		`{"type":"response.audio.delta","event_id":%q,"response_id":"r1","item_id":%q,"delta":%q}`,
		eventID, itemID, base64.StdEncoding.EncodeToString(pcm16Bytes(samples)),
	)
}

func TestClientConnectFailsFastWithoutCredentials(t *testing.T) {
	c := NewClient(ConnectionSettings{}, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	err := c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrMissingCredentials)
	assert.False(t, c.IsConnected())
	assert.Empty(t, c.Events())
}

func TestClientReassemblesStreamedResponse(t *testing.T) {
	c := newTestClient()

	var tracks []string
	var streamed []int16
	c.OnAudioOutput(func(samples []int16, trackID string) {
		tracks = append(tracks, trackID)
		streamed = append(streamed, samples...)
	})

	feed(t, c, `{"type":"response.output_item.added","event_id":"e1","response_id":"r1","item":{"id":"item_1","type":"message","role":"assistant","status":"in_progress"}}`)
	feed(t, c, audioDelta("e2", "item_1", []int16{1, 2}))
	feed(t, c, audioDelta("e3", "item_1", []int16{3, 4}))
	feed(t, c, audioDelta("e4", "item_1", []int16{5, 6}))
	feed(t, c, `{"type":"response.audio_transcript.delta","event_id":"e5","item_id":"item_1","delta":"Hello"}`)
	feed(t, c, `{"type":"response.audio_transcript.delta","event_id":"e6","item_id":"item_1","delta":" world."}`)
	feed(t, c, `{"type":"response.done","event_id":"e7","response":{"id":"r1","status":"completed","output":[{"id":"item_1","type":"message","role":"assistant","status":"completed"}]}}`)

	items := c.Items()
	require.Len(t, items, 1)
	it := items[0]
	assert.Equal(t, conversation.StatusCompleted, it.Status)
	assert.Equal(t, []int16{1, 2, 3, 4, 5, 6}, it.Audio)
	assert.Equal(t, "Hello world.", it.Transcript)
	require.NotNil(t, it.File)
	defer os.Remove(it.File.Path)

	// every delta also went out to the playback callback, tagged by item
	assert.Equal(t, []string{"item_1", "item_1", "item_1"}, tracks)
	assert.Equal(t, []int16{1, 2, 3, 4, 5, 6}, streamed)
}

func TestClientEventLogCollapsesDeltaRuns(t *testing.T) {
	c := newTestClient()

	feed(t, c, audioDelta("e1", "item_1", []int16{1}))
	feed(t, c, audioDelta("e2", "item_1", []int16{2}))
	feed(t, c, audioDelta("e3", "item_1", []int16{3}))

	entries := c.Events()
	require.Len(t, entries, 1)
	assert.Equal(t, "response.audio.delta", entries[0].Event.Type)
	assert.Equal(t, 3, entries[0].Occurrences())
	assert.Equal(t, conversation.SourceServer, entries[0].Source)
}

func TestClientBargeInCancelsAndTruncates(t *testing.T) {
	c := newTestClient()

	c.OnInterrupt(func() audio.Interruption {
		return audio.Interruption{TrackID: "item_1", Offset: 2, CurrentTime: 2.0 / 24000}
	})

	feed(t, c, `{"type":"response.output_item.added","event_id":"e1","response_id":"r1","item":{"id":"item_1","type":"message","role":"assistant","status":"in_progress"}}`)
	feed(t, c, audioDelta("e2", "item_1", []int16{1, 2, 3, 4}))
	feed(t, c, `{"type":"input_audio_buffer.speech_started","event_id":"e3","audio_start_ms":120}`)

	items := c.Items()
	require.Len(t, items, 1)
	assert.Equal(t, conversation.StatusCancelled, items[0].Status)
	assert.Equal(t, []int16{1, 2}, items[0].Audio)

	// audio still in flight for the cancelled item is discarded
	feed(t, c, audioDelta("e4", "item_1", []int16{9, 9}))
	items = c.Items()
	assert.Equal(t, []int16{1, 2}, items[0].Audio)
}

func TestClientDispatchesCompletedToolCalls(t *testing.T) {
	c := newTestClient()

	argsCh := make(chan map[string]any, 1)
	require.NoError(t, c.AddTool(tool.Tool{Name: "get_weather"}, func(ctx context.Context, args map[string]any) (any, error) {
		argsCh <- args
		return map[string]any{"temperature": 21.5}, nil
	}))

	feed(t, c, `{"type":"response.done","event_id":"e1","response":{"id":"r1","status":"completed","output":[{"id":"fc_1","type":"function_call","status":"completed","name":"get_weather","call_id":"call_1","arguments":"{\"city\":\"Berlin\"}"}]}}`)

	select {
	case args := <-argsCh:
		assert.Equal(t, "Berlin", args["city"])
	case <-time.After(2 * time.Second):
		t.Fatal("tool executor was never invoked")
	}
}

func TestClientManualTurnWireSequence(t *testing.T) {
	c := newTestClient()
	tr := &recordingTransport{}
	attachTransport(c, tr)

	require.NoError(t, c.AppendInputAudio([]int16{1, 2, 3}))
	require.NoError(t, c.AppendInputAudio([]int16{4, 5, 6}))
	require.NoError(t, c.CommitInputAudio())
	require.NoError(t, c.CreateResponse())

	assert.Equal(t, []string{
		"input_audio_buffer.append",
		"input_audio_buffer.append",
		"input_audio_buffer.commit",
		"response.create",
	}, tr.types(t))
}

func TestClientTextMessageWireSequence(t *testing.T) {
	c := newTestClient()
	tr := &recordingTransport{}
	attachTransport(c, tr)

	require.NoError(t, c.SendTextMessage("hello"))

	require.Equal(t, []string{
		"conversation.item.create",
		"response.create",
	}, tr.types(t))

	var evt events.ConversationItemCreateEvent
	require.NoError(t, json.Unmarshal(tr.frames[0], &evt))
	assert.Equal(t, "message", evt.Item.Type)
	assert.Equal(t, "user", evt.Item.Role)
	require.Len(t, evt.Item.Content, 1)
	assert.Equal(t, "input_text", evt.Item.Content[0].Type)
	assert.Equal(t, "hello", evt.Item.Content[0].Text)
}

func TestClientSendsAreNoopsWithoutTransport(t *testing.T) {
	c := newTestClient()

	require.NoError(t, c.SendTextMessage("hello"))
	require.NoError(t, c.CreateResponse())
	require.NoError(t, c.AppendInputAudio([]int16{1, 2, 3}))

	assert.Empty(t, c.Events())
}

func TestClientRejectsMalformedMessages(t *testing.T) {
	c := newTestClient()
	assert.Error(t, c.handleServerMessage([]byte("{not json")))
}
