package voicechat

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/voicechat-go/conversation"
	"github.com/codewandler/voicechat-go/events"
	"github.com/codewandler/voicechat-go/history"
	"github.com/codewandler/voicechat-go/tool"
)

// fakeRealtimeClient records every call the orchestrator makes.
type fakeRealtimeClient struct {
	mu             sync.Mutex
	connected      bool
	connectErr     error
	disconnects    int
	frames         [][]int16
	responses      int
	commits        int
	ops            []string
	texts          []string
	sessionUpdates []events.SessionConfig
	items          []conversation.Item
}

func (f *fakeRealtimeClient) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeRealtimeClient) Disconnect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnects++
	return nil
}

func (f *fakeRealtimeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeRealtimeClient) Items() []conversation.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items
}

func (f *fakeRealtimeClient) Events() []conversation.LogEntry { return nil }

func (f *fakeRealtimeClient) UpdateSession(cfg events.SessionConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessionUpdates = append(f.sessionUpdates, cfg)
	return nil
}

func (f *fakeRealtimeClient) SendTextMessage(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeRealtimeClient) AppendInputAudio(samples []int16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, append([]int16(nil), samples...))
	return nil
}

func (f *fakeRealtimeClient) CommitInputAudio() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits++
	f.ops = append(f.ops, "input_audio_buffer.commit")
	return nil
}

func (f *fakeRealtimeClient) CreateResponse() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses++
	f.ops = append(f.ops, "response.create")
	return nil
}

func (f *fakeRealtimeClient) DeleteItem(string) error              { return nil }
func (f *fakeRealtimeClient) AddTool(tool.Tool, tool.Executor) error { return nil }
func (f *fakeRealtimeClient) RemoveTool(string) error              { return nil }
func (f *fakeRealtimeClient) OnAudioOutput(AudioOutputFunc)        {}
func (f *fakeRealtimeClient) OnInterrupt(InterruptFunc)            {}
func (f *fakeRealtimeClient) OnClose(func())                       {}

func (f *fakeRealtimeClient) frameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func (f *fakeRealtimeClient) responseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.responses
}

// testSource feeds microphone frames pushed by the test.
type testSource struct {
	ch        chan []int16
	closeOnce sync.Once
}

func newTestSource() *testSource {
	return &testSource{ch: make(chan []int16, 16)}
}

func (s *testSource) Open(int) error { return nil }

func (s *testSource) Read(dst []int16) (int, error) {
	buf, ok := <-s.ch
	if !ok {
		return 0, io.EOF
	}
	return copy(dst, buf), nil
}

func (s *testSource) Close() error {
	s.closeOnce.Do(func() { close(s.ch) })
	return nil
}

// testSink accepts everything immediately.
type testSink struct{}

func (testSink) Open(int) error              { return nil }
func (testSink) Write(s []int16) (int, error) { return len(s), nil }
func (testSink) Clear()                      {}
func (testSink) Close() error                { return nil }

func newTestSession(t *testing.T, settings Settings) (*Session, *fakeRealtimeClient, *testSource) {
	t.Helper()
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	src := newTestSource()
	s := NewSession(settings, store,
		WithSessionLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithCaptureSource(src),
		WithPlaybackSink(testSink{}),
	)
	fc := &fakeRealtimeClient{}
	s.client = fc
	return s, fc, src
}

func manualSettings() Settings {
	s := DefaultSettings()
	s.Connection.APIKey = "test-key"
	s.Chat.TurnDetection = nil
	return s
}

func automaticSettings() Settings {
	s := DefaultSettings()
	s.Connection.APIKey = "test-key"
	return s
}

// one frame at the default frame size
func fullFrame(v int16) []int16 {
	f := make([]int16, 2400)
	for i := range f {
		f[i] = v
	}
	return f
}

func TestSessionPushToTalk(t *testing.T) {
	s, fc, src := newTestSession(t, manualSettings())
	defer s.Disconnect(context.Background())

	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, TurnModeManual, s.TurnMode())
	assert.False(t, s.Recording())

	require.NoError(t, s.StartTalking())
	assert.True(t, s.Recording())

	src.ch <- fullFrame(1)
	require.Eventually(t, func() bool {
		return fc.frameCount() == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.StopTalking())
	assert.False(t, s.Recording())

	// the buffered turn is committed first, then exactly one response
	fc.mu.Lock()
	assert.Equal(t, []string{"input_audio_buffer.commit", "response.create"}, fc.ops)
	fc.mu.Unlock()

	// releasing the button twice never requests a second response
	require.NoError(t, s.StopTalking())
	assert.Equal(t, 1, fc.responseCount())
	fc.mu.Lock()
	assert.Equal(t, 1, fc.commits)
	fc.mu.Unlock()

	src.ch <- fullFrame(2)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, fc.frameCount())
}

func TestSessionStartTalkingGuardrails(t *testing.T) {
	s, _, _ := newTestSession(t, manualSettings())
	assert.ErrorIs(t, s.StartTalking(), ErrNotConnected)

	auto, _, _ := newTestSession(t, automaticSettings())
	defer auto.Disconnect(context.Background())
	require.NoError(t, auto.Connect(context.Background()))
	assert.Error(t, auto.StartTalking())
}

func TestSessionAutomaticModeStreamsFromConnect(t *testing.T) {
	s, fc, src := newTestSession(t, automaticSettings())
	defer s.Disconnect(context.Background())

	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, TurnModeAutomatic, s.TurnMode())
	assert.True(t, s.Recording())

	src.ch <- fullFrame(1)
	src.ch <- fullFrame(2)
	require.Eventually(t, func() bool {
		return fc.frameCount() == 2
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Disconnect(context.Background()))
	assert.False(t, s.Recording())
	assert.Equal(t, 2, fc.frameCount())
}

func TestSessionDisconnectSnapshotsHistory(t *testing.T) {
	s, fc, _ := newTestSession(t, manualSettings())
	fc.items = []conversation.Item{
		{ID: "i1", Kind: conversation.KindText, Role: conversation.RoleUser, Text: "hi"},
		{ID: "i2", Kind: conversation.KindText, Role: conversation.RoleAssistant, Text: "hello"},
	}

	require.NoError(t, s.Connect(context.Background()))
	require.NoError(t, s.Disconnect(context.Background()))

	assert.Equal(t, 1, fc.disconnects)
	require.Equal(t, 1, s.store.Len())
	thread := s.store.Threads()[0]
	assert.NotEmpty(t, thread.ID)
	assert.Equal(t, "Conversation", thread.Title)
	assert.Len(t, thread.Items, 2)

	// a second disconnect is a no-op, nothing is flushed twice
	require.NoError(t, s.Disconnect(context.Background()))
	assert.Equal(t, 1, s.store.Len())
}

func TestSessionEmptyConversationIsNotPersisted(t *testing.T) {
	s, _, _ := newTestSession(t, manualSettings())
	require.NoError(t, s.Connect(context.Background()))
	require.NoError(t, s.Disconnect(context.Background()))
	assert.Equal(t, 0, s.store.Len())
}

func TestSessionSettingsChangeTogglesCapture(t *testing.T) {
	s, fc, _ := newTestSession(t, manualSettings())
	defer s.Disconnect(context.Background())

	require.NoError(t, s.Connect(context.Background()))
	assert.False(t, s.Recording())

	auto := automaticSettings().Chat
	require.NoError(t, s.UpdateChatSettings(auto))
	assert.True(t, s.Recording())

	manual := manualSettings().Chat
	require.NoError(t, s.UpdateChatSettings(manual))
	assert.False(t, s.Recording())

	fc.mu.Lock()
	defer fc.mu.Unlock()
	// connect pushed the initial settings, each change pushed once more
	assert.Len(t, fc.sessionUpdates, 3)
}
