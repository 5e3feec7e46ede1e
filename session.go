package voicechat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codewandler/voicechat-go/audio"
	"github.com/codewandler/voicechat-go/conversation"
	"github.com/codewandler/voicechat-go/events"
	"github.com/codewandler/voicechat-go/history"
	"github.com/codewandler/voicechat-go/tool"
)

// TurnMode is the policy deciding when the microphone streams to the
// service.
type TurnMode string

const (
	// TurnModeAutomatic streams continuously; the server detects
	// end-of-turn.
	TurnModeAutomatic TurnMode = "automatic"
	// TurnModeManual is push-to-talk: capture runs only between
	// StartTalking and StopTalking.
	TurnModeManual TurnMode = "manual"
)

var ErrNotConnected = errors.New("not connected")

// realtimeClient is the protocol surface the orchestrator drives. The
// concrete implementation is Client.
type realtimeClient interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool
	Items() []conversation.Item
	Events() []conversation.LogEntry
	UpdateSession(cfg events.SessionConfig) error
	SendTextMessage(text string) error
	AppendInputAudio(samples []int16) error
	CommitInputAudio() error
	CreateResponse() error
	DeleteItem(id string) error
	AddTool(t tool.Tool, fn tool.Executor) error
	RemoveTool(name string) error
	OnAudioOutput(h AudioOutputFunc)
	OnInterrupt(h InterruptFunc)
	OnClose(h func())
}

type sessionConfig struct {
	logger     *slog.Logger
	source     audio.Source
	sink       audio.Sink
	clientOpts []Option
}

type SessionOption func(*sessionConfig)

func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(o *sessionConfig) {
		o.logger = logger
	}
}

// WithCaptureSource swaps the microphone backend.
func WithCaptureSource(src audio.Source) SessionOption {
	return func(o *sessionConfig) {
		o.source = src
	}
}

// WithPlaybackSink swaps the speaker backend.
func WithPlaybackSink(sink audio.Sink) SessionOption {
	return func(o *sessionConfig) {
		o.sink = sink
	}
}

// WithClientOptions forwards options to every client the session creates.
func WithClientOptions(opts ...Option) SessionOption {
	return func(o *sessionConfig) {
		o.clientOpts = append(o.clientOpts, opts...)
	}
}

// Session composes capture, playback, the protocol client and history into
// one live conversation. It is the single source of truth for when the
// microphone is active.
type Session struct {
	cfg   sessionConfig
	store *history.Store

	mu         sync.Mutex
	connection ConnectionSettings
	chat       events.SessionConfig
	client     realtimeClient

	recorder      *audio.Recorder
	player        *audio.Player
	recorderReady bool
	playerReady   bool
	connected     bool
	capturing     bool
}

func NewSession(settings Settings, store *history.Store, opts ...SessionOption) *Session {
	cfg := sessionConfig{
		logger: slog.Default(),
		source: &audio.MicSource{},
		sink:   &audio.SpeakerSink{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Session{
		cfg:        cfg,
		store:      store,
		connection: settings.Connection,
		chat:       settings.Chat,
	}
	s.recorder = audio.NewRecorder(audio.RecorderConfig{
		Source: cfg.source,
		Logger: cfg.logger,
	})
	s.player = audio.NewPlayer(audio.PlayerConfig{
		Sink:   cfg.sink,
		Logger: cfg.logger,
	})
	s.client = s.newClient()
	return s
}

// newClient wires a fresh protocol client: inbound audio deltas go straight
// to the player, interruptions come back as playback offsets, and a
// transport drop triggers the same cleanup as an explicit disconnect.
func (s *Session) newClient() realtimeClient {
	c := NewClient(s.connection, s.cfg.clientOpts...)
	c.OnAudioOutput(func(samples []int16, trackID string) {
		s.player.Enqueue(samples, trackID)
	})
	c.OnInterrupt(func() audio.Interruption {
		return s.player.Interrupt()
	})
	c.OnClose(func() {
		go func() {
			s.cfg.logger.Warn("connection lost, flushing session")
			s.mu.Lock()
			defer s.mu.Unlock()
			s.cleanupLocked(context.Background())
		}()
	})
	return c
}

// TurnMode derives the active turn-taking policy from the chat settings.
func (s *Session) TurnMode() TurnMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chat.ServerVAD() {
		return TurnModeAutomatic
	}
	return TurnModeManual
}

// Connect establishes the session. Device acquisition failures degrade the
// session to the remaining modality instead of aborting; only the protocol
// connection itself is fatal.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return nil
	}

	if err := s.client.Connect(ctx); err != nil {
		if !errors.Is(err, ErrMissingCredentials) {
			// failed clients are terminal, set up a fresh one for retry
			s.client = s.newClient()
		}
		return err
	}
	s.connected = true

	if err := s.recorder.Begin(); err != nil {
		s.cfg.logger.Error("capture unavailable, continuing without microphone", slog.Any("err", err))
	} else {
		s.recorderReady = true
	}
	if err := s.player.Connect(); err != nil {
		s.cfg.logger.Error("playback unavailable, continuing without speaker", slog.Any("err", err))
	} else {
		s.playerReady = true
	}

	if err := s.client.UpdateSession(s.chat); err != nil {
		s.cfg.logger.Error("session update failed", slog.Any("err", err))
	}

	if s.chat.ServerVAD() && s.recorderReady {
		s.startCaptureLocked()
	}
	return nil
}

// Disconnect stops capture and playback, snapshots the conversation into
// history and closes the protocol client. Safe to call at any time.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked(ctx)
	return nil
}

// cleanupLocked is idempotent: every step is guarded, and calling it with
// nothing active is a no-op.
func (s *Session) cleanupLocked(ctx context.Context) {
	if s.capturing {
		_ = s.recorder.Pause()
		s.capturing = false
	}
	if s.recorderReady {
		if err := s.recorder.End(); err != nil {
			s.cfg.logger.Error("capture release failed", slog.Any("err", err))
		}
		s.recorderReady = false
	}
	if s.playerReady {
		if err := s.player.Disconnect(); err != nil {
			s.cfg.logger.Error("playback release failed", slog.Any("err", err))
		}
		s.playerReady = false
	}
	if s.connected {
		if items := s.client.Items(); len(items) > 0 {
			s.store.AddThread(history.Thread{
				ID:        uuid.NewString(),
				Title:     "Conversation",
				Items:     items,
				Timestamp: time.Now(),
			})
		}
		_ = s.client.Disconnect(ctx)
		s.connected = false
		// the old client is terminal, stage a fresh one
		s.client = s.newClient()
	}
}

func (s *Session) startCaptureLocked() {
	client := s.client
	err := s.recorder.Record(func(frame []int16) {
		// frames racing a disconnect are dropped here
		if client.IsConnected() {
			_ = client.AppendInputAudio(frame)
		}
	})
	if err != nil {
		s.cfg.logger.Error("capture start failed", slog.Any("err", err))
		return
	}
	s.capturing = true
}

// StartTalking begins push-to-talk capture. It is not available in
// automatic mode, where the server owns turn taking.
func (s *Session) StartTalking() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrNotConnected
	}
	if s.chat.ServerVAD() {
		return errors.New("manual capture is disabled while server turn detection is active")
	}
	if !s.recorderReady {
		return audio.ErrNotAcquired
	}
	if s.capturing {
		return nil
	}
	s.startCaptureLocked()
	return nil
}

// StopTalking stops push-to-talk capture, commits the buffered input audio
// and requests exactly one response. Without the commit the server never
// turns the buffered audio into a user item in manual mode.
func (s *Session) StopTalking() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.capturing {
		return nil
	}
	_ = s.recorder.Pause()
	s.capturing = false
	if err := s.client.CommitInputAudio(); err != nil {
		return err
	}
	return s.client.CreateResponse()
}

func (s *Session) SendTextMessage(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.SendTextMessage(text)
}

func (s *Session) DeleteItem(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.DeleteItem(id)
}

func (s *Session) AddTool(t tool.Tool, fn tool.Executor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.AddTool(t, fn)
}

func (s *Session) RemoveTool(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.RemoveTool(name)
}

// UpdateChatSettings applies new session settings. While connected the
// change is pushed in place without reconnecting; an already-running
// automatic capture keeps its bound frame handler.
func (s *Session) UpdateChatSettings(cfg events.SessionConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat = cfg
	if !s.connected {
		return nil
	}
	if err := s.client.UpdateSession(cfg); err != nil {
		return err
	}
	switch {
	case cfg.ServerVAD() && !s.capturing && s.recorderReady:
		s.startCaptureLocked()
	case !cfg.ServerVAD() && s.capturing:
		_ = s.recorder.Pause()
		s.capturing = false
	}
	return nil
}

// UpdateConnectionSettings tears the current client down, snapshotting any
// live conversation, and stages a fresh client for the new endpoint. It
// does not reconnect on its own.
func (s *Session) UpdateConnectionSettings(ctx context.Context, cs ConnectionSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked(ctx)
	s.connection = cs
	s.client = s.newClient()
}

func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Session) Recording() bool {
	return s.recorder.Recording()
}

func (s *Session) Playing() bool {
	return s.player.Playing()
}

func (s *Session) Items() []conversation.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.Items()
}

func (s *Session) Events() []conversation.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.Events()
}

// InputFrequencies is the capture-side spectral snapshot for visualization.
func (s *Session) InputFrequencies(band audio.Band) audio.Frequencies {
	return s.recorder.GetFrequencies(band)
}

// OutputFrequencies is the playback-side spectral snapshot.
func (s *Session) OutputFrequencies(band audio.Band) audio.Frequencies {
	return s.player.GetFrequencies(band)
}
