package voicechat

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"

	"github.com/codewandler/voicechat-go/audio"
	"github.com/codewandler/voicechat-go/conversation"
	"github.com/codewandler/voicechat-go/events"
	"github.com/codewandler/voicechat-go/internal/websocket"
	"github.com/codewandler/voicechat-go/tool"
)

var (
	// ErrMissingCredentials is returned by Connect before any transport
	// attempt when no API key is configured.
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrClientClosed is returned when operating a client whose session has
	// ended. Client instances are single-use.
	ErrClientClosed = errors.New("client closed")
)

type clientState int

const (
	stateDisconnected clientState = iota
	stateConnecting
	stateConnected
	stateClosed
)

// transport is the outbound half of the websocket connection.
type transport interface {
	WriteText(data []byte)
	Close(ctx context.Context) error
}

// AudioOutputFunc receives streamed output samples tagged with the id of
// the conversation item that produced them.
type AudioOutputFunc func(samples []int16, trackID string)

// InterruptFunc hard-stops playback and reports how much of the current
// track was rendered.
type InterruptFunc func() audio.Interruption

// Client owns one persistent connection to the realtime service. It
// reconstructs conversation items from incremental deltas, keeps the event
// log, and routes tool calls to registered executors. All conversation and
// log mutations are serialized behind one lock, regardless of whether they
// originate from inbound protocol messages, capture frames or UI actions.
type Client struct {
	cfg      *clientConfig
	settings ConnectionSettings
	tools    *tool.Registry

	mu            sync.Mutex
	state         clientState
	ws            transport
	conv          *conversation.State
	log           *conversation.Log
	session       events.SessionConfig
	startTime     time.Time
	ready         chan error
	onAudioOutput AudioOutputFunc
	onInterrupt   InterruptFunc
	onClose       func()
	onError       func(*events.ErrorEvent)

	toolCtx    context.Context
	toolCancel context.CancelFunc
}

func NewClient(settings ConnectionSettings, opts ...Option) *Client {
	cfg := &clientConfig{}
	withDefaults()(cfg)
	WithOptions(opts...)(cfg)

	toolCtx, toolCancel := context.WithCancel(context.Background())

	return &Client{
		cfg:        cfg,
		settings:   settings,
		tools:      tool.NewRegistry(),
		conv:       conversation.NewState(cfg.sampleRate, cfg.logger),
		log:        conversation.NewLog(),
		session:    events.DefaultSessionConfig(),
		toolCtx:    toolCtx,
		toolCancel: toolCancel,
	}
}

func (c *Client) OnAudioOutput(h AudioOutputFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAudioOutput = h
}

func (c *Client) OnInterrupt(h InterruptFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onInterrupt = h
}

// OnClose fires once when the transport ends, locally or remotely.
func (c *Client) OnClose(h func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = h
}

func (c *Client) OnError(h func(*events.ErrorEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = h
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateConnected
}

// Items returns a snapshot of the conversation in order.
func (c *Client) Items() []conversation.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv.Items()
}

// Events returns a snapshot of the event log.
func (c *Client) Events() []conversation.LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.log.Entries()
}

func (c *Client) StartTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startTime
}

// Connect opens the persistent connection. It fails fast, without any
// transport attempt, when no credential is configured. The client counts as
// connected only once the server has confirmed the session.
func (c *Client) Connect(ctx context.Context) error {
	if c.settings.APIKey == "" {
		return ErrMissingCredentials
	}

	c.mu.Lock()
	switch c.state {
	case stateClosed:
		c.mu.Unlock()
		return ErrClientClosed
	case stateConnecting, stateConnected:
		c.mu.Unlock()
		return nil
	}
	c.state = stateConnecting
	ready := make(chan error, 1)
	c.ready = ready
	c.mu.Unlock()

	headers := http.Header{}
	if c.settings.IsAzure {
		headers.Add("api-key", c.settings.APIKey)
	} else {
		headers.Add("Authorization", fmt.Sprintf("Bearer %s", c.settings.APIKey))
		headers.Add("OpenAI-Beta", "realtime=v1")
	}

	ws, err := websocket.Connect(ctx, websocket.ClientConfig{
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		URL:         c.settings.URL(),
		DialTimeout: c.cfg.dialTimeout,
		Headers:     headers,
		OnText:      c.handleServerMessage,
		OnClose:     c.handleTransportClosed,
	})
	if err != nil {
		c.mu.Lock()
		c.state = stateDisconnected
		c.ready = nil
		c.mu.Unlock()
		return fmt.Errorf("connect: %w", err)
	}

	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		_ = c.Disconnect(context.Background())
		return ctx.Err()
	case <-time.After(c.cfg.dialTimeout):
		_ = c.Disconnect(context.Background())
		return fmt.Errorf("timeout waiting for session confirmation")
	case err := <-ready:
		if err != nil {
			_ = c.Disconnect(context.Background())
			return err
		}
	}

	c.mu.Lock()
	c.state = stateConnected
	c.conv.Clear()
	c.startTime = time.Now()
	c.mu.Unlock()
	return nil
}

// Disconnect closes the transport and clears the in-memory item and event
// collections. Callers snapshot anything they need beforehand. The client is
// unusable afterwards.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = stateClosed
	ws := c.ws
	c.ws = nil
	c.conv.Clear()
	c.log.Clear()
	c.mu.Unlock()

	c.toolCancel()
	if ws == nil {
		return nil
	}
	return ws.Close(ctx)
}

func (c *Client) handleTransportClosed() {
	c.mu.Lock()
	dropped := c.state == stateConnected
	if dropped {
		c.state = stateDisconnected
	}
	if c.ready != nil {
		select {
		case c.ready <- fmt.Errorf("connection closed before session confirmation"):
		default:
		}
		c.ready = nil
	}
	h := c.onClose
	c.mu.Unlock()

	if dropped {
		c.cfg.logger.Warn("transport closed")
		if h != nil {
			h()
		}
	}
}

// SendTextMessage creates a user text item and requests a response.
func (c *Client) SendTextMessage(text string) error {
	if text == "" {
		return nil
	}
	id, _ := nanoid.New()
	if err := c.send(events.ConversationItemCreateEvent{
		BaseEvent: events.NewBaseEvent("conversation.item.create"),
		Item: events.Item{
			ID:   id,
			Type: "message",
			Role: string(conversation.RoleUser),
			Content: []events.ContentPart{
				{Type: "input_text", Text: text},
			},
		},
	}); err != nil {
		return err
	}
	return c.CreateResponse()
}

// AppendInputAudio streams one captured frame to the service.
func (c *Client) AppendInputAudio(samples []int16) error {
	if len(samples) == 0 {
		return nil
	}
	return c.send(events.InputAudioBufferAppendEvent{
		BaseEvent: events.NewBaseEvent("input_audio_buffer.append"),
		Audio:     base64.StdEncoding.EncodeToString(pcm16Bytes(samples)),
	})
}

// CommitInputAudio finalizes the pending input buffer as a user turn. With
// server VAD the server commits on its own; in manual turn taking the
// buffered audio stays invisible until this is sent.
func (c *Client) CommitInputAudio() error {
	return c.send(events.InputAudioBufferCommitEvent{
		BaseEvent: events.NewBaseEvent("input_audio_buffer.commit"),
	})
}

// UpdateSession pushes the session configuration, with the currently
// registered tools advertised alongside.
func (c *Client) UpdateSession(cfg events.SessionConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = cfg
	return c.sendSessionLocked()
}

func (c *Client) sendSessionLocked() error {
	cfg := c.session
	cfg.Tools = c.tools.Definitions()
	if cfg.ToolChoice == nil {
		mode := events.ToolChoiceNone
		if len(cfg.Tools) > 0 {
			mode = events.ToolChoiceAuto
		}
		cfg.ToolChoice = &events.ToolChoice{Mode: mode}
	}
	return c.sendLocked(events.SessionUpdateEvent{
		BaseEvent: events.NewBaseEvent("session.update"),
		Session:   cfg,
	})
}

// DeleteItem removes the item locally and on the server.
func (c *Client) DeleteItem(id string) error {
	c.mu.Lock()
	c.conv.Delete(id)
	c.mu.Unlock()
	return c.send(events.ConversationItemDeleteEvent{
		BaseEvent: events.NewBaseEvent("conversation.item.delete"),
		ItemID:    id,
	})
}

// CreateResponse asks the service to produce the next assistant turn.
func (c *Client) CreateResponse() error {
	return c.send(events.ResponseCreateEvent{
		BaseEvent: events.NewBaseEvent("response.create"),
		Response:  events.ResponseCreatePayload{},
	})
}

// AddTool registers an executor and advertises the definition when a
// session is live.
func (c *Client) AddTool(t tool.Tool, fn tool.Executor) error {
	c.tools.Add(t, fn)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateConnected {
		return nil
	}
	return c.sendSessionLocked()
}

// RemoveTool unregisters a tool and stops advertising it.
func (c *Client) RemoveTool(name string) error {
	c.tools.Remove(name)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateConnected {
		return nil
	}
	return c.sendSessionLocked()
}

// send marshals, logs and writes an event. Without a live transport it is a
// no-op, not an error.
func (c *Client) send(evt any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendLocked(evt)
}

func (c *Client) sendLocked(evt any) error {
	if c.ws == nil || c.state == stateClosed {
		return nil
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	var env events.Envelope
	_ = json.Unmarshal(data, &env)
	c.log.Append(conversation.SourceClient, env.Type, env.EventID, data)
	c.ws.WriteText(data)
	return nil
}

// handleServerMessage ingests one inbound protocol message: first into the
// event log, then interpreted. Unrecognized types stay in the log only.
func (c *Client) handleServerMessage(data []byte) error {
	var env events.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.log.Append(conversation.SourceServer, env.Type, env.EventID, data)

	switch env.Type {
	case "error":
		evt, err := events.Parse[events.ErrorEvent](data)
		if err != nil {
			c.cfg.logger.Error("failed to parse error event", slog.Any("err", err))
			return nil
		}
		c.cfg.logger.Error("server error", slog.String("code", evt.ErrorDetail.Code), slog.String("message", evt.ErrorDetail.Message))
		if c.ready != nil {
			select {
			case c.ready <- evt:
			default:
			}
			c.ready = nil
		}
		if c.onError != nil {
			c.onError(evt)
		}

	case "session.created":
		if c.ready != nil {
			select {
			case c.ready <- nil:
			default:
			}
			c.ready = nil
		}

	case "session.updated":
		// logged above, nothing to fold in

	case "conversation.item.created":
		if evt, err := events.Parse[events.ConversationItemCreatedEvent](data); err == nil {
			c.conv.Upsert(evt.Item)
		}

	case "conversation.item.deleted":
		if evt, err := events.Parse[events.ConversationItemDeletedEvent](data); err == nil {
			c.conv.Delete(evt.ItemID)
		}

	case "conversation.item.input_audio_transcription.completed":
		if evt, err := events.Parse[events.ConversationItemTranscriptionCompletedEvent](data); err == nil {
			c.conv.SetTranscript(evt.ItemID, evt.Transcript)
		}

	case "response.output_item.added":
		if evt, err := events.Parse[events.ResponseOutputItemAddedEvent](data); err == nil {
			c.conv.Upsert(evt.Item)
		}

	case "response.output_item.done":
		if evt, err := events.Parse[events.ResponseOutputItemDoneEvent](data); err == nil {
			c.conv.Upsert(evt.Item)
		}

	case "response.text.delta":
		if evt, err := events.Parse[events.ResponseTextDeltaEvent](data); err == nil {
			c.conv.AppendText(evt.ItemID, evt.Delta)
		}

	case "response.audio_transcript.delta":
		if evt, err := events.Parse[events.ResponseAudioTranscriptDeltaEvent](data); err == nil {
			c.conv.AppendTranscript(evt.ItemID, evt.Delta)
		}

	case "response.audio_transcript.done":
		if evt, err := events.Parse[events.ResponseAudioTranscriptDoneEvent](data); err == nil {
			c.conv.SetTranscript(evt.ItemID, evt.Transcript)
		}

	case "response.function_call_arguments.delta":
		if evt, err := events.Parse[events.ResponseFunctionCallArgumentsDeltaEvent](data); err == nil {
			c.conv.AppendArguments(evt.ItemID, evt.Delta)
		}

	case "response.audio.delta":
		evt, err := events.Parse[events.ResponseAudioDeltaEvent](data)
		if err != nil {
			c.cfg.logger.Error("failed to parse audio delta", slog.Any("err", err))
			return nil
		}
		raw, err := base64.StdEncoding.DecodeString(evt.Delta)
		if err != nil {
			c.cfg.logger.Error("failed to decode audio delta", slog.Any("err", err))
			return nil
		}
		samples := pcm16Samples(raw)
		if c.session.HasAudio() {
			c.conv.AppendAudio(evt.ItemID, samples)
		}
		if c.onAudioOutput != nil {
			c.onAudioOutput(samples, evt.ItemID)
		}

	case "response.audio.done":
		// transcript and status arrive separately

	case "response.done":
		evt, err := events.Parse[events.ResponseDoneEvent](data)
		if err != nil {
			c.cfg.logger.Error("failed to parse response done", slog.Any("err", err))
			return nil
		}
		for _, o := range evt.Response.Output {
			c.conv.Upsert(o)
			if o.Type == "function_call" && o.Status == "completed" {
				c.dispatchToolCall(o)
			}
		}

	case "input_audio_buffer.speech_started":
		c.handleInterruptionLocked()

	case "input_audio_buffer.speech_stopped":
		// server will commit and respond on its own
	}

	return nil
}

// handleInterruptionLocked reconciles a barge-in: playback is hard-stopped,
// the interrupted item is cancelled with its audio truncated to what was
// actually heard, and - when enabled - the server is told the authoritative
// offset.
func (c *Client) handleInterruptionLocked() {
	if c.onInterrupt == nil {
		return
	}
	res := c.onInterrupt()
	if res.TrackID == "" {
		return
	}
	c.conv.Cancel(res.TrackID, res.Offset)
	if c.cfg.sendTruncation {
		_ = c.sendLocked(events.ConversationItemTruncateEvent{
			BaseEvent:    events.NewBaseEvent("conversation.item.truncate"),
			ItemID:       res.TrackID,
			ContentIndex: 0,
			AudioEndMs:   res.Offset * 1000 / c.cfg.sampleRate,
		})
	}
}

// dispatchToolCall runs the executor on its own goroutine so a slow tool
// never stalls audio or the event loop. The result, or the error, goes back
// as a function_call_output item followed by a response request.
func (c *Client) dispatchToolCall(o events.Item) {
	go func() {
		var args map[string]any
		err := json.Unmarshal([]byte(o.Arguments), &args)
		var res any
		if err == nil {
			res, err = c.tools.Execute(c.toolCtx, o.Name, args)
		}

		var unknown *tool.ErrUnknown
		if errors.As(err, &unknown) {
			c.cfg.logger.Error("service requested unregistered tool", slog.String("name", o.Name))
		} else {
			c.cfg.logger.Debug("tool call", slog.String("name", o.Name), slog.Any("args", args), slog.Any("res", res), slog.Any("err", err))
		}

		var output = func() string {
			if err != nil {
				d, _ := json.Marshal(map[string]any{
					"error": err.Error(),
				})
				return string(d)
			} else if res != nil {
				d, _ := json.Marshal(res)
				return string(d)
			} else {
				d, _ := json.Marshal(map[string]any{
					"success": true,
				})
				return string(d)
			}
		}()

		_ = c.send(events.ConversationItemCreateEvent{
			BaseEvent: events.NewBaseEvent("conversation.item.create"),
			Item: events.Item{
				Type:   "function_call_output",
				CallID: o.CallID,
				Output: output,
			},
		})
		_ = c.CreateResponse()
	}()
}

func pcm16Bytes(samples []int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(v))
	}
	return b
}

func pcm16Samples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}
