package conversation

import (
	"log/slog"

	"github.com/codewandler/voicechat-go/events"
)

// State rebuilds the conversation from incremental protocol deltas. It is
// not safe for concurrent use on its own; the session client serializes all
// access behind its own lock.
type State struct {
	items      map[string]*Item
	order      []string
	sampleRate int
	logger     *slog.Logger
}

func NewState(sampleRate int, logger *slog.Logger) *State {
	if logger == nil {
		logger = slog.Default()
	}
	return &State{
		items:      map[string]*Item{},
		sampleRate: sampleRate,
		logger:     logger,
	}
}

func (s *State) Len() int { return len(s.order) }

// Items returns a snapshot of all items in conversation order.
func (s *State) Items() []Item {
	out := make([]Item, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id].clone())
	}
	return out
}

func (s *State) Get(id string) (Item, bool) {
	it, ok := s.items[id]
	if !ok {
		return Item{}, false
	}
	return it.clone(), true
}

func (s *State) Clear() {
	s.items = map[string]*Item{}
	s.order = nil
}

// Reset replaces the state with the item set known to the transport.
func (s *State) Reset(items []events.Item) {
	s.Clear()
	for _, wi := range items {
		s.Upsert(wi)
	}
}

// Upsert folds a wire item snapshot into the state, creating the item if it
// is new. Text and transcript from the snapshot only ever fill empty fields;
// deltas remain the authoritative stream.
func (s *State) Upsert(wire events.Item) *Item {
	if wire.ID == "" {
		return nil
	}
	it, ok := s.items[wire.ID]
	if !ok {
		it = &Item{
			ID:     wire.ID,
			Kind:   kindOf(wire),
			Role:   Role(wire.Role),
			Status: StatusInProgress,
		}
		s.items[wire.ID] = it
		s.order = append(s.order, wire.ID)
	}

	switch it.Kind {
	case KindFunctionCall:
		if it.Tool == nil {
			it.Tool = &ToolCall{}
		}
		if wire.Name != "" {
			it.Tool.Name = wire.Name
		}
		if wire.CallID != "" {
			it.Tool.CallID = wire.CallID
		}
		if wire.Arguments != "" {
			it.Tool.Arguments = wire.Arguments
		}
	case KindFunctionCallOutput:
		if wire.Output != "" {
			it.Output = wire.Output
		}
	default:
		for _, c := range wire.Content {
			switch c.Type {
			case "text", "input_text":
				if it.Text == "" {
					it.Text = c.Text
				}
			case "audio", "input_audio":
				if it.Transcript == "" {
					it.Transcript = c.Transcript
				}
			}
		}
	}

	if wire.Status == string(StatusCompleted) {
		s.complete(it)
	}
	return it
}

func kindOf(wire events.Item) Kind {
	switch wire.Type {
	case "function_call":
		return KindFunctionCall
	case "function_call_output":
		return KindFunctionCallOutput
	default:
		return KindText
	}
}

func (s *State) Delete(id string) bool {
	if _, ok := s.items[id]; !ok {
		return false
	}
	delete(s.items, id)
	for i, x := range s.order {
		if x == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *State) get(id string) *Item {
	it, ok := s.items[id]
	if !ok {
		// Deltas can outrun the item.created event; materialize a shell.
		it = &Item{ID: id, Kind: KindText, Role: RoleAssistant, Status: StatusInProgress}
		s.items[id] = it
		s.order = append(s.order, id)
	}
	return it
}

func (s *State) AppendText(id, delta string) {
	s.get(id).Text += delta
}

func (s *State) AppendTranscript(id, delta string) {
	s.get(id).Transcript += delta
}

func (s *State) SetTranscript(id, transcript string) {
	s.get(id).Transcript = transcript
}

// AppendAudio concatenates streamed output samples. Audio arriving for a
// cancelled item is dropped.
func (s *State) AppendAudio(id string, samples []int16) {
	it := s.get(id)
	if it.Status == StatusCancelled {
		return
	}
	it.Audio = append(it.Audio, samples...)
}

func (s *State) AppendArguments(id, delta string) {
	it := s.get(id)
	if it.Tool == nil {
		it.Kind = KindFunctionCall
		it.Tool = &ToolCall{}
	}
	it.Tool.Arguments += delta
}

// Complete marks the item completed and, exactly once, synthesizes the
// playable file for non-empty audio.
func (s *State) Complete(id string) (Item, bool) {
	it, ok := s.items[id]
	if !ok {
		return Item{}, false
	}
	s.complete(it)
	return it.clone(), true
}

func (s *State) complete(it *Item) {
	if !it.advance(StatusCompleted) {
		return
	}
	if it.File == nil && len(it.Audio) > 0 {
		f, err := SynthesizeWAV(it.Audio, s.sampleRate)
		if err != nil {
			s.logger.Error("wav synthesis failed", slog.String("item", it.ID), slog.Any("err", err))
			return
		}
		it.File = f
	}
}

// Cancel marks an in-progress item cancelled and truncates its audio to the
// portion that was actually rendered.
func (s *State) Cancel(id string, renderedSamples int) (Item, bool) {
	it, ok := s.items[id]
	if !ok {
		return Item{}, false
	}
	if it.advance(StatusCancelled) {
		if renderedSamples >= 0 && renderedSamples < len(it.Audio) {
			it.Audio = it.Audio[:renderedSamples]
		}
	}
	return it.clone(), true
}
