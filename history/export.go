package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/codewandler/voicechat-go/conversation"
)

// DocumentVersion is the current export format version.
const DocumentVersion = 1

var ErrInvalidDocument = errors.New("invalid export document")

// Document is the portable dump of settings, tool settings and history.
type Document struct {
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Data      Data      `json:"data"`
}

type Data struct {
	Settings     json.RawMessage            `json:"settings,omitempty"`
	ToolSettings map[string]json.RawMessage `json:"toolSettings,omitempty"`
	ChatHistory  []Thread                   `json:"chatHistory,omitempty"`
}

// NewDocument builds an export document. History entries are copied with
// audio samples and file references stripped; settings are embedded as-is.
func NewDocument(settings any, toolSettings map[string]json.RawMessage, threads []Thread) (*Document, error) {
	var raw json.RawMessage
	if settings != nil {
		data, err := json.Marshal(settings)
		if err != nil {
			return nil, fmt.Errorf("marshal settings: %w", err)
		}
		raw = data
	}

	stripped := make([]Thread, len(threads))
	for i, t := range threads {
		stripped[i] = StripMedia(t)
	}

	return &Document{
		Version:   DocumentVersion,
		Timestamp: time.Now(),
		Data: Data{
			Settings:     raw,
			ToolSettings: toolSettings,
			ChatHistory:  stripped,
		},
	}, nil
}

func (d *Document) Encode() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// ParseDocument validates and decodes an exported document. Both the version
// and the data envelope must be present.
func ParseDocument(data []byte) (*Document, error) {
	var probe struct {
		Version *int             `json:"version"`
		Data    *json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if probe.Version == nil || probe.Data == nil {
		return nil, ErrInvalidDocument
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return &doc, nil
}

// Merge folds imported history into the store without replacing what is
// already there. Imported threads are re-stripped before being added.
func (s *Store) Merge(threads []Thread) {
	for _, t := range threads {
		s.AddThread(StripMedia(t))
	}
}

// StripMedia returns a copy of the thread with audio samples and playable
// file references removed from every item.
func StripMedia(t Thread) Thread {
	out := t
	out.Items = make([]conversation.Item, len(t.Items))
	for i, it := range t.Items {
		it.Audio = nil
		it.File = nil
		out.Items[i] = it
	}
	return out
}
