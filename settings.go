package voicechat

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/codewandler/voicechat-go/events"
)

// ConnectionSettings selects the endpoint and credential for a session. A
// fresh Client is created per settings value; changing the connection
// settings replaces the client rather than mutating it.
type ConnectionSettings struct {
	IsAzure    bool   `json:"isAzure"`
	APIKey     string `json:"apiKey"`
	Endpoint   string `json:"endpoint,omitempty"`
	Deployment string `json:"deployment,omitempty"`
	APIVersion string `json:"apiVersion,omitempty"`
	Model      string `json:"model,omitempty"`
}

func DefaultConnectionSettings() ConnectionSettings {
	return ConnectionSettings{
		APIVersion: "2024-08-01-preview",
		Model:      "gpt-4o-realtime-preview-2025-06-03",
	}
}

// URL builds the websocket endpoint. The gateway form substitutes the
// deployment name and API version; the direct form selects a model.
func (s ConnectionSettings) URL() string {
	if s.IsAzure {
		host := s.Endpoint
		host = strings.TrimPrefix(host, "https://")
		host = strings.TrimPrefix(host, "wss://")
		host = strings.TrimSuffix(host, "/")
		return fmt.Sprintf("wss://%s/openai/realtime?api-version=%s&deployment=%s", host, s.APIVersion, s.Deployment)
	}
	return fmt.Sprintf("wss://api.openai.com/v1/realtime?model=%s", s.Model)
}

// Settings bundles everything the UI persists about a session.
type Settings struct {
	Connection ConnectionSettings   `json:"connection"`
	Chat       events.SessionConfig `json:"chat"`
}

func DefaultSettings() Settings {
	return Settings{
		Connection: DefaultConnectionSettings(),
		Chat:       events.DefaultSessionConfig(),
	}
}

// MergeSettings overlays an exported settings payload onto base. Fields the
// payload carries win; everything it omits keeps its current value. An
// empty payload returns base unchanged.
func MergeSettings(base Settings, raw json.RawMessage) (Settings, error) {
	if len(raw) == 0 {
		return base, nil
	}
	merged := base
	if err := json.Unmarshal(raw, &merged); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return merged, nil
}
