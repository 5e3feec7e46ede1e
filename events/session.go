package events

import (
	"encoding/json"
	"fmt"

	"github.com/codewandler/voicechat-go/tool"
)

type AudioFormat string

const (
	AudioFormatPCM16    AudioFormat = "pcm16"
	AudioFormatG711ULaw AudioFormat = "g711_ulaw"
	AudioFormatG711ALaw AudioFormat = "g711_alaw"
)

// Transcription selects the model used to transcribe user input audio.
type Transcription struct {
	Model string `json:"model"`
}

// TurnDetection holds the server VAD configuration. A nil TurnDetection on
// SessionConfig disables server-side end-of-turn detection entirely
// (push-to-talk operation).
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
	CreateResponse    bool    `json:"create_response,omitempty"`
	InterruptResponse bool    `json:"interrupt_response,omitempty"`
}

const TurnDetectionServerVAD = "server_vad"

// MaxTokens is a bounded output token limit, or Unlimited which wires as "inf".
type MaxTokens int

const MaxTokensUnlimited MaxTokens = -1

func (m MaxTokens) MarshalJSON() ([]byte, error) {
	if m == MaxTokensUnlimited {
		return json.Marshal("inf")
	}
	return json.Marshal(int(m))
}

func (m *MaxTokens) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "inf" {
			return fmt.Errorf("invalid max tokens %q", s)
		}
		*m = MaxTokensUnlimited
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*m = MaxTokens(n)
	return nil
}

// ToolChoice is either one of the fixed policies (auto, none, required) or a
// reference to a single named function.
type ToolChoice struct {
	Mode     string `json:"-"`
	Function string `json:"-"`
}

const (
	ToolChoiceAuto     = "auto"
	ToolChoiceNone     = "none"
	ToolChoiceRequired = "required"
	ToolChoiceFunction = "function"
)

func (c ToolChoice) MarshalJSON() ([]byte, error) {
	if c.Mode == ToolChoiceFunction {
		return json.Marshal(map[string]string{
			"type": "function",
			"name": c.Function,
		})
	}
	return json.Marshal(c.Mode)
}

func (c *ToolChoice) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Mode = s
		c.Function = ""
		return nil
	}
	var x struct {
		Type string `json:"type"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &x); err != nil {
		return err
	}
	c.Mode = x.Type
	c.Function = x.Name
	return nil
}

// SessionConfig is the client-controlled part of the remote session.
type SessionConfig struct {
	Modalities              []string       `json:"modalities,omitempty"`
	Instructions            string         `json:"instructions,omitempty"`
	Voice                   string         `json:"voice,omitempty"`
	InputAudioFormat        AudioFormat    `json:"input_audio_format,omitempty"`
	OutputAudioFormat       AudioFormat    `json:"output_audio_format,omitempty"`
	InputAudioTranscription *Transcription `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetection `json:"turn_detection"`
	Tools                   []tool.Tool    `json:"tools,omitempty"`
	ToolChoice              *ToolChoice    `json:"tool_choice,omitempty"`
	Temperature             float64        `json:"temperature,omitempty"`
	MaxResponseOutputTokens MaxTokens      `json:"max_response_output_tokens,omitempty"`
}

// HasAudio reports whether the audio modality is enabled. An empty modality
// list means the server default, which includes audio.
func (c SessionConfig) HasAudio() bool {
	if len(c.Modalities) == 0 {
		return true
	}
	for _, m := range c.Modalities {
		if m == "audio" {
			return true
		}
	}
	return false
}

// ServerVAD reports whether the session lets the server detect end-of-turn.
func (c SessionConfig) ServerVAD() bool {
	return c.TurnDetection != nil && c.TurnDetection.Type == TurnDetectionServerVAD
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Modalities:              []string{"text", "audio"},
		Voice:                   "alloy",
		InputAudioFormat:        AudioFormatPCM16,
		OutputAudioFormat:       AudioFormatPCM16,
		InputAudioTranscription: &Transcription{Model: "whisper-1"},
		TurnDetection: &TurnDetection{
			Type:              TurnDetectionServerVAD,
			Threshold:         0.5,
			PrefixPaddingMs:   300,
			SilenceDurationMs: 200,
		},
		ToolChoice:              &ToolChoice{Mode: ToolChoiceAuto},
		Temperature:             0.8,
		MaxResponseOutputTokens: 4096,
	}
}

// Session is the server-owned session resource echoed back on creation.
type Session struct {
	ID        string `json:"id,omitempty"`
	Object    string `json:"object,omitempty"`
	Model     string `json:"model,omitempty"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
	SessionConfig
}
