package events

import "fmt"

type ErrorEvent struct {
	BaseEvent
	ErrorDetail ErrorDetail `json:"error"`
}

func (e *ErrorEvent) Error() string {
	return e.ErrorDetail.Error()
}

// ErrorDetail holds the details of the error.
type ErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param"`
	EventID string `json:"event_id"`
}

func (e *ErrorDetail) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type SessionCreatedEvent struct {
	BaseEvent
	Session Session `json:"session"`
}

type SessionUpdatedEvent struct {
	BaseEvent
	Session Session `json:"session"`
}

type ConversationItemCreatedEvent struct {
	BaseEvent
	PreviousItemID string `json:"previous_item_id,omitempty"`
	Item           Item   `json:"item"`
}

type ConversationItemDeletedEvent struct {
	BaseEvent
	ItemID string `json:"item_id"`
}

type ConversationItemTranscriptionCompletedEvent struct {
	BaseEvent
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	Transcript   string `json:"transcript"`
}

type SpeechStartedEvent struct {
	BaseEvent
	AudioStartMs int    `json:"audio_start_ms,omitempty"`
	ItemID       string `json:"item_id,omitempty"`
}

type SpeechStoppedEvent struct {
	BaseEvent
	AudioEndMs int    `json:"audio_end_ms,omitempty"`
	ItemID     string `json:"item_id,omitempty"`
}

type ResponseOutputItemAddedEvent struct {
	BaseEvent
	ResponseID  string `json:"response_id"`
	OutputIndex int    `json:"output_index"`
	Item        Item   `json:"item"`
}

type ResponseOutputItemDoneEvent struct {
	BaseEvent
	ResponseID  string `json:"response_id"`
	OutputIndex int    `json:"output_index"`
	Item        Item   `json:"item"`
}

type ResponseTextDeltaEvent struct {
	BaseEvent
	ResponseID   string `json:"response_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	ItemID       string `json:"item_id"`
	Delta        string `json:"delta"`
}

type ResponseTextDoneEvent struct {
	BaseEvent
	ResponseID   string `json:"response_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	ItemID       string `json:"item_id"`
	Text         string `json:"text"`
}

type ResponseAudioTranscriptDeltaEvent struct {
	BaseEvent
	ResponseID  string `json:"response_id"`
	OutputIndex int    `json:"output_index"`
	ItemID      string `json:"item_id"`
	Delta       string `json:"delta"`
}

type ResponseAudioTranscriptDoneEvent struct {
	BaseEvent
	ResponseID  string `json:"response_id"`
	OutputIndex int    `json:"output_index"`
	ItemID      string `json:"item_id"`
	Transcript  string `json:"transcript"`
}

type ResponseAudioDeltaEvent struct {
	BaseEvent
	ResponseID  string `json:"response_id"`
	OutputIndex int    `json:"output_index"`
	ItemID      string `json:"item_id"`
	Delta       string `json:"delta"`
}

type ResponseAudioDoneEvent struct {
	BaseEvent
	ResponseID  string `json:"response_id"`
	OutputIndex int    `json:"output_index"`
	ItemID      string `json:"item_id"`
}

type ResponseFunctionCallArgumentsDeltaEvent struct {
	BaseEvent
	ResponseID  string `json:"response_id"`
	OutputIndex int    `json:"output_index"`
	ItemID      string `json:"item_id"`
	CallID      string `json:"call_id"`
	Delta       string `json:"delta"`
}

type ResponseFunctionCallArgumentsDoneEvent struct {
	BaseEvent
	ResponseID  string `json:"response_id"`
	OutputIndex int    `json:"output_index"`
	ItemID      string `json:"item_id"`
	CallID      string `json:"call_id"`
	Name        string `json:"name,omitempty"`
	Arguments   string `json:"arguments"`
}

type ResponseDoneEvent struct {
	BaseEvent
	Response ResponsePayload `json:"response"`
}

type ResponsePayload struct {
	ID     string `json:"id,omitempty"`
	Status string `json:"status,omitempty"`
	Output []Item `json:"output,omitempty"`
}
