// Package protocol defines the realtime conversation wire frames exchanged
// with the voice agent service.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Server event types.
const (
	EventSessionCreated         = "session.created"
	EventSessionUpdated         = "session.updated"
	EventItemCreated            = "conversation.item.created"
	EventTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	EventTranscriptionDelta     = "conversation.item.input_audio_transcription.delta"
	EventSpeechStarted          = "input_audio_buffer.speech_started"
	EventSpeechStopped          = "input_audio_buffer.speech_stopped"
	EventBufferCommitted        = "input_audio_buffer.committed"
	EventResponseCreated        = "response.created"
	EventAudioTranscriptDelta   = "response.audio_transcript.delta"
	EventAudioTranscriptDone    = "response.audio_transcript.done"
	EventOutputItemDone         = "response.output_item.done"
	EventResponseDone           = "response.done"
	EventError                  = "error"
)

// Client event types.
const (
	ClientSessionUpdate    = "session.update"
	ClientInputAudioAppend = "input_audio_buffer.append"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"

	ItemTypeMessage = "message"

	AudioFormatPCM16 = "pcm16"
	TurnDetectionVAD = "server_vad"
)

type DecodeError struct {
	Type    string
	Message string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Type) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Type)
}

type Transcription struct {
	Model    string `json:"model"`
	Language string `json:"language,omitempty"`
}

type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMS int     `json:"silence_duration_ms,omitempty"`
}

type SessionConfig struct {
	Modalities              []string       `json:"modalities,omitempty"`
	Instructions            string         `json:"instructions,omitempty"`
	Voice                   string         `json:"voice,omitempty"`
	InputAudioFormat        string         `json:"input_audio_format,omitempty"`
	OutputAudioFormat       string         `json:"output_audio_format,omitempty"`
	InputAudioTranscription *Transcription `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetection `json:"turn_detection,omitempty"`
	Temperature             float64        `json:"temperature,omitempty"`
	MaxResponseOutputTokens int            `json:"max_response_output_tokens,omitempty"`
}

type SessionUpdate struct {
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

type InputAudioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type ContentPart struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

type Formatted struct {
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// Item is a conversation history entry.
type Item struct {
	ID        string        `json:"id"`
	Type      string        `json:"type"`
	Role      string        `json:"role,omitempty"`
	Status    string        `json:"status,omitempty"`
	Content   []ContentPart `json:"content,omitempty"`
	Formatted *Formatted    `json:"formatted,omitempty"`
}

// Text joins the transcript (or text) of every content part.
func (it Item) Text() string {
	if it.Formatted != nil {
		if t := strings.TrimSpace(it.Formatted.Transcript); t != "" {
			return t
		}
		if t := strings.TrimSpace(it.Formatted.Text); t != "" {
			return t
		}
	}
	parts := make([]string, 0, len(it.Content))
	for _, c := range it.Content {
		t := c.Transcript
		if t == "" {
			t = c.Text
		}
		if t = strings.TrimSpace(t); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// SetTranscript records transcript on content part idx, growing Content as
// needed, and mirrors it into Formatted.
func (it *Item) SetTranscript(idx int, transcript string) {
	if idx < 0 {
		idx = 0
	}
	for len(it.Content) <= idx {
		it.Content = append(it.Content, ContentPart{Type: "audio"})
	}
	it.Content[idx].Transcript = transcript
	if it.Formatted == nil {
		it.Formatted = &Formatted{}
	}
	it.Formatted.Transcript = transcript
}

// Clone deep-copies the item.
func (it Item) Clone() Item {
	out := it
	out.Content = append([]ContentPart(nil), it.Content...)
	if it.Formatted != nil {
		f := *it.Formatted
		out.Formatted = &f
	}
	return out
}

type ItemCreated struct {
	Type           string `json:"type"`
	PreviousItemID string `json:"previous_item_id,omitempty"`
	Item           Item   `json:"item"`
}

type TranscriptionCompleted struct {
	Type         string `json:"type"`
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	Transcript   string `json:"transcript"`
}

type AudioTranscriptDone struct {
	Type         string `json:"type"`
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	Transcript   string `json:"transcript"`
}

type OutputItemDone struct {
	Type        string `json:"type"`
	ResponseID  string `json:"response_id"`
	OutputIndex int    `json:"output_index"`
	Item        Item   `json:"item"`
}

type Response struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Output []Item `json:"output,omitempty"`
}

type ResponseCreated struct {
	Type     string   `json:"type"`
	Response Response `json:"response"`
}

type ResponseDone struct {
	Type     string   `json:"type"`
	Response Response `json:"response"`
}

type ErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

type ServerError struct {
	Type  string      `json:"type"`
	Error ErrorDetail `json:"error"`
}

// Unknown carries a server event this package does not model.
type Unknown struct {
	Type string
}

// DecodeServerEvent returns the event type and its decoded frame.
func DecodeServerEvent(data []byte) (string, any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", nil, &DecodeError{Message: "decode frame envelope: " + err.Error()}
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return "", nil, &DecodeError{Message: "frame missing type"}
	}

	var (
		frame any
		err   error
	)
	switch typ {
	case EventItemCreated:
		frame, err = decodeAs[ItemCreated](data)
	case EventTranscriptionCompleted:
		frame, err = decodeAs[TranscriptionCompleted](data)
	case EventAudioTranscriptDone:
		frame, err = decodeAs[AudioTranscriptDone](data)
	case EventOutputItemDone:
		frame, err = decodeAs[OutputItemDone](data)
	case EventResponseCreated:
		frame, err = decodeAs[ResponseCreated](data)
	case EventResponseDone:
		frame, err = decodeAs[ResponseDone](data)
	case EventError:
		frame, err = decodeAs[ServerError](data)
	default:
		return typ, Unknown{Type: typ}, nil
	}
	if err != nil {
		return typ, nil, &DecodeError{Type: typ, Message: "decode frame: " + err.Error()}
	}
	return typ, frame, nil
}

func decodeAs[T any](data []byte) (any, error) {
	var m T
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
