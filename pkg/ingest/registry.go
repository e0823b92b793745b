// Package ingest turns raw transport events and history snapshots into
// speaker-attributed utterances.
package ingest

import (
	"sync"

	"github.com/vango-go/vai-kiosk/pkg/conversation"
	"github.com/vango-go/vai-kiosk/pkg/realtime"
	"github.com/vango-go/vai-kiosk/pkg/realtime/protocol"
)

// Utterance is normalized text with its speaker.
type Utterance struct {
	Speaker conversation.Speaker
	Text    string
}

// Normalizer extracts an utterance from an event payload. ok is false when
// the payload carries nothing to record.
type Normalizer func(payload []byte) (u Utterance, ok bool)

// Registry maps event names to normalizers. Events registered with a nil
// normalizer are watched only: they produce no utterance but still prompt a
// history sync.
type Registry struct {
	mu          sync.RWMutex
	normalizers map[string]Normalizer
	order       []string
}

func NewRegistry() *Registry {
	return &Registry{normalizers: make(map[string]Normalizer)}
}

// DefaultRegistry returns the registry for the realtime voice agent.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(protocol.EventTranscriptionCompleted, CustomerTranscription)
	r.Register(protocol.EventItemCreated, UserItemCreated)
	r.Register(realtime.EventAgentEnd, AgentText)
	r.Register(protocol.EventAudioTranscriptDone, AgentText)
	for _, watched := range []string{
		realtime.EventAgentStart,
		protocol.EventTranscriptionDelta,
		protocol.EventSpeechStarted,
		protocol.EventSpeechStopped,
		protocol.EventBufferCommitted,
		protocol.EventAudioTranscriptDelta,
		protocol.EventResponseDone,
	} {
		r.Register(watched, nil)
	}
	return r
}

// Register sets the normalizer for event, replacing any previous one.
func (r *Registry) Register(event string, n Normalizer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.normalizers[event]; !ok {
		r.order = append(r.order, event)
	}
	r.normalizers[event] = n
}

// Events lists registered event names in registration order.
func (r *Registry) Events() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Normalize runs the normalizer registered for event.
func (r *Registry) Normalize(event string, payload []byte) (Utterance, bool) {
	r.mu.RLock()
	n := r.normalizers[event]
	r.mu.RUnlock()
	if n == nil {
		return Utterance{}, false
	}
	u, ok := n(payload)
	if !ok || u.Text == "" {
		return Utterance{}, false
	}
	return u, true
}

// CustomerTranscription reads a completed input transcription.
func CustomerTranscription(payload []byte) (Utterance, bool) {
	text := firstText(payload,
		textPath{"transcript"},
		textPath{"text"},
		textPath{"delta"},
		textPath{"item", "formatted", "transcript"},
		textPath{"item", "content", "[0]", "transcript"},
		textPath{"formatted", "transcript"},
		textPath{"content", "transcript"},
		textPath{},
	)
	return Utterance{Speaker: conversation.SpeakerCustomer, Text: text}, text != ""
}

// UserItemCreated reads a user message added to the conversation.
func UserItemCreated(payload []byte) (Utterance, bool) {
	if stringAt(payload, "item", "role") != protocol.RoleUser {
		return Utterance{}, false
	}
	text := firstText(payload,
		textPath{"item", "formatted", "transcript"},
		textPath{"item", "transcript"},
		textPath{"item", "content", "[0]", "transcript"},
	)
	return Utterance{Speaker: conversation.SpeakerCustomer, Text: text}, text != ""
}

// AgentText reads the agent's final text from a plain string or an object.
func AgentText(payload []byte) (Utterance, bool) {
	text := firstText(payload,
		textPath{},
		textPath{"text"},
		textPath{"transcript"},
	)
	return Utterance{Speaker: conversation.SpeakerAgent, Text: text}, text != ""
}
