// Package realtime connects the kiosk to the conversational voice agent.
package realtime

import (
	"context"
	"encoding/json"
)

// Lifecycle events emitted by every Transport in addition to server events.
const (
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
	EventError        = "error"
	// EventAgentStart fires when the agent begins a response.
	EventAgentStart = "agent_start"
	// EventAgentEnd carries the agent's final text as a JSON string.
	EventAgentEnd = "agent_end"
)

// Event is a named transport event with its raw JSON payload.
type Event struct {
	Name    string
	Payload json.RawMessage
}

// Handler receives events on the transport's delivery goroutine. It must not
// block and must not call Disconnect.
type Handler func(Event)

// HistoryEntry is one item of the agent-side conversation history.
type HistoryEntry struct {
	ID      string
	Role    string
	Type    string
	Payload json.RawMessage
}

// AgentConfig describes the voice agent a transport sets up on connect.
type AgentConfig struct {
	Name               string
	Model              string
	Instructions       string
	Voice              string
	Language           string
	Temperature        float64
	MaxResponseTokens  int
	TranscriptionModel string
}

// Transport is a realtime conversational session.
type Transport interface {
	Connect(ctx context.Context, credential string) error
	Disconnect(ctx context.Context) error
	// History returns a snapshot of the conversation so far.
	History() []HistoryEntry
	// On subscribes h to event; the returned func unsubscribes it.
	On(event string, h Handler) (off func())
	RemoveAllListeners()
	AppendAudio(pcm []byte) error
}

// Factory builds an unconnected transport for cfg.
type Factory func(cfg AgentConfig) Transport
