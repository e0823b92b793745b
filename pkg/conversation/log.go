// Package conversation keeps the per-customer transcript and the duplicate
// filters applied before anything reaches it.
package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Speaker identifies who said an utterance.
type Speaker string

const (
	SpeakerCustomer Speaker = "customer"
	SpeakerAgent    Speaker = "agent"
)

// Message is one accepted utterance. It is never modified after Append.
type Message struct {
	ID        string    `json:"id"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Log is an append-only transcript. It is not safe for concurrent use.
type Log struct {
	messages []Message
}

// Append stores m, assigning an ID when it has none, and returns the stored
// message.
func (l *Log) Append(m Message) Message {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	l.messages = append(l.messages, m)
	return m
}

// Messages returns a copy of the transcript in arrival order.
func (l *Log) Messages() []Message {
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

func (l *Log) Len() int { return len(l.messages) }

// Reset drops the transcript.
func (l *Log) Reset() { l.messages = nil }
