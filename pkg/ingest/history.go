package ingest

import (
	"strings"

	"github.com/google/uuid"

	"github.com/vango-go/vai-kiosk/pkg/conversation"
	"github.com/vango-go/vai-kiosk/pkg/realtime"
	"github.com/vango-go/vai-kiosk/pkg/realtime/protocol"
)

// CompletionSentinel is the token the agent says when the order is final.
const CompletionSentinel = "ORDER_COMPLETE"

// historyNamespace seeds content-derived keys for entries without an id.
var historyNamespace = uuid.MustParse("5f0c1c4e-8f0d-4a53-9a3e-2b1f6f3d7a10")

// HistoryKey identifies a history entry by id, role and type. Entries without
// an id are keyed by their content.
func HistoryKey(e realtime.HistoryEntry) string {
	if e.ID != "" {
		return e.ID + "|" + e.Role + "|" + e.Type
	}
	return "content:" + uuid.NewSHA1(historyNamespace, append([]byte(e.Role+"|"+e.Type+"|"), e.Payload...)).String()
}

// HistoryText extracts the text of a history entry payload.
func HistoryText(payload []byte) string {
	return firstText(payload,
		textPath{"formatted", "transcript"},
		textPath{"formatted", "text"},
		textPath{"formatted", "audio", "transcript"},
		textPath{"transcript"},
		textPath{"content"},
		textPath{"content", "text"},
		textPath{"content", "transcript"},
	)
}

// HistoryTracker remembers which history entries were already turned into
// utterances. It is not safe for concurrent use.
type HistoryTracker struct {
	seen map[string]struct{}
}

func NewHistoryTracker() *HistoryTracker {
	return &HistoryTracker{seen: make(map[string]struct{})}
}

// Take returns the utterance for e the first time e carries text. Entries
// still waiting for a transcript are left unmarked so a later poll can
// pick them up.
func (h *HistoryTracker) Take(e realtime.HistoryEntry) (Utterance, bool) {
	var speaker conversation.Speaker
	switch e.Role {
	case protocol.RoleUser:
		speaker = conversation.SpeakerCustomer
	case protocol.RoleAssistant:
		speaker = conversation.SpeakerAgent
	default:
		return Utterance{}, false
	}

	key := HistoryKey(e)
	if _, ok := h.seen[key]; ok {
		return Utterance{}, false
	}
	text := HistoryText(e.Payload)
	if text == "" {
		return Utterance{}, false
	}
	h.seen[key] = struct{}{}
	if strings.TrimSpace(text) == CompletionSentinel {
		return Utterance{}, false
	}
	return Utterance{Speaker: speaker, Text: text}, true
}

// Len reports how many entries have been taken.
func (h *HistoryTracker) Len() int { return len(h.seen) }

// Reset forgets every taken entry.
func (h *HistoryTracker) Reset() { clear(h.seen) }

// Baseline forgets every taken entry, then marks all of entries as taken.
// A new customer starts from the transport's current history so earlier
// turns are never replayed into the fresh transcript.
func (h *HistoryTracker) Baseline(entries []realtime.HistoryEntry) {
	clear(h.seen)
	for _, e := range entries {
		h.seen[HistoryKey(e)] = struct{}{}
	}
}
