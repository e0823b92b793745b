package ingest

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-go/vai-kiosk/pkg/conversation"
	"github.com/vango-go/vai-kiosk/pkg/realtime"
	"github.com/vango-go/vai-kiosk/pkg/realtime/protocol"
)

func TestDefaultRegistry_Normalize(t *testing.T) {
	r := DefaultRegistry()
	cases := []struct {
		name    string
		event   string
		payload string
		speaker conversation.Speaker
		text    string
		ok      bool
	}{
		{"transcription direct", protocol.EventTranscriptionCompleted, `{"transcript":" two sprites "}`, conversation.SpeakerCustomer, "two sprites", true},
		{"transcription nested item", protocol.EventTranscriptionCompleted, `{"item":{"formatted":{"transcript":"a water"}}}`, conversation.SpeakerCustomer, "a water", true},
		{"transcription content array", protocol.EventTranscriptionCompleted, `{"item":{"content":[{"transcript":"large fries"}]}}`, conversation.SpeakerCustomer, "large fries", true},
		{"transcription plain string", protocol.EventTranscriptionCompleted, `"one burger"`, conversation.SpeakerCustomer, "one burger", true},
		{"transcription empty", protocol.EventTranscriptionCompleted, `{"transcript":"  "}`, "", "", false},
		{"user item", protocol.EventItemCreated, `{"item":{"role":"user","content":[{"transcript":"hi"}]}}`, conversation.SpeakerCustomer, "hi", true},
		{"assistant item ignored", protocol.EventItemCreated, `{"item":{"role":"assistant","content":[{"transcript":"hello"}]}}`, "", "", false},
		{"agent end string", realtime.EventAgentEnd, `"Your order is: 1 Water."`, conversation.SpeakerAgent, "Your order is: 1 Water.", true},
		{"agent end object", realtime.EventAgentEnd, `{"text":"Anything else?"}`, conversation.SpeakerAgent, "Anything else?", true},
		{"transcript done", protocol.EventAudioTranscriptDone, `{"type":"response.audio_transcript.done","transcript":"Sure."}`, conversation.SpeakerAgent, "Sure.", true},
		{"watched only", protocol.EventSpeechStarted, `{"type":"input_audio_buffer.speech_started"}`, "", "", false},
		{"unknown", "rate_limits.updated", `{}`, "", "", false},
		{"garbage", protocol.EventTranscriptionCompleted, `{not json`, "", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			u, ok := r.Normalize(tc.event, []byte(tc.payload))
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.speaker, u.Speaker)
			assert.Equal(t, tc.text, u.Text)
		})
	}
}

func TestRegistry_EventsAndOverride(t *testing.T) {
	r := DefaultRegistry()
	events := r.Events()
	assert.Contains(t, events, protocol.EventResponseDone)
	assert.Contains(t, events, realtime.EventAgentStart)
	assert.Equal(t, protocol.EventTranscriptionCompleted, events[0])

	r.Register(realtime.EventAgentEnd, func([]byte) (Utterance, bool) {
		return Utterance{Speaker: conversation.SpeakerAgent, Text: "fixed"}, true
	})
	u, ok := r.Normalize(realtime.EventAgentEnd, []byte(`"ignored"`))
	require.True(t, ok)
	assert.Equal(t, "fixed", u.Text)
	assert.Len(t, r.Events(), len(events))
}

func entry(t *testing.T, item protocol.Item) realtime.HistoryEntry {
	t.Helper()
	payload, err := json.Marshal(item)
	require.NoError(t, err)
	return realtime.HistoryEntry{ID: item.ID, Role: item.Role, Type: item.Type, Payload: payload}
}

func TestHistoryText(t *testing.T) {
	assert.Equal(t, "a", HistoryText([]byte(`{"formatted":{"transcript":"a"}}`)))
	assert.Equal(t, "b", HistoryText([]byte(`{"formatted":{"audio":{"transcript":"b"}}}`)))
	assert.Equal(t, "c d", HistoryText([]byte(`{"content":[{"transcript":"c"},{"text":"d"}]}`)))
	assert.Equal(t, "e", HistoryText([]byte(`{"content":{"text":"e"}}`)))
	assert.Equal(t, "f", HistoryText([]byte(`{"content":"f"}`)))
	assert.Equal(t, "", HistoryText([]byte(`{"content":[]}`)))
}

func TestHistoryTracker_TakeOnce(t *testing.T) {
	h := NewHistoryTracker()
	pending := protocol.Item{ID: "item_1", Type: protocol.ItemTypeMessage, Role: protocol.RoleUser, Content: []protocol.ContentPart{{Type: "input_audio"}}}

	_, ok := h.Take(entry(t, pending))
	assert.False(t, ok, "entries without a transcript stay pending")

	pending.SetTranscript(0, "two waters")
	u, ok := h.Take(entry(t, pending))
	require.True(t, ok)
	assert.Equal(t, Utterance{Speaker: conversation.SpeakerCustomer, Text: "two waters"}, u)

	_, ok = h.Take(entry(t, pending))
	assert.False(t, ok)
	assert.Equal(t, 1, h.Len())
}

func TestHistoryTracker_SkipsSentinelAndSystem(t *testing.T) {
	h := NewHistoryTracker()
	sentinel := protocol.Item{ID: "item_2", Type: protocol.ItemTypeMessage, Role: protocol.RoleAssistant, Content: []protocol.ContentPart{{Type: "text", Text: "ORDER_COMPLETE"}}}
	_, ok := h.Take(entry(t, sentinel))
	assert.False(t, ok)

	system := protocol.Item{ID: "item_3", Type: protocol.ItemTypeMessage, Role: protocol.RoleSystem, Content: []protocol.ContentPart{{Type: "text", Text: "rules"}}}
	_, ok = h.Take(entry(t, system))
	assert.False(t, ok)
}

func TestHistoryKey(t *testing.T) {
	e := realtime.HistoryEntry{ID: "item_1", Role: "user", Type: "message"}
	assert.Equal(t, "item_1|user|message", HistoryKey(e))

	a := realtime.HistoryEntry{Role: "assistant", Type: "message", Payload: []byte(`{"content":"x"}`)}
	b := realtime.HistoryEntry{Role: "assistant", Type: "message", Payload: []byte(`{"content":"y"}`)}
	assert.Equal(t, HistoryKey(a), HistoryKey(a))
	assert.NotEqual(t, HistoryKey(a), HistoryKey(b))
}

func TestHistoryTracker_Baseline(t *testing.T) {
	h := NewHistoryTracker()
	old := protocol.Item{ID: "item_1", Type: protocol.ItemTypeMessage, Role: protocol.RoleAssistant, Content: []protocol.ContentPart{{Type: "text", Text: "Your order is: 1 Water."}}}
	h.Baseline([]realtime.HistoryEntry{entry(t, old)})

	_, ok := h.Take(entry(t, old))
	assert.False(t, ok)

	h.Reset()
	_, ok = h.Take(entry(t, old))
	assert.True(t, ok)
}
