package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestLogAppendAssignsIDs(t *testing.T) {
	var log Log
	m := log.Append(Message{Speaker: SpeakerCustomer, Text: "two burgers"})
	require.NotEmpty(t, m.ID)

	kept := log.Append(Message{ID: "fixed", Speaker: SpeakerAgent, Text: "sure"})
	assert.Equal(t, "fixed", kept.ID)

	msgs := log.Messages()
	require.Len(t, msgs, 2)
	msgs[0].Text = "mutated"
	assert.Equal(t, "two burgers", log.Messages()[0].Text)

	log.Reset()
	assert.Zero(t, log.Len())
}

func TestDeduperShortWindow(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	d := NewDeduper(DedupConfig{Window: 2 * time.Second, Now: clk.Now})

	assert.Equal(t, VerdictAccepted, d.Admit(SpeakerCustomer, "one sprite please"))
	assert.Equal(t, VerdictRecent, d.Admit(SpeakerCustomer, "  one  sprite please "))
	assert.Equal(t, VerdictAccepted, d.Admit(SpeakerAgent, "one sprite please"), "speaker is part of the identity")

	clk.Advance(1999 * time.Millisecond)
	assert.Equal(t, VerdictRecent, d.Admit(SpeakerCustomer, "one sprite please"))

	clk.Advance(time.Millisecond)
	assert.Equal(t, VerdictAccepted, d.Admit(SpeakerCustomer, "one sprite please"))
}

func TestDeduperAgentFIFO(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	d := NewDeduper(DedupConfig{AgentHistory: 3, Now: clk.Now})

	assert.Equal(t, VerdictAccepted, d.Admit(SpeakerAgent, "a"))
	clk.Advance(time.Minute)
	assert.Equal(t, VerdictAgentRepeat, d.Admit(SpeakerAgent, "a"))

	for _, text := range []string{"b", "c", "d"} {
		assert.Equal(t, VerdictAccepted, d.Admit(SpeakerAgent, text))
	}
	clk.Advance(time.Minute)
	assert.Equal(t, VerdictAccepted, d.Admit(SpeakerAgent, "a"), "evicted from the bounded FIFO")
	assert.Equal(t, VerdictAgentRepeat, d.Admit(SpeakerAgent, "d"))
}

func TestDeduperCustomerRepeatsAfterWindow(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	d := NewDeduper(DedupConfig{Now: clk.Now})

	assert.Equal(t, VerdictAccepted, d.Admit(SpeakerCustomer, "yes"))
	clk.Advance(5 * time.Second)
	assert.Equal(t, VerdictAccepted, d.Admit(SpeakerCustomer, "yes"))
}

func TestDeduperEmptyAndReset(t *testing.T) {
	d := NewDeduper(DedupConfig{})
	assert.Equal(t, VerdictEmpty, d.Admit(SpeakerAgent, "   "))

	assert.Equal(t, VerdictAccepted, d.Admit(SpeakerAgent, "hello"))
	d.Reset()
	assert.Equal(t, VerdictAccepted, d.Admit(SpeakerAgent, "hello"))
}
