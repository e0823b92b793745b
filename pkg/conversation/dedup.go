package conversation

import (
	"strings"
	"time"
)

const (
	DefaultDedupWindow      = 2 * time.Second
	DefaultAgentHistorySize = 10
)

// Verdict explains why an utterance was dropped.
type Verdict string

const (
	VerdictAccepted    Verdict = "accepted"
	VerdictEmpty       Verdict = "empty"
	VerdictRecent      Verdict = "recent_duplicate"
	VerdictAgentRepeat Verdict = "agent_repeat"
)

// DedupConfig configures a Deduper.
type DedupConfig struct {
	// Window drops an identical (speaker, text) pair seen this recently.
	Window time.Duration
	// AgentHistory bounds the FIFO of agent texts that are never accepted twice.
	AgentHistory int
	Now          func() time.Time
}

// Deduper filters utterances delivered more than once by push events and the
// history poll. It is not safe for concurrent use.
type Deduper struct {
	window   time.Duration
	agentCap int
	now      func() time.Time

	recent map[string]time.Time
	agent  []string
	agents map[string]int
}

func NewDeduper(cfg DedupConfig) *Deduper {
	if cfg.Window <= 0 {
		cfg.Window = DefaultDedupWindow
	}
	if cfg.AgentHistory <= 0 {
		cfg.AgentHistory = DefaultAgentHistorySize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Deduper{
		window:   cfg.Window,
		agentCap: cfg.AgentHistory,
		now:      cfg.Now,
		recent:   make(map[string]time.Time),
		agents:   make(map[string]int),
	}
}

// Admit records the utterance and reports whether it is new.
func (d *Deduper) Admit(speaker Speaker, text string) Verdict {
	text = normalize(text)
	if text == "" {
		return VerdictEmpty
	}
	now := d.now()
	d.prune(now)

	key := string(speaker) + "\x00" + text
	if _, ok := d.recent[key]; ok {
		return VerdictRecent
	}
	if speaker == SpeakerAgent && d.agents[text] > 0 {
		return VerdictAgentRepeat
	}

	d.recent[key] = now
	if speaker == SpeakerAgent {
		d.pushAgent(text)
	}
	return VerdictAccepted
}

func (d *Deduper) prune(now time.Time) {
	for k, at := range d.recent {
		if now.Sub(at) >= d.window {
			delete(d.recent, k)
		}
	}
}

func (d *Deduper) pushAgent(text string) {
	d.agent = append(d.agent, text)
	d.agents[text]++
	for len(d.agent) > d.agentCap {
		oldest := d.agent[0]
		d.agent = d.agent[1:]
		if d.agents[oldest]--; d.agents[oldest] <= 0 {
			delete(d.agents, oldest)
		}
	}
}

// Reset forgets everything seen so far.
func (d *Deduper) Reset() {
	clear(d.recent)
	clear(d.agents)
	d.agent = nil
}

func normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
