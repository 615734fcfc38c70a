// Package contextmgr owns the per-agent conversation: ephemeral reminders
// that are sent but never persisted, progressive tool-result compression,
// orphan-tool-call pruning, and token/context accounting. It is grounded on
// the teacher's agent-level context manager and its conversation-history
// package, generalized from a single-provider assistant to the swarm
// runtime's Message model.
package contextmgr

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/agentmesh/swarmkit/pkg/provider"
)

// RerunnableTools is the set of read-only tools whose output can be
// regenerated, so compressed results get a "re-run" hint appended (§4.3,
// GLOSSARY). Callers may extend this set for memory-domain equivalents.
var RerunnableTools = map[string]bool{
	"Read":   true,
	"Search": true,
	"Glob":   true,
	"Grep":   true,
}

// Config mirrors the teacher's ContextManagerConfig: a context-window
// budget, the usage fraction at which Stats.NeedsReduction turns true, and
// knobs for which messages compression protects. Compression itself fires
// at the fixed 60% threshold in ManageThresholds, not at SummarizeThreshold.
type Config struct {
	ContextLimit       int
	SummarizeThreshold float64 // fraction of ContextLimit for NeedsReduction, default 0.60
	KeepRecentCount    int     // messages protected from compression, default 10
	PreserveSystem     bool
	PreserveErrors     bool
}

func DefaultConfig(contextLimit int) Config {
	return Config{
		ContextLimit:       contextLimit,
		SummarizeThreshold: 0.60,
		KeepRecentCount:    10,
		PreserveSystem:     true,
		PreserveErrors:     true,
	}
}

// Manager is owned per-agent. It never mutates the caller's stored
// conversation slice in place; callers pass a fresh slice to every method
// that needs one and use the returned slice.
type Manager struct {
	mu     sync.Mutex
	cfg    Config
	ephemeral map[int][]string // message index -> injected strings, not persisted

	compressionApplied bool
	thresholdHits      map[int]bool // 60, 80, 90
}

func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:           cfg,
		ephemeral:     make(map[int][]string),
		thresholdHits: make(map[int]bool),
	}
}

// InjectEphemeral appends text to the ephemeral list for message index idx.
// The stored conversation at idx is never touched; the text is only visible
// through PrepareForLLM.
func (m *Manager) InjectEphemeral(idx int, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ephemeral[idx] = append(m.ephemeral[idx], text)
}

// ClearEphemeral discards every injected reminder. The chat engine defers
// this once per Ask, so reminders injected during an ask (including the
// orphan-pruning reminder used by its retries) never leak into the next ask
// (§4.3).
func (m *Manager) ClearEphemeral() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ephemeral = make(map[int][]string)
}

// PrepareForLLM returns a new message list where each ephemeral string is
// inlined into the referenced message's content. Messages at every other
// index are identical references to the inputs (§8 testable property);
// messages is never mutated.
func (m *Manager) PrepareForLLM(messages []provider.Message) []provider.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]provider.Message, len(messages))
	copy(out, messages)

	for idx, strs := range m.ephemeral {
		if idx < 0 || idx >= len(out) {
			continue
		}
		msg := out[idx]
		for _, s := range strs {
			msg.Content = msg.Content + "\n" + s
		}
		out[idx] = msg
	}
	return out
}

var systemReminderPattern = regexp.MustCompile(`(?s)<system-reminder>.*?</system-reminder>`)

// WrapSystemReminder formats text as a <system-reminder> block.
func WrapSystemReminder(text string) string {
	return fmt.Sprintf("<system-reminder>\n%s\n</system-reminder>", text)
}

// ExtractSystemReminders returns every <system-reminder>...</system-reminder>
// block found in content. The pattern is multiline and non-greedy so
// adjacent blocks do not merge.
func ExtractSystemReminders(content string) []string {
	return systemReminderPattern.FindAllString(content, -1)
}

// StripSystemReminders removes every system-reminder block from content.
func StripSystemReminders(content string) string {
	return systemReminderPattern.ReplaceAllString(content, "")
}
