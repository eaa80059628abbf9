// Package featureflags evaluates the FEATURE_FLAGS rollout list.
package featureflags

import (
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
)

// Known flags.
const (
	// VideoModeration routes videos to the external censor instead of auto-approving them.
	VideoModeration = "video_moderation"
	// Summary enables the article summary endpoint.
	Summary = "summary"
	// RealtimeReminders enables websocket reminder delivery.
	RealtimeReminders = "realtime_reminders"
)

// rule is a parsed flag value: percent 100 is "on", 0 is "off".
type rule struct {
	percent int
}

// Manager evaluates flags from a list such as
// "summary=on,video_moderation=25%,realtime_reminders=off".
// Values are on/true/1, off/false/0 or N% for a deterministic per-user rollout.
type Manager struct {
	rules   map[string]rule
	invalid []string
}

// NewManager parses raw. Malformed entries are skipped and reported by Invalid.
func NewManager(raw string) *Manager {
	m := &Manager{rules: make(map[string]rule)}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		key, value, ok := strings.Cut(entry, "=")
		key = normalize(key)
		r, valid := parseRule(normalize(value))
		if !ok || key == "" || !valid {
			m.invalid = append(m.invalid, entry)
			continue
		}
		m.rules[key] = r
	}
	return m
}

func parseRule(v string) (rule, bool) {
	switch v {
	case "on", "true", "1":
		return rule{percent: 100}, true
	case "off", "false", "0":
		return rule{}, true
	}
	n, ok := strings.CutSuffix(v, "%")
	if !ok {
		return rule{}, false
	}
	pct, err := strconv.Atoi(n)
	if err != nil || pct < 0 {
		return rule{}, false
	}
	return rule{percent: min(pct, 100)}, true
}

// Enabled reports whether name is on for userID. Partial rollouts never include
// anonymous callers (userID 0).
func (m *Manager) Enabled(name string, userID uint) bool {
	if m == nil {
		return false
	}
	r, ok := m.rules[normalize(name)]
	switch {
	case !ok || r.percent == 0:
		return false
	case r.percent == 100:
		return true
	case userID == 0:
		return false
	}
	return rolloutBucket(name, userID) < r.percent
}

// MayEnable reports whether name is on for at least some users. Process-wide wiring
// such as the reminder hub keys off this rather than a single user's bucket.
func (m *Manager) MayEnable(name string) bool {
	if m == nil {
		return false
	}
	return m.rules[normalize(name)].percent > 0
}

// Configured lists the parsed flags with their rollout percentage, sorted by name.
func (m *Manager) Configured() []string {
	out := make([]string, 0, len(m.rules))
	for name, r := range m.rules {
		out = append(out, name+"="+strconv.Itoa(r.percent)+"%")
	}
	sort.Strings(out)
	return out
}

// Invalid returns entries that could not be parsed.
func (m *Manager) Invalid() []string {
	return m.invalid
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func rolloutBucket(name string, userID uint) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(normalize(name) + ":" + strconv.FormatUint(uint64(userID), 10)))
	return int(h.Sum32() % 100)
}
