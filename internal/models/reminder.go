package models

// ReminderKind names one notification preference as it appears on the wire.
type ReminderKind string

const (
	ReminderReply ReminderKind = "reply"
)

// ReminderFlags stores the set of DISABLED reminders. The zero value enables
// every reminder, so rows written before a kind existed keep receiving it.
// Bit positions are append-only; never renumber or reuse one.
type ReminderFlags uint32

var reminderBits = map[ReminderKind]ReminderFlags{
	ReminderReply: 1 << 0,
}

// ReminderKinds lists the known kinds in wire order.
var ReminderKinds = []ReminderKind{ReminderReply}

func knownReminderMask() ReminderFlags {
	var mask ReminderFlags
	for _, bit := range reminderBits {
		mask |= bit
	}
	return mask
}

// Normalize drops bits that do not belong to a known kind.
func (f ReminderFlags) Normalize() ReminderFlags {
	return f & knownReminderMask()
}

// Enabled reports whether reminders of kind k are on. Unknown kinds are always on.
func (f ReminderFlags) Enabled(k ReminderKind) bool {
	bit, ok := reminderBits[k]
	if !ok {
		return true
	}
	return f&bit == 0
}

// With returns a copy with kind k switched on or off. Unknown kinds are ignored.
func (f ReminderFlags) With(k ReminderKind, enabled bool) ReminderFlags {
	bit, ok := reminderBits[k]
	if !ok {
		return f
	}
	if enabled {
		return f &^ bit
	}
	return f | bit
}

// Map renders the flags as the {kind: enabled} object used by the API.
func (f ReminderFlags) Map() map[ReminderKind]bool {
	out := make(map[ReminderKind]bool, len(ReminderKinds))
	for _, k := range ReminderKinds {
		out[k] = f.Enabled(k)
	}
	return out
}

// Apply overlays an API preference map onto f. Kinds missing from m keep their value.
func (f ReminderFlags) Apply(m map[ReminderKind]bool) ReminderFlags {
	for k, enabled := range m {
		f = f.With(k, enabled)
	}
	return f.Normalize()
}
