package protocol

import (
	"fmt"
	"strings"
)

// Channel identifies one of the three debug channels a device streams.
type Channel string

// Debug channels.
const (
	ChannelTask  Channel = "Task"
	ChannelQueue Channel = "Queue"
	ChannelTick  Channel = "Tick"
)

// HeaderSentinel returns the first column name of the channel's header row.
func (c Channel) HeaderSentinel() string {
	if c == ChannelTick {
		return "C Time"
	}
	return "Message Type"
}

// ProtocolVersion selects the payload field counts the decoder accepts.
type ProtocolVersion int

const (
	// VersionCurrent is the latest revision: every debug line ends with the
	// running task's name.
	VersionCurrent ProtocolVersion = iota
	// VersionLegacy is the first revision, without the task name column.
	VersionLegacy
	// VersionAuto accepts any known revision, chosen by field count.
	VersionAuto
)

// fieldCounts is indexed by revision, then channel.
var fieldCounts = map[ProtocolVersion]map[Channel]int{
	VersionCurrent: {ChannelTask: 7, ChannelQueue: 7, ChannelTick: 5},
	VersionLegacy:  {ChannelTask: 6, ChannelQueue: 6, ChannelTick: 4},
}

// ParseVersion parses "current", "legacy" or "auto".
func ParseVersion(s string) (ProtocolVersion, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "current":
		return VersionCurrent, nil
	case "legacy":
		return VersionLegacy, nil
	case "auto":
		return VersionAuto, nil
	default:
		return 0, fmt.Errorf("unknown protocol version %q (want current, legacy or auto)", s)
	}
}

func (v ProtocolVersion) String() string {
	switch v {
	case VersionCurrent:
		return "current"
	case VersionLegacy:
		return "legacy"
	case VersionAuto:
		return "auto"
	default:
		return fmt.Sprintf("ProtocolVersion(%d)", int(v))
	}
}

// FieldCounts returns the field counts accepted for a channel.
func (v ProtocolVersion) FieldCounts(c Channel) []int {
	if v == VersionAuto {
		return []int{fieldCounts[VersionCurrent][c], fieldCounts[VersionLegacy][c]}
	}
	if counts, ok := fieldCounts[v]; ok {
		return []int{counts[c]}
	}
	return nil
}

// hasTaskName reports whether a payload of n fields on channel c carries the
// trailing task name column.
func hasTaskName(c Channel, n int) bool {
	return n == fieldCounts[VersionCurrent][c]
}

func (v ProtocolVersion) accepts(c Channel, n int) bool {
	for _, want := range v.FieldCounts(c) {
		if want == n {
			return true
		}
	}
	return false
}
