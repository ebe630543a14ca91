// Package state extracts the tailer's mode/shard/version/username/
// private-lobby state machine into its own type, independent of file I/O,
// per the Design Note calling for an explicit FSM rather than dynamic
// attribute forwarding.
package state

import (
	"strings"
	"sync"

	"github.com/ijol/sclog-core/internal/bus"
)

// TailerState is the state exclusively owned and mutated by the Machine.
type TailerState struct {
	LastPosition               int64
	Username                   string
	CurrentShard               string
	CurrentVersion             string
	CurrentMode                string
	InEAMode                   bool
	BlockPrivateLobbyRecording bool
}

// Machine is the single-writer FSM for TailerState. Every transition emits
// the corresponding named events on the bus.
type Machine struct {
	mu              sync.Mutex
	state           TailerState
	defaultUsername string
	bus             *bus.Bus
}

// New constructs a Machine seeded with defaultUsername.
func New(b *bus.Bus, defaultUsername string) *Machine {
	return &Machine{
		bus:             b,
		defaultUsername: defaultUsername,
		state:           TailerState{Username: defaultUsername},
	}
}

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() TailerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func isEAMode(mode string) bool {
	return strings.HasPrefix(mode, "EA_")
}

func isSCMode(mode string) bool {
	return strings.HasPrefix(mode, "SC_")
}

// ContextEstablisherDone handles the "Context Establisher Done" log line:
// updates the username unconditionally, but only treats mode as having
// changed (resetting the shard on entry to any non-SC_Default mode,
// detecting EA mode, clearing the private-lobby block on entry to an SC_*
// mode, and emitting mode_change/shard_version_update) when the reported
// mode actually differs from the current one — re-observing the same mode
// line is a no-op for mode/shard state, matching the original's
// `if new_mode != self.current_mode` guard.
func (m *Machine) ContextEstablisherDone(mode, username string) {
	m.mu.Lock()
	oldMode := m.state.CurrentMode
	oldUsername := m.state.Username
	usernameChanged := username != "" && username != oldUsername
	if usernameChanged {
		m.state.Username = username
	}

	modeChanged := mode != oldMode
	if modeChanged {
		m.state.CurrentMode = mode
		if mode != "SC_Default" {
			m.state.CurrentShard = ""
		}
		m.state.InEAMode = isEAMode(mode)
		if isSCMode(mode) {
			m.state.BlockPrivateLobbyRecording = false
		}
	}
	shard, version, username2 := m.state.CurrentShard, m.state.CurrentVersion, m.state.Username
	m.mu.Unlock()

	if modeChanged {
		m.bus.Emit("mode_change", mode, oldMode)
		m.bus.Emit("shard_version_update", shard, version, username2, mode, m.BlockPrivateLobbyRecording())
	}
	if usernameChanged {
		m.bus.Emit("username_change", username, oldUsername)
	}
}

// ChannelDisconnected handles a "Channel Disconnected" line whose gamerules
// match the current mode. EA-mode exits are suppressed: no event is
// emitted and the mode is left untouched until a different mode start is
// observed. Returns true if the disconnect was suppressed.
func (m *Machine) ChannelDisconnected(gamerules string) bool {
	m.mu.Lock()
	if gamerules != m.state.CurrentMode {
		m.mu.Unlock()
		return false
	}
	if m.state.InEAMode {
		m.mu.Unlock()
		return true
	}
	oldMode := m.state.CurrentMode
	m.state.CurrentMode = ""
	m.mu.Unlock()

	m.bus.Emit("mode_change", "", oldMode)
	return false
}

// ReuseChannelVersion handles a ReuseChannel endpoint line carrying a new
// server version.
func (m *Machine) ReuseChannelVersion(version string) {
	m.mu.Lock()
	m.state.CurrentVersion = version
	shard, username, mode := m.state.CurrentShard, m.state.Username, m.state.CurrentMode
	m.mu.Unlock()

	m.bus.Emit("shard_version_update", shard, version, username, mode, m.BlockPrivateLobbyRecording())
}

// EALobbyNetworkResponse handles an "EALobby NotifyServiceRequestResponse"
// line. Only meaningful while in an EA_ mode: Custom network blocks private
// lobby recording, Online clears it.
func (m *Machine) EALobbyNetworkResponse(network string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !isEAMode(m.state.CurrentMode) {
		return
	}
	switch network {
	case "Custom":
		m.state.BlockPrivateLobbyRecording = true
	case "Online":
		m.state.BlockPrivateLobbyRecording = false
	}
}

// SetShardVersion applies a shard/version pair recovered from a QR overlay,
// emitting shard_version_update only if something actually changed.
func (m *Machine) SetShardVersion(shard, version string) bool {
	m.mu.Lock()
	if shard == m.state.CurrentShard && version == m.state.CurrentVersion {
		m.mu.Unlock()
		return false
	}
	m.state.CurrentShard = shard
	m.state.CurrentVersion = version
	username, mode := m.state.Username, m.state.CurrentMode
	m.mu.Unlock()

	m.bus.Emit("shard_version_update", shard, version, username, mode, m.BlockPrivateLobbyRecording())
	return true
}

// BlockPrivateLobbyRecording reports the current block flag.
func (m *Machine) BlockPrivateLobbyRecording() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.BlockPrivateLobbyRecording
}

// SetLastPosition records the tailer's current byte offset.
func (m *Machine) SetLastPosition(pos int64) {
	m.mu.Lock()
	m.state.LastPosition = pos
	m.mu.Unlock()
}

// Reset performs the full truncation state-reset burst from spec §4.3:
// clears shard/version/mode, resets in_ea_mode and the private-lobby block,
// resets username to its configured default, and emits the corresponding
// reset events in order.
func (m *Machine) Reset() {
	m.mu.Lock()
	priorMode := m.state.CurrentMode
	priorUsername := m.state.Username

	m.state.CurrentShard = ""
	m.state.CurrentVersion = ""
	m.state.CurrentMode = ""
	m.state.InEAMode = false
	m.state.BlockPrivateLobbyRecording = false
	m.state.Username = m.defaultUsername
	m.state.LastPosition = 0
	defaultUsername := m.defaultUsername
	m.mu.Unlock()

	m.bus.Emit("mode_change", nil, priorMode)
	m.bus.Emit("shard_version_update", nil, nil, defaultUsername, nil, false)
	m.bus.Emit("username_change", defaultUsername, priorUsername)
	m.bus.Emit("realtime_disconnect")
}

// SetUsername updates the username outside of a reset, emitting
// username_change.
func (m *Machine) SetUsername(username string) {
	m.mu.Lock()
	prior := m.state.Username
	m.state.Username = username
	m.mu.Unlock()

	if prior != username {
		m.bus.Emit("username_change", username, prior)
	}
}
