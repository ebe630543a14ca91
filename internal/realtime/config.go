package realtime

import "time"

// Config holds the tunables for a Bridge that don't change at runtime.
type Config struct {
	// HeartbeatInterval is the re-track + ping broadcast period. Defaults
	// to 30s, the confirmed-authoritative value from
	// active_users_update_interval (spec.md §9 Open Question).
	HeartbeatInterval time.Duration
	// AutoReconnection controls whether the ping-loss watchdog triggers a
	// Reconnect when no ping has been observed in 120s.
	AutoReconnection bool
	// NotificationsEnabled gates whether inbound events in
	// NotificationsEvents trigger show_windows_notification.
	NotificationsEnabled bool
	// NotificationsEvents is the set of event_data.type values that
	// trigger a local OS-notification emission when NotificationsEnabled.
	NotificationsEvents map[string]bool
}

// DefaultConfig returns the spec's default tunables.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:    30 * time.Second,
		AutoReconnection:     true,
		NotificationsEnabled: true,
		NotificationsEvents:  map[string]bool{},
	}
}

// Filters holds the mutable, UI-controlled inbound-filtering state.
// Unlike Config, callers are expected to adjust these at runtime (the
// original keeps them as plain attributes on the singleton bridge
// instance, set directly by the UI layer).
type Filters struct {
	FilterStalledIfOnline    bool
	FilterBroadcastUsernames map[string]bool
	ExcludedRemoteContent    map[string]bool
	FilterByCurrentMode      bool
	FilterByCurrentShard     bool
	IncludeUnknownMode       bool
	IncludeUnknownShard      bool
}

// DefaultFilters returns the spec's default filter state: stall
// suppression and unknown-mode/shard inclusion both on, everything else
// permissive until the UI narrows it.
func DefaultFilters() Filters {
	return Filters{
		FilterStalledIfOnline:    true,
		FilterBroadcastUsernames: map[string]bool{},
		ExcludedRemoteContent:    map[string]bool{},
		IncludeUnknownMode:       true,
		IncludeUnknownShard:      true,
	}
}
