// Package realtime is the Go port of
// original_source/src/helpers/core/realtime_bridge.py: a single presence +
// broadcast channel ("general") shared with every peer running this tool,
// a dedicated event-loop goroutine reached only through submit/future
// (loop.go), heartbeat-driven presence refresh, ping-loss detection with
// self-reconnect, and the full inbound filtering pipeline described in
// SPEC_FULL.md §5.5.
package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ijol/sclog-core/internal/bus"
	"github.com/ijol/sclog-core/internal/ratelimit"
	"github.com/ijol/sclog-core/internal/realtime/transport"
	"github.com/ijol/sclog-core/pkg/logging"
)

const (
	pingLossThreshold     = 120 * time.Second
	pingWatchdogInterval  = 5 * time.Second
	backgroundStopTimeout = 5 * time.Second
)

// ChannelClient is the narrow slice of the external-transport channel API
// the Bridge depends on. internal/realtime/transport.Client satisfies it.
type ChannelClient interface {
	OnPresenceSync(fn func())
	OnPresenceJoin(fn func(key string, newPresences []transport.Presence))
	OnPresenceLeave(fn func(key string, leftPresences []transport.Presence))
	OnBroadcast(event string, fn func(transport.Envelope))
	Subscribe(ctx context.Context, onStatus func(transport.SubscribeStatus, error)) error
	Track(ctx context.Context, p transport.Presence) error
	SendBroadcast(ctx context.Context, event string, env transport.Envelope) error
	PresenceState() map[string][]transport.Presence
	Unsubscribe(ctx context.Context) error
}

// TransportManager hands out channel handles. transport.Manager (wrapped
// via NewTransportManager) is the production implementation.
type TransportManager interface {
	Channel(name, presenceKey string, broadcastSelf bool) ChannelClient
}

type managerAdapter struct{ m *transport.Manager }

// NewTransportManager adapts a concrete transport.Manager to the
// TransportManager interface the Bridge depends on.
func NewTransportManager(m *transport.Manager) TransportManager { return managerAdapter{m: m} }

func (a managerAdapter) Channel(name, presenceKey string, broadcastSelf bool) ChannelClient {
	return a.m.Channel(name, presenceKey, broadcastSelf)
}

// Bridge maintains the single "general" presence+broadcast channel and
// republishes filtered inbound events onto the local Bus.
type Bridge struct {
	bus       *bus.Bus
	limiter   *ratelimit.Limiter
	transport TransportManager
	cfg       Config
	logger    logging.Logger
	loopObj   *loop

	mu           sync.Mutex
	username     string
	shard        string
	version      string
	mode         string
	connected    bool
	channel      ChannelClient
	lastTracked  *transport.Presence
	lastActivity map[string]time.Time
	lastAnyPing  time.Time
	pingMissing  bool
	filters      Filters

	heartbeatCancel context.CancelFunc
	watchdogCancel  context.CancelFunc
	wg              sync.WaitGroup

	reconnectMu sync.Mutex
}

// New constructs a Bridge and subscribes it to the Bus events it reacts
// to (shard_version_update, username_change, realtime_disconnect,
// realtime_event), mirroring the constructor-time message_bus.on(...)
// wiring of the Python original.
func New(b *bus.Bus, limiter *ratelimit.Limiter, tm TransportManager, cfg Config, filters Filters, logger logging.Logger) *Bridge {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.NotificationsEvents == nil {
		cfg.NotificationsEvents = map[string]bool{}
	}
	if filters.FilterBroadcastUsernames == nil {
		filters.FilterBroadcastUsernames = map[string]bool{}
	}
	if filters.ExcludedRemoteContent == nil {
		filters.ExcludedRemoteContent = map[string]bool{}
	}

	br := &Bridge{
		bus:          b,
		limiter:      limiter,
		transport:    tm,
		cfg:          cfg,
		logger:       logger,
		loopObj:      newLoop(),
		lastActivity: make(map[string]time.Time),
		lastAnyPing:  time.Now(),
		filters:      filters,
	}

	b.On("shard_version_update", br.onShardVersionUpdate)
	b.On("username_change", br.onUsernameChange)
	b.On("realtime_disconnect", br.onRealtimeDisconnect)
	b.On("realtime_event", br.onRealtimeEventEmit)

	return br
}

func meta(source string) map[string]interface{} { return map[string]interface{}{"source": source} }

func argString(args []interface{}, i int) string {
	if i >= len(args) || args[i] == nil {
		return ""
	}
	s, _ := args[i].(string)
	return s
}

// IsConnected reports the bridge's current connection flag.
func (br *Bridge) IsConnected() bool {
	br.mu.Lock()
	defer br.mu.Unlock()
	return br.connected
}

// Connect requires a non-empty, non-"Unknown" username; on success it
// subscribes to the general channel, tracks initial presence, and starts
// the heartbeat and ping-loss watchdog.
func (br *Bridge) Connect(ctx context.Context) bool {
	br.mu.Lock()
	username := br.username
	already := br.connected
	br.mu.Unlock()
	if already {
		return true
	}
	if username == "" || username == "Unknown" {
		br.bus.Publish(bus.Message{Content: "Cannot connect Realtime Bridge: username not set", Level: bus.Warning, Metadata: meta("realtime_bridge")})
		return false
	}

	br.loopObj.start()

	channel := br.transport.Channel("general", username, true)
	channel.OnPresenceSync(br.handlePresenceSync)
	channel.OnPresenceJoin(br.handlePresenceJoin)
	channel.OnPresenceLeave(br.handlePresenceLeave)
	channel.OnBroadcast("realtime-event", br.handleRealtimeEventBroadcast)

	var trackErr error
	err := channel.Subscribe(ctx, func(status transport.SubscribeStatus, subErr error) {
		if status != transport.StatusSubscribed {
			trackErr = subErr
			return
		}
		pres := br.buildPresence(username)
		if e := br.loopObj.submit(ctx, func() error { return channel.Track(ctx, pres) }); e != nil {
			br.bus.Publish(bus.Message{Content: fmt.Sprintf("Error tracking initial presence: %v", e), Level: bus.Error, Metadata: meta("realtime_bridge")})
		} else {
			br.mu.Lock()
			br.lastTracked = &pres
			br.mu.Unlock()
		}
	})
	if err != nil {
		br.bus.Publish(bus.Message{Content: fmt.Sprintf("Error connecting Realtime Bridge: %v", err), Level: bus.Error, Metadata: meta("realtime_bridge")})
		br.loopObj.stop()
		return false
	}
	if trackErr != nil {
		br.bus.Publish(bus.Message{Content: fmt.Sprintf("Error connecting Realtime Bridge: %v", trackErr), Level: bus.Error, Metadata: meta("realtime_bridge")})
		br.loopObj.stop()
		return false
	}

	br.mu.Lock()
	br.channel = channel
	br.connected = true
	br.mu.Unlock()

	br.startHeartbeat()
	br.startPingWatchdog()

	br.bus.Publish(bus.Message{Content: "Realtime Bridge connected successfully (general channel)", Level: bus.Info, Metadata: meta("realtime_bridge")})
	br.bus.Emit("realtime_event", map[string]interface{}{
		"type":      "info",
		"content":   "Connected to general channel",
		"timestamp": time.Now().Format(time.RFC3339),
	})
	return true
}

// Disconnect stops the heartbeat and watchdog, unsubscribes the channel,
// stops the loop goroutine, and clears connection state. All background
// goroutines are guaranteed to have exited within backgroundStopTimeout.
func (br *Bridge) Disconnect(ctx context.Context) bool {
	br.mu.Lock()
	if !br.connected {
		br.mu.Unlock()
		return true
	}
	channel := br.channel
	br.connected = false
	br.channel = nil
	br.mu.Unlock()

	br.stopHeartbeat()
	br.stopPingWatchdog()
	if !br.waitBackgroundStop(backgroundStopTimeout) {
		br.logger.WithFields(logging.Fields{"component": "realtime"}).Warn("heartbeat/watchdog goroutines did not stop within timeout")
	}

	if channel != nil {
		if err := channel.Unsubscribe(ctx); err != nil {
			br.logger.WithFields(logging.Fields{"component": "realtime", "error": err}).Warn("error unsubscribing general channel")
		}
	}
	br.loopObj.stop()

	br.bus.Publish(bus.Message{Content: "Realtime Bridge disconnected", Level: bus.Info, Metadata: meta("realtime_bridge")})
	return true
}

// Reconnect is disconnect() then connect(), serialized by a non-recursive
// lock: a concurrent Reconnect call while one is in flight is a no-op
// that returns false with a warning.
func (br *Bridge) Reconnect(ctx context.Context) bool {
	if !br.reconnectMu.TryLock() {
		br.bus.Publish(bus.Message{Content: "RealtimeBridge: reconnection already in progress, ignoring request", Level: bus.Warning, Metadata: meta("realtime_bridge")})
		return false
	}
	defer br.reconnectMu.Unlock()

	br.bus.Publish(bus.Message{Content: "RealtimeBridge: reconnect requested", Level: bus.Info, Metadata: meta("realtime_bridge")})
	br.Disconnect(ctx)
	ok := br.Connect(ctx)
	br.bus.Publish(bus.Message{Content: "RealtimeBridge: reconnect completed (disconnect + connect)", Level: bus.Info, Metadata: meta("realtime_bridge")})
	return ok
}

func (br *Bridge) waitBackgroundStop(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		br.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Broadcast implements tailer.Broadcaster: a dispatch-eligible pattern
// match becomes a realtime event and is published on the local "realtime_event"
// channel, the same path the bridge's own heartbeat ping takes.
func (br *Bridge) Broadcast(patternName string, data map[string]string) {
	rawData := make(map[string]interface{}, len(data))
	for k, v := range data {
		rawData[k] = v
	}
	br.bus.Emit("realtime_event", map[string]interface{}{
		"type":      patternName,
		"content":   data["content"],
		"timestamp": time.Now().Format(time.RFC3339),
		"raw_data":  rawData,
	})
}

func (br *Bridge) buildPresence(usernameOverride string) transport.Presence {
	br.mu.Lock()
	defer br.mu.Unlock()
	username := br.username
	if usernameOverride != "" {
		username = usernameOverride
	}
	return transport.Presence{Username: username, Shard: br.shard, Version: br.version, Mode: br.mode, Status: "online"}
}

func (br *Bridge) onShardVersionUpdate(args ...interface{}) {
	shard := argString(args, 0)
	version := argString(args, 1)
	username := argString(args, 2)
	mode := argString(args, 3)

	br.mu.Lock()
	br.shard = shard
	br.version = version
	br.mode = mode
	if username != "" {
		br.username = username
	}
	br.mu.Unlock()

	go br.refreshPresence(context.Background())
}

func (br *Bridge) refreshPresence(ctx context.Context) {
	br.mu.Lock()
	channel := br.channel
	connected := br.connected
	pres := transport.Presence{Username: br.username, Shard: br.shard, Version: br.version, Mode: br.mode, Status: "online"}
	last := br.lastTracked
	br.mu.Unlock()

	if !connected || channel == nil || pres.Username == "" || pres.Username == "Unknown" {
		return
	}
	if last != nil && *last == pres {
		return
	}

	if err := br.loopObj.submit(ctx, func() error { return channel.Track(ctx, pres) }); err != nil {
		br.bus.Publish(bus.Message{Content: fmt.Sprintf("Error updating presence status: %v", err), Level: bus.Error, Metadata: meta("realtime_bridge")})
		return
	}
	br.mu.Lock()
	br.lastTracked = &pres
	br.mu.Unlock()
	br.bus.Publish(bus.Message{Content: fmt.Sprintf("Updated presence status with shard: %s, version: %s, mode: %s", pres.Shard, pres.Version, pres.Mode), Level: bus.Debug, Metadata: meta("realtime_bridge")})
}

// onUsernameChange mirrors set_username: reconnects on change while
// connected, connects when a valid username first appears.
func (br *Bridge) onUsernameChange(args ...interface{}) {
	username := argString(args, 0)
	go br.setUsername(username)
}

func (br *Bridge) setUsername(username string) {
	br.mu.Lock()
	if br.username == username {
		br.mu.Unlock()
		return
	}
	if username == "" || username == "Unknown" {
		br.username = username
		br.mu.Unlock()
		return
	}
	br.username = username
	connected := br.connected
	br.mu.Unlock()

	br.bus.Publish(bus.Message{Content: fmt.Sprintf("Username updated to: %s", username), Level: bus.Debug, Metadata: meta("realtime_bridge")})

	if connected {
		br.Disconnect(context.Background())
	}
	br.Connect(context.Background())
}

func (br *Bridge) onRealtimeDisconnect(args ...interface{}) {
	go func() {
		if br.IsConnected() {
			br.Disconnect(context.Background())
		}
	}()
}

func (br *Bridge) onRealtimeEventEmit(args ...interface{}) {
	if len(args) == 0 {
		return
	}
	eventData, ok := args[0].(map[string]interface{})
	if !ok {
		return
	}
	go br.sendRealtimeEvent(context.Background(), eventData)
}

func (br *Bridge) sendRealtimeEvent(ctx context.Context, eventData map[string]interface{}) {
	br.mu.Lock()
	channel := br.channel
	username := br.username
	shard := br.shard
	br.mu.Unlock()

	if channel == nil {
		br.bus.Publish(bus.Message{Content: "General channel not initialized, cannot send realtime event", Level: bus.Warning, Metadata: meta("realtime_bridge")})
		return
	}

	env := transport.Envelope{Username: username, Timestamp: time.Now(), Shard: shard, EventData: eventData}
	if err := br.loopObj.submit(ctx, func() error { return channel.SendBroadcast(ctx, "realtime-event", env) }); err != nil {
		br.bus.Publish(bus.Message{Content: fmt.Sprintf("Error broadcasting realtime event: %v", err), Level: bus.Error, Metadata: meta("realtime_bridge")})
		return
	}
	br.bus.Publish(bus.Message{Content: fmt.Sprintf("Broadcasted realtime event to all users (from shard %s)", shard), Level: bus.Debug, Metadata: meta("realtime_bridge")})
}

func (br *Bridge) startHeartbeat() {
	br.mu.Lock()
	if br.heartbeatCancel != nil {
		br.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	br.heartbeatCancel = cancel
	br.mu.Unlock()

	br.wg.Add(1)
	go br.heartbeatLoop(ctx)
}

func (br *Bridge) stopHeartbeat() {
	br.mu.Lock()
	cancel := br.heartbeatCancel
	br.heartbeatCancel = nil
	br.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (br *Bridge) heartbeatLoop(ctx context.Context) {
	defer br.wg.Done()
	ticker := time.NewTicker(br.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			br.heartbeatTick(ctx)
		}
	}
}

func (br *Bridge) heartbeatTick(ctx context.Context) {
	br.mu.Lock()
	channel := br.channel
	username := br.username
	br.mu.Unlock()

	if channel != nil && username != "" && username != "Unknown" {
		pres := br.buildPresence("")
		if err := br.loopObj.submit(ctx, func() error { return channel.Track(ctx, pres) }); err != nil {
			br.bus.Publish(bus.Message{Content: fmt.Sprintf("Error in heartbeat worker: %v", err), Level: bus.Error, Metadata: meta("realtime_bridge")})
		} else {
			br.mu.Lock()
			br.lastTracked = &pres
			br.mu.Unlock()
			br.bus.Publish(bus.Message{Content: "Heartbeat presence update sent", Level: bus.Debug, Metadata: meta("realtime_bridge")})
		}
	}

	br.bus.Emit("realtime_event", map[string]interface{}{
		"type":      "ping",
		"username":  username,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (br *Bridge) startPingWatchdog() {
	br.mu.Lock()
	if br.watchdogCancel != nil {
		br.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	br.watchdogCancel = cancel
	br.lastAnyPing = time.Now()
	br.pingMissing = false
	br.mu.Unlock()

	br.wg.Add(1)
	go br.watchdogLoop(ctx)
}

func (br *Bridge) stopPingWatchdog() {
	br.mu.Lock()
	cancel := br.watchdogCancel
	br.watchdogCancel = nil
	br.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (br *Bridge) watchdogLoop(ctx context.Context) {
	defer br.wg.Done()
	ticker := time.NewTicker(pingWatchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			br.checkPingMissing()
		}
	}
}

func (br *Bridge) checkPingMissing() {
	br.mu.Lock()
	elapsed := time.Since(br.lastAnyPing)
	already := br.pingMissing
	autoReconnect := br.cfg.AutoReconnection
	br.mu.Unlock()

	if elapsed <= pingLossThreshold {
		br.mu.Lock()
		br.pingMissing = false
		br.mu.Unlock()
		return
	}
	if already {
		return
	}

	br.mu.Lock()
	br.pingMissing = true
	br.mu.Unlock()

	br.bus.Emit("broadcast_ping_missing")
	br.bus.Publish(bus.Message{Content: "No ping received from any user in over 120 seconds (broadcast_ping_missing emitted)", Level: bus.Warning, Metadata: meta("realtime_bridge")})

	if !autoReconnect {
		return
	}
	br.bus.Publish(bus.Message{Content: "Auto-reconnection enabled: attempting to reconnect...", Level: bus.Info, Metadata: meta("realtime_bridge")})
	go func() {
		ok := br.Reconnect(context.Background())
		if ok {
			br.mu.Lock()
			br.lastAnyPing = time.Now()
			br.mu.Unlock()
			br.bus.Emit("realtime_reconnected")
			br.bus.Publish(bus.Message{Content: "RealtimeBridge: reconnection successful (event emitted)", Level: bus.Info, Metadata: meta("realtime_bridge")})
		} else {
			br.bus.Publish(bus.Message{Content: "RealtimeBridge: reconnection failed", Level: bus.Error, Metadata: meta("realtime_bridge")})
		}
	}()
}

func (br *Bridge) handlePresenceSync() {
	br.mu.Lock()
	channel := br.channel
	lastActivity := make(map[string]time.Time, len(br.lastActivity))
	for k, v := range br.lastActivity {
		lastActivity[k] = v
	}
	br.mu.Unlock()
	if channel == nil {
		return
	}

	state := channel.PresenceState()
	usersOnline := make([]map[string]interface{}, 0, len(state))
	for username, presences := range state {
		for _, p := range presences {
			entry := map[string]interface{}{
				"username": username,
				"shard":    p.Shard,
				"version":  p.Version,
				"status":   p.Status,
				"mode":     p.Mode,
			}
			if t, ok := lastActivity[username]; ok {
				entry["last_active"] = t.Format("2006-01-02 15:04:05")
			}
			usersOnline = append(usersOnline, entry)
		}
	}
	br.bus.Emit("users_online_updated", usersOnline)
	br.bus.Publish(bus.Message{Content: fmt.Sprintf("Users online updated: %d users", len(usersOnline)), Level: bus.Debug, Metadata: meta("realtime_bridge")})
}

func (br *Bridge) handlePresenceJoin(key string, newPresences []transport.Presence) {
	for _, p := range newPresences {
		br.bus.Publish(bus.Message{Content: fmt.Sprintf("User '%s' is now online", p.Username), Level: bus.Debug, Metadata: meta("realtime_bridge")})
	}
	br.handlePresenceSync()
}

func (br *Bridge) handlePresenceLeave(key string, left []transport.Presence) {
	for _, p := range left {
		br.bus.Publish(bus.Message{Content: fmt.Sprintf("User '%s' went offline", p.Username), Level: bus.Debug, Metadata: meta("realtime_bridge")})
	}
	br.handlePresenceSync()
}

// handleRealtimeEventBroadcast is the inbound filtering pipeline from
// SPEC_FULL.md §5.5: actor_profile interception, global mode/shard filter,
// content exclusion, username filter, stall suppression, ping bookkeeping,
// notification trigger, and finally remote_realtime_event emission.
func (br *Bridge) handleRealtimeEventBroadcast(env transport.Envelope) {
	username := env.Username
	if username == "" {
		username = "Unknown"
	}
	eventData := env.EventData
	if eventData == nil {
		return
	}
	eventType, _ := eventData["type"].(string)

	if eventType == "actor_profile" {
		br.forwardActorProfile(username, eventData)
		return
	}

	if !br.passesGlobalFilters(eventData) {
		return
	}

	br.mu.Lock()
	excluded := eventData["content"] != nil && br.filters.ExcludedRemoteContent[fmt.Sprint(eventData["content"])]
	usernameFilter := br.filters.FilterBroadcastUsernames
	stallFilter := br.filters.FilterStalledIfOnline
	channel := br.channel
	br.mu.Unlock()
	if excluded {
		return
	}

	if len(usernameFilter) > 0 && !usernameFilter[username] {
		br.bus.Publish(bus.Message{Content: fmt.Sprintf("Mensaje broadcast filtrado por usuario online: %s", username), Level: bus.Debug, Metadata: meta("realtime_bridge")})
		return
	}

	if stallFilter && eventType == "actor_stall" && channel != nil {
		if raw, ok := eventData["raw_data"].(map[string]interface{}); ok {
			if player, _ := raw["player"].(string); player != "" {
				if _, online := channel.PresenceState()[player]; online {
					return
				}
			}
		}
	}

	if eventType == "ping" {
		br.mu.Lock()
		if username != "" {
			br.lastActivity[username] = time.Now()
		}
		br.lastAnyPing = time.Now()
		br.pingMissing = false
		br.mu.Unlock()
		return
	}

	br.mu.Lock()
	notify := br.cfg.NotificationsEnabled && br.cfg.NotificationsEvents[eventType]
	br.mu.Unlock()
	if notify {
		content, _ := eventData["content"].(string)
		br.bus.Emit("show_windows_notification", content)
	}

	br.bus.Emit("remote_realtime_event", username, eventData)
}

func (br *Bridge) forwardActorProfile(username string, eventData map[string]interface{}) {
	raw, _ := eventData["raw_data"].(map[string]interface{})
	if raw == nil {
		return
	}
	playerName, _ := raw["player_name"].(string)
	if playerName == "" {
		return
	}
	org, _ := raw["org"].(string)
	enlisted, _ := raw["enlisted"].(string)
	metadata := map[string]interface{}{
		"action":      "broadcast",
		"source_user": username,
		"raw_data":    raw,
	}
	br.bus.Emit("actor_profile", playerName, org, enlisted, metadata)
}

func (br *Bridge) passesGlobalFilters(eventData map[string]interface{}) bool {
	raw, _ := eventData["raw_data"].(map[string]interface{})
	isUnknown := func(v interface{}) bool {
		s, ok := v.(string)
		return !ok || s == "" || s == "Unknown"
	}

	br.mu.Lock()
	filterMode := br.filters.FilterByCurrentMode
	filterShard := br.filters.FilterByCurrentShard
	includeUnknownMode := br.filters.IncludeUnknownMode
	includeUnknownShard := br.filters.IncludeUnknownShard
	currentMode := br.mode
	currentShard := br.shard
	br.mu.Unlock()

	if filterMode {
		modeVal := raw["mode"]
		if isUnknown(modeVal) {
			if !includeUnknownMode {
				return false
			}
		} else if modeVal.(string) != currentMode {
			return false
		}
	}
	if filterShard {
		shardVal := raw["shard"]
		if isUnknown(shardVal) {
			if !includeUnknownShard {
				return false
			}
		} else if shardVal.(string) != currentShard {
			return false
		}
	}
	return true
}

// AddExcludedContent adds a content string to the remote-content exclusion
// set, logging at Info per the original's update_content_exclusions.
func (br *Bridge) AddExcludedContent(content string) {
	br.mu.Lock()
	_, exists := br.filters.ExcludedRemoteContent[content]
	if !exists {
		br.filters.ExcludedRemoteContent[content] = true
	}
	br.mu.Unlock()
	if !exists {
		br.bus.Publish(bus.Message{Content: fmt.Sprintf("Filtro de contenido remoto añadido: '%s'", content), Level: bus.Info, Metadata: meta("realtime_bridge")})
	}
}

// RemoveExcludedContent removes a content string from the exclusion set.
func (br *Bridge) RemoveExcludedContent(content string) {
	br.mu.Lock()
	delete(br.filters.ExcludedRemoteContent, content)
	br.mu.Unlock()
}

// ClearExcludedContent empties the exclusion set.
func (br *Bridge) ClearExcludedContent() {
	br.mu.Lock()
	br.filters.ExcludedRemoteContent = map[string]bool{}
	br.mu.Unlock()
}

// ActiveContentExclusions returns a sorted-by-insertion-irrelevant snapshot
// of the current exclusion set.
func (br *Bridge) ActiveContentExclusions() []string {
	br.mu.Lock()
	defer br.mu.Unlock()
	out := make([]string, 0, len(br.filters.ExcludedRemoteContent))
	for k := range br.filters.ExcludedRemoteContent {
		out = append(out, k)
	}
	return out
}

// SetFilterBroadcastUsernames replaces the username allow-list filter.
func (br *Bridge) SetFilterBroadcastUsernames(names []string) {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	br.mu.Lock()
	br.filters.FilterBroadcastUsernames = set
	br.mu.Unlock()
}

// SetModeShardFilters updates the global mode/shard inbound filters.
func (br *Bridge) SetModeShardFilters(filterMode, filterShard, includeUnknownMode, includeUnknownShard bool) {
	br.mu.Lock()
	br.filters.FilterByCurrentMode = filterMode
	br.filters.FilterByCurrentShard = filterShard
	br.filters.IncludeUnknownMode = includeUnknownMode
	br.filters.IncludeUnknownShard = includeUnknownShard
	br.mu.Unlock()
}

// SetFilterStalledIfOnline toggles actor_stall suppression for players
// currently present in the general channel.
func (br *Bridge) SetFilterStalledIfOnline(v bool) {
	br.mu.Lock()
	br.filters.FilterStalledIfOnline = v
	br.mu.Unlock()
}
