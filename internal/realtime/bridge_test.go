package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ijol/sclog-core/internal/bus"
	"github.com/ijol/sclog-core/internal/ratelimit"
	"github.com/ijol/sclog-core/internal/realtime/transport"
	"github.com/ijol/sclog-core/pkg/logging"
)

// fakeChannel is a ChannelClient test double that records calls and lets a
// test fire the registered presence/broadcast callbacks directly.
type fakeChannel struct {
	mu sync.Mutex

	onSync      func()
	onJoin      func(key string, newPresences []transport.Presence)
	onLeave     func(key string, leftPresences []transport.Presence)
	onBroadcast map[string]func(transport.Envelope)

	presenceState map[string][]transport.Presence

	tracked       []transport.Presence
	broadcasts    []transport.Envelope
	unsubscribed  bool
	subscribeErr  error
	trackErr      error
	broadcastErr  error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		onBroadcast:   make(map[string]func(transport.Envelope)),
		presenceState: make(map[string][]transport.Presence),
	}
}

func (f *fakeChannel) OnPresenceSync(fn func())                                        { f.onSync = fn }
func (f *fakeChannel) OnPresenceJoin(fn func(key string, newPresences []transport.Presence)) { f.onJoin = fn }
func (f *fakeChannel) OnPresenceLeave(fn func(key string, leftPresences []transport.Presence)) {
	f.onLeave = fn
}
func (f *fakeChannel) OnBroadcast(event string, fn func(transport.Envelope)) {
	f.onBroadcast[event] = fn
}

func (f *fakeChannel) Subscribe(ctx context.Context, onStatus func(transport.SubscribeStatus, error)) error {
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	onStatus(transport.StatusSubscribed, nil)
	return nil
}

func (f *fakeChannel) Track(ctx context.Context, p transport.Presence) error {
	if f.trackErr != nil {
		return f.trackErr
	}
	f.mu.Lock()
	f.tracked = append(f.tracked, p)
	f.mu.Unlock()
	return nil
}

func (f *fakeChannel) SendBroadcast(ctx context.Context, event string, env transport.Envelope) error {
	if f.broadcastErr != nil {
		return f.broadcastErr
	}
	f.mu.Lock()
	f.broadcasts = append(f.broadcasts, env)
	f.mu.Unlock()
	return nil
}

func (f *fakeChannel) PresenceState() map[string][]transport.Presence {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.presenceState
}

func (f *fakeChannel) Unsubscribe(ctx context.Context) error {
	f.unsubscribed = true
	return nil
}

func (f *fakeChannel) trackCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tracked)
}

func (f *fakeChannel) broadcastCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.broadcasts)
}

// fakeManager hands back a single fixed channel regardless of the
// requested name/presenceKey, recording what it was asked for.
type fakeManager struct {
	channel *fakeChannel
	name    string
	key     string
}

func (m *fakeManager) Channel(name, presenceKey string, broadcastSelf bool) ChannelClient {
	m.name = name
	m.key = presenceKey
	return m.channel
}

func testBridge(t *testing.T) (*Bridge, *fakeChannel, *fakeManager) {
	t.Helper()
	b := bus.New(logging.NewLogger(), 1000)
	b.Start()
	t.Cleanup(b.Stop)

	limiter := ratelimit.New(ratelimit.Config{Timeout: time.Second, MaxDuplicates: 1})
	channel := newFakeChannel()
	mgr := &fakeManager{channel: channel}

	br := New(b, limiter, mgr, Config{HeartbeatInterval: time.Hour}, DefaultFilters(), logging.NewLogger())
	return br, channel, mgr
}

func TestConnectRequiresUsername(t *testing.T) {
	br, _, _ := testBridge(t)
	if br.Connect(context.Background()) {
		t.Fatal("expected Connect to fail without a username")
	}
	if br.IsConnected() {
		t.Fatal("bridge should not report connected")
	}
}

func setUsernameAndWait(t *testing.T, br *Bridge, username string) {
	t.Helper()
	br.onUsernameChange(username)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if br.IsConnected() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("bridge never connected after setting username %q", username)
}

func TestConnectTracksInitialPresence(t *testing.T) {
	br, channel, mgr := testBridge(t)
	setUsernameAndWait(t, br, "pilot1")

	if mgr.name != "general" {
		t.Fatalf("expected channel name 'general', got %q", mgr.name)
	}
	if mgr.key != "pilot1" {
		t.Fatalf("expected presence key 'pilot1', got %q", mgr.key)
	}
	if channel.trackCount() != 1 {
		t.Fatalf("expected exactly one initial Track call, got %d", channel.trackCount())
	}

	br.Disconnect(context.Background())
	if !channel.unsubscribed {
		t.Fatal("expected Disconnect to unsubscribe the channel")
	}
}

func TestBroadcastEmitsRealtimeEvent(t *testing.T) {
	br, channel, _ := testBridge(t)
	setUsernameAndWait(t, br, "pilot1")
	defer br.Disconnect(context.Background())

	done := make(chan struct{})
	var got map[string]interface{}
	br.bus.On("realtime_event", func(args ...interface{}) {
		if m, ok := args[0].(map[string]interface{}); ok {
			got = m
			close(done)
		}
	})

	br.Broadcast("player_death", map[string]string{"content": "you died"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for realtime_event")
	}
	if got["type"] != "player_death" {
		t.Fatalf("expected type player_death, got %v", got["type"])
	}
	_ = channel
}

func TestHandleRealtimeEventBroadcastFiltersExcludedContent(t *testing.T) {
	br, channel, _ := testBridge(t)
	setUsernameAndWait(t, br, "pilot1")
	defer br.Disconnect(context.Background())

	br.AddExcludedContent("boring message")

	done := make(chan struct{})
	br.bus.On("remote_realtime_event", func(args ...interface{}) { close(done) })

	onBroadcast := channel.onBroadcast["realtime-event"]
	onBroadcast(transport.Envelope{
		Username:  "other",
		EventData: map[string]interface{}{"type": "chat", "content": "boring message"},
	})

	select {
	case <-done:
		t.Fatal("excluded content should not have been forwarded")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestHandleRealtimeEventBroadcastForwardsUnfiltered(t *testing.T) {
	br, channel, _ := testBridge(t)
	setUsernameAndWait(t, br, "pilot1")
	defer br.Disconnect(context.Background())

	done := make(chan struct{})
	var gotUsername string
	br.bus.On("remote_realtime_event", func(args ...interface{}) {
		gotUsername, _ = args[0].(string)
		close(done)
	})

	onBroadcast := channel.onBroadcast["realtime-event"]
	onBroadcast(transport.Envelope{
		Username:  "other",
		EventData: map[string]interface{}{"type": "ship_destroyed", "content": "boom"},
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for remote_realtime_event")
	}
	if gotUsername != "other" {
		t.Fatalf("expected username 'other', got %q", gotUsername)
	}
}

func TestHandleRealtimeEventBroadcastFiltersByUsername(t *testing.T) {
	br, channel, _ := testBridge(t)
	setUsernameAndWait(t, br, "pilot1")
	defer br.Disconnect(context.Background())

	br.SetFilterBroadcastUsernames([]string{"allowed-user"})

	done := make(chan struct{})
	br.bus.On("remote_realtime_event", func(args ...interface{}) { close(done) })

	onBroadcast := channel.onBroadcast["realtime-event"]
	onBroadcast(transport.Envelope{
		Username:  "someone-else",
		EventData: map[string]interface{}{"type": "chat", "content": "hi"},
	})

	select {
	case <-done:
		t.Fatal("message from non-allow-listed username should have been filtered")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestHandleRealtimeEventBroadcastPingUpdatesActivityOnly(t *testing.T) {
	br, channel, _ := testBridge(t)
	setUsernameAndWait(t, br, "pilot1")
	defer br.Disconnect(context.Background())

	done := make(chan struct{})
	br.bus.On("remote_realtime_event", func(args ...interface{}) { close(done) })

	onBroadcast := channel.onBroadcast["realtime-event"]
	onBroadcast(transport.Envelope{Username: "other", EventData: map[string]interface{}{"type": "ping"}})

	select {
	case <-done:
		t.Fatal("ping events should never be forwarded as remote_realtime_event")
	case <-time.After(200 * time.Millisecond):
	}

	br.mu.Lock()
	lastAny := br.lastAnyPing
	br.mu.Unlock()
	if time.Since(lastAny) > time.Second {
		t.Fatal("expected lastAnyPing to be refreshed by inbound ping")
	}
}

func TestExcludedContentAddRemoveClear(t *testing.T) {
	br, _, _ := testBridge(t)

	br.AddExcludedContent("a")
	br.AddExcludedContent("b")
	if got := br.ActiveContentExclusions(); len(got) != 2 {
		t.Fatalf("expected 2 exclusions, got %v", got)
	}

	br.RemoveExcludedContent("a")
	if got := br.ActiveContentExclusions(); len(got) != 1 || got[0] != "b" {
		t.Fatalf("expected only 'b' to remain, got %v", got)
	}

	br.ClearExcludedContent()
	if got := br.ActiveContentExclusions(); len(got) != 0 {
		t.Fatalf("expected no exclusions after Clear, got %v", got)
	}
}

func TestSetModeShardFiltersAppliedToInboundEvents(t *testing.T) {
	br, channel, _ := testBridge(t)
	setUsernameAndWait(t, br, "pilot1")
	defer br.Disconnect(context.Background())

	br.onShardVersionUpdate("ShardA", "1.0", "", "SC")
	br.SetModeShardFilters(true, false, false, true)

	done := make(chan struct{})
	br.bus.On("remote_realtime_event", func(args ...interface{}) { close(done) })

	onBroadcast := channel.onBroadcast["realtime-event"]
	onBroadcast(transport.Envelope{
		Username: "other",
		EventData: map[string]interface{}{
			"type":    "ship_destroyed",
			"content": "boom",
			"raw_data": map[string]interface{}{
				"mode": "AC",
			},
		},
	})

	select {
	case <-done:
		t.Fatal("event from a different mode should have been filtered")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	br, _, _ := testBridge(t)
	if !br.Disconnect(context.Background()) {
		t.Fatal("Disconnect on a never-connected bridge should report success (no-op)")
	}
}

func TestReconnectRejectsConcurrentCall(t *testing.T) {
	br, _, _ := testBridge(t)
	setUsernameAndWait(t, br, "pilot1")
	defer br.Disconnect(context.Background())

	if !br.reconnectMu.TryLock() {
		t.Fatal("expected to acquire reconnectMu for test setup")
	}
	defer br.reconnectMu.Unlock()

	if br.Reconnect(context.Background()) {
		t.Fatal("expected Reconnect to be rejected while one is already in flight")
	}
}
