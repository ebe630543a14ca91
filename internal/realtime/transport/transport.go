// Package transport stands in for the external realtime backend the
// original implementation talks to: channel join, presence tracking, and
// broadcast fan-out, keyed by a named channel and a presence key. Since
// this repo is self-contained, peers are other processes running this
// same tool, mirrored across processes via Redis pub/sub rather than a
// hosted realtime service.
package transport

import (
	"context"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ijol/sclog-core/pkg/logging"
	"github.com/ijol/sclog-core/pkg/redis"
)

// SubscribeStatus mirrors the external transport's channel subscription
// lifecycle callback (e.g. a hosted realtime service's "SUBSCRIBED").
type SubscribeStatus string

const (
	StatusSubscribed SubscribeStatus = "SUBSCRIBED"
	StatusError      SubscribeStatus = "ERROR"
)

// Presence is one peer's tracked presence record on a channel.
type Presence struct {
	Username string `json:"username"`
	Shard    string `json:"shard"`
	Version  string `json:"version"`
	Mode     string `json:"mode"`
	Status   string `json:"status"`
}

// Envelope is the broadcast payload carried on a channel.
type Envelope struct {
	Username  string                 `json:"username"`
	Timestamp time.Time              `json:"timestamp"`
	Shard     string                 `json:"shard"`
	EventData map[string]interface{} `json:"event_data"`
}

type wireKind string

const (
	wireTrack     wireKind = "track"
	wireLeave     wireKind = "leave"
	wireBroadcast wireKind = "broadcast"
)

type wireMessage struct {
	Kind     wireKind  `json:"kind"`
	Key      string    `json:"key"`
	Presence *Presence `json:"presence,omitempty"`
	Event    string    `json:"event,omitempty"`
	Envelope *Envelope `json:"envelope,omitempty"`
}

// Manager hands out channel clients backed by a shared Redis connection.
type Manager struct {
	client goredis.UniversalClient
	logger logging.Logger
}

// NewManager constructs a Manager over an already-connected Redis client.
func NewManager(client goredis.UniversalClient, logger logging.Logger) *Manager {
	return &Manager{client: client, logger: logger}
}

// Channel returns a new Client joined to name, presence-keyed by
// presenceKey. broadcastSelf is kept for parity with the external
// transport's channel config surface: Redis pub/sub delivers our own
// publishes back to us for free, so self-delivery is always effectively
// on regardless of this flag's value.
func (m *Manager) Channel(name, presenceKey string, broadcastSelf bool) *Client {
	return &Client{
		name:          name,
		presenceKey:   presenceKey,
		broadcastSelf: broadcastSelf,
		logger:        m.logger,
		presence:      make(map[string][]Presence),
		onBroadcast:   make(map[string]func(Envelope)),
		pub:           redis.NewTypedPubSub[wireMessage](m.client),
	}
}

// Client is a process's handle onto one named realtime channel.
type Client struct {
	name          string
	presenceKey   string
	broadcastSelf bool
	logger        logging.Logger

	pub *redis.TypedPubSub[wireMessage]

	mu       sync.RWMutex
	presence map[string][]Presence

	onSync  func()
	onJoin  func(key string, newPresences []Presence)
	onLeave func(key string, leftPresences []Presence)

	onBroadcastMu sync.RWMutex
	onBroadcast   map[string]func(Envelope)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// OnPresenceSync registers the full-state resync callback.
func (c *Client) OnPresenceSync(fn func()) { c.onSync = fn }

// OnPresenceJoin registers the callback invoked when a new key appears.
func (c *Client) OnPresenceJoin(fn func(key string, newPresences []Presence)) { c.onJoin = fn }

// OnPresenceLeave registers the callback invoked when a key disappears.
func (c *Client) OnPresenceLeave(fn func(key string, leftPresences []Presence)) { c.onLeave = fn }

// OnBroadcast registers a handler for one named broadcast event.
func (c *Client) OnBroadcast(event string, fn func(Envelope)) {
	c.onBroadcastMu.Lock()
	c.onBroadcast[event] = fn
	c.onBroadcastMu.Unlock()
}

// Subscribe starts the background receive loop. onStatus is invoked once:
// with StatusError if the underlying pub/sub subscription fails within
// 150ms, otherwise with StatusSubscribed once those 150ms pass. A failure
// after that point is not reported through onStatus.
func (c *Client) Subscribe(ctx context.Context, onStatus func(SubscribeStatus, error)) error {
	subCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	errCh := make(chan error, 1)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		err := c.pub.Subscribe(subCtx, channelKey(c.name), c.handle)
		if err != nil && subCtx.Err() == nil {
			select {
			case errCh <- err:
			default:
			}
		}
	}()

	select {
	case err := <-errCh:
		onStatus(StatusError, err)
		return err
	case <-time.After(150 * time.Millisecond):
		onStatus(StatusSubscribed, nil)
		return nil
	}
}

func (c *Client) handle(msg wireMessage) {
	switch msg.Kind {
	case wireTrack:
		if msg.Presence == nil {
			return
		}
		c.mu.Lock()
		_, existed := c.presence[msg.Key]
		c.presence[msg.Key] = []Presence{*msg.Presence}
		c.mu.Unlock()
		if !existed && c.onJoin != nil {
			c.onJoin(msg.Key, []Presence{*msg.Presence})
		}
		if c.onSync != nil {
			c.onSync()
		}
	case wireLeave:
		c.mu.Lock()
		left, existed := c.presence[msg.Key]
		delete(c.presence, msg.Key)
		c.mu.Unlock()
		if existed && c.onLeave != nil {
			c.onLeave(msg.Key, left)
		}
		if c.onSync != nil {
			c.onSync()
		}
	case wireBroadcast:
		if msg.Envelope == nil {
			return
		}
		c.onBroadcastMu.RLock()
		fn := c.onBroadcast[msg.Event]
		c.onBroadcastMu.RUnlock()
		if fn != nil {
			fn(*msg.Envelope)
		}
	}
}

// Track publishes (and locally reflects) a presence update for this
// client's presence key.
func (c *Client) Track(ctx context.Context, p Presence) error {
	return c.pub.Publish(ctx, channelKey(c.name), wireMessage{Kind: wireTrack, Key: c.presenceKey, Presence: &p})
}

// SendBroadcast publishes a broadcast event on this channel.
func (c *Client) SendBroadcast(ctx context.Context, event string, env Envelope) error {
	return c.pub.Publish(ctx, channelKey(c.name), wireMessage{Kind: wireBroadcast, Event: event, Envelope: &env})
}

// PresenceState returns a snapshot of the channel's current presence map.
func (c *Client) PresenceState() map[string][]Presence {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string][]Presence, len(c.presence))
	for k, v := range c.presence {
		out[k] = append([]Presence(nil), v...)
	}
	return out
}

// Unsubscribe announces a presence leave, stops the receive loop, and
// waits for it to exit.
func (c *Client) Unsubscribe(ctx context.Context) error {
	err := c.pub.Publish(ctx, channelKey(c.name), wireMessage{Kind: wireLeave, Key: c.presenceKey})
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return err
}

func channelKey(name string) string {
	return "sclog:realtime:" + name
}
