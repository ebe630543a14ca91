// Package profile implements opportunistic peer-profile enrichment: a
// singleflight-deduplicated cache keyed by canonical player name, layered
// with first-seen-broadcast-once semantics, grounded on
// original_source/src/log_analyzer.py's ProfileCache usage
// (add_profile/store_profile, the actor_profile bus event, and the
// force_broadcast_profile handler) per SPEC_FULL.md §5.6.
package profile

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ijol/sclog-core/internal/bus"
	"github.com/ijol/sclog-core/pkg/cache"
	"github.com/ijol/sclog-core/pkg/logging"
)

// Entry is one cached player profile record.
type Entry struct {
	PlayerName  string
	ProfileData map[string]string
	SourceType  string // automatic | manual
	Origin      string
	RequestedBy string
	SourceUser  string
	CacheTime   time.Time
}

// Fetcher performs the actual out-of-process profile lookup. The real
// scraper is a third-party collaborator explicitly out of this repo's
// scope; Fetcher is the seam a caller wires a concrete implementation
// into.
type Fetcher interface {
	Fetch(ctx context.Context, player string) (org, enlisted string, err error)
}

// Broadcaster ships a freshly-enriched profile out over the realtime
// bridge. *realtime.Bridge satisfies this (it already satisfies the
// identically-shaped tailer.Broadcaster).
type Broadcaster interface {
	Broadcast(patternName string, data map[string]string)
}

const (
	defaultTTL    = 30 * time.Minute
	defaultSWR    = 5 * time.Minute
	defaultNegTTL = time.Minute
	defaultMax    = 2000
)

// Manager owns the profile cache, the scrape-trigger path
// (tailer.Scraper), and the broadcast-once-per-first-seen bookkeeping.
type Manager struct {
	bus         *bus.Bus
	cache       *cache.Cache
	fetcher     Fetcher
	broadcaster Broadcaster
	usernameFn  func() string
	logger      logging.Logger

	mu          sync.Mutex
	broadcasted map[string]bool
}

// New constructs a Manager and subscribes it to force_broadcast_profile.
// usernameFn supplies the locally-tracked username used to stamp
// requested_by/source_user on freshly-scraped entries.
func New(b *bus.Bus, fetcher Fetcher, broadcaster Broadcaster, usernameFn func() string, logger logging.Logger) *Manager {
	m := &Manager{
		bus: b,
		cache: cache.New(cache.Options{
			TTL:                  defaultTTL,
			StaleWhileRevalidate: defaultSWR,
			NegativeTTL:          defaultNegTTL,
			MaxEntries:           defaultMax,
		}, cache.MetricsHooks{}),
		fetcher:     fetcher,
		broadcaster: broadcaster,
		usernameFn:  usernameFn,
		logger:      logger,
		broadcasted: make(map[string]bool),
	}
	b.On("force_broadcast_profile", m.onForceBroadcast)
	return m
}

// RequestProfile implements tailer.Scraper: it triggers asynchronous
// enrichment for player and returns immediately. origin is "automatic"
// (pattern-triggered) or "manual" (a user-initiated "get").
func (m *Manager) RequestProfile(player, origin string) {
	if player == "" || player == "Unknown" {
		return
	}
	go m.scrape(context.Background(), player, origin)
}

func (m *Manager) scrape(ctx context.Context, player, origin string) {
	if m.fetcher == nil {
		return
	}
	sourceType := "automatic"
	if origin == "manual" {
		sourceType = "manual"
	}
	who := m.currentUsername()

	val, _, err := m.cache.Get(ctx, canonicalName(player), func(ctx context.Context, key string) (interface{}, bool, error) {
		org, enlisted, ferr := m.fetcher.Fetch(ctx, player)
		if ferr != nil {
			return nil, false, ferr
		}
		return Entry{
			PlayerName:  player,
			ProfileData: map[string]string{"org": org, "enlisted": enlisted},
			SourceType:  sourceType,
			Origin:      origin,
			RequestedBy: who,
			SourceUser:  who,
			CacheTime:   time.Now(),
		}, true, nil
	})
	if err != nil {
		m.bus.Publish(bus.Message{
			Content:  fmt.Sprintf("Error scraping profile for %s: %v", player, err),
			Level:    bus.Warning,
			Metadata: map[string]interface{}{"source": "profile"},
		})
		return
	}
	entry, ok := val.(Entry)
	if !ok {
		return
	}
	m.deliver(entry, origin)
}

// deliver emits actor_profile locally and, for automatic origin only,
// broadcasts the entry the first time this player name is seen.
func (m *Manager) deliver(entry Entry, origin string) {
	m.bus.Emit("actor_profile", entry.PlayerName, entry.ProfileData["org"], entry.ProfileData["enlisted"], map[string]interface{}{
		"origin":       origin,
		"source_type":  entry.SourceType,
		"requested_by": entry.RequestedBy,
	})
	m.bus.Emit("profile_cached", entry.PlayerName, entry.ProfileData)

	if origin != "automatic" {
		return
	}

	key := canonicalName(entry.PlayerName)
	m.mu.Lock()
	already := m.broadcasted[key]
	if !already {
		m.broadcasted[key] = true
	}
	m.mu.Unlock()
	if already {
		return
	}
	m.broadcastEntry(entry)
}

func (m *Manager) broadcastEntry(entry Entry) {
	if m.broadcaster == nil {
		return
	}
	m.broadcaster.Broadcast("actor_profile", map[string]string{
		"player_name": entry.PlayerName,
		"org":         entry.ProfileData["org"],
		"enlisted":    entry.ProfileData["enlisted"],
		"content":     fmt.Sprintf("Profile for %s", entry.PlayerName),
	})
}

// onForceBroadcast handles force_broadcast_profile(player_name, profile_data):
// rebroadcasts regardless of the first-seen cache state, and never emits a
// local notification side effect.
func (m *Manager) onForceBroadcast(args ...interface{}) {
	if len(args) < 2 {
		return
	}
	player, _ := args[0].(string)
	if player == "" {
		return
	}
	data, _ := args[1].(map[string]string)
	if data == nil {
		if raw, ok := args[1].(map[string]interface{}); ok {
			data = make(map[string]string, len(raw))
			for k, v := range raw {
				data[k] = fmt.Sprint(v)
			}
		}
	}

	m.mu.Lock()
	m.broadcasted[canonicalName(player)] = true
	m.mu.Unlock()

	go m.broadcastEntry(Entry{PlayerName: player, ProfileData: data})
}

// Peek returns a cached entry without triggering a fetch, for read-only
// callers (e.g. a UI widget or a test).
func (m *Manager) Peek(player string) (Entry, bool) {
	val, ok := m.cache.Peek(canonicalName(player))
	if !ok {
		return Entry{}, false
	}
	entry, ok := val.(Entry)
	return entry, ok
}

func (m *Manager) currentUsername() string {
	if m.usernameFn == nil {
		return ""
	}
	return m.usernameFn()
}

func canonicalName(player string) string {
	return strings.ToLower(strings.TrimSpace(player))
}
