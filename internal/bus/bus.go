package bus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ijol/sclog-core/pkg/logging"
)

type subscriber struct {
	name     string
	callback MessageCallback
	filters  Filters
}

type eventSub struct {
	id        string
	eventName string
	callback  EventCallback
}

// Bus is a process-wide pub/sub fabric. All mutation and delivery runs on a
// single worker goroutine fed by an unbounded FIFO queue, so publish order
// is preserved per subscriber and subscriber panics never affect delivery
// to other subscribers.
type Bus struct {
	logger logging.Logger

	q       *taskQueue
	wg      sync.WaitGroup
	running atomic.Bool
	debug   atomic.Bool

	mu        sync.Mutex
	subs      map[string]*subscriber
	eventSubs map[string]*eventSub

	histMu  sync.Mutex
	history *historyRing
}

// New constructs a Bus. historyCap <= 0 defaults to 10000.
func New(logger logging.Logger, historyCap int) *Bus {
	return &Bus{
		logger:    logger,
		q:         newTaskQueue(),
		subs:      make(map[string]*subscriber),
		eventSubs: make(map[string]*eventSub),
		history:   newHistoryRing(historyCap),
	}
}

// Start launches the worker goroutine. Safe to call once.
func (b *Bus) Start() {
	if !b.running.CompareAndSwap(false, true) {
		return
	}
	b.wg.Add(1)
	go b.run()
}

// Stop drains in-flight work and halts the worker. At most one in-flight
// callback remains outstanding when Stop returns.
func (b *Bus) Stop() {
	if !b.running.CompareAndSwap(true, false) {
		return
	}
	b.q.close()
	b.wg.Wait()
}

func (b *Bus) run() {
	defer b.wg.Done()
	for {
		task, ok := b.q.pop()
		if !ok {
			return
		}
		b.runTaskSafely(task)
	}
}

func (b *Bus) runTaskSafely(task func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithFields(logging.Fields{"component": "bus", "panic": r}).Error("bus worker task panicked")
		}
	}()
	task()
}

// Publish enqueues a Message for delivery. Returns immediately.
func (b *Bus) Publish(m Message) {
	if m.Level.String() == "UNKNOWN" {
		m.Level = Info
	}
	if m.Timestamp == "" {
		m.Timestamp = time.Now().Format(time.RFC3339)
	}
	if m.CreationTime.IsZero() {
		m.CreationTime = time.Now()
	}
	if !b.running.Load() {
		b.logger.WithFields(logging.Fields{"component": "bus"}).Warn("publish dropped: bus not running")
		return
	}
	b.q.push(func() {
		b.histMu.Lock()
		b.history.push(m)
		b.histMu.Unlock()

		b.mu.Lock()
		snapshot := make([]*subscriber, 0, len(b.subs))
		for _, s := range b.subs {
			snapshot = append(snapshot, s)
		}
		b.mu.Unlock()

		for _, s := range snapshot {
			b.deliver(s, m)
		}
	})
}

func (b *Bus) deliver(s *subscriber, m Message) {
	if s.filters != nil && !s.filters.matches(m) {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithFields(logging.Fields{
				"component":  "bus",
				"subscriber": s.name,
				"panic":      r,
			}).Error("subscriber callback panicked")
		}
	}()
	s.callback(m)
}

// Subscribe registers name → callback, replacing any prior subscription
// under that name. If opts.ReplayHistory, the matching historical tail is
// delivered atomically before any subsequently published message.
func (b *Bus) Subscribe(name string, callback MessageCallback, filters Filters, opts SubscribeOptions) string {
	done := make(chan struct{})
	b.q.push(func() {
		defer close(done)
		s := &subscriber{name: name, callback: callback, filters: filters}

		if opts.ReplayHistory {
			b.histMu.Lock()
			tail := b.history.filtered(opts.MinReplayLevel, "", filters, opts.MaxReplayMessages)
			b.histMu.Unlock()
			for _, m := range tail {
				b.deliver(s, m)
			}
		}

		b.mu.Lock()
		b.subs[name] = s
		b.mu.Unlock()
	})
	<-done
	return name
}

// Unsubscribe removes a subscription. After this returns, no message
// published after the call is delivered to name.
func (b *Bus) Unsubscribe(name string) {
	done := make(chan struct{})
	b.q.push(func() {
		defer close(done)
		b.mu.Lock()
		delete(b.subs, name)
		b.mu.Unlock()
	})
	<-done
}

// SetFilter sets a single filter key for an existing subscription.
func (b *Bus) SetFilter(name, key string, value interface{}) {
	done := make(chan struct{})
	b.q.push(func() {
		defer close(done)
		b.mu.Lock()
		defer b.mu.Unlock()
		s, ok := b.subs[name]
		if !ok {
			return
		}
		if s.filters == nil {
			s.filters = Filters{}
		}
		s.filters[key] = value
	})
	<-done
}

// GetFilter reads a single filter key for an existing subscription.
func (b *Bus) GetFilter(name, key string) (interface{}, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.subs[name]
	if !ok || s.filters == nil {
		return nil, false
	}
	v, ok := s.filters[key]
	return v, ok
}

// On registers a named-event listener and returns a subscription id.
func (b *Bus) On(eventName string, callback EventCallback) string {
	id := uuid.NewString()
	done := make(chan struct{})
	b.q.push(func() {
		defer close(done)
		b.mu.Lock()
		b.eventSubs[id] = &eventSub{id: id, eventName: eventName, callback: callback}
		b.mu.Unlock()
	})
	<-done
	return id
}

// Off removes a named-event listener by subscription id.
func (b *Bus) Off(subscriptionID string) {
	done := make(chan struct{})
	b.q.push(func() {
		defer close(done)
		b.mu.Lock()
		delete(b.eventSubs, subscriptionID)
		b.mu.Unlock()
	})
	<-done
}

// Emit publishes a named event to all matching listeners. Returns immediately.
func (b *Bus) Emit(eventName string, args ...interface{}) {
	if !b.running.Load() {
		b.logger.WithFields(logging.Fields{"component": "bus"}).Warn("emit dropped: bus not running")
		return
	}
	b.q.push(func() {
		b.mu.Lock()
		matched := make([]*eventSub, 0)
		for _, es := range b.eventSubs {
			if es.eventName == eventName {
				matched = append(matched, es)
			}
		}
		b.mu.Unlock()

		for _, es := range matched {
			b.invokeEvent(es, args)
		}
	})
}

func (b *Bus) invokeEvent(es *eventSub, args []interface{}) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithFields(logging.Fields{
				"component": "bus",
				"event":     es.eventName,
				"panic":     r,
			}).Error("event callback panicked")
		}
	}()
	es.callback(args...)
}

// GetHistory returns a filtered snapshot of history. maxMessages <= 0 means
// unlimited, patternName == "" means unfiltered by pattern.
func (b *Bus) GetHistory(maxMessages int, minLevel Level, patternName string) []Message {
	b.histMu.Lock()
	defer b.histMu.Unlock()
	return b.history.filtered(minLevel, patternName, nil, maxMessages)
}

// SetDebugMode toggles the process-wide debug hint.
func (b *Bus) SetDebugMode(v bool) { b.debug.Store(v) }

// IsDebugMode reads the process-wide debug hint.
func (b *Bus) IsDebugMode() bool { return b.debug.Load() }
