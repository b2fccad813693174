package playback

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// subscriberList is a bounded callback registry. Exceeding the cap evicts
// the oldest subscription with a warning instead of growing without bound,
// which catches screens that leak their subscriptions.
type subscriberList struct {
	mu   sync.Mutex
	max  int
	log  zerolog.Logger
	subs []subscriber
}

type subscriber struct {
	id string
	fn func(Snapshot)
}

func newSubscriberList(max int, log zerolog.Logger) *subscriberList {
	return &subscriberList{max: max, log: log}
}

// add registers a callback and returns its unsubscribe function.
func (l *subscriberList) add(fn func(Snapshot)) func() {
	l.mu.Lock()
	id := uuid.NewString()
	l.subs = append(l.subs, subscriber{id: id, fn: fn})
	var evicted string
	if len(l.subs) > l.max {
		evicted = l.subs[0].id
		l.subs = l.subs[1:]
	}
	l.mu.Unlock()

	if evicted != "" {
		l.log.Warn().
			Int("max", l.max).
			Str("subscription", evicted).
			Msg("subscriber cap exceeded, evicting oldest")
	}
	return func() { l.remove(id) }
}

func (l *subscriberList) remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, s := range l.subs {
		if s.id == id {
			l.subs = append(l.subs[:i], l.subs[i+1:]...)
			return
		}
	}
}

func (l *subscriberList) clear() {
	l.mu.Lock()
	l.subs = nil
	l.mu.Unlock()
}

func (l *subscriberList) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}

// deliver invokes every subscriber with the same snapshot, in subscription
// order. A panicking subscriber is logged and skipped; the rest still get
// the snapshot.
func (l *subscriberList) deliver(snap Snapshot) {
	l.mu.Lock()
	subs := make([]subscriber, len(l.subs))
	copy(subs, l.subs)
	l.mu.Unlock()

	for _, s := range subs {
		l.call(s, snap)
	}
}

func (l *subscriberList) call(s subscriber, snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().
				Interface("panic", r).
				Str("subscription", s.id).
				Msg("subscriber panicked during notification")
		}
	}()
	s.fn(snap)
}
