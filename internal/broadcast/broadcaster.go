// Package broadcast provides an in-process change notification fan-out.
package broadcast

import (
	"sync"

	"github.com/raid-tracker/internal/logging"
)

// Channel names a logical notification channel
type Channel string

const (
	// ChannelProcessing signals that some character's processing state changed
	ChannelProcessing Channel = "processing"
	// ChannelQueue signals, per requesting user, that their queued items changed
	ChannelQueue Channel = "queue"
)

// GlobalKey is the key used by channels that are not partitioned
const GlobalKey = ""

// Listener is invoked synchronously on publish
type Listener func()

type subscription struct {
	id int
	fn Listener
}

// Broadcaster delivers publishes to currently registered listeners.
// There is no buffering or replay: a listener registered after a publish misses it.
type Broadcaster struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[Channel]map[string][]subscription
	logger    *logging.Logger
}

// NewBroadcaster creates an empty broadcaster
func NewBroadcaster(logger *logging.Logger) *Broadcaster {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Broadcaster{
		listeners: make(map[Channel]map[string][]subscription),
		logger:    logger,
	}
}

// Subscribe registers fn for the channel and key and returns its unsubscribe func
func (b *Broadcaster) Subscribe(channel Channel, key string, fn Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	if b.listeners[channel] == nil {
		b.listeners[channel] = make(map[string][]subscription)
	}
	b.listeners[channel][key] = append(b.listeners[channel][key], subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(channel, key, id) })
	}
}

func (b *Broadcaster) remove(channel Channel, key string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.listeners[channel][key]
	for i, s := range subs {
		if s.id == id {
			b.listeners[channel][key] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.listeners[channel][key]) == 0 {
		delete(b.listeners[channel], key)
	}
}

// Publish invokes every listener registered for the channel and key.
// A panicking listener is logged and does not stop the others.
func (b *Broadcaster) Publish(channel Channel, key string) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.listeners[channel][key]...)
	b.mu.RUnlock()

	for _, s := range subs {
		b.invoke(channel, key, s.fn)
	}
}

func (b *Broadcaster) invoke(channel Channel, key string, fn Listener) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithFields(map[string]interface{}{
				"channel": string(channel),
				"key":     key,
				"panic":   r,
			}).Error("Broadcast listener failed")
		}
	}()
	fn()
}

// ListenerCount returns the number of listeners for the channel and key
func (b *Broadcaster) ListenerCount(channel Channel, key string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[channel][key])
}
