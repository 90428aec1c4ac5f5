package broadcast

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/raid-tracker/internal/logging"
)

func TestPublishInvokesListeners(t *testing.T) {
	b := NewBroadcaster(logging.NewNopLogger())

	var a, c int
	b.Subscribe(ChannelProcessing, GlobalKey, func() { a++ })
	b.Subscribe(ChannelProcessing, GlobalKey, func() { c++ })

	b.Publish(ChannelProcessing, GlobalKey)
	b.Publish(ChannelProcessing, GlobalKey)

	assert.Equal(t, 2, a)
	assert.Equal(t, 2, c)
}

func TestChannelsAndKeysAreIndependent(t *testing.T) {
	b := NewBroadcaster(logging.NewNopLogger())

	var processing, alice, bob int
	b.Subscribe(ChannelProcessing, GlobalKey, func() { processing++ })
	b.Subscribe(ChannelQueue, "alice", func() { alice++ })
	b.Subscribe(ChannelQueue, "bob", func() { bob++ })

	b.Publish(ChannelQueue, "alice")

	assert.Equal(t, 0, processing)
	assert.Equal(t, 1, alice)
	assert.Equal(t, 0, bob)
}

func TestUnsubscribe(t *testing.T) {
	b := NewBroadcaster(logging.NewNopLogger())

	var calls int
	unsubscribe := b.Subscribe(ChannelProcessing, GlobalKey, func() { calls++ })
	keep := b.Subscribe(ChannelProcessing, GlobalKey, func() {})
	defer keep()

	unsubscribe()
	unsubscribe()
	b.Publish(ChannelProcessing, GlobalKey)

	assert.Equal(t, 0, calls)
	assert.Equal(t, 1, b.ListenerCount(ChannelProcessing, GlobalKey))
}

func TestNoReplay(t *testing.T) {
	b := NewBroadcaster(logging.NewNopLogger())
	b.Publish(ChannelProcessing, GlobalKey)

	var calls int
	b.Subscribe(ChannelProcessing, GlobalKey, func() { calls++ })
	assert.Equal(t, 0, calls)
}

func TestPanickingListenerDoesNotBlockOthers(t *testing.T) {
	b := NewBroadcaster(logging.NewNopLogger())

	var after int
	b.Subscribe(ChannelProcessing, GlobalKey, func() { panic("listener broke") })
	b.Subscribe(ChannelProcessing, GlobalKey, func() { after++ })

	assert.NotPanics(t, func() { b.Publish(ChannelProcessing, GlobalKey) })
	assert.Equal(t, 1, after)
}

func TestListenerMayUnsubscribeDuringPublish(t *testing.T) {
	b := NewBroadcaster(logging.NewNopLogger())

	var unsubscribe func()
	var calls int
	unsubscribe = b.Subscribe(ChannelProcessing, GlobalKey, func() {
		calls++
		unsubscribe()
	})

	b.Publish(ChannelProcessing, GlobalKey)
	b.Publish(ChannelProcessing, GlobalKey)
	assert.Equal(t, 1, calls)
}
