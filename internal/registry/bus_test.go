package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawdesk/clawbench/internal/domain"
)

func TestEventBusBroadcastFanOut(t *testing.T) {
	b := newEventBus(0)
	a := b.subscribe("a")
	c := b.subscribe("b")

	b.broadcast(domain.Event{Kind: domain.EventChunk, Text: "hi"})

	select {
	case ev := <-a:
		assert.Equal(t, "hi", ev.Text)
	default:
		t.Fatal("subscriber a got nothing")
	}
	select {
	case ev := <-c:
		assert.Equal(t, "hi", ev.Text)
	default:
		t.Fatal("subscriber b got nothing")
	}
}

func TestEventBusUnsubscribeClosesChannel(t *testing.T) {
	b := newEventBus(0)
	ch := b.subscribe("a")
	b.unsubscribe("a")

	_, open := <-ch
	assert.False(t, open)
}

func TestEventBusDropsWhenSubscriberFull(t *testing.T) {
	b := newEventBus(0)
	ch := b.subscribe("a")

	for i := 0; i < defaultSubscriberBuffer+10; i++ {
		b.broadcast(domain.Event{Kind: domain.EventChunk})
	}

	// must not have blocked; channel is simply full/truncated
	assert.Len(t, ch, defaultSubscriberBuffer)
}

func TestEventBusCloseAll(t *testing.T) {
	b := newEventBus(0)
	ch := b.subscribe("a")
	b.closeAll()

	_, open := <-ch
	require.False(t, open)
}
