package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesProjectAndWildcardSubscribers(t *testing.T) {
	b := NewBus()
	proj, unsubProj := b.Subscribe("/a")
	defer unsubProj()
	other, unsubOther := b.Subscribe("/b")
	defer unsubOther()
	all, unsubAll := b.Subscribe(All)
	defer unsubAll()

	b.Publish("/a", PreviewStarted, map[string]any{"key": "/a/main.typ"})

	require.Len(t, proj, 1)
	require.Len(t, all, 1)
	assert.Len(t, other, 0)
	evt := <-proj
	assert.Equal(t, PreviewStarted, evt.Method)
	assert.Equal(t, "2.0", evt.JSONRPC)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe("/a")
	unsub()
	_, ok := <-ch
	assert.False(t, ok)
	b.Publish("/a", PreviewStopped, nil)
}

func TestPublishDropsWhenSubscriberIsFull(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe("/a")
	defer unsub()
	for i := 0; i < cap(ch)+10; i++ {
		b.Publish("/a", PreviewStarted, i)
	}
	assert.Len(t, ch, cap(ch))
}
