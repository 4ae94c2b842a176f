package view

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublish_EpochIncreasesForEqualValues(t *testing.T) {
	b := NewBroker()

	e1 := b.Publish("k", "same")
	e2 := b.Publish("k", "same")
	assert.Greater(t, e2, e1)

	u, ok := b.Latest("k")
	require.True(t, ok)
	assert.Equal(t, e2, u.Epoch)
	assert.Equal(t, "same", u.Value)

	_, ok = b.Latest("missing")
	assert.False(t, ok)
}

func TestSubscribe_FiltersKeys(t *testing.T) {
	b := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := b.Subscribe(ctx, "spaces")
	b.Publish("active-document", 1)
	epoch := b.Publish("spaces", 2)

	select {
	case u := <-ch:
		assert.Equal(t, "spaces", u.Key)
		assert.Equal(t, epoch, u.Epoch)
		assert.Equal(t, "spaces@2", u.String())
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}
}

func TestSubscribe_SlowSubscriberKeepsNewest(t *testing.T) {
	b := NewBroker()
	b.buffer = 1
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := b.Subscribe(ctx)
	b.Publish("k", 1)
	last := b.Publish("k", 2)

	u := <-ch
	assert.Equal(t, last, u.Epoch)
}

func TestSubscribe_ClosedOnCancel(t *testing.T) {
	b := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	ch := b.Subscribe(ctx)
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, b.State().(BrokerState).Subscribers)
}
