package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscriptionAddIsIdempotent(t *testing.T) {
	x := newSubscriptionIndex()

	x.Add("v1", "web1")
	x.Add("v1", "web1")

	assert.Len(t, x.Subscribers("web1"), 1)
}

// P1: removing an absent pair changes nothing.
func TestSubscriptionRemoveUnknownIsNoop(t *testing.T) {
	x := newSubscriptionIndex()

	x.Add("v1", "web1")
	x.Remove("v2", "web1")
	x.Remove("v1", "other")

	assert.Len(t, x.Subscribers("web1"), 1)
	assert.Equal(t, 1, x.Len())
}

func TestSubscriptionPrunesEmptyKeys(t *testing.T) {
	x := newSubscriptionIndex()

	x.Add("v1", "web1")
	x.Add("v2", "web1")
	x.Remove("v1", "web1")
	assert.Equal(t, 1, x.Len())

	x.Remove("v2", "web1")
	assert.Zero(t, x.Len())
}

func TestSubscribersNeverNil(t *testing.T) {
	x := newSubscriptionIndex()

	set := x.Subscribers("ghost")
	assert.NotNil(t, set)
	assert.Empty(t, set)
}

// P2: the index and the per-viewer sets stay mirror images through a
// realistic subscribe/unsubscribe sequence.
func TestSubscriptionInvariantThroughRelay(t *testing.T) {
	rl := newTestRelay(t)

	v1 := rl.CreateViewer(&fakeConn{}, "x")
	v2 := rl.CreateViewer(&fakeConn{}, "x")

	rl.Subscribe(v1.ID, "web1")
	rl.Subscribe(v1.ID, "web2")
	rl.Subscribe(v2.ID, "web1")
	rl.Unsubscribe(v1.ID, "web1")

	rl.mu.RLock()
	defer rl.mu.RUnlock()

	for id, v := range rl.viewers {
		for key := range v.Subscribed {
			_, ok := rl.subs.Subscribers(key)[id]
			assert.True(t, ok, "viewer %s missing from index for %s", id, key)
		}
	}
	for key, set := range rl.subs.byKey {
		for id := range set {
			_, ok := rl.viewers[id].Subscribed[key]
			assert.True(t, ok, "index has %s under %s but viewer does not", id, key)
		}
	}
}
