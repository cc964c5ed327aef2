package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublish_RegistrationOrder(t *testing.T) {
	b := New(nil)

	var order []int
	b.Subscribe("cve_updated", func(Event) { order = append(order, 1) })
	b.Subscribe("cve_updated", func(Event) { order = append(order, 2) })
	b.Subscribe("cve_updated", func(Event) { order = append(order, 3) })

	b.Publish("cve_updated", nil)

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestPublish_WildcardReceivesAll(t *testing.T) {
	b := New(nil)

	var typed, all int
	b.Subscribe("cve_updated", func(Event) { typed++ })
	b.Subscribe(Wildcard, func(Event) { all++ })

	b.Publish("cve_updated", nil)
	b.Publish("comment_added", nil)

	assert.Equal(t, 1, typed)
	assert.Equal(t, 2, all, "wildcard handler should see every event")
}

func TestPublish_EventPayload(t *testing.T) {
	b := New(nil)

	var got Event
	b.Subscribe("stateChanged", func(evt Event) { got = evt })

	b.Publish("stateChanged", "payload")

	assert.Equal(t, "stateChanged", got.Type)
	assert.Equal(t, "payload", got.Data)
}

func TestUnsubscribe(t *testing.T) {
	b := New(nil)

	var calls int
	unsub := b.Subscribe("cve_updated", func(Event) { calls++ })

	b.Publish("cve_updated", nil)
	unsub()
	b.Publish("cve_updated", nil)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, b.HandlerCount("cve_updated"))

	// Double unsubscribe is a no-op.
	unsub()
}

func TestUnsubscribe_SelfDuringDispatch(t *testing.T) {
	b := New(nil)

	var first, second, third int
	b.Subscribe("evt", func(Event) { first++ })

	var unsub func()
	unsub = b.Subscribe("evt", func(Event) {
		second++
		unsub()
	})
	b.Subscribe("evt", func(Event) { third++ })

	b.Publish("evt", nil)
	b.Publish("evt", nil)

	assert.Equal(t, 2, first)
	assert.Equal(t, 1, second, "self-unsubscribed handler must not run again")
	assert.Equal(t, 2, third, "later handlers still run in the dispatch that unsubscribed")
}

func TestUnsubscribe_OtherDuringDispatch(t *testing.T) {
	b := New(nil)

	var victim int
	unsubVictim := b.Subscribe("evt", func(Event) { victim++ })

	require.NotNil(t, unsubVictim)
	b.Subscribe("evt", func(Event) { unsubVictim() })

	b.Publish("evt", nil)
	b.Publish("evt", nil)

	// The victim ran in the first dispatch (snapshot taken before dispatch),
	// then never again.
	assert.Equal(t, 1, victim)
}

func TestSubscribe_NilHandler(t *testing.T) {
	b := New(nil)

	unsub := b.Subscribe("evt", nil)
	require.NotNil(t, unsub)
	unsub()

	// Publishing with no handlers must not panic.
	b.Publish("evt", nil)
}
