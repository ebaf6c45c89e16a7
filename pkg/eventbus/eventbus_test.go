package eventbus

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type createdEvent struct {
	ID string
}

type destroyedEvent struct {
	ID string
}

func TestEventBus_PublishReachesMatchingSubscriber(t *testing.T) {
	bus := NewEventPublisher(logrus.New())

	var got []string
	bus.Subscribe(func(e createdEvent) {
		got = append(got, e.ID)
	})

	bus.Publish(createdEvent{ID: "a"})
	bus.Publish(destroyedEvent{ID: "ignored"})
	bus.Publish(createdEvent{ID: "b"})

	require.Equal(t, []string{"a", "b"}, got)
}

func TestEventBus_PanickingHandlerDoesNotPoisonBus(t *testing.T) {
	bus := NewEventPublisher(logrus.New())

	calls := 0
	bus.Subscribe(func(e createdEvent) {
		panic("boom")
	})
	bus.Subscribe(func(e createdEvent) {
		calls++
	})

	require.NotPanics(t, func() {
		bus.Publish(createdEvent{ID: "a"})
	})
	require.Equal(t, 1, calls)
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventPublisher(logrus.New())

	calls := 0
	handler := func(e createdEvent) { calls++ }
	bus.Subscribe(handler)
	require.Equal(t, 1, bus.SubscribersCount())

	bus.Publish(createdEvent{})
	bus.Unsubscribe(handler)
	require.Equal(t, 0, bus.SubscribersCount())

	bus.Publish(createdEvent{})
	require.Equal(t, 1, calls)
}

func TestMatchSignature(t *testing.T) {
	require.True(t, MatchSignature(func(e createdEvent) {}, []interface{}{createdEvent{}}))
	require.False(t, MatchSignature(func(e createdEvent) {}, []interface{}{destroyedEvent{}}))
	require.False(t, MatchSignature("not a func", []interface{}{createdEvent{}}))
	require.False(t, MatchSignature(func(a, b createdEvent) {}, []interface{}{createdEvent{}}))
}
