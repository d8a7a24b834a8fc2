package main

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewEventBus()
	ch1, cancel1 := bus.Subscribe()
	defer cancel1()
	ch2, cancel2 := bus.Subscribe()
	defer cancel2()

	bus.Publish(Event{Type: eventTaskStatusChanged, TaskID: 42})

	for _, ch := range []chan []byte{ch1, ch2} {
		select {
		case msg := <-ch:
			var ev Event
			assert.NoError(t, json.Unmarshal(msg, &ev))
			assert.Equal(t, eventTaskStatusChanged, ev.Type)
			assert.Equal(t, int64(42), ev.TaskID)
		case <-time.After(time.Second):
			t.Fatal("no event delivered")
		}
	}
}

func TestEventBusDropsWhenSubscriberIsSlow(t *testing.T) {
	bus := NewEventBus()
	ch, cancel := bus.Subscribe()
	defer cancel()

	// channel buffer is 16; the surplus must be dropped, not block
	for i := 0; i < 40; i++ {
		bus.Publish(Event{Type: eventTaskStatusChanged, TaskID: int64(i)})
	}
	assert.Equal(t, 16, len(ch))
}

func TestEventBusCancelStopsDelivery(t *testing.T) {
	bus := NewEventBus()
	ch, cancel := bus.Subscribe()
	cancel()

	bus.Publish(Event{Type: eventTaskStatusChanged, TaskID: 1})

	_, open := <-ch
	assert.False(t, open, "channel should be closed after cancel")
}
