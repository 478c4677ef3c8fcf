package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishJSONReachesSubscribers(t *testing.T) {
	bus := NewEventBus()

	var got []*Event
	bus.Subscribe(EventPaymentSucceeded, func(e *Event) error {
		got = append(got, e)
		return nil
	})

	payload := PaymentEventPayload{SessionID: "s1", BookingID: 42, Amount: 1500, PollCount: 2}
	require.NoError(t, bus.PublishJSON(EventPaymentSucceeded, payload))

	require.Len(t, got, 1)
	var decoded PaymentEventPayload
	require.NoError(t, json.Unmarshal(got[0].Payload, &decoded))
	assert.Equal(t, payload, decoded)
	assert.False(t, got[0].CreatedAt.IsZero())
}

func TestPublishSkipsOtherEventTypes(t *testing.T) {
	bus := NewEventBus()

	calls := 0
	bus.Subscribe(EventPaymentFailed, func(e *Event) error {
		calls++
		return nil
	})

	require.NoError(t, bus.PublishJSON(EventPaymentSucceeded, PaymentEventPayload{SessionID: "s1"}))
	assert.Zero(t, calls)
}

func TestNilBusIsSafe(t *testing.T) {
	var bus *EventBus
	assert.NoError(t, bus.PublishJSON(EventBookingCreated, BookingEventPayload{}))
}
