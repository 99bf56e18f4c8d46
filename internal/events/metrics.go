package events

import (
	"encoding/json"

	"hotelbook/internal/metrics"
)

// AttachMetrics counts booking status changes seen on bus.
func AttachMetrics(bus *EventBus) {
	bus.SubscribeAll(func(event *Event) error {
		if event.Type == EventPaymentConfirmed {
			return nil
		}
		var payload BookingEventPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return err
		}
		metrics.IncTransition(payload.Status)
		return nil
	})
}
