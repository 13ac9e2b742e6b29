// Package eventbus mirrors settled controller events onto NATS subjects for
// any external subscriber (dashboard, test harness, another service).
// Grounded on internal/server/nats_subscriber.go's subscribe/publish subject
// pattern, repurposed from persisted event-log rows to an in-process
// controller.Event fan-out.
package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/lorawan-server/lorawan-enddevice/internal/controller"
)

// Bus publishes controller events and link-check results onto NATS.
type Bus struct {
	nc *nats.Conn
}

// New dials the given NATS URL. Pass "" to use nats.DefaultURL, matching
// the teacher's connection pattern.
func New(url string) (*Bus, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url, nats.Name("lorawan-enddevice"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Bus{nc: nc}, nil
}

// Close drains and closes the underlying NATS connection.
func (b *Bus) Close() {
	if err := b.nc.Drain(); err != nil {
		log.Warn().Err(err).Msg("eventbus: drain failed")
	}
}

// eventMessage is the wire shape published to device.<devEUI>.event.
type eventMessage struct {
	DevEUI    string      `json:"devEUI"`
	Event     string      `json:"event"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Attach registers a controller.EventCallback and an OnLinkCheck callback on
// ctrl that publish to NATS. Subjects follow the teacher's
// "application.*.device.*.<kind>" shape, adapted to a single device's events:
// device.<devEUI>.event and device.<devEUI>.linkcheck.
func (b *Bus) Attach(ctrl *controller.Controller, devEUI string) {
	ctrl.OnEvent(func(devEUI string, event controller.Event, payload interface{}) {
		msg := eventMessage{
			DevEUI:    devEUI,
			Event:     event.String(),
			Payload:   payload,
			Timestamp: time.Now(),
		}
		data, err := json.Marshal(msg)
		if err != nil {
			log.Error().Err(err).Msg("eventbus: marshal event failed")
			return
		}
		subject := fmt.Sprintf("device.%s.event", devEUI)
		if err := b.nc.Publish(subject, data); err != nil {
			log.Error().Err(err).Str("subject", subject).Msg("eventbus: publish failed")
		}
	})

	ctrl.OnLinkCheck(func(result controller.LinkCheckResult) {
		data, err := json.Marshal(result)
		if err != nil {
			return
		}
		subject := fmt.Sprintf("device.%s.linkcheck", devEUI)
		if err := b.nc.Publish(subject, data); err != nil {
			log.Error().Err(err).Str("subject", subject).Msg("eventbus: publish link check failed")
		}
	})
}
