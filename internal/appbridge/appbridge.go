// Package appbridge forwards received application payloads and events to an
// MQTT broker and accepts downlink requests from a "down" topic, acting as
// the application-facing side of the controller's send/receive façade when
// the application itself is a separate process. Grounded on
// internal/integration/forwarder.go's MQTT client setup (broker options,
// TLS, keep-alive, reconnect) trimmed from a per-tenant client pool to a
// single client for one device.
package appbridge

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/lorawan-server/lorawan-enddevice/internal/controller"
)

// Config is the subset of the teacher's MQTTConfig this bridge needs.
type Config struct {
	BrokerURL    string
	Username     string
	Password     string
	TLS          bool
	TopicPrefix  string // e.g. "lorawan/0102030405060708"
	QoS          byte
}

// Bridge owns one MQTT client wired to a Controller.
type Bridge struct {
	cfg    Config
	devEUI string
	ctrl   *controller.Controller
	client mqtt.Client
}

type rxMessage struct {
	Port      uint8     `json:"port"`
	Data      []byte    `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

type eventMessage struct {
	Event     string      `json:"event"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type downlinkRequest struct {
	Port      uint8  `json:"port"`
	Data      []byte `json:"data"`
	Confirmed bool   `json:"confirmed"`
}

// New connects to the broker and subscribes to <TopicPrefix>/down.
func New(cfg Config, devEUI string, ctrl *controller.Controller) (*Bridge, error) {
	b := &Bridge{cfg: cfg, devEUI: devEUI, ctrl: ctrl}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(fmt.Sprintf("lorawan-enddevice-%s", devEUI))
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	if cfg.TLS {
		opts.SetTLSConfig(&tls.Config{})
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info().Str("devEUI", devEUI).Msg("appbridge: mqtt client connected")
		topic := cfg.TopicPrefix + "/down"
		if token := client.Subscribe(topic, cfg.QoS, b.handleDownlink); token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Error().Err(token.Error()).Str("topic", topic).Msg("appbridge: subscribe failed")
		}
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Error().Err(err).Str("devEUI", devEUI).Msg("appbridge: mqtt connection lost")
	})

	b.client = mqtt.NewClient(opts)
	token := b.client.Connect()
	if !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		return nil, fmt.Errorf("connect mqtt broker: %w", token.Error())
	}

	ctrl.OnEvent(func(devEUI string, event controller.Event, payload interface{}) {
		if event == controller.EventRxDone {
			b.forwardRX()
			return
		}
		b.forwardEvent(event, payload)
	})

	return b, nil
}

// Close disconnects the MQTT client.
func (b *Bridge) Close() {
	b.client.Disconnect(250)
}

func (b *Bridge) forwardRX() {
	dst := make([]byte, 256)
	n, status := b.ctrl.Receive(dst, 0)
	if !status.OK() {
		return
	}
	msg := rxMessage{Data: dst[:n], Timestamp: time.Now()}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("appbridge: marshal rx failed")
		return
	}
	topic := b.cfg.TopicPrefix + "/up"
	token := b.client.Publish(topic, b.cfg.QoS, false, data)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Error().Err(token.Error()).Str("topic", topic).Msg("appbridge: publish rx failed")
	}
}

func (b *Bridge) forwardEvent(event controller.Event, payload interface{}) {
	msg := eventMessage{Event: event.String(), Payload: payload, Timestamp: time.Now()}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	topic := b.cfg.TopicPrefix + "/event"
	b.client.Publish(topic, b.cfg.QoS, false, data)
}

func (b *Bridge) handleDownlink(client mqtt.Client, msg mqtt.Message) {
	var req downlinkRequest
	if err := json.Unmarshal(msg.Payload(), &req); err != nil {
		log.Error().Err(err).Msg("appbridge: invalid downlink request")
		return
	}

	flags := controller.FlagUnconfirmed
	if req.Confirmed {
		flags = controller.FlagConfirmed
	}

	if _, status := b.ctrl.Send(req.Port, req.Data, flags, 1); !status.OK() {
		log.Warn().Str("status", status.String()).Str("devEUI", b.devEUI).Msg("appbridge: downlink send rejected")
	}
}
