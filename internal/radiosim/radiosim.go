// Package radiosim stands in for the radio driver spec.md places out of
// scope: it simulates a half-duplex LoRa transceiver's TX/RX timing so the
// controller can be exercised end to end without real hardware. Grounded on
// internal/gateway/udp_packet_forwarder.go's gateway registry and downlink
// dispatch shape, trimmed from Semtech UDP framing to an in-process
// loopback "ether" a test or demo harness feeds directly.
package radiosim

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lorawan-server/lorawan-enddevice/internal/controller"
	"github.com/lorawan-server/lorawan-enddevice/internal/mac"
)

// Options configures the simulated radio's timing.
type Options struct {
	TimeOnAir time.Duration
	RX1Delay  time.Duration
	RX2Delay  time.Duration
	RXWindow  time.Duration
}

// DefaultOptions mirrors the EU868 DR0 defaults a real driver would report.
func DefaultOptions() Options {
	return Options{
		TimeOnAir: 200 * time.Millisecond,
		RX1Delay:  time.Second,
		RX2Delay:  2 * time.Second,
		RXWindow:  500 * time.Millisecond,
	}
}

// downlinkFrame is a gateway-scheduled frame waiting to be delivered on the
// next RX window.
type downlinkFrame struct {
	slot    mac.Slot
	payload []byte
}

// Simulator is the loopback radio. It owns no protocol state of its own:
// every TX/RX event it manufactures is handed to the bound Controller via
// the exported Deliver* methods, exactly as a real radio ISR would.
type Simulator struct {
	ctrl *controller.Controller
	opts Options

	mu       sync.Mutex
	pending  *downlinkFrame
	gwOnline bool
}

// New binds a Simulator to ctrl. Wire TriggerTX to ctrl.OnTXStart so every
// frame the controller arms for transmission - explicit, automatic, or a
// confirmed-uplink retry - gets a simulated over-the-air exchange; tests
// that want finer control can still call TriggerTX directly.
func New(ctrl *controller.Controller, opts Options) *Simulator {
	return &Simulator{ctrl: ctrl, opts: opts, gwOnline: true}
}

// PushDownlink queues a frame for the next RX1 or RX2 window, simulating a
// gateway/network-server that has a downlink ready. A nil payload clears any
// queued frame, simulating a gateway that goes offline.
func (s *Simulator) PushDownlink(slot mac.Slot, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if payload == nil {
		s.pending = nil
		return
	}
	s.pending = &downlinkFrame{slot: slot, payload: payload}
}

func (s *Simulator) takePending() *downlinkFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.pending
	s.pending = nil
	return f
}

// TriggerTX simulates the radio transmitting the frame the controller just
// handed to the MAC adapter: after TimeOnAir it reports TX-done, then opens
// RX1 and (if nothing arrived) RX2, delivering whatever PushDownlink queued
// or a timeout if the ether stayed silent.
func (s *Simulator) TriggerTX(ctx context.Context) {
	go func() {
		select {
		case <-time.After(s.opts.TimeOnAir):
		case <-ctx.Done():
			return
		}
		s.ctrl.DeliverRadioTXDone()
		s.runRXWindows(ctx)
	}()
}

func (s *Simulator) runRXWindows(ctx context.Context) {
	if s.deliverWindow(ctx, mac.SlotRX1, s.opts.RX1Delay) {
		return
	}
	s.deliverWindow(ctx, mac.SlotRX2, s.opts.RX2Delay-s.opts.RX1Delay)
}

// deliverWindow waits out one RX window and reports whatever arrived
// (or a timeout) to the controller. Returns true if a frame was delivered,
// stopping the caller from opening the next window.
func (s *Simulator) deliverWindow(ctx context.Context, slot mac.Slot, delay time.Duration) bool {
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return true
	}

	// A frame queued for a later window stays queued for that window.
	s.mu.Lock()
	frame := s.pending
	if frame != nil && frame.slot == slot {
		s.pending = nil
	} else {
		frame = nil
	}
	s.mu.Unlock()
	if frame == nil {
		log.Debug().Str("slot", slotName(slot)).Msg("radiosim: rx window silent")
		s.ctrl.DeliverRadioRXTimeout(slot)
		return false
	}

	log.Debug().Str("slot", slotName(slot)).Int("bytes", len(frame.payload)).Msg("radiosim: delivering downlink")
	s.ctrl.DeliverRadioRXDone(slot, frame.payload)
	return true
}

func slotName(slot mac.Slot) string {
	switch slot {
	case mac.SlotRX1:
		return "RX1"
	case mac.SlotRX2:
		return "RX2"
	case mac.SlotClassC:
		return "ClassC"
	case mac.SlotPingSlot:
		return "PingSlot"
	default:
		return "none"
	}
}

// SetGatewayOnline simulates a gateway going in and out of radio range; a
// Class-C device or beacon consumer can poll this for demo purposes.
func (s *Simulator) SetGatewayOnline(online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gwOnline = online
}

func (s *Simulator) GatewayOnline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gwOnline
}
