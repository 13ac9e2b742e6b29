package radiosim

import (
	"context"
	"testing"
	"time"

	"github.com/lorawan-server/lorawan-enddevice/internal/controller"
	"github.com/lorawan-server/lorawan-enddevice/internal/mac"
	"github.com/lorawan-server/lorawan-enddevice/pkg/lorawan"
)

// fakeMAC is a minimal Sublayer standing in for internal/mac.Adapter, just
// enough to drive a Controller through one send/receive cycle.
type fakeMAC struct {
	joined     bool
	txOngoing  bool
	pendingInd *mac.MCPSIndication
}

func (f *fakeMAC) PrepareJoin(params mac.JoinParams) error { return nil }
func (f *fakeMAC) Join(abp *mac.ABPParams) error {
	f.joined = true
	return nil
}
func (f *fakeMAC) ContinueJoiningProcess() error { return nil }

func (f *fakeMAC) PrepareOngoingTX(msg mac.OutgoingMessage) error { return nil }
func (f *fakeMAC) SendOngoingTX() error                           { f.txOngoing = true; return nil }
func (f *fakeMAC) ClearTXPipe()                                   { f.txOngoing = false }

func (f *fakeMAC) OnRadioTXDone() mac.MCPSConfirmation {
	f.txOngoing = false
	return mac.MCPSConfirmation{Status: mac.MCPSConfirmOK}
}
func (f *fakeMAC) OnRadioRXDone(slot mac.Slot, payload []byte) error {
	f.pendingInd = &mac.MCPSIndication{Port: 1, Payload: payload, Slot: slot}
	return nil
}
func (f *fakeMAC) OnRadioRXTimeout(slot mac.Slot) {}

func (f *fakeMAC) SetupLinkCheckRequest()                     {}
func (f *fakeMAC) SetupDeviceTimeRequest()                    {}
func (f *fakeMAC) SetupPingSlotInfoRequest(periodicity uint8) {}
func (f *fakeMAC) SetupResetRequest()                         {}
func (f *fakeMAC) SetupRekeyRequest()                         {}
func (f *fakeMAC) SetupDeviceModeRequest(class int)           {}

func (f *fakeMAC) PostProcessMCPSReq() {}
func (f *fakeMAC) PostProcessMCPSInd() *mac.MCPSIndication {
	out := f.pendingInd
	f.pendingInd = nil
	return out
}
func (f *fakeMAC) PostProcessMLMEInd() *mac.MLMEIndication { return nil }

func (f *fakeMAC) AddChannelPlan(channels []lorawan.Channel) error { return nil }
func (f *fakeMAC) RemoveSingleChannel(index int) error             { return nil }
func (f *fakeMAC) RemoveChannelPlan() error                        { return nil }
func (f *fakeMAC) GetChannelPlan() []lorawan.Channel               { return nil }

func (f *fakeMAC) SetChannelDataRate(dr uint8) error   { return nil }
func (f *fakeMAC) EnableAdaptiveDataRate(enabled bool) {}
func (f *fakeMAC) SetDeviceClass(class int) error      { return nil }

func (f *fakeMAC) NwkJoined() bool          { return f.joined }
func (f *fakeMAC) TxOngoing() bool          { return f.txOngoing }
func (f *fakeMAC) GetCurrentSlot() mac.Slot { return mac.SlotNone }

func (f *fakeMAC) GetMCPSConfirmation() *mac.MCPSConfirmation { return nil }
func (f *fakeMAC) GetMCPSIndication() *mac.MCPSIndication     { return nil }
func (f *fakeMAC) GetMLMEConfirmation() *mac.MLMEConfirmation { return nil }
func (f *fakeMAC) GetMLMEIndication() *mac.MLMEIndication     { return nil }

func (f *fakeMAC) EnableBeaconAcquisition(attempts int) {}
func (f *fakeMAC) GetLastRXBeacon() ([]byte, bool)      { return nil, false }

func (f *fakeMAC) Rejoin(rejoinType int) error                 { return nil }
func (f *fakeMAC) GetRejoinParameters() (int, time.Duration)   { return 16, 12 * time.Hour }

func (f *fakeMAC) GetFrameCounters() (uint32, uint32) { return 0, 0 }

func (f *fakeMAC) GetServerType() string { return "test" }

func (f *fakeMAC) SetGPSTime(ms int64)       {}
func (f *fakeMAC) GetGPSTime() int64         { return 0 }
func (f *fakeMAC) GetCurrentTime() time.Time { return time.Now() }

var _ mac.Sublayer = (*fakeMAC)(nil)

func newConnectedController(t *testing.T) *controller.Controller {
	t.Helper()
	f := &fakeMAC{}
	c := controller.New("0102030405060708", f, controller.DefaultOptions())
	if st := c.Initialize(context.Background()); st != controller.StatusOK {
		t.Fatalf("initialize: %v", st)
	}

	var devAddr lorawan.DevAddr
	var key lorawan.AES128Key
	if st := c.Connect(controller.ActivationParams{
		Mode:    lorawan.ABP,
		DevAddr: devAddr,
		NwkSKey: key,
		AppSKey: key,
	}); st != controller.StatusOK {
		t.Fatalf("connect: %v", st)
	}
	return c
}

func fastOptions() Options {
	return Options{
		TimeOnAir: 5 * time.Millisecond,
		RX1Delay:  10 * time.Millisecond,
		RX2Delay:  20 * time.Millisecond,
		RXWindow:  5 * time.Millisecond,
	}
}

func TestTriggerTXDeliversRX1Downlink(t *testing.T) {
	c := newConnectedController(t)
	sim := New(c, fastOptions())

	if _, st := c.Send(1, []byte("hello"), controller.FlagUnconfirmed, 1); st != controller.StatusOK {
		t.Fatalf("send: %v", st)
	}

	sim.PushDownlink(mac.SlotRX1, []byte("world"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sim.TriggerTX(ctx)

	time.Sleep(60 * time.Millisecond)

	dst := make([]byte, 64)
	n, st := c.Receive(dst, 0)
	if st != controller.StatusOK {
		t.Fatalf("receive: %v", st)
	}
	if string(dst[:n]) != "world" {
		t.Errorf("received %q, want %q", dst[:n], "world")
	}
}

func TestTriggerTXTimesOutWithNoDownlink(t *testing.T) {
	c := newConnectedController(t)
	sim := New(c, fastOptions())

	if _, st := c.Send(1, []byte("hello"), controller.FlagUnconfirmed, 1); st != controller.StatusOK {
		t.Fatalf("send: %v", st)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sim.TriggerTX(ctx)

	time.Sleep(60 * time.Millisecond)

	if st := c.CancelSending(); st != controller.StatusNoOp {
		t.Errorf("expected nothing pending after timeout, got %v", st)
	}
}

func TestPushDownlinkNilClearsPending(t *testing.T) {
	c := newConnectedController(t)
	sim := New(c, fastOptions())

	sim.PushDownlink(mac.SlotRX1, []byte("queued"))
	sim.PushDownlink(mac.SlotRX1, nil)

	if f := sim.takePending(); f != nil {
		t.Fatalf("expected pending cleared, got %+v", f)
	}
}

func TestGatewayOnline(t *testing.T) {
	c := newConnectedController(t)
	sim := New(c, fastOptions())

	if !sim.GatewayOnline() {
		t.Fatal("expected gateway online by default")
	}
	sim.SetGatewayOnline(false)
	if sim.GatewayOnline() {
		t.Fatal("expected gateway offline after SetGatewayOnline(false)")
	}
}
