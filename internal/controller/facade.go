package controller

import (
	"math/bits"
	"time"

	"github.com/lorawan-server/lorawan-enddevice/internal/mac"
	"github.com/lorawan-server/lorawan-enddevice/pkg/lorawan"
)

// Every façade method below acquires c.mu, dispatches to the controller,
// and releases on all exit paths — per spec §4.1. Because all controller
// state is touched exclusively under this lock or from the event-queue
// goroutine (which itself takes the lock before running a posted
// closure), a plain sync.Mutex satisfies the serialization spec §5 would
// otherwise want a recursive mutex for: no façade method re-enters itself
// while holding the lock, and handlers that need to re-enter scheduling
// defer via c.queue.call rather than recursing.

// Connect performs OTAA or ABP activation depending on params.Mode. OTAA
// returns CONNECT_IN_PROGRESS synchronously with the CONNECTED event
// delivered later; ABP returns OK with CONNECTED delivered in the same
// tick.
func (c *Controller) Connect(params ActivationParams) Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateNotInitialized {
		return StatusNotInitialized
	}
	if c.flags.has(FlagConnected) {
		return StatusAlreadyConnected
	}
	if c.flags.has(FlagConnectInProgress) {
		return StatusConnectInProgress
	}
	if c.state != StateIdle {
		return StatusBusy
	}

	switch params.Mode {
	case lorawan.OTAA:
		if st := c.doConnectOTAA(params); st != StatusOK {
			return st
		}
		return StatusConnectInProgress
	case lorawan.ABP:
		return c.doConnectABP(params)
	default:
		return StatusParameterInvalid
	}
}

// Disconnect implements spec §4.1 "disconnect()".
func (c *Controller) Disconnect() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateNotInitialized {
		return StatusNotInitialized
	}
	c.shutdown()
	return StatusOK
}

// Send schedules an outgoing application frame (spec §4.1 "send").
func (c *Controller) Send(port uint8, data []byte, flags MessageFlag, retryBudget int) (int, Status) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateNotInitialized {
		return 0, StatusNotInitialized
	}
	if !c.session.Active {
		return 0, StatusNoActiveSessions
	}
	if flags&FlagMulticast != 0 {
		return 0, StatusParameterInvalid
	}
	if bits.OnesCount8(uint8(flags&(FlagUnconfirmed|FlagConfirmed|FlagProprietary))) != 1 {
		return 0, StatusParameterInvalid
	}
	if !isPortValid(port, c.opts.ComplianceTestingEnabled) {
		return 0, StatusPortInvalid
	}
	if c.flags.has(FlagRejoinInProgress) {
		return 0, StatusBusy
	}

	canSchedule := c.state == StateIdle || (c.class == ClassC && c.state == StateReceiving)
	if !canSchedule {
		return 0, StatusWouldBlock
	}

	budget := retryBudget
	if budget <= 0 {
		budget = 1
	}
	desc := txDescriptor{port: port, payload: append([]byte(nil), data...), flags: flags, retryBudget: budget}

	st := c.handleTX(desc)
	if st != StatusOK {
		return 0, st
	}
	return len(data), StatusOK
}

// isPortValid implements spec §4.1 port validation and the compliance
// fallthrough of design note 9(c): port 0 is reserved for the automatic-
// uplink path (never accepted here from the application), 1..223 are
// application ports, 224 (compliance) is only special-cased by falling
// through to the ordinary path when compliance mode is enabled.
func isPortValid(port uint8, complianceEnabled bool) bool {
	if port == 0 {
		return false
	}
	if port == 224 {
		return complianceEnabled
	}
	return port <= 223
}

// Receive copies from the pending RX descriptor into dst, implementing
// the chunked-read contract of spec §4.3.
func (c *Controller) Receive(dst []byte, flags MessageFlag) (int, Status) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateNotInitialized {
		return 0, StatusNotInitialized
	}
	if !c.session.Active {
		return 0, StatusNoActiveSessions
	}
	if !c.rx.receiveReady {
		return 0, StatusWouldBlock
	}
	if flags != 0 && c.rx.flags != 0 && flags&c.rx.flags == 0 {
		return 0, StatusWouldBlock
	}

	n := c.rx.read(dst)
	return n, StatusOK
}

// CancelSending implements spec §4.1 "cancel_sending": succeeds only
// while the back-off timer is still pending; once the MAC has handed the
// frame to the radio, cancellation fails with BUSY.
func (c *Controller) CancelSending() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateNotInitialized {
		return StatusNotInitialized
	}
	if !c.backoffTimer.isPending() {
		if c.state == StateSending || c.state == StateAwaitingAck {
			return StatusBusy
		}
		return StatusNoOp
	}

	c.backoffTimer.cancel()
	c.mac.ClearTXPipe()
	c.transitionTo(StateIdle)
	return StatusOK
}

// SetDatarate implements spec §4.1.
func (c *Controller) SetDatarate(dr uint8) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateNotInitialized {
		return StatusNotInitialized
	}
	if err := c.mac.SetChannelDataRate(dr); err != nil {
		return StatusDatarateInvalid
	}
	return StatusOK
}

// SetConfirmedMsgRetries implements the supplemented bound check: the
// original clamps retry count to [1, 254] in the setter itself, not just
// the MAC layer.
func (c *Controller) SetConfirmedMsgRetries(n int) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateNotInitialized {
		return StatusNotInitialized
	}
	if n < 1 || n > maxConfirmedMsgRetriesCeiling {
		return StatusParameterInvalid
	}
	c.opts.MaxConfirmedMsgRetries = n
	return StatusOK
}

// EnableAdaptiveDataRate implements spec §4.1.
func (c *Controller) EnableAdaptiveDataRate(enabled bool) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateNotInitialized {
		return StatusNotInitialized
	}
	c.mac.EnableAdaptiveDataRate(enabled)
	return StatusOK
}

// SetChannelPlan / RemoveChannelPlan / RemoveChannel implement spec §4.1.
func (c *Controller) SetChannelPlan(channels []lorawan.Channel) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateNotInitialized {
		return StatusNotInitialized
	}
	if err := c.mac.AddChannelPlan(channels); err != nil {
		return StatusFrequencyInvalid
	}
	return StatusOK
}

func (c *Controller) RemoveChannelPlan() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateNotInitialized {
		return StatusNotInitialized
	}
	_ = c.mac.RemoveChannelPlan()
	return StatusOK
}

func (c *Controller) RemoveChannel(index int) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateNotInitialized {
		return StatusNotInitialized
	}
	if err := c.mac.RemoveSingleChannel(index); err != nil {
		return StatusParameterInvalid
	}
	return StatusOK
}

// AddLinkCheckRequest / AddDeviceTimeRequest / AddPingSlotInfoRequest arm
// the corresponding sticky MAC command (spec §4.1).
func (c *Controller) AddLinkCheckRequest() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateNotInitialized {
		return StatusNotInitialized
	}
	if c.dispatch.linkCheckFn == nil {
		return StatusParameterInvalid
	}
	c.sticky.add(StickyLinkCheck)
	c.mac.SetupLinkCheckRequest()
	return StatusOK
}

func (c *Controller) AddDeviceTimeRequest() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateNotInitialized {
		return StatusNotInitialized
	}
	if !c.mac.NwkJoined() {
		return StatusNoNetworkJoined
	}
	c.sticky.add(StickyDeviceTime)
	c.mac.SetupDeviceTimeRequest()
	return StatusOK
}

func (c *Controller) AddPingSlotInfoRequest(periodicity uint8) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateNotInitialized {
		return StatusNotInitialized
	}
	c.sticky.add(StickyPingSlotInfo)
	c.mac.SetupPingSlotInfoRequest(periodicity)
	return StatusOK
}

// RemoveLinkCheckRequest / RemoveDeviceTimeRequest /
// RemovePingSlotInfoRequest are the three idempotent removal operations
// supplemented from original_source (each clears exactly one sticky bit).
func (c *Controller) RemoveLinkCheckRequest() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sticky.remove(StickyLinkCheck)
	return StatusOK
}

func (c *Controller) RemoveDeviceTimeRequest() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sticky.remove(StickyDeviceTime)
	return StatusOK
}

func (c *Controller) RemovePingSlotInfoRequest() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sticky.remove(StickyPingSlotInfo)
	return StatusOK
}

// SetDeviceClass implements spec §4.1 "set_device_class(c)": class B
// requires a prior beacon lock; for v1.1 the switch is piggybacked as a
// Device-Mode indication and takes effect after the next TX.
func (c *Controller) SetDeviceClass(class DeviceClass) Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateNotInitialized {
		return StatusNotInitialized
	}
	if class == ClassB && !c.opts.ClassBEnabled {
		return StatusUnsupported
	}
	if class == ClassB {
		if _, found := c.beacon.last(); !found {
			return StatusNoBeaconFound
		}
	}

	if c.opts.SpecVersion == lorawan.LoRaWAN1_1 {
		c.sticky.armPendingClass(class)
		c.mac.SetupDeviceModeRequest(int(class))
		return StatusOK
	}

	if err := c.mac.SetDeviceClass(int(class)); err != nil {
		return StatusUnsupported
	}
	c.class = class
	c.emit(EventClassChanged, class)
	return StatusOK
}

// GetTXMetadata / GetRXMetadata / GetBackoffMetadata implement the §3
// read-once metadata accessors.
func (c *Controller) GetTXMetadata() (TXMetadata, Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateNotInitialized {
		return TXMetadata{}, StatusNotInitialized
	}
	return c.meta.getTX()
}

func (c *Controller) GetRXMetadata() (RXMetadata, Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateNotInitialized {
		return RXMetadata{}, StatusNotInitialized
	}
	return c.meta.getRX()
}

func (c *Controller) GetBackoffMetadata() (BackoffMetadata, Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateNotInitialized {
		return BackoffMetadata{}, StatusNotInitialized
	}
	return c.meta.getBackoff()
}

// EnableBeaconAcquisition / GetLastRXBeacon implement spec §4.1.
func (c *Controller) EnableBeaconAcquisition() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateNotInitialized {
		return StatusNotInitialized
	}
	c.mac.EnableBeaconAcquisition(c.opts.BeaconAcquisitionAttempts)
	return StatusOK
}

func (c *Controller) GetLastRXBeacon() (BeaconRecord, Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateNotInitialized {
		return BeaconRecord{}, StatusNotInitialized
	}
	record, found := c.beacon.last()
	if !found {
		return BeaconRecord{}, StatusNoBeaconFound
	}
	return record, StatusOK
}

// SetSystemTimeUTC computes the UTC wall-clock time
// GPS_time + UNIX-GPS-epoch-diff + (tai_utc_diff − 19) and returns it; it
// does not set the system clock itself.
const unixGPSEpochDiffSeconds = 315964800 // 1980-01-06T00:00:00Z - 1970-01-01T00:00:00Z

func (c *Controller) SetSystemTimeUTC(taiUTCDiffSeconds int) (time.Time, Status) {
	c.mu.Lock()
	defer c.mu.Unlock()

	gpsMs := c.mac.GetGPSTime()
	if gpsMs == 0 {
		return time.Time{}, StatusServiceUnknown
	}

	offset := unixGPSEpochDiffSeconds + (taiUTCDiffSeconds - gpsUTCLeapOffsetSeconds)
	unixSeconds := gpsMs/1000 + int64(offset)
	return time.Unix(unixSeconds, 0).UTC(), StatusOK
}

// GetCurrentGPSTime implements "get_current_gps_time()": stored-GPS +
// (now - stored-tick); zero means unset.
func (c *Controller) GetCurrentGPSTime() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mac.GetGPSTime()
}

// DeliverRadioTXDone, DeliverRadioRXDone, DeliverRadioRXTimeout are called
// by internal/radiosim's loopback driver; each posts onto the event queue
// so the actual state mutation still happens on the queue goroutine, not
// on the radio simulator's own goroutine (spec §5 "ISR-to-event-queue
// handoff").
func (c *Controller) DeliverRadioTXDone() {
	c.queue.post(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.state == StateJoining {
			c.transitionTo(StateAwaitingJoinAccept)
			return
		}
		c.onRadioTXDone()
	})
}

func (c *Controller) DeliverRadioRXDone(slot mac.Slot, payload []byte) {
	if !c.rxPayloadInUse.CompareAndSwap(false, true) {
		return // drop: a second RX arriving before clear (spec §3 invariant)
	}
	c.queue.post(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		defer c.rxPayloadInUse.Store(false)
		c.postTXWithReception(slot, payload)
	})
}

func (c *Controller) DeliverRadioRXTimeout(slot mac.Slot) {
	c.queue.post(func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		c.mac.OnRadioRXTimeout(slot)

		if slot == mac.SlotRX1 {
			return // advance to slot 2 only
		}

		if c.state == StateAwaitingJoinAccept {
			c.onJoinTXTimeout()
			return
		}

		c.postTXNoReception()
	})
}
