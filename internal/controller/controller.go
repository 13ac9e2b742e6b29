package controller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lorawan-server/lorawan-enddevice/internal/mac"
	"github.com/lorawan-server/lorawan-enddevice/pkg/lorawan"
)

// Controller is the central finite-state machine: the single dispatch
// entry point invoked by every asynchronous source (radio ISR, timer,
// application thread) and by every façade call that changes protocol
// state. State is mutated only while holding mu, either by a façade call
// on the application's goroutine or by a closure running on the event
// queue goroutine; the mutex is the sole serializer between the two.
type Controller struct {
	mu sync.Mutex

	devEUI string
	opts   Options

	state DeviceState
	class DeviceClass

	session *Session
	flags   flagWord
	sticky  *stickySet
	meta    *metadataStore
	beacon  *beaconTracker
	rejoin  *rejoinState

	tx txDescriptor
	rx rxDescriptor

	mac   mac.Sublayer
	clock *clock
	queue *eventQueue

	backoffTimer *scheduledTimer
	forcedTimer  *scheduledTimer

	dispatch  eventDispatcher
	txStartFn func()

	qosAttempt int

	// pendingTXConfirm overrides the MCPS confirm status statusCheck derives
	// from the MAC layer for a terminal path that already knows a more
	// specific status (scheduling error, retries exhausted) than a generic
	// GetMCPSConfirmation() poll would report.
	pendingTXConfirm *mac.MCPSConfirmStatus

	// rxPayloadInUse is set/cleared from internal/radiosim's loopback
	// goroutine as well as the event-queue goroutine (DeliverRadioRXDone
	// posts its clear-on-exit closure onto the queue), so it needs the same
	// atomic treatment flagWord.rejoinObserved gets rather than a plain bool.
	rxPayloadInUse atomic.Bool

	cancelCtx context.CancelFunc
}

// New constructs a Controller bound to the given MAC adapter. It does not
// start the event queue goroutine; call Initialize for that.
func New(devEUI string, macLayer mac.Sublayer, opts Options) *Controller {
	c := &Controller{
		devEUI:  devEUI,
		opts:    opts,
		state:   StateNotInitialized,
		class:   ClassA,
		session: &Session{},
		sticky:  newStickySet(opts.ADRAckLimit),
		meta:    newMetadataStore(),
		beacon:  newBeaconTracker(opts.BeaconlessPeriod),
		rejoin:  &rejoinState{type1SendPeriod: opts.RejoinType1SendPeriod},
		mac:     macLayer,
		clock:   newClock(),
	}
	return c
}

// Initialize moves Not-Initialized → Idle (spec §4.2). It creates and
// starts the controller's own event queue, so there is no caller-supplied
// queue to validate; calling it on an already-initialized controller
// returns NO_OP.
func (c *Controller) Initialize(ctx context.Context) Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateNotInitialized {
		return StatusNoOp
	}

	c.queue = newEventQueue()
	c.backoffTimer = newScheduledTimer(c.queue)
	c.forcedTimer = newScheduledTimer(c.queue)

	runCtx, cancel := context.WithCancel(ctx)
	c.cancelCtx = cancel
	go c.queue.run(runCtx)

	c.transitionTo(StateIdle)
	log.Info().Str("devEUI", c.devEUI).Msg("controller initialized")
	return StatusOK
}

// OnEvent registers an application event callback (spec §6 event enum).
func (c *Controller) OnEvent(fn EventCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatch.onEvent(fn)
}

// OnLinkCheck registers the link-check result callback (spec §8 scenario 4).
func (c *Controller) OnLinkCheck(fn func(LinkCheckResult)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatch.onLinkCheck(fn)
}

// OnTXStart registers a callback invoked every time the controller arms the
// MAC layer for a transmission and enters Sending, whether the frame was
// requested explicitly (Send), assembled automatically (an uplink-required
// MLME indication), or is a confirmed-uplink retry. A radio driver (or
// internal/radiosim in this tree) uses this as the single point to learn
// "go transmit what PrepareOngoingTX/SendOngoingTX just staged."
func (c *Controller) OnTXStart(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.txStartFn = fn
}

func (c *Controller) emit(event Event, payload interface{}) {
	c.dispatch.emit(c.devEUI, event, payload)
}

// transitionTo records target as the current state. It is a bare state
// setter, not a dispatcher: it does not run the target state's handler, so
// callers entering StateStatusCheck call statusCheck themselves. Entering
// StateSending from another state fires the OnTXStart callback.
func (c *Controller) transitionTo(target DeviceState) {
	prev := c.state
	c.state = target
	log.Debug().Str("devEUI", c.devEUI).Str("from", prev.String()).Str("to", target.String()).Msg("state transition")
	if target == StateSending && prev != StateSending && c.txStartFn != nil {
		fn := c.txStartFn
		go fn()
	}
}

// StateConnected is a pseudo-state: §4.2 describes "Connected" as the
// resting point reached via Idle (or Receiving, for Class C) after the
// CONNECTED event fires, not a distinct DeviceState value. connectedRestState
// returns the actual DeviceState the controller rests in once connected.
func (c *Controller) connectedRestState() DeviceState {
	if c.class == ClassC {
		return StateReceiving
	}
	return StateIdle
}

// doConnectOTAA implements "Idle → Connecting" for OTAA: falls through to
// Joining and the first Join-Request is emitted.
func (c *Controller) doConnectOTAA(params ActivationParams) Status {
	c.session.resetForOTAA()
	c.flags.set(FlagConnectInProgress)
	c.flags.set(FlagUsingOTAA)
	c.transitionTo(StateConnecting)

	if err := c.mac.PrepareJoin(mac.JoinParams{
		DevEUI:  params.DevEUI,
		JoinEUI: params.JoinEUI,
		AppKey:  params.AppKey,
		NwkKey:  params.NwkKey,
	}); err != nil {
		log.Error().Err(err).Str("devEUI", c.devEUI).Msg("prepare join failed")
		c.flags.clear(FlagConnectInProgress)
		c.transitionTo(StateIdle)
		return StatusParameterInvalid
	}

	c.transitionTo(StateJoining)
	if err := c.mac.Join(nil); err != nil {
		log.Error().Err(err).Str("devEUI", c.devEUI).Msg("join request send failed")
		c.flags.clear(FlagConnectInProgress)
		c.transitionTo(StateIdle)
		return StatusParameterInvalid
	}
	return StatusOK
}

// doConnectABP implements the ABP path: join(false) is synchronous, and we
// transition Idle → Connecting → Connected within the same tick.
func (c *Controller) doConnectABP(params ActivationParams) Status {
	c.transitionTo(StateConnecting)
	abp := &mac.ABPParams{
		DevAddr:     params.DevAddr,
		NwkSKey:     params.NwkSKey,
		AppSKey:     params.AppSKey,
		FNwkSIntKey: params.FNwkSIntKey,
		SNwkSIntKey: params.SNwkSIntKey,
		NwkSEncKey:  params.NwkSEncKey,
		// A prior ABP session's counters survive shutdown (see shutdown()
		// below); carry them into the reinstalled MAC session instead of
		// letting Join start back at zero.
		FCntUp:   c.session.UplinkCounter,
		FCntDown: c.session.DownlinkCounter,
	}
	if err := c.mac.Join(abp); err != nil {
		c.transitionTo(StateIdle)
		return StatusParameterInvalid
	}

	c.session.Active = true
	c.session.Mode = lorawan.ABP
	c.session.DevAddr = params.DevAddr
	c.session.JoinedAt = time.Now()
	c.flags.set(FlagConnected)
	c.transitionTo(c.connectedRestState())
	c.emit(EventConnected, nil)
	return StatusOK
}

// onJoinAcceptConfirm handles an MLME_JOIN_ACCEPT confirm with status OK
// (spec §4.2 "Awaiting-Join-Accept → Connected"). For v1.1 it also arms a
// rekey-indication sticky and cancels forced/rejoin-type-0 timers.
func (c *Controller) onJoinAcceptConfirm(confirm *mac.MLMEConfirmation) {
	if confirm.Status == mac.MLMEStatusCryptoError {
		c.emit(EventCryptoError, nil)
		c.flags.clear(FlagConnectInProgress)
		c.transitionTo(StateIdle)
		return
	}
	if confirm.Status != mac.MLMEStatusOK {
		c.emit(EventJoinFailure, nil)
		c.flags.clear(FlagConnectInProgress)
		c.transitionTo(StateIdle)
		return
	}

	c.session.Active = true
	c.session.Mode = lorawan.OTAA
	c.session.DevAddr = confirm.Session.DevAddr
	c.session.FNwkSIntKey = confirm.Session.FNwkSIntKey
	c.session.SNwkSIntKey = confirm.Session.SNwkSIntKey
	c.session.NwkSEncKey = confirm.Session.NwkSEncKey
	c.session.AppSKey = confirm.Session.AppSKey
	c.session.JoinedAt = time.Now()

	c.flags.clear(FlagConnectInProgress)
	c.flags.set(FlagConnected)

	if c.opts.SpecVersion == lorawan.LoRaWAN1_1 {
		c.sticky.add(StickyRekey)
		c.forcedTimer.cancel()
		c.rejoin.type0Counter = 0
		maxCount, sendPeriod := c.mac.GetRejoinParameters()
		c.rejoin.type0MaxCount = maxCount
		if c.rejoin.type1SendPeriod == 0 {
			c.rejoin.type1SendPeriod = sendPeriod
		}
	}

	c.transitionTo(c.connectedRestState())
	c.emit(EventConnected, nil)
}

// onJoinTXTimeout implements the fatal-for-this-attempt path: TX timeout
// during Joining returns to Idle with TX_TIMEOUT, or retries via
// continueJoiningProcess if attempts remain (spec §4.2 failure semantics).
func (c *Controller) onJoinTXTimeout() {
	if err := c.mac.ContinueJoiningProcess(); err != nil {
		c.emit(EventTxTimeout, nil)
		c.flags.clear(FlagConnectInProgress)
		c.transitionTo(StateIdle)
		return
	}
	// back to Joining; the MAC layer arranges the retry, and its TX done
	// moves the controller to Awaiting-Join-Accept again
	c.transitionTo(StateJoining)
}

// handleTX piggybacks every armed sticky MAC command onto the outgoing
// frame before calling prepareOngoingTX (spec §4.4).
func (c *Controller) handleTX(desc txDescriptor) Status {
	if c.flags.has(FlagRejoinInProgress) {
		return StatusBusy
	}
	if c.state.txOngoing() {
		return StatusWouldBlock
	}
	if !c.session.Active {
		return StatusNoActiveSessions
	}

	c.tx = desc
	c.tx.attempts = 0

	var sticky []mac.StickyRequest
	for _, cmd := range c.sticky.armedForUplink() {
		switch cmd {
		case StickyLinkCheck:
			sticky = append(sticky, mac.StickyReqLinkCheck)
		case StickyDeviceTime:
			sticky = append(sticky, mac.StickyReqDeviceTime)
		case StickyPingSlotInfo:
			sticky = append(sticky, mac.StickyReqPingSlotInfo)
		case StickyReset:
			sticky = append(sticky, mac.StickyReqReset)
		case StickyRekey:
			sticky = append(sticky, mac.StickyReqRekey)
		case StickyDeviceMode:
			sticky = append(sticky, mac.StickyReqDeviceMode)
		}
	}

	err := c.mac.PrepareOngoingTX(mac.OutgoingMessage{
		Port:        desc.port,
		Payload:     desc.payload,
		Confirmed:   desc.confirmed(),
		Proprietary: desc.flags&FlagProprietary != 0,
		Sticky:      sticky,
	})
	if err != nil {
		c.flags.set(FlagRetryExhausted)
		status := mac.MCPSConfirmSchedulingError
		c.pendingTXConfirm = &status
		c.transitionTo(StateStatusCheck)
		c.statusCheck()
		return StatusBusy
	}

	if err := c.mac.SendOngoingTX(); err != nil {
		status := mac.MCPSConfirmSchedulingError
		c.pendingTXConfirm = &status
		c.transitionTo(StateStatusCheck)
		c.statusCheck()
		return StatusBusy
	}

	c.transitionTo(StateSending)
	return StatusOK
}

// onRadioTXDone transitions Sending → Awaiting-Ack (Confirmed) or
// Sending → Receiving, per spec §4.2.
func (c *Controller) onRadioTXDone() {
	confirm := c.mac.OnRadioTXDone()
	c.flags.set(FlagTxDone)
	c.tx.attempts++
	c.syncFrameCounters()

	if confirm.Status == mac.MCPSConfirmSchedulingError {
		status := mac.MCPSConfirmSchedulingError
		c.pendingTXConfirm = &status
		c.transitionTo(StateStatusCheck)
		c.statusCheck()
		return
	}

	if c.tx.confirmed() {
		c.transitionTo(StateAwaitingAck)
	} else {
		c.transitionTo(StateReceiving)
	}
}

// postTXNoReception implements "Post-TX without reception" (spec §4.2):
// RX2 timeout or Class-C post-TX with no frame received.
func (c *Controller) postTXNoReception() {
	if c.tx.confirmed() {
		if c.tx.attempts < c.tx.retryBudget {
			c.flags.clear(FlagTxDone)
			c.armRetryBackoff(func() {
				c.transitionTo(StateSending)
			})
			return
		}
		c.flags.set(FlagRetryExhausted)
		status := mac.MCPSConfirmTimeout
		c.pendingTXConfirm = &status
		c.transitionTo(StateStatusCheck)
		c.statusCheck()
		return
	}

	// Unconfirmed: honor QoS repetition via the back-off timer, never
	// direct recursion.
	if c.qosAttempt < c.tx.retryBudget && c.tx.retryBudget > 1 {
		c.qosAttempt++
		desc := c.tx
		c.armRetryBackoff(func() {
			c.handleTX(desc)
		})
		return
	}
	c.qosAttempt = 0
	c.transitionTo(StateStatusCheck)
	c.statusCheck()
}

// postTXWithReception implements "Post-TX with reception" (spec §4.2): if
// the slot is RX1/RX2/Class-C, acknowledge and process indications; ping
// slot receptions only set msg-received and go to Status-Check.
func (c *Controller) postTXWithReception(slot mac.Slot, payload []byte) {
	if err := c.mac.OnRadioRXDone(slot, payload); err != nil {
		log.Warn().Err(err).Str("devEUI", c.devEUI).Msg("rx frame rejected")
		c.transitionTo(StateStatusCheck)
		c.statusCheck()
		return
	}
	c.syncFrameCounters()

	if slot == mac.SlotPingSlot {
		c.flags.set(FlagMsgReceived)
		c.transitionTo(StateStatusCheck)
		c.statusCheck()
		return
	}

	if joinConfirm := c.mac.GetMLMEConfirmation(); joinConfirm != nil && joinConfirm.Type == mac.MLMEJoinAccept {
		c.onJoinAcceptConfirm(joinConfirm)
		return
	}

	if c.tx.confirmed() {
		c.flags.clear(FlagRetryExhausted)
	}

	if ind := c.mac.PostProcessMCPSInd(); ind != nil {
		c.flags.set(FlagMsgReceived)
		c.fillRXDescriptor(ind)
		c.meta.armRX(RXMetadata{
			Datarate:    ind.Datarate,
			RSSI:        ind.RSSI,
			SNR:         ind.SNR,
			Channel:     ind.Channel,
			TimeOnAir:   ind.TimeOnAir,
			CompletedAt: time.Now(),
		})
	}

	if mlmeInd := c.mac.PostProcessMLMEInd(); mlmeInd != nil {
		c.handleMLMEIndication(mlmeInd)
	}

	if confirm := c.mac.GetMLMEConfirmation(); confirm != nil {
		c.handleMLMEConfirm(confirm)
	}

	if c.opts.SpecVersion == lorawan.LoRaWAN1_1 && c.flags.has(FlagConnected) {
		c.rejoin.incrementType0Counter()
		c.pollRejoin()
	}

	c.transitionTo(StateStatusCheck)
	c.statusCheck()
}

func (c *Controller) fillRXDescriptor(ind *mac.MCPSIndication) {
	c.rx = rxDescriptor{
		buffer:       ind.Payload,
		totalSize:    len(ind.Payload),
		pending:      len(ind.Payload),
		receiveReady: true,
		port:         ind.Port,
	}
}

// handleMLMEIndication implements the "uplink required" branch of spec
// §4.2: emit an automatic empty Confirmed uplink on port 0, or surface
// UPLINK_REQUIRED — never both.
func (c *Controller) handleMLMEIndication(ind *mac.MLMEIndication) {
	switch ind.Type {
	case mac.MLMESchedulingUplinkRequired:
		if c.opts.AutomaticUplink {
			desc := txDescriptor{port: 0, flags: FlagConfirmed, retryBudget: 1}
			c.queue.call(func() {
				c.mu.Lock()
				defer c.mu.Unlock()
				if st := c.handleTX(desc); st != StatusOK {
					c.emit(EventAutomaticUplinkError, st)
				}
			})
		} else {
			c.emit(EventUplinkRequired, nil)
		}
	case mac.MLMEBeaconEvent:
		c.handleBeaconEvent(BeaconStatus(ind.BeaconStatus), ind.BeaconData)
	}
}

func (c *Controller) handleMLMEConfirm(confirm *mac.MLMEConfirmation) {
	switch confirm.Type {
	case mac.MLMELinkCheck:
		c.dispatch.emitLinkCheck(LinkCheckResult{Margin: confirm.Margin, NbGateways: confirm.NbGateways})
	case mac.MLMEDeviceTime:
		c.syncGPSTime(confirm.GPSTimeMs, confirm.TXTimestamp)
	case mac.MLMEPingSlotInfo:
		c.sticky.remove(StickyPingSlotInfo)
		c.emit(EventPingSlotInfoSynched, nil)
	case mac.MLMEReset:
		c.sticky.remove(StickyReset)
	case mac.MLMERekey:
		if confirm.Status == mac.MLMEStatusOK {
			c.sticky.remove(StickyRekey)
		} else if !c.sticky.recordRekeyAttempt() {
			c.emit(EventJoinFailure, nil)
			c.sticky.remove(StickyRekey)
		}
	case mac.MLMEDeviceModeConfirm:
		c.handleDeviceModeConfirm(confirm)
	case mac.MLMEForceRejoin:
		c.rejoin.armForced(confirm.RejoinDatarate, confirm.RejoinPeriod, confirm.RejoinMaxRetries, RejoinType(confirm.RejoinType))
		c.armForcedRejoinTimer()
	}
}

// handleDeviceModeConfirm implements spec §4.4: device-mode flips class
// only after the next TX succeeds and is MLME-confirmed with a matching
// class; mismatch surfaces SERVER_DOES_NOT_SUPPORT_CLASS_IN_USE.
func (c *Controller) handleDeviceModeConfirm(confirm *mac.MLMEConfirmation) {
	defer c.sticky.remove(StickyDeviceMode)
	if !c.sticky.pendingClassSet {
		return
	}
	if DeviceClass(confirm.ConfirmedClass) == c.sticky.pendingClass {
		c.class = c.sticky.pendingClass
		c.emit(EventClassChanged, c.class)
		c.emit(EventServerAcceptedClassInUse, nil)
	} else {
		c.emit(EventServerDoesNotSupportClassInUse, nil)
	}
}

// syncGPSTime implements time synchronization (spec §4.2 "Time
// synchronization"): stores gps_time + elapsed as the new GPS epoch.
func (c *Controller) syncGPSTime(gpsTimeMs int64, txTimestamp time.Time) {
	elapsed := time.Since(txTimestamp)
	c.mac.SetGPSTime(gpsTimeMs + elapsed.Milliseconds())
	c.emit(EventDeviceTimeSynched, nil)
}

// pollRejoin implements "Rejoin polling (v1.1 only)".
func (c *Controller) pollRejoin() {
	switch c.rejoin.poll(time.Now()) {
	case pollType1:
		c.flags.set(FlagRejoinInProgress)
		if err := c.mac.Rejoin(int(RejoinType1)); err != nil {
			log.Warn().Err(err).Msg("type-1 rejoin failed")
		}
	case pollType0:
		c.flags.set(FlagRejoinInProgress)
		if err := c.mac.Rejoin(int(RejoinType0)); err != nil {
			log.Warn().Err(err).Msg("type-0 rejoin failed")
		}
	}
}

// armForcedRejoinTimer arms the forced-rejoin timer for max_retries
// additional attempts (spec §4.2 "Forced rejoin").
func (c *Controller) armForcedRejoinTimer() {
	if c.rejoin.forcedExhausted() {
		return
	}
	c.forcedTimer.arm(c.rejoin.forcedPeriod, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.rejoin.forcedExhausted() {
			return
		}
		c.rejoin.recordForcedAttempt()
		c.flags.set(FlagRejoinInProgress)
		if err := c.mac.Rejoin(int(c.rejoin.forcedType)); err != nil {
			log.Warn().Err(err).Msg("forced rejoin failed")
		}
		c.armForcedRejoinTimer()
	})
}

// handleBeaconEvent implements spec §4.2 "Beacon handling (Class B)".
func (c *Controller) handleBeaconEvent(status BeaconStatus, payload []byte) {
	now := time.Now()
	switch status {
	case BeaconAcquisitionSuccess:
		c.beacon.recordLock(payload, now)
		c.emit(EventBeaconFound, nil)
	case BeaconAcquisitionFailed:
		c.emit(EventBeaconNotFound, nil)
	case BeaconLock:
		c.beacon.recordLock(payload, now)
		c.emit(EventBeaconLock, nil)
	case BeaconMiss:
		c.emit(EventBeaconMiss, nil)
		if c.class == ClassB && c.beacon.shouldFallBackToClassA(now) {
			c.class = ClassA
			c.emit(EventSwitchClassBToA, nil)
		}
	}
}

// statusCheck implements "Status-Check → Idle" (or Receiving for Class C):
// dispatches MCPS confirm and MCPS indication to the application.
func (c *Controller) statusCheck() {
	c.emitMCPSConfirmFromTX()

	if c.flags.has(FlagMsgReceived) {
		c.emit(EventRxDone, c.rx.port)
		c.flags.clear(FlagMsgReceived)
	}

	c.flags.clear(FlagTxDone)
	c.flags.clear(FlagRejoinInProgress)
	c.mac.PostProcessMCPSReq()
	c.transitionTo(c.connectedRestState())
}

func (c *Controller) emitMCPSConfirmFromTX() {
	if c.pendingTXConfirm != nil {
		status := *c.pendingTXConfirm
		c.pendingTXConfirm = nil
		c.emitMCPSConfirm(status)
		return
	}

	confirm := c.mac.GetMCPSConfirmation()
	var status mac.MCPSConfirmStatus = mac.MCPSConfirmOK
	if confirm != nil {
		status = confirm.Status
	}
	c.emitMCPSConfirm(status)
}

func (c *Controller) emitMCPSConfirm(status mac.MCPSConfirmStatus) {
	nbRetries := c.tx.attempts

	var meta TXMetadata
	meta.Channel = 0
	meta.NbRetries = nbRetries
	meta.CompletedAt = time.Now()

	switch status {
	case mac.MCPSConfirmOK:
		meta.Status = StatusOK
		c.meta.armTX(meta)
		c.emit(EventTxDone, nbRetries)
	case mac.MCPSConfirmTimeout:
		meta.Status = StatusWouldBlock
		c.meta.armTX(meta)
		if c.flags.has(FlagRetryExhausted) {
			c.emit(EventTxError, nil)
		} else {
			c.emit(EventTxTimeout, nil)
		}
	case mac.MCPSConfirmError:
		meta.Status = StatusDeviceOff
		c.meta.armTX(meta)
		c.emit(EventTxError, nil)
	case mac.MCPSConfirmSchedulingError:
		meta.Status = StatusBusy
		c.meta.armTX(meta)
		c.emit(EventTxSchedulingError, nil)
	}
}

// shutdown implements "Any → Shutdown": drops channel plan, tears down
// the MAC session, zeros flags, emits DISCONNECTED.
func (c *Controller) shutdown() {
	_ = c.mac.RemoveChannelPlan()
	c.backoffTimer.cancel()
	c.forcedTimer.cancel()
	c.flags = flagWord{}
	if c.session.Mode == lorawan.OTAA {
		*c.session = Session{}
	} else {
		c.session.Active = false
	}
	c.transitionTo(StateShutdown)
	c.emit(EventDisconnected, nil)
	if c.cancelCtx != nil {
		c.cancelCtx()
	}
}

// scheduleBackoff arms a confirmed-retry back-off, used when a real radio
// adapter reports a duty-cycle delay before the next permitted TX.
func (c *Controller) scheduleBackoff(d time.Duration, fn func()) {
	c.backoffTimer.arm(d, fn)
}

// armRetryBackoff implements the back-off window postTXNoReception opens
// ahead of a confirmed-retry or QoS-repeat resend: get_backoff_metadata
// reports it armed, and cancel_sending can still abort the frame, until fn
// runs and clears it (spec §4.1 "cancel_sending", §8 scenario 5).
func (c *Controller) armRetryBackoff(fn func()) {
	delay := c.opts.ConfirmedRetryBackoff
	if delay <= 0 {
		delay = defaultConfirmedRetryBackoff
	}
	c.meta.armBackoff(BackoffMetadata{BackoffMs: delay.Milliseconds(), Armed: true})
	c.scheduleBackoff(delay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.meta.armBackoff(BackoffMetadata{Armed: false})
		fn()
	})
}

// syncFrameCounters mirrors the MAC layer's authoritative FCntUp/FCntDown
// into the façade-facing Session after every TX/RX confirm, so status
// reporting never reads back the counters it started at.
func (c *Controller) syncFrameCounters() {
	up, down := c.mac.GetFrameCounters()
	c.session.UplinkCounter = up
	c.session.DownlinkCounter = down
}
