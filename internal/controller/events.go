package controller

// Event is the application-facing notification enumeration of spec §6.
// Names are semantic, not bit values.
type Event int

const (
	EventConnected Event = iota
	EventDisconnected
	EventTxDone
	EventTxTimeout
	EventTxError
	EventTxCryptoError
	EventTxSchedulingError
	EventRxDone
	EventRxTimeout
	EventRxError
	EventJoinFailure
	EventUplinkRequired
	EventAutomaticUplinkError
	EventDeviceTimeSynched
	EventClassChanged
	EventServerAcceptedClassInUse
	EventServerDoesNotSupportClassInUse
	EventBeaconFound
	EventBeaconNotFound
	EventBeaconLock
	EventBeaconMiss
	EventSwitchClassBToA
	EventPingSlotInfoSynched
	EventCryptoError
)

var eventNames = [...]string{
	"CONNECTED",
	"DISCONNECTED",
	"TX_DONE",
	"TX_TIMEOUT",
	"TX_ERROR",
	"TX_CRYPTO_ERROR",
	"TX_SCHEDULING_ERROR",
	"RX_DONE",
	"RX_TIMEOUT",
	"RX_ERROR",
	"JOIN_FAILURE",
	"UPLINK_REQUIRED",
	"AUTOMATIC_UPLINK_ERROR",
	"DEVICE_TIME_SYNCHED",
	"CLASS_CHANGED",
	"SERVER_ACCEPTED_CLASS_IN_USE",
	"SERVER_DOES_NOT_SUPPORT_CLASS_IN_USE",
	"BEACON_FOUND",
	"BEACON_NOT_FOUND",
	"BEACON_LOCK",
	"BEACON_MISS",
	"SWITCH_CLASS_B_TO_A",
	"PING_SLOT_INFO_SYNCHED",
	"CRYPTO_ERROR",
}

func (e Event) String() string {
	if int(e) < 0 || int(e) >= len(eventNames) {
		return "UNKNOWN_EVENT"
	}
	return eventNames[e]
}

// EventCallback receives application events along with any event-specific
// payload (e.g. the retry count delivered with TX_DONE).
type EventCallback func(devEUI string, event Event, payload interface{})

// LinkCheckResult is the payload delivered with a link-check callback.
type LinkCheckResult struct {
	Margin     int
	NbGateways int
}

// eventDispatcher fans settled controller events out to registered
// callbacks. Kept separate from the façade so internal/eventbus can wrap
// one of these callbacks to mirror events onto NATS without the core
// knowing anything about messaging.
type eventDispatcher struct {
	callbacks     []EventCallback
	linkCheckFn   func(LinkCheckResult)
}

func (d *eventDispatcher) onEvent(fn EventCallback) {
	d.callbacks = append(d.callbacks, fn)
}

func (d *eventDispatcher) onLinkCheck(fn func(LinkCheckResult)) {
	d.linkCheckFn = fn
}

func (d *eventDispatcher) emit(devEUI string, event Event, payload interface{}) {
	for _, cb := range d.callbacks {
		cb(devEUI, event, payload)
	}
}

func (d *eventDispatcher) emitLinkCheck(result LinkCheckResult) {
	if d.linkCheckFn != nil {
		d.linkCheckFn(result)
	}
}
