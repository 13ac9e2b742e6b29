// Package mac defines the contract the controller core consumes from the
// lower MAC sublayer — the PHY encoder/decoder, regional channel plan, and
// duty-cycle accounting that this repository treats as an external
// collaborator.
package mac

import (
	"time"

	"github.com/lorawan-server/lorawan-enddevice/pkg/lorawan"
)

// Slot identifies which receive window a reception arrived in.
type Slot int

const (
	SlotNone Slot = iota
	SlotRX1
	SlotRX2
	SlotClassC
	SlotPingSlot
)

// MCPSConfirmStatus is the data-plane confirm status surfaced after a TX
// attempt concludes.
type MCPSConfirmStatus int

const (
	MCPSConfirmOK MCPSConfirmStatus = iota
	MCPSConfirmTimeout
	MCPSConfirmError
	MCPSConfirmSchedulingError
)

// MCPSConfirmation is the data-plane confirm the MAC hands back after a TX.
type MCPSConfirmation struct {
	Status      MCPSConfirmStatus
	NbRetries   int
	AckReceived bool
	Channel     int
	Datarate    int
	TXPower     int
}

// MCPSIndication is an inbound data-plane frame: either an application
// payload or a MAC-only (port-0) frame.
type MCPSIndication struct {
	Port       uint8
	Payload    []byte
	Slot       Slot
	Datarate   int
	RSSI       float64
	SNR        float64
	Channel    int
	TimeOnAir  time.Duration
	FPending   bool
}

// MLMEConfirmType identifies which management operation a confirm
// corresponds to.
type MLMEConfirmType int

const (
	MLMEJoinAccept MLMEConfirmType = iota
	MLMEForceRejoin
	MLMELinkCheck
	MLMEDeviceTime
	MLMEPingSlotInfo
	MLMEReset
	MLMERekey
	MLMEDeviceModeConfirm
)

// MLMEConfirmStatus is the management-plane confirm status.
type MLMEConfirmStatus int

const (
	MLMEStatusOK MLMEConfirmStatus = iota
	MLMEStatusCryptoError
	MLMEStatusFailure
)

// MLMEConfirmation is the management-plane confirm delivered to the
// controller, with fields populated per Type.
type MLMEConfirmation struct {
	Type   MLMEConfirmType
	Status MLMEConfirmStatus

	// MLMEJoinAccept
	Session lorawan.DeviceSession

	// MLMELinkCheck
	Margin     int
	NbGateways int

	// MLMEDeviceTime
	GPSTimeMs    int64
	TXTimestamp  time.Time

	// MLMEForceRejoin
	RejoinDatarate   int
	RejoinPeriod     time.Duration
	RejoinMaxRetries int
	RejoinType       int

	// MLMEDeviceModeConfirm
	ConfirmedClass int
}

// MLMEIndicationType identifies an unsolicited management-plane event.
type MLMEIndicationType int

const (
	MLMESchedulingUplinkRequired MLMEIndicationType = iota
	MLMEBeaconEvent
)

// MLMEIndication is an unsolicited management-plane event from the MAC.
type MLMEIndication struct {
	Type         MLMEIndicationType
	BeaconStatus int // valid when Type == MLMEBeaconEvent
	BeaconData   []byte
}

// JoinParams are the OTAA activation parameters the controller passes down
// when it asks the MAC to build and send a Join-Request.
type JoinParams struct {
	DevEUI  lorawan.EUI64
	JoinEUI lorawan.EUI64
	AppKey  lorawan.AES128Key
	NwkKey  *lorawan.AES128Key
}

// ABPParams are the ABP activation parameters for a synchronous join(false).
// FCntUp/FCntDown seed the session's frame counters; the controller passes
// its preserved Session counters here on every (re)connect so a disconnect
// followed by a reconnect never rewinds them to zero.
type ABPParams struct {
	DevAddr     lorawan.DevAddr
	NwkSKey     lorawan.AES128Key
	AppSKey     lorawan.AES128Key
	FNwkSIntKey *lorawan.AES128Key
	SNwkSIntKey *lorawan.AES128Key
	NwkSEncKey  *lorawan.AES128Key
	FCntUp      uint32
	FCntDown    uint32
}

// OutgoingMessage is a TX request handed down to prepareOngoingTX/sendOngoingTX.
type OutgoingMessage struct {
	Port       uint8
	Payload    []byte
	Confirmed  bool
	Proprietary bool
	Sticky     []StickyRequest
}

// StickyRequest is one piggybacked MAC command request to include on the
// next outgoing frame.
type StickyRequest int

const (
	StickyReqLinkCheck StickyRequest = iota
	StickyReqDeviceTime
	StickyReqPingSlotInfo
	StickyReqReset
	StickyReqRekey
	StickyReqDeviceMode
)

// Sublayer is the contract every operation the state controller may call
// down into the lower MAC.
// A concrete implementation lives in adapter.go, built from pkg/lorawan's
// PHY/crypto primitives; the boundary corresponds to where the original
// Mbed implementation's interface type dispatched into its stack type.
type Sublayer interface {
	PrepareJoin(params JoinParams) error
	Join(abp *ABPParams) error
	ContinueJoiningProcess() error

	PrepareOngoingTX(msg OutgoingMessage) error
	SendOngoingTX() error
	ClearTXPipe()

	OnRadioTXDone() MCPSConfirmation
	OnRadioRXDone(slot Slot, payload []byte) error
	OnRadioRXTimeout(slot Slot)

	SetupLinkCheckRequest()
	SetupDeviceTimeRequest()
	SetupPingSlotInfoRequest(periodicity uint8)
	SetupResetRequest()
	SetupRekeyRequest()
	SetupDeviceModeRequest(class int)

	PostProcessMCPSReq()
	PostProcessMCPSInd() *MCPSIndication
	PostProcessMLMEInd() *MLMEIndication

	AddChannelPlan(channels []lorawan.Channel) error
	RemoveSingleChannel(index int) error
	RemoveChannelPlan() error
	GetChannelPlan() []lorawan.Channel

	SetChannelDataRate(dr uint8) error
	EnableAdaptiveDataRate(enabled bool)
	SetDeviceClass(class int) error

	NwkJoined() bool
	TxOngoing() bool
	GetCurrentSlot() Slot

	GetMCPSConfirmation() *MCPSConfirmation
	GetMCPSIndication() *MCPSIndication
	GetMLMEConfirmation() *MLMEConfirmation
	GetMLMEIndication() *MLMEIndication

	EnableBeaconAcquisition(attempts int)
	GetLastRXBeacon() ([]byte, bool)

	Rejoin(rejoinType int) error
	GetRejoinParameters() (maxCount int, sendPeriod time.Duration)

	GetFrameCounters() (fCntUp, fCntDown uint32)

	GetServerType() string

	SetGPSTime(ms int64)
	GetGPSTime() int64
	GetCurrentTime() time.Time
}
