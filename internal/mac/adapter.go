package mac

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lorawan-server/lorawan-enddevice/pkg/crypto"
	"github.com/lorawan-server/lorawan-enddevice/pkg/lorawan"
)

// Adapter is a concrete, in-memory implementation of Sublayer built
// directly on pkg/lorawan's payload/crypto/region primitives: join accept
// parsing, FHDR/MACPayload encode, MIC compute via AES-CMAC, FRM-payload
// encrypt/decrypt. It plays the role the lower MAC layer plays against a
// real radio, repurposed here from the teacher's network-server-side
// decode path to the end-device-side encode path.
type Adapter struct {
	region      *lorawan.RegionConfiguration
	version     lorawan.Major
	serverType  string

	session lorawan.DeviceSession
	joined  bool

	txOngoingFlag bool
	currentSlot   Slot

	pendingJoin  *JoinParams
	devNonce     uint16

	mcpsConfirm *MCPSConfirmation
	mcpsInd     *MCPSIndication
	mlmeConfirm *MLMEConfirmation
	mlmeInd     *MLMEIndication

	gpsTimeMs    int64
	gpsStampedAt time.Time

	channelPlan []lorawan.Channel

	adrEnabled  bool
	deviceClass int

	beaconAttempts  int
	lastBeacon      []byte
	lastBeaconFound bool

	rejoinMaxCount   int
	rejoinSendPeriod time.Duration

	pendingOutgoing  *OutgoingMessage
	lastEncodedFrame []byte
}

// LoRaWAN 1.1 MAC command identifiers the teacher's mac_commands.go doesn't
// carry, since it only ever decoded network-server-side commands against
// 1.0.x devices. Values are from the 1.1 CID table.
const (
	cidResetInd        byte = 0x01
	cidRekeyInd        byte = 0x0B
	cidDeviceModeInd   byte = 0x0C
	cidPingSlotInfoReq byte = 0x10
)

// stickyToMACCommand turns a piggyback request armed by the controller's
// sticky set into the wire MAC command it corresponds to.
func stickyToMACCommand(req StickyRequest) lorawan.MACCommand {
	switch req {
	case StickyReqLinkCheck:
		return lorawan.MACCommand{CID: lorawan.LinkCheckReq}
	case StickyReqDeviceTime:
		return lorawan.MACCommand{CID: lorawan.DeviceTimeReq}
	case StickyReqPingSlotInfo:
		return lorawan.MACCommand{CID: cidPingSlotInfoReq}
	case StickyReqReset:
		return lorawan.MACCommand{CID: cidResetInd, Payload: []byte{byte(lorawan.LoRaWAN1_1)}}
	case StickyReqRekey:
		return lorawan.MACCommand{CID: cidRekeyInd, Payload: []byte{byte(lorawan.LoRaWAN1_1)}}
	case StickyReqDeviceMode:
		return lorawan.MACCommand{CID: cidDeviceModeInd}
	default:
		return lorawan.MACCommand{}
	}
}

// NewAdapter creates an adapter bound to a region configuration and
// protocol version, mirroring the teacher's NewMACCommandHandler(store, region).
func NewAdapter(regionName string, version lorawan.Major) *Adapter {
	region := lorawan.GetRegionConfiguration(regionName)
	channelPlan := make([]lorawan.Channel, len(region.DefaultChannels))
	copy(channelPlan, region.DefaultChannels)
	return &Adapter{
		region:           region,
		channelPlan:      channelPlan,
		version:          version,
		serverType:       "lorawan-enddevice",
		rejoinMaxCount:   16,
		rejoinSendPeriod: 12 * time.Hour,
	}
}

func (a *Adapter) PrepareJoin(params JoinParams) error {
	a.pendingJoin = &params
	b, err := crypto.GenerateRandomBytes(2)
	if err != nil {
		return fmt.Errorf("generate dev nonce: %w", err)
	}
	a.devNonce = uint16(b[0]) | uint16(b[1])<<8
	return nil
}

// Join builds a Join-Request and marks TX ongoing (OTAA, abp == nil), or
// installs an ABP session synchronously (abp != nil). The built
// Join-Request is not kept; GetLastEncodedFrame reports only frames from
// SendOngoingTX.
func (a *Adapter) Join(abp *ABPParams) error {
	if abp != nil {
		a.session = lorawan.DeviceSession{
			DevAddr:  abp.DevAddr,
			AppSKey:  abp.AppSKey,
			FCntUp:   abp.FCntUp,
			FCntDown: abp.FCntDown,
		}
		if abp.FNwkSIntKey != nil {
			a.session.FNwkSIntKey = *abp.FNwkSIntKey
		} else {
			a.session.FNwkSIntKey = abp.NwkSKey
		}
		if abp.SNwkSIntKey != nil {
			a.session.SNwkSIntKey = *abp.SNwkSIntKey
		} else {
			a.session.SNwkSIntKey = abp.NwkSKey
		}
		if abp.NwkSEncKey != nil {
			a.session.NwkSEncKey = *abp.NwkSEncKey
		} else {
			a.session.NwkSEncKey = abp.NwkSKey
		}
		a.joined = true
		log.Info().Str("devAddr", hex.EncodeToString(abp.DevAddr[:])).Msg("ABP session installed")
		return nil
	}

	if a.pendingJoin == nil {
		return fmt.Errorf("join: no pending PrepareJoin params")
	}

	phy, err := a.buildJoinRequest(*a.pendingJoin)
	if err != nil {
		return fmt.Errorf("build join request: %w", err)
	}
	a.pendingOutgoing = nil
	a.txOngoingFlag = true
	_ = phy // built and MIC-signed, then discarded
	return nil
}

func (a *Adapter) buildJoinRequest(params JoinParams) (*lorawan.PHYPayload, error) {
	jr := lorawan.JoinRequestPayload{
		JoinEUI: params.JoinEUI,
		DevEUI:  params.DevEUI,
	}
	jr.DevNonce[0] = byte(a.devNonce)
	jr.DevNonce[1] = byte(a.devNonce >> 8)

	payload, err := jr.MarshalBinary()
	if err != nil {
		return nil, err
	}

	phy := &lorawan.PHYPayload{
		MHDR: lorawan.MHDR{
			MType: lorawan.JoinRequest,
			Major: a.version,
		},
		MACPayload: payload,
	}
	if err := phy.SetJoinRequestMIC(params.AppKey); err != nil {
		return nil, err
	}
	return phy, nil
}

// ContinueJoiningProcess is called on RX2 timeout while still not joined;
// it re-arms another Join-Request attempt with a fresh DevNonce.
func (a *Adapter) ContinueJoiningProcess() error {
	if a.pendingJoin == nil {
		return fmt.Errorf("continue joining: no pending join params")
	}
	return a.PrepareJoin(*a.pendingJoin)
}

func (a *Adapter) PrepareOngoingTX(msg OutgoingMessage) error {
	a.pendingOutgoing = &msg
	return nil
}

// SendOngoingTX encodes the message staged by PrepareOngoingTX into a real
// FHDR/MACPayload wire frame: sticky MAC commands become FOpts, the
// application payload is run through EncryptFRMPayload under AppSKey (or
// NwkSEncKey for port 0), SetUplinkDataMIC signs the whole thing under
// FNwkSIntKey, and FCntUp advances only once the frame is fully built.
func (a *Adapter) SendOngoingTX() error {
	if a.pendingOutgoing == nil {
		return fmt.Errorf("send ongoing tx: nothing prepared")
	}
	msg := a.pendingOutgoing

	mtype := lorawan.UnconfirmedDataUp
	if msg.Confirmed {
		mtype = lorawan.ConfirmedDataUp
	}

	var fopts []byte
	if len(msg.Sticky) > 0 {
		cmds := make([]lorawan.MACCommand, 0, len(msg.Sticky))
		for _, s := range msg.Sticky {
			cmds = append(cmds, stickyToMACCommand(s))
		}
		encoded, err := lorawan.EncodeMACCommands(cmds)
		if err != nil {
			return fmt.Errorf("encode sticky mac commands: %w", err)
		}
		fopts = encoded
	}

	macPayload := &lorawan.MACPayload{
		FHDR: lorawan.FHDR{
			DevAddr: a.session.DevAddr,
			FCnt:    uint16(a.session.FCntUp),
			FOpts:   fopts,
		},
	}
	if !msg.Proprietary {
		port := msg.Port
		macPayload.FPort = &port
	}
	if len(msg.Payload) > 0 {
		key := a.session.AppSKey
		if msg.Port == 0 {
			key = a.session.NwkSEncKey
		}
		encrypted, err := lorawan.EncryptFRMPayload(key[:], a.session.DevAddr, a.session.FCntUp, true, msg.Payload)
		if err != nil {
			return fmt.Errorf("encrypt frm payload: %w", err)
		}
		macPayload.FRMPayload = encrypted
	}

	raw, err := macPayload.Marshal(mtype, true)
	if err != nil {
		return fmt.Errorf("marshal mac payload: %w", err)
	}

	phy := &lorawan.PHYPayload{
		MHDR:       lorawan.MHDR{MType: mtype, Major: a.version},
		MACPayload: raw,
	}
	if err := phy.SetUplinkDataMIC(a.version, a.session.ConfFCnt, 0, 0, a.session.FNwkSIntKey, a.session.SNwkSIntKey); err != nil {
		return fmt.Errorf("set uplink mic: %w", err)
	}

	wire, err := phy.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal phy payload: %w", err)
	}

	sentFCnt := a.session.FCntUp
	a.session.FCntUp++
	a.lastEncodedFrame = wire
	a.txOngoingFlag = true

	log.Debug().
		Uint8("fPort", msg.Port).
		Uint32("fCntUp", sentFCnt).
		Int("bytes", len(wire)).
		Bool("confirmed", msg.Confirmed).
		Msg("uplink frame encoded")
	return nil
}

// GetLastEncodedFrame returns the wire bytes SendOngoingTX most recently
// produced, for a radio driver (or internal/radiosim) to transmit.
func (a *Adapter) GetLastEncodedFrame() []byte {
	return a.lastEncodedFrame
}

func (a *Adapter) ClearTXPipe() {
	a.pendingOutgoing = nil
	a.txOngoingFlag = false
}

// OnRadioTXDone reports the data-plane confirm for the just-completed TX.
// A real adapter would inspect duty-cycle/ACK state from the radio; the
// loopback simulator drives this deterministically for tests.
func (a *Adapter) OnRadioTXDone() MCPSConfirmation {
	a.txOngoingFlag = false
	if a.mcpsConfirm != nil {
		return *a.mcpsConfirm
	}
	return MCPSConfirmation{Status: MCPSConfirmOK}
}

// OnRadioRXDone parses a received PHY frame (Join-Accept or data) and
// stages the resulting confirm/indication for PostProcessMLMEInd/
// PostProcessMCPSInd to hand to the controller.
func (a *Adapter) OnRadioRXDone(slot Slot, payload []byte) error {
	a.currentSlot = slot

	if len(payload) < 1 {
		return fmt.Errorf("unmarshal rx payload: empty frame")
	}

	// Join-Accept's trailing 4 bytes are still part of the encrypted
	// block, not a standalone MIC field the way every other frame type
	// carries one - splitting it off here (as the generic
	// PHYPayload.UnmarshalBinary does) would leave DecryptJoinAcceptPayload
	// one AES block short.
	if lorawan.MType((payload[0]>>5)&0x07) == lorawan.JoinAccept {
		phy := lorawan.PHYPayload{
			MHDR:       lorawan.MHDR{MType: lorawan.JoinAccept, Major: lorawan.Major(payload[0] & 0x03)},
			MACPayload: append([]byte(nil), payload[1:]...),
		}
		return a.handleJoinAccept(&phy)
	}

	var phy lorawan.PHYPayload
	if err := phy.UnmarshalBinary(payload); err != nil {
		return fmt.Errorf("unmarshal rx payload: %w", err)
	}
	return a.handleDataFrame(&phy, slot)
}

func (a *Adapter) handleJoinAccept(phy *lorawan.PHYPayload) error {
	if a.pendingJoin == nil {
		return fmt.Errorf("join accept with no pending join")
	}

	if err := phy.DecryptJoinAcceptPayload(a.pendingJoin.AppKey); err != nil {
		a.mlmeInd = nil
		a.mlmeConfirm = &MLMEConfirmation{Type: MLMEJoinAccept, Status: MLMEStatusCryptoError}
		log.Warn().Err(err).Msg("join accept decrypt failed")
		return nil
	}

	var ja lorawan.JoinAcceptPayload
	if err := ja.UnmarshalBinary(phy.MACPayload); err != nil {
		return fmt.Errorf("unmarshal join accept: %w", err)
	}

	ok, err := phy.ValidateUplinkJoinMIC(a.pendingJoin.AppKey)
	if err != nil || !ok {
		a.mlmeConfirm = &MLMEConfirmation{Type: MLMEJoinAccept, Status: MLMEStatusCryptoError}
		log.Warn().Msg("join accept MIC invalid")
		return nil
	}

	var fNwkSIntKey, sNwkSIntKey, nwkSEncKey, appSKey lorawan.AES128Key
	devNonce := [2]byte{byte(a.devNonce), byte(a.devNonce >> 8)}
	if a.version == lorawan.LoRaWAN1_1 && a.pendingJoin.NwkKey != nil {
		appSKey, fNwkSIntKey, sNwkSIntKey, nwkSEncKey, err = lorawan.DeriveSessionKeys11(
			a.pendingJoin.NwkKey[:], a.pendingJoin.AppKey[:], ja.JoinNonce, a.pendingJoin.JoinEUI, devNonce)
	} else {
		fNwkSIntKey, appSKey, err = lorawan.DeriveSessionKeys10(
			a.pendingJoin.AppKey[:], ja.JoinNonce, ja.NetID, devNonce)
		sNwkSIntKey = fNwkSIntKey
		nwkSEncKey = fNwkSIntKey
	}
	if err != nil {
		return fmt.Errorf("derive session keys: %w", err)
	}

	a.session = lorawan.DeviceSession{
		DevEUI:      a.pendingJoin.DevEUI,
		DevAddr:     ja.DevAddr,
		JoinEUI:     a.pendingJoin.JoinEUI,
		FNwkSIntKey: fNwkSIntKey,
		SNwkSIntKey: sNwkSIntKey,
		NwkSEncKey:  nwkSEncKey,
		AppSKey:     appSKey,
		RX1DROffset: ja.DLSettings.RX1DROffset,
		RX2DR:       ja.DLSettings.RX2DataRate,
		RXDelay:     ja.RxDelay,
		CreatedAt:   time.Now(),
	}
	a.joined = true
	a.pendingJoin = nil

	a.mlmeConfirm = &MLMEConfirmation{Type: MLMEJoinAccept, Status: MLMEStatusOK, Session: a.session}

	rx1DR, err := a.region.GetRX1DataRateOffset(a.session.DR, a.session.RX1DROffset)
	if err != nil {
		log.Warn().Err(err).Uint8("rx1DROffset", a.session.RX1DROffset).Msg("rx1 data rate offset out of range, falling back to uplink DR")
		rx1DR = a.session.DR
	}
	log.Info().Str("devAddr", hex.EncodeToString(ja.DevAddr[:])).Uint8("rx1DataRate", rx1DR).Msg("join accepted")
	return nil
}

func (a *Adapter) handleDataFrame(phy *lorawan.PHYPayload, slot Slot) error {
	mac := &lorawan.MACPayload{}
	if err := mac.Unmarshal(phy.MACPayload, phy.MHDR.MType, false); err != nil {
		return fmt.Errorf("unmarshal data frame: %w", err)
	}

	valid, err := phy.ValidateDownlinkDataMIC(a.version, a.session.ConfFCnt, a.session.SNwkSIntKey)
	if err != nil || !valid {
		return fmt.Errorf("downlink MIC invalid")
	}

	var payload []byte
	var port uint8
	if mac.FPort != nil {
		port = *mac.FPort
		key := a.session.AppSKey
		if port == 0 {
			key = a.session.NwkSEncKey
		}
		payload, err = lorawan.EncryptFRMPayload(key[:], a.session.DevAddr, uint32(mac.FHDR.FCnt), false, mac.FRMPayload)
		if err != nil {
			return fmt.Errorf("decrypt frm payload: %w", err)
		}
	}

	if len(mac.FHDR.FOpts) > 0 {
		cmds, err := lorawan.ParseMACCommands(false, mac.FHDR.FOpts)
		if err == nil {
			a.handleMACCommands(cmds)
		}
	}

	a.session.FCntDown = lorawan.GetFullFCnt(a.session.FCntDown, mac.FHDR.FCnt)

	a.mcpsInd = &MCPSIndication{
		Port:     port,
		Payload:  payload,
		Slot:     slot,
		FPending: mac.FHDR.FCtrl.FPending,
	}
	return nil
}

func (a *Adapter) handleMACCommands(cmds []lorawan.MACCommand) {
	for _, cmd := range cmds {
		switch cmd.CID {
		case lorawan.LinkCheckAns:
			if len(cmd.Payload) >= 2 {
				a.mlmeConfirm = &MLMEConfirmation{
					Type:       MLMELinkCheck,
					Status:     MLMEStatusOK,
					Margin:     int(cmd.Payload[0]),
					NbGateways: int(cmd.Payload[1]),
				}
				log.Debug().
					Uint8("margin", cmd.Payload[0]).
					Uint8("gwCnt", cmd.Payload[1]).
					Msg("link check answer received")
			}
		case lorawan.DeviceTimeAns:
			if len(cmd.Payload) >= 5 {
				secs := uint32(cmd.Payload[0]) | uint32(cmd.Payload[1])<<8 | uint32(cmd.Payload[2])<<16 | uint32(cmd.Payload[3])<<24
				a.gpsTimeMs = int64(secs) * 1000
				a.gpsStampedAt = time.Now()
				a.mlmeConfirm = &MLMEConfirmation{
					Type:        MLMEDeviceTime,
					Status:      MLMEStatusOK,
					GPSTimeMs:   a.gpsTimeMs,
					TXTimestamp: a.gpsStampedAt,
				}
			}
		default:
			log.Debug().Uint8("cid", cmd.CID).Msg("unhandled received MAC command")
		}
	}
}

func (a *Adapter) OnRadioRXTimeout(slot Slot) {
	a.currentSlot = slot
}

func (a *Adapter) SetupLinkCheckRequest()                   {}
func (a *Adapter) SetupDeviceTimeRequest()                  {}
func (a *Adapter) SetupPingSlotInfoRequest(periodicity uint8) {}
func (a *Adapter) SetupResetRequest()                       {}
func (a *Adapter) SetupRekeyRequest()                       {}
func (a *Adapter) SetupDeviceModeRequest(class int)         { a.deviceClass = class }

func (a *Adapter) PostProcessMCPSReq() {}

func (a *Adapter) PostProcessMCPSInd() *MCPSIndication {
	out := a.mcpsInd
	a.mcpsInd = nil
	return out
}

func (a *Adapter) PostProcessMLMEInd() *MLMEIndication {
	out := a.mlmeInd
	a.mlmeInd = nil
	return out
}

func (a *Adapter) AddChannelPlan(channels []lorawan.Channel) error {
	a.channelPlan = append(a.channelPlan, channels...)
	return nil
}

func (a *Adapter) RemoveSingleChannel(index int) error {
	if index < 0 || index >= len(a.channelPlan) {
		return fmt.Errorf("channel index out of range: %d", index)
	}
	a.channelPlan = append(a.channelPlan[:index], a.channelPlan[index+1:]...)
	return nil
}

func (a *Adapter) RemoveChannelPlan() error {
	a.channelPlan = nil
	return nil
}

func (a *Adapter) GetChannelPlan() []lorawan.Channel {
	return a.channelPlan
}

func (a *Adapter) SetChannelDataRate(dr uint8) error {
	a.session.DR = dr
	return nil
}

func (a *Adapter) EnableAdaptiveDataRate(enabled bool) {
	a.adrEnabled = enabled
	a.session.ADR = enabled
}

func (a *Adapter) SetDeviceClass(class int) error {
	a.deviceClass = class
	return nil
}

func (a *Adapter) NwkJoined() bool { return a.joined }
func (a *Adapter) TxOngoing() bool { return a.txOngoingFlag }
func (a *Adapter) GetCurrentSlot() Slot { return a.currentSlot }

func (a *Adapter) GetMCPSConfirmation() *MCPSConfirmation { return a.mcpsConfirm }
func (a *Adapter) GetMCPSIndication() *MCPSIndication     { return a.mcpsInd }
func (a *Adapter) GetMLMEConfirmation() *MLMEConfirmation {
	out := a.mlmeConfirm
	a.mlmeConfirm = nil
	return out
}
func (a *Adapter) GetMLMEIndication() *MLMEIndication { return a.mlmeInd }

func (a *Adapter) EnableBeaconAcquisition(attempts int) {
	a.beaconAttempts = attempts
}

func (a *Adapter) GetLastRXBeacon() ([]byte, bool) {
	return a.lastBeacon, a.lastBeaconFound
}

func (a *Adapter) Rejoin(rejoinType int) error {
	if !a.joined {
		return fmt.Errorf("rejoin: no active session")
	}
	return nil
}

func (a *Adapter) GetRejoinParameters() (int, time.Duration) {
	return a.rejoinMaxCount, a.rejoinSendPeriod
}

// GetFrameCounters reports the session's current up/down frame counters,
// for the controller to mirror into its own status-facing Session.
func (a *Adapter) GetFrameCounters() (uint32, uint32) {
	return a.session.FCntUp, a.session.FCntDown
}

func (a *Adapter) GetServerType() string { return a.serverType }

func (a *Adapter) SetGPSTime(ms int64) {
	a.gpsTimeMs = ms
	a.gpsStampedAt = time.Now()
}

func (a *Adapter) GetGPSTime() int64 {
	if a.gpsTimeMs == 0 {
		return 0
	}
	elapsed := time.Since(a.gpsStampedAt).Milliseconds()
	return a.gpsTimeMs + elapsed
}

func (a *Adapter) GetCurrentTime() time.Time {
	return time.Now()
}
