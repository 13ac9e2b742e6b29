package controller

import (
	"time"

	"github.com/lorawan-server/lorawan-enddevice/pkg/lorawan"
)

// Session is the in-memory activation state: active flag plus
// uplink/downlink frame counters. It is created on successful join. At
// shutdown an OTAA session is zeroed, while an ABP session only goes
// inactive and keeps its frame counters for the next ABP connect. There is no
// persisted representation: a fresh process always starts ABP sessions at
// zero.
type Session struct {
	Active bool

	DevEUI  lorawan.EUI64
	DevAddr lorawan.DevAddr
	JoinEUI lorawan.EUI64

	FNwkSIntKey lorawan.AES128Key
	SNwkSIntKey lorawan.AES128Key
	NwkSEncKey  lorawan.AES128Key
	AppSKey     lorawan.AES128Key

	UplinkCounter   uint32
	DownlinkCounter uint32
	ConfFCnt        uint32

	Mode lorawan.ActivationMode

	RX1Delay    uint8
	RX1DROffset uint8
	RX2DR       uint8
	RX2Freq     uint32

	DR      uint8
	TXPower uint8
	NbTrans uint8

	JoinedAt time.Time
}

// resetForOTAA zeroes the session for every new OTAA connect.
func (s *Session) resetForOTAA() {
	*s = Session{Mode: lorawan.OTAA}
}

// ActivationParams carries the caller-supplied keys for connect().
type ActivationParams struct {
	Mode lorawan.ActivationMode

	// OTAA
	DevEUI  lorawan.EUI64
	JoinEUI lorawan.EUI64
	AppKey  lorawan.AES128Key
	NwkKey  *lorawan.AES128Key // v1.1 only

	// ABP
	DevAddr     lorawan.DevAddr
	NwkSKey     lorawan.AES128Key // 1.0.x: single network session key
	AppSKey     lorawan.AES128Key
	FNwkSIntKey *lorawan.AES128Key // v1.1
	SNwkSIntKey *lorawan.AES128Key // v1.1
	NwkSEncKey  *lorawan.AES128Key // v1.1
}
