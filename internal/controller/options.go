package controller

import (
	"time"

	"github.com/lorawan-server/lorawan-enddevice/pkg/lorawan"
)

// Options are the compile-time configuration knobs of spec §6, supplied by
// internal/config at construction time. Kept as a plain struct here (no
// import of internal/config) so the controller package has no dependency
// on the configuration loader's YAML/flag concerns.
type Options struct {
	DefaultActivation lorawan.ActivationMode
	SpecVersion       lorawan.Major

	AutomaticUplink         bool
	DefaultAppPort          uint8
	ComplianceTestingEnabled bool

	ClassBEnabled             bool
	PingSlotPeriodicity       uint8
	BeaconAcquisitionAttempts int
	BeaconlessPeriod          time.Duration

	RejoinType1SendPeriod time.Duration

	MaxConfirmedMsgRetries int
	ADRAckLimit            int

	// ConfirmedRetryBackoff delays a confirmed-retry or QoS-repeat resend;
	// cancel_sending can still abort the frame while it is pending (spec
	// §4.1 "cancel_sending", §8 scenario 5). Defaults to
	// defaultConfirmedRetryBackoff when zero.
	ConfirmedRetryBackoff time.Duration

	TAIUTCOffsetSeconds int

	Region string
}

// defaultConfirmedRetryBackoff mirrors the teacher's modest default
// duty-cycle gap between a failed attempt and the next retry.
const defaultConfirmedRetryBackoff = 2 * time.Second

// DefaultOptions mirrors the source's documented defaults (spec §6).
func DefaultOptions() Options {
	return Options{
		DefaultActivation:         lorawan.OTAA,
		SpecVersion:               lorawan.LoRaWAN1_0,
		AutomaticUplink:           true,
		DefaultAppPort:            1,
		ComplianceTestingEnabled:  false,
		ClassBEnabled:             false,
		PingSlotPeriodicity:       0,
		BeaconAcquisitionAttempts: 8,
		BeaconlessPeriod:          120 * time.Minute,
		RejoinType1SendPeriod:     12 * time.Hour,
		MaxConfirmedMsgRetries:    8,
		ADRAckLimit:               64,
		ConfirmedRetryBackoff:     defaultConfirmedRetryBackoff,
		TAIUTCOffsetSeconds:       19,
		Region:                    "EU868",
	}
}

// gpsUTCLeapOffsetSeconds is the TAI-GPS leap-second constant baked into
// GPS time, invariant regardless of configured TAI-UTC offset (spec
// supplement: set_system_time_utc).
const gpsUTCLeapOffsetSeconds = 19

const maxConfirmedMsgRetriesCeiling = 254
