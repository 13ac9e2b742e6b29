package controller

import "fmt"

// Status is the façade's error taxonomy. Every protocol operation returns a
// Status instead of unwinding; only programmer errors (nil pointers, etc.)
// would ever reach a Go panic, and none of the paths below do.
type Status int

const (
	StatusOK Status = iota

	// Configuration
	StatusNotInitialized
	StatusParameterInvalid
	StatusPortInvalid
	StatusServiceUnknown
	StatusUnsupported

	// Liveness
	StatusBusy
	StatusWouldBlock
	StatusNoOp
	StatusAlreadyConnected
	StatusNoActiveSessions
	StatusNoNetworkJoined
	StatusConnectInProgress

	// Physical
	StatusFrequencyInvalid
	StatusDatarateInvalid
	StatusFreqAndDRInvalid
	StatusLengthError
	StatusNoBeaconFound

	// Lifecycle
	StatusDeviceOff

	// Metadata
	StatusMetadataNotAvailable
)

var statusNames = map[Status]string{
	StatusOK:                   "OK",
	StatusNotInitialized:       "NOT_INITIALIZED",
	StatusParameterInvalid:     "PARAMETER_INVALID",
	StatusPortInvalid:          "PORT_INVALID",
	StatusServiceUnknown:       "SERVICE_UNKNOWN",
	StatusUnsupported:          "UNSUPPORTED",
	StatusBusy:                 "BUSY",
	StatusWouldBlock:           "WOULD_BLOCK",
	StatusNoOp:                 "NO_OP",
	StatusAlreadyConnected:     "ALREADY_CONNECTED",
	StatusNoActiveSessions:     "NO_ACTIVE_SESSIONS",
	StatusNoNetworkJoined:      "NO_NETWORK_JOINED",
	StatusConnectInProgress:    "CONNECT_IN_PROGRESS",
	StatusFrequencyInvalid:     "FREQUENCY_INVALID",
	StatusDatarateInvalid:      "DATARATE_INVALID",
	StatusFreqAndDRInvalid:     "FREQ_AND_DR_INVALID",
	StatusLengthError:          "LENGTH_ERROR",
	StatusNoBeaconFound:        "NO_BEACON_FOUND",
	StatusDeviceOff:            "DEVICE_OFF",
	StatusMetadataNotAvailable: "METADATA_NOT_AVAILABLE",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATUS(%d)", int(s))
}

// Error satisfies the error interface so a Status can be wrapped with
// fmt.Errorf by callers that need to, without the façade itself returning
// a plain Go error from a protocol operation.
func (s Status) Error() string {
	return s.String()
}

// OK reports whether the status represents success.
func (s Status) OK() bool {
	return s == StatusOK
}
