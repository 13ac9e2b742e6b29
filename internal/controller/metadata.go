package controller

import "time"

// TXMetadata is filled when a transmission completes. Like RXMetadata and
// BackoffMetadata it carries read-once semantics: a successful Get marks
// it stale, and the next arming clears stale again (spec §3).
type TXMetadata struct {
	stale bool

	Channel    int
	Datarate   int
	TXPower    int
	NbRetries  int
	Status     Status
	CompletedAt time.Time
}

// RXMetadata additionally carries the radio quality figures spec §3 lists.
type RXMetadata struct {
	stale bool

	Datarate   int
	RSSI       float64
	SNR        float64
	Channel    int
	TimeOnAir  time.Duration
	CompletedAt time.Time
}

// BackoffMetadata reports the currently pending back-off delay, if any.
type BackoffMetadata struct {
	stale bool

	BackoffMs int64
	Armed     bool
}

// metadataStore owns the three read-once snapshots.
type metadataStore struct {
	tx      TXMetadata
	rx      RXMetadata
	backoff BackoffMetadata
}

// newMetadataStore starts all three snapshots stale: nothing has been
// armed yet, so the first Get must return METADATA_NOT_AVAILABLE.
func newMetadataStore() *metadataStore {
	return &metadataStore{
		tx:      TXMetadata{stale: true},
		rx:      RXMetadata{stale: true},
		backoff: BackoffMetadata{stale: true},
	}
}

func (m *metadataStore) armTX(v TXMetadata) {
	v.stale = false
	m.tx = v
}

func (m *metadataStore) armRX(v RXMetadata) {
	v.stale = false
	m.rx = v
}

func (m *metadataStore) armBackoff(v BackoffMetadata) {
	v.stale = false
	m.backoff = v
}

// getTX implements read-once: OK once, METADATA_NOT_AVAILABLE afterward
// until the next arming.
func (m *metadataStore) getTX() (TXMetadata, Status) {
	if m.tx.stale {
		return TXMetadata{}, StatusMetadataNotAvailable
	}
	out := m.tx
	m.tx.stale = true
	return out, StatusOK
}

func (m *metadataStore) getRX() (RXMetadata, Status) {
	if m.rx.stale {
		return RXMetadata{}, StatusMetadataNotAvailable
	}
	out := m.rx
	m.rx.stale = true
	return out, StatusOK
}

func (m *metadataStore) getBackoff() (BackoffMetadata, Status) {
	if m.backoff.stale {
		return BackoffMetadata{}, StatusMetadataNotAvailable
	}
	out := m.backoff
	m.backoff.stale = true
	return out, StatusOK
}
