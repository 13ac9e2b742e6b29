package controller

import "testing"

func TestMetadataReadOnce(t *testing.T) {
	m := newMetadataStore()

	if _, status := m.getTX(); status != StatusMetadataNotAvailable {
		t.Fatalf("expected METADATA_NOT_AVAILABLE before any arm, got %v", status)
	}

	m.armTX(TXMetadata{NbRetries: 3})

	if _, status := m.getTX(); status != StatusOK {
		t.Fatalf("expected OK on first read after arm, got %v", status)
	}

	if _, status := m.getTX(); status != StatusMetadataNotAvailable {
		t.Fatalf("expected METADATA_NOT_AVAILABLE on second consecutive read, got %v", status)
	}
}

func TestMetadataRXAndBackoffIndependentlyStale(t *testing.T) {
	m := newMetadataStore()

	m.armRX(RXMetadata{RSSI: -80})
	if _, status := m.getBackoff(); status != StatusMetadataNotAvailable {
		t.Fatal("arming RX metadata must not arm backoff metadata")
	}

	rx, status := m.getRX()
	if status != StatusOK || rx.RSSI != -80 {
		t.Fatalf("expected armed RX metadata, got %v status=%v", rx, status)
	}
}

func TestMetadataValueSurvivesUntilRead(t *testing.T) {
	m := newMetadataStore()
	m.armTX(TXMetadata{NbRetries: 7})
	m.armTX(TXMetadata{NbRetries: 9})

	tx, status := m.getTX()
	if status != StatusOK {
		t.Fatalf("expected OK, got %v", status)
	}
	if tx.NbRetries != 9 {
		t.Fatalf("re-arming before read should replace the snapshot, got %d", tx.NbRetries)
	}
}
