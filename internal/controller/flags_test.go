package controller

import "testing"

func TestFlagWordSetClear(t *testing.T) {
	tests := []struct {
		name string
		flag ControlFlags
	}{
		{"connected", FlagConnected},
		{"connect in progress", FlagConnectInProgress},
		{"using otaa", FlagUsingOTAA},
		{"tx done", FlagTxDone},
		{"retry exhausted", FlagRetryExhausted},
		{"msg received", FlagMsgReceived},
		{"rejoin in progress", FlagRejoinInProgress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f flagWord

			if f.has(tt.flag) {
				t.Fatalf("flag %v set before any operation", tt.flag)
			}

			f.set(tt.flag)
			if !f.has(tt.flag) {
				t.Fatalf("flag %v not set after set()", tt.flag)
			}

			f.clear(tt.flag)
			if f.has(tt.flag) {
				t.Fatalf("flag %v still set after clear()", tt.flag)
			}
		})
	}
}

func TestFlagWordIndependence(t *testing.T) {
	var f flagWord
	f.set(FlagConnected)
	f.set(FlagTxDone)

	if !f.has(FlagConnected) || !f.has(FlagTxDone) {
		t.Fatal("expected both flags set")
	}

	f.clear(FlagConnected)
	if f.has(FlagConnected) {
		t.Fatal("connected should be cleared")
	}
	if !f.has(FlagTxDone) {
		t.Fatal("clearing one flag should not affect another")
	}
}

func TestRejoinInProgressObservableWithoutLock(t *testing.T) {
	var f flagWord

	if f.rejoinInProgress() {
		t.Fatal("rejoin should not be in progress initially")
	}

	f.set(FlagRejoinInProgress)
	if !f.rejoinInProgress() {
		t.Fatal("rejoinInProgress() should observe the atomic mirror")
	}

	f.clear(FlagRejoinInProgress)
	if f.rejoinInProgress() {
		t.Fatal("rejoinInProgress() should clear along with the bit")
	}
}
