package controller

import "sync/atomic"

// ControlFlags is the bitset of transient protocol conditions described in
// spec §3. Every bit is written exclusively from the event-queue goroutine
// except rejoinInProgress, which the radio-deferred path may also observe;
// that one bit is additionally mirrored into an atomic so a read from
// outside the queue is race-free.
type ControlFlags uint32

const (
	FlagConnected ControlFlags = 1 << iota
	FlagConnectInProgress
	FlagUsingOTAA
	FlagTxDone
	FlagRetryExhausted
	FlagMsgReceived
	FlagRejoinInProgress
)

// flagWord owns the bitset plus the one atomically-observable bit called
// out by spec §5 (ISR-to-event-queue handoff for rejoin-in-progress).
type flagWord struct {
	bits           ControlFlags
	rejoinObserved atomic.Bool
}

func (f *flagWord) set(flag ControlFlags) {
	f.bits |= flag
	if flag&FlagRejoinInProgress != 0 {
		f.rejoinObserved.Store(true)
	}
}

func (f *flagWord) clear(flag ControlFlags) {
	f.bits &^= flag
	if flag&FlagRejoinInProgress != 0 {
		f.rejoinObserved.Store(false)
	}
}

func (f *flagWord) has(flag ControlFlags) bool {
	return f.bits&flag != 0
}

// rejoinInProgress is safe to call from outside the event-queue goroutine.
func (f *flagWord) rejoinInProgress() bool {
	return f.rejoinObserved.Load()
}
