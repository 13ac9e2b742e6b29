package controller

import (
	"math/rand"
	"time"
)

// RejoinType is the LoRaWAN v1.1 rejoin-request flavor.
type RejoinType int

const (
	RejoinType0 RejoinType = iota
	RejoinType1
	RejoinType2
)

// rejoinState is the v1.1-only forced/periodic rejoin bookkeeping of spec §3.
type rejoinState struct {
	// Forced rejoin (MLME_FORCE_REJOIN)
	forcedDatarate   int
	forcedPeriod     time.Duration
	forcedMaxRetries int
	forcedType       RejoinType
	forcedAttempts   int

	// Periodic rejoin
	type1SendPeriod time.Duration
	type1Stamp      time.Time
	type0Counter    int
	type0MaxCount   int
}

// armForced parses an MLME_FORCE_REJOIN confirm's parameters. Type 1 in the
// confirm is coerced to Type 0 per spec §4.2 "Forced rejoin", and a random
// jitter of 0..32ms is added to the period.
func (r *rejoinState) armForced(datarate int, period time.Duration, maxRetries int, rtype RejoinType) {
	if rtype == RejoinType1 {
		rtype = RejoinType0
	}
	jitter := time.Duration(rand.Intn(33)) * time.Millisecond
	r.forcedDatarate = datarate
	r.forcedPeriod = period + jitter
	r.forcedMaxRetries = maxRetries
	r.forcedType = rtype
	r.forcedAttempts = 0
}

// forcedExhausted reports whether the max_retries budget for the current
// forced-rejoin timer has been spent.
func (r *rejoinState) forcedExhausted() bool {
	return r.forcedAttempts >= r.forcedMaxRetries
}

func (r *rejoinState) recordForcedAttempt() {
	r.forcedAttempts++
}

// pollResult is what poll() decided to do, if anything.
type pollResult int

const (
	pollNone pollResult = iota
	pollType0
	pollType1
)

// poll implements "Rejoin polling (v1.1 only)": after each processed
// reception in Connected state, check the type-1 send-period stamp first,
// then the type-0 counter threshold.
func (r *rejoinState) poll(now time.Time) pollResult {
	if r.type1SendPeriod > 0 && now.Sub(r.type1Stamp) >= r.type1SendPeriod {
		r.type1Stamp = now
		return pollType1
	}
	if r.type0MaxCount > 0 && r.type0Counter >= r.type0MaxCount {
		r.type0Counter = 0
		return pollType0
	}
	return pollNone
}

func (r *rejoinState) incrementType0Counter() {
	r.type0Counter++
}
