package controller

import (
	"testing"
	"time"
)

func TestRejoinType0ThresholdAndReset(t *testing.T) {
	r := &rejoinState{type0MaxCount: 3}

	for i := 0; i < 2; i++ {
		if result := r.poll(time.Now()); result != pollNone {
			t.Fatalf("expected no poll result before threshold, got %v", result)
		}
		r.incrementType0Counter()
	}
	r.incrementType0Counter()

	if result := r.poll(time.Now()); result != pollType0 {
		t.Fatalf("expected pollType0 once counter reaches max, got %v", result)
	}
	if r.type0Counter != 0 {
		t.Fatalf("counter should reset after a type-0 poll fires, got %d", r.type0Counter)
	}
}

func TestRejoinType1SendPeriod(t *testing.T) {
	r := &rejoinState{type1SendPeriod: time.Hour}
	now := time.Now()
	r.type1Stamp = now

	if result := r.poll(now.Add(30 * time.Minute)); result != pollNone {
		t.Fatalf("expected no poll before send period elapses, got %v", result)
	}

	if result := r.poll(now.Add(2 * time.Hour)); result != pollType1 {
		t.Fatalf("expected pollType1 after send period elapses, got %v", result)
	}
}

func TestForcedRejoinType1CoercedToType0(t *testing.T) {
	r := &rejoinState{}
	r.armForced(3, time.Minute, 5, RejoinType1)

	if r.forcedType != RejoinType0 {
		t.Fatalf("type 1 in a forced-rejoin confirm must be coerced to type 0, got %v", r.forcedType)
	}
}

func TestForcedRejoinExhaustion(t *testing.T) {
	r := &rejoinState{}
	r.armForced(3, time.Minute, 2, RejoinType0)

	if r.forcedExhausted() {
		t.Fatal("should not be exhausted before any attempt")
	}
	r.recordForcedAttempt()
	if r.forcedExhausted() {
		t.Fatal("should not be exhausted after 1 of 2 attempts")
	}
	r.recordForcedAttempt()
	if !r.forcedExhausted() {
		t.Fatal("should be exhausted after max_retries attempts")
	}
}

func TestForcedRejoinJitterWithinBounds(t *testing.T) {
	r := &rejoinState{}
	base := 10 * time.Second
	r.armForced(3, base, 5, RejoinType0)

	if r.forcedPeriod < base || r.forcedPeriod > base+32*time.Millisecond {
		t.Fatalf("expected jitter of 0..32ms added to period, got %v", r.forcedPeriod-base)
	}
}
