package controller

// MessageFlag is the application-contract flag set for send()/receive()
// (spec §6): UNCONFIRMED/CONFIRMED/PROPRIETARY are mutually exclusive for
// send; MULTICAST is receive-only and may be OR-ed with the others there.
type MessageFlag uint8

const (
	FlagUnconfirmed MessageFlag = 0x01
	FlagConfirmed   MessageFlag = 0x02
	FlagMulticast   MessageFlag = 0x04
	FlagProprietary MessageFlag = 0x08
)

// txDescriptor is the TX message descriptor of spec §3.
type txDescriptor struct {
	port        uint8
	payload     []byte
	flags       MessageFlag
	retryBudget int
	attempts    int
}

func (t *txDescriptor) confirmed() bool {
	return t.flags&FlagConfirmed != 0
}

// rxDescriptor is the RX message descriptor of spec §3, implementing the
// chunked-read contract of §4.3: a single contiguous buffer with
// bytes-pending/bytes-previously-read bookkeeping.
type rxDescriptor struct {
	buffer       []byte
	totalSize    int
	pending      int
	prevReadSize int
	receiveReady bool
	port         uint8
	flags        MessageFlag
}

// read copies up to len(dst) bytes per the §4.3 chunked-read rules,
// returning the bytes copied. When the descriptor's pending count reaches
// zero, receiveReady drops to false and the buffer is released.
func (r *rxDescriptor) read(dst []byte) int {
	if !r.receiveReady || r.pending == 0 {
		return 0
	}

	offset := r.totalSize - r.pending
	n := len(dst)
	if n > r.pending {
		n = r.pending
	}
	copy(dst, r.buffer[offset:offset+n])

	r.pending -= n
	r.prevReadSize = n

	if r.pending == 0 {
		r.receiveReady = false
		r.buffer = nil
	}
	return n
}
