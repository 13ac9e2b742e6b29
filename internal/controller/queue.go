package controller

import (
	"context"

	"github.com/rs/zerolog/log"
)

// eventQueue is the single-threaded deferred-work dispatcher of spec §2(2).
// Every ISR callback (radio TX/RX done, timer fire) posts a closure here
// instead of touching controller state directly. Posted closures take the
// controller's mutex before running, the same lock every façade call
// holds, which is what lets a plain sync.Mutex (rather than a hand-rolled
// reentrant lock) satisfy §5's serialization requirement — see facade.go.
type eventQueue struct {
	work chan func()
	done chan struct{}
}

const eventQueueDepth = 256

func newEventQueue() *eventQueue {
	return &eventQueue{
		work: make(chan func(), eventQueueDepth),
		done: make(chan struct{}),
	}
}

// run is the worker loop; callers start it in its own goroutine at
// initialize() and stop it by canceling ctx at shutdown.
func (q *eventQueue) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(q.done)
			return
		case fn := <-q.work:
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Error().Interface("panic", r).Msg("event queue handler panicked")
					}
				}()
				fn()
			}()
		}
	}
}

// post enqueues fn for the queue worker. Used by ISR-style callbacks
// (radio/timer) that must never block and must never run on the caller's
// own goroutine.
func (q *eventQueue) post(fn func()) {
	select {
	case q.work <- fn:
	default:
		log.Warn().Msg("event queue full, dropping posted work")
	}
}

// call defers fn to the next queue tick. Used by handlers that need to
// re-enter scheduling (e.g. the automatic uplink an MLME indication
// requests) without recursing
// under the façade's held lock — see design decision on recursive mutexes.
func (q *eventQueue) call(fn func()) {
	q.post(fn)
}
