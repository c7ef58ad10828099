package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const turnQueueCapacity = 10

// turnQueue serializes triggers: turns run one at a time, in the order
// their triggers were ingested. Triggers raised while a turn is running
// wait in the queue.
type turnQueue struct {
	queue   chan queuedTrigger
	closeCh chan struct{}
	done    chan struct{}

	startOnce sync.Once
	endOnce   sync.Once

	started atomic.Bool
}

type queuedTrigger struct {
	trigger  Trigger
	queuedAt time.Time
}

func newTurnQueue() *turnQueue {
	return &turnQueue{
		queue:   make(chan queuedTrigger, turnQueueCapacity),
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (loop *turnQueue) CanIngest() bool {
	if loop == nil {
		return false
	}

	select {
	case <-loop.closeCh:
		return false
	default:
		return true
	}
}

// StartLoop begins draining the queue, running startTurn for each
// trigger in order. It returns whether this call started the loop; the
// loop can be started at most once.
func (loop *turnQueue) StartLoop(baseCtx context.Context, startTurn func(context.Context, Trigger) error) (started bool) {
	if loop == nil || startTurn == nil || !loop.CanIngest() {
		return false
	}

	loop.startOnce.Do(func() {
		if !loop.CanIngest() {
			return
		}

		started = true
		loop.started.Store(true)
		go func() {
			defer close(loop.done)

			for {
				select {
				case <-loop.closeCh:
					return
				case next := <-loop.queue:
					if !loop.CanIngest() {
						return
					}
					loop.processQueuedTrigger(baseCtx, next, startTurn)
				}
			}
		}()
	})

	return started
}

func (loop *turnQueue) Stop() {
	if loop == nil {
		return
	}

	loop.endOnce.Do(func() { close(loop.closeCh) })
}

// Clear drops every waiting trigger without running it.
func (loop *turnQueue) Clear() {
	if loop == nil {
		return
	}

	for {
		select {
		case <-loop.queue:
		default:
			return
		}
	}
}

// AwaitDone blocks until the loop goroutine exits. It returns
// immediately if the loop was never started.
func (loop *turnQueue) AwaitDone() {
	if loop == nil {
		return
	}

	if loop.started.Load() {
		<-loop.done
	}
}

func (loop *turnQueue) Ingest(trigger Trigger) bool {
	if loop == nil || !loop.CanIngest() {
		return false
	}

	item := queuedTrigger{trigger: trigger, queuedAt: time.Now()}
	select {
	case <-loop.closeCh:
		return false
	case loop.queue <- item:
		return true
	}
}

func (loop *turnQueue) processQueuedTrigger(
	baseContext context.Context,
	next queuedTrigger,
	startTurn func(context.Context, Trigger) error,
) {
	turnCtx, turnCancel := context.WithCancel(baseContext)
	defer turnCancel()

	go func() {
		select {
		case <-loop.closeCh:
			turnCancel()
		case <-turnCtx.Done():
		}
	}()

	ctx, span := tracer.Start(turnCtx, "process turn")
	defer span.End()

	queuedTime := time.Since(next.queuedAt).Seconds()
	span.AddEvent("taken out of queue", trace.WithAttributes(attribute.Float64("assistant_turn.queued_time", queuedTime)))
	span.SetAttributes(attribute.Float64("assistant_turn.queued_time", queuedTime))

	if err := startTurn(ctx, next.trigger); err != nil {
		err := fmt.Errorf("failed to start new turn: %v", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func (loop *turnQueue) queuedCount() int {
	if loop == nil {
		return 0
	}

	return len(loop.queue)
}
