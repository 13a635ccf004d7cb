// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package leasevm

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/luxfi/log"

	"github.com/faas-tech/space-markets-sub007/vms/leasevm/events"
)

// publisher feeds one sink from the event log. Each sink advances at its own
// pace and is retried from its last accepted event after a failure.
type publisher struct {
	name string
	sink events.Sink

	// delivered is the sequence number of the newest event the sink accepted.
	delivered atomic.Uint64
	notify    chan struct{}
}

func (p *publisher) wake() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// startPublisher starts delivering events committed after now to sink. Must
// hold the write lock.
func (vm *VM) startPublisher(name string, sink events.Sink) {
	p := &publisher{
		name:   name,
		sink:   sink,
		notify: make(chan struct{}, 1),
	}
	p.delivered.Store(vm.committed)
	vm.publishers = append(vm.publishers, p)

	vm.publishing.Add(1)
	go vm.publish(p)
}

func (vm *VM) publish(p *publisher) {
	defer vm.publishing.Done()

	done := vm.stopCtx.Done()
	for {
		err := vm.drain(p)
		if err == nil {
			select {
			case <-done:
				return
			case <-p.notify:
			}
			continue
		}
		if vm.stopCtx.Err() != nil {
			return
		}

		vm.metrics.SinkFailed(p.name)
		vm.log.Warn("failed to publish events",
			log.String("sink", p.name),
			log.Uint64("delivered", p.delivered.Load()),
			log.Err(err),
		)
		select {
		case <-done:
			return
		case <-time.After(vm.SinkRetryInterval):
		}
	}
}

// drain hands the sink every committed event it has not accepted yet.
func (vm *VM) drain(p *publisher) error {
	for {
		batch, err := vm.pending(p.delivered.Load())
		if err != nil || len(batch) == 0 {
			return err
		}

		ctx, cancel := context.WithTimeout(vm.stopCtx, vm.SinkTimeout)
		err = p.sink.Publish(ctx, batch)
		cancel()
		if err != nil {
			return fmt.Errorf("events %d to %d: %w", batch[0].Seq, batch[len(batch)-1].Seq, err)
		}
		p.delivered.Store(batch[len(batch)-1].Seq)
	}
}

// pending returns the next committed events after seq.
func (vm *VM) pending(after uint64) ([]events.Event, error) {
	vm.lock.RLock()
	defer vm.lock.RUnlock()

	if vm.shutdown || after >= vm.committed {
		return nil, nil
	}
	n := min(vm.committed-after, uint64(events.MaxRange))
	return vm.stack.Events.Range(after+1, int(n))
}

// sinkStatus reports the newest event each sink accepted. Must hold the lock.
func (vm *VM) sinkStatus() map[string]uint64 {
	status := make(map[string]uint64, len(vm.publishers))
	for _, p := range vm.publishers {
		status[p.name] = p.delivered.Load()
	}
	return status
}
