// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package leasevm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
	"github.com/luxfi/database"
	"github.com/luxfi/database/versiondb"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/faas-tech/space-markets-sub007/utils/timer/mockable"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/access"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/api"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/config"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/events"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/metrics"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/stack"
)

var (
	errNotInitialized = errors.New("VM not initialized")
	errShutdown       = errors.New("VM is shutting down")

	genesisKey = []byte("genesis")
)

// VM executes every state changing call atomically against one database and
// publishes the events of committed calls.
type VM struct {
	config.Config

	log  log.Logger
	lock sync.RWMutex

	baseDB database.Database
	db     *versiondb.Database

	clock   mockable.Clock
	stack   *stack.Stack
	metrics *metrics.Metrics

	// committed is the sequence number of the newest committed event.
	committed  uint64
	publishers []*publisher
	publishing sync.WaitGroup
	stopCtx    context.Context
	stop       context.CancelFunc

	initialized bool
	shutdown    bool
}

// New returns an uninitialized VM.
func New(c config.Config, logger log.Logger) *VM {
	return &VM{
		Config: c,
		log:    logger,
	}
}

// Initialize opens the VM over db. Genesis is applied the first time db is
// used and ignored afterwards. Non-empty configBytes replace the VM config.
func (vm *VM) Initialize(
	ctx context.Context,
	db database.Database,
	genesisBytes []byte,
	configBytes []byte,
	registerer prometheus.Registerer,
) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	if len(configBytes) > 0 {
		c, err := config.Parse(configBytes)
		if err != nil {
			return err
		}
		vm.Config = c
	}
	if err := vm.Config.Verify(); err != nil {
		return err
	}

	vm.baseDB = db
	vm.db = versiondb.New(db)

	s, err := stack.NewStack(vm.db, vm.Config, &vm.clock)
	if err != nil {
		return fmt.Errorf("failed to build stack: %w", err)
	}
	vm.stack = s

	vm.metrics, err = metrics.New(registerer)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	if err := vm.applyGenesis(genesisBytes); err != nil {
		return err
	}

	vm.committed, err = vm.stack.Events.Last()
	if err != nil {
		return err
	}
	vm.stopCtx, vm.stop = context.WithCancel(context.Background())

	if vm.Kafka != nil {
		sink, err := events.NewKafkaSink(*vm.Kafka)
		if err != nil {
			return fmt.Errorf("failed to create kafka sink: %w", err)
		}
		vm.startPublisher("kafka", sink)
	}

	vm.initialized = true
	vm.log.Info("lease VM initialized",
		log.Uint64("networkID", vm.NetworkID),
		log.String("deployment", vm.Deployment),
		log.Stringer("factory", vm.stack.Addresses.Factory),
		log.Stringer("marketplace", vm.stack.Addresses.Marketplace),
		log.Uint64("lastEvent", vm.committed),
	)
	return nil
}

func (vm *VM) applyGenesis(genesisBytes []byte) error {
	done, err := vm.db.Has(genesisKey)
	if err != nil {
		return err
	}
	if done || len(genesisBytes) == 0 {
		return nil
	}

	g, err := config.ParseGenesis(genesisBytes)
	if err != nil {
		return err
	}

	s := vm.stack
	err = func() error {
		if err := s.Roles.Initialize(g.Admin); err != nil {
			return err
		}
		for _, addr := range g.Registrars {
			if err := s.Roles.Grant(g.Admin, access.RoleRegistrar, addr); err != nil {
				return err
			}
		}
		for _, addr := range g.MetadataAdmins {
			if err := s.Roles.Grant(g.Admin, access.RoleMetadataAdmin, addr); err != nil {
				return err
			}
		}
		for _, c := range g.Currencies {
			if err := s.Currency.Register(g.Admin, c.Address, c.Symbol, c.Decimals); err != nil {
				return err
			}
			for _, a := range c.Allocations {
				amount, err := a.Value()
				if err != nil {
					return err
				}
				if err := s.Currency.MintGenesis(c.Address, a.To, amount); err != nil {
					return err
				}
			}
		}
		return vm.db.Put(genesisKey, []byte{1})
	}()
	if err == nil {
		err = vm.db.Commit()
	}
	if err != nil {
		vm.db.Abort()
		return fmt.Errorf("failed to apply genesis: %w", err)
	}
	return nil
}

// Execute runs fn as one atomic call. Either every write fn makes is
// committed, or fn returns an error and none of them are.
func (vm *VM) Execute(op string, fn func(*stack.Stack) error) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	switch {
	case vm.shutdown:
		return errShutdown
	case !vm.initialized:
		return errNotInitialized
	}

	start := time.Now()
	err := vm.run(fn)
	if err == nil {
		err = vm.db.Commit()
	}
	if err != nil {
		vm.rollback()
	}
	class := Classify(err)
	vm.metrics.ObserveCall(op, string(class), time.Since(start))
	if err != nil {
		vm.log.Debug("call rejected",
			log.String("op", op),
			log.String("class", string(class)),
			log.Err(err),
		)
		return err
	}

	vm.advance()
	return nil
}

// run calls fn, discarding its writes before re-raising if it panics.
func (vm *VM) run(fn func(*stack.Stack) error) error {
	defer func() {
		if r := recover(); r != nil {
			vm.rollback()
			panic(r)
		}
	}()
	return fn(vm.stack)
}

func (vm *VM) rollback() {
	vm.db.Abort()
	vm.stack.Leases.Flush()
}

// View runs fn against committed state. fn must not write.
func (vm *VM) View(fn func(*stack.Stack) error) error {
	vm.lock.RLock()
	defer vm.lock.RUnlock()

	switch {
	case vm.shutdown:
		return errShutdown
	case !vm.initialized:
		return errNotInitialized
	}
	return fn(vm.stack)
}

// advance moves the committed event cursor past the events of the call that
// just committed and wakes the publishers. Must hold the write lock.
func (vm *VM) advance() {
	last, err := vm.stack.Events.Last()
	if err != nil {
		vm.log.Error("failed to read event log", log.Err(err))
		return
	}
	for from := vm.committed + 1; from <= last; {
		batch, err := vm.stack.Events.Range(from, events.MaxRange)
		if err != nil || len(batch) == 0 {
			vm.log.Error("failed to read events",
				log.Uint64("from", from),
				log.Err(err),
			)
			break
		}
		vm.metrics.ObserveEvents(batch)
		from = batch[len(batch)-1].Seq + 1
	}
	if last <= vm.committed {
		return
	}
	vm.committed = last
	for _, p := range vm.publishers {
		p.wake()
	}
}

// AddSink starts publishing events committed from now on to sink.
func (vm *VM) AddSink(name string, sink events.Sink) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	switch {
	case vm.shutdown:
		return errShutdown
	case !vm.initialized:
		return errNotInitialized
	}
	vm.startPublisher(name, sink)
	return nil
}

// Clock exposes the clock used for call timestamps.
func (vm *VM) Clock() *mockable.Clock {
	return &vm.clock
}

// Now returns the clock time in unix seconds.
func (vm *VM) Now() uint64 {
	return vm.clock.Unix()
}

// MaxEvents is the largest page GetEvents will serve.
func (vm *VM) MaxEvents() int {
	return vm.MaxEventRange
}

// CreateHandlers returns the JSON-RPC handler of the VM.
func (vm *VM) CreateHandlers(context.Context) (map[string]http.Handler, error) {
	server := rpc.NewServer()
	server.RegisterCodec(json2.NewCodec(), "application/json")
	server.RegisterCodec(json2.NewCodec(), "application/json;charset=UTF-8")
	if err := server.RegisterService(api.NewService(vm), "lease"); err != nil {
		return nil, fmt.Errorf("failed to register lease service: %w", err)
	}
	return map[string]http.Handler{
		"": server,
	}, nil
}

// HealthCheck reports whether the VM can serve calls.
func (vm *VM) HealthCheck(context.Context) (interface{}, error) {
	vm.lock.RLock()
	defer vm.lock.RUnlock()

	if !vm.initialized || vm.shutdown {
		return map[string]interface{}{"healthy": false}, errNotInitialized
	}
	assets, err := vm.stack.Registry.AssetCount()
	if err != nil {
		return nil, err
	}
	leases, err := vm.stack.Leases.LeaseCount()
	if err != nil {
		return nil, err
	}
	offers, err := vm.stack.Marketplace.OfferCount()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"healthy":   true,
		"assets":    assets,
		"leases":    leases,
		"offers":    offers,
		"lastEvent": vm.committed,
		"sinks":     vm.sinkStatus(),
	}, nil
}

// Shutdown stops the publishers, then closes the sinks and the database.
// Events a sink has not received yet stay in the event log.
func (vm *VM) Shutdown(context.Context) error {
	vm.lock.Lock()
	if vm.shutdown {
		vm.lock.Unlock()
		return nil
	}
	vm.shutdown = true
	publishers := vm.publishers
	vm.lock.Unlock()

	if vm.stop != nil {
		vm.stop()
	}
	vm.publishing.Wait()

	var errs []error
	for _, p := range publishers {
		errs = append(errs, p.sink.Close())
	}

	vm.lock.Lock()
	defer vm.lock.Unlock()
	if vm.db != nil {
		errs = append(errs, vm.db.Close())
	}
	vm.log.Info("lease VM shut down")
	return errors.Join(errs...)
}
