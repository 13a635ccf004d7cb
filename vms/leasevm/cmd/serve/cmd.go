// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package serve runs the lease VM behind an HTTP server.
package serve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/luxfi/database"
	"github.com/luxfi/database/badgerdb"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/faas-tech/space-markets-sub007/vms/leasevm"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/config"
)

const endpoint = "/ext/lease"

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "serve",
		Short: "Serves the lease VM JSON-RPC API",
		RunE:  serveFunc,
	}
	AddFlags(c.Flags())
	return c
}

func serveFunc(c *cobra.Command, _ []string) error {
	cfg, err := ParseFlags(c.Flags())
	if err != nil {
		return err
	}
	ctx := c.Context()
	logger := log.Root()

	db, err := openDB(cfg.DataDir)
	if err != nil {
		return err
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	if err := errors.Join(
		registry.Register(collectors.NewGoCollector()),
		registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})),
	); err != nil {
		return err
	}

	vm := leasevm.New(config.DefaultConfig(), logger)
	if err := vm.Initialize(ctx, db, cfg.GenesisBytes, cfg.ConfigBytes, registry); err != nil {
		return fmt.Errorf("failed to initialize VM: %w", err)
	}
	defer vm.Shutdown(context.Background())

	handlers, err := vm.CreateHandlers(ctx)
	if err != nil {
		return err
	}

	router := mux.NewRouter()
	for path, h := range handlers {
		router.Handle(endpoint+path, h)
	}
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status, err := vm.HealthCheck(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	}).Methods(http.MethodGet)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("serving lease VM",
			log.String("addr", cfg.HTTPAddr),
			log.String("endpoint", endpoint),
			log.Bool("persistent", cfg.DataDir != ""),
		)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openDB(dir string) (database.Database, error) {
	if dir == "" {
		return memdb.New(), nil
	}
	db, err := badgerdb.New(dir, nil, "", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", dir, err)
	}
	return db, nil
}
