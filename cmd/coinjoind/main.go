// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcwallet/walletdb"
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
	"github.com/btcsuite/coinjoind/chain"
	"github.com/btcsuite/coinjoind/coordinator"
	"github.com/btcsuite/coinjoind/internal/cfgutil"
	"github.com/btcsuite/coinjoind/prison"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// dbName is the file name of the database holding the ban list and
	// the round archive.
	dbName = "coinjoind.db"

	// dbTimeout is how long opening the database waits for its file lock.
	dbTimeout = 10 * time.Second
)

func main() {
	// Use all processor cores.
	runtime.GOMAXPROCS(runtime.NumCPU())

	// Work around defer not working after os.Exit.
	if err := coinjoindMain(); err != nil {
		os.Exit(1)
	}
}

// coinjoindMain is a work-around main function that is required since
// deferred functions (such as log flushing) are not called with calls to
// os.Exit. Instead, main runs this function and checks for a non-nil error,
// at which point any defers have already run, and if the error is non-nil,
// the program can be exited with an error exit status.
func coinjoindMain() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	log.Infof("Version %s on %s", version(), activeNet.Name)

	ctx := interruptListener()

	db, err := openDB(cfg.DataDir)
	if err != nil {
		log.Errorf("Unable to open database: %v", err)
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Errorf("Unable to close database: %v", err)
		}
	}()

	prisonStore, err := prison.NewDBStore(db)
	if err != nil {
		log.Errorf("Unable to open ban list: %v", err)
		return err
	}
	jail, err := prison.New(&prison.Config{
		NoteDuration: cfg.NoteDuration,
		BanDuration:  cfg.BanDuration,
		Clock:        clock.NewDefaultClock(),
		Store:        prisonStore,
	})
	if err != nil {
		log.Errorf("Unable to load ban list: %v", err)
		return err
	}

	roundStore, err := coordinator.NewDBStore(db)
	if err != nil {
		log.Errorf("Unable to open round archive: %v", err)
		return err
	}

	chainClient, err := startChainClient(cfg)
	if err != nil {
		log.Errorf("Unable to start chain client: %v", err)
		return err
	}
	defer chainClient.Stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	params, err := cfg.Round.params()
	if err != nil {
		return err
	}
	seed, err := cfg.issuerSeed()
	if err != nil {
		return err
	}

	coord, err := coordinator.New(&coordinator.Config{
		Params:         params,
		Net:            activeNet.Params,
		Utxos:          chainClient,
		Broadcaster:    chainClient,
		Prison:         jail,
		Store:          roundStore,
		Clock:          clock.NewDefaultClock(),
		Ticker:         ticker.New(cfg.Cadence),
		IssuerSeed:     seed,
		MinOpenRounds:  cfg.MinOpenRounds,
		RoundRetention: cfg.RoundRetention,
		Registerer:     registry,
	})
	if err != nil {
		log.Errorf("Unable to create coordinator: %v", err)
		return err
	}

	if cfg.MetricsListen != "" {
		server := startMetricsServer(cfg.MetricsListen, registry)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(
				context.Background(), defaultStopTimeout,
			)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Errorf("Unable to stop metrics server: %v",
					err)
			}
		}()
	}

	if err := coord.Start(ctx); err != nil {
		log.Errorf("Unable to start coordinator: %v", err)
		return err
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(
		context.Background(), defaultStopTimeout,
	)
	defer cancel()

	if err := coord.Stop(stopCtx); err != nil {
		log.Errorf("Unable to stop coordinator: %v", err)
	}

	notes, bans := jail.Counts()
	log.Infof("Shutdown complete with %d noted and %d banned inputs",
		notes, bans)

	return nil
}

// openDB opens the daemon database in dir, creating both when missing.
func openDB(dir string) (walletdb.DB, error) {
	if err := cfgutil.CheckCreateDir(dir); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dir, dbName)
	exists, err := cfgutil.FileExists(dbPath)
	if err != nil {
		return nil, err
	}
	if exists {
		return walletdb.Open("bdb", dbPath, true, dbTimeout, false)
	}

	log.Infof("Creating database %s", dbPath)

	return walletdb.Create("bdb", dbPath, true, dbTimeout, false)
}

// startChainClient connects to the configured btcd and checks it runs on
// the active network.
func startChainClient(cfg *config) (*chain.RPCClient, error) {
	var certs []byte
	if !cfg.DisableClientTLS {
		var err error
		certs, err = os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("unable to read btcd "+
				"certificate: %w", err)
		}
	}

	client, err := chain.NewRPCClientWithConfig(&chain.RPCClientConfig{
		Conn: &rpcclient.ConnConfig{
			Host:         cfg.RPCConnect,
			User:         cfg.BtcdUsername,
			Pass:         cfg.BtcdPassword,
			Certificates: certs,
			DisableTLS:   cfg.DisableClientTLS,
		},
		Chain:          activeNet.Params,
		IncludeMempool: cfg.IncludeMempool,
	})
	if err != nil {
		return nil, err
	}

	if err := client.Start(); err != nil {
		client.Stop()
		return nil, err
	}

	return client, nil
}

// startMetricsServer serves the registry's metrics on addr. A server that
// fails to listen requests a shutdown.
func startMetricsServer(addr string,
	registry *prometheus.Registry) *http.Server {

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		registry, promhttp.HandlerOpts{},
	))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Infof("Metrics server listening on %s", addr)

		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Metrics server failed: %v", err)
			simulateInterrupt()
		}
	}()

	return server
}
