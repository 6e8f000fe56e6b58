// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// signals defines the signals that are handled to do a clean shutdown.
var signals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// simulateInterruptChannel carries shutdown requests of internal components.
var simulateInterruptChannel = make(chan struct{}, 1)

// simulateInterrupt requests invoking the clean termination process by an
// internal component instead of a signal.
func simulateInterrupt() {
	select {
	case simulateInterruptChannel <- struct{}{}:
	default:
	}
}

// interruptListener returns a context that is cancelled on the first
// shutdown signal or simulated interrupt. A second signal exits the process
// immediately.
func interruptListener() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	interruptChannel := make(chan os.Signal, 1)
	signal.Notify(interruptChannel, signals...)

	go func() {
		select {
		case sig := <-interruptChannel:
			log.Infof("Received signal (%s). Shutting down...", sig)

		case <-simulateInterruptChannel:
			log.Info("Received shutdown request. Shutting down...")
		}
		cancel()

		sig := <-interruptChannel
		log.Warnf("Received signal (%s) during shutdown, exiting "+
			"immediately", sig)
		os.Exit(1)
	}()

	return ctx
}
