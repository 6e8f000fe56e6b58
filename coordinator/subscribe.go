// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coordinator

import (
	"errors"
	"sync"

	"github.com/btcsuite/coinjoind/round"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// clientBacklog is the number of updates a client buffers before the queue
// starts spilling into its overflow list.
const clientBacklog = 20

// ErrShuttingDown is returned once the coordinator stops.
var ErrShuttingDown = errors.New("coordinator shutting down")

// Client receives the phase updates of every round.
type Client struct {
	updates *fn.ConcurrentQueue[round.PhaseUpdate]
	quit    chan struct{}
	once    sync.Once
	cancel  func()
}

// Updates returns the channel updates are delivered on.
func (c *Client) Updates() <-chan round.PhaseUpdate {
	return c.updates.ChanOut()
}

// Quit is closed when the client no longer receives updates.
func (c *Client) Quit() <-chan struct{} {
	return c.quit
}

// Cancel ends the subscription.
func (c *Client) Cancel() {
	c.cancel()
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.quit)
		c.updates.Stop()
	})
}

// Subscribe returns a client that receives a PhaseUpdate whenever a round is
// created or changes phase.
func (c *Coordinator) Subscribe() (*Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.quit:
		return nil, ErrShuttingDown
	default:
	}

	c.nextClient++
	id := c.nextClient

	client := &Client{
		updates: fn.NewConcurrentQueue[round.PhaseUpdate](clientBacklog),
		quit:    make(chan struct{}),
	}
	client.cancel = func() {
		c.mu.Lock()
		delete(c.clients, id)
		c.mu.Unlock()

		client.close()
	}
	client.updates.Start()
	c.clients[id] = client

	return client, nil
}

// startDispatcher launches the goroutine fanning round updates out to the
// clients unless the coordinator already stopped.
func (c *Coordinator) startDispatcher() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.quit:
		return
	default:
	}

	c.wg.Add(1)
	go c.dispatch()
}

// dispatch delivers updates until quit is closed, then drains what is left.
func (c *Coordinator) dispatch() {
	defer c.wg.Done()

	for {
		select {
		case u := <-c.updates:
			c.deliver(u)

		case <-c.quit:
			for {
				select {
				case u := <-c.updates:
					c.deliver(u)
				default:
					return
				}
			}
		}
	}
}

// send queues an update for delivery.
func (c *Coordinator) send(u round.PhaseUpdate) {
	select {
	case c.updates <- u:
	case <-c.quit:
	}
}

// deliver records u in the metrics and hands it to every client.
func (c *Coordinator) deliver(u round.PhaseUpdate) {
	c.metrics.phaseChanges.WithLabelValues(u.Phase.String()).Inc()

	if u.Phase == round.Ended {
		c.metrics.roundsEnded.WithLabelValues(u.EndState.String()).Inc()
		if u.Reason != nil {
			log.Infof("Round %v ended %v: %v", u.RoundID,
				u.EndState, u.Reason)
		} else {
			log.Infof("Round %v ended %v", u.RoundID, u.EndState)
		}
	} else {
		log.Debugf("Round %v entered %v until %v", u.RoundID, u.Phase,
			u.Deadline)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, client := range c.clients {
		select {
		case client.updates.ChanIn() <- u:
		case <-client.quit:
		}
	}
}
