// Package tcp provides an APDU-over-TCP client transport for the emulator
// server, built on an anet connection pool and broker.
package tcp

import (
	"net"
	"time"

	"github.com/andrei-cloud/anet"
	"github.com/pkg/errors"
)

// Transport sends one APDU per request through an anet broker backed by a
// connection pool. It implements scp03.Transport.
type Transport struct {
	pool   anet.Pool
	broker anet.Broker
}

// Dial connects to an APDU server at the given address. The timeout bounds
// both the dial and each request round trip.
func Dial(address string, timeout time.Duration) (*Transport, error) {
	factory := func(addr string) (anet.PoolItem, error) {
		conn, err := net.DialTimeout("tcp", addr, timeout)
		if err != nil {
			return nil, err
		}

		return conn, nil
	}

	cfg := anet.DefaultBrokerConfig()
	cfg.ReadTimeout = timeout
	cfg.WriteTimeout = timeout

	pool := anet.NewPool(1, factory, address, nil)

	broker := anet.NewBroker([]anet.Pool{pool}, 1, nil, cfg)
	go broker.Start()

	return &Transport{pool: pool, broker: broker}, nil
}

// Send submits one command APDU and returns the response APDU.
func (t *Transport) Send(command []byte) ([]byte, error) {
	req := make([]byte, len(command))
	copy(req, command)

	resp, err := t.broker.Send(&req)
	if err != nil {
		return nil, errors.Wrap(err, "send command")
	}

	return resp, nil
}

// Close shuts down the broker and its connection pool.
func (t *Transport) Close() error {
	t.broker.Close()
	t.pool.Close()

	return nil
}
