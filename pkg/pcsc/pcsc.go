// Package pcsc provides a PC/SC reader transport for secure channel use.
package pcsc

import (
	"fmt"

	"github.com/ebfe/scard"
)

// Transport wraps a PC/SC card connection. It implements scp03.Transport.
type Transport struct {
	ctx    *scard.Context
	card   *scard.Card
	Reader string
}

// Readers lists the names of the connected PC/SC readers.
func Readers() ([]string, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("EstablishContext failed: %w", err)
	}
	defer ctx.Release()

	readers, err := ctx.ListReaders()
	if err != nil {
		return nil, fmt.Errorf("ListReaders failed: %w", err)
	}

	return readers, nil
}

// Connect establishes a connection to the card in the reader with the given
// index.
func Connect(readerIndex int) (*Transport, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("EstablishContext failed: %w", err)
	}

	readers, err := ctx.ListReaders()
	if err != nil || len(readers) == 0 {
		ctx.Release()

		return nil, fmt.Errorf("no readers found: %v", err)
	}

	if readerIndex < 0 || readerIndex >= len(readers) {
		ctx.Release()

		return nil, fmt.Errorf("reader index out of range (0..%d)", len(readers)-1)
	}

	reader := readers[readerIndex]

	card, err := ctx.Connect(reader, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		ctx.Release()

		return nil, fmt.Errorf("connect failed: %w", err)
	}

	return &Transport{ctx: ctx, card: card, Reader: reader}, nil
}

// Send transmits a raw command APDU and returns the raw response.
func (t *Transport) Send(command []byte) ([]byte, error) {
	if t == nil || t.card == nil {
		return nil, fmt.Errorf("connection not established")
	}

	return t.card.Transmit(command)
}

// Close disconnects the card and releases the PC/SC context.
func (t *Transport) Close() {
	if t == nil {
		return
	}

	if t.card != nil {
		_ = t.card.Disconnect(scard.LeaveCard)
	}

	if t.ctx != nil {
		_ = t.ctx.Release()
	}
}
