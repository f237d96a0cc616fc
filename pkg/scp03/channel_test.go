package scp03_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkolo/go-scp03/pkg/apdu"
	"github.com/jkolo/go-scp03/pkg/emulator"
	"github.com/jkolo/go-scp03/pkg/scp03"
)

func TestChannelOpenAndTransmit(t *testing.T) {
	t.Parallel()

	keys := staticKeys(t)
	card := emulator.New(keys)

	channel, err := scp03.Open(card, keys)
	require.NoError(t, err)
	require.Equal(t, scp03.Established, channel.State())
	assert.NotEmpty(t, channel.ID().String())

	payload := []byte("through the channel")

	resp, err := channel.Transmit(apdu.Command{Cla: 0x00, Ins: 0xD6, Data: payload})
	require.NoError(t, err)
	assert.True(t, resp.IsSuccess())
	assert.Equal(t, payload, resp.Data)

	// The channel stays usable across exchanges.
	resp, err = channel.Transmit(apdu.Command{Cla: 0x00, Ins: 0xB0})
	require.NoError(t, err)
	assert.Empty(t, resp.Data)
}

func TestChannelOpenWrongKeys(t *testing.T) {
	t.Parallel()

	cardKeys := staticKeys(t)
	card := emulator.New(cardKeys)

	other := bytes.Repeat([]byte{0x99}, scp03.KeyLen)
	hostKeys, err := scp03.NewStaticKeys(other, other, other)
	require.NoError(t, err)

	// Host and card disagree on the static keys: the card cryptogram must
	// not verify.
	_, err = scp03.Open(card, hostKeys)
	var cryptogramErr scp03.CardCryptogramError
	require.ErrorAs(t, err, &cryptogramErr)
}

// failingTransport always fails to send.
type failingTransport struct{}

func (failingTransport) Send([]byte) ([]byte, error) {
	return nil, assert.AnError
}

func TestChannelOpenTransportFailure(t *testing.T) {
	t.Parallel()

	_, err := scp03.Open(failingTransport{}, staticKeys(t))
	require.ErrorIs(t, err, assert.AnError)
}
