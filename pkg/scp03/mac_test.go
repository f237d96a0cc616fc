package scp03

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMacKey = bytes.Repeat([]byte{0x0F}, KeyLen)

func TestComputeMac(t *testing.T) {
	t.Parallel()

	message := []byte{0x84, 0x82, 0x33, 0x00, 0x10, 0xAA, 0xBB}

	var zero [blockLen]byte

	macd, next, err := ComputeMac(message, testMacKey, zero)
	require.NoError(t, err)

	require.Len(t, macd, len(message)+MacLen)
	assert.Equal(t, message, macd[:len(message)])

	// The transmitted MAC is the truncated prefix of the new chaining value.
	assert.Equal(t, next[:MacLen], macd[len(message):])
	assert.NotEqual(t, zero, next)
}

func TestComputeMacChainsHistory(t *testing.T) {
	t.Parallel()

	first := []byte{0x01}
	firstVariant := []byte{0x02}
	second := []byte{0x03}

	var zero [blockLen]byte

	_, chainA, err := ComputeMac(first, testMacKey, zero)
	require.NoError(t, err)

	_, chainB, err := ComputeMac(firstVariant, testMacKey, zero)
	require.NoError(t, err)

	require.NotEqual(t, chainA, chainB)

	// Identical current message, different history: MACs must differ.
	macdA, _, err := ComputeMac(second, testMacKey, chainA)
	require.NoError(t, err)

	macdB, _, err := ComputeMac(second, testMacKey, chainB)
	require.NoError(t, err)

	assert.NotEqual(t, macdA, macdB)
}

func TestVerifyRmac(t *testing.T) {
	t.Parallel()

	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	chaining := [blockLen]byte{0x42}

	// Build a valid R-MAC the way the card does.
	input := append(append([]byte(nil), payload...), 0x90, 0x00)
	macd, _, err := ComputeMac(input, testMacKey, chaining)
	require.NoError(t, err)
	mac := macd[len(macd)-MacLen:]

	require.NoError(t, VerifyRmac(payload, 0x90, 0x00, mac, testMacKey, chaining))

	// Any single-byte change must fail verification.
	forged := append([]byte(nil), mac...)
	forged[3] ^= 0x80
	err = VerifyRmac(payload, 0x90, 0x00, forged, testMacKey, chaining)
	var rmacErr RmacError
	require.ErrorAs(t, err, &rmacErr)

	// A stale chaining value must fail verification.
	stale := [blockLen]byte{0x43}
	err = VerifyRmac(payload, 0x90, 0x00, mac, testMacKey, stale)
	require.ErrorAs(t, err, &rmacErr)

	// The status word is covered by the MAC.
	err = VerifyRmac(payload, 0x6A, 0x80, mac, testMacKey, chaining)
	require.ErrorAs(t, err, &rmacErr)
}

func TestVerifyRmacLength(t *testing.T) {
	t.Parallel()

	var chaining [blockLen]byte

	err := VerifyRmac(nil, 0x90, 0x00, []byte{0x01, 0x02}, testMacKey, chaining)
	var inputErr InputError
	require.ErrorAs(t, err, &inputErr)
}
