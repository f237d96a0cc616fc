package scp03

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEncKey = bytes.Repeat([]byte{0xA5}, KeyLen)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload []byte
	}{
		{name: "empty", payload: []byte{}},
		{name: "single byte", payload: []byte{0x7F}},
		{name: "one block", payload: bytes.Repeat([]byte{0x11}, 16)},
		{name: "two blocks", payload: bytes.Repeat([]byte{0x22}, 32)},
		{name: "unaligned", payload: bytes.Repeat([]byte{0x33}, 21)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ciphertext, err := Encrypt(tt.payload, testEncKey, 1)
			require.NoError(t, err)

			// Padding always adds at least one byte.
			require.Greater(t, len(ciphertext), len(tt.payload))
			require.Zero(t, len(ciphertext)%16)

			plaintext, err := Decrypt(ciphertext, testEncKey, 1)
			require.NoError(t, err)
			assert.Equal(t, tt.payload, plaintext)
		})
	}
}

func TestEncryptCounterChangesCiphertext(t *testing.T) {
	t.Parallel()

	payload := []byte("counter sensitive")

	first, err := Encrypt(payload, testEncKey, 1)
	require.NoError(t, err)

	second, err := Encrypt(payload, testEncKey, 2)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestDecryptWrongCounterFails(t *testing.T) {
	t.Parallel()

	payload := []byte("needs the right IV")

	ciphertext, err := Encrypt(payload, testEncKey, 3)
	require.NoError(t, err)

	plaintext, err := Decrypt(ciphertext, testEncKey, 4)
	if err == nil {
		// The wrong IV garbles the first block; even if the padding marker
		// survives by chance the plaintext must not be reproduced.
		assert.NotEqual(t, payload, plaintext)
	}
}

func TestDecryptValidation(t *testing.T) {
	t.Parallel()

	_, err := Decrypt([]byte{0x01, 0x02, 0x03}, testEncKey, 1)
	var inputErr InputError
	require.ErrorAs(t, err, &inputErr)

	_, err = Decrypt(nil, testEncKey, 1)
	require.ErrorAs(t, err, &inputErr)
}

func TestPad80(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []byte
		want int
	}{
		{name: "empty pads to one block", in: []byte{}, want: 16},
		{name: "aligned input grows a block", in: make([]byte, 16), want: 32},
		{name: "partial block rounds up", in: make([]byte, 5), want: 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			padded := pad80(tt.in)
			require.Len(t, padded, tt.want)
			assert.Equal(t, byte(0x80), padded[len(tt.in)])

			unpadded, err := unpad80(padded)
			require.NoError(t, err)
			assert.Equal(t, tt.in, unpadded)
		})
	}
}

func TestUnpad80Malformed(t *testing.T) {
	t.Parallel()

	_, err := unpad80(make([]byte, 16))
	require.Error(t, err)

	_, err = unpad80(nil)
	require.Error(t, err)

	// A marker in an earlier block must not satisfy a final all-zero block.
	cross := make([]byte, 32)
	cross[10] = 0x80
	_, err = unpad80(cross)
	require.Error(t, err)
}
