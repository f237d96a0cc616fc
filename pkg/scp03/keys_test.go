package scp03

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStaticKeys(t *testing.T) StaticKeys {
	t.Helper()

	key, err := hex.DecodeString("404142434445464748494A4B4C4D4E4F")
	require.NoError(t, err)

	keys, err := NewStaticKeys(key, key, key)
	require.NoError(t, err)

	return keys
}

func TestNewStaticKeysValidation(t *testing.T) {
	t.Parallel()

	valid := make([]byte, KeyLen)

	tests := []struct {
		name    string
		enc     []byte
		mac     []byte
		dek     []byte
		wantErr bool
	}{
		{name: "all 16 bytes", enc: valid, mac: valid, dek: valid},
		{name: "short ENC", enc: valid[:15], mac: valid, dek: valid, wantErr: true},
		{name: "long MAC", enc: valid, mac: make([]byte, 24), dek: valid, wantErr: true},
		{name: "nil DEK", enc: valid, mac: valid, dek: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewStaticKeys(tt.enc, tt.mac, tt.dek)
			if tt.wantErr {
				var inputErr InputError
				require.ErrorAs(t, err, &inputErr)

				return
			}

			require.NoError(t, err)
		})
	}
}

func TestDeriveSessionKeysDeterministic(t *testing.T) {
	t.Parallel()

	static := testStaticKeys(t)
	host := bytes.Repeat([]byte{0x11}, ChallengeLen)
	card := bytes.Repeat([]byte{0x22}, ChallengeLen)

	first, err := DeriveSessionKeys(static, host, card)
	require.NoError(t, err)

	second, err := DeriveSessionKeys(static, host, card)
	require.NoError(t, err)

	assert.Equal(t, first, second)

	assert.Len(t, first.Mac, KeyLen)
	assert.Len(t, first.Rmac, KeyLen)
	assert.Len(t, first.Enc, KeyLen)

	// The three keys come from distinct derivation constants.
	assert.NotEqual(t, first.Mac, first.Rmac)
	assert.NotEqual(t, first.Mac, first.Enc)
	assert.NotEqual(t, first.Rmac, first.Enc)
}

func TestDeriveSessionKeysContextSensitivity(t *testing.T) {
	t.Parallel()

	static := testStaticKeys(t)
	host := bytes.Repeat([]byte{0x11}, ChallengeLen)
	card := bytes.Repeat([]byte{0x22}, ChallengeLen)

	base, err := DeriveSessionKeys(static, host, card)
	require.NoError(t, err)

	otherHost := append([]byte(nil), host...)
	otherHost[0] ^= 0x01

	changed, err := DeriveSessionKeys(static, otherHost, card)
	require.NoError(t, err)

	assert.NotEqual(t, base.Mac, changed.Mac)
	assert.NotEqual(t, base.Rmac, changed.Rmac)
	assert.NotEqual(t, base.Enc, changed.Enc)
}

func TestDeriveSessionKeysChallengeValidation(t *testing.T) {
	t.Parallel()

	static := testStaticKeys(t)

	_, err := DeriveSessionKeys(static, make([]byte, 7), make([]byte, 8))
	var inputErr InputError
	require.ErrorAs(t, err, &inputErr)

	_, err = DeriveSessionKeys(static, make([]byte, 8), make([]byte, 9))
	require.ErrorAs(t, err, &inputErr)
}

func TestDeriveCryptograms(t *testing.T) {
	t.Parallel()

	static := testStaticKeys(t)
	host := make([]byte, ChallengeLen)
	card := bytes.Repeat([]byte{0x5A}, ChallengeLen)

	keys, err := DeriveSessionKeys(static, host, card)
	require.NoError(t, err)

	cardCryptogram, err := DeriveCardCryptogram(keys.Mac, host, card)
	require.NoError(t, err)
	assert.Len(t, cardCryptogram, CryptogramLen)

	hostCryptogram, err := DeriveHostCryptogram(keys.Mac, host, card)
	require.NoError(t, err)
	assert.Len(t, hostCryptogram, CryptogramLen)

	// Different derivation constants keep card and host proofs apart.
	assert.NotEqual(t, cardCryptogram, hostCryptogram)

	again, err := DeriveCardCryptogram(keys.Mac, host, card)
	require.NoError(t, err)
	assert.Equal(t, cardCryptogram, again)
}

func TestDeriveCryptogramKeyValidation(t *testing.T) {
	t.Parallel()

	_, err := DeriveCardCryptogram(make([]byte, 8), make([]byte, 8), make([]byte, 8))
	var inputErr InputError
	require.ErrorAs(t, err, &inputErr)
}
