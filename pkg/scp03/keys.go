// Package scp03 implements the GlobalPlatform Secure Channel Protocol '03'
// host side: session key derivation, command/response MAC chaining, counter
// based payload encryption and the secure channel session state machine.
package scp03

import (
	"crypto/aes"
	"fmt"

	"github.com/aead/cmac"
	"github.com/pkg/errors"
)

// Fixed sizes of the protocol, in bytes.
const (
	KeyLen        = 16 // AES-128 static and session keys
	ChallengeLen  = 8  // host and card challenges
	CryptogramLen = 8  // card and host cryptograms
	MacLen        = 8  // truncated C-MAC / R-MAC appended to messages
	blockLen      = 16 // AES block, CMAC output and chaining value
)

// Data derivation constants per GlobalPlatform Amendment D.
const (
	ddcCardCryptogram byte = 0x00
	ddcHostCryptogram byte = 0x01
	ddcSessionEnc     byte = 0x04
	ddcSessionMac     byte = 0x06
	ddcSessionRmac    byte = 0x07
)

// StaticKeys holds the long-term symmetric keys shared out-of-band with the
// card. They are only ever read, for the single session key derivation call,
// and are never transmitted. The DEK is carried for key provisioning flows
// and is not consumed by the channel itself.
type StaticKeys struct {
	Enc []byte
	Mac []byte
	Dek []byte
}

// NewStaticKeys copies and validates the three 16-byte static keys.
func NewStaticKeys(enc, mac, dek []byte) (StaticKeys, error) {
	keys := StaticKeys{
		Enc: append([]byte(nil), enc...),
		Mac: append([]byte(nil), mac...),
		Dek: append([]byte(nil), dek...),
	}

	if err := keys.validate(); err != nil {
		return StaticKeys{}, err
	}

	return keys, nil
}

func (k StaticKeys) validate() error {
	for _, key := range [][]byte{k.Enc, k.Mac, k.Dek} {
		if len(key) != KeyLen {
			return InputError{Message: fmt.Sprintf(
				"static key must be %d bytes, got %d", KeyLen, len(key),
			)}
		}
	}

	return nil
}

// SessionKeys are the three symmetric keys derived once per session. They
// live only in memory for the session's duration.
type SessionKeys struct {
	Mac  []byte // S-MAC, authenticates commands
	Rmac []byte // S-RMAC, authenticates responses
	Enc  []byte // S-ENC, encrypts payloads
}

// DeriveSessionKeys derives S-MAC, S-RMAC and S-ENC from the static keys and
// the handshake challenges. Deterministic: identical inputs always yield
// identical keys.
func DeriveSessionKeys(static StaticKeys, hostChallenge, cardChallenge []byte) (SessionKeys, error) {
	if err := static.validate(); err != nil {
		return SessionKeys{}, err
	}

	context, err := derivationContext(hostChallenge, cardChallenge)
	if err != nil {
		return SessionKeys{}, err
	}

	smac, err := kdf(static.Mac, ddcSessionMac, context, KeyLen)
	if err != nil {
		return SessionKeys{}, errors.Wrap(err, "derive S-MAC")
	}

	srmac, err := kdf(static.Mac, ddcSessionRmac, context, KeyLen)
	if err != nil {
		return SessionKeys{}, errors.Wrap(err, "derive S-RMAC")
	}

	senc, err := kdf(static.Enc, ddcSessionEnc, context, KeyLen)
	if err != nil {
		return SessionKeys{}, errors.Wrap(err, "derive S-ENC")
	}

	return SessionKeys{Mac: smac, Rmac: srmac, Enc: senc}, nil
}

// DeriveCardCryptogram computes the 8-byte cryptogram the card uses to prove
// knowledge of the static keys, keyed by the session MAC key.
func DeriveCardCryptogram(macKey, hostChallenge, cardChallenge []byte) ([]byte, error) {
	return deriveCryptogram(ddcCardCryptogram, macKey, hostChallenge, cardChallenge)
}

// DeriveHostCryptogram computes the 8-byte cryptogram the host sends to
// prove itself to the card, keyed by the session MAC key.
func DeriveHostCryptogram(macKey, hostChallenge, cardChallenge []byte) ([]byte, error) {
	return deriveCryptogram(ddcHostCryptogram, macKey, hostChallenge, cardChallenge)
}

func deriveCryptogram(constant byte, macKey, hostChallenge, cardChallenge []byte) ([]byte, error) {
	if len(macKey) != KeyLen {
		return nil, InputError{Message: fmt.Sprintf(
			"MAC key must be %d bytes, got %d", KeyLen, len(macKey),
		)}
	}

	context, err := derivationContext(hostChallenge, cardChallenge)
	if err != nil {
		return nil, err
	}

	return kdf(macKey, constant, context, CryptogramLen)
}

// derivationContext forms the KDF context: host challenge || card challenge.
func derivationContext(hostChallenge, cardChallenge []byte) ([]byte, error) {
	if len(hostChallenge) != ChallengeLen {
		return nil, InputError{Message: fmt.Sprintf(
			"host challenge must be %d bytes, got %d", ChallengeLen, len(hostChallenge),
		)}
	}

	if len(cardChallenge) != ChallengeLen {
		return nil, InputError{Message: fmt.Sprintf(
			"card challenge must be %d bytes, got %d", ChallengeLen, len(cardChallenge),
		)}
	}

	context := make([]byte, 0, 2*ChallengeLen)
	context = append(context, hostChallenge...)
	context = append(context, cardChallenge...)

	return context, nil
}

// kdf runs the NIST SP 800-108 KDF in counter mode with AES-CMAC as the PRF.
// The fixed input is an 11-byte zero prefix, the derivation constant, a zero
// separator, the output length L in bits, the iteration counter i and the
// context.
func kdf(key []byte, constant byte, context []byte, outLen int) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "create AES cipher for KDF")
	}

	bits := outLen * 8

	// label || separator || L || i || context
	input := make([]byte, 0, blockLen+len(context))
	input = append(input, make([]byte, 11)...)
	input = append(input, constant)
	input = append(input, 0x00)
	input = append(input, byte(bits>>8), byte(bits))
	input = append(input, 0x00)
	input = append(input, context...)

	rounds := (outLen + blockLen - 1) / blockLen

	out := make([]byte, 0, rounds*blockLen)

	for i := 1; i <= rounds; i++ {
		input[15] = byte(i)

		part, err := cmac.Sum(input, block, blockLen)
		if err != nil {
			return nil, errors.Wrap(err, "KDF PRF round")
		}

		out = append(out, part...)
	}

	return out[:outLen], nil
}
