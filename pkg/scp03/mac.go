package scp03

import (
	"crypto/aes"
	"crypto/subtle"

	"github.com/aead/cmac"
	"github.com/pkg/errors"
)

// ComputeMac authenticates message under macKey against the current chaining
// value. The full 16-byte CMAC output becomes the next chaining value; the
// returned message carries only its 8-byte prefix appended.
func ComputeMac(message, macKey []byte, chaining [blockLen]byte) ([]byte, [blockLen]byte, error) {
	full, err := chainedMac(message, macKey, chaining)
	if err != nil {
		return nil, chaining, err
	}

	macd := make([]byte, 0, len(message)+MacLen)
	macd = append(macd, message...)
	macd = append(macd, full[:MacLen]...)

	var next [blockLen]byte
	copy(next[:], full)

	return macd, next, nil
}

// VerifyRmac recomputes the response MAC over the current chaining value, the
// response payload and the status word, and compares its 8-byte prefix
// against mac in constant time. The chaining value is never advanced by a
// response.
func VerifyRmac(payload []byte, sw1, sw2 byte, mac, rmacKey []byte, chaining [blockLen]byte) error {
	if len(mac) != MacLen {
		return InputError{Message: "response MAC must be 8 bytes"}
	}

	input := make([]byte, 0, len(payload)+2)
	input = append(input, payload...)
	input = append(input, sw1, sw2)

	full, err := chainedMac(input, rmacKey, chaining)
	if err != nil {
		return err
	}

	if subtle.ConstantTimeCompare(full[:MacLen], mac) != 1 {
		return RmacError{Expected: full[:MacLen], Received: mac}
	}

	return nil
}

// chainedMac computes the full CMAC over chaining || message.
func chainedMac(message, macKey []byte, chaining [blockLen]byte) ([]byte, error) {
	block, err := aes.NewCipher(macKey)
	if err != nil {
		return nil, errors.Wrap(err, "create AES cipher for MAC")
	}

	input := make([]byte, 0, blockLen+len(message))
	input = append(input, chaining[:]...)
	input = append(input, message...)

	full, err := cmac.Sum(input, block, blockLen)
	if err != nil {
		return nil, errors.Wrap(err, "compute CMAC")
	}

	return full, nil
}
