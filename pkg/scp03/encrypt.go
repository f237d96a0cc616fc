package scp03

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"

	"github.com/pkg/errors"
)

// Encrypt encrypts a command payload under encKey with the IV derived from
// the session's encryption counter. The plaintext is always padded, so an
// empty payload encrypts to one full block.
func Encrypt(plaintext, encKey []byte, counter uint32) ([]byte, error) {
	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, errors.Wrap(err, "create AES cipher for encryption")
	}

	iv := deriveIV(block, counter)
	padded := pad80(plaintext)

	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)

	return out, nil
}

// Decrypt decrypts a response payload. The counter must be the value used to
// encrypt the matching command, i.e. the value before it was incremented for
// the next outgoing command.
func Decrypt(ciphertext, encKey []byte, counter uint32) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%blockLen != 0 {
		return nil, InputError{Message: "ciphertext not block aligned"}
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, errors.Wrap(err, "create AES cipher for decryption")
	}

	iv := deriveIV(block, counter)

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	return unpad80(padded)
}

// deriveIV encrypts a block carrying the counter right-justified big-endian.
// The IV is computed rather than random, which is safe only because the
// counter never repeats within a session.
func deriveIV(block cipher.Block, counter uint32) []byte {
	in := make([]byte, blockLen)
	binary.BigEndian.PutUint32(in[blockLen-4:], counter)

	iv := make([]byte, blockLen)
	block.Encrypt(iv, in)

	return iv
}

// pad80 applies ISO 9797-1 method 2 padding: a 0x80 marker followed by zero
// bytes up to the block boundary, always at least one byte.
func pad80(b []byte) []byte {
	padded := make([]byte, len(b)+blockLen-len(b)%blockLen)
	copy(padded, b)
	padded[len(b)] = 0x80

	return padded
}

// unpad80 strips the padding and fails if the 0x80 marker is absent. Padding
// never spans blocks, so the scan stops at the final block boundary.
func unpad80(b []byte) ([]byte, error) {
	floor := len(b) - blockLen
	if floor < 0 {
		floor = 0
	}

	idx := len(b) - 1
	for idx >= floor && b[idx] == 0x00 {
		idx--
	}

	if idx < floor || b[idx] != 0x80 {
		return nil, errors.New("scp03: malformed padding in decrypted data")
	}

	return b[:idx], nil
}
