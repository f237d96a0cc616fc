package scp03

import (
	"fmt"
)

// InputError results from malformed caller-supplied input, such as a host
// challenge or static key of the wrong length. No session state is mutated.
type InputError struct {
	Message string
}

func (e InputError) Error() string {
	return fmt.Sprintf("scp03: invalid input: %s", e.Message)
}

// SequenceError results from invoking a session operation before its
// prerequisite state has been reached, or out of the strict
// command/response order. The caller must treat the session as unusable.
type SequenceError struct {
	Op    string
	State State
}

func (e SequenceError) Error() string {
	return fmt.Sprintf("scp03: %s not allowed in state %s", e.Op, e.State)
}

// CardCryptogramError results from a mismatch between the card cryptogram
// calculated on the host and the one received from the card. The session is
// untrusted and terminated.
type CardCryptogramError struct {
	Expected []byte
	Received []byte
}

func (e CardCryptogramError) Error() string {
	return fmt.Sprintf(
		"scp03: card cryptogram mismatch: expected %02X received %02X",
		e.Expected,
		e.Received,
	)
}

// RmacError results from a response MAC that does not verify against the
// current chaining value. The session is terminated and the response data is
// never decrypted.
type RmacError struct {
	Expected []byte
	Received []byte
}

func (e RmacError) Error() string {
	return fmt.Sprintf(
		"scp03: response MAC mismatch: expected %02X received %02X",
		e.Expected,
		e.Received,
	)
}

// NonSuccessResponseError results from the card reporting a non-success
// status word. It is distinct from local verification failures: the card
// itself rejected the exchange.
type NonSuccessResponseError struct {
	SW uint16
}

func (e NonSuccessResponseError) Error() string {
	return fmt.Sprintf("scp03: card returned non-success status %04X", e.SW)
}
