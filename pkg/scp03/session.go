package scp03

import (
	"crypto/subtle"

	"github.com/jkolo/go-scp03/pkg/apdu"
)

// State is the lifecycle position of a Session.
type State int

const (
	// Unstarted: no handshake message built yet.
	Unstarted State = iota
	// ChallengeSent: INITIALIZE UPDATE built, waiting for the card response.
	ChallengeSent
	// Authenticated: session keys derived and the card cryptogram verified.
	Authenticated
	// Established: EXTERNAL AUTHENTICATE built; steady-state encode/decode.
	Established
	// Terminated: a guard violation or verification failure occurred. The
	// session must not be reused.
	Terminated
)

func (s State) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case ChallengeSent:
		return "challenge sent"
	case Authenticated:
		return "authenticated"
	case Established:
		return "established"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// INITIALIZE UPDATE and EXTERNAL AUTHENTICATE per GlobalPlatform.
const (
	claInitializeUpdate     byte = 0x80
	insInitializeUpdate     byte = 0x50
	claExternalAuthenticate byte = 0x84
	insExternalAuthenticate byte = 0x82

	// claSecureMessaging marks a class byte as carrying secure messaging.
	claSecureMessaging byte = 0x04

	// securityLevel requests C-MAC, C-DEC, R-MAC and R-ENC.
	securityLevel byte = 0x33
)

// Layout of the INITIALIZE UPDATE response data field.
const (
	diversificationLen = 10
	keyInfoLen         = 3
	initUpdateRespLen  = diversificationLen + keyInfoLen + ChallengeLen + CryptogramLen
)

// Session is one live SCP03 secure channel to one card. It owns all derived
// key and counter state and assumes strictly sequential, single-owner use:
// concurrent encode/decode would corrupt the chaining value and counter.
type Session struct {
	state State

	hostChallenge  [ChallengeLen]byte
	cardChallenge  [ChallengeLen]byte
	hostCryptogram []byte

	// Opaque pass-through metadata from the INITIALIZE UPDATE response.
	diversificationData []byte
	keyInfo             []byte

	keys     SessionKeys
	chaining [blockLen]byte
	counter  uint32

	// expectResponse enforces the strict 1:1 alternation between an
	// outgoing protected message and the loading of its response.
	expectResponse bool
}

// NewSession returns a session in the Unstarted state. The chaining value
// starts all-zero and the encryption counter at 1.
func NewSession() *Session {
	return &Session{state: Unstarted, counter: 1}
}

// State returns the session's lifecycle state.
func (s *Session) State() State {
	return s.state
}

// DiversificationData returns the key diversification data the card reported
// during the handshake, untouched. Nil before the handshake response.
func (s *Session) DiversificationData() []byte {
	return s.diversificationData
}

// KeyInfo returns the key information block the card reported during the
// handshake, untouched. Nil before the handshake response.
func (s *Session) KeyInfo() []byte {
	return s.keyInfo
}

// BuildInitializeUpdate builds the handshake request carrying the 8-byte
// host challenge and moves the session to ChallengeSent.
func (s *Session) BuildInitializeUpdate(hostChallenge []byte) (apdu.Command, error) {
	if s.state != Unstarted {
		return apdu.Command{}, SequenceError{Op: "BuildInitializeUpdate", State: s.state}
	}

	if len(hostChallenge) != ChallengeLen {
		return apdu.Command{}, InputError{Message: "host challenge must be 8 bytes"}
	}

	copy(s.hostChallenge[:], hostChallenge)
	s.state = ChallengeSent

	return apdu.Command{
		Cla:  claInitializeUpdate,
		Ins:  insInitializeUpdate,
		P1:   0x00,
		P2:   0x00,
		Data: append([]byte(nil), hostChallenge...),
		Ne:   256,
	}, nil
}

// LoadInitializeUpdateResponse validates the handshake response: it parses
// the card challenge and cryptogram, derives the session keys from the
// borrowed static keys and verifies the card cryptogram in constant time.
// Only then is the host cryptogram computed. Any failure terminates the
// session.
func (s *Session) LoadInitializeUpdateResponse(resp apdu.Response, static StaticKeys) error {
	if s.state != ChallengeSent {
		return SequenceError{Op: "LoadInitializeUpdateResponse", State: s.state}
	}

	if !resp.IsSuccess() {
		s.terminate()

		return NonSuccessResponseError{SW: resp.SW()}
	}

	// A trailing 3-byte sequence counter is present when the card uses
	// pseudo-random challenge generation.
	if len(resp.Data) != initUpdateRespLen && len(resp.Data) != initUpdateRespLen+3 {
		s.terminate()

		return InputError{Message: "INITIALIZE UPDATE response data must be 29 or 32 bytes"}
	}

	s.diversificationData = append([]byte(nil), resp.Data[:diversificationLen]...)
	s.keyInfo = append([]byte(nil), resp.Data[diversificationLen:diversificationLen+keyInfoLen]...)
	copy(s.cardChallenge[:], resp.Data[diversificationLen+keyInfoLen:])
	cardCryptogram := resp.Data[diversificationLen+keyInfoLen+ChallengeLen : initUpdateRespLen]

	keys, err := DeriveSessionKeys(static, s.hostChallenge[:], s.cardChallenge[:])
	if err != nil {
		s.terminate()

		return err
	}

	expected, err := DeriveCardCryptogram(keys.Mac, s.hostChallenge[:], s.cardChallenge[:])
	if err != nil {
		s.terminate()

		return err
	}

	if subtle.ConstantTimeCompare(expected, cardCryptogram) != 1 {
		s.terminate()

		return CardCryptogramError{
			Expected: expected,
			Received: append([]byte(nil), cardCryptogram...),
		}
	}

	hostCryptogram, err := DeriveHostCryptogram(keys.Mac, s.hostChallenge[:], s.cardChallenge[:])
	if err != nil {
		s.terminate()

		return err
	}

	s.keys = keys
	s.hostCryptogram = hostCryptogram
	s.state = Authenticated

	return nil
}

// BuildExternalAuthenticate builds the authentication message carrying the
// host cryptogram, C-MACed against the still all-zero chaining value. Every
// later command's MAC traces back to this first chaining update.
func (s *Session) BuildExternalAuthenticate() (apdu.Command, error) {
	if s.state != Authenticated {
		return apdu.Command{}, SequenceError{Op: "BuildExternalAuthenticate", State: s.state}
	}

	cmd := apdu.Command{
		Cla:  claExternalAuthenticate,
		Ins:  insExternalAuthenticate,
		P1:   securityLevel,
		P2:   0x00,
		Data: s.hostCryptogram,
		Ne:   256,
	}

	macd, err := s.applyCmac(cmd)
	if err != nil {
		s.terminate()

		return apdu.Command{}, err
	}

	s.state = Established
	s.expectResponse = true

	return macd, nil
}

// LoadExternalAuthenticateResponse checks the card's verdict on the host
// cryptogram. A non-success status means the card rejected the host and is
// fatal. The verdict is consumed exactly once; a repeated call is a
// sequencing error.
func (s *Session) LoadExternalAuthenticateResponse(resp apdu.Response) error {
	if s.state != Established {
		return SequenceError{Op: "LoadExternalAuthenticateResponse", State: s.state}
	}

	if !s.expectResponse {
		return SequenceError{Op: "LoadExternalAuthenticateResponse: no authentication pending", State: s.state}
	}

	if !resp.IsSuccess() {
		s.terminate()

		return NonSuccessResponseError{SW: resp.SW()}
	}

	s.expectResponse = false

	return nil
}

// EncodeCommand protects a logical command for transmission: the payload is
// encrypted under the current counter, the secure messaging bit is set and a
// C-MAC over header and ciphertext is appended. The counter is incremented
// after a successful encode.
func (s *Session) EncodeCommand(cmd apdu.Command) (apdu.Command, error) {
	if s.state != Established {
		return apdu.Command{}, SequenceError{Op: "EncodeCommand", State: s.state}
	}

	if s.expectResponse {
		s.terminate()

		return apdu.Command{}, SequenceError{Op: "EncodeCommand: response pending", State: s.state}
	}

	encrypted, err := Encrypt(cmd.Data, s.keys.Enc, s.counter)
	if err != nil {
		s.terminate()

		return apdu.Command{}, err
	}

	protected := cmd
	protected.Data = encrypted

	macd, err := s.applyCmac(protected)
	if err != nil {
		s.terminate()

		return apdu.Command{}, err
	}

	s.counter++
	s.expectResponse = true

	return macd, nil
}

// DecodeResponse reverses EncodeCommand for the matching response: the
// status word is gated first, the R-MAC is verified against the current
// chaining value second and only then is the payload decrypted, using the
// counter value of the matching command.
func (s *Session) DecodeResponse(resp apdu.Response) (apdu.Response, error) {
	if s.state != Established {
		return apdu.Response{}, SequenceError{Op: "DecodeResponse", State: s.state}
	}

	if !s.expectResponse {
		return apdu.Response{}, SequenceError{Op: "DecodeResponse: no command pending", State: s.state}
	}

	if !resp.IsSuccess() {
		s.terminate()

		return apdu.Response{}, NonSuccessResponseError{SW: resp.SW()}
	}

	if len(resp.Data) < MacLen {
		s.terminate()

		return apdu.Response{}, InputError{Message: "protected response shorter than its MAC"}
	}

	payload := resp.Data[:len(resp.Data)-MacLen]
	rmac := resp.Data[len(resp.Data)-MacLen:]

	if err := VerifyRmac(payload, resp.SW1, resp.SW2, rmac, s.keys.Rmac, s.chaining); err != nil {
		s.terminate()

		return apdu.Response{}, err
	}

	plaintext := []byte{}

	if len(payload) > 0 {
		decrypted, err := Decrypt(payload, s.keys.Enc, s.counter-1)
		if err != nil {
			s.terminate()

			return apdu.Response{}, err
		}

		plaintext = decrypted
	}

	s.expectResponse = false

	return apdu.Response{Data: plaintext, SW1: resp.SW1, SW2: resp.SW2}, nil
}

// applyCmac MACs the command header and data field against the current
// chaining value and advances it. Lc covers the data field plus the MAC.
func (s *Session) applyCmac(cmd apdu.Command) (apdu.Command, error) {
	if len(cmd.Data)+MacLen > apdu.MaxDataLen {
		return apdu.Command{}, InputError{Message: "command data too long for protected APDU"}
	}

	cmd.Cla |= claSecureMessaging

	input := make([]byte, 0, 5+len(cmd.Data))
	input = append(input, cmd.Header()...)
	input = append(input, byte(len(cmd.Data)+MacLen))
	input = append(input, cmd.Data...)

	macd, next, err := ComputeMac(input, s.keys.Mac, s.chaining)
	if err != nil {
		return apdu.Command{}, err
	}

	s.chaining = next
	cmd.Data = macd[5:]

	return cmd, nil
}

// terminate wipes the derived key material and marks the session permanently
// unusable.
func (s *Session) terminate() {
	for _, key := range [][]byte{s.keys.Mac, s.keys.Rmac, s.keys.Enc, s.hostCryptogram} {
		for i := range key {
			key[i] = 0
		}
	}

	s.keys = SessionKeys{}
	s.hostCryptogram = nil
	s.chaining = [blockLen]byte{}
	s.state = Terminated
}
