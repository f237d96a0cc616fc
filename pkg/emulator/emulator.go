// Package emulator implements the card side of an SCP03 secure channel. It
// answers INITIALIZE UPDATE and EXTERNAL AUTHENTICATE, verifies and unwraps
// protected commands and wraps the responses, so hosts can be exercised
// without a physical secure element.
package emulator

import (
	"crypto/rand"
	"crypto/subtle"

	"github.com/jkolo/go-scp03/pkg/apdu"
	"github.com/jkolo/go-scp03/pkg/scp03"
)

// Handler produces the logical response for a decrypted command.
type Handler func(cmd apdu.Command) apdu.Response

// EchoHandler answers every command with its own payload and success status.
func EchoHandler(cmd apdu.Command) apdu.Response {
	return apdu.Response{Data: cmd.Data, SW1: 0x90, SW2: 0x00}
}

// Card is a simulated SCP03 secure element. One Card carries at most one
// live session; a new INITIALIZE UPDATE discards the previous one.
type Card struct {
	static  scp03.StaticKeys
	handler Handler

	divData [10]byte
	keyInfo [3]byte

	fixedChallenge []byte

	// session state
	authPending    bool
	established    bool
	hostChallenge  [scp03.ChallengeLen]byte
	cardChallenge  [scp03.ChallengeLen]byte
	keys           scp03.SessionKeys
	hostCryptogram []byte
	chaining       [16]byte
	counter        uint32
}

// Option configures a Card.
type Option func(*Card)

// WithHandler sets the application handler for decrypted commands.
func WithHandler(h Handler) Option {
	return func(c *Card) { c.handler = h }
}

// WithCardChallenge pins the card challenge to a fixed value instead of a
// random one, for reproducible exchanges.
func WithCardChallenge(challenge []byte) Option {
	return func(c *Card) { c.fixedChallenge = append([]byte(nil), challenge...) }
}

// New returns a card emulator holding the given static keys.
func New(static scp03.StaticKeys, opts ...Option) *Card {
	c := &Card{
		static:  static,
		handler: EchoHandler,
		divData: [10]byte{0x4F, 0x4D, 0x4E, 0x49, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01},
		keyInfo: [3]byte{0xFF, 0x03, 0x60}, // key version, SCP ID 03, i-param
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Send implements scp03.Transport: it processes one raw command APDU and
// returns the raw response.
func (c *Card) Send(command []byte) ([]byte, error) {
	return c.Process(command).Bytes(), nil
}

// Process dispatches one command APDU through the card state machine.
func (c *Card) Process(raw []byte) apdu.Response {
	cmd, err := apdu.ParseCommand(raw)
	if err != nil {
		return status(apdu.SWWrongLength)
	}

	switch {
	case cmd.Cla == 0x80 && cmd.Ins == 0x50:
		return c.initializeUpdate(cmd)
	case cmd.Cla == 0x84 && cmd.Ins == 0x82:
		return c.externalAuthenticate(cmd)
	case c.established:
		return c.secureCommand(cmd)
	default:
		return status(apdu.SWSecurityNotSatisfied)
	}
}

func (c *Card) initializeUpdate(cmd apdu.Command) apdu.Response {
	c.reset()

	if len(cmd.Data) != scp03.ChallengeLen {
		return status(apdu.SWWrongData)
	}

	copy(c.hostChallenge[:], cmd.Data)

	if c.fixedChallenge != nil {
		copy(c.cardChallenge[:], c.fixedChallenge)
	} else if _, err := rand.Read(c.cardChallenge[:]); err != nil {
		return status(apdu.SWUnknown)
	}

	keys, err := scp03.DeriveSessionKeys(c.static, c.hostChallenge[:], c.cardChallenge[:])
	if err != nil {
		return status(apdu.SWUnknown)
	}

	cardCryptogram, err := scp03.DeriveCardCryptogram(keys.Mac, c.hostChallenge[:], c.cardChallenge[:])
	if err != nil {
		return status(apdu.SWUnknown)
	}

	hostCryptogram, err := scp03.DeriveHostCryptogram(keys.Mac, c.hostChallenge[:], c.cardChallenge[:])
	if err != nil {
		return status(apdu.SWUnknown)
	}

	c.keys = keys
	c.hostCryptogram = hostCryptogram
	c.counter = 1
	c.authPending = true

	data := make([]byte, 0, len(c.divData)+len(c.keyInfo)+scp03.ChallengeLen+scp03.CryptogramLen)
	data = append(data, c.divData[:]...)
	data = append(data, c.keyInfo[:]...)
	data = append(data, c.cardChallenge[:]...)
	data = append(data, cardCryptogram...)

	return apdu.Response{Data: data, SW1: 0x90, SW2: 0x00}
}

func (c *Card) externalAuthenticate(cmd apdu.Command) apdu.Response {
	if !c.authPending {
		return status(apdu.SWConditionsNotMet)
	}

	payload, ok := c.verifyCmac(cmd)
	if !ok {
		c.reset()

		return status(apdu.SWSecurityNotSatisfied)
	}

	if subtle.ConstantTimeCompare(payload, c.hostCryptogram) != 1 {
		c.reset()

		return status(apdu.SWSecurityNotSatisfied)
	}

	c.authPending = false
	c.established = true

	return status(apdu.SWSuccess)
}

func (c *Card) secureCommand(cmd apdu.Command) apdu.Response {
	ciphertext, ok := c.verifyCmac(cmd)
	if !ok {
		c.reset()

		return status(apdu.SWSecurityNotSatisfied)
	}

	plaintext := []byte{}

	if len(ciphertext) > 0 {
		decrypted, err := scp03.Decrypt(ciphertext, c.keys.Enc, c.counter)
		if err != nil {
			c.reset()

			return status(apdu.SWWrongData)
		}

		plaintext = decrypted
	}

	logical := cmd
	logical.Cla &^= 0x04
	logical.Data = plaintext

	resp := c.handler(logical)
	if resp.SW() != apdu.SWSuccess {
		c.counter++

		return status(resp.SW())
	}

	protected, err := c.wrapResponse(resp)
	if err != nil {
		c.reset()

		return status(apdu.SWUnknown)
	}

	c.counter++

	return protected
}

// verifyCmac checks the trailing command MAC against the card's chaining
// value and advances it. Returns the data field without the MAC.
func (c *Card) verifyCmac(cmd apdu.Command) ([]byte, bool) {
	if len(cmd.Data) < scp03.MacLen {
		return nil, false
	}

	payload := cmd.Data[:len(cmd.Data)-scp03.MacLen]
	mac := cmd.Data[len(cmd.Data)-scp03.MacLen:]

	input := make([]byte, 0, 5+len(payload))
	input = append(input, cmd.Header()...)
	input = append(input, byte(len(cmd.Data)))
	input = append(input, payload...)

	macd, next, err := scp03.ComputeMac(input, c.keys.Mac, c.chaining)
	if err != nil {
		return nil, false
	}

	expected := macd[len(macd)-scp03.MacLen:]
	if subtle.ConstantTimeCompare(expected, mac) != 1 {
		return nil, false
	}

	c.chaining = next

	return payload, true
}

// wrapResponse encrypts the handler's payload under the command's counter
// value and appends the R-MAC computed against the current chaining value.
// Responses never advance the chaining value.
func (c *Card) wrapResponse(resp apdu.Response) (apdu.Response, error) {
	ciphertext, err := scp03.Encrypt(resp.Data, c.keys.Enc, c.counter)
	if err != nil {
		return apdu.Response{}, err
	}

	input := make([]byte, 0, len(ciphertext)+2)
	input = append(input, ciphertext...)
	input = append(input, resp.SW1, resp.SW2)

	macd, _, err := scp03.ComputeMac(input, c.keys.Rmac, c.chaining)
	if err != nil {
		return apdu.Response{}, err
	}

	rmac := macd[len(macd)-scp03.MacLen:]

	data := make([]byte, 0, len(ciphertext)+scp03.MacLen)
	data = append(data, ciphertext...)
	data = append(data, rmac...)

	return apdu.Response{Data: data, SW1: resp.SW1, SW2: resp.SW2}, nil
}

// reset drops any session state.
func (c *Card) reset() {
	c.authPending = false
	c.established = false
	c.keys = scp03.SessionKeys{}
	c.hostCryptogram = nil
	c.chaining = [16]byte{}
	c.counter = 0
}

func status(sw uint16) apdu.Response {
	return apdu.Response{SW1: byte(sw >> 8), SW2: byte(sw)}
}
