package scp03

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jkolo/go-scp03/pkg/apdu"
)

// Transport sends raw command APDU bytes to the card and returns the raw
// response bytes. Implementations are synchronous and opaque to the channel;
// any deadline or retry handling belongs to them.
type Transport interface {
	Send(command []byte) ([]byte, error)
}

// Channel runs a Session over a Transport: it performs the full handshake on
// Open and protects every subsequent exchange. Like the Session it wraps, a
// Channel must not be used concurrently.
type Channel struct {
	id        uuid.UUID
	transport Transport
	session   *Session
	logger    zerolog.Logger
}

// Open establishes a secure channel: it draws a random host challenge, runs
// INITIALIZE UPDATE and EXTERNAL AUTHENTICATE over the transport and returns
// the established channel. On any failure the underlying session is
// terminated and no channel is returned.
func Open(transport Transport, static StaticKeys) (*Channel, error) {
	id := uuid.New()

	c := &Channel{
		id:        id,
		transport: transport,
		session:   NewSession(),
		logger:    log.With().Str("channel", id.String()).Logger(),
	}

	hostChallenge := make([]byte, ChallengeLen)
	if _, err := rand.Read(hostChallenge); err != nil {
		return nil, errors.Wrap(err, "generate host challenge")
	}

	initUpdate, err := c.session.BuildInitializeUpdate(hostChallenge)
	if err != nil {
		return nil, err
	}

	resp, err := c.exchange(initUpdate)
	if err != nil {
		return nil, errors.Wrap(err, "transmit INITIALIZE UPDATE")
	}

	if err := c.session.LoadInitializeUpdateResponse(resp, static); err != nil {
		return nil, err
	}

	extAuth, err := c.session.BuildExternalAuthenticate()
	if err != nil {
		return nil, err
	}

	resp, err = c.exchange(extAuth)
	if err != nil {
		return nil, errors.Wrap(err, "transmit EXTERNAL AUTHENTICATE")
	}

	if err := c.session.LoadExternalAuthenticateResponse(resp); err != nil {
		return nil, err
	}

	c.logger.Info().Msg("secure channel established")

	return c, nil
}

// ID returns the channel identifier used in logs.
func (c *Channel) ID() uuid.UUID {
	return c.id
}

// State returns the lifecycle state of the underlying session.
func (c *Channel) State() State {
	return c.session.State()
}

// Transmit protects a logical command, sends it and returns the decoded
// logical response. Errors terminate the session; the caller must open a new
// channel to continue.
func (c *Channel) Transmit(cmd apdu.Command) (apdu.Response, error) {
	protected, err := c.session.EncodeCommand(cmd)
	if err != nil {
		return apdu.Response{}, err
	}

	resp, err := c.exchange(protected)
	if err != nil {
		return apdu.Response{}, errors.Wrap(err, "transmit protected command")
	}

	decoded, err := c.session.DecodeResponse(resp)
	if err != nil {
		return apdu.Response{}, err
	}

	return decoded, nil
}

// exchange serialises a command, sends it and parses the response.
func (c *Channel) exchange(cmd apdu.Command) (apdu.Response, error) {
	raw, err := cmd.Bytes()
	if err != nil {
		return apdu.Response{}, err
	}

	c.logger.Debug().
		Str("event", "command_sent").
		Str("apdu", hex.EncodeToString(raw)).
		Msg("sending command")

	rawResp, err := c.transport.Send(raw)
	if err != nil {
		return apdu.Response{}, err
	}

	resp, err := apdu.ParseResponse(rawResp)
	if err != nil {
		return apdu.Response{}, err
	}

	c.logger.Debug().
		Str("event", "response_received").
		Str("sw", resp.String()).
		Msg("received response")

	return resp, nil
}
