package emulator

import (
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	anetserver "github.com/andrei-cloud/anet/server"
	"github.com/rs/zerolog/log"
)

// logAdapter implements anet.Logger using zerolog.
type logAdapter struct{}

func (l logAdapter) Print(v ...any) {
	log.Info().Msg(fmt.Sprint(v...))
}

func (l logAdapter) Printf(format string, v ...any) {
	log.Info().Msgf(format, v...)
}

func (l logAdapter) Infof(format string, v ...any) {
	log.Info().Msgf(format, v...)
}

func (l logAdapter) Warnf(format string, v ...any) {
	log.Warn().Msgf(format, v...)
}

func (l logAdapter) Errorf(format string, v ...any) {
	log.Error().Msgf(format, v...)
}

// Server exposes a Card over TCP so remote hosts can open secure channels
// against it. Each frame carries one raw APDU. The card state machine is
// sequential, so concurrent connections are serialised.
type Server struct {
	address     string
	srv         *anetserver.Server
	card        *Card
	mu          sync.Mutex
	activeConns int32
}

// NewServer configures a TCP server serving the given card emulator.
func NewServer(address string, card *Card) (*Server, error) {
	cfg := &anetserver.ServerConfig{
		MaxConns:        10,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     0 * time.Second, // disable idle connection closure.
		ShutdownTimeout: 5 * time.Second,
		Logger:          logAdapter{},
	}

	s := &Server{address: address, card: card}

	srv, err := anetserver.NewServer(address, anetserver.HandlerFunc(s.handle), cfg)
	if err != nil {
		return nil, fmt.Errorf("emulator server setup failed: %w", err)
	}

	s.srv = srv

	return s, nil
}

// Start begins listening for connections.
func (s *Server) Start() error {
	log.Info().Str("address", s.address).Msg("emulator started")

	return s.srv.Start()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	return s.srv.Stop()
}

func (s *Server) handle(conn *anetserver.ServerConn, data []byte) ([]byte, error) {
	client := conn.Conn.RemoteAddr().String()
	atomic.AddInt32(&s.activeConns, 1)
	defer atomic.AddInt32(&s.activeConns, -1)

	log.Debug().
		Str("event", "apdu_received").
		Str("client_ip", client).
		Str("apdu", hex.EncodeToString(data)).
		Int("active_connections", int(atomic.LoadInt32(&s.activeConns))).
		Msg("received command")

	s.mu.Lock()
	resp, err := s.card.Send(data)
	s.mu.Unlock()

	if err != nil {
		log.Error().
			Str("event", "card_error").
			Str("client_ip", client).
			Err(err).
			Msg("card processing failed")

		return nil, err
	}

	log.Debug().
		Str("event", "response_sent").
		Str("client_ip", client).
		Str("response", hex.EncodeToString(resp)).
		Msg("sent response")

	return resp, nil
}
