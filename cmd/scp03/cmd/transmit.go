package cmd

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jkolo/go-scp03/internal/config"
	"github.com/jkolo/go-scp03/internal/logging"
	"github.com/jkolo/go-scp03/pkg/apdu"
	"github.com/jkolo/go-scp03/pkg/pcsc"
	"github.com/jkolo/go-scp03/pkg/scp03"
	"github.com/jkolo/go-scp03/pkg/tcp"
)

var useTCP bool

// transmitCmd opens a secure channel and sends the given APDUs through it.
var transmitCmd = &cobra.Command{
	Use:   "transmit <apdu-hex> [<apdu-hex>...]",
	Short: "Open a secure channel and transmit APDUs",
	Long: `Open an SCP03 secure channel using the configured static keys and
transmit the given hex-encoded command APDUs through it, printing each
decoded response.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		cfg := config.Get()

		keys, err := cfg.StaticKeys()
		if err != nil {
			return err
		}

		transport, closeTransport, err := openTransport(cfg)
		if err != nil {
			return err
		}
		defer closeTransport()

		channel, err := scp03.Open(transport, keys)
		if err != nil {
			return fmt.Errorf("open secure channel: %w", err)
		}

		for _, arg := range args {
			raw, err := hex.DecodeString(arg)
			if err != nil {
				return fmt.Errorf("invalid APDU hex %q: %w", arg, err)
			}

			cmd, err := apdu.ParseCommand(raw)
			if err != nil {
				return err
			}

			start := time.Now()

			resp, err := channel.Transmit(cmd)
			if err != nil {
				logging.LogFailure(channel.ID().String(), raw, err)

				return fmt.Errorf("transmit %s: %w", arg, err)
			}

			logging.LogExchange(channel.ID().String(), raw, resp.Bytes(), time.Since(start))

			fmt.Printf("%s -> %04X %s\n", arg, resp.SW(), hex.EncodeToString(resp.Data))
		}

		return nil
	},
}

// openTransport connects either to the configured PC/SC reader or to a
// remote emulator over TCP.
func openTransport(cfg *config.Config) (scp03.Transport, func(), error) {
	if useTCP {
		t, err := tcp.Dial(cfg.Emulator.Address, 30*time.Second)
		if err != nil {
			return nil, nil, err
		}

		return t, func() {
			if err := t.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close TCP transport")
			}
		}, nil
	}

	t, err := pcsc.Connect(cfg.Reader.Index)
	if err != nil {
		return nil, nil, err
	}

	return t, t.Close, nil
}

func init() {
	transmitCmd.Flags().BoolVar(&useTCP, "tcp", false, "connect to the emulator address instead of a PC/SC reader")
	rootCmd.AddCommand(transmitCmd)
}
