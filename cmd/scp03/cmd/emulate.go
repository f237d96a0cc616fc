package cmd

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jkolo/go-scp03/internal/config"
	"github.com/jkolo/go-scp03/pkg/emulator"
)

var listenAddress string

// emulateCmd runs the card emulator as a TCP server.
var emulateCmd = &cobra.Command{
	Use:   "emulate",
	Short: "Run an SCP03 card emulator over TCP",
	Long:  `Run a simulated SCP03 secure element listening for APDU frames over TCP, answering with the configured static keys and echoing decrypted payloads.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg := config.Get()

		keys, err := cfg.StaticKeys()
		if err != nil {
			return err
		}

		address := listenAddress
		if address == "" {
			address = cfg.Emulator.Address
		}

		card := emulator.New(keys)

		srv, err := emulator.NewServer(address, card)
		if err != nil {
			return err
		}

		// Ensure the stop channel is closed only once.
		var stopOnce sync.Once
		stopChan := make(chan os.Signal, 1)
		signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			sig := <-stopChan
			log.Info().Msgf("signal %v received, shutting down emulator", sig)

			stopOnce.Do(func() {
				if err := srv.Stop(); err != nil {
					log.Error().Err(err).Msg("failed to stop emulator")
				}
				close(stopChan)
			})
		}()

		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("failed to start emulator")
		}

		<-stopChan

		log.Info().Msg("emulator stopped gracefully")

		return nil
	},
}

func init() {
	emulateCmd.Flags().StringVar(&listenAddress, "listen", "", "listen address (defaults to emulator.address from config)")
	rootCmd.AddCommand(emulateCmd)
}
