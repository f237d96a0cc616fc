package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jkolo/go-scp03/pkg/pcsc"
)

// readersCmd represents the readers command.
var readersCmd = &cobra.Command{
	Use:   "readers",
	Short: "List connected PC/SC readers",
	RunE: func(_ *cobra.Command, _ []string) error {
		readers, err := pcsc.Readers()
		if err != nil {
			return err
		}

		if len(readers) == 0 {
			fmt.Println("no readers found")

			return nil
		}

		for i, reader := range readers {
			fmt.Printf("%d: %s\n", i, reader)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(readersCmd)
}
