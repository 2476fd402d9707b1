package internal

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/goplus/tsgrammar/internal/abi"
)

var abiCmd = &cobra.Command{
	Use:   "abi FILE...",
	Short: "Print the ABI declared by parser sources",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runABI,
}

func init() {
	rootCmd.AddCommand(abiCmd)
}

func runABI(cmd *cobra.Command, args []string) error {
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		v, err := abi.Extract(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", path, v)
	}
	return nil
}
