package cmd

import (
	"fmt"
	"strconv"

	"github.com/lschandler81/Push365-sub000/internal/config"
	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:   "log <amount>",
	Short: "以副设备身份记录若干个俯卧撑",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := strconv.Atoi(args[0])
		if err != nil || amount < 1 {
			return fmt.Errorf("amount must be a positive integer, got %q", args[0])
		}

		secondary, err := newSecondaryClient(config.Load())
		if err != nil {
			return err
		}

		secondary.LogPushups(amount)
		printProjection(secondary)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logCmd)
}
