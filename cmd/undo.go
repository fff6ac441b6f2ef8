package cmd

import (
	"github.com/lschandler81/Push365-sub000/internal/config"
	"github.com/spf13/cobra"
)

var undoCmd = &cobra.Command{
	Use:   "undo",
	Short: "以副设备身份撤销最近一次打卡",
	RunE: func(cmd *cobra.Command, args []string) error {
		secondary, err := newSecondaryClient(config.Load())
		if err != nil {
			return err
		}

		secondary.UndoLastLog()
		printProjection(secondary)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(undoCmd)
}
