package cmd

import (
	"github.com/lschandler81/Push365-sub000/internal/config"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "查看今日进度投影",
	RunE: func(cmd *cobra.Command, args []string) error {
		secondary, err := newSecondaryClient(config.Load())
		if err != nil {
			return err
		}

		printProjection(secondary)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
