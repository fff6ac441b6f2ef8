package cmd

import (
	"fmt"
	"os"

	"github.com/lschandler81/Push365-sub000/internal/config"
	"github.com/lschandler81/Push365-sub000/internal/logutil"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "push365",
	Short: "每日俯卧撑打卡核心：日目标、连胜与多设备同步。",
	Long: `push365 跟踪一年期的俯卧撑计划：第 N 天的目标是 N 个。
serve 运行主设备服务，log/undo/status 以副设备身份连接主设备。`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("loglevel", "l", "", "Set log level. Available: debug, info, warn, error, fatal")
}

// initConfig 读取环境变量并初始化日志级别，flag 优先于环境。
func initConfig() {
	viper.AutomaticEnv()

	cfg := config.Load()

	level, _ := rootCmd.PersistentFlags().GetString("loglevel")
	if level == "" {
		level = cfg.LogLevel
	}
	logutil.SetLevel(level)
}
