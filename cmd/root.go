package cmd

import (
	"fmt"
	"os"

	"github.com/anoixa/image-resizer/config"
	"github.com/anoixa/image-resizer/utils"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "image-resizer",
	Short: "Image library service that keeps fixed-size thumbnails for every upload",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		config.SetConfigFile(path)
		config.InitConfig()

		cfg := config.Get()
		if err := utils.InitLogger(cfg.LogLevel, cfg.LogFormat); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		serveCmd.Run(cmd, args)
	},
}

func Execute() {
	defer utils.SyncLogger()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (eg: /etc/image-resizer/.env)")
}
