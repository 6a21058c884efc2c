package commands

import (
	"fmt"
	"os"

	"github.com/bryanchriswhite/blockcast/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	prettyLog bool
	rootCmd   = &cobra.Command{
		Use:   "blockcast",
		Short: "blockcast - block-based screen change tracking",
		Long: `blockcast captures a region of the screen into a surface divided into
square blocks and tracks which blocks changed between captures.

Changed blocks are emitted as frames in the blue, green, red bottom-up
layout used by block-based screen video encoders. A live preview rebuilt
from those blocks is served over HTTP.

Features:
  • X11, portable screenshot, and image file capture backends
  • Dirty block tracking with key frames and autopan
  • MJPEG preview with block outlines
  • REST and websocket API
  • Raw block conversion tools`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init(viper.GetString("log_level"), prettyLog)
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/blockcast/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "server port (default is 8080)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&prettyLog, "pretty", false, "human readable console logs")

	// Bind flags to viper
	viper.BindPFlag("server_port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}
