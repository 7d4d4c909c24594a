// Package cmd provides the liveserve command-line interface.
//
// Configuration sources, highest priority first:
//  1. Command-line flags (--port, --host, ...)
//  2. LIVESERVE_CONFIG_FILE environment variable (custom config file path)
//  3. Individual LIVESERVE_* environment variables (LIVESERVE_SERVER_PORT, ...)
//  4. .liveserve.yml in the current directory
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "liveserve",
	Short: "A live-reload WebSocket server for local development",
	Long: `Liveserve runs a small WebSocket server that browser tabs connect to
during development. When watched files change it broadcasts a reload to
every connected tab; when the build command fails it pushes the error to
the browser console instead.

Quick start:
  liveserve serve                 Watch the current directory and serve reloads
  liveserve config init           Write a starter .liveserve.yml
  liveserve config snippet        Print the JS snippet pages embed`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .liveserve.yml, can also use LIVESERVE_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig wires viper to the config file and LIVESERVE_* environment
// variables before any command runs.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("LIVESERVE_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".liveserve")
	}

	viper.SetEnvPrefix("LIVESERVE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// A missing config file is fine; defaults and env cover everything.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
