package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/liveserve/internal/config"
	"github.com/conneroisu/liveserve/internal/server"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage liveserve configuration",
	Long: `Manage liveserve configuration files and settings.

Examples:
  liveserve config init                # Write a starter .liveserve.yml
  liveserve config show                # Show the resolved configuration
  liveserve config snippet             # Print the browser client snippet`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration",
	Long: `Display the configuration after merging the config file, environment
variables, defaults, and flags.`,
	RunE: runConfigShow,
}

var configSnippetCmd = &cobra.Command{
	Use:   "snippet",
	Short: "Print the JS snippet pages embed to receive reloads",
	RunE:  runConfigSnippet,
}

var configInitOutput string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSnippetCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", ".liveserve.yml", "Output file path")
}

// starterConfig mirrors config.Config with YAML-friendly field types for the
// generated starter file (durations as strings, not nanoseconds).
type starterConfig struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`
	Watch struct {
		Paths      []string `yaml:"paths"`
		Extensions []string `yaml:"extensions"`
		Debounce   string   `yaml:"debounce"`
	} `yaml:"watch"`
	Build struct {
		Command string `yaml:"command"`
	} `yaml:"build"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configInitOutput); err == nil {
		return fmt.Errorf("%s already exists, not overwriting", configInitOutput)
	}

	defaults := config.Default()
	var starter starterConfig
	starter.Server.Host = defaults.Server.Host
	starter.Server.Port = defaults.Server.Port
	starter.Watch.Paths = defaults.Watch.Paths
	starter.Watch.Extensions = defaults.Watch.Extensions
	starter.Watch.Debounce = defaults.Watch.Debounce.String()
	starter.Build.Command = defaults.Build.Command
	starter.Log.Level = defaults.Log.Level
	starter.Log.Format = defaults.Log.Format

	data, err := yaml.Marshal(&starter)
	if err != nil {
		return fmt.Errorf("marshaling default config: %w", err)
	}

	if err := os.WriteFile(configInitOutput, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", configInitOutput, err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Wrote", configInitOutput)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}

func runConfigSnippet(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "<script>\n%s\n</script>\n", server.ClientScript(cfg.Server.Address()))
	return nil
}
