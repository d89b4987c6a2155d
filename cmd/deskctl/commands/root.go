package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/bryanchriswhite/deskctl/internal/config"
	"github.com/bryanchriswhite/deskctl/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "deskctl",
		Short: "deskctl - Remote control surface for a Linux desktop",
		Long: `deskctl exposes the windows on a Linux desktop session to automation
clients and lets them act on what is on screen.

Features:
  • Capture window trees from the AT-SPI accessibility bus
  • Fall back to the window manager's list when accessibility is empty
  • Query windows by title, role or contained value
  • Inject mouse, keyboard and clipboard events
  • Screenshots and shell commands
  • REST, WebSocket and MCP interfaces`,
		SilenceUsage: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/deskctl/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "server port (default is 8080)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error, off)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "human-readable console logs")

	// Bind flags to viper
	viper.BindPFlag("server_port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_pretty", rootCmd.PersistentFlags().Lookup("log-pretty"))
}

func initConfig() {
	viper.SetEnvPrefix("deskctl")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
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

// loadConfig reads the config file, applies flag and DESKCTL_* environment
// overrides to the returned copy and initializes logging. Overrides are
// not written back to the file.
func loadConfig() (*config.Manager, *config.Config, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg := configMgr.Get()

	if viper.IsSet("server_port") {
		if port := viper.GetInt("server_port"); port > 0 {
			cfg.ServerPort = port
		}
	}
	if viper.IsSet("log_level") {
		if level := viper.GetString("log_level"); level != "" {
			cfg.LogLevel = level
		}
	}
	if viper.IsSet("log_pretty") {
		cfg.LogPretty = viper.GetBool("log_pretty")
	}

	logger.Init(cfg.LogLevel, cfg.LogPretty)
	logger.Get().Debug().
		Str("path", configMgr.GetConfigPath()).
		Str("log_level", cfg.LogLevel).
		Msg("Configuration loaded")

	return configMgr, cfg, nil
}
