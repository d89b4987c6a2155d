package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bryanchriswhite/deskctl/internal/api"
	"github.com/bryanchriswhite/deskctl/internal/automation"
	"github.com/bryanchriswhite/deskctl/internal/logger"
	"github.com/bryanchriswhite/deskctl/internal/metrics"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the deskctl server",
	Long: `Start the deskctl HTTP server.

The server answers window queries over REST, accepts the command envelope
on POST /api/command and the /ws WebSocket channel, and exports
Prometheus metrics on /metrics.`,
	Example: `  # Start server on default port (8080)
  deskctl serve

  # Start server on custom port
  deskctl serve --port 9090

  # Start with specific config file
  deskctl serve --config /path/to/config.yaml

  # Start with debug logging
  deskctl serve --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.WithComponent("serve")

	m := metrics.New()
	engine := newEngine(cfg, m)

	robot := automation.NewRobotInput()
	screenshots := automation.NewX11Screenshotter()
	defer screenshots.Close()

	dispatcher := api.NewDispatcher(engine, automation.Desktop{
		Input:      robot,
		Clipboard:  robot,
		Screenshot: screenshots,
		Commands:   automation.NewCommandRunner(0),
	},
		api.WithMaxConcurrent(int64(cfg.Server.MaxConcurrent)),
		api.WithDispatchMetrics(m),
		api.WithScreenshotWidth(cfg.Screenshot.MaxWidth),
	)
	server := api.NewServer(dispatcher, m)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Int("port", cfg.ServerPort).
		Int("max_concurrent", cfg.Server.MaxConcurrent).
		Dur("capture_timeout", cfg.Server.CaptureTimeout).
		Msg("deskctl is running")
	log.Info().Msgf("API: http://localhost:%d/api", cfg.ServerPort)
	log.Info().Msgf("WebSocket: ws://localhost:%d/ws", cfg.ServerPort)

	if err := server.Start(ctx, cfg.ServerPort); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	log.Info().Msg("Shut down gracefully")
	return nil
}
