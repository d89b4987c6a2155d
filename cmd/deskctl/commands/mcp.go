package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/bryanchriswhite/deskctl/internal/logger"
	"github.com/bryanchriswhite/deskctl/internal/mcpserver"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve window queries as MCP tools over stdio",
	Long: `Run a Model Context Protocol server on stdin/stdout exposing the
get_windows, find_window_by_title, find_window_by_role and
find_window_by_value tools. Logs go to stderr.`,
	Example: `  # Register with an MCP client
  deskctl mcp --log-level warn`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger.WithComponent("mcp").Debug().Msg("Logging to stderr, stdout carries the protocol")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return mcpserver.Run(ctx, newEngine(cfg, nil))
}
