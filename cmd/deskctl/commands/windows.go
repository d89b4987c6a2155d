package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/bryanchriswhite/deskctl/internal/element"
	"github.com/bryanchriswhite/deskctl/internal/query"
	"github.com/bryanchriswhite/deskctl/internal/remote"
	"github.com/spf13/cobra"
)

var windowsCmd = &cobra.Command{
	Use:   "windows",
	Short: "List top-level windows",
	Long: `List the top-level windows of the desktop session.

Windows come from the AT-SPI accessibility tree. When that tree is empty
the window manager's list is used instead, giving title-only entries.
With --remote the windows of a running deskctl server are listed.`,
	Example: `  # List windows in table format (default)
  deskctl windows

  # Print full trees as JSON
  deskctl windows --format json

  # List the windows of another machine
  deskctl windows --remote 192.168.1.20:8080`,
	Args: cobra.NoArgs,
	RunE: runWindows,
}

var findCmd = &cobra.Command{
	Use:   "find (title|role|value) TERM",
	Short: "Find windows by title, role or value",
	Long: `Search the top-level windows.

  title  first window whose title contains TERM, ignoring case
  role   every window whose role equals TERM, ignoring case
  value  first window with an element whose value or title contains TERM`,
	Example: `  # Find a window by title
  deskctl find title firefox

  # Find all dialogs
  deskctl find role dialog

  # Find the window showing some text
  deskctl find value "Build succeeded" --format json`,
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"title", "role", "value"},
	RunE:      runFind,
}

var (
	windowsFormat string
	remoteAddress string
	remoteOS      string
)

func init() {
	rootCmd.AddCommand(windowsCmd)
	rootCmd.AddCommand(findCmd)

	for _, c := range []*cobra.Command{windowsCmd, findCmd} {
		c.Flags().StringVarP(&windowsFormat, "format", "f", "table", "output format (table or json)")
		c.Flags().StringVarP(&remoteAddress, "remote", "r", "", "query a deskctl server at host[:port] instead of this desktop")
		c.Flags().StringVar(&remoteOS, "os", "linux", "operating system of the remote (linux or macos)")
	}
}

// windowSource answers queries either locally or through a remote server
type windowSource interface {
	GetWindows(ctx context.Context) ([]*element.Element, error)
	FindWindowByTitle(ctx context.Context, title string) (*element.Element, error)
	FindWindowByRole(ctx context.Context, role string) ([]*element.Element, error)
	FindWindowByValue(ctx context.Context, value string) (*element.Element, error)
}

// localSource adapts the query engine to windowSource
type localSource struct {
	engine *query.Engine
}

func (l localSource) GetWindows(ctx context.Context) ([]*element.Element, error) {
	res := l.engine.ListWindows(ctx)
	return res.Windows, res.Err
}

func (l localSource) FindWindowByTitle(ctx context.Context, title string) (*element.Element, error) {
	res := l.engine.FindByTitle(ctx, title)
	return res.Window, res.Err
}

func (l localSource) FindWindowByRole(ctx context.Context, role string) ([]*element.Element, error) {
	res := l.engine.FindByRole(ctx, role)
	return res.Windows, res.Err
}

func (l localSource) FindWindowByValue(ctx context.Context, value string) (*element.Element, error) {
	res := l.engine.FindByValue(ctx, value)
	return res.Window, res.Err
}

func openSource() (windowSource, func(), error) {
	_, cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	if remoteAddress == "" {
		return localSource{engine: newEngine(cfg, nil)}, func() {}, nil
	}

	iface, err := remote.NewInterface(remoteOS, remoteAddress)
	if err != nil {
		return nil, nil, err
	}
	return iface, func() { _ = iface.Close() }, nil
}

func runWindows(cmd *cobra.Command, args []string) error {
	src, closeSrc, err := openSource()
	if err != nil {
		return err
	}
	defer closeSrc()

	windows, err := src.GetWindows(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list windows: %w", err)
	}
	return printWindows(os.Stdout, windows, windowsFormat)
}

func runFind(cmd *cobra.Command, args []string) error {
	by, term := args[0], args[1]

	src, closeSrc, err := openSource()
	if err != nil {
		return err
	}
	defer closeSrc()

	ctx := cmd.Context()
	var windows []*element.Element
	switch strings.ToLower(by) {
	case "title":
		w, ferr := src.FindWindowByTitle(ctx, term)
		windows, err = single(w), ferr
	case "role":
		windows, err = src.FindWindowByRole(ctx, term)
	case "value":
		w, ferr := src.FindWindowByValue(ctx, term)
		windows, err = single(w), ferr
	default:
		return fmt.Errorf("unsupported search: %s (use 'title', 'role' or 'value')", by)
	}
	if err != nil {
		return err
	}
	return printWindows(os.Stdout, windows, windowsFormat)
}

func single(w *element.Element) []*element.Element {
	if w == nil {
		return []*element.Element{}
	}
	return []*element.Element{w}
}

func printWindows(out io.Writer, windows []*element.Element, format string) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(windows)
	case "table":
		return printWindowsTable(out, windows)
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", format)
	}
}

func printWindowsTable(out io.Writer, windows []*element.Element) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "ROLE\tTITLE\tGEOMETRY\tELEMENTS")
	fmt.Fprintln(w, "----\t-----\t--------\t--------")

	for _, win := range windows {
		fmt.Fprintf(w, "%s\t%s\t%dx%d at (%d, %d)\t%d\n",
			orDash(win.Role), orDash(win.Title),
			win.Width, win.Height, win.X, win.Y,
			win.Count())
	}

	return w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
