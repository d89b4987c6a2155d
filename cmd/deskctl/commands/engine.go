package commands

import (
	"github.com/bryanchriswhite/deskctl/internal/accessibility"
	"github.com/bryanchriswhite/deskctl/internal/accessibility/atspi"
	"github.com/bryanchriswhite/deskctl/internal/config"
	"github.com/bryanchriswhite/deskctl/internal/metrics"
	"github.com/bryanchriswhite/deskctl/internal/query"
	"github.com/bryanchriswhite/deskctl/internal/window"
)

// newEngine wires the AT-SPI tree builder and the window-manager fallbacks
// into a query engine
func newEngine(cfg *config.Config, m *metrics.Metrics) *query.Engine {
	builder := accessibility.NewBuilder(
		atspi.NewRegistry(cfg.Accessibility.BusAddress),
		accessibility.WithMaxDepth(cfg.Accessibility.MaxDepth),
	)
	listers := []window.Lister{window.NewFallbackLister(cfg.Fallback.Command, cfg.Fallback.Timeout)}
	if cfg.Fallback.EWMH {
		listers = append(listers, window.NewEWMHLister())
	}
	if cfg.Fallback.KWin {
		listers = append(listers, window.NewKWinLister(cfg.Fallback.Timeout))
	}
	fallback := window.Chain(listers...)

	return query.NewEngine(builder, fallback,
		query.WithTimeout(cfg.Server.CaptureTimeout),
		query.WithMetrics(m),
	)
}
