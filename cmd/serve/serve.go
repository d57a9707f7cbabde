// Package serve provides the "creditkit serve" web UI command.
package serve

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/klytics/creditkit/internal/analysis"
	"github.com/klytics/creditkit/internal/app"
	"github.com/klytics/creditkit/internal/web"
)

// NewCommand returns the serve command.
func NewCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the browser UI",
		Long: `Serves a local page where a workbook can be uploaded and analyzed.
Each browser gets its own session; results are kept in memory only.

Also serves /api/session (JSON), /healthz and /metrics (Prometheus).`,
		Example: `  creditkit serve
  creditkit serve --addr :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.FromCommand(cmd)
			if err != nil {
				return err
			}
			cfg := a.Config
			if addr != "" {
				cfg.Server.Addr = addr
			}

			srv := web.NewServer(web.Config{
				Registry:      analysis.NewRegistry(a.Analyzer),
				Metrics:       a.Metrics,
				Logger:        a.Logger,
				Addr:          cfg.Server.Addr,
				SessionSecret: cfg.Server.SessionSecret,
				MaxUpload:     int64(cfg.Server.MaxUploadMB) << 20,
				AnalyzeRPS:    cfg.Server.AnalyzeRPS,
			})

			fmt.Fprintf(cmd.ErrOrStderr(), "creditkit is listening on http://%s (Ctrl+C to stop)\n", cfg.Server.Addr)
			return srv.Serve(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from server.addr, 127.0.0.1:8080)")
	return cmd
}
