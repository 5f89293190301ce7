package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/dataloom-cli/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the session API over HTTP",
	Long: `Serve exposes independent analysis sessions over HTTP. Each session owns
one dataset and one interaction log:

  POST   /v1/sessions               create a session
  PUT    /v1/sessions/{id}/dataset  upload a .csv or .zip (multipart "file" or raw body with ?filename=)
  GET    /v1/sessions/{id}/summary  pre-analysis of the loaded data
  POST   /v1/sessions/{id}/ask      {"question": "..."}
  GET    /v1/sessions/{id}/log      interaction log (?format=jsonl to export)
  POST   /v1/sessions/{id}/reset    clear data and history
  DELETE /v1/sessions/{id}          drop the session
  GET    /v1/info, /v1/health, /metrics`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Fail fast on a missing key instead of on the first session.
		if _, err := newSession(); err != nil {
			return err
		}
		addr := cfg.Server.Addr
		if cmd.Flags().Changed("addr") {
			addr = serveAddr
		}
		store := server.NewStore(cfg.Server.MaxSessions, newSession)
		var maxUpload int64
		if cfg.FileLimits.MaxFileSizeMB > 0 {
			// multipart framing on top of the largest accepted file
			maxUpload = int64(cfg.FileLimits.MaxFileSizeMB)<<20 + 1<<20
		}
		h := server.NewHandler(server.Dependencies{
			Store:  store,
			Logger: logger,
			Info: server.Info{
				AppTitle:      cfg.UI.AppTitle,
				SidebarHeader: cfg.UI.SidebarHeader,
				Provider:      cfg.LLM.Provider,
				Model:         cfg.LLM.ModelName,
				Version:       version,
			},
			MaxUploadBytes: maxUpload,
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return server.Serve(ctx, addr, h, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address (overrides server.addr)")
}
