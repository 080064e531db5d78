package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"formate/internal/api"
	"formate/internal/core"
	"formate/internal/store/sqlite"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr, dbPath, baseURL string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve plans and conversations over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.load()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = e.cfg.Addr
			}
			if dbPath == "" {
				dbPath = e.cfg.DBPath
			}
			if baseURL == "" {
				baseURL = e.cfg.BaseURL
			}

			store, err := sqlite.Open(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			iv := core.NewInterviewer(store, store, e.optionalGenerator(ctx), e.logger)
			server := api.NewServer(iv, e.logger.With("component", "api"), baseURL)

			e.logger.Info("serving", "addr", addr, "db", store.DBPath)
			return server.ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default $FORMATE_ADDR)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database (default $FORMATE_DB_PATH)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "public origin for share links (default $FORMATE_BASE_URL)")
	return cmd
}

