package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/narravid/narravid/internal/api"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the validation queue over HTTP",
		Long:  "Exposes the pending queue, decision endpoint and project status as a JSON API for browser-based review.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				listen := addr
				if listen == "" {
					listen = d.Config.Serve.Addr
				}

				server := api.NewServer(d.Validation, d.Status, d.Logger)
				httpServer := &http.Server{
					Addr:              listen,
					Handler:           server.Router(),
					ReadHeaderTimeout: 5 * time.Second,
				}

				errCh := make(chan error, 1)
				go func() {
					fmt.Printf("Serving validation API on http://%s\n", listen)
					errCh <- httpServer.ListenAndServe()
				}()

				select {
				case <-ctx.Done():
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return httpServer.Shutdown(shutdownCtx)
				case err := <-errCh:
					if errors.Is(err, http.ErrServerClosed) {
						return nil
					}
					return err
				}
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to serve.addr from config)")
	return cmd
}
