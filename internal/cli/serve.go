package cli

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ovoronkov/reelcut/internal/api"
	"github.com/ovoronkov/reelcut/internal/config"
	"github.com/ovoronkov/reelcut/internal/metrics"
	"github.com/ovoronkov/reelcut/internal/pipeline"
)

func newServeCommand(over *config.Overrides) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(*over)
			if err != nil {
				return err
			}

			app, err := pipeline.New(cfg, log)
			if err != nil {
				return err
			}
			defer app.Close()

			prometheus.MustRegister(metrics.NewCollector(app.Registry, app.Usecase))

			srv := api.NewServer(api.Deps{
				Jobs:     app.Usecase,
				Registry: app.Registry,
				Store:    app.Store,
				Styles:   app.Styles,
				Cfg:      cfg,
				Version:  Version,
				Log:      log,
			})

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()
			log.Info().Str("addr", cfg.HTTPAddr).Str("version", Version).Msg("http server listening")

			select {
			case <-cmd.Context().Done():
				log.Info().Msg("shutdown signal received")
			case err := <-errCh:
				return err
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("http server shutdown error")
			}
			log.Info().Msg("stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&over.HTTPAddr, "addr", "", "Listen address (default HTTP_ADDR or :8080)")
	return cmd
}
