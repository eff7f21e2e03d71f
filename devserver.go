package main

import (
	"github.com/katatrina/gundam-live/api"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newDevServerCmd(a *app) *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run a local marketplace backend with seeded users and one auction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if address != "" {
				a.config.DevServerAddress = address
			}
			return runDevServer(a)
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "listen address (overrides DEV_SERVER_ADDRESS)")
	return cmd
}

func runDevServer(a *app) error {
	config := a.config
	if err := config.ValidateDevServer(); err != nil {
		log.Error().Err(err).Msg("invalid dev server config 😣")
		return err
	}

	store := api.NewStore()
	if err := store.Seed(); err != nil {
		log.Error().Err(err).Msg("failed to seed dev data 😣")
		return err
	}
	log.Info().Msg("dev data seeded ✅")

	server, err := api.NewServer(config, store)
	if err != nil {
		log.Error().Err(err).Msg("failed to create HTTP server 😣")
		return err
	}
	defer server.Close()

	log.Info().Str("address", config.DevServerAddress).Msg("starting dev server")
	if err = server.Start(config.DevServerAddress); err != nil {
		log.Error().Err(err).Msg("failed to start HTTP server 😣")
		return err
	}
	return nil
}
