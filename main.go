package main

import (
	"os"

	"github.com/katatrina/gundam-live/internal/util"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds what every subcommand shares once the config is loaded.
type app struct {
	configPath string
	config     util.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:          "gundam-live",
		Short:        "Follow Gundam marketplace auctions in real time",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig()
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "./app.env", "path to the config file")

	rootCmd.AddCommand(newWatchCmd(a), newDevServerCmd(a))
	return rootCmd
}

func (a *app) loadConfig() error {
	config, err := util.LoadConfig(a.configPath)
	if err != nil {
		log.Error().Err(err).Msg("failed to load config file 😣")
		return err
	}

	level, err := zerolog.ParseLevel(config.LogLevel)
	if err != nil {
		log.Error().Err(err).Str("level", config.LogLevel).Msg("invalid log level 😣")
		return err
	}
	zerolog.SetGlobalLevel(level)

	a.config = config
	log.Info().Msg("configurations loaded successfully ✅")
	return nil
}
