// Package cli holds the huddle client commands.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/settings"
)

// Dependencies is filled in by the root command before any subcommand runs.
type Dependencies struct {
	Config       *config.ClientConfig
	Settings     settings.Settings
	SettingsPath string
}

func NewRootCmd() *cobra.Command {
	deps := &Dependencies{}
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "huddle",
		Short:         "Join group video calls from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClient(configFile)
			if err != nil {
				return err
			}
			deps.Config = cfg
			if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
				zerolog.SetGlobalLevel(lvl)
			}

			if deps.SettingsPath == "" {
				if deps.SettingsPath, err = settings.DefaultPath(); err != nil {
					return err
				}
			}
			s, err := settings.Load(deps.SettingsPath)
			if err != nil {
				log.Warn().Err(err).Str("module", "cli").Msg("ignoring unreadable settings")
			}
			deps.Settings = s
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "client config file (default config/client.<CONFIG_ENV>.yaml)")
	rootCmd.PersistentFlags().StringVar(&deps.SettingsPath, "settings", "", "preferences file (default $XDG_CONFIG_HOME/huddle/settings.toml)")

	rootCmd.AddCommand(NewJoinCmd(deps))
	rootCmd.AddCommand(NewDevicesCmd(deps))
	rootCmd.AddCommand(NewTokenCmd(deps))

	return rootCmd
}
