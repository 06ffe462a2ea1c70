package main

import (
	"errors"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"delaybot/internal/config"
)

// Set at build time: -ldflags "-X main.version=v1.2.3".
var version = "dev"

type globalFlags struct {
	configPath string
	envFiles   []string
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}
	command := &cobra.Command{
		Use:           "delaybot",
		Short:         "Durable delayed-message bots for Telegram",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBots(cmd.Context(), g)
		},
	}
	command.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "config file (JSON or YAML); default $DELAYBOT_CONFIG, then ./delaybot.yaml if present, else environment only")
	command.PersistentFlags().StringSliceVar(&g.envFiles, "env-file", []string{".env"}, ".env files to load before reading the environment")

	command.AddCommand(runCmd(g), jobsCmd(g), versionCmd())
	return command
}

var defaultConfigFiles = []string{"delaybot.yaml", "delaybot.yml", "delaybot.json"}

// loadConfig resolves and loads the configuration.
func loadConfig(g *globalFlags) (*config.Manager, error) {
	if err := config.LoadDotEnv(g.envFiles...); err != nil {
		return nil, err
	}
	e, err := config.ParseEnv()
	if err != nil {
		return nil, err
	}
	path := strings.TrimSpace(g.configPath)
	if path == "" {
		path = strings.TrimSpace(e.ConfigPath)
	}
	if path == "" {
		for _, f := range defaultConfigFiles {
			if _, err := os.Stat(f); err == nil {
				path = f
				break
			} else if !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
		}
	}
	m := config.NewManager(path, e)
	if _, err := m.Load(); err != nil {
		return nil, err
	}
	return m, nil
}
