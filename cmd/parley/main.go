package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-go-golems/parley/pkg/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cli holds the state shared by all commands once flags are parsed.
type cli struct {
	configPath string
	v          *viper.Viper
	cfg        *config.Config
	closeLog   func() error
}

func newRootCommand() *cobra.Command {
	c := &cli{}
	rootCmd := &cobra.Command{
		Use:           "parley",
		Short:         "parley is a conversational agent for messaging channels",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.closeLog != nil {
				return c.closeLog()
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "config file (default ./parley.yaml)")
	flags.String("log-level", "", "log level (trace, debug, info, warn, error)")
	flags.String("log-format", "", "log format (text, json)")
	flags.String("log-file", "", "write logs to this file")

	rootCmd.AddCommand(
		newServeCommand(c),
		newChatCommand(c),
		newHistoryCommand(c),
		newSchedulesCommand(c),
		newToolsCommand(c),
	)
	return rootCmd
}

func (c *cli) load(cmd *cobra.Command) error {
	c.v = config.NewViper(c.configPath)
	for key, flag := range map[string]string{
		"log.level":  "log-level",
		"log.format": "log-format",
		"log.file":   "log-file",
	} {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			if err := c.v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	cfg, err := config.LoadViper(c.v, c.configPath != "")
	if err != nil {
		return err
	}
	closer, err := config.InitLogger(cfg.Log)
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.closeLog = closer.Close
	log.Debug().Str("config", c.v.ConfigFileUsed()).Msg("configuration loaded")
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Error().Err(err).Msg("parley failed")
		os.Exit(1)
	}
}
