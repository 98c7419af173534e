package main

import (
	"context"
	"time"

	"github.com/go-go-golems/parley/internal/app"
	"github.com/go-go-golems/parley/pkg/channel/telegram"
	"github.com/go-go-golems/parley/pkg/security"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newServeCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Answer Telegram messages using long polling",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.cfg
			if cfg.Telegram.Token == "" {
				return errors.New("telegram.token is required (or PARLEY_TELEGRAM_TOKEN)")
			}
			allowLocal := security.OutboundURLOptions{AllowHTTP: cfg.Telegram.AllowLocal, AllowLocalNetworks: cfg.Telegram.AllowLocal}
			client := telegram.NewClient(cfg.Telegram.Token,
				telegram.WithBaseURL(cfg.Telegram.BaseURL),
				telegram.WithURLOptions(allowLocal),
				telegram.WithRetries(uint64(max(cfg.Telegram.Retries, 0)), 500*time.Millisecond),
			)

			a, err := app.New(cfg, client)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			poller := telegram.NewPoller(client, a.Driver,
				telegram.WithPollTimeout(cfg.Telegram.PollTimeout),
				telegram.WithQueueSize(cfg.Telegram.QueueSize),
			)
			ctx, stop := signalContext()
			defer stop()
			return ignoreCanceled(a.Run(ctx, poller.Run))
		},
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
