package main

import (
	"fmt"
	"io"

	"github.com/go-go-golems/parley/internal/app"
	"github.com/go-go-golems/parley/pkg/history"
	"github.com/go-go-golems/parley/pkg/turns"
	"github.com/spf13/cobra"
)

func newHistoryCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and compact stored conversations",
	}

	openStore := func() (*history.Store, func(), error) {
		blobs, err := app.NewBlobStore(c.cfg.History)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if cl, ok := blobs.(io.Closer); ok {
				_ = cl.Close()
			}
		}
		return history.NewStore(blobs, history.WithKeyPrefix(c.cfg.History.KeyPrefix)), closeFn, nil
	}

	var maxLines int
	show := &cobra.Command{
		Use:   "show <conversation-id>",
		Short: "Print a stored conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := openStore()
			if err != nil {
				return err
			}
			defer closeFn()
			lg, err := store.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(lg) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no history for %s\n", args[0])
				return nil
			}
			turns.FprintLog(cmd.OutOrStdout(), lg, turns.WithMaxTextLines(maxLines))
			return nil
		},
	}
	show.Flags().IntVar(&maxLines, "max-lines", 0, "truncate text blocks to this many lines (0 prints everything)")

	var maxLength int
	compact := &cobra.Command{
		Use:   "compact <conversation-id>",
		Short: "Trim a stored conversation to the configured length",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := openStore()
			if err != nil {
				return err
			}
			defer closeFn()
			if maxLength <= 0 {
				maxLength = c.cfg.Loop.MaxHistoryLength
			}
			lg, err := store.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			compacted := store.Compact(lg, maxLength)
			if len(compacted) == len(lg) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s has %d turns, nothing to do\n", args[0], len(lg))
				return nil
			}
			if err := store.Save(cmd.Context(), args[0], compacted, history.NewMetadata(args[0], "", "")); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s compacted from %d to %d turns\n", args[0], len(lg), len(compacted))
			return nil
		},
	}
	compact.Flags().IntVar(&maxLength, "max-length", 0, "maximum number of turns (default loop.max-history-length)")

	cmd.AddCommand(show, compact)
	return cmd
}
