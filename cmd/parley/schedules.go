package main

import (
	"fmt"

	"github.com/go-go-golems/parley/pkg/schedule"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newSchedulesCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedules",
		Short: "List and remove scheduled messages",
	}

	open := func() (*schedule.Scheduler, *schedule.Store, error) {
		store, err := schedule.NewStore(c.cfg.Schedule.Path)
		if err != nil {
			return nil, nil, err
		}
		loc, err := c.cfg.Location()
		if err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		return schedule.New(store, schedule.WithLocation(loc)), store, nil
	}

	list := &cobra.Command{
		Use:   "list [conversation-id]",
		Short: "List scheduled messages, of all conversations by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, store, err := open()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			conv := ""
			if len(args) == 1 {
				conv = args[0]
			}
			list, err := s.List(cmd.Context(), conv)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no scheduled messages")
				return nil
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer func() { _ = enc.Close() }()
			return enc.Encode(list)
		},
	}

	remove := &cobra.Command{
		Use:   "remove <conversation-id> <id>",
		Short: "Remove a scheduled message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, store, err := open()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			if err := s.Remove(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s-%s\n", args[0], args[1])
			return nil
		},
	}

	cmd.AddCommand(list, remove)
	return cmd
}
