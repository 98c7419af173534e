package main

import (
	"github.com/go-go-golems/parley/internal/app"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newToolsCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect the tools offered to the model",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "Print the merged tool catalogue as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(c.cfg, nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			specs, err := a.Catalogue.Load(cmd.Context())
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer func() { _ = enc.Close() }()
			return enc.Encode(specs)
		},
	}
	cmd.AddCommand(list)
	return cmd
}
