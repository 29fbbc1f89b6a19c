package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"dripfeed/internal/api"
	"dripfeed/internal/catalog"
	"dripfeed/internal/logging"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the app catalog",
	}
	catalogCmd.AddCommand(newCatalogListCommand(ctx))
	return catalogCmd
}

func newCatalogListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list [app]",
		Short: "List catalog apps and the event names enqueue accepts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := strings.TrimSpace(cfg.Catalog.Path)
			if path == "" {
				return errors.New("no app catalog configured (set catalog.path)")
			}
			cat, err := catalog.Open(path, logging.NewNop())
			if err != nil {
				return err
			}

			var apps []api.CatalogApp
			if len(args) == 1 {
				app, err := cat.Lookup(args[0])
				if err != nil {
					return err
				}
				apps = []api.CatalogApp{api.FromCatalogApp(app)}
			} else {
				apps = api.FromCatalogApps(cat.Apps())
			}

			if asJSON {
				return writeJSON(cmd, apps)
			}
			out := cmd.OutOrStdout()
			if len(apps) == 0 {
				fmt.Fprintf(out, "Catalog %s has no apps\n", path)
				return nil
			}
			rows := make([][]string, 0, len(apps))
			for _, app := range apps {
				rows = append(rows, []string{app.Name, app.Method, strings.Join(app.Events, ", ")})
			}
			fmt.Fprint(out, renderTable([]string{"App", "Method", "Events"}, rows, nil))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the apps as JSON")
	return cmd
}
