package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"clipforge/internal/inventory"
)

func newComponentsCommand(ctx *commandContext) *cobra.Command {
	componentsCmd := &cobra.Command{
		Use:   "components",
		Short: "Inspect the generation component inventory",
	}

	componentsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List components from the inventory manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			cache := inventory.NewCache(inventory.FileLoader{Path: componentManifestPath(cfg)})
			components, err := cache.All(cmd.Context())
			if err != nil {
				return err
			}
			if len(components) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No components in %s\n", componentManifestPath(cfg))
				return nil
			}

			sort.Slice(components, func(i, j int) bool {
				return components[i].ID < components[j].ID
			})

			rows := make([][]string, 0, len(components))
			for _, component := range components {
				rows = append(rows, []string{
					component.ID,
					component.Kind,
					component.ImageRef,
					yesNo(component.MotionRef != ""),
					yesNo(component.Script != ""),
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(out,
				[]string{"ID", "Kind", "Image", "Motion", "Script"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft}))
			return nil
		},
	})

	return componentsCmd
}
