package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

var datasetsCmd = &cobra.Command{
	Use:     "datasets",
	Aliases: []string{"dataset", "ds"},
	Short:   "List datasets registered with the service",
}

var datasetsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List datasets",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := requireApp(cmd.Context())
		if err != nil {
			return err
		}

		h := app.Catalog(false).ListDatasets()
		defer h.Release()

		datasets, err := h.Wait(cmd.Context())
		if err != nil {
			return err
		}

		return render(cmd, datasets, func(w io.Writer) error {
			if len(datasets) == 0 {
				_, err := fmt.Fprintln(w, "No datasets found")
				return err
			}
			if err := row(w, "ID", "NAME", "FORMAT", "VARIABLES"); err != nil {
				return err
			}
			for _, d := range datasets {
				if err := row(w, d.ID, d.Name, orDash(d.FileFormat), len(d.Variables)); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

var datasetsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp(cmd.Context())
		if err != nil {
			return err
		}

		h := app.Catalog(false).Dataset(args[0])
		defer h.Release()

		d, err := h.Wait(cmd.Context())
		if err != nil {
			return err
		}

		return render(cmd, d, func(w io.Writer) error {
			if err := row(w, "ID:", d.ID); err != nil {
				return err
			}
			if err := row(w, "Name:", d.Name); err != nil {
				return err
			}
			if err := row(w, "Description:", orDash(d.Description)); err != nil {
				return err
			}
			if err := row(w, "Format:", orDash(d.FileFormat)); err != nil {
				return err
			}
			return row(w, "Variables:", orDash(strings.Join(d.Variables, ", ")))
		})
	},
}

func init() {
	rootCmd.AddCommand(datasetsCmd)
	datasetsCmd.AddCommand(datasetsListCmd, datasetsShowCmd)

	addOutputFlag(datasetsListCmd)
	addOutputFlag(datasetsShowCmd)
}
