package cmd

import (
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmgilman/oceanctl/internal/catalog"
	"github.com/jmgilman/oceanctl/internal/model"
)

// catalogEntry is one listed catalog node.
type catalogEntry struct {
	Name      string `json:"name" yaml:"name"`
	Path      string `json:"path" yaml:"path"`
	Directory bool   `json:"isDirectory" yaml:"isDirectory"`
	Depth     int    `json:"depth" yaml:"depth"`
}

// leafView is the metadata of a catalog leaf with its access URLs.
type leafView struct {
	model.DatasetMetadata `json:",inline" yaml:",inline"`
	AccessURLs            map[string]string `json:"accessUrls,omitempty" yaml:"accessUrls,omitempty"`
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Browse THREDDS catalogs",
	Long: `Browse the hierarchical catalog of a THREDDS server.

Catalogs are read through the analysis service unless --direct is given,
in which case each server's catalog documents are read directly.`,
}

var catalogListCmd = &cobra.Command{
	Use:     "ls [path]",
	Aliases: []string{"list"},
	Short:   "List a catalog directory",
	Example: `  # List the root of the default server
  oceanctl catalog ls

  # List two levels below a directory
  oceanctl catalog ls ocean/sst --server ncei --depth 2`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp(cmd.Context())
		if err != nil {
			return err
		}
		serverID, err := resolveServer(cmd, app)
		if err != nil {
			return err
		}
		depth, _ := cmd.Flags().GetInt("depth")
		if depth < 1 {
			return fmt.Errorf("depth must be at least 1, got %d", depth)
		}

		browser := catalog.NewBrowser(app.Catalog(directFlag(cmd, app)))
		defer browser.Close()
		browser.SelectServer(serverID)

		tree, err := browser.Tree()
		if err != nil {
			return err
		}

		var dir string
		if len(args) == 1 {
			dir = args[0]
			tree.Seed(model.Node{Name: path.Base(dir), Path: dir, IsDirectory: true})
		}
		if err := tree.ExpandAll(cmd.Context(), dir, depth); err != nil {
			return err
		}

		entries := []catalogEntry{}
		tree.WalkFrom(dir, func(n *catalog.TreeNode, d int) {
			entries = append(entries, catalogEntry{Name: n.Name, Path: n.Path, Directory: n.IsDirectory, Depth: d})
		})

		return render(cmd, entries, func(w io.Writer) error {
			if len(entries) == 0 {
				_, err := fmt.Fprintln(w, "Empty directory")
				return err
			}
			if err := row(w, "NAME", "TYPE", "PATH"); err != nil {
				return err
			}
			for _, e := range entries {
				kind := "file"
				if e.Directory {
					kind = "dir"
				}
				if err := row(w, strings.Repeat("  ", e.Depth)+e.Name, kind, e.Path); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

var catalogShowCmd = &cobra.Command{
	Use:   "show <path>",
	Short: "Show the metadata of a dataset in a catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp(cmd.Context())
		if err != nil {
			return err
		}
		serverID, err := resolveServer(cmd, app)
		if err != nil {
			return err
		}

		loader := app.Catalog(directFlag(cmd, app))
		browser := catalog.NewBrowser(loader)
		defer browser.Close()
		browser.SelectServer(serverID)

		sel, err := browser.Select(cmd.Context(), model.Node{Name: path.Base(args[0]), Path: args[0]})
		if err != nil {
			return err
		}

		view := leafView{DatasetMetadata: *sel.Metadata}
		if ds, ok := loader.Source().(*catalog.DirectSource); ok {
			urls, err := ds.AccessURLs(cmd.Context(), serverID, args[0])
			if err != nil {
				return err
			}
			view.AccessURLs = urls
		}

		return render(cmd, view, func(w io.Writer) error {
			return leafTable(w, view)
		})
	},
}

func leafTable(w io.Writer, v leafView) error {
	c := v.Coverage
	lines := [][]any{
		{"Path:", v.Path},
		{"Format:", orDash(v.Format)},
		{"Time:", orDash(c.TimeStart) + " to " + orDash(c.TimeEnd)},
		{"Extent:", fmt.Sprintf("N %s S %s E %s W %s", coord(c.North), coord(c.South), coord(c.East), coord(c.West))},
	}
	for _, l := range lines {
		if err := row(w, l...); err != nil {
			return err
		}
	}
	for _, name := range []string{"opendap", "http", "ncss"} {
		if u, ok := v.AccessURLs[name]; ok {
			if err := row(w, strings.ToUpper(name)+":", u); err != nil {
				return err
			}
		}
	}

	if len(v.Variables) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}
	if err := row(w, "VARIABLE", "UNITS", "DESCRIPTION"); err != nil {
		return err
	}
	for _, vr := range v.Variables {
		if err := row(w, vr.Name, orDash(vr.Units), orDash(vr.LongName)); err != nil {
			return err
		}
	}
	return nil
}

func coord(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

// directFlag returns --direct when given, else the configured default.
func directFlag(cmd *cobra.Command, app *App) bool {
	if cmd.Flags().Changed("direct") {
		direct, _ := cmd.Flags().GetBool("direct")
		return direct
	}
	return app.Config.Catalog.Direct
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogListCmd, catalogShowCmd)

	for _, c := range []*cobra.Command{catalogListCmd, catalogShowCmd} {
		c.Flags().StringP("server", "s", "", "server id (default catalog.default_server)")
		c.Flags().Bool("direct", false, "read catalogs directly from the server")
		addOutputFlag(c)
	}
	catalogListCmd.Flags().IntP("depth", "d", 1, "directory levels to list")
}
