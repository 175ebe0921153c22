package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Output formats for read commands.
const (
	outputTable = "table"
	outputYAML  = "yaml"
	outputJSON  = "json"
)

// ErrInvalidOutput is returned for an unknown -o value.
var ErrInvalidOutput = errors.New("invalid output format")

// addOutputFlag registers -o on a read command.
func addOutputFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", outputTable, "output format: table, yaml or json")
}

// checkOutputFormat validates -o when the command has one.
func checkOutputFormat(cmd *cobra.Command) error {
	_, err := outputFormat(cmd)
	return err
}

func outputFormat(cmd *cobra.Command) (string, error) {
	f := cmd.Flags().Lookup("output")
	if f == nil {
		return outputTable, nil
	}
	switch f.Value.String() {
	case outputTable, outputYAML, outputJSON:
		return f.Value.String(), nil
	}
	return "", fmt.Errorf("%w: %q (valid: table, yaml, json)", ErrInvalidOutput, f.Value.String())
}

// render writes v in the selected format. table draws the table form and is
// given a tabwriter that is flushed afterwards.
func render(cmd *cobra.Command, v any, table func(w io.Writer) error) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch format {
	case outputJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	case outputYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if err := table(w); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

// row writes tab-separated cells followed by a newline.
func row(w io.Writer, cells ...any) error {
	for i, c := range cells {
		sep := "\t"
		if i == len(cells)-1 {
			sep = "\n"
		}
		if _, err := fmt.Fprint(w, c, sep); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
	return nil
}
