package app

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/retouch/retouch/pkg/catalog"
	"github.com/retouch/retouch/pkg/imgcodec"
)

var catalogJSON bool

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.Flags().BoolVar(&catalogJSON, "json", false, "JSON output")
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List the available commands and their parameters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if catalogJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(catalog.All())
		}
		return printCatalog(cmd.OutOrStdout())
	},
}

func printCatalog(out io.Writer) error {
	groups := catalog.Groups()
	names := make([]string, 0, len(groups))
	for k := range groups {
		names = append(names, k)
	}
	sort.Strings(names)

	title := color.New(color.Bold)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, g := range names {
		title.Fprintln(w, g)
		for _, c := range groups[g] {
			fmt.Fprintf(w, "  %s\t%s %s\t%s\n", c.Name, c.Method, c.Path, describeParams(c))
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nupload formats: %s\n", strings.Join(imgcodec.Formats(), ", "))
	fmt.Fprintf(out, "display backends: %s\n", strings.Join(imgcodec.Displayers(), ", "))
	return nil
}

func describeParams(c *catalog.Command) string {
	res := []string{}
	if !c.HasParams() {
		res = append(res, "no parameters")
	}
	for _, p := range c.Params {
		var s string
		switch {
		case p.Ranged():
			s = fmt.Sprintf("%s=%g..%g", p.Name, p.Min, p.Max)
		case len(p.Choices) > 0:
			s = fmt.Sprintf("%s=%s", p.Name, strings.Join(p.Choices, "|"))
		default:
			s = fmt.Sprintf("%s=<%s>", p.Name, p.Kind)
		}
		if p.Default != nil {
			s += fmt.Sprintf(" (%v)", p.Default)
		}
		res = append(res, s)
	}
	if c.Dialog {
		res = append(res, "[dialog]")
	}
	return strings.Join(res, ", ")
}
