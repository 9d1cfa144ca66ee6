package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func NewPatternsCmd(g *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "patterns",
		Short: "List the regex pattern catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.open(context.Background(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			patterns := s.Registry.Catalog().Patterns()
			out := cmd.OutOrStdout()
			if s.json() {
				return writeJSON(out, patterns)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tREPLACEMENT\tPATTERN")
			for _, p := range patterns {
				replacement := "-"
				if p.DefaultReplacement != nil {
					replacement = fmt.Sprintf("%q", *p.DefaultReplacement)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Name, replacement, p.Pattern)
			}
			return tw.Flush()
		},
	}
}
