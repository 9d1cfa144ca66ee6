package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inferloop/reviewqa/internal/frame"
)

type InspectOptions struct {
	Head int
}

func NewInspectCmd(g *GlobalOptions) *cobra.Command {
	opts := &InspectOptions{}

	cmd := &cobra.Command{
		Use:     "inspect <asset-id>",
		Short:   "Show a stored dataset's metadata and first rows",
		Example: `  reviewqa inspect dataset-dq-quality-reviews --head 10`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, g, opts, args[0])
		},
	}

	cmd.Flags().IntVarP(&opts.Head, "head", "n", -1, "Rows to show (default from cli.head_rows)")

	return cmd
}

func runInspect(cmd *cobra.Command, g *GlobalOptions, opts *InspectOptions, assetID string) error {
	ctx := context.Background()
	s, err := g.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	ds, err := s.Repository.Get(ctx, assetID)
	if err != nil {
		return err
	}
	head := opts.Head
	if head < 0 {
		head = s.prefs.HeadRows
	}

	out := cmd.OutOrStdout()
	meta := ds.Meta()
	if s.json() {
		rows := make([]map[string]interface{}, 0, head)
		sample := ds.Frame.Head(head)
		for i := 0; i < sample.NumRows(); i++ {
			row := make(map[string]interface{}, len(meta.Columns))
			for _, name := range meta.Columns {
				row[name] = sample.Value(name, i)
			}
			rows = append(rows, row)
		}
		return writeJSON(out, map[string]interface{}{"meta": meta, "head": rows})
	}

	fmt.Fprintf(out, "Asset:   %s\n", meta.ID)
	fmt.Fprintf(out, "Phase:   %s\n", meta.Phase)
	fmt.Fprintf(out, "Stage:   %s\n", meta.Stage)
	fmt.Fprintf(out, "Format:  %s (%s engine)\n", meta.Format, meta.Engine)
	fmt.Fprintf(out, "Created: %s\n", meta.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	if meta.Description != "" {
		fmt.Fprintf(out, "About:   %s\n", meta.Description)
	}
	fmt.Fprintf(out, "Rows:    %d\n", meta.Rows)
	fmt.Fprintf(out, "Columns: %s\n", strings.Join(meta.Columns, ", "))
	if head == 0 {
		return nil
	}
	fmt.Fprintln(out)
	return frame.WriteCSV(out, ds.Frame.Head(head))
}
