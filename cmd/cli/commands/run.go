package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/inferloop/reviewqa/internal/stage"
	"github.com/inferloop/reviewqa/pkg/models"
)

type RunOptions struct {
	Force   bool
	Summary bool
}

type stageSummary struct {
	Stage   string        `json:"stage"`
	Summary stage.Summary `json:"summary"`
}

func NewRunCmd(g *GlobalOptions) *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run <pipeline.yaml>",
		Short: "Run a data-quality pipeline",
		Long: `Run every stage of a pipeline definition in order. Stages whose
destination already exists are skipped unless --force is set.`,
		Example: `  # Run a pipeline
  reviewqa run pipelines/nightly.yaml

  # Rerun every stage and show what changed
  reviewqa run pipelines/nightly.yaml --force --summary`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, g, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false, "Rerun stages whose destination exists")
	cmd.Flags().BoolVar(&opts.Summary, "summary", false, "Print a before/after summary per stage")

	return cmd
}

func runPipeline(cmd *cobra.Command, g *GlobalOptions, opts *RunOptions, path string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := g.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	pipeline, err := s.LoadPipeline(path, opts.Force)
	if err != nil {
		return err
	}
	records, runErr := pipeline.Run(ctx)

	var summaries []stageSummary
	if opts.Summary {
		summaries, err = summarize(ctx, s, records)
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if s.json() {
		if err := writeJSON(out, map[string]interface{}{
			"pipeline":  pipeline.Name(),
			"records":   records,
			"summaries": summaries,
		}); err != nil {
			return err
		}
	} else {
		writeRecords(out, pipeline.Name(), records)
		for _, sum := range summaries {
			fmt.Fprintf(out, "\nStage %s:\n", sum.Stage)
			if err := sum.Summary.Write(out); err != nil {
				return err
			}
		}
	}
	return runErr
}

// summarize compares source and destination of every completed stage.
func summarize(ctx context.Context, s *session, records []*models.RunRecord) ([]stageSummary, error) {
	var out []stageSummary
	for _, r := range records {
		if r.Status != models.StageComplete {
			continue
		}
		src, err := s.Repository.Get(ctx, r.SourceID)
		if err != nil {
			return nil, err
		}
		dst, err := s.Repository.Get(ctx, r.DestinationID)
		if err != nil {
			return nil, err
		}
		out = append(out, stageSummary{Stage: r.Stage, Summary: stage.Summarize(src.Frame, dst.Frame)})
	}
	return out, nil
}

func writeRecords(w io.Writer, name string, records []*models.RunRecord) {
	fmt.Fprintf(w, "Pipeline: %s\n\n", name)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tSTATUS\tTASKS\tROWS IN\tROWS OUT\tDURATION\tDESTINATION")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%d\t%d\t%s\t%s\n",
			r.Stage, r.Status, r.TasksExecuted, len(r.Tasks), r.RowsIn, r.RowsOut, r.Duration.Round(1e6), r.DestinationID)
	}
	tw.Flush()
	for _, r := range records {
		if r.Error != "" {
			fmt.Fprintf(w, "\nStage %s failed: %s\n", r.Stage, r.Error)
		}
	}
}
