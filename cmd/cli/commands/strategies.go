package commands

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/inferloop/reviewqa/internal/anomaly"
	"github.com/inferloop/reviewqa/pkg/constants"
)

type StrategiesOptions struct {
	Dimension string
	Mode      string
}

type strategySet struct {
	Dimension string   `json:"dimension"`
	Mode      string   `json:"mode"`
	Detect    []string `json:"detect"`
	Repair    []string `json:"repair"`
}

func NewStrategiesCmd(g *GlobalOptions) *cobra.Command {
	opts := &StrategiesOptions{}

	cmd := &cobra.Command{
		Use:   "strategies",
		Short: "List registered detect and repair strategies",
		Example: `  # All dimensions, local mode
  reviewqa strategies

  # Text strategies available to the distributed engine
  reviewqa strategies --dimension text --mode distributed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStrategies(cmd, g, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Dimension, "dimension", "d", "", "Only this dimension ("+strings.Join(anomaly.Dimensions, ", ")+")")
	cmd.Flags().StringVarP(&opts.Mode, "mode", "m", constants.ModeLocal, "Execution mode (local, distributed)")

	return cmd
}

func runStrategies(cmd *cobra.Command, g *GlobalOptions, opts *StrategiesOptions) error {
	var distributed bool
	switch opts.Mode {
	case constants.ModeLocal:
	case constants.ModeDistributed:
		distributed = true
	default:
		return fmt.Errorf("mode must be %s or %s, got '%s'", constants.ModeLocal, constants.ModeDistributed, opts.Mode)
	}

	s, err := g.open(context.Background(), cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	dimensions := anomaly.Dimensions
	if opts.Dimension != "" {
		dimensions = []string{opts.Dimension}
	}

	sets := make([]strategySet, 0, len(dimensions))
	for _, dim := range dimensions {
		f, err := s.Registry.Factory(dim, distributed)
		if err != nil {
			return err
		}
		sets = append(sets, strategySet{
			Dimension: f.Dimension(),
			Mode:      f.Mode(),
			Detect:    f.AvailableDetect(),
			Repair:    f.AvailableRepair(),
		})
	}

	out := cmd.OutOrStdout()
	if s.json() {
		return writeJSON(out, sets)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DIMENSION\tMODE\tDETECT\tREPAIR")
	for _, set := range sets {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", set.Dimension, set.Mode, strings.Join(set.Detect, ", "), strings.Join(set.Repair, ", "))
	}
	return tw.Flush()
}
