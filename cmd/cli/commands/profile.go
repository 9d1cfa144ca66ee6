package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/inferloop/reviewqa/pkg/models"
)

type ProfileOptions struct {
	Stage string
	Clear bool
}

func NewProfileCmd(g *GlobalOptions) *cobra.Command {
	opts := &ProfileOptions{}

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or clear recorded run profiles",
		Example: `  # Every recorded profile
  reviewqa profile

  # Profiles of one stage, then remove them
  reviewqa profile --stage quality
  reviewqa profile --stage quality --clear`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProfile(cmd, g, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Stage, "stage", "s", "", "Only profiles of this stage")
	cmd.Flags().BoolVar(&opts.Clear, "clear", false, "Remove the selected profiles")

	return cmd
}

func runProfile(cmd *cobra.Command, g *GlobalOptions, opts *ProfileOptions) error {
	ctx := context.Background()
	s, err := g.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if s.Profiles == nil {
		return fmt.Errorf("profile storage is disabled (profile.enabled=false)")
	}
	out := cmd.OutOrStdout()

	if opts.Clear {
		if opts.Stage == "" {
			return fmt.Errorf("--clear requires --stage")
		}
		if err := s.Profiles.RemoveByStage(ctx, opts.Stage); err != nil {
			return err
		}
		fmt.Fprintf(out, "Removed profiles of stage %s\n", opts.Stage)
		return nil
	}

	var profiles []models.Profile
	if opts.Stage != "" {
		profiles, err = s.Profiles.GetByStage(ctx, opts.Stage)
	} else {
		profiles, err = s.Profiles.GetAll(ctx)
	}
	if err != nil {
		return err
	}

	if s.json() {
		return writeJSON(out, profiles)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tTYPE\tPROCESS\tSTATUS\tROWS IN\tROWS OUT\tRUNTIME (s)\tPEAK MB")
	for _, p := range profiles {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%.3f\t%.1f\n",
			p.Stage, p.ProcessType, p.ProcessName, p.Status, p.RowsIn, p.RowsOut, p.RuntimeSeconds, p.MemoryPeakMB)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d profiles\n", len(profiles))
	return nil
}
