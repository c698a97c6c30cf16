package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Maelco1/reset/internal/dto"
	"github.com/Maelco1/reset/internal/models"
	"github.com/Maelco1/reset/internal/planning"
)

type runFlags struct {
	populations []string
	order       string
	start       string
	algorithm   string
	rotations   int
}

func (f *runFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.populations, "population", nil, "Populations to include (medecin, remplacant)")
	cmd.Flags().StringVar(&f.order, "order", "asc", "Rotation order (asc or desc)")
	cmd.Flags().StringVar(&f.start, "start", "", "Trigram the rotation starts at")
	cmd.Flags().StringVar(&f.algorithm, "algorithm", "", "Algorithm variant")
	cmd.Flags().IntVar(&f.rotations, "rotations", 0, "Maximum rotations (defaults to the algorithm default)")
}

func (f *runFlags) request() dto.AutoAssignmentRequest {
	return dto.AutoAssignmentRequest{
		Populations:  f.populations,
		Order:        f.order,
		StartTrigram: f.start,
		Algorithm:    f.algorithm,
		Rotations:    f.rotations,
	}
}

func autoAssignCmd(state *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auto-assign",
		Short: "Run the rotation auto-assignment over pending requests",
	}
	cmd.AddCommand(autoAssignPreviewCmd(state))
	cmd.AddCommand(autoAssignApplyCmd(state))
	cmd.AddCommand(autoAssignUndoCmd(state))
	return cmd
}

func autoAssignPreviewCmd(state *cli) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Dry-run the algorithm without touching requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			preview, err := state.container.AutoAssignment.Preview(cmd.Context(), flags.request())
			if err != nil {
				return err
			}
			fmt.Printf("Planning %s (tour %d)\n\n", preview.Reference, preview.Tour)
			printSteps(preview.Steps)
			fmt.Printf("\n%s\n", preview.Feedback)
			return nil
		},
	}
	flags.bind(cmd)
	return cmd
}

func autoAssignApplyCmd(state *cli) *cobra.Command {
	var (
		flags runFlags
		as    string
	)
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Run the algorithm and validate the assigned requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			claims, err := state.adminClaims(cmd, as)
			if err != nil {
				return err
			}
			res, err := state.container.AutoAssignment.Apply(cmd.Context(), flags.request(), claims)
			if err != nil {
				return err
			}
			printSteps(res.Steps)
			fmt.Printf("\n%s\nRun %s recorded %d change(s).\n", res.Feedback, res.RunID, res.Changes)
			return nil
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&as, "as", "", "Administrator login recorded as the actor")
	_ = cmd.MarkFlagRequired("as")
	return cmd
}

func autoAssignUndoCmd(state *cli) *cobra.Command {
	var as string
	cmd := &cobra.Command{
		Use:   "undo",
		Short: "Revert the last applied run of the active window",
		RunE: func(cmd *cobra.Command, args []string) error {
			claims, err := state.adminClaims(cmd, as)
			if err != nil {
				return err
			}
			res, err := state.container.AutoAssignment.UndoLast(cmd.Context(), claims)
			if err != nil {
				return err
			}
			fmt.Printf("%s\nRun %s: %d request(s) restored.\n", res.Message, res.RunID, res.Restored)
			return nil
		},
	}
	cmd.Flags().StringVar(&as, "as", "", "Administrator login recorded as the actor")
	_ = cmd.MarkFlagRequired("as")
	return cmd
}

func printSteps(steps []planning.AutoAssignmentStep) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ROT\tTRIGRAM\tNORMAL\tGOOD\tREASON")
	for _, step := range steps {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", step.Rotation, step.Trigram, describeChoice(step.Normal), describeChoice(step.Good), step.Reason)
	}
	_ = w.Flush()
}

func describeChoice(choice *models.PlanningChoice) string {
	if choice == nil {
		return "-"
	}
	return fmt.Sprintf("%s #%d", choice.Day.Format("02/01/2006"), choice.ColumnNumber)
}

// adminClaims resolves login into the identity recorded on runs and audits.
func (s *cli) adminClaims(cmd *cobra.Command, login string) (*models.JWTClaims, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return nil, errors.New("--as is required")
	}
	user, err := s.container.Users.FindByLogin(cmd.Context(), login)
	if err != nil {
		return nil, fmt.Errorf("unknown account %q: %w", login, err)
	}
	if user.Role != models.RoleAdmin {
		return nil, fmt.Errorf("%s is not an administrator", login)
	}
	return &models.JWTClaims{
		UserID:   user.ID,
		Email:    user.Email,
		Username: user.Username,
		FullName: user.FullName,
		Trigram:  user.Trigram,
		Role:     user.Role,
	}, nil
}
