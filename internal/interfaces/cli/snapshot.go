package cli

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/cfpminer/internal/domain/fragment"
	"github.com/turtacn/cfpminer/internal/infrastructure/monitoring/logging"
)

func NewInspectCmd() *cobra.Command {
	var nice bool
	cmd := &cobra.Command{
		Use:   "inspect <snapshot-id>",
		Short: "Print the summary of a stored index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithDeps(cmd, func(ctx context.Context, cliCtx *CLIContext, d *deps) error {
				m, err := d.Service.Load(ctx, args[0])
				if err != nil {
					return err
				}
				return PrintResult(cmd, inspectOutput{
					ID:          args[0],
					SessionID:   m.ID(),
					State:       m.State().String(),
					Description: m.NiceFragmentDescription(),
					ClassValues: m.ClassValues(),
					Summary:     m.Summary(),
					nice:        nice,
				})
			})
		},
	}
	cmd.Flags().BoolVar(&nice, "nice", false, "print the short summary")
	return cmd
}

type inspectOutput struct {
	ID          string           `json:"id"`
	SessionID   string           `json:"session_id"`
	State       string           `json:"state"`
	Description string           `json:"description"`
	ClassValues []string         `json:"class_values,omitempty"`
	Summary     fragment.Summary `json:"summary"`

	nice bool
}

func (o inspectOutput) TableHeaders() []string { return []string{"Property", "Value"} }

func (o inspectOutput) TableRows() [][]string {
	rows := [][]string{
		{"Snapshot", o.ID},
		{"Name", o.Summary.Name},
		{"Description", o.Description},
		{"State", o.State},
	}
	if len(o.ClassValues) > 0 {
		rows = append(rows, []string{"Classes", strings.Join(o.ClassValues, ", ")})
	}
	for _, r := range o.Summary.Rows(o.nice) {
		rows = append(rows, []string{r[0], r[1]})
	}
	return rows
}

func NewListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored snapshot IDs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithDeps(cmd, func(ctx context.Context, cliCtx *CLIContext, d *deps) error {
				ids, err := d.Service.List(ctx)
				if err != nil {
					return err
				}
				if ids == nil {
					ids = []string{}
				}
				return PrintResult(cmd, listOutput(ids))
			})
		},
	}
}

type listOutput []string

func (o listOutput) TableHeaders() []string { return []string{"Snapshot"} }

func (o listOutput) TableRows() [][]string {
	rows := make([][]string, len(o))
	for i, id := range o {
		rows[i] = []string{id}
	}
	return rows
}

func (o listOutput) String() string { return strings.Join(o, "\n") }

func NewDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <snapshot-id>",
		Short: "Delete a stored snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithDeps(cmd, func(ctx context.Context, cliCtx *CLIContext, d *deps) error {
				if err := d.Service.Delete(ctx, args[0]); err != nil {
					return err
				}
				cliCtx.Logger.Info("snapshot deleted", logging.String(logging.FieldSnapshotID, args[0]))
				PrintSuccess(cmd, "deleted "+args[0])
				return nil
			})
		},
	}
}

func NewFilterCmd() *cobra.Command {
	var subset []int
	cmd := &cobra.Command{
		Use:   "filter <snapshot-id>",
		Short: "Re-run feature selection on a filt snapshot and store the result",
		Long: "Reloads the unfiltered index of a filt snapshot and runs the min-frequency,\n" +
			"closed-set and chi-square stages again.  --subset restricts the statistics\n" +
			"to the given compound indices, e.g. a cross-validation training fold.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithDeps(cmd, func(ctx context.Context, cliCtx *CLIContext, d *deps) error {
				var s []int
				if cmd.Flags().Changed("subset") {
					s = subset
				}
				res, err := d.Service.Refilter(ctx, args[0], s)
				if err != nil {
					return err
				}
				return PrintResult(cmd, mineOutput{res: res})
			})
		},
	}
	cmd.Flags().IntSliceVar(&subset, "subset", nil, "compound indices the filter statistics are computed on")
	return cmd
}

func NewExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export <snapshot-id>",
		Short: "Write the binary compound by fragment matrix as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithDeps(cmd, func(ctx context.Context, cliCtx *CLIContext, d *deps) (err error) {
				m, err := d.Service.Load(ctx, args[0])
				if err != nil {
					return err
				}
				var w io.Writer = cmd.OutOrStdout()
				if out != "" && out != "-" {
					f, err := os.Create(out)
					if err != nil {
						return err
					}
					defer func() {
						if cerr := f.Close(); err == nil {
							err = cerr
						}
					}()
					w = f
				}
				if err := m.WriteCSV(w, nil, nil); err != nil {
					return err
				}
				if w != cmd.OutOrStdout() {
					cliCtx.Logger.Info("matrix exported",
						logging.String(logging.FieldSnapshotID, args[0]),
						logging.String("path", out),
						logging.Int(logging.FieldCompounds, m.NumCompounds()),
						logging.Int(logging.FieldFragments, m.NumFragments()))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "file", "f", "", "output file (default stdout)")
	return cmd
}
