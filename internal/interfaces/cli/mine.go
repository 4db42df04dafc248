package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/turtacn/cfpminer/internal/application/mining"
	"github.com/turtacn/cfpminer/internal/domain/fragment"
	"github.com/turtacn/cfpminer/pkg/errors"
	"github.com/turtacn/cfpminer/pkg/types/cfp"
)

// datasetFs is where dataset paths are resolved.
var datasetFs = afero.NewOsFs()

type mineOptions struct {
	fragmentType    string
	selection       string
	foldSize        int
	target          int
	minFreq         int
	checkDuplicates bool
	smilesCol       int
	endpointCol     int
	nice            bool
}

func NewMineCmd() *cobra.Command {
	opts := &mineOptions{}
	cmd := &cobra.Command{
		Use:   "mine <dataset>",
		Short: "Mine circular fragments from a dataset and store the index",
		Long: "Reads a CSV (SMILES and endpoint columns) or .smi file, mines the configured\n" +
			"fragment type, folds or filters the index and stores it as a snapshot.\n" +
			"Flags override the miner section of the config file.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithDeps(cmd, func(ctx context.Context, cliCtx *CLIContext, d *deps) error {
				cfg, err := minerConfig(cmd, cliCtx, opts)
				if err != nil {
					return err
				}
				ds, err := loadDataset(args[0], opts)
				if err != nil {
					return err
				}
				res, err := d.Service.Mine(ctx, mining.MineInput{Dataset: ds, Config: cfg})
				if err != nil {
					return err
				}
				return PrintResult(cmd, mineOutput{res: res, nice: opts.nice})
			})
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.fragmentType, "type", "t", "", "fragment type (ecfp0..ecfp6, fcfp0..fcfp6)")
	f.StringVarP(&opts.selection, "selection", "s", "", "feature selection (none, fold, filt)")
	f.IntVar(&opts.foldSize, "fold-size", 0, "fingerprint width in fold mode")
	f.IntVar(&opts.target, "target", 0, "target feature count in filt mode (0 means fold size)")
	f.IntVar(&opts.minFreq, "min-freq", 0, "minimum compound count per fragment in filt mode")
	f.BoolVar(&opts.checkDuplicates, "check-duplicates", true, "reject datasets containing the same SMILES twice")
	f.IntVar(&opts.smilesCol, "smiles-col", 0, "CSV column holding SMILES")
	f.IntVar(&opts.endpointCol, "endpoint-col", 1, "CSV column holding the endpoint")
	f.BoolVar(&opts.nice, "nice", false, "print the short summary")
	return cmd
}

// minerConfig starts from the config file and applies the flags that were
// set explicitly.
func minerConfig(cmd *cobra.Command, cliCtx *CLIContext, opts *mineOptions) (fragment.Config, error) {
	cfg, err := cliCtx.Config.MinerSettings()
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("type") {
		if cfg.Type, err = cfp.ParseFragmentType(opts.fragmentType); err != nil {
			return cfg, err
		}
	}
	if flags.Changed("selection") {
		if cfg.Selection, err = cfp.ParseFeatureSelection(opts.selection); err != nil {
			return cfg, err
		}
	}
	if flags.Changed("fold-size") {
		cfg.FoldSize = opts.foldSize
	}
	if flags.Changed("target") {
		cfg.TargetFeatures = opts.target
	}
	if flags.Changed("min-freq") {
		cfg.AbsMinFreq = opts.minFreq
	}
	if flags.Changed("check-duplicates") {
		cfg.CheckDuplicates = opts.checkDuplicates
	}
	return cfg, cfg.Validate()
}

func loadDataset(path string, opts *mineOptions) (*mining.Dataset, error) {
	ds, err := mining.LoadDatasetColumns(datasetFs, path, opts.smilesCol, opts.endpointCol)
	if err != nil {
		return nil, err
	}
	if ds.Len() == 0 {
		return nil, errors.InvalidParam("dataset is empty").WithDetail(path)
	}
	return ds, nil
}

type mineOutput struct {
	res  *mining.MineResult
	nice bool
}

func (o mineOutput) MarshalJSON() ([]byte, error) { return json.Marshal(o.res) }

func (o mineOutput) TableHeaders() []string { return []string{"Property", "Value"} }

func (o mineOutput) TableRows() [][]string {
	rows := [][]string{
		{"Snapshot", color.GreenString(o.res.SnapshotID)},
		{"Session", o.res.SessionID},
		{"Name", o.res.Summary.Name},
	}
	for _, r := range o.res.Summary.Rows(o.nice) {
		rows = append(rows, []string{r[0], r[1]})
	}
	if rep := o.res.Report; rep != nil {
		rows = append(rows, []string{"Filter input", strconv.Itoa(rep.Initial)})
		for _, st := range rep.Stages {
			rows = append(rows, []string{
				"Filter " + st.Name,
				fmt.Sprintf("%d remaining, %d removed (%s)", st.Remaining, st.Removed, st.Duration.Round(time.Microsecond)),
			})
		}
	}
	rows = append(rows, []string{"Duration", o.res.Duration.Round(time.Millisecond).String()})
	return rows
}

// ─────────────────────────────────────────────────────────────────────────────
// collisions
// ─────────────────────────────────────────────────────────────────────────────

func NewCollisionsCmd() *cobra.Command {
	var (
		fragmentType string
		sizes        []int
		smilesCol    int
	)
	cmd := &cobra.Command{
		Use:   "collisions <dataset>",
		Short: "Estimate fold collisions at several fingerprint widths",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithDeps(cmd, func(ctx context.Context, cliCtx *CLIContext, d *deps) error {
				t, err := cfp.ParseFragmentType(cliCtx.Config.Miner.FragmentType)
				if err != nil {
					return err
				}
				if cmd.Flags().Changed("type") {
					if t, err = cfp.ParseFragmentType(fragmentType); err != nil {
						return err
					}
				}
				ds, err := loadDataset(args[0], &mineOptions{smilesCol: smilesCol, endpointCol: -1})
				if err != nil {
					return err
				}
				rows, err := d.Service.CollisionReport(ctx, ds, t, sizes)
				if err != nil {
					return err
				}
				return PrintResult(cmd, collisionOutput(rows))
			})
		},
	}
	cmd.Flags().StringVarP(&fragmentType, "type", "t", "", "fragment type")
	cmd.Flags().IntSliceVar(&sizes, "sizes", mining.DefaultCollisionSizes, "fold widths to evaluate")
	cmd.Flags().IntVar(&smilesCol, "smiles-col", 0, "CSV column holding SMILES")
	return cmd
}

type collisionOutput []mining.CollisionRow

func (o collisionOutput) TableHeaders() []string {
	return []string{"Fold size", "Bits used", "Colliding bits", "Collision ratio", "Bit-load"}
}

func (o collisionOutput) TableRows() [][]string {
	rows := make([][]string, len(o))
	for i, r := range o {
		ratio := strconv.FormatFloat(r.Stats.Ratio, 'f', 4, 64)
		switch {
		case r.Stats.Ratio >= 0.5:
			ratio = color.RedString(ratio)
		case r.Stats.Ratio >= 0.1:
			ratio = color.YellowString(ratio)
		default:
			ratio = color.GreenString(ratio)
		}
		rows[i] = []string{
			strconv.Itoa(r.FoldSize),
			strconv.Itoa(r.Stats.UsedBits),
			strconv.Itoa(r.Stats.CollidingBits),
			ratio,
			strconv.FormatFloat(r.Stats.MeanBitLoad, 'f', 4, 64),
		}
	}
	return rows
}

func (o collisionOutput) String() string {
	var sb strings.Builder
	for _, r := range o {
		fmt.Fprintf(&sb, "%d\t%.4f\t%.4f\n", r.FoldSize, r.Stats.Ratio, r.Stats.MeanBitLoad)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
