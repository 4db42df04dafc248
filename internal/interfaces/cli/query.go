package cli

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/cfpminer/internal/domain/fragment"
	"github.com/turtacn/cfpminer/pkg/errors"
)

func parseFragment(s string) (fragment.Fragment, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, errors.InvalidParam("fragment must be a 32-bit integer").WithDetail(s)
	}
	return fragment.Fragment(v), nil
}

func parseIndex(name, s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, errors.InvalidParam(name + " must be a non-negative integer").WithDetail(s)
	}
	return v, nil
}

func joinFragments(fs []fragment.Fragment) string {
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = f.String()
	}
	return strings.Join(parts, " ")
}

// ─────────────────────────────────────────────────────────────────────────────
// fragments
// ─────────────────────────────────────────────────────────────────────────────

func NewFragmentsCmd() *cobra.Command {
	var (
		compound int
		smiles   string
	)
	cmd := &cobra.Command{
		Use:   "fragments <snapshot-id>",
		Short: "List the fragments of a training compound or of a new SMILES",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			byCompound := cmd.Flags().Changed("compound")
			bySmiles := cmd.Flags().Changed("smiles")
			if byCompound == bySmiles {
				return errors.InvalidParam("exactly one of --compound and --smiles is required")
			}
			return runWithDeps(cmd, func(ctx context.Context, cliCtx *CLIContext, d *deps) error {
				m, err := d.Service.Load(ctx, args[0])
				if err != nil {
					return err
				}
				out := fragmentsOutput{Snapshot: args[0], Positions: []int{}}
				if byCompound {
					if compound < 0 || compound >= m.NumCompounds() {
						return errors.NotFound(fmt.Sprintf("compound %d", compound))
					}
					out.Compound = &compound
					out.Fragments = m.FragmentsForCompound(compound)
				} else {
					g, err := d.Decoder.Decode(smiles)
					if err != nil {
						return err
					}
					fs, err := m.FragmentsForTestCompound(g)
					if err != nil {
						return err
					}
					out.SMILES = smiles
					out.Fragments = fs
				}
				for _, f := range out.Fragments {
					pos, ok := m.PositionOf(f)
					if !ok {
						pos = -1
					}
					out.Positions = append(out.Positions, pos)
				}
				return PrintResult(cmd, out)
			})
		},
	}
	cmd.Flags().IntVar(&compound, "compound", 0, "training compound index")
	cmd.Flags().StringVar(&smiles, "smiles", "", "SMILES of a compound outside the training set")
	return cmd
}

type fragmentsOutput struct {
	Snapshot  string              `json:"snapshot"`
	Compound  *int                `json:"compound,omitempty"`
	SMILES    string              `json:"smiles,omitempty"`
	Fragments []fragment.Fragment `json:"fragments"`
	Positions []int               `json:"positions"`
}

func (o fragmentsOutput) TableHeaders() []string { return []string{"Fragment", "Position"} }

func (o fragmentsOutput) TableRows() [][]string {
	rows := make([][]string, len(o.Fragments))
	for i, f := range o.Fragments {
		pos := "-"
		if o.Positions[i] >= 0 {
			pos = strconv.Itoa(o.Positions[i])
		}
		rows[i] = []string{f.String(), pos}
	}
	return rows
}

func (o fragmentsOutput) String() string { return joinFragments(o.Fragments) }

// ─────────────────────────────────────────────────────────────────────────────
// similar
// ─────────────────────────────────────────────────────────────────────────────

func NewSimilarCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "similar <snapshot-id> <i> <j>",
		Short: "Tanimoto similarity of two training compounds",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := parseIndex("i", args[1])
			if err != nil {
				return err
			}
			j, err := parseIndex("j", args[2])
			if err != nil {
				return err
			}
			return runWithDeps(cmd, func(ctx context.Context, cliCtx *CLIContext, d *deps) error {
				m, err := d.Service.Load(ctx, args[0])
				if err != nil {
					return err
				}
				if n := m.NumCompounds(); i >= n || j >= n {
					return errors.NotFound(fmt.Sprintf("compound index out of range [0, %d)", n))
				}
				out := similarOutput{I: i, J: j}
				if t := m.TanimotoSimilarity(i, j); !math.IsNaN(t) {
					out.Tanimoto = &t
				}
				return PrintResult(cmd, out)
			})
		},
	}
}

type similarOutput struct {
	I        int      `json:"i"`
	J        int      `json:"j"`
	Tanimoto *float64 `json:"tanimoto"` // null when both compounds have no fragments
}

func (o similarOutput) String() string {
	if o.Tanimoto == nil {
		return "undefined"
	}
	return strconv.FormatFloat(*o.Tanimoto, 'f', 4, 64)
}

// ─────────────────────────────────────────────────────────────────────────────
// atoms
// ─────────────────────────────────────────────────────────────────────────────

func NewAtomsCmd() *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "atoms <snapshot-id> <smiles> <fragment>",
		Short: "Atoms of a compound covered by a fragment",
		Long: "first returns the atoms of the first matching occurrence, multiple the union\n" +
			"of all occurrences and distinct one atom set per occurrence.  Not available\n" +
			"in fold mode.",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFragment(args[2])
			if err != nil {
				return err
			}
			return runWithDeps(cmd, func(ctx context.Context, cliCtx *CLIContext, d *deps) error {
				m, err := d.Service.Load(ctx, args[0])
				if err != nil {
					return err
				}
				g, err := d.Decoder.Decode(args[1])
				if err != nil {
					return err
				}
				out := atomsOutput{Fragment: f, Mode: mode}
				switch mode {
				case "first":
					out.Atoms, err = m.AtomsForFragment(g, f)
				case "multiple":
					out.Atoms, err = m.AtomsMultiple(g, f)
				case "distinct":
					out.AtomSets, err = m.AtomsMultipleDistinct(g, f)
				default:
					return errors.InvalidParam("mode must be first, multiple or distinct").WithDetail(mode)
				}
				if err != nil {
					return err
				}
				return PrintResult(cmd, out)
			})
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "first", "first, multiple or distinct")
	return cmd
}

type atomsOutput struct {
	Fragment fragment.Fragment `json:"fragment"`
	Mode     string            `json:"mode"`
	Atoms    []int             `json:"atoms,omitempty"`
	AtomSets [][]int           `json:"atom_sets,omitempty"`
}

func (o atomsOutput) String() string {
	if o.AtomSets != nil {
		sets := make([]string, len(o.AtomSets))
		for i, s := range o.AtomSets {
			sets[i] = ints(s)
		}
		return strings.Join(sets, "\n")
	}
	return ints(o.Atoms)
}

func ints(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, " ")
}

// ─────────────────────────────────────────────────────────────────────────────
// lattice
// ─────────────────────────────────────────────────────────────────────────────

func NewLatticeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lattice <snapshot-id> <fragment>",
		Short: "Direct sub- and super-fragments of a fragment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFragment(args[1])
			if err != nil {
				return err
			}
			return runWithDeps(cmd, func(ctx context.Context, cliCtx *CLIContext, d *deps) error {
				m, err := d.Service.Load(ctx, args[0])
				if err != nil {
					return err
				}
				if _, ok := m.PositionOf(f); !ok {
					return errors.NotFound("fragment " + f.String())
				}
				sub, err := m.SubFragments(f)
				if err != nil {
					return err
				}
				super, err := m.SuperFragments(f)
				if err != nil {
					return err
				}
				return PrintResult(cmd, latticeOutput{Fragment: f, Sub: orEmpty(sub), Super: orEmpty(super)})
			})
		},
	}
}

func orEmpty(fs []fragment.Fragment) []fragment.Fragment {
	if fs == nil {
		return []fragment.Fragment{}
	}
	return fs
}

type latticeOutput struct {
	Fragment fragment.Fragment   `json:"fragment"`
	Sub      []fragment.Fragment `json:"sub"`
	Super    []fragment.Fragment `json:"super"`
}

func (o latticeOutput) TableHeaders() []string { return []string{"Relation", "Fragments"} }

func (o latticeOutput) TableRows() [][]string {
	return [][]string{
		{"sub", joinFragments(o.Sub)},
		{"super", joinFragments(o.Super)},
	}
}
