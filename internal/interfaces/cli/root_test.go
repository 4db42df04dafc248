package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/cfpminer/pkg/errors"
)

const testConfig = `miner:
  fragment_type: ecfp4
  feature_selection: none
log:
  level: error
storage:
  backend: file
  file:
    dir: %s
metrics:
  enabled: false
kafka:
  enabled: false
`

// testEnv writes a config pointing at a temp snapshot dir and swaps the
// dataset filesystem for an in-memory one.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := strings.Replace(testConfig, "%s", filepath.Join(dir, "snapshots"), 1)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	prev := datasetFs
	datasetFs = afero.NewMemMapFs()
	t.Cleanup(func() { datasetFs = prev })
	require.NoError(t, afero.WriteFile(datasetFs, "/train.csv",
		[]byte("smiles,activity\nCCO,a\nCCN,b\nCC(=O)O,a\n"), 0o644))
	return path
}

func run(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func mineSnapshot(t *testing.T, cfgPath string) string {
	t.Helper()
	out, err := run(t, cfgPath, "-o", "json", "mine", "/train.csv")
	require.NoError(t, err)
	var res struct {
		SnapshotID string `json:"snapshot_id"`
		Summary    struct {
			Name         string `json:"name"`
			NumCompounds int    `json:"num_compounds"`
			NumFragments int    `json:"num_fragments"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.NotEmpty(t, res.SnapshotID)
	assert.Equal(t, "ecfp4_none", res.Summary.Name)
	assert.Equal(t, 3, res.Summary.NumCompounds)
	assert.Greater(t, res.Summary.NumFragments, 0)
	return res.SnapshotID
}

func TestNewRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "cfpminer", cmd.Use)

	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{
		"mine", "collisions", "inspect", "list", "delete", "filter", "export",
		"fragments", "similar", "atoms", "lattice", "serve", "events", "version",
	} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestVersionCmd(t *testing.T) {
	cfg := testEnv(t)
	out, err := run(t, cfg, "-o", "json", "version")
	require.NoError(t, err)
	var v versionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, Version, v.Version)

	out, err = run(t, cfg, "-o", "text", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "cfpminer "))
}

func TestMineListInspectDelete(t *testing.T) {
	cfg := testEnv(t)
	id := mineSnapshot(t, cfg)

	out, err := run(t, cfg, "-o", "json", "list")
	require.NoError(t, err)
	var ids []string
	require.NoError(t, json.Unmarshal([]byte(out), &ids))
	assert.Equal(t, []string{id}, ids)

	out, err = run(t, cfg, "-o", "json", "inspect", id)
	require.NoError(t, err)
	var info struct {
		ID          string   `json:"id"`
		State       string   `json:"state"`
		ClassValues []string `json:"class_values"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, id, info.ID)
	assert.Equal(t, []string{"a", "b"}, info.ClassValues)

	out, err = run(t, cfg, "inspect", id)
	require.NoError(t, err)
	assert.Contains(t, out, "ecfp4_none")

	out, err = run(t, cfg, "delete", id)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted "+id)

	_, err = run(t, cfg, "inspect", id)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSnapshotNotFound))
}

func TestMine_FlagOverrides(t *testing.T) {
	cfg := testEnv(t)
	out, err := run(t, cfg, "-o", "json", "mine", "/train.csv", "--selection", "fold", "--fold-size", "64")
	require.NoError(t, err)
	var res struct {
		Summary struct {
			Name     string `json:"name"`
			FoldSize int    `json:"fold_size"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "ecfp4_fold_64", res.Summary.Name)
	assert.Equal(t, 64, res.Summary.FoldSize)

	_, err = run(t, cfg, "mine", "/train.csv", "--type", "ecfp5")
	assert.Error(t, err)

	_, err = run(t, cfg, "mine", "/missing.csv")
	assert.Error(t, err)
}

func TestQueries(t *testing.T) {
	cfg := testEnv(t)
	id := mineSnapshot(t, cfg)

	out, err := run(t, cfg, "-o", "json", "fragments", id, "--compound", "0")
	require.NoError(t, err)
	var train fragmentsOutput
	require.NoError(t, json.Unmarshal([]byte(out), &train))
	require.NotEmpty(t, train.Fragments)
	assert.Len(t, train.Positions, len(train.Fragments))
	for _, p := range train.Positions {
		assert.GreaterOrEqual(t, p, 0)
	}

	// The same molecule outside the training set yields the same fragments.
	out, err = run(t, cfg, "-o", "json", "fragments", id, "--smiles", "CCO")
	require.NoError(t, err)
	var test fragmentsOutput
	require.NoError(t, json.Unmarshal([]byte(out), &test))
	assert.ElementsMatch(t, train.Fragments, test.Fragments)

	_, err = run(t, cfg, "fragments", id)
	assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest))
	_, err = run(t, cfg, "fragments", id, "--compound", "9")
	assert.True(t, errors.IsNotFound(err))

	out, err = run(t, cfg, "-o", "text", "similar", id, "0", "0")
	require.NoError(t, err)
	assert.Equal(t, "1.0000\n", out)
	_, err = run(t, cfg, "similar", id, "0", "3")
	assert.True(t, errors.IsNotFound(err))

	f := train.Fragments[0].String()
	out, err = run(t, cfg, "-o", "json", "atoms", id, "CCO", f, "--mode", "multiple")
	require.NoError(t, err)
	var atoms atomsOutput
	require.NoError(t, json.Unmarshal([]byte(out), &atoms))
	assert.NotEmpty(t, atoms.Atoms)
	_, err = run(t, cfg, "atoms", id, "CCO", f, "--mode", "all")
	assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest))

	out, err = run(t, cfg, "-o", "json", "lattice", id, f)
	require.NoError(t, err)
	var lat latticeOutput
	require.NoError(t, json.Unmarshal([]byte(out), &lat))
	assert.NotNil(t, lat.Sub)
	assert.NotNil(t, lat.Super)
	_, err = run(t, cfg, "lattice", id, "x")
	assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest))
}

func TestExport(t *testing.T) {
	cfg := testEnv(t)
	id := mineSnapshot(t, cfg)

	out, err := run(t, cfg, "export", id)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "SMILES,endpoint,"))
	assert.True(t, strings.HasPrefix(lines[1], "CCO,a,"))

	path := filepath.Join(t.TempDir(), "matrix.csv")
	_, err = run(t, cfg, "export", id, "-f", path)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, out, string(data))
}

func TestFilter_RequiresFiltSnapshot(t *testing.T) {
	cfg := testEnv(t)
	id := mineSnapshot(t, cfg)

	_, err := run(t, cfg, "filter", id)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfiguration))
}

func TestCollisions(t *testing.T) {
	cfg := testEnv(t)
	out, err := run(t, cfg, "-o", "json", "collisions", "/train.csv", "--sizes", "8,1024")
	require.NoError(t, err)
	var rows []struct {
		FoldSize int `json:"fold_size"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, 8, rows[0].FoldSize)
	assert.Equal(t, 1024, rows[1].FoldSize)
}

func TestEvents_KafkaDisabled(t *testing.T) {
	cfg := testEnv(t)
	_, err := run(t, cfg, "events")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfiguration))
}

func TestConfigErrors(t *testing.T) {
	_, err := run(t, filepath.Join(t.TempDir(), "missing.yaml"), "list")
	assert.Error(t, err)
}
