package mining

import (
	"bufio"
	"encoding/csv"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/turtacn/cfpminer/pkg/errors"
)

// Dataset is a list of molecule texts with optional per-compound endpoints.
type Dataset struct {
	Name      string
	Texts     []string
	Endpoints []string // nil when the source carries no labels
}

// Len returns the number of compounds.
func (d *Dataset) Len() int { return len(d.Texts) }

// ReadCSV reads a dataset with a header row.  smilesCol selects the molecule
// column; endpointCol selects the label column, or -1 for none.  An endpoint
// column past the end of the header is treated as none.
func ReadCSV(r io.Reader, smilesCol, endpointCol int) (*Dataset, error) {
	if smilesCol < 0 {
		return nil, errors.InvalidParam("smiles column must not be negative")
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeBadRequest, "cannot read csv dataset")
	}
	if len(records) == 0 {
		return nil, errors.InvalidParam("dataset has no header row")
	}

	if endpointCol >= len(records[0]) {
		endpointCol = -1
	}
	d := &Dataset{}
	if endpointCol >= 0 {
		d.Endpoints = make([]string, 0, len(records)-1)
	}
	for i, rec := range records[1:] {
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		if smilesCol >= len(rec) || (endpointCol >= 0 && endpointCol >= len(rec)) {
			return nil, errors.Newf(errors.ErrCodeBadRequest, "row %d has %d columns", i+2, len(rec))
		}
		d.Texts = append(d.Texts, rec[smilesCol])
		if endpointCol >= 0 {
			d.Endpoints = append(d.Endpoints, rec[endpointCol])
		}
	}
	return d, nil
}

// ReadSMI reads whitespace-separated lines "<smiles> [endpoint]".  Endpoints
// are kept only when every line has one.
func ReadSMI(r io.Reader) (*Dataset, error) {
	d := &Dataset{}
	var endpoints []string
	labelled := true

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		d.Texts = append(d.Texts, fields[0])
		if len(fields) > 1 {
			endpoints = append(endpoints, fields[1])
		} else {
			labelled = false
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeBadRequest, "cannot read smi dataset")
	}
	if labelled && len(endpoints) > 0 {
		d.Endpoints = endpoints
	}
	return d, nil
}

// LoadDataset opens path on fs and picks the reader by extension: ".smi" and
// ".smiles" use ReadSMI, anything else ReadCSV with SMILES in column 0 and the
// endpoint in column 1.
func LoadDataset(fs afero.Fs, path string) (*Dataset, error) {
	return LoadDatasetColumns(fs, path, 0, 1)
}

// LoadDatasetColumns is LoadDataset with explicit CSV columns.  The columns
// are ignored for SMILES files.
func LoadDatasetColumns(fs afero.Fs, path string, smilesCol, endpointCol int) (*Dataset, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeNotFound, "cannot open dataset").WithDetail(path)
	}
	defer f.Close()

	var d *Dataset
	switch strings.ToLower(filepath.Ext(path)) {
	case ".smi", ".smiles":
		d, err = ReadSMI(f)
	default:
		d, err = ReadCSV(f, smilesCol, endpointCol)
	}
	if err != nil {
		return nil, err
	}
	d.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return d, nil
}
