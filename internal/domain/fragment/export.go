package fragment

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/turtacn/cfpminer/pkg/errors"
)

// WriteCSV writes the binary feature matrix: a header "SMILES,endpoint,<ids>"
// and one row per compound with a 0/1 per fragment in index order.  texts and
// endpoints default to the mined ones when nil.
func (m *Miner) WriteCSV(w io.Writer, texts, endpoints []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireMined(); err != nil {
		return err
	}
	if texts == nil {
		texts = m.texts
	}
	if endpoints == nil {
		endpoints = m.endpoints
	}
	if len(texts) != m.numCompounds {
		return errors.InvalidParam("text count does not match compound count").
			WithDetail(fmt.Sprintf("%d != %d", len(texts), m.numCompounds))
	}
	if endpoints != nil && len(endpoints) != m.numCompounds {
		return errors.New(errors.ErrCodeEndpointMismatch, "endpoint count does not match compound count").
			WithDetail(fmt.Sprintf("%d != %d", len(endpoints), m.numCompounds))
	}

	cw := csv.NewWriter(w)
	header := make([]string, 0, m.index.Len()+2)
	header = append(header, "SMILES", "endpoint")
	for _, f := range m.index.order {
		header = append(header, f.String())
	}
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "cannot write csv header")
	}

	row := make([]string, len(header))
	for c := 0; c < m.numCompounds; c++ {
		row[0] = texts[c]
		row[1] = ""
		if endpoints != nil {
			row[1] = endpoints[c]
		}
		present := make(map[Fragment]struct{})
		for _, f := range m.fragmentsForCompound(c) {
			present[f] = struct{}{}
		}
		for i, f := range m.index.order {
			if _, ok := present[f]; ok {
				row[i+2] = "1"
			} else {
				row[i+2] = "0"
			}
		}
		if err := cw.Write(row); err != nil {
			return errors.Wrap(err, errors.CodeInternal, "cannot write csv row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "cannot flush csv")
	}
	return nil
}
