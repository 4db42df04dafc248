package fragment

// RebuildLattice runs the lattice build on l again.
func RebuildLattice(m *Miner, l *Lattice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return l.build(minerLatticeSource{m: m})
}
