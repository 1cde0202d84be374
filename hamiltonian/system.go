// Package hamiltonian builds the long-range Hamiltonian matrix blocks: for
// every atom pair within cutoff it integrates the product of the potential
// field (atom-support grid layout) and two basis-orbital values over the
// pair's shared grid support. Pair tasks are flattened into one index space
// and spread over worker threads; orbital values of a remote neighbor come
// from a halo table exchanged up front.
package hamiltonian

import (
	"fmt"
	"sort"

	"github.com/rubenlee11/HamGNN/grid"
)

// Species describes one atomic species: how many basis orbitals it carries,
// how far its orbitals reach on the grid, and how fast they decay.
type Species struct {
	Name          string
	NumOrbitals   int
	SupportRadius float64
	Exponent      float64
}

// System is the geometry/basis collaborator's view of the atoms. It is
// replicated on every rank and read-only after setup.
type System struct {
	Species     []Species
	AtomSpecies []int         // species index per global atom
	AtomRank    []int         // owning rank per global atom
	Positions   [][3]float64  // Cartesian coordinates per global atom
	Neighbors   [][]int       // per global atom: neighbor ids, entry 0 is the atom itself
}

func (s *System) NumAtoms() int { return len(s.Positions) }

func (s *System) NumOrbitals(gAtom int) int {
	return s.Species[s.AtomSpecies[gAtom]].NumOrbitals
}

func (s *System) MaxOrbitals() (max int) {
	for _, sp := range s.Species {
		if sp.NumOrbitals > max {
			max = sp.NumOrbitals
		}
	}
	return
}

// FNAN is the number of neighbors of gAtom within cutoff, excluding itself.
func (s *System) FNAN(gAtom int) int { return len(s.Neighbors[gAtom]) - 1 }

// LocalAtoms returns the global ids of the atoms rank owns, ascending. The
// position of an atom in this list is its local atom index.
func (s *System) LocalAtoms(rank int) (local []int) {
	for ga, r := range s.AtomRank {
		if r == rank {
			local = append(local, ga)
		}
	}
	return
}

func (s *System) Validate(np int) error {
	n := s.NumAtoms()
	if n == 0 {
		return grid.ConfigurationError{Reason: "system has no atoms"}
	}
	if len(s.AtomSpecies) != n || len(s.AtomRank) != n {
		return grid.ConfigurationError{Reason: fmt.Sprintf(
			"atom tables disagree: %d positions, %d species, %d ranks", n, len(s.AtomSpecies), len(s.AtomRank))}
	}
	for ga := 0; ga < n; ga++ {
		if sp := s.AtomSpecies[ga]; sp < 0 || sp >= len(s.Species) {
			return grid.ConfigurationError{Reason: fmt.Sprintf("atom %d has species %d, have %d species", ga, sp, len(s.Species))}
		}
		if r := s.AtomRank[ga]; r < 0 || r >= np {
			return grid.ConfigurationError{Reason: fmt.Sprintf("atom %d owned by rank %d, outside [0,%d)", ga, r, np)}
		}
	}
	if len(s.Neighbors) != n {
		return grid.ConfigurationError{Reason: "neighbor lists missing; call BuildNeighbors first"}
	}
	for ga, nbrs := range s.Neighbors {
		if len(nbrs) == 0 || nbrs[0] != ga {
			return grid.ConfigurationError{Reason: fmt.Sprintf("atom %d neighbor list must start with the atom itself", ga)}
		}
		for _, gh := range nbrs {
			if gh < 0 || gh >= n {
				return grid.ConfigurationError{Reason: fmt.Sprintf("atom %d lists neighbor %d, outside [0,%d)", ga, gh, n)}
			}
		}
	}
	return nil
}

// BuildNeighbors fills the cutoff-truncated neighbor lists (minimum-image
// metric). Entry 0 of each list is the atom itself; the rest follow in
// ascending global id.
func BuildNeighbors(geom *grid.Geometry, s *System, cutoff float64) error {
	if cutoff <= 0 {
		return grid.ConfigurationError{Reason: fmt.Sprintf("neighbor cutoff must be positive, have %g", cutoff)}
	}
	n := s.NumAtoms()
	s.Neighbors = make([][]int, n)
	for ga := 0; ga < n; ga++ {
		nbrs := []int{ga}
		for gh := 0; gh < n; gh++ {
			if gh == ga {
				continue
			}
			if geom.MinImageDistance(s.Positions[ga], s.Positions[gh]) <= cutoff {
				nbrs = append(nbrs, gh)
			}
		}
		sort.Ints(nbrs[1:])
		s.Neighbors[ga] = nbrs
	}
	return nil
}
